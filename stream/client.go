package stream

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/solanatracker/data-api-sdk/config"
	"github.com/solanatracker/data-api-sdk/logging"
	"github.com/solanatracker/data-api-sdk/models"
	"github.com/solanatracker/data-api-sdk/router"
	"github.com/solanatracker/data-api-sdk/transport"
)

// LifecycleHandlers receive connection lifecycle notifications. All
// fields are optional; handlers run on the client's dispatch goroutine
// and must not block.
type LifecycleHandlers struct {
	OnConnected    func()
	OnDisconnected func(channel models.ChannelType, err error)
	OnReconnecting func(attempt int)
	OnError        func(err error)
}

// Client is the typed subscription façade over the datastream. It owns
// the transport, the listener registry and the dispatch goroutine moving
// inbound frames between them.
type Client struct {
	transport transport.Transport
	router    *router.Router
	logger    *logging.Logger

	// stopTransport terminates a worker-hosted transport; nil otherwise.
	stopTransport func()

	mu       sync.Mutex
	handlers LifecycleHandlers

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient builds a client from configuration and starts its dispatch
// goroutine. Close releases everything it starts.
func NewClient(cfg config.Config) *Client {
	logger := logging.NewLogger("datastream", "client")

	tcfg := transport.Config{
		BaseURL:             cfg.DatastreamURL,
		APIKey:              cfg.APIKey,
		AutoReconnect:       cfg.AutoReconnect,
		ReconnectDelay:      cfg.ReconnectDelay,
		ReconnectDelayMax:   cfg.ReconnectDelayMax,
		RandomizationFactor: cfg.RandomizationFactor,
		Logger:              logging.NewLogger("datastream", "transport"),
	}

	var tr transport.Transport
	var stop func()
	if cfg.UseWorker {
		worker := transport.NewWorkerTransport(tcfg)
		tr = worker
		stop = worker.Stop
	} else {
		tr = transport.NewConn(tcfg)
	}

	dedup := router.NewDedupFilter(cfg.DedupCapacity, cfg.DedupTTL)
	return newClientWith(tr, stop, dedup, logger)
}

// newClientWith wires a client around an existing transport. Tests
// substitute fakes through it.
func newClientWith(tr transport.Transport, stop func(), dedup *router.DedupFilter, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewLogger("datastream", "client")
	}
	c := &Client{
		transport:     tr,
		router:        router.New(tr, dedup, logging.NewLogger("datastream", "router")),
		logger:        logger,
		stopTransport: stop,
		done:          make(chan struct{}),
	}

	go c.dispatchLoop()
	return c
}

// SetHandlers replaces the lifecycle handler set.
func (c *Client) SetHandlers(h LifecycleHandlers) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()
}

func (c *Client) currentHandlers() LifecycleHandlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

// Connect opens the streaming session. Subscriptions made beforehand join
// once both channels are open.
func (c *Client) Connect(ctx context.Context) error {
	return c.transport.Connect(ctx)
}

// Disconnect ends the session. Registered listeners stay; reconnecting
// resubscribes nothing until rooms are joined again, since disconnect
// clears the tracked set.
func (c *Client) Disconnect() {
	c.transport.Disconnect()
}

// State returns the transport's connection state.
func (c *Client) State() models.ConnectionState {
	return c.transport.State()
}

// Close disconnects and stops the dispatch goroutine. The client is
// unusable afterwards.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.transport.Disconnect()
		if c.stopTransport != nil {
			c.stopTransport()
		}
		close(c.done)
	})
}

// dispatchLoop moves transport events into the router and the lifecycle
// handlers.
func (c *Client) dispatchLoop() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.transport.Events():
			c.handleEvent(ev)
		}
	}
}

func (c *Client) handleEvent(ev transport.Event) {
	h := c.currentHandlers()

	switch ev.Type {
	case transport.EventMessage:
		c.router.Dispatch(ev.Frame)

	case transport.EventConnected:
		if h.OnConnected != nil {
			h.OnConnected()
		}

	case transport.EventDisconnected:
		// An empty channel marks a deliberate teardown; that ends the
		// session, so the dedup scope empties with it. Channel-level
		// closures feed the reconnect cycle and keep the scope.
		if ev.Channel == "" {
			c.router.Reset()
		}
		if h.OnDisconnected != nil {
			h.OnDisconnected(ev.Channel, ev.Err)
		}

	case transport.EventReconnecting:
		if h.OnReconnecting != nil {
			h.OnReconnecting(ev.Attempt)
		}

	case transport.EventError:
		if h.OnError != nil {
			h.OnError(ev.Err)
		}
	}
}

// Subscription is a handle on one resolved room. It joins the room on its
// first listener and leaves when the last one is removed.
type Subscription struct {
	client *Client
	room   string
}

// Room returns the canonical room key the subscription resolves to.
func (s *Subscription) Room() string {
	return s.room
}

// On registers a listener. The returned function removes exactly this
// listener; the room stays subscribed while any listener remains.
func (s *Subscription) On(fn func(data json.RawMessage)) (func(), error) {
	return s.client.router.On(s.room, fn)
}

func (c *Client) subscription(room string) *Subscription {
	return &Subscription{client: c, room: room}
}

// TokenPrice follows the token's primary-pool price across pool switches.
func (c *Client) TokenPrice(token string) *Subscription {
	return c.subscription(TokenPriceRoom(token))
}

// TokenPriceAggregated follows the token's cross-pool aggregated price.
func (c *Client) TokenPriceAggregated(token string) *Subscription {
	return c.subscription(TokenPriceAggregatedRoom(token))
}

// TokenPriceAllPools follows price updates from every pool of the token.
func (c *Client) TokenPriceAllPools(token string) *Subscription {
	return c.subscription(TokenPriceAllPoolsRoom(token))
}

// PoolPrice follows the price of one pool.
func (c *Client) PoolPrice(pool string) *Subscription {
	return c.subscription(PoolPriceRoom(pool))
}

// TokenTransactions follows all trades of a token.
func (c *Client) TokenTransactions(token string) *Subscription {
	return c.subscription(TokenTransactionsRoom(token))
}

// PoolTransactions follows the trades of one pool of a token.
func (c *Client) PoolTransactions(token, pool string) *Subscription {
	return c.subscription(PoolTransactionsRoom(token, pool))
}

// WalletTransactions follows the trades of a wallet.
func (c *Client) WalletTransactions(wallet string) *Subscription {
	return c.subscription(WalletTransactionsRoom(wallet))
}

// WalletBalance follows balance updates of a wallet.
func (c *Client) WalletBalance(wallet string) *Subscription {
	return c.subscription(WalletBalanceRoom(wallet))
}

// WalletTokenBalance follows one token's balance within a wallet.
func (c *Client) WalletTokenBalance(wallet, token string) *Subscription {
	return c.subscription(WalletTokenBalanceRoom(wallet, token))
}

// TokenStats follows live rolling statistics of a token.
func (c *Client) TokenStats(token string) *Subscription {
	return c.subscription(TokenStatsRoom(token))
}

// PoolStats follows live rolling statistics of a pool.
func (c *Client) PoolStats(pool string) *Subscription {
	return c.subscription(PoolStatsRoom(pool))
}

// CurveProgress notifies when the market's bonding curve crosses the
// percentage threshold. The threshold must be within [0,100].
func (c *Client) CurveProgress(market string, percentage float64) (*Subscription, error) {
	room, err := CurveProgressRoom(market, percentage)
	if err != nil {
		return nil, err
	}
	return c.subscription(room), nil
}
