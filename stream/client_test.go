package stream

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solanatracker/data-api-sdk/models"
	"github.com/solanatracker/data-api-sdk/router"
	"github.com/solanatracker/data-api-sdk/transport"
)

// fakeTransport feeds events into the client and records room traffic.
type fakeTransport struct {
	events chan transport.Event

	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
	disconnects  int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan transport.Event, 16)}
}

func (f *fakeTransport) Connect(context.Context) error { return nil }

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
}

func (f *fakeTransport) Subscribe(room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, room)
	return nil
}

func (f *fakeTransport) Unsubscribe(room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, room)
	return nil
}

func (f *fakeTransport) Rooms() []string                { return nil }
func (f *fakeTransport) State() models.ConnectionState  { return models.StateConnected }
func (f *fakeTransport) Events() <-chan transport.Event { return f.events }

func (f *fakeTransport) joins() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.subscribed))
	copy(out, f.subscribed)
	return out
}

func (f *fakeTransport) emitMessage(room, data string) {
	f.events <- transport.Event{
		Type:  transport.EventMessage,
		Frame: &models.RawFrame{Type: models.FrameMessage, Room: room, Data: json.RawMessage(data)},
	}
}

func newTestClient(t *testing.T) (*Client, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	c := newClientWith(tr, nil, router.NewDedupFilter(128, 0), nil)
	t.Cleanup(c.Close)
	return c, tr
}

func TestRoomBuilders(t *testing.T) {
	assert.Equal(t, "price-by-token:TOK", TokenPriceRoom("TOK"))
	assert.Equal(t, "price-by-token:TOK:aggregated", TokenPriceAggregatedRoom("TOK"))
	assert.Equal(t, "price:TOK", TokenPriceAllPoolsRoom("TOK"))
	assert.Equal(t, "price:POOL", PoolPriceRoom("POOL"))
	assert.Equal(t, "transaction:TOK", TokenTransactionsRoom("TOK"))
	assert.Equal(t, "transaction:TOK:POOL", PoolTransactionsRoom("TOK", "POOL"))
	assert.Equal(t, "wallet:W", WalletTransactionsRoom("W"))
	assert.Equal(t, "wallet:W:balance", WalletBalanceRoom("W"))
	assert.Equal(t, "wallet:W:TOK:balance", WalletTokenBalanceRoom("W", "TOK"))
	assert.Equal(t, "stats:token:TOK", TokenStatsRoom("TOK"))
	assert.Equal(t, "stats:pool:POOL", PoolStatsRoom("POOL"))
}

func TestCurveProgressRoomValidation(t *testing.T) {
	room, err := CurveProgressRoom("MKT", 85)
	require.NoError(t, err)
	assert.Equal(t, "MKT:curve:85", room)

	room, err = CurveProgressRoom("MKT", 99.5)
	require.NoError(t, err)
	assert.Equal(t, "MKT:curve:99.5", room)

	_, err = CurveProgressRoom("MKT", -1)
	assert.ErrorIs(t, err, ErrCurvePercentageRange)
	_, err = CurveProgressRoom("MKT", 100.01)
	assert.ErrorIs(t, err, ErrCurvePercentageRange)
}

func TestClientCurveProgressRejectsOutOfRange(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.CurveProgress("MKT", 120)
	assert.ErrorIs(t, err, ErrCurvePercentageRange)

	sub, err := c.CurveProgress("MKT", 50)
	require.NoError(t, err)
	assert.Equal(t, "MKT:curve:50", sub.Room())
}

func TestSubscriptionJoinsOnFirstListener(t *testing.T) {
	c, tr := newTestClient(t)

	sub := c.TokenPrice("TOK")
	assert.Empty(t, tr.joins())

	remove, err := sub.On(func(json.RawMessage) {})
	require.NoError(t, err)
	assert.Equal(t, []string{"price-by-token:TOK"}, tr.joins())

	remove()
	tr.mu.Lock()
	left := tr.unsubscribed
	tr.mu.Unlock()
	assert.Equal(t, []string{"price-by-token:TOK"}, left)
}

func TestClientDeliversMessagesToListeners(t *testing.T) {
	c, tr := newTestClient(t)

	got := make(chan float64, 1)
	_, err := c.TokenStats("TOK").On(func(data json.RawMessage) {
		var p struct {
			Holders float64 `json:"holders"`
		}
		require.NoError(t, json.Unmarshal(data, &p))
		got <- p.Holders
	})
	require.NoError(t, err)

	tr.emitMessage("stats:token:TOK", `{"holders":42}`)

	select {
	case v := <-got:
		assert.Equal(t, 42.0, v)
	case <-time.After(2 * time.Second):
		t.Fatal("listener was not invoked")
	}
}

func TestClientResetsDedupOnTerminalDisconnect(t *testing.T) {
	c, tr := newTestClient(t)

	deliveries := make(chan struct{}, 4)
	_, err := c.TokenTransactions("TOK").On(func(json.RawMessage) {
		deliveries <- struct{}{}
	})
	require.NoError(t, err)

	recv := func() int {
		count := 0
		for {
			select {
			case <-deliveries:
				count++
			case <-time.After(200 * time.Millisecond):
				return count
			}
		}
	}

	tr.emitMessage("transaction:TOK", `{"tx":"sig-1"}`)
	tr.emitMessage("transaction:TOK", `{"tx":"sig-1"}`)
	assert.Equal(t, 1, recv())

	// A channel-scoped closure keeps the session's dedup scope.
	tr.events <- transport.Event{Type: transport.EventDisconnected, Channel: models.ChannelMain}
	tr.emitMessage("transaction:TOK", `{"tx":"sig-1"}`)
	assert.Equal(t, 0, recv())

	// A terminal disconnect ends the session and empties the scope.
	tr.events <- transport.Event{Type: transport.EventDisconnected}
	tr.emitMessage("transaction:TOK", `{"tx":"sig-1"}`)
	assert.Equal(t, 1, recv())
}

func TestClientLifecycleHandlers(t *testing.T) {
	c, tr := newTestClient(t)

	connected := make(chan struct{}, 1)
	reconnecting := make(chan int, 1)
	errs := make(chan error, 1)
	c.SetHandlers(LifecycleHandlers{
		OnConnected:    func() { connected <- struct{}{} },
		OnReconnecting: func(attempt int) { reconnecting <- attempt },
		OnError:        func(err error) { errs <- err },
	})

	tr.events <- transport.Event{Type: transport.EventConnected}
	tr.events <- transport.Event{Type: transport.EventReconnecting, Attempt: 3}
	tr.events <- transport.Event{Type: transport.EventError, Err: assert.AnError}

	select {
	case <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("connected handler was not invoked")
	}
	assert.Equal(t, 3, <-reconnecting)
	assert.ErrorIs(t, <-errs, assert.AnError)
}

func TestClientCloseIsIdempotent(t *testing.T) {
	tr := newFakeTransport()
	c := newClientWith(tr, nil, router.NewDedupFilter(128, 0), nil)

	c.Close()
	c.Close()

	tr.mu.Lock()
	disconnects := tr.disconnects
	tr.mu.Unlock()
	assert.Equal(t, 1, disconnects)
}
