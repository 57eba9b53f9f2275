package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/solanatracker/data-api-sdk/logging"
	"github.com/solanatracker/data-api-sdk/models"
)

// connectTimeout bounds a single connect attempt, both for socket dialing
// and for awaiting the isolated worker's reply.
const connectTimeout = 10 * time.Second

// channelList names both logical channels in a fixed order.
var channelList = []models.ChannelType{models.ChannelMain, models.ChannelTransaction}

// Config holds the connection transport settings.
type Config struct {
	BaseURL string
	APIKey  string

	AutoReconnect       bool
	ReconnectDelay      time.Duration
	ReconnectDelayMax   time.Duration
	RandomizationFactor float64

	// EventBuffer sizes the outbound event channel.
	EventBuffer int

	// Dialer opens channel sockets. Defaults to WebsocketDialer.
	Dialer Dialer

	Logger *logging.Logger
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "wss://datastream.solanatracker.io"
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = 2500 * time.Millisecond
	}
	if c.ReconnectDelayMax <= 0 {
		c.ReconnectDelayMax = 4500 * time.Millisecond
	}
	if c.RandomizationFactor <= 0 {
		c.RandomizationFactor = 0.5
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 256
	}
	if c.Dialer == nil {
		c.Dialer = WebsocketDialer
	}
	if c.Logger == nil {
		c.Logger = logging.NewLogger("datastream", "transport")
	}
	return c
}

func (c Config) channelURL(channel models.ChannelType) string {
	return c.BaseURL + "/" + string(channel)
}

// Conn is the in-process connection transport. It owns the two channel
// sockets, the reconnect state machine and the tracked room set.
type Conn struct {
	cfg    Config
	logger *logging.Logger

	mu             sync.Mutex
	state          models.ConnectionState
	sockets        map[models.ChannelType]Socket
	rooms          map[string]struct{}
	backoff        *Backoff
	reconnectTimer *time.Timer

	events chan Event
}

// NewConn creates a connection transport. No sockets are opened until
// Connect is called, directly or lazily through Subscribe.
func NewConn(cfg Config) *Conn {
	cfg = cfg.withDefaults()
	return &Conn{
		cfg:     cfg,
		logger:  cfg.Logger,
		state:   models.StateDisconnected,
		sockets: make(map[models.ChannelType]Socket),
		rooms:   make(map[string]struct{}),
		backoff: NewBackoff(cfg.ReconnectDelay, cfg.ReconnectDelayMax, cfg.RandomizationFactor),
		events:  make(chan Event, cfg.EventBuffer),
	}
}

// Events returns the transport's event stream.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// State returns the current connection state.
func (c *Conn) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Rooms returns a sorted copy of the tracked room set.
func (c *Conn) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

// Connect opens both channel sockets concurrently and transitions to
// Connected only once both succeed. Calling while connected or connecting
// is a no-op success.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == models.StateConnected || c.state == models.StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.stopReconnectTimerLocked()
	c.state = models.StateConnecting
	c.mu.Unlock()

	return c.connectOnce(ctx)
}

// Disconnect tears the session down: cancels any pending reconnect, closes
// both sockets, clears the tracked room set and emits a terminal
// disconnected event. Safe to call in any state.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.stopReconnectTimerLocked()
	wasActive := c.state != models.StateDisconnected
	socks := make([]Socket, 0, len(c.sockets))
	for _, sock := range c.sockets {
		socks = append(socks, sock)
	}
	c.sockets = make(map[models.ChannelType]Socket)
	c.rooms = make(map[string]struct{})
	c.backoff.Reset()
	c.state = models.StateDisconnected
	c.mu.Unlock()

	for _, sock := range socks {
		sock.Close()
	}

	if wasActive {
		c.logger.ConnectionEvent("disconnected", "", 0)
		c.emit(Event{Type: EventDisconnected})
	}
}

// Subscribe adds the room to the tracked set. If its channel socket is
// open the join frame is sent immediately; while disconnected a lazy
// connect is triggered and the join rides the resubscription.
func (c *Conn) Subscribe(room string) error {
	channel := models.ChannelForRoom(room)

	c.mu.Lock()
	c.rooms[room] = struct{}{}
	sock := c.sockets[channel]
	connected := c.state == models.StateConnected
	lazyConnect := c.state == models.StateDisconnected
	c.mu.Unlock()

	c.logger.RoomEvent("join", room)

	if connected && sock != nil {
		return c.sendControlFrame(sock, models.FrameJoin, room)
	}
	if lazyConnect {
		go c.Connect(context.Background())
	}
	return nil
}

// Unsubscribe removes the room from the tracked set, sending a leave frame
// when its channel is open. Unknown rooms are a no-op.
func (c *Conn) Unsubscribe(room string) error {
	channel := models.ChannelForRoom(room)

	c.mu.Lock()
	if _, tracked := c.rooms[room]; !tracked {
		c.mu.Unlock()
		return nil
	}
	delete(c.rooms, room)
	sock := c.sockets[channel]
	connected := c.state == models.StateConnected
	c.mu.Unlock()

	c.logger.RoomEvent("leave", room)

	if connected && sock != nil {
		return c.sendControlFrame(sock, models.FrameLeave, room)
	}
	return nil
}

// connectOnce performs one full connect attempt: dial both channels, and
// either register them and resubscribe, or fail the whole attempt.
func (c *Conn) connectOnce(ctx context.Context) error {
	cb := SocketCallbacks{
		OnFrame: c.handleFrame,
		OnClose: c.handleSocketClose,
	}

	type dialResult struct {
		channel models.ChannelType
		sock    Socket
		err     error
	}

	results := make(chan dialResult, len(channelList))
	for _, channel := range channelList {
		go func(channel models.ChannelType) {
			sock, err := c.cfg.Dialer(ctx, channel, c.cfg, cb)
			results <- dialResult{channel: channel, sock: sock, err: err}
		}(channel)
	}

	opened := make(map[models.ChannelType]Socket, len(channelList))
	var dialErr error
	for range channelList {
		res := <-results
		if res.err != nil {
			if dialErr == nil {
				dialErr = fmt.Errorf("open %s channel: %w", res.channel, res.err)
			}
			continue
		}
		opened[res.channel] = res.sock
	}

	if dialErr != nil {
		// Either socket failing fails the whole attempt.
		for _, sock := range opened {
			sock.Close()
		}
		c.mu.Lock()
		if c.state == models.StateConnecting {
			if c.cfg.AutoReconnect {
				c.scheduleReconnectLocked()
			} else {
				c.state = models.StateDisconnected
			}
		}
		c.mu.Unlock()
		c.logger.WithError(dialErr).Error("Connect attempt failed")
		c.emit(Event{Type: EventError, Err: dialErr})
		return dialErr
	}

	c.mu.Lock()
	if c.state != models.StateConnecting {
		// Disconnected while dialing; discard the fresh sockets.
		c.mu.Unlock()
		for _, sock := range opened {
			sock.Close()
		}
		return nil
	}
	for channel, sock := range opened {
		c.sockets[channel] = sock
	}
	c.state = models.StateConnected
	c.backoff.Reset()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	mainSock := c.sockets[models.ChannelMain]
	txSock := c.sockets[models.ChannelTransaction]
	c.mu.Unlock()

	c.logger.ConnectionEvent("connected", "", 0)
	c.emit(Event{Type: EventConnected})

	// Resubscribe the full tracked set, never a partial one: this only
	// runs once both channels are open.
	for _, room := range rooms {
		sock := mainSock
		if models.ChannelForRoom(room) == models.ChannelTransaction {
			sock = txSock
		}
		if err := c.sendControlFrame(sock, models.FrameJoin, room); err != nil {
			c.logger.WithRoom(room).WithError(err).Error("Resubscribe failed")
			c.emit(Event{Type: EventError, Err: fmt.Errorf("resubscribe %s: %w", room, err)})
		}
	}

	return nil
}

// handleSocketClose reacts to an unexpected closure of either channel by
// tearing both down and entering the reconnect cycle.
func (c *Conn) handleSocketClose(channel models.ChannelType, err error) {
	c.mu.Lock()
	if c.state != models.StateConnected {
		// Deliberate disconnect or a socket that lost the connect race.
		c.mu.Unlock()
		return
	}
	socks := make([]Socket, 0, len(c.sockets))
	for _, sock := range c.sockets {
		socks = append(socks, sock)
	}
	c.sockets = make(map[models.ChannelType]Socket)
	if c.cfg.AutoReconnect {
		c.scheduleReconnectLocked()
	} else {
		c.state = models.StateDisconnected
	}
	c.mu.Unlock()

	for _, sock := range socks {
		sock.Close()
	}

	c.logger.WithChannel(string(channel)).WithError(err).Warn("Channel closed")
	c.emit(Event{Type: EventDisconnected, Channel: channel, Err: err})
}

// scheduleReconnectLocked arms the backoff timer for the next attempt.
// Caller holds c.mu.
func (c *Conn) scheduleReconnectLocked() {
	c.state = models.StateReconnecting
	wait := c.backoff.Next()
	attempt := c.backoff.Attempts()
	c.reconnectTimer = time.AfterFunc(wait, func() {
		c.reconnectAttempt()
	})
	c.logger.ConnectionEvent("reconnecting", "", attempt)
	c.emit(Event{Type: EventReconnecting, Attempt: attempt})
}

// reconnectAttempt runs a scheduled retry. Failures are not propagated to
// any caller; they emit an error event and rearm the timer.
func (c *Conn) reconnectAttempt() {
	c.mu.Lock()
	if c.state != models.StateReconnecting {
		c.mu.Unlock()
		return
	}
	c.state = models.StateConnecting
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	c.connectOnce(ctx)
}

func (c *Conn) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

// handleFrame parses one inbound text frame. Malformed JSON is surfaced as
// an error event; the socket stays open and processing continues.
func (c *Conn) handleFrame(channel models.ChannelType, data []byte) {
	var frame models.RawFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.logger.WithChannel(string(channel)).WithError(err).Error("Malformed inbound frame")
		c.emit(Event{Type: EventError, Channel: channel, Err: fmt.Errorf("malformed frame: %w", err)})
		return
	}

	if frame.Type != models.FrameMessage {
		// join/leave acknowledgements carry no payload worth routing
		return
	}

	c.emit(Event{Type: EventMessage, Channel: channel, Frame: &frame})
}

func (c *Conn) sendControlFrame(sock Socket, frameType, room string) error {
	frame := models.RawFrame{Type: frameType, Room: room}
	return sock.SendJSON(&frame)
}

// emit never blocks; when the consumer falls behind the event is dropped.
func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("Event buffer full, dropping event", map[string]interface{}{
			"event_type": string(ev.Type),
		})
	}
}
