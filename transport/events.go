package transport

import (
	"context"

	"github.com/solanatracker/data-api-sdk/models"
)

// EventType identifies a lifecycle or data event surfaced by a transport.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventMessage      EventType = "message"
	EventError        EventType = "error"
	EventReconnecting EventType = "reconnecting"
)

// Event is surfaced on the transport's event stream. For EventDisconnected
// an empty Channel means the whole session was torn down deliberately; a
// non-empty Channel names the socket whose closure triggered the event.
type Event struct {
	Type    EventType
	Channel models.ChannelType
	Frame   *models.RawFrame
	Attempt int
	Err     error
}

// Transport is the capability interface shared by the in-process connection
// and the worker-isolated variant. Both implementations follow the same
// behavior contract and are exercised by one shared test suite.
type Transport interface {
	// Connect opens both channel sockets. Already connected or connecting
	// is a no-op success. A failure of either socket fails the attempt;
	// when auto-reconnect is enabled a retry is scheduled and later
	// failures are not propagated to the caller.
	Connect(ctx context.Context) error

	// Disconnect is idempotent: closes both sockets, cancels any pending
	// reconnect, clears the tracked room set and emits a terminal
	// disconnected event.
	Disconnect()

	// Subscribe tracks the room and sends a join frame if its channel is
	// open; otherwise it lazily triggers Connect and the join is sent by
	// resubscription once both channels open.
	Subscribe(room string) error

	// Unsubscribe stops tracking the room, sending a leave frame when the
	// channel is open. Unknown rooms are a no-op.
	Unsubscribe(room string) error

	// Rooms returns the currently tracked room set.
	Rooms() []string

	// State returns the current connection state.
	State() models.ConnectionState

	// Events returns the stream of lifecycle and data events.
	Events() <-chan Event
}
