package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/solanatracker/data-api-sdk/models"
)

// ErrWorkerConnectTimeout is returned when the isolated worker does not
// acknowledge a connect command in time. It fails the attempt the same way
// a socket-open failure does.
var ErrWorkerConnectTimeout = errors.New("worker connect timed out")

// ErrWorkerStopped is returned for commands sent after the worker exited.
var ErrWorkerStopped = errors.New("worker transport stopped")

type commandKind int

const (
	cmdConnect commandKind = iota
	cmdDisconnect
	cmdSubscribe
	cmdUnsubscribe
	cmdState
	cmdRooms
)

type workerReply struct {
	err   error
	state models.ConnectionState
	rooms []string
}

type workerCommand struct {
	kind  commandKind
	room  string
	reply chan workerReply
}

// WorkerTransport hosts the full connection state machine inside its own
// goroutine, reachable only through command/event message passing. The
// behavior is identical to Conn; only the placement differs.
type WorkerTransport struct {
	inner  *Conn
	cmds   chan workerCommand
	events chan Event

	stopOnce sync.Once
	done     chan struct{}
}

// NewWorkerTransport creates the isolated transport and starts its worker
// goroutine.
func NewWorkerTransport(cfg Config) *WorkerTransport {
	cfg = cfg.withDefaults()
	w := &WorkerTransport{
		inner:  NewConn(cfg),
		cmds:   make(chan workerCommand),
		events: make(chan Event, cfg.EventBuffer),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// run is the worker loop: it serializes commands against the inner state
// machine and forwards its events outward.
func (w *WorkerTransport) run() {
	for {
		select {
		case <-w.done:
			return

		case ev := <-w.inner.Events():
			select {
			case w.events <- ev:
			case <-w.done:
				return
			}

		case cmd := <-w.cmds:
			var reply workerReply
			switch cmd.kind {
			case cmdConnect:
				ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
				reply.err = w.inner.Connect(ctx)
				cancel()
			case cmdDisconnect:
				w.inner.Disconnect()
			case cmdSubscribe:
				reply.err = w.inner.Subscribe(cmd.room)
			case cmdUnsubscribe:
				reply.err = w.inner.Unsubscribe(cmd.room)
			case cmdState:
				reply.state = w.inner.State()
			case cmdRooms:
				reply.rooms = w.inner.Rooms()
			}
			if cmd.reply != nil {
				cmd.reply <- reply
			}
		}
	}
}

// send dispatches one command to the worker and waits for its reply.
func (w *WorkerTransport) send(cmd workerCommand) (workerReply, error) {
	cmd.reply = make(chan workerReply, 1)
	select {
	case w.cmds <- cmd:
	case <-w.done:
		return workerReply{}, ErrWorkerStopped
	}
	select {
	case reply := <-cmd.reply:
		return reply, nil
	case <-w.done:
		return workerReply{}, ErrWorkerStopped
	}
}

// Connect asks the worker to open both channels. The reply carries the
// attempt's outcome; a worker that stays silent past the connect timeout
// fails like a socket-open failure.
func (w *WorkerTransport) Connect(ctx context.Context) error {
	cmd := workerCommand{kind: cmdConnect, reply: make(chan workerReply, 1)}
	select {
	case w.cmds <- cmd:
	case <-w.done:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	timeout := time.NewTimer(connectTimeout)
	defer timeout.Stop()
	select {
	case reply := <-cmd.reply:
		return reply.err
	case <-w.done:
		return ErrWorkerStopped
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout.C:
		return ErrWorkerConnectTimeout
	}
}

// Disconnect tears down the worker-hosted session.
func (w *WorkerTransport) Disconnect() {
	w.send(workerCommand{kind: cmdDisconnect})
}

// Subscribe tracks a room inside the worker.
func (w *WorkerTransport) Subscribe(room string) error {
	reply, err := w.send(workerCommand{kind: cmdSubscribe, room: room})
	if err != nil {
		return err
	}
	return reply.err
}

// Unsubscribe untracks a room inside the worker.
func (w *WorkerTransport) Unsubscribe(room string) error {
	reply, err := w.send(workerCommand{kind: cmdUnsubscribe, room: room})
	if err != nil {
		return err
	}
	return reply.err
}

// Rooms returns the worker's tracked room set.
func (w *WorkerTransport) Rooms() []string {
	reply, err := w.send(workerCommand{kind: cmdRooms})
	if err != nil {
		return nil
	}
	return reply.rooms
}

// State returns the worker's connection state.
func (w *WorkerTransport) State() models.ConnectionState {
	reply, err := w.send(workerCommand{kind: cmdState})
	if err != nil {
		return models.StateDisconnected
	}
	return reply.state
}

// Events returns the forwarded event stream.
func (w *WorkerTransport) Events() <-chan Event {
	return w.events
}

// Stop disconnects and terminates the worker goroutine. The transport is
// unusable afterwards.
func (w *WorkerTransport) Stop() {
	w.stopOnce.Do(func() {
		w.send(workerCommand{kind: cmdDisconnect})
		close(w.done)
	})
}
