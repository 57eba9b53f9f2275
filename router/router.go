package router

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/solanatracker/data-api-sdk/logging"
	"github.com/solanatracker/data-api-sdk/models"
	"github.com/solanatracker/data-api-sdk/transport"
)

// ListenerFunc receives one payload delivery for a room. Array payloads
// arrive element by element, scalars as a single invocation.
type ListenerFunc func(data json.RawMessage)

type listenerEntry struct {
	id uuid.UUID
	fn ListenerFunc
}

// Router owns the room → listener registry. It joins a room on its first
// listener, leaves on its last, and routes inbound message frames through
// the dedup filter, derived-key rewriting and array fan-out.
type Router struct {
	transport transport.Transport
	dedup     *DedupFilter
	logger    *logging.Logger

	mu        sync.Mutex
	listeners map[string][]listenerEntry
}

// New creates a router in front of the given transport.
func New(tr transport.Transport, dedup *DedupFilter, logger *logging.Logger) *Router {
	if dedup == nil {
		dedup = NewDedupFilter(defaultDedupCapacity, 0)
	}
	if logger == nil {
		logger = logging.NewLogger("datastream", "router")
	}
	return &Router{
		transport: tr,
		dedup:     dedup,
		logger:    logger,
		listeners: make(map[string][]listenerEntry),
	}
}

// On registers a listener for a room. The first listener subscribes the
// room on the transport; the returned remove function detaches exactly
// this listener and leaves the room once no listeners remain.
func (r *Router) On(room string, fn ListenerFunc) (func(), error) {
	entry := listenerEntry{id: uuid.New(), fn: fn}

	r.mu.Lock()
	first := len(r.listeners[room]) == 0
	r.listeners[room] = append(r.listeners[room], entry)
	r.mu.Unlock()

	if first {
		if err := r.transport.Subscribe(room); err != nil {
			r.off(room, entry.id)
			return nil, err
		}
	}

	return func() { r.off(room, entry.id) }, nil
}

// off removes one listener; removing the last listener of a room
// unsubscribes it on the transport.
func (r *Router) off(room string, id uuid.UUID) {
	r.mu.Lock()
	entries := r.listeners[room]
	for i, entry := range entries {
		if entry.id == id {
			entries = append(entries[:i], entries[i+1:]...)
			break
		}
	}
	last := len(entries) == 0
	if last {
		delete(r.listeners, room)
	} else {
		r.listeners[room] = entries
	}
	r.mu.Unlock()

	if last {
		if err := r.transport.Unsubscribe(room); err != nil {
			r.logger.WithRoom(room).WithError(err).Warn("Leave after last listener failed")
		}
	}
}

// ListenerCount returns how many listeners a room currently has.
func (r *Router) ListenerCount(room string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners[room])
}

// Dispatch routes one inbound message frame: fans out array payloads in
// order, drops elements whose tx id was already delivered this session,
// and additionally delivers token-scoped price payloads under their
// derived per-token keys.
func (r *Router) Dispatch(frame *models.RawFrame) {
	if frame == nil || frame.Room == "" {
		return
	}

	for _, payload := range splitPayload(frame.Data) {
		probe := probePayload(payload)
		if probe.Tx != "" && r.dedup.Seen(probe.Tx) {
			continue
		}

		r.deliver(frame.Room, payload)
		for _, derived := range derivedRooms(frame.Room, probe.Token) {
			r.deliver(derived, payload)
		}
	}
}

// Reset empties the dedup scope. Called when the session ends.
func (r *Router) Reset() {
	r.dedup.Reset()
}

// deliver invokes every listener of one room, outside the registry lock.
func (r *Router) deliver(room string, payload json.RawMessage) {
	r.mu.Lock()
	entries := r.listeners[room]
	fns := make([]ListenerFunc, len(entries))
	for i, entry := range entries {
		fns[i] = entry.fn
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}

// payloadProbe extracts the routing-relevant fields of a payload element.
type payloadProbe struct {
	Tx    string `json:"tx"`
	Token string `json:"token"`
}

func probePayload(payload json.RawMessage) payloadProbe {
	var probe payloadProbe
	// Non-object payloads simply carry no routing fields.
	json.Unmarshal(payload, &probe)
	return probe
}

// splitPayload fans an array payload out into its elements, preserving
// order. Scalars and objects come back as a single element.
func splitPayload(data json.RawMessage) []json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] != '[' {
		return []json.RawMessage{data}
	}
	var elements []json.RawMessage
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return []json.RawMessage{data}
	}
	return elements
}

// derivedRooms synthesizes the per-token keys for token-scoped price
// topics. The server-side room tracks whichever pool is currently primary
// for the token; listeners on the derived key keep receiving it across
// pool switches without resubscribing.
func derivedRooms(room, token string) []string {
	if token == "" {
		return nil
	}
	switch {
	case strings.HasPrefix(room, "price-by-token:"):
		// Already a derived key.
		return nil
	case strings.HasPrefix(room, "price-aggregated:"):
		return []string{"price-by-token:" + token + ":aggregated"}
	case strings.HasPrefix(room, "price:"):
		return []string{"price-by-token:" + token}
	}
	return nil
}
