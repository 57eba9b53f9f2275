package router

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solanatracker/data-api-sdk/models"
	"github.com/solanatracker/data-api-sdk/transport"
)

// fakeTransport records subscribe/unsubscribe traffic; the router under
// test never needs a live connection.
type fakeTransport struct {
	mu           sync.Mutex
	subscribed   []string
	unsubscribed []string
	subscribeErr error
}

func (f *fakeTransport) Connect(context.Context) error { return nil }
func (f *fakeTransport) Disconnect()                   {}

func (f *fakeTransport) Subscribe(room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
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
func (f *fakeTransport) Events() <-chan transport.Event { return nil }

func (f *fakeTransport) joins() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.subscribed))
	copy(out, f.subscribed)
	return out
}

func (f *fakeTransport) leaves() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.unsubscribed))
	copy(out, f.unsubscribed)
	return out
}

func newTestRouter(t *testing.T) (*Router, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	return New(tr, NewDedupFilter(128, 0), nil), tr
}

func messageFrame(room, data string) *models.RawFrame {
	return &models.RawFrame{Type: models.FrameMessage, Room: room, Data: json.RawMessage(data)}
}

func TestRouterSubscribesOnFirstListenerOnly(t *testing.T) {
	r, tr := newTestRouter(t)

	remove1, err := r.On("price:TOKEN", func(json.RawMessage) {})
	require.NoError(t, err)
	remove2, err := r.On("price:TOKEN", func(json.RawMessage) {})
	require.NoError(t, err)

	assert.Equal(t, []string{"price:TOKEN"}, tr.joins())
	assert.Equal(t, 2, r.ListenerCount("price:TOKEN"))

	// Removing one listener keeps the room subscribed.
	remove1()
	assert.Empty(t, tr.leaves())
	assert.Equal(t, 1, r.ListenerCount("price:TOKEN"))

	// The last removal leaves the room.
	remove2()
	assert.Equal(t, []string{"price:TOKEN"}, tr.leaves())
	assert.Equal(t, 0, r.ListenerCount("price:TOKEN"))
}

func TestRouterOnPropagatesSubscribeFailure(t *testing.T) {
	tr := &fakeTransport{subscribeErr: assert.AnError}
	r := New(tr, nil, nil)

	_, err := r.On("price:TOKEN", func(json.RawMessage) {})
	require.Error(t, err)
	assert.Equal(t, 0, r.ListenerCount("price:TOKEN"))
}

func TestRouterRemoveIsScopedToOneListener(t *testing.T) {
	r, _ := newTestRouter(t)

	var first, second int
	remove1, err := r.On("stats:token:TOKEN", func(json.RawMessage) { first++ })
	require.NoError(t, err)
	_, err = r.On("stats:token:TOKEN", func(json.RawMessage) { second++ })
	require.NoError(t, err)

	r.Dispatch(messageFrame("stats:token:TOKEN", `{"holders":10}`))
	remove1()
	remove1() // double removal is harmless
	r.Dispatch(messageFrame("stats:token:TOKEN", `{"holders":11}`))

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestRouterArrayFanOutPreservesOrder(t *testing.T) {
	r, _ := newTestRouter(t)

	var got []string
	_, err := r.On("transaction:TOKEN", func(data json.RawMessage) {
		var p struct {
			Tx string `json:"tx"`
		}
		require.NoError(t, json.Unmarshal(data, &p))
		got = append(got, p.Tx)
	})
	require.NoError(t, err)

	r.Dispatch(messageFrame("transaction:TOKEN", `[{"tx":"a"},{"tx":"b"},{"tx":"c"}]`))

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRouterScalarPayloadDeliveredOnce(t *testing.T) {
	r, _ := newTestRouter(t)

	var calls int
	_, err := r.On("price:TOKEN", func(json.RawMessage) { calls++ })
	require.NoError(t, err)

	r.Dispatch(messageFrame("price:TOKEN", `{"price":1.25,"token":"TOKEN"}`))

	assert.Equal(t, 1, calls)
}

func TestRouterDedupsSameTransactionWithinSession(t *testing.T) {
	r, _ := newTestRouter(t)

	var calls int
	_, err := r.On("transaction:TOKEN", func(json.RawMessage) { calls++ })
	require.NoError(t, err)

	r.Dispatch(messageFrame("transaction:TOKEN", `{"tx":"sig-1","amount":5}`))
	r.Dispatch(messageFrame("transaction:TOKEN", `{"tx":"sig-1","amount":5}`))
	assert.Equal(t, 1, calls)

	// A fresh session starts with an empty dedup scope.
	r.Reset()
	r.Dispatch(messageFrame("transaction:TOKEN", `{"tx":"sig-1","amount":5}`))
	assert.Equal(t, 2, calls)
}

func TestRouterDedupsPerArrayElement(t *testing.T) {
	r, _ := newTestRouter(t)

	var got []string
	_, err := r.On("transaction:TOKEN", func(data json.RawMessage) {
		var p struct {
			Tx string `json:"tx"`
		}
		require.NoError(t, json.Unmarshal(data, &p))
		got = append(got, p.Tx)
	})
	require.NoError(t, err)

	r.Dispatch(messageFrame("transaction:TOKEN", `[{"tx":"a"},{"tx":"b"}]`))
	r.Dispatch(messageFrame("transaction:TOKEN", `[{"tx":"b"},{"tx":"c"}]`))

	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestRouterDerivedTokenPriceRouting(t *testing.T) {
	r, _ := newTestRouter(t)

	var literal, derived int
	_, err := r.On("price:POOL_1", func(json.RawMessage) { literal++ })
	require.NoError(t, err)
	_, err = r.On("price-by-token:TOKEN_A", func(json.RawMessage) { derived++ })
	require.NoError(t, err)

	// One server-side pool room keeps representing the token's primary
	// price; the payload token drives the extra delivery.
	r.Dispatch(messageFrame("price:POOL_1", `{"price":0.5,"token":"TOKEN_A"}`))

	assert.Equal(t, 1, literal)
	assert.Equal(t, 1, derived)
}

func TestRouterDerivedAggregatedPriceRouting(t *testing.T) {
	r, _ := newTestRouter(t)

	var derived int
	_, err := r.On("price-by-token:TOKEN_A:aggregated", func(json.RawMessage) { derived++ })
	require.NoError(t, err)

	r.Dispatch(messageFrame("price-aggregated:TOKEN_A", `{"price":0.75,"token":"TOKEN_A"}`))

	assert.Equal(t, 1, derived)
}

func TestRouterDerivedKeyIsNotRewrittenAgain(t *testing.T) {
	r, _ := newTestRouter(t)

	var calls int
	_, err := r.On("price-by-token:TOKEN_A", func(json.RawMessage) { calls++ })
	require.NoError(t, err)

	// A frame already on the derived key must not double-deliver.
	r.Dispatch(messageFrame("price-by-token:TOKEN_A", `{"price":0.5,"token":"TOKEN_A"}`))

	assert.Equal(t, 1, calls)
}

func TestRouterIgnoresPayloadWithoutToken(t *testing.T) {
	r, _ := newTestRouter(t)

	var derived int
	_, err := r.On("price-by-token:TOKEN_A", func(json.RawMessage) { derived++ })
	require.NoError(t, err)

	r.Dispatch(messageFrame("price:POOL_1", `{"price":0.5}`))

	assert.Equal(t, 0, derived)
}

func TestDedupFilterBoundedAndResettable(t *testing.T) {
	f := NewDedupFilter(2, 0)

	assert.False(t, f.Seen("a"))
	assert.True(t, f.Seen("a"))
	assert.False(t, f.Seen(""))
	assert.False(t, f.Seen(""))

	// Capacity pressure evicts the oldest id.
	assert.False(t, f.Seen("b"))
	assert.False(t, f.Seen("c"))
	assert.False(t, f.Seen("a"))

	f.Reset()
	assert.Equal(t, 0, f.Len())
	assert.False(t, f.Seen("c"))
}
