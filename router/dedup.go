package router

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// defaultDedupCapacity bounds the transaction-id set. Long-lived sessions
// would otherwise grow it without bound.
const defaultDedupCapacity = 65536

// DedupFilter suppresses duplicate trade deliveries within one connection
// session. Reconnection plus at-least-once server delivery can replay the
// same transaction; the filter keeps a bounded LRU of seen ids.
type DedupFilter struct {
	cache *expirable.LRU[string, struct{}]
}

// NewDedupFilter creates a filter holding up to capacity transaction ids.
// A ttl of zero keeps entries until evicted by capacity pressure.
func NewDedupFilter(capacity int, ttl time.Duration) *DedupFilter {
	if capacity <= 0 {
		capacity = defaultDedupCapacity
	}
	return &DedupFilter{
		cache: expirable.NewLRU[string, struct{}](capacity, nil, ttl),
	}
}

// Seen reports whether the transaction id was already delivered this
// session, recording it when new. Empty ids are never deduplicated.
func (f *DedupFilter) Seen(tx string) bool {
	if tx == "" {
		return false
	}
	if _, ok := f.cache.Get(tx); ok {
		return true
	}
	f.cache.Add(tx, struct{}{})
	return false
}

// Reset empties the set. Called on disconnect so the next session starts
// with a clean scope.
func (f *DedupFilter) Reset() {
	f.cache.Purge()
}

// Len returns how many transaction ids are currently tracked.
func (f *DedupFilter) Len() int {
	return f.cache.Len()
}
