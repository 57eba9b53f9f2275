package aggregation

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/solanatracker/data-api-sdk/models"
)

// Calculator computes multi-timeframe trading statistics over a decoded
// event sequence in a single pass. The timeframe boundary list must be
// ascending so each event can early-skip the boundaries it falls outside.
type Calculator struct {
	windows []models.TimeWindow
}

// NewCalculator creates a calculator for the given timeframe list.
func NewCalculator(windows []models.TimeWindow) (*Calculator, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("no time windows configured")
	}
	var prev int64
	for i, w := range windows {
		if w.Seconds <= 0 {
			return nil, fmt.Errorf("time window %d has invalid duration: %ds", i, w.Seconds)
		}
		if w.Name == "" {
			return nil, fmt.Errorf("time window %d has empty name", i)
		}
		if w.Seconds <= prev {
			return nil, fmt.Errorf("time window %d (%ds) breaks ascending order", i, w.Seconds)
		}
		prev = w.Seconds
	}
	return &Calculator{windows: windows}, nil
}

// windowAccum carries the per-timeframe running state during a pass.
type windowAccum struct {
	stats   models.TimeframeStats
	buyers  map[string]struct{}
	sellers map[string]struct{}
	wallets map[string]struct{}
}

func newWindowAccum() *windowAccum {
	return &windowAccum{
		buyers:  make(map[string]struct{}),
		sellers: make(map[string]struct{}),
		wallets: make(map[string]struct{}),
	}
}

func (wa *windowAccum) add(ev models.TradeEvent) {
	if wa.stats.Transactions == 0 {
		wa.stats.InitialPrice = ev.PriceUsd
	}
	// Last price follows processing order, which is the order events were
	// received in, not necessarily chronological order.
	wa.stats.LastPrice = ev.PriceUsd
	wa.stats.Transactions++
	wa.stats.TotalVolume += ev.Volume

	wa.wallets[ev.Wallet] = struct{}{}
	if ev.IsBuy() {
		wa.stats.BuyCount++
		wa.stats.BuyVolume += ev.Volume
		wa.buyers[ev.Wallet] = struct{}{}
	} else {
		wa.stats.SellCount++
		wa.stats.SellVolume += ev.Volume
		wa.sellers[ev.Wallet] = struct{}{}
	}
}

// ChunkOptions controls the cooperative chunked aggregation mode.
type ChunkOptions struct {
	// ChunkSize bounds how many events are processed between yields.
	// Zero selects DefaultChunkSize.
	ChunkSize int

	// OnProgress, when set, receives the fraction of events processed
	// after each chunk, ending at 1.0.
	OnProgress func(fraction float64)

	// Now overrides the reference time for window boundaries. Zero value
	// means time.Now().
	Now time.Time
}

// DefaultChunkSize bounds chunk length when ChunkOptions.ChunkSize is zero.
const DefaultChunkSize = 5000

// Aggregate computes statistics for all events in one synchronous pass.
// currentPrice is the externally supplied price used for the percentage
// change against each timeframe's last observed price.
func (c *Calculator) Aggregate(events []models.TradeEvent, currentPrice float64) models.AggregatedStats {
	return c.AggregateAt(events, currentPrice, time.Now())
}

// AggregateAt is Aggregate with an explicit reference time.
func (c *Calculator) AggregateAt(events []models.TradeEvent, currentPrice float64, now time.Time) models.AggregatedStats {
	state := make([]*windowAccum, len(c.windows))
	nowMs := uint64(now.UnixMilli())
	for _, ev := range events {
		c.apply(state, ev, nowMs)
	}
	return c.finalize(state, currentPrice)
}

// AggregateChunked computes the same statistics as Aggregate but processes
// bounded-size chunks, yielding the processor between chunks and reporting
// fractional progress. Intended for histories of hundreds of thousands of
// records that must not monopolize a shared thread.
func (c *Calculator) AggregateChunked(ctx context.Context, events []models.TradeEvent, currentPrice float64, opts ChunkOptions) (models.AggregatedStats, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	nowMs := uint64(now.UnixMilli())

	state := make([]*windowAccum, len(c.windows))
	total := len(events)

	for start := 0; start < total; start += chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + chunkSize
		if end > total {
			end = total
		}
		for _, ev := range events[start:end] {
			c.apply(state, ev, nowMs)
		}

		if opts.OnProgress != nil {
			opts.OnProgress(float64(end) / float64(total))
		}
		if end < total {
			runtime.Gosched()
		}
	}

	if total == 0 && opts.OnProgress != nil {
		opts.OnProgress(1.0)
	}

	return c.finalize(state, currentPrice), nil
}

// apply folds one event into every timeframe it falls inside. Boundaries
// are ascending, so once one admits the event all later ones do too.
func (c *Calculator) apply(state []*windowAccum, ev models.TradeEvent, nowMs uint64) {
	var agoSec uint64
	if nowMs > ev.TimeMs {
		agoSec = (nowMs - ev.TimeMs) / 1000
	}

	first := len(c.windows)
	for i, w := range c.windows {
		if agoSec <= uint64(w.Seconds) {
			first = i
			break
		}
	}

	for i := first; i < len(c.windows); i++ {
		if state[i] == nil {
			state[i] = newWindowAccum()
		}
		state[i].add(ev)
	}
}

// finalize builds the result map, omitting timeframes with no events.
func (c *Calculator) finalize(state []*windowAccum, currentPrice float64) models.AggregatedStats {
	result := make(models.AggregatedStats)
	for i, wa := range state {
		if wa == nil || wa.stats.Transactions == 0 {
			continue
		}
		stats := wa.stats
		stats.UniqueBuyers = len(wa.buyers)
		stats.UniqueSellers = len(wa.sellers)
		stats.UniqueWallets = len(wa.wallets)
		if stats.LastPrice != 0 {
			stats.PriceChangePercent = (currentPrice - stats.LastPrice) / stats.LastPrice * 100
		}
		result[c.windows[i].Name] = &stats
	}
	return result
}
