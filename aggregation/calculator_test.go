package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solanatracker/data-api-sdk/models"
)

func msAgo(now time.Time, d time.Duration) uint64 {
	return uint64(now.Add(-d).UnixMilli())
}

func twoWindowCalculator(t *testing.T) *Calculator {
	t.Helper()
	calc, err := NewCalculator([]models.TimeWindow{
		{Seconds: 60, Name: "1min"},
		{Seconds: 300, Name: "5min"},
	})
	require.NoError(t, err)
	return calc
}

func TestNewCalculatorValidation(t *testing.T) {
	_, err := NewCalculator(nil)
	assert.Error(t, err)

	_, err = NewCalculator([]models.TimeWindow{{Seconds: 0, Name: "bad"}})
	assert.Error(t, err)

	_, err = NewCalculator([]models.TimeWindow{{Seconds: 60, Name: ""}})
	assert.Error(t, err)

	// Boundaries out of ascending order break the early-skip pass.
	_, err = NewCalculator([]models.TimeWindow{
		{Seconds: 300, Name: "5min"},
		{Seconds: 60, Name: "1min"},
	})
	assert.Error(t, err)

	_, err = NewCalculator(models.DefaultTimeWindows())
	assert.NoError(t, err)
}

func TestAggregateBucketsByTimeframe(t *testing.T) {
	calc := twoWindowCalculator(t)
	now := time.Now()

	events := []models.TradeEvent{
		{Wallet: "w1", Volume: 10, PriceUsd: 2.5, Type: models.TradeBuy, TimeMs: msAgo(now, 30*time.Second)},
		{Wallet: "w2", Volume: 20, PriceUsd: 2.5, Type: models.TradeBuy, TimeMs: msAgo(now, 200*time.Second)},
		{Wallet: "w3", Volume: 30, PriceUsd: 2.5, Type: models.TradeBuy, TimeMs: msAgo(now, 200*time.Second)},
	}

	stats := calc.AggregateAt(events, 2.5, now)

	require.Contains(t, stats, "1min")
	require.Contains(t, stats, "5min")

	assert.Equal(t, int64(1), stats["1min"].Transactions)
	assert.Equal(t, int64(3), stats["5min"].Transactions)
	assert.Equal(t, int64(3), stats["5min"].BuyCount)
	assert.Equal(t, int64(0), stats["5min"].SellCount)
	assert.InDelta(t, 60.0, stats["5min"].TotalVolume, 1e-9)
	assert.Equal(t, 3, stats["5min"].UniqueBuyers)
	assert.Equal(t, 3, stats["5min"].UniqueWallets)
	assert.Equal(t, 0, stats["5min"].UniqueSellers)
}

func TestAggregateOmitsEmptyTimeframes(t *testing.T) {
	calc := twoWindowCalculator(t)
	now := time.Now()

	// Single event older than a minute: the 1min window has no matches
	// and must be absent from the result, not reported as zeros.
	events := []models.TradeEvent{
		{Wallet: "w1", Volume: 10, PriceUsd: 1.0, Type: models.TradeSell, TimeMs: msAgo(now, 2*time.Minute)},
	}

	stats := calc.AggregateAt(events, 1.0, now)
	assert.NotContains(t, stats, "1min")
	assert.Contains(t, stats, "5min")
}

func TestAggregateNoEvents(t *testing.T) {
	calc := twoWindowCalculator(t)
	stats := calc.Aggregate(nil, 1.0)
	assert.Empty(t, stats)
}

func TestAggregateBuySellSplit(t *testing.T) {
	calc := twoWindowCalculator(t)
	now := time.Now()

	events := []models.TradeEvent{
		{Wallet: "w1", Volume: 10, PriceUsd: 1.0, Type: models.TradeBuy, TimeMs: msAgo(now, 10*time.Second)},
		{Wallet: "w1", Volume: 5, PriceUsd: 1.1, Type: models.TradeSell, TimeMs: msAgo(now, 20*time.Second)},
		{Wallet: "w2", Volume: 15, PriceUsd: 1.2, Type: models.TradeSell, TimeMs: msAgo(now, 30*time.Second)},
	}

	stats := calc.AggregateAt(events, 1.2, now)
	oneMin := stats["1min"]
	require.NotNil(t, oneMin)

	assert.Equal(t, int64(1), oneMin.BuyCount)
	assert.Equal(t, int64(2), oneMin.SellCount)
	assert.InDelta(t, 10.0, oneMin.BuyVolume, 1e-9)
	assert.InDelta(t, 20.0, oneMin.SellVolume, 1e-9)
	assert.InDelta(t, 30.0, oneMin.TotalVolume, 1e-9)
	assert.Equal(t, 1, oneMin.UniqueBuyers)
	assert.Equal(t, 2, oneMin.UniqueSellers)
	assert.Equal(t, 2, oneMin.UniqueWallets)
}

func TestAggregatePriceBookkeepingFollowsIterationOrder(t *testing.T) {
	calc := twoWindowCalculator(t)
	now := time.Now()

	// Input order is not chronological. Initial price is the first event
	// in iteration order, last price the most recently processed one.
	events := []models.TradeEvent{
		{Wallet: "w1", Volume: 1, PriceUsd: 3.0, Type: models.TradeBuy, TimeMs: msAgo(now, 10*time.Second)},
		{Wallet: "w2", Volume: 1, PriceUsd: 1.0, Type: models.TradeBuy, TimeMs: msAgo(now, 50*time.Second)},
		{Wallet: "w3", Volume: 1, PriceUsd: 2.0, Type: models.TradeBuy, TimeMs: msAgo(now, 30*time.Second)},
	}

	stats := calc.AggregateAt(events, 4.0, now)
	oneMin := stats["1min"]
	require.NotNil(t, oneMin)

	assert.InDelta(t, 3.0, oneMin.InitialPrice, 1e-9)
	assert.InDelta(t, 2.0, oneMin.LastPrice, 1e-9)
	assert.InDelta(t, 100.0, oneMin.PriceChangePercent, 1e-9)
}

func TestAggregateChunkedMatchesSync(t *testing.T) {
	calc, err := NewCalculator(models.DefaultTimeWindows())
	require.NoError(t, err)
	now := time.Now()

	events := make([]models.TradeEvent, 0, 1000)
	for i := 0; i < 1000; i++ {
		tradeType := models.TradeBuy
		if i%3 == 0 {
			tradeType = models.TradeSell
		}
		events = append(events, models.TradeEvent{
			Wallet:   string(rune('a' + i%26)),
			Volume:   float64(i % 7),
			PriceUsd: 1.0 + float64(i%11)/10,
			Type:     tradeType,
			TimeMs:   msAgo(now, time.Duration(i)*90*time.Second),
		})
	}

	want := calc.AggregateAt(events, 1.5, now)

	var progress []float64
	got, err := calc.AggregateChunked(context.Background(), events, 1.5, ChunkOptions{
		ChunkSize: 128,
		Now:       now,
		OnProgress: func(f float64) {
			progress = append(progress, f)
		},
	})
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NotEmpty(t, progress)
	assert.InDelta(t, 1.0, progress[len(progress)-1], 1e-9)
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}
}

func TestAggregateChunkedCancellation(t *testing.T) {
	calc := twoWindowCalculator(t)
	now := time.Now()

	events := make([]models.TradeEvent, 100)
	for i := range events {
		events[i] = models.TradeEvent{Wallet: "w", Volume: 1, PriceUsd: 1, Type: models.TradeBuy, TimeMs: msAgo(now, time.Second)}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := calc.AggregateChunked(ctx, events, 1.0, ChunkOptions{ChunkSize: 10, Now: now})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAggregateChunkedEmptyInput(t *testing.T) {
	calc := twoWindowCalculator(t)

	called := false
	stats, err := calc.AggregateChunked(context.Background(), nil, 1.0, ChunkOptions{
		OnProgress: func(f float64) {
			called = true
			assert.InDelta(t, 1.0, f, 1e-9)
		},
	})
	require.NoError(t, err)
	assert.Empty(t, stats)
	assert.True(t, called)
}
