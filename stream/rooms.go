package stream

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrCurvePercentageRange is returned when a curve-progress threshold is
// outside [0,100].
var ErrCurvePercentageRange = errors.New("curve percentage must be within [0, 100]")

// Room-key builders. Each subscription family resolves to exactly one
// canonical room key; the keys stay string-typed for wire compatibility.

// TokenPriceRoom is the primary-pool price of a token. The server keeps
// the room valid across pool switches via derived routing.
func TokenPriceRoom(token string) string {
	return "price-by-token:" + token
}

// TokenPriceAggregatedRoom is the cross-pool aggregated price of a token.
func TokenPriceAggregatedRoom(token string) string {
	return "price-by-token:" + token + ":aggregated"
}

// TokenPriceAllPoolsRoom carries price updates for every pool of a token.
func TokenPriceAllPoolsRoom(token string) string {
	return "price:" + token
}

// PoolPriceRoom is the price of one specific pool.
func PoolPriceRoom(pool string) string {
	return "price:" + pool
}

// TokenTransactionsRoom carries all trades of a token.
func TokenTransactionsRoom(token string) string {
	return "transaction:" + token
}

// PoolTransactionsRoom carries the trades of one pool of a token.
func PoolTransactionsRoom(token, pool string) string {
	return "transaction:" + token + ":" + pool
}

// WalletTransactionsRoom carries the trades of a wallet.
func WalletTransactionsRoom(wallet string) string {
	return "wallet:" + wallet
}

// WalletBalanceRoom carries balance updates for a wallet.
func WalletBalanceRoom(wallet string) string {
	return "wallet:" + wallet + ":balance"
}

// WalletTokenBalanceRoom carries balance updates for one token held by a
// wallet.
func WalletTokenBalanceRoom(wallet, token string) string {
	return "wallet:" + wallet + ":" + token + ":balance"
}

// TokenStatsRoom carries live rolling statistics for a token.
func TokenStatsRoom(token string) string {
	return "stats:token:" + token
}

// PoolStatsRoom carries live rolling statistics for a pool.
func PoolStatsRoom(pool string) string {
	return "stats:pool:" + pool
}

// CurveProgressRoom notifies when a market's bonding curve crosses the
// given percentage. The threshold is validated at construction, not per
// delivery.
func CurveProgressRoom(market string, percentage float64) (string, error) {
	if percentage < 0 || percentage > 100 {
		return "", fmt.Errorf("%w: got %s", ErrCurvePercentageRange,
			strconv.FormatFloat(percentage, 'f', -1, 64))
	}
	return market + ":curve:" + strconv.FormatFloat(percentage, 'f', -1, 64), nil
}
