package models

import (
	"encoding/json"
	"strings"
	"time"
)

// TradeType identifies the side of a trade event.
type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// TradeEvent represents a single decoded trade from the binary event stream.
// Instances are immutable once produced by the decoder.
type TradeEvent struct {
	Wallet   string    `json:"wallet"`
	Amount   float64   `json:"amount"`
	PriceUsd float64   `json:"price_usd"`
	Volume   float64   `json:"volume"`
	Type     TradeType `json:"type"`
	TimeMs   uint64    `json:"time_ms"`
}

// Time returns the trade timestamp as a time.Time.
func (te *TradeEvent) Time() time.Time {
	return time.UnixMilli(int64(te.TimeMs))
}

// IsBuy returns true if this is a buy trade.
func (te *TradeEvent) IsBuy() bool {
	return te.Type == TradeBuy
}

// IsSell returns true if this is a sell trade.
func (te *TradeEvent) IsSell() bool {
	return te.Type == TradeSell
}

// ChannelType identifies one of the two physical socket channels.
type ChannelType string

const (
	ChannelMain        ChannelType = "main"
	ChannelTransaction ChannelType = "transaction"
)

// ChannelForRoom resolves which socket channel a room is delivered on.
// Any room key containing "transaction" rides the transaction channel,
// everything else rides the main channel.
func ChannelForRoom(room string) ChannelType {
	if strings.Contains(room, "transaction") {
		return ChannelTransaction
	}
	return ChannelMain
}

// ConnectionState describes the transport lifecycle. It is owned
// exclusively by the connection transport.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

// String returns the string representation of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Frame types used on the wire.
const (
	FrameJoin    = "join"
	FrameLeave   = "leave"
	FrameMessage = "message"
)

// RawFrame is the wire-level envelope exchanged with the server. It is
// never exposed past the subscription router.
type RawFrame struct {
	Type string          `json:"type"`
	Room string          `json:"room"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ToJSON serializes the frame for transmission as a text frame.
func (f *RawFrame) ToJSON() ([]byte, error) {
	return json.Marshal(f)
}

// TimeWindow is a fixed look-back duration used to bucket trade events
// for windowed statistics.
type TimeWindow struct {
	Seconds int64  `json:"seconds"`
	Name    string `json:"name"`
}

// Duration returns the window length as a time.Duration.
func (w TimeWindow) Duration() time.Duration {
	return time.Duration(w.Seconds) * time.Second
}

// DefaultTimeWindows returns the static ascending timeframe boundary list.
// Callers must keep the list ascending; the aggregator relies on it to
// early-skip boundaries an event cannot belong to.
func DefaultTimeWindows() []TimeWindow {
	return []TimeWindow{
		{Seconds: 60, Name: "1min"},
		{Seconds: 300, Name: "5min"},
		{Seconds: 900, Name: "15min"},
		{Seconds: 1800, Name: "30min"},
		{Seconds: 3600, Name: "1hour"},
		{Seconds: 14400, Name: "4hour"},
		{Seconds: 86400, Name: "24hour"},
	}
}

// TimeframeStats holds the computed statistics for one timeframe.
type TimeframeStats struct {
	BuyCount           int64   `json:"buy_count"`
	SellCount          int64   `json:"sell_count"`
	BuyVolume          float64 `json:"buy_volume"`
	SellVolume         float64 `json:"sell_volume"`
	TotalVolume        float64 `json:"total_volume"`
	Transactions       int64   `json:"transactions"`
	UniqueBuyers       int     `json:"unique_buyers"`
	UniqueSellers      int     `json:"unique_sellers"`
	UniqueWallets      int     `json:"unique_wallets"`
	InitialPrice       float64 `json:"initial_price"`
	LastPrice          float64 `json:"last_price"`
	PriceChangePercent float64 `json:"price_change_percent"`
}

// AggregatedStats maps a timeframe label to its statistics. A timeframe
// absent from the map had zero qualifying events.
type AggregatedStats map[string]*TimeframeStats

// ToJSON serializes the stats map.
func (as AggregatedStats) ToJSON() ([]byte, error) {
	return json.Marshal(as)
}
