// Package exchange implements the typed exchange gateway of spec §4.5:
// signed/unsigned REST operations, a symbol precision cache, grid
// rounding and formatting, and the bounded retry policy for protective
// orders. Grounded on the teacher's internal/binance/futures_client.go
// (HMAC signing, retry-loop shape, endpoint set) trimmed to exactly
// the operations the strategy runtime needs.
package exchange

import "time"

// Side is the exchange order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionSide distinguishes hedge-mode legs.
type PositionSide string

const (
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
	PositionSideBoth  PositionSide = "BOTH"
)

// OrderKind is the subset of order types the strategies place.
type OrderKind string

const (
	OrderKindMarket      OrderKind = "MARKET"
	OrderKindStopMarket  OrderKind = "STOP_MARKET"
	OrderKindTakeProfit  OrderKind = "TAKE_PROFIT"
	OrderKindLimit       OrderKind = "LIMIT"
)

// OrderStatus mirrors the exchange's order lifecycle states.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// OrderRef is the "Order reference" of spec §3: an entry tracked in
// strategy state.
type OrderRef struct {
	OrderID      int64
	Symbol       string
	Side         Side
	PositionSide PositionSide
	Kind         OrderKind
	Qty          string
	StopPrice    string
	LimitPrice   string
	Status       OrderStatus
	AvgPrice     float64
	ExecutedQty  float64
}

// PlaceParams describes an order placement request. Price/StopPrice
// are pre-formatted decimal strings produced by Precision — callers
// must never send a raw, unformatted float.
type PlaceParams struct {
	Symbol           string
	Side             Side
	PositionSide     PositionSide
	Kind             OrderKind
	Qty              string
	Price            string // LIMIT / TAKE_PROFIT limit price
	StopPrice        string // STOP_MARKET / TAKE_PROFIT trigger price
	ReduceOnly       bool
	ClientOrderID    string
}

// Position is a symbol/position_side's current exchange-side exposure.
type Position struct {
	Symbol       string
	PositionSide PositionSide
	EntryPrice   float64
	PositionAmt  float64 // signed: positive long exposure, positive magnitude for short leg in hedge mode
}

// Candle is the REST/stream kline shape used by market-data ingest.
type Candle struct {
	OpenTime int64
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	CloseTime int64
	IsClosed  bool
}

// SymbolPrecision is the cached grid for a symbol.
type SymbolPrecision struct {
	TickSize string
	StepSize string
	MinQty   string
}

// RetryConfig controls the bounded protective-order retry of spec §4.5.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration // multiplied by attempt number (2n seconds)
}

// DefaultProtectiveRetry is the spec-mandated policy: 5 attempts,
// linearly increasing delay of 2*n seconds between attempts.
var DefaultProtectiveRetry = RetryConfig{MaxAttempts: 5, BaseDelay: 2 * time.Second}
