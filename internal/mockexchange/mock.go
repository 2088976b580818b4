// Package mockexchange provides a scriptable in-memory exchange
// implementing exchange.Gateway, grounded on the teacher's
// internal/binance/futures_mock_client.go. Used to drive the
// deterministic end-to-end scenarios of spec §8 (S1-S6) without any
// network I/O.
package mockexchange

import (
	"context"
	"errors"
	"sync"

	"github.com/nirre55/futures-trading-bot/internal/exchange"
)

// Exchange is an in-memory exchange.Gateway. Every field is guarded by
// mu; tests script behavior by mutating Precision/Positions/Balance
// and by setting the PlaceOrderFunc hook before driving events.
type Exchange struct {
	mu sync.Mutex

	Balance    float64
	Precision  map[string]exchange.SymbolPrecision
	Positions  map[string]*exchange.Position // key: symbol+positionSide
	Orders     map[int64]*exchange.OrderRef
	NextOrder  int64
	OpenOrders map[int64]bool

	// PlaceOrderFunc, when set, overrides default placement behavior
	// (used by S6 to simulate sustained placement failure).
	PlaceOrderFunc func(ctx context.Context, p exchange.PlaceParams) (*exchange.OrderRef, error)
}

// New constructs an empty mock exchange.
func New() *Exchange {
	return &Exchange{
		Precision:  make(map[string]exchange.SymbolPrecision),
		Positions:  make(map[string]*exchange.Position),
		Orders:     make(map[int64]*exchange.OrderRef),
		OpenOrders: make(map[int64]bool),
	}
}

func (e *Exchange) GetBalance(ctx context.Context) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Balance, nil
}

func (e *Exchange) GetSymbolPrecision(ctx context.Context, symbol string) (exchange.SymbolPrecision, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.Precision[symbol]
	if !ok {
		return exchange.SymbolPrecision{}, errors.New("symbol precision not configured in mock")
	}
	return p, nil
}

func (e *Exchange) ReloadSymbolPrecision(symbol string) {}

// PlaceOrder records the order and, unless PlaceOrderFunc is set,
// synthesizes an immediate FILLED MARKET or NEW resting order.
func (e *Exchange) PlaceOrder(ctx context.Context, p exchange.PlaceParams) (*exchange.OrderRef, error) {
	if e.PlaceOrderFunc != nil {
		return e.PlaceOrderFunc(ctx, p)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.NextOrder++
	id := e.NextOrder

	status := exchange.OrderStatusNew
	if p.Kind == exchange.OrderKindMarket {
		status = exchange.OrderStatusFilled
	}

	ref := &exchange.OrderRef{
		OrderID:      id,
		Symbol:       p.Symbol,
		Side:         p.Side,
		PositionSide: p.PositionSide,
		Kind:         p.Kind,
		Qty:          p.Qty,
		StopPrice:    p.StopPrice,
		LimitPrice:   p.Price,
		Status:       status,
	}
	e.Orders[id] = ref
	if status != exchange.OrderStatusFilled {
		e.OpenOrders[id] = true
	}
	return ref, nil
}

func (e *Exchange) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ref, ok := e.Orders[orderID]; ok {
		ref.Status = exchange.OrderStatusCanceled
	}
	delete(e.OpenOrders, orderID)
	return nil
}

func (e *Exchange) GetOrderStatus(ctx context.Context, symbol string, orderID int64) (*exchange.OrderRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ref, ok := e.Orders[orderID]
	if !ok {
		return nil, errors.New("order not found")
	}
	cp := *ref
	return &cp, nil
}

func (e *Exchange) GetPosition(ctx context.Context, symbol string, positionSide exchange.PositionSide) (*exchange.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := symbol + string(positionSide)
	if p, ok := e.Positions[key]; ok {
		cp := *p
		return &cp, nil
	}
	return &exchange.Position{Symbol: symbol, PositionSide: positionSide}, nil
}

// SetPosition is a test helper to script the position snapshot
// returned by a subsequent GetPosition call.
func (e *Exchange) SetPosition(symbol string, positionSide exchange.PositionSide, entryPrice, amt float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := symbol + string(positionSide)
	e.Positions[key] = &exchange.Position{Symbol: symbol, PositionSide: positionSide, EntryPrice: entryPrice, PositionAmt: amt}
}

func (e *Exchange) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Candle, error) {
	return nil, nil
}

func (e *Exchange) GetListenKey(ctx context.Context) (string, error) { return "mock-listen-key", nil }
func (e *Exchange) KeepAliveListenKey(ctx context.Context) error     { return nil }
func (e *Exchange) CloseListenKey(ctx context.Context) error         { return nil }

// OpenOrderCount returns how many orders are currently tracked as open
// -- used to assert teardown completeness (spec §8).
func (e *Exchange) OpenOrderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.OpenOrders)
}

var _ exchange.Gateway = (*Exchange)(nil)
