package exchange

import "context"

// Gateway is the typed operation surface spec §4.5 requires. The
// strategy runtime and the ingest loops depend on this interface, not
// on *Client directly, so tests can substitute mockexchange.Exchange.
// A gateway outlives every strategy it is handed to (spec §9's
// "Cycles and weak references" note) -- strategies hold a non-owning
// reference constructed after both exist.
type Gateway interface {
	GetBalance(ctx context.Context) (float64, error)
	GetSymbolPrecision(ctx context.Context, symbol string) (SymbolPrecision, error)
	ReloadSymbolPrecision(symbol string)
	PlaceOrder(ctx context.Context, p PlaceParams) (*OrderRef, error)
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	GetOrderStatus(ctx context.Context, symbol string, orderID int64) (*OrderRef, error)
	GetPosition(ctx context.Context, symbol string, positionSide PositionSide) (*Position, error)
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetListenKey(ctx context.Context) (string, error)
	KeepAliveListenKey(ctx context.Context) error
	CloseListenKey(ctx context.Context) error
}

var _ Gateway = (*Client)(nil)
