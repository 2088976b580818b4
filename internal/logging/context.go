package logging

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// GenerateTraceID generates a new trace ID.
func GenerateTraceID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext retrieves the logger from context, falling back to Default().
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext returns a context carrying the given logger.
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// WithTraceContext attaches a fresh trace id to ctx and returns a logger for it.
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = NewContext(newCtx, l)
	return newCtx, l
}

// SignalContext creates a logger context for the signal engine.
func SignalContext(symbol, side string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol": symbol,
		"side":   side,
	}).WithComponent("signal")
}

// OrderContext creates a logger context for order operations.
func OrderContext(orderID int64, symbol, side, orderType string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"order_id":   orderID,
		"symbol":     symbol,
		"side":       side,
		"order_type": orderType,
	}).WithComponent("order")
}

// PositionContext creates a logger context for position operations.
func PositionContext(symbol, side string, entryPrice, quantity float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":      symbol,
		"side":        side,
		"entry_price": entryPrice,
		"quantity":    quantity,
	}).WithComponent("position")
}

// WebSocketContext creates a logger context for WebSocket operations.
func WebSocketContext(symbol, stream string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol": symbol,
		"stream": stream,
	}).WithComponent("websocket")
}

// GatewayContext creates a logger context for exchange gateway calls,
// redacting fields that must never reach logs.
func GatewayContext(endpoint string, params map[string]interface{}) *Logger {
	l := Default().WithField("endpoint", endpoint).WithComponent("gateway")
	for k, v := range params {
		if k == "signature" || k == "apiKey" {
			continue
		}
		l = l.WithField(k, v)
	}
	return l
}
