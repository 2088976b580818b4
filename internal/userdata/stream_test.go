package userdata

import (
	"context"
	"testing"

	"github.com/nirre55/futures-trading-bot/internal/exchange"
)

type stubGateway struct {
	keys      []string
	keepAlive int
}

func (g *stubGateway) GetListenKey(ctx context.Context) (string, error) {
	g.keys = append(g.keys, "key")
	return "key", nil
}
func (g *stubGateway) KeepAliveListenKey(ctx context.Context) error { g.keepAlive++; return nil }
func (g *stubGateway) CloseListenKey(ctx context.Context) error    { return nil }

func newTestStream() (*Stream, *stubGateway) {
	gw := &stubGateway{}
	reconnect := ReconnectionConfig{Enabled: true, MaxAttempts: 5, DelaySeconds: 5, TimeoutSeconds: 60}
	return New("wss://example.invalid", gw, make(chan OrderUpdate, 4), reconnect), gw
}

func TestHandleOrderUpdateNormalizesFields(t *testing.T) {
	s, _ := newTestStream()
	msg := []byte(`{"e":"ORDER_TRADE_UPDATE","o":{"s":"BTCUSDT","S":"BUY","o":"MARKET","X":"FILLED","i":42,"ap":"50000","z":"0.01","ps":"LONG"}}`)
	s.handleMessage(context.Background(), nil, msg)

	select {
	case u := <-s.events:
		if u.OrderID != 42 || u.Status != exchange.OrderStatusFilled || u.ExecutedQty != 0.01 {
			t.Errorf("unexpected normalized update: %+v", u)
		}
	default:
		t.Fatal("expected an OrderUpdate event")
	}
}

func TestHandleMessageIgnoresUnknownEventTypes(t *testing.T) {
	s, _ := newTestStream()
	msg := []byte(`{"e":"MARGIN_CALL"}`)
	s.handleMessage(context.Background(), nil, msg)

	select {
	case u := <-s.events:
		t.Fatalf("expected no event for MARGIN_CALL, got %+v", u)
	default:
	}
}

// TestRunTerminatesAfterMaxAttempts covers spec §5's bounded
// reconnection: after MaxAttempts consecutive dial failures, Run gives
// up and returns an error instead of retrying forever.
func TestRunTerminatesAfterMaxAttempts(t *testing.T) {
	gw := &stubGateway{}
	reconnect := ReconnectionConfig{Enabled: true, MaxAttempts: 2, DelaySeconds: 0, TimeoutSeconds: 5}
	s := New("ws://127.0.0.1:1", gw, make(chan OrderUpdate, 4), reconnect)

	err := s.Run(context.Background())
	if err == nil {
		t.Fatal("expected Run to return an error after exhausting reconnection attempts")
	}
}

func TestRecreateListenKeyReplacesToken(t *testing.T) {
	s, gw := newTestStream()
	s.listenKey = "stale"
	s.recreateListenKey(context.Background())
	if s.listenKey != "key" {
		t.Errorf("expected listen key to be replaced, got %s", s.listenKey)
	}
	if len(gw.keys) != 1 {
		t.Errorf("expected exactly one GetListenKey call, got %d", len(gw.keys))
	}
}
