package statusserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nirre55/futures-trading-bot/internal/signal"
	"github.com/nirre55/futures-trading-bot/internal/strategy"
	"github.com/nirre55/futures-trading-bot/internal/userdata"
)

type fakeStrategy struct{}

func (fakeStrategy) OnSignal(ctx context.Context, sig signal.Signal) error { return nil }
func (fakeStrategy) OnClosedCandle(ctx context.Context, cctx strategy.ClosedCandleContext) error {
	return nil
}
func (fakeStrategy) OnOrderUpdate(ctx context.Context, upd userdata.OrderUpdate) error { return nil }
func (fakeStrategy) CanAcceptSignal(side string) bool                                 { return true }
func (fakeStrategy) HasOutstandingTP() bool                                           { return false }
func (fakeStrategy) Snapshot() map[string]interface{}                                 { return map[string]interface{}{"ok": true} }
func (fakeStrategy) Shutdown(ctx context.Context)                                     {}

type fakeProvider struct {
	strat  strategy.Strategy
	engine *signal.Engine
}

func (p fakeProvider) Strategy() strategy.Strategy { return p.strat }
func (p fakeProvider) Engine() *signal.Engine      { return p.engine }

func newTestServer() *Server {
	engine := signal.New(signal.Config{}, nil)
	provider := fakeProvider{strat: fakeStrategy{}, engine: engine}
	return New(Config{Host: "127.0.0.1", Port: 0}, "BTCUSDC", provider)
}

func TestHealthzReturnsOK(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("expected body to mention ok, got %s", rec.Body.String())
	}
}

func TestStatusReportsStrategySnapshotAndSignalState(t *testing.T) {
	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "BTCUSDC") || !strings.Contains(body, "WAITING") {
		t.Fatalf("expected symbol and signal state in response, got %s", body)
	}
}
