package signal

import (
	"testing"

	"github.com/nirre55/futures-trading-bot/internal/indicators"
)

type alwaysOpenGate struct{}

func (alwaysOpenGate) CanAcceptSignal(side string) bool { return true }
func (alwaysOpenGate) HasOutstandingTP() bool            { return false }

func cfg() Config {
	return Config{
		RSIPeriods: []int{7, 14},
		Thresholds: map[int]indicators.Thresholds{
			7:  {Oversold: 30, Overbought: 70},
			14: {Oversold: 30, Overbought: 70},
		},
	}
}

// TestSignalEmissionLong exercises scenario S1: RSI oversold on every
// configured period latches PENDING_LONG, and the next green HA candle
// confirms a LONG signal.
func TestSignalEmissionLong(t *testing.T) {
	e := New(cfg(), alwaysOpenGate{})

	oversold := map[int]indicators.RSIValue{
		7:  {Value: 25, Valid: true},
		14: {Value: 28, Valid: true},
	}
	if sig := e.ProcessClosedCandle(oversold, indicators.ColorRed, 100); sig != nil {
		t.Fatalf("expected no signal while entering PENDING_LONG, got %+v", sig)
	}
	if e.CurrentState() != StatePendingLong {
		t.Fatalf("expected PENDING_LONG, got %s", e.CurrentState())
	}

	sig := e.ProcessClosedCandle(oversold, indicators.ColorGreen, 100)
	if sig == nil {
		t.Fatal("expected a confirmed signal on green HA close")
	}
	if sig.Side != SideLong {
		t.Errorf("expected LONG signal, got %s", sig.Side)
	}
	if e.CurrentState() != StateConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", e.CurrentState())
	}
}

func TestSignalRevertsToWaitingOnWrongColor(t *testing.T) {
	e := New(cfg(), alwaysOpenGate{})
	oversold := map[int]indicators.RSIValue{
		7:  {Value: 25, Valid: true},
		14: {Value: 28, Valid: true},
	}
	e.ProcessClosedCandle(oversold, indicators.ColorRed, 100)
	if sig := e.ProcessClosedCandle(oversold, indicators.ColorRed, 100); sig != nil {
		t.Fatalf("expected nil signal on non-confirming color, got %+v", sig)
	}
	if e.CurrentState() != StateWaiting {
		t.Fatalf("expected reversion to WAITING, got %s", e.CurrentState())
	}
}

func TestSignalGatedByOutstandingTP(t *testing.T) {
	e := New(cfg(), blockingGate{})
	oversold := map[int]indicators.RSIValue{
		7:  {Value: 25, Valid: true},
		14: {Value: 28, Valid: true},
	}
	if sig := e.ProcessClosedCandle(oversold, indicators.ColorGreen, 100); sig != nil {
		t.Fatalf("expected gating to suppress signal, got %+v", sig)
	}
	if e.CurrentState() != StateWaiting {
		t.Fatalf("gated engine must stay WAITING, got %s", e.CurrentState())
	}
}

type blockingGate struct{}

func (blockingGate) CanAcceptSignal(side string) bool { return true }
func (blockingGate) HasOutstandingTP() bool            { return true }

func TestVolumeFilterRejectsBelowMean(t *testing.T) {
	c := cfg()
	c.VolumeValidation = true
	c.VolumeLookback = 3
	e := New(c, alwaysOpenGate{})

	for _, v := range []float64{100, 100, 100} {
		e.RecordVolume(v)
	}

	oversold := map[int]indicators.RSIValue{
		7:  {Value: 25, Valid: true},
		14: {Value: 28, Valid: true},
	}
	e.ProcessClosedCandle(oversold, indicators.ColorRed, 50)
	e.RecordVolume(50)
	sig := e.ProcessClosedCandle(oversold, indicators.ColorGreen, 50)
	if sig != nil {
		t.Fatalf("expected volume filter to reject low-volume confirmation, got %+v", sig)
	}
	if e.CurrentState() != StateWaiting {
		t.Fatalf("expected WAITING after volume rejection, got %s", e.CurrentState())
	}
}

func TestConsumeResetsConfirmedEngine(t *testing.T) {
	e := New(cfg(), alwaysOpenGate{})
	oversold := map[int]indicators.RSIValue{
		7:  {Value: 25, Valid: true},
		14: {Value: 28, Valid: true},
	}
	e.ProcessClosedCandle(oversold, indicators.ColorRed, 100)
	e.ProcessClosedCandle(oversold, indicators.ColorGreen, 100)
	e.Consume()
	if e.CurrentState() != StateWaiting {
		t.Fatalf("expected WAITING after Consume, got %s", e.CurrentState())
	}
}
