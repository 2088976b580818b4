// Package signal implements the three-state signal engine of spec
// §4.3: RSI threshold coincidence across all configured periods,
// followed by Heikin-Ashi color confirmation on the next closed
// candle and an optional volume filter. Grounded on
// original_source/core/signal_service.py for the state names and the
// volume-history ring buffer, and on the teacher's
// internal/strategy/strategy.go Signal/SignalType field naming.
package signal

import (
	"github.com/nirre55/futures-trading-bot/internal/indicators"
	"github.com/nirre55/futures-trading-bot/internal/logging"
)

// State is the engine's current position in the WAITING -> PENDING_* ->
// CONFIRMED -> WAITING cycle.
type State string

const (
	StateWaiting      State = "WAITING"
	StatePendingLong  State = "PENDING_LONG"
	StatePendingShort State = "PENDING_SHORT"
	StateConfirmed    State = "CONFIRMED"
)

// Side is the signal's direction.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Signal is the engine's output, consumed exactly once by the runtime.
type Signal struct {
	Side            Side
	RSISnapshot     map[int]float64
	HAColor         indicators.Color
	Volume          float64
	VolumeValidated bool
	OriginTimestamp int64
}

// RuntimeGate is consulted before the engine emits or even advances
// past WAITING, per spec §4.3/§4.6's shared cross-cutting behavior:
// "the engine refuses to emit any signal while any of the runtime's
// strategies report outstanding TP orders."
type RuntimeGate interface {
	CanAcceptSignal(side string) bool
	HasOutstandingTP() bool
}

// Config is the subset of SIGNAL_CONFIG the engine needs.
type Config struct {
	RSIPeriods       []int
	Thresholds       map[int]indicators.Thresholds
	VolumeValidation bool
	VolumeLookback   int
}

// Engine is the per-process three-state machine. It is not
// goroutine-safe on its own -- spec §5 requires it be driven from the
// single serialization domain (the runtime's command loop).
type Engine struct {
	cfg    Config
	gate   RuntimeGate
	logger *logging.Logger

	state         State
	pendingSide   Side
	confirmed     *Signal
	volumeHistory []float64
}

// New constructs an Engine. gate may be nil in tests that don't need
// gating.
func New(cfg Config, gate RuntimeGate) *Engine {
	return &Engine{
		cfg:    cfg,
		gate:   gate,
		logger: logging.WithComponent("signal"),
		state:  StateWaiting,
	}
}

// RecordVolume pushes a closed candle's volume into the bounded
// history ring (capacity VolumeLookback+1, matching the Python
// original's deque(maxlen=LOOKBACK_CANDLES+1)).
func (e *Engine) RecordVolume(volume float64) {
	if !e.cfg.VolumeValidation {
		return
	}
	e.volumeHistory = append(e.volumeHistory, volume)
	max := e.cfg.VolumeLookback + 1
	if len(e.volumeHistory) > max {
		e.volumeHistory = e.volumeHistory[len(e.volumeHistory)-max:]
	}
}

// ProcessClosedCandle evaluates one closed candle's RSI snapshot and
// HA color against the current state, returning a Signal only when a
// CONFIRMED transition happens on this call. Re-feeding the same
// closed candle (same rsi/ha inputs) is idempotent: a CONFIRMED signal
// is latched until Consume() is called, so a second call in the same
// state returns the same (or no) signal rather than double-emitting.
func (e *Engine) ProcessClosedCandle(rsi map[int]indicators.RSIValue, ha indicators.Color, volume float64) *Signal {
	if e.gate != nil {
		if e.gate.HasOutstandingTP() {
			e.logger.Debug("outstanding TP orders, ignoring new signals")
			return nil
		}
	}

	switch e.state {
	case StateWaiting:
		e.handleWaiting(rsi)
		return nil
	case StatePendingLong, StatePendingShort:
		return e.handlePending(ha, volume)
	case StateConfirmed:
		return e.confirmed
	}
	return nil
}

func (e *Engine) handleWaiting(rsi map[int]indicators.RSIValue) {
	if e.allOversold(rsi) {
		e.state = StatePendingLong
		e.pendingSide = SideLong
		e.logger.Info("RSI oversold across all periods, awaiting HA green confirmation")
		return
	}
	if e.allOverbought(rsi) {
		e.state = StatePendingShort
		e.pendingSide = SideShort
		e.logger.Info("RSI overbought across all periods, awaiting HA red confirmation")
	}
}

func (e *Engine) allOversold(rsi map[int]indicators.RSIValue) bool {
	for _, period := range e.cfg.RSIPeriods {
		v, ok := rsi[period]
		if !ok || !v.IsOversold(e.cfg.Thresholds[period]) {
			return false
		}
	}
	return true
}

func (e *Engine) allOverbought(rsi map[int]indicators.RSIValue) bool {
	for _, period := range e.cfg.RSIPeriods {
		v, ok := rsi[period]
		if !ok || !v.IsOverbought(e.cfg.Thresholds[period]) {
			return false
		}
	}
	return true
}

func (e *Engine) handlePending(ha indicators.Color, volume float64) *Signal {
	confirmed := e.confirmColor(ha)
	if confirmed == "" {
		// HA close does not confirm -> back to WAITING, re-evaluate RSI next close.
		e.state = StateWaiting
		e.pendingSide = ""
		return nil
	}

	if e.gate != nil && !e.gate.CanAcceptSignal(string(confirmed)) {
		e.state = StateWaiting
		e.pendingSide = ""
		return nil
	}

	validated := true
	if e.cfg.VolumeValidation {
		validated = e.validateVolume(volume)
		if !validated {
			e.logger.Info("signal rejected: volume below lookback mean")
			e.state = StateWaiting
			e.pendingSide = ""
			return nil
		}
	}

	sig := &Signal{
		Side:            confirmed,
		HAColor:         ha,
		Volume:          volume,
		VolumeValidated: e.cfg.VolumeValidation && validated,
	}
	e.state = StateConfirmed
	e.confirmed = sig
	e.logger.Info("signal confirmed")
	return sig
}

func (e *Engine) confirmColor(ha indicators.Color) Side {
	switch {
	case e.pendingSide == SideLong && ha == indicators.ColorGreen:
		return SideLong
	case e.pendingSide == SideShort && ha == indicators.ColorRed:
		return SideShort
	default:
		return ""
	}
}

func (e *Engine) validateVolume(current float64) bool {
	if len(e.volumeHistory) < e.cfg.VolumeLookback {
		return true // insufficient history: let it pass, matches the Python original
	}
	previous := e.volumeHistory[:len(e.volumeHistory)-1]
	if len(previous) == 0 {
		return true
	}
	var sum float64
	for _, v := range previous {
		sum += v
	}
	mean := sum / float64(len(previous))
	return current > mean
}

// Consume resets a CONFIRMED engine back to WAITING, acknowledging the
// runtime has accepted (or rejected) the signal.
func (e *Engine) Consume() {
	e.state = StateWaiting
	e.pendingSide = ""
	e.confirmed = nil
}

// CurrentState reports the engine's current state (for status/snapshot).
func (e *Engine) CurrentState() State { return e.state }
