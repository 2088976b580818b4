// Package marketdata ingests the single symbol/timeframe kline stream
// and emits one ClosedCandle event per closed bar. Grounded on the
// teacher's internal/binance/kline_subscription_manager.go for stream
// naming and internal/binance/user_data_stream.go for the
// connect/readLoop/reconnect loop shape, trimmed from the teacher's
// multi-symbol/multi-timeframe manager down to the single symbol and
// timeframe this process trades.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nirre55/futures-trading-bot/internal/indicators"
	"github.com/nirre55/futures-trading-bot/internal/logging"
)

// ClosedCandle is emitted exactly once per distinct open_time, the
// idempotence key the runtime and signal engine rely on (spec's
// "idempotent candle close" invariant).
type ClosedCandle struct {
	Candle indicators.Candle
	OpenMs int64
}

// ReconnectionConfig bounds the stream's reconnect behavior. When
// Enabled, the stream gives up and Run returns an error after
// MaxAttempts consecutive failures to keep the connection alive;
// DelaySeconds is the fixed delay between attempts and TimeoutSeconds
// is the read deadline that turns a silently stalled connection into a
// reconnect. When disabled, the stream retries forever, matching the
// pre-reconnection-policy behavior.
type ReconnectionConfig struct {
	Enabled        bool
	MaxAttempts    int
	DelaySeconds   int
	TimeoutSeconds int
}

func (c ReconnectionConfig) delay() time.Duration {
	return time.Duration(c.DelaySeconds) * time.Second
}

func (c ReconnectionConfig) readTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type klineEvent struct {
	EventType string `json:"e"`
	Kline     struct {
		OpenTime  int64  `json:"t"`
		CloseTime int64  `json:"T"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		IsClosed  bool   `json:"x"`
	} `json:"k"`
}

// Stream manages the single symbol@kline_interval websocket connection.
type Stream struct {
	baseURL   string
	symbol    string
	interval  string
	logger    *logging.Logger
	reconnect ReconnectionConfig

	events chan ClosedCandle

	lastOpenTime int64
}

// New constructs a Stream. events must be a buffered channel the
// caller drains from the runtime's serialization domain.
func New(baseURL, symbol, interval string, events chan ClosedCandle, reconnect ReconnectionConfig) *Stream {
	return &Stream{
		baseURL:   baseURL,
		symbol:    strings.ToLower(symbol),
		interval:  interval,
		logger:    logging.WithComponent("marketdata"),
		reconnect: reconnect,
		events:    events,
	}
}

// Events returns the channel ClosedCandle events are delivered on.
func (s *Stream) Events() <-chan ClosedCandle { return s.events }

// Run connects and reconnects until ctx is canceled or, when
// reconnection is bounded, MaxAttempts consecutive failures are
// reached. In the latter case it returns a non-nil error so the caller
// can signal the supervisor to shut down, per spec §5.
func (s *Stream) Run(ctx context.Context) error {
	streamName := fmt.Sprintf("%s@kline_%s", s.symbol, s.interval)
	wsURL := s.baseURL + "/ws/" + streamName
	wsLog := logging.WebSocketContext(s.symbol, streamName)

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		wsLog.Info("connecting to kline stream")
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			failures++
			if s.reconnect.Enabled && failures >= s.reconnect.MaxAttempts {
				return fmt.Errorf("marketdata: %d consecutive connection failures: %w", failures, err)
			}
			wsLog.Warn("kline dial failed (attempt %d/%d): %v, retrying in %s", failures, s.reconnect.MaxAttempts, err, s.reconnect.delay())
			if !sleepOrDone(ctx, s.reconnect.delay()) {
				return nil
			}
			continue
		}

		wsLog.Info("kline stream connected")
		delivered := s.readLoop(ctx, conn)
		conn.Close()
		if delivered {
			failures = 0
		}

		select {
		case <-ctx.Done():
			return nil
		default:
		}

		failures++
		if s.reconnect.Enabled && failures >= s.reconnect.MaxAttempts {
			return fmt.Errorf("marketdata: %d consecutive connection failures", failures)
		}
		wsLog.Warn("kline stream lost (attempt %d/%d), reconnecting in %s", failures, s.reconnect.MaxAttempts, s.reconnect.delay())
		if !sleepOrDone(ctx, s.reconnect.delay()) {
			return nil
		}
	}
}

// readLoop reads until conn errors or ctx is canceled, applying
// TimeoutSeconds as the read deadline so a silently stalled connection
// surfaces as an error rather than hanging forever. It reports whether
// at least one message was received, which resets the caller's
// consecutive-failure counter.
func (s *Stream) readLoop(ctx context.Context, conn *websocket.Conn) (delivered bool) {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	timeout := s.reconnect.readTimeout()
	for {
		if timeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(timeout))
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("kline read error: %v", err)
			}
			return delivered
		}
		delivered = true
		s.handleMessage(message)
	}
}

func (s *Stream) handleMessage(message []byte) {
	var evt klineEvent
	if err := json.Unmarshal(message, &evt); err != nil {
		s.logger.Warn("failed to parse kline message: %v", err)
		return
	}
	if !evt.Kline.IsClosed {
		return
	}
	if evt.Kline.OpenTime == s.lastOpenTime {
		return // idempotent candle close: already emitted for this open_time
	}
	s.lastOpenTime = evt.Kline.OpenTime

	candle := indicators.Candle{
		OpenTime: evt.Kline.OpenTime,
		Open:     parseFloat(evt.Kline.Open),
		High:     parseFloat(evt.Kline.High),
		Low:      parseFloat(evt.Kline.Low),
		Close:    parseFloat(evt.Kline.Close),
		Volume:   parseFloat(evt.Kline.Volume),
	}

	select {
	case s.events <- ClosedCandle{Candle: candle, OpenMs: evt.Kline.OpenTime}:
	default:
		s.logger.Warn("closed-candle channel full, dropping backlog candle at %d", evt.Kline.OpenTime)
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
