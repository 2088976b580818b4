package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nirre55/futures-trading-bot/internal/logging"
)

const (
	maxRetries     = 3
	baseRetryDelay = 500 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
	recvWindowMS   = 10000
)

// Client is the typed gateway over the exchange's USDT-M Futures REST
// and stream surface, grounded on the teacher's FuturesClientImpl
// (internal/binance/futures_client.go): same signing scheme, same
// retry-loop shape, trimmed to the operation set spec §4.5 names.
type Client struct {
	apiKey     string
	secretKey  string
	baseURL    string
	httpClient *http.Client
	precision  *PrecisionCache
}

// New constructs a Client. testnet selects the sandbox REST base URL.
func New(apiKey, secretKey string, testnet bool) *Client {
	baseURL := "https://fapi.binance.com"
	if testnet {
		baseURL = "https://testnet.binancefuture.com"
	}

	c := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	c.precision = NewPrecisionCache(c.fetchSymbolPrecision)
	return c
}

// GetBalance returns the USDT wallet balance of the futures account.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	body, err := c.signedGet(ctx, "/fapi/v2/balance", nil)
	if err != nil {
		return 0, err
	}

	var assets []struct {
		Asset   string `json:"asset"`
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(body, &assets); err != nil {
		return 0, fmt.Errorf("parse balance response: %w", err)
	}
	for _, a := range assets {
		if a.Asset == "USDT" {
			v, err := strconv.ParseFloat(a.Balance, 64)
			return v, err
		}
	}
	return 0, fmt.Errorf("USDT balance not found")
}

// GetSymbolPrecision returns the cached tick_size/step_size/min_qty
// grid for symbol, fetching exchangeInfo lazily on first use.
func (c *Client) GetSymbolPrecision(ctx context.Context, symbol string) (SymbolPrecision, error) {
	return c.precision.Get(symbol)
}

// ReloadSymbolPrecision invalidates the cached grid for symbol.
func (c *Client) ReloadSymbolPrecision(symbol string) {
	c.precision.Reload(symbol)
}

func (c *Client) fetchSymbolPrecision(symbol string) (SymbolPrecision, error) {
	body, err := c.publicGet(context.Background(), "/fapi/v1/exchangeInfo", nil)
	if err != nil {
		return SymbolPrecision{}, err
	}

	var info struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				TickSize   string `json:"tickSize"`
				StepSize   string `json:"stepSize"`
				MinQty     string `json:"minQty"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return SymbolPrecision{}, fmt.Errorf("parse exchangeInfo: %w", err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		var p SymbolPrecision
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				p.TickSize = f.TickSize
			case "LOT_SIZE":
				p.StepSize = f.StepSize
				p.MinQty = f.MinQty
			}
		}
		return p, nil
	}
	return SymbolPrecision{}, fmt.Errorf("symbol %s not found in exchangeInfo", symbol)
}

// PlaceOrder places an order. Price/StopPrice/Qty must already be
// formatted on the symbol's grid by the caller (via RoundPriceDown /
// RoundQtyDown) -- the gateway never rounds on a strategy's behalf.
func (c *Client) PlaceOrder(ctx context.Context, p PlaceParams) (*OrderRef, error) {
	params := url.Values{}
	params.Set("symbol", p.Symbol)
	params.Set("side", string(p.Side))
	params.Set("type", string(p.Kind))
	params.Set("quantity", p.Qty)
	if p.PositionSide != "" {
		params.Set("positionSide", string(p.PositionSide))
	}
	if p.Price != "" {
		params.Set("price", p.Price)
		params.Set("timeInForce", "GTC")
	}
	if p.StopPrice != "" {
		params.Set("stopPrice", p.StopPrice)
	}
	if p.ReduceOnly {
		params.Set("reduceOnly", "true")
	}
	clientOrderID := p.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}
	params.Set("newClientOrderId", clientOrderID)

	body, err := c.signedPost(ctx, "/fapi/v1/order", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderID      int64  `json:"orderId"`
		Status       string `json:"status"`
		AvgPrice     string `json:"avgPrice"`
		ExecutedQty  string `json:"executedQty"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}

	avgPrice, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	executedQty, _ := strconv.ParseFloat(resp.ExecutedQty, 64)

	logging.OrderContext(resp.OrderID, p.Symbol, string(p.Side), string(p.Kind)).
		Info("order placed, status %s", resp.Status)

	return &OrderRef{
		OrderID:      resp.OrderID,
		Symbol:       p.Symbol,
		Side:         p.Side,
		PositionSide: p.PositionSide,
		Kind:         p.Kind,
		Qty:          p.Qty,
		StopPrice:    p.StopPrice,
		LimitPrice:   p.Price,
		Status:       OrderStatus(resp.Status),
		AvgPrice:     avgPrice,
		ExecutedQty:  executedQty,
	}, nil
}

// CancelOrder cancels a live order by id.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))
	_, err := c.signedDelete(ctx, "/fapi/v1/order", params)
	return err
}

// GetOrderStatus reads the current state of an order, preferred over
// trusting the placement response for fill price (spec §4.6.1 step 4).
func (c *Client) GetOrderStatus(ctx context.Context, symbol string, orderID int64) (*OrderRef, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	body, err := c.signedGet(ctx, "/fapi/v1/order", params)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderID      int64  `json:"orderId"`
		Symbol       string `json:"symbol"`
		Side         string `json:"side"`
		PositionSide string `json:"positionSide"`
		Type         string `json:"type"`
		Status       string `json:"status"`
		AvgPrice     string `json:"avgPrice"`
		ExecutedQty  string `json:"executedQty"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse order status: %w", err)
	}

	avgPrice, _ := strconv.ParseFloat(resp.AvgPrice, 64)
	executedQty, _ := strconv.ParseFloat(resp.ExecutedQty, 64)

	return &OrderRef{
		OrderID:      resp.OrderID,
		Symbol:       resp.Symbol,
		Side:         Side(resp.Side),
		PositionSide: PositionSide(resp.PositionSide),
		Kind:         OrderKind(resp.Type),
		Status:       OrderStatus(resp.Status),
		AvgPrice:     avgPrice,
		ExecutedQty:  executedQty,
	}, nil
}

// GetPosition returns the current exchange-side exposure for
// (symbol, positionSide).
func (c *Client) GetPosition(ctx context.Context, symbol string, positionSide PositionSide) (*Position, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.signedGet(ctx, "/fapi/v2/positionRisk", params)
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Symbol       string `json:"symbol"`
		PositionSide string `json:"positionSide"`
		EntryPrice   string `json:"entryPrice"`
		PositionAmt  string `json:"positionAmt"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse positionRisk: %w", err)
	}

	for _, p := range resp {
		if PositionSide(p.PositionSide) != positionSide {
			continue
		}
		entry, _ := strconv.ParseFloat(p.EntryPrice, 64)
		amt, _ := strconv.ParseFloat(p.PositionAmt, 64)
		logging.PositionContext(symbol, string(positionSide), entry, amt).Debug("position fetched")
		return &Position{Symbol: symbol, PositionSide: positionSide, EntryPrice: entry, PositionAmt: amt}, nil
	}
	return &Position{Symbol: symbol, PositionSide: positionSide}, nil
}

// GetKlines fetches recent klines for (symbol, interval). limit bounds
// how many are returned; the most recent one may be still-forming.
func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.publicGet(ctx, "/fapi/v1/klines", params)
	if err != nil {
		return nil, err
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse klines: %w", err)
	}

	out := make([]Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 7 {
			continue
		}
		closeTime := int64(k[6].(float64))
		out = append(out, Candle{
			OpenTime:  int64(k[0].(float64)),
			Open:      parseFloat(k[1]),
			High:      parseFloat(k[2]),
			Low:       parseFloat(k[3]),
			Close:     parseFloat(k[4]),
			Volume:    parseFloat(k[5]),
			CloseTime: closeTime,
			IsClosed:  closeTime < time.Now().UnixMilli(),
		})
	}
	return out, nil
}

func parseFloat(v interface{}) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

// GetListenKey creates a new user-data stream listen key.
func (c *Client) GetListenKey(ctx context.Context) (string, error) {
	body, err := c.signedPostNoTimestamp(ctx, "/fapi/v1/listenKey", nil)
	if err != nil {
		return "", err
	}
	var resp struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse listenKey: %w", err)
	}
	return resp.ListenKey, nil
}

// KeepAliveListenKey renews the current listen key's expiry.
func (c *Client) KeepAliveListenKey(ctx context.Context) error {
	_, err := c.signedPutNoTimestamp(ctx, "/fapi/v1/listenKey", nil)
	return err
}

// CloseListenKey deletes the current user-data stream subscription.
func (c *Client) CloseListenKey(ctx context.Context) error {
	_, err := c.signedDeleteNoTimestamp(ctx, "/fapi/v1/listenKey", nil)
	return err
}

// ---- signing and transport ----

func (c *Client) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) signedParams(params url.Values) url.Values {
	if params == nil {
		params = url.Values{}
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("recvWindow", strconv.Itoa(recvWindowMS))
	params.Set("signature", c.sign(params.Encode()))
	return params
}

func (c *Client) publicGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, params, false)
}

func (c *Client) signedGet(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, params, true)
}

func (c *Client) signedPost(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodPost, path, params, true)
}

func (c *Client) signedDelete(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodDelete, path, params, true)
}

// listenKey endpoints are signed like every other private call, but go
// through doUnsigned, which makes a single attempt without do's retry
// loop.
func (c *Client) signedPostNoTimestamp(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.doUnsigned(ctx, http.MethodPost, path, params)
}

func (c *Client) signedPutNoTimestamp(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.doUnsigned(ctx, http.MethodPut, path, params)
}

func (c *Client) signedDeleteNoTimestamp(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return c.doUnsigned(ctx, http.MethodDelete, path, params)
}

func (c *Client) doUnsigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	params = c.signedParams(cloneValues(params))
	body, _, err := c.request(ctx, method, path, params, logging.GatewayContext(path, valuesToMap(params)))
	return body, err
}

// do executes a request with the teacher's bounded exponential-backoff
// retry: up to maxRetries extra attempts on a transport error or a
// retryable exchange status (429/418/5xx).
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	gwLog := logging.GatewayContext(path, valuesToMap(params))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateRetryDelay(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		p := cloneValues(params)
		if signed {
			p = c.signedParams(p)
		}

		body, retryable, err := c.request(ctx, method, path, p, gwLog)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

// valuesToMap flattens url.Values into the map GatewayContext expects,
// taking the first value of any repeated key.
func valuesToMap(v url.Values) map[string]interface{} {
	out := make(map[string]interface{}, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			out[k] = vals[0]
		}
	}
	return out
}

func cloneValues(v url.Values) url.Values {
	out := url.Values{}
	for k, vals := range v {
		for _, val := range vals {
			out.Add(k, val)
		}
	}
	return out
}

// request performs a single HTTP round trip. It reports whether a
// failure is worth retrying (transport error, 429/418/5xx) versus
// a terminal exchange refusal (4xx other than rate-limit codes).
func (c *Client) request(ctx context.Context, method, path string, params url.Values, gwLog *logging.Logger) ([]byte, bool, error) {
	fullURL := c.baseURL + path
	var req *http.Request
	var err error

	if method == http.MethodGet || method == http.MethodDelete {
		if len(params) > 0 {
			fullURL += "?" + params.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, fullURL, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, fullURL, strings.NewReader(params.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("X-MBX-APIKEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		gwLog.WithError(err).Warn("request failed")
		return nil, true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		gwLog.WithField("status", resp.StatusCode).WithField("body", string(body)).Warn("exchange refusal")
		refusalErr := fmt.Errorf("exchange refusal: status %d: %s", resp.StatusCode, string(body))
		return nil, isRetryableStatus(resp.StatusCode), refusalErr
	}
	return body, false, nil
}

func isRetryableStatus(status int) bool {
	return status == 429 || status == 418 || status >= 500
}

func calculateRetryDelay(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	return delay/2 + jitter
}
