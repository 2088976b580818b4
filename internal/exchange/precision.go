package exchange

import (
	"sync"

	"github.com/shopspring/decimal"
)

// PrecisionCache is a write-once-then-read-mostly cache of per-symbol
// exchange grids (spec §3, §5: "initialized before loops start" or
// protected by a simple lock; invalidated only on explicit Reload).
type PrecisionCache struct {
	mu      sync.RWMutex
	symbols map[string]SymbolPrecision
	fetch   func(symbol string) (SymbolPrecision, error)
}

// NewPrecisionCache constructs a cache that lazily fetches a symbol's
// grid via fetch on first use.
func NewPrecisionCache(fetch func(symbol string) (SymbolPrecision, error)) *PrecisionCache {
	return &PrecisionCache{
		symbols: make(map[string]SymbolPrecision),
		fetch:   fetch,
	}
}

// Get returns the cached grid for symbol, fetching and caching it on
// first use.
func (c *PrecisionCache) Get(symbol string) (SymbolPrecision, error) {
	c.mu.RLock()
	p, ok := c.symbols[symbol]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := c.fetch(symbol)
	if err != nil {
		return SymbolPrecision{}, err
	}

	c.mu.Lock()
	c.symbols[symbol] = p
	c.mu.Unlock()
	return p, nil
}

// Reload forces the next Get for symbol to re-fetch.
func (c *PrecisionCache) Reload(symbol string) {
	c.mu.Lock()
	delete(c.symbols, symbol)
	c.mu.Unlock()
}

// RoundPriceDown rounds price down to the symbol's tick_size and
// formats it as a plain decimal string (no scientific notation,
// trailing zeros trimmed to the grid's natural precision).
func RoundPriceDown(price float64, tickSize string) string {
	return roundDown(price, tickSize)
}

// RoundQtyDown rounds qty down to the symbol's step_size.
func RoundQtyDown(qty float64, stepSize string) string {
	return roundDown(qty, stepSize)
}

func roundDown(value float64, step string) string {
	stepDec, err := decimal.NewFromString(step)
	if err != nil || stepDec.IsZero() {
		return decimal.NewFromFloat(value).String()
	}

	valueDec := decimal.NewFromFloat(value)
	steps := valueDec.Div(stepDec).Floor()
	result := steps.Mul(stepDec)

	places := -stepDec.Exponent()
	if places < 0 {
		places = 0
	}
	return result.StringFixed(places)
}

// Format is idempotent: formatting an already-grid-aligned value
// returns the same string (round-trip law of spec §8).
func Format(price float64, tickSize string) string {
	return RoundPriceDown(price, tickSize)
}
