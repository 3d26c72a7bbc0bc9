package oracle

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// ManualFeed is an in-memory feed used by tests and for manual overrides
// during incident response.
type ManualFeed struct {
	mu     sync.RWMutex
	quotes map[string]PriceQuote
}

func NewManualFeed() *ManualFeed {
	return &ManualFeed{quotes: make(map[string]PriceQuote)}
}

// Set stores the rational price for the symbol at the supplied timestamp.
func (m *ManualFeed) Set(symbol string, price *big.Rat, ts time.Time) {
	sym := normalizeSymbol(symbol)
	if m == nil || sym == "" || price == nil {
		return
	}
	m.mu.Lock()
	m.quotes[sym] = PriceQuote{
		Symbol:     sym,
		Price:      new(big.Rat).Set(price),
		ObservedAt: ts,
		Source:     "manual",
	}
	m.mu.Unlock()
}

// SetDecimal parses a decimal price string and stores it.
func (m *ManualFeed) SetDecimal(symbol, price string, ts time.Time) error {
	trimmed := strings.TrimSpace(price)
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok || rat.Sign() <= 0 {
		return fmt.Errorf("oracle: invalid manual price %q", price)
	}
	m.Set(symbol, rat, ts)
	return nil
}

// GetPrice implements PriceFeed.
func (m *ManualFeed) GetPrice(symbol string) (PriceQuote, error) {
	sym := normalizeSymbol(symbol)
	m.mu.RLock()
	quote, ok := m.quotes[sym]
	m.mu.RUnlock()
	if !ok {
		return PriceQuote{}, ErrPriceNotFound
	}
	return quote.Clone(), nil
}
