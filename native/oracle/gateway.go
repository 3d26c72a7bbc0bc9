package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

var (
	// ErrPriceNotFound indicates the symbol has no registered feed mapping.
	ErrPriceNotFound = errors.New("oracle: price not found")
	// ErrNoFreshQuote indicates no feed produced a quote inside the
	// freshness window.
	ErrNoFreshQuote = errors.New("oracle: no fresh quote available")
)

// PriceQuote captures a price for a symbol along with the timestamp of the
// underlying observation and the feed that produced it. Quotes are
// ephemeral; risk decisions must re-fetch rather than cache them.
type PriceQuote struct {
	Symbol     string
	Price      *big.Rat
	ObservedAt time.Time
	Source     string
}

// Clone returns a deep copy of the quote to prevent callers mutating
// shared state.
func (q PriceQuote) Clone() PriceQuote {
	clone := PriceQuote{Symbol: q.Symbol, ObservedAt: q.ObservedAt, Source: q.Source}
	if q.Price != nil {
		clone.Price = new(big.Rat).Set(q.Price)
	}
	return clone
}

// PriceFeed resolves a raw price for a symbol.
type PriceFeed interface {
	GetPrice(symbol string) (PriceQuote, error)
}

// Gateway consults registered feeds in priority order, keeps a rolling
// observation history per symbol and serves time-weighted prices so that
// short-lived feed spikes cannot move risk decisions on their own.
type Gateway struct {
	mu         sync.RWMutex
	priority   []string
	feeds      map[string]PriceFeed
	symbols    map[string]struct{}
	history    map[string][]PriceQuote
	maxAge     time.Duration
	twapWindow time.Duration
	sampleCap  int
	nowFn      func() time.Time
}

// NewGateway constructs a gateway with the supplied feed priority, feed
// freshness window and TWAP lookback window.
func NewGateway(priority []string, maxAge, twapWindow time.Duration) *Gateway {
	return &Gateway{
		priority:   append([]string{}, priority...),
		feeds:      make(map[string]PriceFeed),
		symbols:    make(map[string]struct{}),
		history:    make(map[string][]PriceQuote),
		maxAge:     maxAge,
		twapWindow: twapWindow,
		sampleCap:  128,
		nowFn:      time.Now,
	}
}

// SetClock overrides the time source. Tests pin it to a deterministic
// clock.
func (g *Gateway) SetClock(now func() time.Time) {
	if g == nil || now == nil {
		return
	}
	g.mu.Lock()
	g.nowFn = now
	g.mu.Unlock()
}

// RegisterSymbol allows quotes to be served for the symbol. Lookups for
// unregistered symbols fail with ErrPriceNotFound.
func (g *Gateway) RegisterSymbol(symbol string) {
	sym := normalizeSymbol(symbol)
	if g == nil || sym == "" {
		return
	}
	g.mu.Lock()
	g.symbols[sym] = struct{}{}
	g.mu.Unlock()
}

// RegisterFeed adds or replaces a feed under the supplied identifier.
// Identifiers are lowercased so lookups are casing-independent.
func (g *Gateway) RegisterFeed(name string, feed PriceFeed) {
	trimmed := strings.ToLower(strings.TrimSpace(name))
	if g == nil || trimmed == "" || feed == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.feeds[trimmed] = feed
	for _, entry := range g.priority {
		if entry == trimmed {
			return
		}
	}
	g.priority = append(g.priority, trimmed)
}

// GetPrice resolves the symbol through the feed priority list, records the
// observation and returns the time-weighted price over the configured
// window. ObservedAt reports the newest observation so callers can apply
// their own staleness policy.
func (g *Gateway) GetPrice(symbol string) (PriceQuote, error) {
	if g == nil {
		return PriceQuote{}, fmt.Errorf("oracle: gateway not configured")
	}
	sym := normalizeSymbol(symbol)
	if sym == "" {
		return PriceQuote{}, fmt.Errorf("oracle: symbol required")
	}
	g.mu.RLock()
	_, registered := g.symbols[sym]
	priority := append([]string{}, g.priority...)
	maxAge := g.maxAge
	now := g.nowFn()
	g.mu.RUnlock()
	if !registered {
		return PriceQuote{}, ErrPriceNotFound
	}

	var lastErr error
	cutoff := time.Time{}
	if maxAge > 0 {
		cutoff = now.Add(-maxAge)
	}
	for _, name := range priority {
		g.mu.RLock()
		feed := g.feeds[name]
		g.mu.RUnlock()
		if feed == nil {
			continue
		}
		quote, err := feed.GetPrice(sym)
		if err != nil {
			lastErr = err
			continue
		}
		if quote.Price == nil || quote.Price.Sign() <= 0 {
			lastErr = fmt.Errorf("oracle: feed %s returned invalid price", name)
			continue
		}
		if maxAge > 0 && quote.ObservedAt.Before(cutoff) {
			lastErr = ErrNoFreshQuote
			continue
		}
		result := quote.Clone()
		result.Symbol = sym
		if strings.TrimSpace(result.Source) == "" {
			result.Source = name
		}
		g.recordSample(sym, result)
		result.Price = g.timeWeighted(sym, result.Price)
		return result, nil
	}
	if lastErr == nil {
		lastErr = ErrNoFreshQuote
	}
	return PriceQuote{}, lastErr
}

func (g *Gateway) recordSample(symbol string, quote PriceQuote) {
	g.mu.Lock()
	defer g.mu.Unlock()
	samples := append(g.history[symbol], quote)
	if g.twapWindow > 0 {
		cutoff := quote.ObservedAt.Add(-g.twapWindow)
		trimmed := samples[:0]
		for _, s := range samples {
			if !s.ObservedAt.Before(cutoff) {
				trimmed = append(trimmed, s)
			}
		}
		samples = trimmed
	}
	if g.sampleCap > 0 && len(samples) > g.sampleCap {
		samples = samples[len(samples)-g.sampleCap:]
	}
	g.history[symbol] = samples
}

// timeWeighted averages the retained samples weighting each by the time it
// was the freshest observation. With fewer than two samples the latest
// price is returned as-is.
func (g *Gateway) timeWeighted(symbol string, latest *big.Rat) *big.Rat {
	g.mu.RLock()
	samples := append([]PriceQuote{}, g.history[symbol]...)
	g.mu.RUnlock()
	if len(samples) < 2 {
		return new(big.Rat).Set(latest)
	}
	weighted := new(big.Rat)
	var totalSeconds int64
	for i := 0; i < len(samples)-1; i++ {
		dt := samples[i+1].ObservedAt.Sub(samples[i].ObservedAt)
		seconds := int64(dt / time.Second)
		if seconds <= 0 {
			continue
		}
		term := new(big.Rat).Mul(samples[i].Price, big.NewRat(seconds, 1))
		weighted.Add(weighted, term)
		totalSeconds += seconds
	}
	if totalSeconds == 0 {
		// Samples collapsed onto one instant; fall back to the mean.
		sum := new(big.Rat)
		for _, s := range samples {
			sum.Add(sum, s.Price)
		}
		return sum.Quo(sum, big.NewRat(int64(len(samples)), 1))
	}
	// The newest sample anchors the window end and carries the remaining
	// weight up to now only implicitly; weight it by one second so it is
	// never ignored entirely.
	weighted.Add(weighted, samples[len(samples)-1].Price)
	totalSeconds++
	return weighted.Quo(weighted, big.NewRat(totalSeconds, 1))
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
