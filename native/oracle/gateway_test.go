package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"
)

func TestGetPriceRequiresRegisteredSymbol(t *testing.T) {
	gateway := NewGateway([]string{"manual"}, time.Minute, time.Hour)
	feed := NewManualFeed()
	feed.Set("NHB", big.NewRat(1, 1), time.Now())
	gateway.RegisterFeed("manual", feed)

	if _, err := gateway.GetPrice("NHB"); !errors.Is(err, ErrPriceNotFound) {
		t.Fatalf("expected ErrPriceNotFound for unregistered symbol, got %v", err)
	}
	gateway.RegisterSymbol("NHB")
	if _, err := gateway.GetPrice("NHB"); err != nil {
		t.Fatalf("registered symbol lookup failed: %v", err)
	}
}

func TestFeedPriorityFallback(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	gateway := NewGateway([]string{"primary", "secondary"}, time.Minute, time.Hour)
	gateway.SetClock(func() time.Time { return now })
	gateway.RegisterSymbol("NHB")

	// The primary feed has no quote; the secondary serves it.
	gateway.RegisterFeed("primary", NewManualFeed())
	secondary := NewManualFeed()
	secondary.Set("NHB", big.NewRat(3, 2), now)
	gateway.RegisterFeed("secondary", secondary)

	quote, err := gateway.GetPrice("NHB")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if quote.Price.Cmp(big.NewRat(3, 2)) != 0 {
		t.Fatalf("price = %s, want 3/2", quote.Price)
	}
	if quote.Source != "manual" && quote.Source != "secondary" {
		t.Fatalf("unexpected source %q", quote.Source)
	}
}

func TestStaleObservationsRejected(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	gateway := NewGateway([]string{"manual"}, time.Minute, time.Hour)
	gateway.SetClock(func() time.Time { return now })
	gateway.RegisterSymbol("NHB")

	feed := NewManualFeed()
	feed.Set("NHB", big.NewRat(1, 1), now.Add(-2*time.Minute))
	gateway.RegisterFeed("manual", feed)

	if _, err := gateway.GetPrice("NHB"); !errors.Is(err, ErrNoFreshQuote) {
		t.Fatalf("expected ErrNoFreshQuote, got %v", err)
	}
}

func TestTimeWeightedPrice(t *testing.T) {
	base := time.Unix(1_000_000, 0)
	now := base
	gateway := NewGateway([]string{"manual"}, 0, time.Hour)
	gateway.SetClock(func() time.Time { return now })
	gateway.RegisterSymbol("NHB")
	feed := NewManualFeed()
	gateway.RegisterFeed("manual", feed)

	// Three observations: price 1 held for 10s, price 2 held for 10s, then
	// price 4.
	feed.Set("NHB", big.NewRat(1, 1), base)
	if _, err := gateway.GetPrice("NHB"); err != nil {
		t.Fatalf("first observation: %v", err)
	}
	now = base.Add(10 * time.Second)
	feed.Set("NHB", big.NewRat(2, 1), now)
	if _, err := gateway.GetPrice("NHB"); err != nil {
		t.Fatalf("second observation: %v", err)
	}
	now = base.Add(20 * time.Second)
	feed.Set("NHB", big.NewRat(4, 1), now)
	quote, err := gateway.GetPrice("NHB")
	if err != nil {
		t.Fatalf("third observation: %v", err)
	}

	// (1*10 + 2*10 + 4*1) / 21
	want := big.NewRat(34, 21)
	if quote.Price.Cmp(want) != 0 {
		t.Fatalf("time-weighted price = %s, want %s", quote.Price, want)
	}
	if !quote.ObservedAt.Equal(now) {
		t.Fatalf("ObservedAt = %v, want newest observation %v", quote.ObservedAt, now)
	}
	// A spike cannot dominate the window on its own.
	if quote.Price.Cmp(big.NewRat(4, 1)) >= 0 {
		t.Fatalf("spike price leaked through: %s", quote.Price)
	}
}

func TestManualFeedSetDecimal(t *testing.T) {
	feed := NewManualFeed()
	if err := feed.SetDecimal("NHB", "1.25", time.Now()); err != nil {
		t.Fatalf("set decimal: %v", err)
	}
	quote, err := feed.GetPrice("nhb")
	if err != nil {
		t.Fatalf("get price: %v", err)
	}
	if quote.Price.Cmp(big.NewRat(5, 4)) != 0 {
		t.Fatalf("price = %s, want 5/4", quote.Price)
	}
	if err := feed.SetDecimal("NHB", "-3", time.Now()); err == nil {
		t.Fatalf("negative manual price accepted")
	}
}
