package lending

import (
	"math/big"
	"testing"
)

func TestUtilizationBps(t *testing.T) {
	cases := []struct {
		name     string
		borrowed int64
		reserve  int64
		want     uint64
	}{
		{"zero borrowed", 0, 1_000, 0},
		{"half utilized", 500, 1_000, 5_000},
		{"fully utilized", 1_000, 1_000, 10_000},
		{"empty reserve tops out", 500, 0, 10_000},
		{"over-utilized capped", 2_000, 1_000, 10_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := utilizationBps(big.NewInt(tc.borrowed), big.NewInt(tc.reserve))
			if got != tc.want {
				t.Fatalf("utilizationBps(%d,%d) = %d, want %d", tc.borrowed, tc.reserve, got, tc.want)
			}
		})
	}
}

func TestBorrowRateBps(t *testing.T) {
	params := RiskParameters{BaseRateBps: 200, UtilizationSlopeBps: 1_000}
	if got := borrowRateBps(params, 0); got != 200 {
		t.Fatalf("rate at zero utilization = %d, want 200", got)
	}
	if got := borrowRateBps(params, 5_000); got != 700 {
		t.Fatalf("rate at half utilization = %d, want 700", got)
	}
	if got := borrowRateBps(params, 10_000); got != 1_200 {
		t.Fatalf("rate at full utilization = %d, want 1200", got)
	}
}

func TestInterestDelta(t *testing.T) {
	// 10000 at 2% for a full year.
	delta := interestDelta(big.NewInt(10_000), 200, secondsPerYear)
	if delta.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("full-year interest = %s, want 200", delta)
	}
	// Half a year floors.
	delta = interestDelta(big.NewInt(10_001), 200, secondsPerYear/2)
	if delta.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("half-year interest = %s, want 100", delta)
	}
	if interestDelta(big.NewInt(0), 200, secondsPerYear).Sign() != 0 {
		t.Fatalf("zero debt accrued interest")
	}
	if interestDelta(big.NewInt(10_000), 200, 0).Sign() != 0 {
		t.Fatalf("zero elapsed accrued interest")
	}
	if interestDelta(big.NewInt(10_000), 200, -5).Sign() != 0 {
		t.Fatalf("negative elapsed accrued interest")
	}
}
