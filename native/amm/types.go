package amm

import (
	"strings"

	"github.com/holiman/uint256"
)

// MinimumLiquidityShares is permanently burned on the first deposit of a
// pool so a near-zero bootstrap deposit cannot set an exploitable share
// price.
const MinimumLiquidityShares = 1000

// BurnedSharesOwner holds the permanently burned bootstrap shares. No
// account can withdraw against it.
const BurnedSharesOwner = "~burned"

// Pool captures the reserves and share supply for one asset pair. Reserve
// math runs on unsigned 256-bit integers with explicit overflow checks.
type Pool struct {
	PairID          string       `json:"pairId"`
	TokenA          string       `json:"tokenA"`
	TokenB          string       `json:"tokenB"`
	ReserveA        *uint256.Int `json:"reserveA"`
	ReserveB        *uint256.Int `json:"reserveB"`
	TotalShares     *uint256.Int `json:"totalShares"`
	FeeProtocolBps  uint64       `json:"feeProtocolBps"`
	FeeLiquidityBps uint64       `json:"feeLiquidityBps"`
}

// Clone returns a deep copy of the pool record.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	if p.ReserveA != nil {
		clone.ReserveA = new(uint256.Int).Set(p.ReserveA)
	}
	if p.ReserveB != nil {
		clone.ReserveB = new(uint256.Int).Set(p.ReserveB)
	}
	if p.TotalShares != nil {
		clone.TotalShares = new(uint256.Int).Set(p.TotalShares)
	}
	return &clone
}

// PairID derives the canonical pool identifier for two assets. Ordering is
// lexicographic so both argument orders resolve to the same pool.
func PairID(tokenA, tokenB string) string {
	a, b := canonicalOrder(tokenA, tokenB)
	return a + "-" + b
}

func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

func canonicalOrder(tokenA, tokenB string) (string, string) {
	a := normalizeToken(tokenA)
	b := normalizeToken(tokenB)
	if a > b {
		a, b = b, a
	}
	return a, b
}
