package lending

import (
	"math/big"
	"time"
)

// Position is one borrower's collateralized debt, keyed by (owner,
// collateral asset). Interest accrues lazily: AccruedInterest and
// LastAccrualTime only move when the position itself is touched, so two
// positions on the same asset may be accrued as of different times.
type Position struct {
	Owner            string   `json:"owner"`
	CollateralAsset  string   `json:"collateralAsset"`
	CollateralAmount *big.Int `json:"collateralAmount"`
	BorrowAsset      string   `json:"borrowAsset"`
	BorrowPrincipal  *big.Int `json:"borrowPrincipal"`
	AccruedInterest  *big.Int `json:"accruedInterest"`
	LastAccrualTime  int64    `json:"lastAccrualTime"`
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	clone.CollateralAmount = cloneBig(p.CollateralAmount)
	clone.BorrowPrincipal = cloneBig(p.BorrowPrincipal)
	clone.AccruedInterest = cloneBig(p.AccruedInterest)
	return &clone
}

// Debt returns principal plus accrued interest.
func (p *Position) Debt() *big.Int {
	debt := new(big.Int)
	if p.BorrowPrincipal != nil {
		debt.Add(debt, p.BorrowPrincipal)
	}
	if p.AccruedInterest != nil {
		debt.Add(debt, p.AccruedInterest)
	}
	return debt
}

// AssetStats aggregates outstanding principal per borrow asset; the
// utilization input to the interest model.
type AssetStats struct {
	Asset         string   `json:"asset"`
	TotalBorrowed *big.Int `json:"totalBorrowed"`
}

// Clone returns a deep copy of the stats record.
func (s *AssetStats) Clone() *AssetStats {
	if s == nil {
		return nil
	}
	clone := *s
	clone.TotalBorrowed = cloneBig(s.TotalBorrowed)
	return &clone
}

// RiskParameters groups the safety limits governing borrowing.
type RiskParameters struct {
	// CollateralizationRatio is the minimum collateral/borrow value ratio
	// to open or extend a position, in percent (150 = 150%).
	CollateralizationRatio uint64
	// LiquidationThreshold is the collateral/borrow value ratio below
	// which a position becomes liquidatable, in percent.
	LiquidationThreshold uint64
	// LiquidationBonusBps is the premium over repaid value the liquidator
	// may seize from collateral, in basis points.
	LiquidationBonusBps uint64
	// BaseRateBps is the annual borrow rate at zero utilization, in basis
	// points.
	BaseRateBps uint64
	// UtilizationSlopeBps scales the utilization-linked rate component,
	// in basis points.
	UtilizationSlopeBps uint64
	// StalenessPeriod bounds the age of oracle observations accepted for
	// risk decisions.
	StalenessPeriod time.Duration
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
