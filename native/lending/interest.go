package lending

import "math/big"

const secondsPerYear = 31_536_000

var basisPoints = big.NewInt(10_000)

// utilizationBps computes borrowed/total in basis points, capped at
// 10000. A reserve with nothing in it reports full utilization so the
// rate curve tops out instead of dividing by zero.
func utilizationBps(totalBorrowed, totalReserve *big.Int) uint64 {
	if totalBorrowed == nil || totalBorrowed.Sign() == 0 {
		return 0
	}
	if totalReserve == nil || totalReserve.Sign() == 0 {
		return 10_000
	}
	scaled := new(big.Int).Mul(totalBorrowed, basisPoints)
	scaled.Quo(scaled, totalReserve)
	if !scaled.IsUint64() || scaled.Uint64() > 10_000 {
		return 10_000
	}
	return scaled.Uint64()
}

// borrowRateBps derives the annual borrow rate in basis points:
// base + utilization*slope/10000.
func borrowRateBps(params RiskParameters, utilBps uint64) uint64 {
	return params.BaseRateBps + utilBps*params.UtilizationSlopeBps/10_000
}

// interestDelta computes floor(debt * rateBps * elapsedSeconds /
// (10000 * secondsPerYear)).
func interestDelta(debt *big.Int, rateBps uint64, elapsedSeconds int64) *big.Int {
	if debt == nil || debt.Sign() == 0 || rateBps == 0 || elapsedSeconds <= 0 {
		return big.NewInt(0)
	}
	delta := new(big.Int).Mul(debt, new(big.Int).SetUint64(rateBps))
	delta.Mul(delta, big.NewInt(elapsedSeconds))
	delta.Quo(delta, new(big.Int).Mul(basisPoints, big.NewInt(secondsPerYear)))
	return delta
}
