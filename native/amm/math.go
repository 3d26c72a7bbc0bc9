package amm

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrArithmeticOverflow = errors.New("amm: arithmetic overflow")
	ErrDivisionByZero     = errors.New("amm: division by zero")
)

var basisPoints = uint256.NewInt(10_000)

// toUint256 converts a ledger amount into checked unsigned fixed point.
func toUint256(value *big.Int) (*uint256.Int, error) {
	if value == nil || value.Sign() < 0 {
		return nil, ErrArithmeticOverflow
	}
	converted, overflow := uint256.FromBig(value)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return converted, nil
}

// checkedMul multiplies with overflow detection.
func checkedMul(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return product, nil
}

// checkedAdd adds with overflow detection.
func checkedAdd(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return sum, nil
}

// mulDiv computes floor(a*b/d) with overflow and zero-divisor checks.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d == nil || d.IsZero() {
		return nil, ErrDivisionByZero
	}
	product, err := checkedMul(a, b)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(product, d), nil
}

// ceilMulDiv computes ceil(a*b/d); used when charging the depositor so
// rounding never shortchanges the pool.
func ceilMulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d == nil || d.IsZero() {
		return nil, ErrDivisionByZero
	}
	product, err := checkedMul(a, b)
	if err != nil {
		return nil, err
	}
	quotient, remainder := new(uint256.Int).DivMod(product, d, new(uint256.Int))
	if !remainder.IsZero() {
		one := uint256.NewInt(1)
		quotient, err = checkedAdd(quotient, one)
		if err != nil {
			return nil, err
		}
	}
	return quotient, nil
}

// feeAmount computes floor(amount*bps/10000).
func feeAmount(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	if bps == 0 {
		return uint256.NewInt(0), nil
	}
	return mulDiv(amount, uint256.NewInt(bps), basisPoints)
}

// sqrtShares computes floor(sqrt(a*b)), the geometric-mean share amount
// minted by the bootstrap deposit.
func sqrtShares(a, b *uint256.Int) (*uint256.Int, error) {
	product, err := checkedMul(a, b)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Sqrt(product), nil
}

// constantProductOut computes reserveOut - ceil(reserveIn*reserveOut /
// (reserveIn + amountIn)). Rounding the kept reserve up keeps k
// non-decreasing across trades.
func constantProductOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if reserveIn == nil || reserveOut == nil || reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrDivisionByZero
	}
	denominator, err := checkedAdd(reserveIn, amountIn)
	if err != nil {
		return nil, err
	}
	kept, err := ceilMulDiv(reserveIn, reserveOut, denominator)
	if err != nil {
		return nil, err
	}
	if kept.Cmp(reserveOut) > 0 {
		return uint256.NewInt(0), nil
	}
	return new(uint256.Int).Sub(reserveOut, kept), nil
}

// Quote estimates the constant-product output for amountIn against the
// supplied reserves without touching state or deducting fees.
func Quote(amountIn, reserveIn, reserveOut *big.Int) (*big.Int, error) {
	in, err := toUint256(amountIn)
	if err != nil {
		return nil, err
	}
	rIn, err := toUint256(reserveIn)
	if err != nil {
		return nil, err
	}
	rOut, err := toUint256(reserveOut)
	if err != nil {
		return nil, err
	}
	out, err := constantProductOut(in, rIn, rOut)
	if err != nil {
		return nil, err
	}
	return out.ToBig(), nil
}
