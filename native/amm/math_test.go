package amm

import (
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func TestQuoteMatchesConstantProduct(t *testing.T) {
	out, err := Quote(big.NewInt(100_000), big.NewInt(1_000_000), big.NewInt(2_000_000))
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	// floor(2000000*100000/1100000) = 181818
	if want := big.NewInt(181_818); out.Cmp(want) != 0 {
		t.Fatalf("quote = %s, want %s", out, want)
	}
}

func TestQuoteRejectsEmptyReserves(t *testing.T) {
	if _, err := Quote(big.NewInt(100), big.NewInt(0), big.NewInt(100)); err == nil {
		t.Fatalf("quote against empty reserve succeeded")
	}
	out, err := Quote(big.NewInt(0), big.NewInt(100), big.NewInt(100))
	if err != nil {
		t.Fatalf("zero-input quote: %v", err)
	}
	if out.Sign() != 0 {
		t.Fatalf("zero-input quote = %s, want 0", out)
	}
}

func TestQuoteNeverDrainsReserve(t *testing.T) {
	reserveOut := big.NewInt(1_000)
	out, err := Quote(big.NewInt(1_000_000_000), big.NewInt(1_000), reserveOut)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if out.Cmp(reserveOut) >= 0 {
		t.Fatalf("quote %s drains the %s reserve", out, reserveOut)
	}
}

func TestMulDivFloors(t *testing.T) {
	got, err := mulDiv(uint256.NewInt(7), uint256.NewInt(3), uint256.NewInt(2))
	if err != nil {
		t.Fatalf("mulDiv: %v", err)
	}
	if got.Uint64() != 10 {
		t.Fatalf("mulDiv = %s, want 10", got)
	}
}

func TestCeilMulDivRoundsUp(t *testing.T) {
	got, err := ceilMulDiv(uint256.NewInt(7), uint256.NewInt(3), uint256.NewInt(2))
	if err != nil {
		t.Fatalf("ceilMulDiv: %v", err)
	}
	if got.Uint64() != 11 {
		t.Fatalf("ceilMulDiv = %s, want 11", got)
	}
	exact, err := ceilMulDiv(uint256.NewInt(4), uint256.NewInt(3), uint256.NewInt(2))
	if err != nil {
		t.Fatalf("ceilMulDiv exact: %v", err)
	}
	if exact.Uint64() != 6 {
		t.Fatalf("ceilMulDiv exact = %s, want 6", exact)
	}
}

func TestSqrtShares(t *testing.T) {
	got, err := sqrtShares(uint256.NewInt(4_000_000), uint256.NewInt(1_000_000))
	if err != nil {
		t.Fatalf("sqrtShares: %v", err)
	}
	if got.Uint64() != 2_000_000 {
		t.Fatalf("sqrtShares = %s, want 2000000", got)
	}
	// Non-square products floor.
	got, err = sqrtShares(uint256.NewInt(2), uint256.NewInt(4))
	if err != nil {
		t.Fatalf("sqrtShares: %v", err)
	}
	if got.Uint64() != 2 {
		t.Fatalf("sqrtShares(2,4) = %s, want 2", got)
	}
}

func TestCheckedMulOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	if _, err := checkedMul(max, uint256.NewInt(2)); !errors.Is(err, ErrArithmeticOverflow) {
		t.Fatalf("expected ErrArithmeticOverflow, got %v", err)
	}
}

func TestFeeAmountFloors(t *testing.T) {
	fee, err := feeAmount(uint256.NewInt(100_000), 20)
	if err != nil {
		t.Fatalf("feeAmount: %v", err)
	}
	if fee.Uint64() != 200 {
		t.Fatalf("fee = %s, want 200", fee)
	}
	dust, err := feeAmount(uint256.NewInt(100), 20)
	if err != nil {
		t.Fatalf("feeAmount dust: %v", err)
	}
	if dust.Uint64() != 0 {
		t.Fatalf("dust fee = %s, want 0", dust)
	}
}

func TestPairIDCanonical(t *testing.T) {
	if PairID("beta", "ALPHA") != "ALPHA-BETA" {
		t.Fatalf("PairID not canonical: %s", PairID("beta", "ALPHA"))
	}
	if PairID("ALPHA", "BETA") != PairID("BETA", "ALPHA") {
		t.Fatalf("PairID depends on argument order")
	}
}
