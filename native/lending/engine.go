package lending

import (
	"errors"
	"math/big"
	"time"

	"tidepool/core/events"
	"tidepool/native/common"
	"tidepool/native/farm"
	"tidepool/native/ledger"
	"tidepool/native/oracle"
)

var (
	ErrStaleOracle            = errors.New("lending: stale oracle observation")
	ErrInsufficientCollateral = errors.New("lending: insufficient collateral")
	ErrNotLiquidatable        = errors.New("lending: position not liquidatable")

	errNilState      = errors.New("lending: state not configured")
	errInvalidAmount = errors.New("lending: amount must be positive")
	errAssetMismatch = errors.New("lending: borrow asset does not match position")
	errNoDebt        = errors.New("lending: no outstanding debt")
)

const moduleName = "lending"

type engineState interface {
	GetPosition(owner, collateralAsset string) (*Position, error)
	PutPosition(position *Position) error
	DeletePosition(owner, collateralAsset string) error
	GetAssetStats(asset string) (*AssetStats, error)
	PutAssetStats(stats *AssetStats) error
}

// priceSource resolves oracle quotes. Quotes are fetched fresh for every
// risk decision and never cached across operations.
type priceSource interface {
	GetPrice(symbol string) (oracle.PriceQuote, error)
}

// reserveSource is the authorized borrowing capability exposed by the
// reward farm.
type reserveSource interface {
	LendOut(lender, token string, amount *big.Int, recipient string) error
	RepayReserve(lender, token string, amount *big.Int, payer string) error
	ReserveOf(token string) (*farm.Reserve, error)
}

// Engine runs the collateralized borrowing market: oracle-priced position
// opening, interest-first repayment and threshold liquidation. Borrowed
// liquidity is drawn from the reward farm's idle reserve under the
// engine's lender identity.
type Engine struct {
	state             engineState
	ledger            ledger.Ledger
	prices            priceSource
	reserve           reserveSource
	lenderID          string
	collateralAccount string
	params            RiskParameters
	guard             common.ReentrancyGuard
	pauses            common.PauseView
	emitter           events.Emitter
	nowFn             func() time.Time
}

// NewEngine constructs a lending engine. lenderID must appear in the
// farm's authorized lender set; collateralAccount escrows pledged
// collateral.
func NewEngine(l ledger.Ledger, prices priceSource, reserve reserveSource, lenderID, collateralAccount string, params RiskParameters) *Engine {
	return &Engine{
		ledger:            l,
		prices:            prices,
		reserve:           reserve,
		lenderID:          lenderID,
		collateralAccount: collateralAccount,
		params:            params,
		emitter:           events.NoopEmitter{},
		nowFn:             time.Now,
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

func (e *Engine) SetPauses(p common.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil || emitter == nil {
		return
	}
	e.emitter = emitter
}

// SetClock overrides the accrual clock; tests pin it.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.nowFn = now
}

// DepositAndBorrow pledges collateral and draws the borrow amount from
// the farm reserve in one operation. An existing position for the same
// (owner, collateral asset) is topped up; the borrow asset cannot change
// while the position is open. Both legs are priced with fresh oracle
// quotes and rejected when either observation is older than the staleness
// period.
func (e *Engine) DepositAndBorrow(owner, collateralAsset string, collateralAmount *big.Int, borrowAsset string, borrowAmount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()

	if collateralAmount == nil || collateralAmount.Sign() < 0 || borrowAmount == nil || borrowAmount.Sign() < 0 {
		return errInvalidAmount
	}
	if collateralAmount.Sign() == 0 && borrowAmount.Sign() == 0 {
		return errInvalidAmount
	}

	collateralPrice, err := e.freshPrice(collateralAsset)
	if err != nil {
		return err
	}
	borrowPrice, err := e.freshPrice(borrowAsset)
	if err != nil {
		return err
	}

	position, err := e.state.GetPosition(owner, collateralAsset)
	if err != nil {
		return err
	}
	if position == nil {
		position = &Position{
			Owner:            owner,
			CollateralAsset:  collateralAsset,
			BorrowAsset:      borrowAsset,
			CollateralAmount: big.NewInt(0),
			BorrowPrincipal:  big.NewInt(0),
			AccruedInterest:  big.NewInt(0),
		}
	} else {
		position = position.Clone()
		if position.BorrowAsset != borrowAsset && position.Debt().Sign() > 0 {
			return errAssetMismatch
		}
		position.BorrowAsset = borrowAsset
	}

	stats, err := e.ensureStats(borrowAsset)
	if err != nil {
		return err
	}
	if err := e.accrue(position, stats); err != nil {
		return err
	}

	newCollateral := new(big.Int).Add(position.CollateralAmount, collateralAmount)
	newDebt := new(big.Int).Add(position.Debt(), borrowAmount)
	if !meetsRatio(newCollateral, collateralPrice.Price, newDebt, borrowPrice.Price, e.params.CollateralizationRatio) {
		return ErrInsufficientCollateral
	}

	if collateralAmount.Sign() > 0 {
		if err := e.ledger.Transfer(owner, e.collateralAccount, collateralAsset, collateralAmount); err != nil {
			return err
		}
	}
	if borrowAmount.Sign() > 0 {
		// Hard dependency on the farm reserve; an insufficient reserve
		// fails the whole operation, no retry. The pledged collateral goes
		// back so the failed borrow leaves no balance changes.
		if err := e.reserve.LendOut(e.lenderID, borrowAsset, borrowAmount, owner); err != nil {
			if collateralAmount.Sign() > 0 {
				if undoErr := e.ledger.Transfer(e.collateralAccount, owner, collateralAsset, collateralAmount); undoErr != nil {
					return errors.Join(err, undoErr)
				}
			}
			return err
		}
	}

	position.CollateralAmount = newCollateral
	position.BorrowPrincipal = new(big.Int).Add(position.BorrowPrincipal, borrowAmount)
	stats.TotalBorrowed = new(big.Int).Add(stats.TotalBorrowed, borrowAmount)

	if err := e.state.PutPosition(position); err != nil {
		return err
	}
	if err := e.state.PutAssetStats(stats); err != nil {
		return err
	}
	e.emitter.Emit(events.PositionOpened{
		Owner:           owner,
		CollateralAsset: collateralAsset,
		BorrowAsset:     borrowAsset,
		Borrowed:        new(big.Int).Set(borrowAmount),
	})
	return nil
}

// Repay applies amount against the position's debt, interest first, and
// returns the funds to the farm reserve. Full repayment releases the
// collateral and removes the position.
func (e *Engine) Repay(owner, collateralAsset string, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()

	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	position, err := e.state.GetPosition(owner, collateralAsset)
	if err != nil {
		return nil, err
	}
	if position == nil {
		return nil, errNoDebt
	}
	position = position.Clone()

	stats, err := e.ensureStats(position.BorrowAsset)
	if err != nil {
		return nil, err
	}
	if err := e.accrue(position, stats); err != nil {
		return nil, err
	}
	debt := position.Debt()
	if debt.Sign() == 0 {
		return nil, errNoDebt
	}

	repaid := new(big.Int).Set(amount)
	if repaid.Cmp(debt) > 0 {
		repaid = debt
	}
	if err := e.reserve.RepayReserve(e.lenderID, position.BorrowAsset, repaid, owner); err != nil {
		return nil, err
	}

	interestPaid := new(big.Int).Set(repaid)
	if interestPaid.Cmp(position.AccruedInterest) > 0 {
		interestPaid = new(big.Int).Set(position.AccruedInterest)
	}
	principalPaid := new(big.Int).Sub(repaid, interestPaid)
	position.AccruedInterest = new(big.Int).Sub(position.AccruedInterest, interestPaid)
	position.BorrowPrincipal = new(big.Int).Sub(position.BorrowPrincipal, principalPaid)

	stats.TotalBorrowed = new(big.Int).Sub(stats.TotalBorrowed, principalPaid)
	if stats.TotalBorrowed.Sign() < 0 {
		stats.TotalBorrowed = big.NewInt(0)
	}
	if err := e.state.PutAssetStats(stats); err != nil {
		return nil, err
	}

	closed := position.Debt().Sign() == 0
	if closed {
		if position.CollateralAmount.Sign() > 0 {
			if err := e.ledger.Transfer(e.collateralAccount, owner, collateralAsset, position.CollateralAmount); err != nil {
				return nil, err
			}
		}
		if err := e.state.DeletePosition(owner, collateralAsset); err != nil {
			return nil, err
		}
	} else {
		if err := e.state.PutPosition(position); err != nil {
			return nil, err
		}
	}

	e.emitter.Emit(events.PositionRepaid{Owner: owner, Asset: position.BorrowAsset, Amount: repaid, Closed: closed})
	return repaid, nil
}

// Liquidate force-closes an undercollateralized position. The liquidator
// repays the full debt into the farm reserve and seizes collateral worth
// the repaid value plus the liquidation bonus; any remainder goes back to
// the borrower. All-or-nothing: there is no partial liquidation.
func (e *Engine) Liquidate(owner, collateralAsset, liquidator string) (*big.Int, *big.Int, error) {
	if e == nil || e.state == nil {
		return nil, nil, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return nil, nil, err
	}
	if err := e.guard.Enter(); err != nil {
		return nil, nil, err
	}
	defer e.guard.Exit()

	position, err := e.state.GetPosition(owner, collateralAsset)
	if err != nil {
		return nil, nil, err
	}
	if position == nil {
		return nil, nil, errNoDebt
	}
	position = position.Clone()

	stats, err := e.ensureStats(position.BorrowAsset)
	if err != nil {
		return nil, nil, err
	}
	if err := e.accrue(position, stats); err != nil {
		return nil, nil, err
	}
	debt := position.Debt()
	if debt.Sign() == 0 {
		return nil, nil, errNoDebt
	}

	collateralPrice, err := e.freshPrice(collateralAsset)
	if err != nil {
		return nil, nil, err
	}
	borrowPrice, err := e.freshPrice(position.BorrowAsset)
	if err != nil {
		return nil, nil, err
	}
	if meetsRatio(position.CollateralAmount, collateralPrice.Price, debt, borrowPrice.Price, e.params.LiquidationThreshold) {
		return nil, nil, ErrNotLiquidatable
	}

	if err := e.reserve.RepayReserve(e.lenderID, position.BorrowAsset, debt, liquidator); err != nil {
		return nil, nil, err
	}

	seized := seizeAmount(debt, borrowPrice.Price, collateralPrice.Price, e.params.LiquidationBonusBps)
	if seized.Cmp(position.CollateralAmount) > 0 {
		seized = new(big.Int).Set(position.CollateralAmount)
	}
	if seized.Sign() > 0 {
		if err := e.ledger.Transfer(e.collateralAccount, liquidator, collateralAsset, seized); err != nil {
			return nil, nil, err
		}
	}
	remainder := new(big.Int).Sub(position.CollateralAmount, seized)
	if remainder.Sign() > 0 {
		if err := e.ledger.Transfer(e.collateralAccount, owner, collateralAsset, remainder); err != nil {
			return nil, nil, err
		}
	}

	stats.TotalBorrowed = new(big.Int).Sub(stats.TotalBorrowed, position.BorrowPrincipal)
	if stats.TotalBorrowed.Sign() < 0 {
		stats.TotalBorrowed = big.NewInt(0)
	}
	if err := e.state.PutAssetStats(stats); err != nil {
		return nil, nil, err
	}
	if err := e.state.DeletePosition(owner, collateralAsset); err != nil {
		return nil, nil, err
	}

	e.emitter.Emit(events.PositionLiquidated{Owner: owner, Liquidator: liquidator, Repaid: debt, Seized: seized})
	return debt, seized, nil
}

// Position returns the stored record without re-accruing interest;
// read-only queries never move the accrual clock.
func (e *Engine) Position(owner, collateralAsset string) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, err := e.state.GetPosition(owner, collateralAsset)
	if err != nil {
		return nil, err
	}
	return position.Clone(), nil
}

// accrue applies the lazy interest update for the elapsed wall-clock time
// since the position was last touched.
func (e *Engine) accrue(position *Position, stats *AssetStats) error {
	now := e.nowFn().Unix()
	if position.LastAccrualTime == 0 {
		position.LastAccrualTime = now
		return nil
	}
	elapsed := now - position.LastAccrualTime
	position.LastAccrualTime = now
	if elapsed <= 0 {
		return nil
	}
	reserve, err := e.reserve.ReserveOf(position.BorrowAsset)
	if err != nil {
		return err
	}
	total := new(big.Int).Add(reserve.Available, reserve.LentOut)
	util := utilizationBps(stats.TotalBorrowed, total)
	rate := borrowRateBps(e.params, util)
	delta := interestDelta(position.Debt(), rate, elapsed)
	if delta.Sign() > 0 {
		position.AccruedInterest = new(big.Int).Add(position.AccruedInterest, delta)
	}
	return nil
}

// freshPrice fetches a quote and enforces the staleness window.
func (e *Engine) freshPrice(symbol string) (oracle.PriceQuote, error) {
	quote, err := e.prices.GetPrice(symbol)
	if err != nil {
		return oracle.PriceQuote{}, err
	}
	if e.params.StalenessPeriod > 0 {
		age := e.nowFn().Sub(quote.ObservedAt)
		if age > e.params.StalenessPeriod {
			return oracle.PriceQuote{}, ErrStaleOracle
		}
	}
	return quote, nil
}

func (e *Engine) ensureStats(asset string) (*AssetStats, error) {
	stats, err := e.state.GetAssetStats(asset)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = &AssetStats{Asset: asset}
	}
	if stats.TotalBorrowed == nil {
		stats.TotalBorrowed = big.NewInt(0)
	}
	return stats.Clone(), nil
}

// meetsRatio reports collateralValue >= borrowValue * ratioPercent / 100
// using exact rational arithmetic. Zero debt is always healthy; zero
// collateral with debt never is.
func meetsRatio(collateral *big.Int, collateralPrice *big.Rat, debt *big.Int, borrowPrice *big.Rat, ratioPercent uint64) bool {
	if debt == nil || debt.Sign() == 0 {
		return true
	}
	if collateral == nil || collateral.Sign() == 0 {
		return false
	}
	collateralValue := new(big.Rat).Mul(collateralPrice, new(big.Rat).SetInt(collateral))
	borrowValue := new(big.Rat).Mul(borrowPrice, new(big.Rat).SetInt(debt))
	lhs := collateralValue.Mul(collateralValue, big.NewRat(100, 1))
	rhs := borrowValue.Mul(borrowValue, new(big.Rat).SetUint64(ratioPercent))
	return lhs.Cmp(rhs) >= 0
}

// seizeAmount converts the repaid debt value plus bonus into collateral
// units: debt * borrowPrice * (10000+bonus) / (10000 * collateralPrice).
func seizeAmount(debt *big.Int, borrowPrice, collateralPrice *big.Rat, bonusBps uint64) *big.Int {
	value := new(big.Rat).Mul(borrowPrice, new(big.Rat).SetInt(debt))
	value.Mul(value, new(big.Rat).SetFrac64(int64(10_000+bonusBps), 10_000))
	if collateralPrice == nil || collateralPrice.Sign() == 0 {
		return big.NewInt(0)
	}
	value.Quo(value, collateralPrice)
	seized := new(big.Int).Quo(value.Num(), value.Denom())
	if seized.Sign() < 0 {
		return big.NewInt(0)
	}
	return seized
}
