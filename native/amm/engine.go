package amm

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"

	"tidepool/core/events"
	"tidepool/native/common"
	"tidepool/native/ledger"
)

var (
	ErrInsufficientLiquidity = errors.New("amm: insufficient liquidity")
	ErrSlippageExceeded      = errors.New("amm: slippage exceeded")
	ErrInvalidToken          = errors.New("amm: invalid token")

	errNilState      = errors.New("amm: state not configured")
	errInvalidAmount = errors.New("amm: amount must be positive")
)

const moduleName = "amm"

type engineState interface {
	GetPool(pairID string) (*Pool, error)
	PutPool(pairID string, pool *Pool) error
	GetShares(pairID, owner string) (*uint256.Int, error)
	PutShares(pairID, owner string, amount *uint256.Int) error
}

// Engine executes the constant-product exchange: share minting and
// burning, swaps with the two-way fee split, and read-only quoting.
type Engine struct {
	state           engineState
	ledger          ledger.Ledger
	moduleAccount   string
	treasuryAccount string
	feeProtocolBps  uint64
	feeLiquidityBps uint64
	guard           common.ReentrancyGuard
	pauses          common.PauseView
	emitter         events.Emitter
}

// NewEngine constructs a pool engine settling against the supplied balance
// ledger. moduleAccount escrows the pooled reserves; treasuryAccount
// receives the protocol side of the swap fee.
func NewEngine(l ledger.Ledger, moduleAccount, treasuryAccount string, feeProtocolBps, feeLiquidityBps uint64) *Engine {
	return &Engine{
		ledger:          l,
		moduleAccount:   moduleAccount,
		treasuryAccount: treasuryAccount,
		feeProtocolBps:  feeProtocolBps,
		feeLiquidityBps: feeLiquidityBps,
		emitter:         events.NoopEmitter{},
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

// Deposit adds liquidity for the asset pair and mints shares to recipient.
// The first deposit seeds the pool with geometric-mean pricing and burns
// MinimumLiquidityShares; later deposits mint pro rata and only draw the
// amounts actually used, so excess of the looser-constrained asset stays
// with the depositor.
func (e *Engine) Deposit(tokenA, tokenB string, amountA, amountB *big.Int, recipient string) (*big.Int, error) {
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

	if normalizeToken(tokenA) == "" || normalizeToken(tokenB) == "" || normalizeToken(tokenA) == normalizeToken(tokenB) {
		return nil, ErrInvalidToken
	}
	if amountA == nil || amountA.Sign() <= 0 || amountB == nil || amountB.Sign() <= 0 {
		return nil, ErrInsufficientLiquidity
	}

	pairID := PairID(tokenA, tokenB)
	pool, err := e.state.GetPool(pairID)
	if err != nil {
		return nil, err
	}

	a, err := toUint256(amountA)
	if err != nil {
		return nil, err
	}
	b, err := toUint256(amountB)
	if err != nil {
		return nil, err
	}

	if pool == nil {
		return e.bootstrapPool(pairID, tokenA, tokenB, a, b, recipient)
	}
	return e.depositExisting(pool, tokenA, a, b, recipient)
}

func (e *Engine) bootstrapPool(pairID, tokenA, tokenB string, a, b *uint256.Int, recipient string) (*big.Int, error) {
	minted, err := sqrtShares(a, b)
	if err != nil {
		return nil, err
	}
	floor := uint256.NewInt(MinimumLiquidityShares)
	if minted.Cmp(floor) <= 0 {
		return nil, ErrInsufficientLiquidity
	}
	recipientShares := new(uint256.Int).Sub(minted, floor)

	if err := e.ledger.Transfer(recipient, e.moduleAccount, tokenA, a.ToBig()); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(recipient, e.moduleAccount, tokenB, b.ToBig()); err != nil {
		// Return the first leg; a failed deposit must leave no balance
		// changes behind.
		if undoErr := e.ledger.Transfer(e.moduleAccount, recipient, tokenA, a.ToBig()); undoErr != nil {
			return nil, errors.Join(err, undoErr)
		}
		return nil, err
	}

	pool := &Pool{
		PairID:          pairID,
		FeeProtocolBps:  e.feeProtocolBps,
		FeeLiquidityBps: e.feeLiquidityBps,
		TotalShares:     minted,
	}
	pool.TokenA, pool.TokenB = canonicalOrder(tokenA, tokenB)
	if pool.TokenA == normalizeToken(tokenA) {
		pool.ReserveA, pool.ReserveB = a, b
	} else {
		pool.ReserveA, pool.ReserveB = b, a
	}

	if err := e.state.PutShares(pairID, BurnedSharesOwner, floor); err != nil {
		return nil, err
	}
	if err := e.state.PutShares(pairID, recipient, recipientShares); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pairID, pool); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LiquidityDeposited{Pair: pairID, Owner: recipient, Shares: recipientShares.ToBig()})
	return recipientShares.ToBig(), nil
}

func (e *Engine) depositExisting(pool *Pool, tokenA string, a, b *uint256.Int, recipient string) (*big.Int, error) {
	pool = pool.Clone()
	if pool.TotalShares == nil || pool.TotalShares.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	// a/b arrive in the caller's order; flip them into canonical order.
	if pool.TokenA != normalizeToken(tokenA) {
		a, b = b, a
	}
	if pool.ReserveA.IsZero() || pool.ReserveB.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	sharesFromA, err := mulDiv(a, pool.TotalShares, pool.ReserveA)
	if err != nil {
		return nil, err
	}
	sharesFromB, err := mulDiv(b, pool.TotalShares, pool.ReserveB)
	if err != nil {
		return nil, err
	}

	minted := sharesFromA
	usedA, usedB := a, b
	if sharesFromA.Cmp(sharesFromB) <= 0 {
		// A constrains the mint; only the matching amount of B is drawn.
		usedB, err = ceilMulDiv(minted, pool.ReserveB, pool.TotalShares)
		if err != nil {
			return nil, err
		}
		if usedB.Cmp(b) > 0 {
			usedB = b
		}
	} else {
		minted = sharesFromB
		usedA, err = ceilMulDiv(minted, pool.ReserveA, pool.TotalShares)
		if err != nil {
			return nil, err
		}
		if usedA.Cmp(a) > 0 {
			usedA = a
		}
	}
	if minted.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	if err := e.ledger.Transfer(recipient, e.moduleAccount, pool.TokenA, usedA.ToBig()); err != nil {
		return nil, err
	}
	if err := e.ledger.Transfer(recipient, e.moduleAccount, pool.TokenB, usedB.ToBig()); err != nil {
		// Return the first leg; a failed deposit must leave no balance
		// changes behind.
		if undoErr := e.ledger.Transfer(e.moduleAccount, recipient, pool.TokenA, usedA.ToBig()); undoErr != nil {
			return nil, errors.Join(err, undoErr)
		}
		return nil, err
	}

	newReserveA, err := checkedAdd(pool.ReserveA, usedA)
	if err != nil {
		return nil, err
	}
	newReserveB, err := checkedAdd(pool.ReserveB, usedB)
	if err != nil {
		return nil, err
	}
	newTotal, err := checkedAdd(pool.TotalShares, minted)
	if err != nil {
		return nil, err
	}
	pool.ReserveA, pool.ReserveB, pool.TotalShares = newReserveA, newReserveB, newTotal

	owned, err := e.sharesOf(pool.PairID, recipient)
	if err != nil {
		return nil, err
	}
	owned, err = checkedAdd(owned, minted)
	if err != nil {
		return nil, err
	}
	if err := e.state.PutShares(pool.PairID, recipient, owned); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(pool.PairID, pool); err != nil {
		return nil, err
	}

	e.emitter.Emit(events.LiquidityDeposited{Pair: pool.PairID, Owner: recipient, Shares: minted.ToBig()})
	return minted.ToBig(), nil
}

// Withdraw burns shares and pays out the pro-rata reserve amounts. Floor
// division means rounding loss always stays with the pool. Amounts are
// returned in the caller's token order.
func (e *Engine) Withdraw(tokenA, tokenB string, shares *big.Int, owner string) (*big.Int, *big.Int, error) {
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

	if shares == nil || shares.Sign() <= 0 {
		return nil, nil, errInvalidAmount
	}
	burn, err := toUint256(shares)
	if err != nil {
		return nil, nil, err
	}

	pairID := PairID(tokenA, tokenB)
	pool, err := e.state.GetPool(pairID)
	if err != nil {
		return nil, nil, err
	}
	if pool == nil || pool.TotalShares == nil || pool.TotalShares.IsZero() {
		return nil, nil, ErrInsufficientLiquidity
	}
	pool = pool.Clone()

	owned, err := e.sharesOf(pairID, owner)
	if err != nil {
		return nil, nil, err
	}
	if owned.Cmp(burn) < 0 {
		return nil, nil, ErrInsufficientLiquidity
	}

	amountA, err := mulDiv(burn, pool.ReserveA, pool.TotalShares)
	if err != nil {
		return nil, nil, err
	}
	amountB, err := mulDiv(burn, pool.ReserveB, pool.TotalShares)
	if err != nil {
		return nil, nil, err
	}

	if !amountA.IsZero() {
		if err := e.ledger.Transfer(e.moduleAccount, owner, pool.TokenA, amountA.ToBig()); err != nil {
			return nil, nil, err
		}
	}
	if !amountB.IsZero() {
		if err := e.ledger.Transfer(e.moduleAccount, owner, pool.TokenB, amountB.ToBig()); err != nil {
			return nil, nil, err
		}
	}

	pool.ReserveA = new(uint256.Int).Sub(pool.ReserveA, amountA)
	pool.ReserveB = new(uint256.Int).Sub(pool.ReserveB, amountB)
	pool.TotalShares = new(uint256.Int).Sub(pool.TotalShares, burn)
	if err := e.state.PutShares(pairID, owner, new(uint256.Int).Sub(owned, burn)); err != nil {
		return nil, nil, err
	}
	if err := e.state.PutPool(pairID, pool); err != nil {
		return nil, nil, err
	}

	e.emitter.Emit(events.LiquidityWithdrawn{Pair: pairID, Owner: owner, Shares: burn.ToBig()})

	outA, outB := amountA.ToBig(), amountB.ToBig()
	if pool.TokenA != normalizeToken(tokenA) {
		outA, outB = outB, outA
	}
	return outA, outB, nil
}

// Swap trades amountIn of tokenIn for tokenOut. Both fee legs are deducted
// from amountIn before the constant-product formula: the protocol fee is
// credited to the treasury and the liquidity fee to the swap recipient.
func (e *Engine) Swap(payer, recipient, tokenIn, tokenOut string, amountIn, minAmountOut *big.Int) (*big.Int, error) {
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

	if normalizeToken(tokenIn) == normalizeToken(tokenOut) {
		return nil, ErrInvalidToken
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	in, err := toUint256(amountIn)
	if err != nil {
		return nil, err
	}
	minOut := uint256.NewInt(0)
	if minAmountOut != nil {
		if minOut, err = toUint256(minAmountOut); err != nil {
			return nil, err
		}
	}

	pairID := PairID(tokenIn, tokenOut)
	pool, err := e.state.GetPool(pairID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrInvalidToken
	}
	pool = pool.Clone()

	reserveIn, reserveOut := pool.ReserveA, pool.ReserveB
	inIsA := pool.TokenA == normalizeToken(tokenIn)
	if !inIsA {
		reserveIn, reserveOut = pool.ReserveB, pool.ReserveA
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}

	protocolFee, err := feeAmount(in, pool.FeeProtocolBps)
	if err != nil {
		return nil, err
	}
	liquidityFee, err := feeAmount(in, pool.FeeLiquidityBps)
	if err != nil {
		return nil, err
	}
	netIn := new(uint256.Int).Sub(in, protocolFee)
	if netIn.Cmp(liquidityFee) < 0 {
		return nil, errInvalidAmount
	}
	netIn.Sub(netIn, liquidityFee)
	if netIn.IsZero() {
		return nil, errInvalidAmount
	}

	amountOut, err := constantProductOut(netIn, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if amountOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	if amountOut.Cmp(minOut) < 0 {
		return nil, ErrSlippageExceeded
	}

	if err := e.ledger.Transfer(payer, e.moduleAccount, tokenIn, in.ToBig()); err != nil {
		return nil, err
	}
	if !protocolFee.IsZero() {
		if err := e.ledger.Transfer(e.moduleAccount, e.treasuryAccount, tokenIn, protocolFee.ToBig()); err != nil {
			return nil, err
		}
	}
	if !liquidityFee.IsZero() {
		if err := e.ledger.Transfer(e.moduleAccount, recipient, tokenIn, liquidityFee.ToBig()); err != nil {
			return nil, err
		}
	}
	if err := e.ledger.Transfer(e.moduleAccount, recipient, tokenOut, amountOut.ToBig()); err != nil {
		return nil, err
	}

	newReserveIn, err := checkedAdd(reserveIn, netIn)
	if err != nil {
		return nil, err
	}
	newReserveOut := new(uint256.Int).Sub(reserveOut, amountOut)
	if inIsA {
		pool.ReserveA, pool.ReserveB = newReserveIn, newReserveOut
	} else {
		pool.ReserveA, pool.ReserveB = newReserveOut, newReserveIn
	}
	if err := e.state.PutPool(pairID, pool); err != nil {
		return nil, err
	}

	out := amountOut.ToBig()
	e.emitter.Emit(events.SwapExecuted{
		Pair:      pairID,
		TokenIn:   normalizeToken(tokenIn),
		TokenOut:  normalizeToken(tokenOut),
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: out,
		Recipient: recipient,
	})
	return out, nil
}

// TransferShares moves liquidity shares between owners within a pair.
// The reward farm uses it to take custody of staked shares and to return
// them on unstake. The module pause does not apply here: custody moves
// must stay available so emergency unstaking keeps working.
func (e *Engine) TransferShares(pairID, from, to string, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	value, err := toUint256(amount)
	if err != nil {
		return err
	}
	fromShares, err := e.sharesOf(pairID, from)
	if err != nil {
		return err
	}
	if fromShares.Cmp(value) < 0 {
		return ErrInsufficientLiquidity
	}
	toShares, err := e.sharesOf(pairID, to)
	if err != nil {
		return err
	}
	toShares, err = checkedAdd(toShares, value)
	if err != nil {
		return err
	}
	if err := e.state.PutShares(pairID, from, new(uint256.Int).Sub(fromShares, value)); err != nil {
		return err
	}
	return e.state.PutShares(pairID, to, toShares)
}

// Pool returns the stored pool record for the pair, nil when it has never
// been seeded.
func (e *Engine) Pool(tokenA, tokenB string) (*Pool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.state.GetPool(PairID(tokenA, tokenB))
	if err != nil {
		return nil, err
	}
	return pool.Clone(), nil
}

// Reserves reports the current reserves in the caller's token order.
func (e *Engine) Reserves(tokenA, tokenB string) (*big.Int, *big.Int, error) {
	pool, err := e.Pool(tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}
	if pool == nil {
		return nil, nil, ErrInsufficientLiquidity
	}
	a, b := pool.ReserveA.ToBig(), pool.ReserveB.ToBig()
	if pool.TokenA != normalizeToken(tokenA) {
		a, b = b, a
	}
	return a, b, nil
}

// SharesOf reports the liquidity shares held by owner in the pair.
func (e *Engine) SharesOf(tokenA, tokenB, owner string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	shares, err := e.sharesOf(PairID(tokenA, tokenB), owner)
	if err != nil {
		return nil, err
	}
	return shares.ToBig(), nil
}

func (e *Engine) sharesOf(pairID, owner string) (*uint256.Int, error) {
	shares, err := e.state.GetShares(pairID, owner)
	if err != nil {
		return nil, err
	}
	if shares == nil {
		return uint256.NewInt(0), nil
	}
	return shares, nil
}
