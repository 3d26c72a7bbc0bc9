package orderbook

import (
	"errors"
	"math/big"
	"strings"
	"time"

	"tidepool/core/events"
	"tidepool/native/amm"
	"tidepool/native/common"
	"tidepool/native/ledger"
)

var (
	ErrOrderNotAvailable = errors.New("orderbook: order not available")
	ErrUnauthorized      = errors.New("orderbook: caller not authorized")

	errNilState      = errors.New("orderbook: state not configured")
	errInvalidAmount = errors.New("orderbook: amount must be positive")
	errInvalidPair   = errors.New("orderbook: invalid token pair")
	errLooseOverride = errors.New("orderbook: override below order minimum")
)

const moduleName = "orderbook"

type engineState interface {
	GetOrder(id uint64) (*Order, error)
	PutOrder(order *Order) error
	// NextOrderID returns a strictly increasing identifier; identifiers
	// are never reused even across restarts.
	NextOrderID() (uint64, error)
}

// poolSwapper is the exchange-pool surface orders are filled through.
type poolSwapper interface {
	Swap(payer, recipient, tokenIn, tokenOut string, amountIn, minAmountOut *big.Int) (*big.Int, error)
	Pool(tokenA, tokenB string) (*amm.Pool, error)
}

// Engine stores resting orders, escrows their input amounts and fills
// them through the exchange pool.
type Engine struct {
	state           engineState
	ledger          ledger.Ledger
	pool            poolSwapper
	escrowAccount   string
	treasuryAccount string
	feeBps          uint64
	guard           common.ReentrancyGuard
	pauses          common.PauseView
	emitter         events.Emitter
	nowFn           func() time.Time
}

// NewEngine constructs an order engine. feeBps is the protocol fee taken
// from swap output on execution before the owner is credited.
func NewEngine(l ledger.Ledger, pool poolSwapper, escrowAccount, treasuryAccount string, feeBps uint64) *Engine {
	return &Engine{
		ledger:          l,
		pool:            pool,
		escrowAccount:   escrowAccount,
		treasuryAccount: treasuryAccount,
		feeBps:          feeBps,
		emitter:         events.NoopEmitter{},
		nowFn:           time.Now,
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

// SetClock overrides the timestamp source; tests pin it.
func (e *Engine) SetClock(now func() time.Time) {
	if e == nil || now == nil {
		return
	}
	e.nowFn = now
}

// PlaceOrder escrows amountIn and records the resting order as open.
func (e *Engine) PlaceOrder(owner, tokenIn, tokenOut string, amountIn, minAmountOut *big.Int) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	if err := common.Guard(e.pauses, moduleName); err != nil {
		return 0, err
	}
	if err := e.guard.Enter(); err != nil {
		return 0, err
	}
	defer e.guard.Exit()

	in := strings.TrimSpace(tokenIn)
	out := strings.TrimSpace(tokenOut)
	if in == "" || out == "" || strings.EqualFold(in, out) {
		return 0, errInvalidPair
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return 0, errInvalidAmount
	}
	if minAmountOut == nil || minAmountOut.Sign() < 0 {
		return 0, errInvalidAmount
	}

	if err := e.ledger.Transfer(owner, e.escrowAccount, in, amountIn); err != nil {
		return 0, err
	}
	id, err := e.state.NextOrderID()
	if err != nil {
		return 0, err
	}
	order := &Order{
		ID:           id,
		Owner:        owner,
		TokenIn:      in,
		TokenOut:     out,
		AmountIn:     new(big.Int).Set(amountIn),
		MinAmountOut: new(big.Int).Set(minAmountOut),
		Status:       StatusOpen,
		CreatedAt:    e.nowFn().Unix(),
	}
	if err := e.state.PutOrder(order); err != nil {
		return 0, err
	}
	e.emitter.Emit(events.OrderPlaced{OrderID: id, Owner: owner})
	return id, nil
}

// CancelOrder returns the escrowed input to the owner. Only the owner may
// cancel and only while the order is open.
func (e *Engine) CancelOrder(orderID uint64, caller string) error {
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

	order, err := e.state.GetOrder(orderID)
	if err != nil {
		return err
	}
	if order == nil || order.Status != StatusOpen {
		return ErrOrderNotAvailable
	}
	if order.Owner != caller {
		return ErrUnauthorized
	}
	order = order.Clone()

	if err := e.ledger.Transfer(e.escrowAccount, order.Owner, order.TokenIn, order.AmountIn); err != nil {
		return err
	}
	order.Status = StatusCancelled
	if err := e.state.PutOrder(order); err != nil {
		return err
	}
	e.emitter.Emit(events.OrderCancelled{OrderID: orderID, Owner: order.Owner})
	return nil
}

// ExecuteOrder fills an open order through the pool. The executor may
// only tighten the owner's minimum-output guarantee, never loosen it. A
// protocol fee is deducted from the swap output before the owner is
// credited; terminal orders reject re-execution unconditionally.
func (e *Engine) ExecuteOrder(orderID uint64, minAmountOutOverride *big.Int, executor string) (*big.Int, error) {
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

	order, err := e.state.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil || order.Status != StatusOpen {
		return nil, ErrOrderNotAvailable
	}
	order = order.Clone()

	minOut := order.MinAmountOut
	if minAmountOutOverride != nil {
		if minAmountOutOverride.Cmp(order.MinAmountOut) < 0 {
			return nil, errLooseOverride
		}
		minOut = minAmountOutOverride
	}

	// The escrow account both pays and receives so the output can be
	// fee-split before crediting the owner. The pool's liquidity-fee
	// rebate lands on the escrow account in the input token and is
	// forwarded to the owner untouched.
	amountOut, err := e.pool.Swap(e.escrowAccount, e.escrowAccount, order.TokenIn, order.TokenOut, order.AmountIn, minOut)
	if err != nil {
		return nil, err
	}
	pool, err := e.pool.Pool(order.TokenIn, order.TokenOut)
	if err != nil {
		return nil, err
	}
	if pool != nil && pool.FeeLiquidityBps > 0 {
		rebate := new(big.Int).Mul(order.AmountIn, new(big.Int).SetUint64(pool.FeeLiquidityBps))
		rebate.Quo(rebate, big.NewInt(10_000))
		if rebate.Sign() > 0 {
			if err := e.ledger.Transfer(e.escrowAccount, order.Owner, order.TokenIn, rebate); err != nil {
				return nil, err
			}
		}
	}

	fee := new(big.Int).Mul(amountOut, new(big.Int).SetUint64(e.feeBps))
	fee.Quo(fee, big.NewInt(10_000))
	if fee.Sign() > 0 {
		if err := e.ledger.Transfer(e.escrowAccount, e.treasuryAccount, order.TokenOut, fee); err != nil {
			return nil, err
		}
	}
	net := new(big.Int).Sub(amountOut, fee)
	if net.Sign() > 0 {
		if err := e.ledger.Transfer(e.escrowAccount, order.Owner, order.TokenOut, net); err != nil {
			return nil, err
		}
	}

	order.Status = StatusFilled
	order.AmountOut = net
	if err := e.state.PutOrder(order); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.OrderFilled{OrderID: orderID, Owner: order.Owner, AmountOut: new(big.Int).Set(net)})
	return net, nil
}

// Order returns the stored order record, nil when the id was never
// allocated.
func (e *Engine) Order(orderID uint64) (*Order, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	order, err := e.state.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	return order.Clone(), nil
}
