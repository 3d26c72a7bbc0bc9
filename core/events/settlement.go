package events

import "math/big"

const (
	TypeSwapExecuted       = "amm.swap_executed"
	TypeLiquidityDeposited = "amm.liquidity_deposited"
	TypeLiquidityWithdrawn = "amm.liquidity_withdrawn"
	TypeStakeChanged       = "farm.stake_changed"
	TypeRewardPaid         = "farm.reward_paid"
	TypeReserveLent        = "farm.reserve_lent"
	TypePositionOpened     = "lending.position_opened"
	TypePositionRepaid     = "lending.position_repaid"
	TypePositionLiquidated = "lending.position_liquidated"
	TypeOrderPlaced        = "orderbook.order_placed"
	TypeOrderCancelled     = "orderbook.order_cancelled"
	TypeOrderFilled        = "orderbook.order_filled"
)

// SwapExecuted records a completed pool swap.
type SwapExecuted struct {
	Pair      string
	TokenIn   string
	TokenOut  string
	AmountIn  *big.Int
	AmountOut *big.Int
	Recipient string
}

func (SwapExecuted) EventType() string { return TypeSwapExecuted }

// LiquidityDeposited records shares minted against a pool deposit.
type LiquidityDeposited struct {
	Pair   string
	Owner  string
	Shares *big.Int
}

func (LiquidityDeposited) EventType() string { return TypeLiquidityDeposited }

// LiquidityWithdrawn records shares burned on a pool withdrawal.
type LiquidityWithdrawn struct {
	Pair   string
	Owner  string
	Shares *big.Int
}

func (LiquidityWithdrawn) EventType() string { return TypeLiquidityWithdrawn }

// StakeChanged records a farm stake or unstake.
type StakeChanged struct {
	Pool   string
	Owner  string
	Amount *big.Int
	Staked bool
}

func (StakeChanged) EventType() string { return TypeStakeChanged }

// RewardPaid records settled staking rewards leaving the reward account.
type RewardPaid struct {
	Pool   string
	Owner  string
	Amount *big.Int
}

func (RewardPaid) EventType() string { return TypeRewardPaid }

// ReserveLent records an authorized draw against the farm reserve.
type ReserveLent struct {
	Lender string
	Token  string
	Amount *big.Int
}

func (ReserveLent) EventType() string { return TypeReserveLent }

// PositionOpened records a new or extended borrow position.
type PositionOpened struct {
	Owner           string
	CollateralAsset string
	BorrowAsset     string
	Borrowed        *big.Int
}

func (PositionOpened) EventType() string { return TypePositionOpened }

// PositionRepaid records a repayment applied to a position.
type PositionRepaid struct {
	Owner  string
	Asset  string
	Amount *big.Int
	Closed bool
}

func (PositionRepaid) EventType() string { return TypePositionRepaid }

// PositionLiquidated records a forced close of an undercollateralized
// position.
type PositionLiquidated struct {
	Owner      string
	Liquidator string
	Repaid     *big.Int
	Seized     *big.Int
}

func (PositionLiquidated) EventType() string { return TypePositionLiquidated }

// OrderPlaced records a resting order entering the book.
type OrderPlaced struct {
	OrderID uint64
	Owner   string
}

func (OrderPlaced) EventType() string { return TypeOrderPlaced }

// OrderCancelled records an owner cancellation.
type OrderCancelled struct {
	OrderID uint64
	Owner   string
}

func (OrderCancelled) EventType() string { return TypeOrderCancelled }

// OrderFilled records an order executed through the pool.
type OrderFilled struct {
	OrderID   uint64
	Owner     string
	AmountOut *big.Int
}

func (OrderFilled) EventType() string { return TypeOrderFilled }
