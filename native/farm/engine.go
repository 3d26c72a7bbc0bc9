package farm

import (
	"errors"
	"math/big"
	"time"

	"tidepool/core/events"
	"tidepool/native/common"
	"tidepool/native/ledger"
)

var (
	ErrUnknownPool       = errors.New("farm: pool not configured")
	ErrInsufficientStake = errors.New("farm: insufficient staked amount")

	errNilState      = errors.New("farm: state not configured")
	errInvalidAmount = errors.New("farm: amount must be positive")
)

const moduleName = "farm"

type engineState interface {
	GetPool(poolID string) (*Pool, error)
	PutPool(poolID string, pool *Pool) error
	GetStake(poolID, owner string) (*UserStake, error)
	PutStake(poolID string, stake *UserStake) error
	GetReserve(token string) (*Reserve, error)
	PutReserve(token string, reserve *Reserve) error
}

// shareCustody moves liquidity shares between owners. The pool engine
// implements it; staking transfers shares into farm escrow and unstaking
// returns them.
type shareCustody interface {
	TransferShares(pairID, from, to string, amount *big.Int) error
}

// Engine accrues staking rewards with a reward-per-share accumulator and
// manages the shared idle reserve that authorized lending markets may draw
// down.
type Engine struct {
	state          engineState
	ledger         ledger.Ledger
	shares         shareCustody
	custodyAccount string
	rewardAccount  string
	reserveAccount string
	lenders        LenderSet
	guard          common.ReentrancyGuard
	pauses         common.PauseView
	emitter        events.Emitter
	nowFn          func() time.Time
}

// NewEngine constructs a farm engine. custodyAccount escrows staked
// shares, rewardAccount funds reward payouts, reserveAccount holds the
// lendable idle reserve and lenders is the capability set for LendOut.
func NewEngine(l ledger.Ledger, shares shareCustody, custodyAccount, rewardAccount, reserveAccount string, lenders LenderSet) *Engine {
	return &Engine{
		ledger:         l,
		shares:         shares,
		custodyAccount: custodyAccount,
		rewardAccount:  rewardAccount,
		reserveAccount: reserveAccount,
		lenders:        lenders,
		emitter:        events.NoopEmitter{},
		nowFn:          time.Now,
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

// CreatePool registers a staking pool for a liquidity-share pair. The
// accumulator starts at the current clock so rewards begin accruing
// immediately.
func (e *Engine) CreatePool(poolID, stakedPair, rewardAsset string, rewardPerSecond *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if rewardPerSecond == nil || rewardPerSecond.Sign() < 0 {
		return errInvalidAmount
	}
	pool := &Pool{
		ID:                poolID,
		StakedPair:        stakedPair,
		RewardAsset:       rewardAsset,
		RewardPerSecond:   new(big.Int).Set(rewardPerSecond),
		LastRewardTime:    e.nowFn().Unix(),
		AccRewardPerShare: big.NewInt(0),
		TotalStaked:       big.NewInt(0),
	}
	return e.state.PutPool(poolID, pool)
}

// updatePool advances the accumulator to now. With nothing staked the
// timestamp still advances so no retroactive reward is minted for the
// empty interval.
func (e *Engine) updatePool(pool *Pool) {
	now := e.nowFn().Unix()
	if now <= pool.LastRewardTime {
		return
	}
	elapsed := now - pool.LastRewardTime
	pool.LastRewardTime = now
	if pool.TotalStaked == nil || pool.TotalStaked.Sign() == 0 {
		return
	}
	reward := new(big.Int).Mul(pool.RewardPerSecond, big.NewInt(elapsed))
	increment := new(big.Int).Mul(reward, RewardScale)
	increment.Quo(increment, pool.TotalStaked)
	pool.AccRewardPerShare = new(big.Int).Add(pool.AccRewardPerShare, increment)
}

// Stake moves amount of the pool's liquidity shares into farm custody.
// Pending reward is settled against the stake before the change; computing
// it afterwards would silently forfeit the accrued reward.
func (e *Engine) Stake(poolID string, amount *big.Int, owner string) error {
	return e.adjustStake(poolID, amount, owner, true)
}

// Unstake returns amount of staked shares to the owner, settling pending
// reward first.
func (e *Engine) Unstake(poolID string, amount *big.Int, owner string) error {
	return e.adjustStake(poolID, amount, owner, false)
}

func (e *Engine) adjustStake(poolID string, amount *big.Int, owner string, staking bool) error {
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

	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return err
	}
	e.updatePool(pool)

	stake, err := e.ensureStake(poolID, owner)
	if err != nil {
		return err
	}
	if !staking && stake.Amount.Cmp(amount) < 0 {
		return ErrInsufficientStake
	}

	// Settlement basis is the stake before this change; the payout itself
	// waits until the custody move has landed, so a failed transfer cannot
	// leave a paid reward behind.
	pending := pendingReward(pool, stake)

	from, to := owner, e.custodyAccount
	if !staking {
		from, to = e.custodyAccount, owner
	}
	if err := e.shares.TransferShares(pool.StakedPair, from, to, amount); err != nil {
		return err
	}
	if pending.Sign() > 0 {
		if err := e.ledger.Transfer(e.rewardAccount, owner, pool.RewardAsset, pending); err != nil {
			// Unwind the custody move; the failed call must leave no
			// balance changes and keep the reward claimable.
			if undoErr := e.shares.TransferShares(pool.StakedPair, to, from, amount); undoErr != nil {
				return errors.Join(err, undoErr)
			}
			return err
		}
		e.emitter.Emit(events.RewardPaid{Pool: pool.ID, Owner: owner, Amount: pending})
	}

	if staking {
		stake.Amount = new(big.Int).Add(stake.Amount, amount)
		pool.TotalStaked = new(big.Int).Add(pool.TotalStaked, amount)
	} else {
		stake.Amount = new(big.Int).Sub(stake.Amount, amount)
		pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, amount)
	}
	stake.RewardDebt = rewardCheckpoint(stake.Amount, pool.AccRewardPerShare)

	if err := e.state.PutStake(poolID, stake); err != nil {
		return err
	}
	if err := e.state.PutPool(poolID, pool); err != nil {
		return err
	}
	e.emitter.Emit(events.StakeChanged{Pool: poolID, Owner: owner, Amount: new(big.Int).Set(amount), Staked: staking})
	return nil
}

// ClaimReward pays out the pending reward and re-baselines the
// checkpoint.
func (e *Engine) ClaimReward(poolID, owner string) (*big.Int, error) {
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

	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	e.updatePool(pool)

	stake, err := e.ensureStake(poolID, owner)
	if err != nil {
		return nil, err
	}
	pending := pendingReward(pool, stake)
	if pending.Sign() > 0 {
		if err := e.ledger.Transfer(e.rewardAccount, owner, pool.RewardAsset, pending); err != nil {
			return nil, err
		}
		e.emitter.Emit(events.RewardPaid{Pool: poolID, Owner: owner, Amount: new(big.Int).Set(pending)})
	}
	stake.RewardDebt = rewardCheckpoint(stake.Amount, pool.AccRewardPerShare)

	if err := e.state.PutStake(poolID, stake); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(poolID, pool); err != nil {
		return nil, err
	}
	return pending, nil
}

// EmergencyWithdraw returns the staked principal immediately, forfeiting
// all unclaimed reward. No accumulator math runs, so the withdrawal
// succeeds even when reward accounting is broken.
func (e *Engine) EmergencyWithdraw(poolID, owner string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.guard.Enter(); err != nil {
		return nil, err
	}
	defer e.guard.Exit()

	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	stake, err := e.ensureStake(poolID, owner)
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Set(stake.Amount)
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := e.shares.TransferShares(pool.StakedPair, e.custodyAccount, owner, amount); err != nil {
		return nil, err
	}
	pool.TotalStaked = new(big.Int).Sub(pool.TotalStaked, amount)
	stake.Amount = big.NewInt(0)
	stake.RewardDebt = big.NewInt(0)
	if err := e.state.PutStake(poolID, stake); err != nil {
		return nil, err
	}
	if err := e.state.PutPool(poolID, pool); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.StakeChanged{Pool: poolID, Owner: owner, Amount: amount, Staked: false})
	return amount, nil
}

// PendingReward projects the claimable reward as of now without mutating
// state.
func (e *Engine) PendingReward(poolID, owner string) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, err := e.loadPool(poolID)
	if err != nil {
		return nil, err
	}
	pool = pool.Clone()
	e.updatePool(pool)
	stake, err := e.ensureStake(poolID, owner)
	if err != nil {
		return nil, err
	}
	return pendingReward(pool, stake), nil
}

// StakeOf returns the stored stake record for the owner.
func (e *Engine) StakeOf(poolID, owner string) (*UserStake, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.ensureStake(poolID, owner)
}

func (e *Engine) loadPool(poolID string) (*Pool, error) {
	pool, err := e.state.GetPool(poolID)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrUnknownPool
	}
	if pool.AccRewardPerShare == nil {
		pool.AccRewardPerShare = big.NewInt(0)
	}
	if pool.TotalStaked == nil {
		pool.TotalStaked = big.NewInt(0)
	}
	if pool.RewardPerSecond == nil {
		pool.RewardPerSecond = big.NewInt(0)
	}
	return pool, nil
}

func (e *Engine) ensureStake(poolID, owner string) (*UserStake, error) {
	stake, err := e.state.GetStake(poolID, owner)
	if err != nil {
		return nil, err
	}
	if stake == nil {
		stake = &UserStake{Owner: owner, PoolID: poolID}
	}
	if stake.Amount == nil {
		stake.Amount = big.NewInt(0)
	}
	if stake.RewardDebt == nil {
		stake.RewardDebt = big.NewInt(0)
	}
	return stake, nil
}

func rewardCheckpoint(amount, accRewardPerShare *big.Int) *big.Int {
	checkpoint := new(big.Int).Mul(amount, accRewardPerShare)
	return checkpoint.Quo(checkpoint, RewardScale)
}

func pendingReward(pool *Pool, stake *UserStake) *big.Int {
	earned := rewardCheckpoint(stake.Amount, pool.AccRewardPerShare)
	pending := new(big.Int).Sub(earned, stake.RewardDebt)
	if pending.Sign() < 0 {
		return big.NewInt(0)
	}
	return pending
}
