package farm

import "math/big"

// RewardScale is the fixed-point scale applied to the reward-per-share
// accumulator so integer division keeps meaningful precision.
var RewardScale = big.NewInt(1_000_000_000_000)

// Pool is one staking pool: a staked asset (liquidity-share pair), a
// reward asset and the accumulator state driving O(1) reward settlement.
type Pool struct {
	ID              string   `json:"id"`
	StakedPair      string   `json:"stakedPair"`
	RewardAsset     string   `json:"rewardAsset"`
	RewardPerSecond *big.Int `json:"rewardPerSecond"`
	// LastRewardTime is the Unix second the accumulator was last advanced
	// to. It advances even when nothing is staked.
	LastRewardTime int64 `json:"lastRewardTime"`
	// AccRewardPerShare is scaled by RewardScale and never decreases
	// between reward-rate changes.
	AccRewardPerShare *big.Int `json:"accRewardPerShare"`
	TotalStaked       *big.Int `json:"totalStaked"`
}

// Clone returns a deep copy of the pool record.
func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.RewardPerSecond = cloneBig(p.RewardPerSecond)
	clone.AccRewardPerShare = cloneBig(p.AccRewardPerShare)
	clone.TotalStaked = cloneBig(p.TotalStaked)
	return &clone
}

// UserStake records one account's position in a pool. RewardDebt is the
// accumulator checkpoint from the last interaction; pending reward is
// always amount*accRewardPerShare/RewardScale - rewardDebt and never
// negative.
type UserStake struct {
	Owner      string   `json:"owner"`
	PoolID     string   `json:"poolId"`
	Amount     *big.Int `json:"amount"`
	RewardDebt *big.Int `json:"rewardDebt"`
}

// Clone returns a deep copy of the stake record.
func (s *UserStake) Clone() *UserStake {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Amount = cloneBig(s.Amount)
	clone.RewardDebt = cloneBig(s.RewardDebt)
	return &clone
}

// Reserve tracks the idle balance of one token available for authorized
// reserve lending, and how much is currently lent out.
type Reserve struct {
	Token     string   `json:"token"`
	Available *big.Int `json:"available"`
	LentOut   *big.Int `json:"lentOut"`
}

// Clone returns a deep copy of the reserve record.
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Available = cloneBig(r.Available)
	clone.LentOut = cloneBig(r.LentOut)
	return &clone
}

// LenderSet is the capability list of identities allowed to draw down the
// idle reserve. It is fixed at construction rather than mutated at run
// time.
type LenderSet map[string]struct{}

// NewLenderSet builds the set from the authorized identities.
func NewLenderSet(ids ...string) LenderSet {
	set := make(LenderSet, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// Contains reports whether the identity may borrow from the reserve.
func (s LenderSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
