package farm

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"tidepool/native/ledger"
	"tidepool/storage"
)

type mockState struct {
	pools    map[string]*Pool
	stakes   map[string]*UserStake
	reserves map[string]*Reserve
}

func newMockState() *mockState {
	return &mockState{
		pools:    make(map[string]*Pool),
		stakes:   make(map[string]*UserStake),
		reserves: make(map[string]*Reserve),
	}
}

func (m *mockState) GetPool(poolID string) (*Pool, error) { return m.pools[poolID].Clone(), nil }

func (m *mockState) PutPool(poolID string, pool *Pool) error {
	m.pools[poolID] = pool.Clone()
	return nil
}

func (m *mockState) GetStake(poolID, owner string) (*UserStake, error) {
	return m.stakes[poolID+"/"+owner].Clone(), nil
}

func (m *mockState) PutStake(poolID string, stake *UserStake) error {
	m.stakes[poolID+"/"+stake.Owner] = stake.Clone()
	return nil
}

func (m *mockState) GetReserve(token string) (*Reserve, error) {
	return m.reserves[token].Clone(), nil
}

func (m *mockState) PutReserve(token string, reserve *Reserve) error {
	m.reserves[token] = reserve.Clone()
	return nil
}

// mockCustody records share movements without touching a real pool.
type mockCustody struct {
	holdings map[string]*big.Int
	fail     error
}

func newMockCustody() *mockCustody {
	return &mockCustody{holdings: make(map[string]*big.Int)}
}

func (c *mockCustody) TransferShares(pairID, from, to string, amount *big.Int) error {
	if c.fail != nil {
		return c.fail
	}
	fromKey, toKey := pairID+"/"+from, pairID+"/"+to
	have := c.holdings[fromKey]
	if have == nil {
		have = big.NewInt(0)
	}
	if have.Cmp(amount) < 0 {
		return errors.New("mock custody: insufficient shares")
	}
	c.holdings[fromKey] = new(big.Int).Sub(have, amount)
	current := c.holdings[toKey]
	if current == nil {
		current = big.NewInt(0)
	}
	c.holdings[toKey] = new(big.Int).Add(current, amount)
	return nil
}

func (c *mockCustody) grant(pairID, owner string, amount int64) {
	c.holdings[pairID+"/"+owner] = big.NewInt(amount)
}

type testClock struct{ now int64 }

func (c *testClock) fn() func() time.Time {
	return func() time.Time { return time.Unix(c.now, 0) }
}

func newTestFarm(t *testing.T) (*Engine, *mockState, *mockCustody, *ledger.StateLedger, *testClock) {
	t.Helper()
	balances := ledger.NewStateLedger(storage.NewMemDB())
	custody := newMockCustody()
	engine := NewEngine(balances, custody, "module/farm", "module/farm-rewards", "module/farm-reserve", NewLenderSet("module/lending"))
	state := newMockState()
	engine.SetState(state)
	clock := &testClock{now: 1_000}
	engine.SetClock(clock.fn())
	return engine, state, custody, balances, clock
}

func TestRewardAccrualSingleStaker(t *testing.T) {
	engine, _, custody, balances, clock := newTestFarm(t)
	if err := balances.Credit("module/farm-rewards", "TIDE", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund rewards: %v", err)
	}
	custody.grant("ALPHA-BETA", "alice", 100)

	if err := engine.CreatePool("lp-ab", "ALPHA-BETA", "TIDE", big.NewInt(10)); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := engine.Stake("lp-ab", big.NewInt(100), "alice"); err != nil {
		t.Fatalf("stake: %v", err)
	}

	clock.now += 10
	pending, err := engine.PendingReward("lp-ab", "alice")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("pending = %s, want 100", pending)
	}

	paid, err := engine.ClaimReward("lp-ab", "alice")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if paid.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("paid = %s, want 100", paid)
	}
	got, err := balances.BalanceOf("alice", "TIDE")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("alice TIDE = %s, want 100", got)
	}

	// A second claim in the same second pays nothing.
	paid, err = engine.ClaimReward("lp-ab", "alice")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if paid.Sign() != 0 {
		t.Fatalf("second claim paid %s, want 0", paid)
	}
}

func TestRewardConservationAcrossStakers(t *testing.T) {
	engine, _, custody, balances, clock := newTestFarm(t)
	if err := balances.Credit("module/farm-rewards", "TIDE", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund rewards: %v", err)
	}
	custody.grant("ALPHA-BETA", "alice", 100)
	custody.grant("ALPHA-BETA", "bob", 300)

	if err := engine.CreatePool("lp-ab", "ALPHA-BETA", "TIDE", big.NewInt(10)); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := engine.Stake("lp-ab", big.NewInt(100), "alice"); err != nil {
		t.Fatalf("alice stake: %v", err)
	}
	clock.now += 10
	if err := engine.Stake("lp-ab", big.NewInt(300), "bob"); err != nil {
		t.Fatalf("bob stake: %v", err)
	}
	clock.now += 10

	alice, err := engine.ClaimReward("lp-ab", "alice")
	if err != nil {
		t.Fatalf("alice claim: %v", err)
	}
	bob, err := engine.ClaimReward("lp-ab", "bob")
	if err != nil {
		t.Fatalf("bob claim: %v", err)
	}
	// Alice owned the first 10 seconds outright and a quarter of the next
	// 10; bob earned the remaining three quarters.
	if alice.Cmp(big.NewInt(125)) != 0 {
		t.Fatalf("alice reward = %s, want 125", alice)
	}
	if bob.Cmp(big.NewInt(75)) != 0 {
		t.Fatalf("bob reward = %s, want 75", bob)
	}
	total := new(big.Int).Add(alice, bob)
	if total.Cmp(big.NewInt(200)) != 0 {
		t.Fatalf("total paid = %s, want 200 (20s at 10/s)", total)
	}
}

func TestEmptyIntervalMintsNothing(t *testing.T) {
	engine, state, custody, balances, clock := newTestFarm(t)
	if err := balances.Credit("module/farm-rewards", "TIDE", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund rewards: %v", err)
	}
	custody.grant("ALPHA-BETA", "alice", 100)

	if err := engine.CreatePool("lp-ab", "ALPHA-BETA", "TIDE", big.NewInt(10)); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	// Nobody staked for 100 seconds; the interval must not be paid
	// retroactively to the first staker.
	clock.now += 100
	if err := engine.Stake("lp-ab", big.NewInt(100), "alice"); err != nil {
		t.Fatalf("stake: %v", err)
	}
	pending, err := engine.PendingReward("lp-ab", "alice")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Sign() != 0 {
		t.Fatalf("pending = %s immediately after stake, want 0", pending)
	}
	if state.pools["lp-ab"].LastRewardTime != clock.now {
		t.Fatalf("accumulator timestamp did not advance over the empty interval")
	}
}

func TestUnstakeSettlesBeforeMutating(t *testing.T) {
	engine, _, custody, balances, clock := newTestFarm(t)
	if err := balances.Credit("module/farm-rewards", "TIDE", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund rewards: %v", err)
	}
	custody.grant("ALPHA-BETA", "alice", 100)

	if err := engine.CreatePool("lp-ab", "ALPHA-BETA", "TIDE", big.NewInt(10)); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := engine.Stake("lp-ab", big.NewInt(100), "alice"); err != nil {
		t.Fatalf("stake: %v", err)
	}
	clock.now += 10
	if err := engine.Unstake("lp-ab", big.NewInt(100), "alice"); err != nil {
		t.Fatalf("unstake: %v", err)
	}
	// The accrued reward is paid during the unstake, not forfeited.
	got, err := balances.BalanceOf("alice", "TIDE")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if got.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("alice TIDE after unstake = %s, want 100", got)
	}
	if shares := custody.holdings["ALPHA-BETA/alice"]; shares.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("alice shares after unstake = %s, want 100", shares)
	}
}

func TestUnstakeMoreThanStaked(t *testing.T) {
	engine, _, custody, _, _ := newTestFarm(t)
	custody.grant("ALPHA-BETA", "alice", 100)
	if err := engine.CreatePool("lp-ab", "ALPHA-BETA", "TIDE", big.NewInt(0)); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := engine.Stake("lp-ab", big.NewInt(100), "alice"); err != nil {
		t.Fatalf("stake: %v", err)
	}
	if err := engine.Unstake("lp-ab", big.NewInt(101), "alice"); !errors.Is(err, ErrInsufficientStake) {
		t.Fatalf("expected ErrInsufficientStake, got %v", err)
	}
}

func TestEmergencyWithdrawForfeitsRewards(t *testing.T) {
	engine, state, custody, balances, clock := newTestFarm(t)
	custody.grant("ALPHA-BETA", "alice", 100)
	if err := engine.CreatePool("lp-ab", "ALPHA-BETA", "TIDE", big.NewInt(10)); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := engine.Stake("lp-ab", big.NewInt(100), "alice"); err != nil {
		t.Fatalf("stake: %v", err)
	}
	clock.now += 50

	// The reward account is deliberately unfunded; a regular claim would
	// fail, the emergency path must still return the principal.
	amount, err := engine.EmergencyWithdraw("lp-ab", "alice")
	if err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("principal returned = %s, want 100", amount)
	}
	if got, _ := balances.BalanceOf("alice", "TIDE"); got.Sign() != 0 {
		t.Fatalf("emergency withdraw paid rewards: %s", got)
	}
	stake := state.stakes["lp-ab/alice"]
	if stake.Amount.Sign() != 0 || stake.RewardDebt.Sign() != 0 {
		t.Fatalf("stake not zeroed: amount=%s debt=%s", stake.Amount, stake.RewardDebt)
	}
}

func TestStakeFailedCustodyPaysNoReward(t *testing.T) {
	engine, _, custody, balances, clock := newTestFarm(t)
	if err := balances.Credit("module/farm-rewards", "TIDE", big.NewInt(1_000_000)); err != nil {
		t.Fatalf("fund rewards: %v", err)
	}
	custody.grant("ALPHA-BETA", "alice", 200)
	if err := engine.CreatePool("lp-ab", "ALPHA-BETA", "TIDE", big.NewInt(10)); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := engine.Stake("lp-ab", big.NewInt(100), "alice"); err != nil {
		t.Fatalf("stake: %v", err)
	}
	clock.now += 10

	// Repeated failing attempts must not pay the pending reward over and
	// over.
	custody.fail = errors.New("mock custody: unavailable")
	for i := 0; i < 3; i++ {
		if err := engine.Stake("lp-ab", big.NewInt(1), "alice"); err == nil {
			t.Fatalf("attempt %d: stake succeeded with custody down", i)
		}
	}
	if got, _ := balances.BalanceOf("alice", "TIDE"); got.Sign() != 0 {
		t.Fatalf("failed stakes paid out %s TIDE, want 0", got)
	}

	// The reward is still claimable once custody recovers.
	custody.fail = nil
	pending, err := engine.PendingReward("lp-ab", "alice")
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if pending.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("pending after failed attempts = %s, want 100", pending)
	}
}

func TestUnstakeFailedPayoutReturnsShares(t *testing.T) {
	engine, state, custody, _, clock := newTestFarm(t)
	custody.grant("ALPHA-BETA", "alice", 100)
	// The reward account is deliberately unfunded so the payout leg fails
	// after the custody move.
	if err := engine.CreatePool("lp-ab", "ALPHA-BETA", "TIDE", big.NewInt(10)); err != nil {
		t.Fatalf("create pool: %v", err)
	}
	if err := engine.Stake("lp-ab", big.NewInt(100), "alice"); err != nil {
		t.Fatalf("stake: %v", err)
	}
	clock.now += 10

	if err := engine.Unstake("lp-ab", big.NewInt(100), "alice"); err == nil {
		t.Fatalf("unstake succeeded with unfunded reward account")
	}
	if shares := custody.holdings["ALPHA-BETA/alice"]; shares.Sign() != 0 {
		t.Fatalf("shares left with alice after failed unstake: %s", shares)
	}
	stake := state.stakes["lp-ab/alice"]
	if stake.Amount.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("stake after failed unstake = %s, want 100", stake.Amount)
	}
}

func TestStakeUnknownPool(t *testing.T) {
	engine, _, _, _, _ := newTestFarm(t)
	if err := engine.Stake("missing", big.NewInt(1), "alice"); !errors.Is(err, ErrUnknownPool) {
		t.Fatalf("expected ErrUnknownPool, got %v", err)
	}
}
