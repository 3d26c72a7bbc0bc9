// Package state persists the settlement records behind the narrow state
// interfaces each engine declares. One Manager serves all engines; keys
// are namespaced per module.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"

	"tidepool/native/amm"
	"tidepool/native/farm"
	"tidepool/native/lending"
	"tidepool/native/orderbook"
	"tidepool/storage"
)

const (
	prefixAMMPool      = "amm/pool/"
	prefixAMMShares    = "amm/shares/"
	prefixFarmPool     = "farm/pool/"
	prefixFarmStake    = "farm/stake/"
	prefixFarmReserve  = "farm/reserve/"
	prefixLendPosition = "lending/position/"
	prefixLendStats    = "lending/stats/"
	prefixOrder        = "orderbook/order/"
	keyOrderCounter    = "orderbook/next-id"
)

// Manager implements every engine's state interface on top of the shared
// key-value store.
type Manager struct {
	db storage.Database
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func (m *Manager) getJSON(key string, out any) (bool, error) {
	raw, err := m.db.Get([]byte(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Manager) putJSON(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	return m.db.Put([]byte(key), raw)
}

// --- amm ---

func (m *Manager) GetPool(pairID string) (*amm.Pool, error) {
	pool := new(amm.Pool)
	ok, err := m.getJSON(prefixAMMPool+pairID, pool)
	if err != nil || !ok {
		return nil, err
	}
	return pool, nil
}

func (m *Manager) PutPool(pairID string, pool *amm.Pool) error {
	return m.putJSON(prefixAMMPool+pairID, pool)
}

func (m *Manager) GetShares(pairID, owner string) (*uint256.Int, error) {
	shares := new(uint256.Int)
	ok, err := m.getJSON(prefixAMMShares+pairID+"/"+owner, shares)
	if err != nil || !ok {
		return nil, err
	}
	return shares, nil
}

func (m *Manager) PutShares(pairID, owner string, amount *uint256.Int) error {
	return m.putJSON(prefixAMMShares+pairID+"/"+owner, amount)
}

// --- farm ---
//
// The farm pool getter shares a name with the amm pool getter, so the
// farm view is split onto a dedicated accessor type.

// FarmView adapts the manager to the farm engine's state interface.
type FarmView struct{ m *Manager }

func (m *Manager) Farm() *FarmView { return &FarmView{m: m} }

func (v *FarmView) GetPool(poolID string) (*farm.Pool, error) {
	pool := new(farm.Pool)
	ok, err := v.m.getJSON(prefixFarmPool+poolID, pool)
	if err != nil || !ok {
		return nil, err
	}
	return pool, nil
}

func (v *FarmView) PutPool(poolID string, pool *farm.Pool) error {
	return v.m.putJSON(prefixFarmPool+poolID, pool)
}

func (v *FarmView) GetStake(poolID, owner string) (*farm.UserStake, error) {
	stake := new(farm.UserStake)
	ok, err := v.m.getJSON(prefixFarmStake+poolID+"/"+owner, stake)
	if err != nil || !ok {
		return nil, err
	}
	return stake, nil
}

func (v *FarmView) PutStake(poolID string, stake *farm.UserStake) error {
	return v.m.putJSON(prefixFarmStake+poolID+"/"+stake.Owner, stake)
}

func (v *FarmView) GetReserve(token string) (*farm.Reserve, error) {
	reserve := new(farm.Reserve)
	ok, err := v.m.getJSON(prefixFarmReserve+token, reserve)
	if err != nil || !ok {
		return nil, err
	}
	return reserve, nil
}

func (v *FarmView) PutReserve(token string, reserve *farm.Reserve) error {
	return v.m.putJSON(prefixFarmReserve+token, reserve)
}

// --- lending ---

func (m *Manager) GetPosition(owner, collateralAsset string) (*lending.Position, error) {
	position := new(lending.Position)
	ok, err := m.getJSON(prefixLendPosition+owner+"/"+collateralAsset, position)
	if err != nil || !ok {
		return nil, err
	}
	return position, nil
}

func (m *Manager) PutPosition(position *lending.Position) error {
	return m.putJSON(prefixLendPosition+position.Owner+"/"+position.CollateralAsset, position)
}

func (m *Manager) DeletePosition(owner, collateralAsset string) error {
	return m.db.Delete([]byte(prefixLendPosition + owner + "/" + collateralAsset))
}

func (m *Manager) GetAssetStats(asset string) (*lending.AssetStats, error) {
	stats := new(lending.AssetStats)
	ok, err := m.getJSON(prefixLendStats+asset, stats)
	if err != nil || !ok {
		return nil, err
	}
	return stats, nil
}

func (m *Manager) PutAssetStats(stats *lending.AssetStats) error {
	return m.putJSON(prefixLendStats+stats.Asset, stats)
}

// --- orderbook ---

func (m *Manager) GetOrder(id uint64) (*orderbook.Order, error) {
	order := new(orderbook.Order)
	ok, err := m.getJSON(prefixOrder+strconv.FormatUint(id, 10), order)
	if err != nil || !ok {
		return nil, err
	}
	return order, nil
}

func (m *Manager) PutOrder(order *orderbook.Order) error {
	return m.putJSON(prefixOrder+strconv.FormatUint(order.ID, 10), order)
}

// NextOrderID allocates the next identifier from a persisted counter.
// The counter only moves forward, so identifiers are never reused.
func (m *Manager) NextOrderID() (uint64, error) {
	var next uint64 = 1
	raw, err := m.db.Get([]byte(keyOrderCounter))
	if err == nil {
		stored, parseErr := strconv.ParseUint(string(raw), 10, 64)
		if parseErr != nil {
			return 0, fmt.Errorf("state: corrupt order counter: %w", parseErr)
		}
		next = stored + 1
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return 0, err
	}
	if err := m.db.Put([]byte(keyOrderCounter), []byte(strconv.FormatUint(next, 10))); err != nil {
		return 0, err
	}
	return next, nil
}
