package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"tidepool/storage"
)

var (
	ErrInvalidAmount     = errors.New("ledger: amount must be positive")
	ErrInvalidAccount    = errors.New("ledger: account and asset required")
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
)

// Ledger is the external balance ledger the settlement engines settle
// against. Transfers are all-or-nothing; a failed transfer must abort the
// calling operation entirely.
type Ledger interface {
	Transfer(from, to, asset string, amount *big.Int) error
	BalanceOf(account, asset string) (*big.Int, error)
}

// StateLedger is a Ledger backed by the shared key-value store. The daemon
// runs against it directly; production deployments may swap in an adapter
// to an upstream ledger service.
type StateLedger struct {
	db storage.Database
}

func NewStateLedger(db storage.Database) *StateLedger {
	return &StateLedger{db: db}
}

func balanceKey(account, asset string) []byte {
	return []byte("ledger/" + account + "/" + asset)
}

func normalize(account, asset string) (string, string, error) {
	account = strings.TrimSpace(account)
	asset = strings.TrimSpace(asset)
	if account == "" || asset == "" {
		return "", "", ErrInvalidAccount
	}
	return account, asset, nil
}

// BalanceOf returns the stored balance, zero when the account has never
// been credited.
func (l *StateLedger) BalanceOf(account, asset string) (*big.Int, error) {
	account, asset, err := normalize(account, asset)
	if err != nil {
		return nil, err
	}
	raw, err := l.db.Get(balanceKey(account, asset))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("ledger: corrupt balance for %s/%s", account, asset)
	}
	return balance, nil
}

// Credit mints balance onto an account. Used for genesis funding and by
// tests; settlement flows only move existing balance via Transfer.
func (l *StateLedger) Credit(account, asset string, amount *big.Int) error {
	account, asset, err := normalize(account, asset)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.BalanceOf(account, asset)
	if err != nil {
		return err
	}
	balance = new(big.Int).Add(balance, amount)
	return l.db.Put(balanceKey(account, asset), []byte(balance.String()))
}

// Transfer debits from and credits to atomically. Either both balances are
// updated or neither is.
func (l *StateLedger) Transfer(from, to, asset string, amount *big.Int) error {
	from, asset, err := normalize(from, asset)
	if err != nil {
		return err
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return ErrInvalidAccount
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return nil
	}
	fromBalance, err := l.BalanceOf(from, asset)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	toBalance, err := l.BalanceOf(to, asset)
	if err != nil {
		return err
	}
	fromBalance = new(big.Int).Sub(fromBalance, amount)
	toBalance = new(big.Int).Add(toBalance, amount)
	if err := l.db.Put(balanceKey(from, asset), []byte(fromBalance.String())); err != nil {
		return err
	}
	if err := l.db.Put(balanceKey(to, asset), []byte(toBalance.String())); err != nil {
		// Roll the debit back so a failed credit cannot strand funds.
		_ = l.db.Put(balanceKey(from, asset), []byte(new(big.Int).Add(fromBalance, amount).String()))
		return err
	}
	return nil
}
