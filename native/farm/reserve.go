package farm

import (
	"errors"
	"math/big"

	"tidepool/core/events"
	"tidepool/native/common"
)

var (
	ErrUnauthorized        = errors.New("farm: lender not authorized")
	ErrInsufficientReserve = errors.New("farm: insufficient reserve")
)

// FundReserve moves tokens from the funder into the lendable idle
// reserve.
func (e *Engine) FundReserve(token string, amount *big.Int, funder string) error {
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
	if err := e.ledger.Transfer(funder, e.reserveAccount, token, amount); err != nil {
		return err
	}
	reserve, err := e.ensureReserve(token)
	if err != nil {
		return err
	}
	reserve.Available = new(big.Int).Add(reserve.Available, amount)
	return e.state.PutReserve(token, reserve)
}

// LendOut draws down the idle reserve on behalf of an authorized lending
// market. The recipient receives the tokens directly.
func (e *Engine) LendOut(lender, token string, amount *big.Int, recipient string) error {
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

	if !e.lenders.Contains(lender) {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	reserve, err := e.ensureReserve(token)
	if err != nil {
		return err
	}
	if reserve.Available.Cmp(amount) < 0 {
		return ErrInsufficientReserve
	}
	if err := e.ledger.Transfer(e.reserveAccount, recipient, token, amount); err != nil {
		return err
	}
	reserve.Available = new(big.Int).Sub(reserve.Available, amount)
	reserve.LentOut = new(big.Int).Add(reserve.LentOut, amount)
	if err := e.state.PutReserve(token, reserve); err != nil {
		return err
	}
	e.emitter.Emit(events.ReserveLent{Lender: lender, Token: token, Amount: new(big.Int).Set(amount)})
	return nil
}

// RepayReserve returns tokens to the reserve from the payer and unwinds
// the lent-out bookkeeping.
func (e *Engine) RepayReserve(lender, token string, amount *big.Int, payer string) error {
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

	if !e.lenders.Contains(lender) {
		return ErrUnauthorized
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	if err := e.ledger.Transfer(payer, e.reserveAccount, token, amount); err != nil {
		return err
	}
	reserve, err := e.ensureReserve(token)
	if err != nil {
		return err
	}
	reserve.Available = new(big.Int).Add(reserve.Available, amount)
	repaid := new(big.Int).Set(amount)
	if repaid.Cmp(reserve.LentOut) > 0 {
		repaid = new(big.Int).Set(reserve.LentOut)
	}
	reserve.LentOut = new(big.Int).Sub(reserve.LentOut, repaid)
	return e.state.PutReserve(token, reserve)
}

// ReserveOf reports the reserve bookkeeping for a token.
func (e *Engine) ReserveOf(token string) (*Reserve, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	reserve, err := e.ensureReserve(token)
	if err != nil {
		return nil, err
	}
	return reserve.Clone(), nil
}

func (e *Engine) ensureReserve(token string) (*Reserve, error) {
	reserve, err := e.state.GetReserve(token)
	if err != nil {
		return nil, err
	}
	if reserve == nil {
		reserve = &Reserve{Token: token}
	}
	if reserve.Available == nil {
		reserve.Available = big.NewInt(0)
	}
	if reserve.LentOut == nil {
		reserve.LentOut = big.NewInt(0)
	}
	return reserve, nil
}
