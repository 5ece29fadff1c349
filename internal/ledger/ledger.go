// Package ledger holds the per-client account record and the operations that
// move funds between its available and held balances.
//
// An Account does not consult its locked flag; whether a locked account may
// keep transacting is decided by the engine's policy.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/payments-engine/internal/model"
)

// Account is one client's balance record. Total is derived, never stored.
type Account struct {
	Client    model.ClientID
	Available decimal.Decimal
	Held      decimal.Decimal
	Locked    bool
}

// New returns an empty, unlocked account.
func New(client model.ClientID) *Account {
	return &Account{
		Client:    client,
		Available: decimal.Zero,
		Held:      decimal.Zero,
	}
}

// Total returns available + held.
func (a *Account) Total() decimal.Decimal {
	return a.Available.Add(a.Held)
}

// Deposit credits available funds. The caller guarantees amount > 0.
func (a *Account) Deposit(amount decimal.Decimal) {
	a.Available = a.Available.Add(amount)
}

// Withdraw debits available funds, or returns ErrInsufficientFunds and
// leaves the account unchanged.
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if a.Available.LessThan(amount) {
		return fmt.Errorf("%w: available=%s requested=%s",
			model.ErrInsufficientFunds, a.Available, amount)
	}
	a.Available = a.Available.Sub(amount)
	return nil
}

// Hold moves amount from available to held. Available may go negative when
// the disputed deposit has already been withdrawn.
func (a *Account) Hold(amount decimal.Decimal) {
	a.Available = a.Available.Sub(amount)
	a.Held = a.Held.Add(amount)
}

// Release is the inverse of Hold.
func (a *Account) Release(amount decimal.Decimal) {
	a.Held = a.Held.Sub(amount)
	a.Available = a.Available.Add(amount)
}

// Chargeback removes held funds and locks the account for good.
func (a *Account) Chargeback(amount decimal.Decimal) {
	a.Held = a.Held.Sub(amount)
	a.Locked = true
}

// Balance returns a read-only copy of the account.
func (a *Account) Balance() model.Balance {
	return model.Balance{
		Client:    a.Client,
		Available: a.Available,
		Held:      a.Held,
		Total:     a.Total(),
		Locked:    a.Locked,
	}
}
