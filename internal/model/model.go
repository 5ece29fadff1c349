// Package model defines the core domain types shared across the payments engine.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClientID identifies a client account. Assigned by the upstream system.
type ClientID uint16

// TxID identifies a transaction. Globally unique across one input stream.
type TxID uint32

// Amount is a signed fixed-precision monetary value.
type Amount = decimal.Decimal

// Kind names one of the five transaction kinds.
type Kind uint8

const (
	KindDeposit Kind = iota + 1
	KindWithdrawal
	KindDispute
	KindResolve
	KindChargeback
)

func (k Kind) String() string {
	switch k {
	case KindDeposit:
		return "deposit"
	case KindWithdrawal:
		return "withdrawal"
	case KindDispute:
		return "dispute"
	case KindResolve:
		return "resolve"
	case KindChargeback:
		return "chargeback"
	default:
		return "unknown"
	}
}

// Op is the kind-specific payload of a Transaction. Only Deposit and
// Withdrawal carry an amount; the dispute family references a prior deposit
// by the transaction's TxID.
type Op interface {
	Kind() Kind
	op()
}

// Deposit credits the client's available funds.
type Deposit struct {
	Amount Amount
}

// Withdrawal debits the client's available funds when they suffice.
type Withdrawal struct {
	Amount Amount
}

// Dispute moves a prior deposit's amount from available to held.
type Dispute struct{}

// Resolve releases a disputed deposit back to available.
type Resolve struct{}

// Chargeback removes a disputed deposit's held amount and locks the account.
type Chargeback struct{}

func (Deposit) Kind() Kind    { return KindDeposit }
func (Withdrawal) Kind() Kind { return KindWithdrawal }
func (Dispute) Kind() Kind    { return KindDispute }
func (Resolve) Kind() Kind    { return KindResolve }
func (Chargeback) Kind() Kind { return KindChargeback }

func (Deposit) op()    {}
func (Withdrawal) op() {}
func (Dispute) op()    {}
func (Resolve) op()    {}
func (Chargeback) op() {}

// Transaction is one parsed input record.
type Transaction struct {
	Client ClientID
	Tx     TxID
	Op     Op
}

// Balance is a read-only view of one client account at the end of a run.
// Total is always Available + Held.
type Balance struct {
	Client    ClientID
	Available decimal.Decimal
	Held      decimal.Decimal
	Total     decimal.Decimal
	Locked    bool
}

// Run describes one processing run; exported snapshots are keyed by ID.
type Run struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Records    int
}
