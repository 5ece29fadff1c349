package engine

import (
	"fmt"

	"github.com/atmx/payments-engine/internal/ledger"
	"github.com/atmx/payments-engine/internal/model"
)

// DisputeState is the lifecycle of a deposit under dispute:
//
//	(none) --dispute--> Disputed --resolve--> (none)
//	                       |
//	                       +--chargeback--> ChargedBack (terminal)
//
// Every other transition is a no-op.
type DisputeState uint8

const (
	StateNone DisputeState = iota
	StateDisputed
	StateChargedBack
)

func (s DisputeState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateDisputed:
		return "disputed"
	case StateChargedBack:
		return "charged_back"
	default:
		return "unknown"
	}
}

// lookup finds the deposit a dispute-family record refers to. Withdrawals
// are never recorded, so they cannot be disputed.
func (e *Engine) lookup(tx model.Transaction) (depositRecord, error) {
	dep, ok := e.deposits[tx.Tx]
	if !ok {
		return depositRecord{}, fmt.Errorf("%w: tx %d", model.ErrUnknownTx, tx.Tx)
	}
	if e.policy.VerifyDisputeClient && dep.client != tx.Client {
		return depositRecord{}, fmt.Errorf("%w: tx %d belongs to client %d, not %d",
			model.ErrClientMismatch, tx.Tx, dep.client, tx.Client)
	}
	return dep, nil
}

func (e *Engine) dispute(acct *ledger.Account, tx model.Transaction) error {
	dep, err := e.lookup(tx)
	if err != nil {
		return err
	}

	switch e.disputes[tx.Tx] {
	case StateDisputed:
		return fmt.Errorf("%w: tx %d", model.ErrAlreadyDisputed, tx.Tx)
	case StateChargedBack:
		return fmt.Errorf("%w: tx %d", model.ErrChargedBack, tx.Tx)
	}

	acct.Hold(dep.amount)
	e.disputes[tx.Tx] = StateDisputed
	e.openDisputes++
	return nil
}

func (e *Engine) resolve(acct *ledger.Account, tx model.Transaction) error {
	dep, err := e.lookup(tx)
	if err != nil {
		return err
	}
	if err := e.requireDisputed(tx.Tx); err != nil {
		return err
	}

	acct.Release(dep.amount)
	delete(e.disputes, tx.Tx)
	e.openDisputes--
	return nil
}

func (e *Engine) chargeback(acct *ledger.Account, tx model.Transaction) error {
	dep, err := e.lookup(tx)
	if err != nil {
		return err
	}
	if err := e.requireDisputed(tx.Tx); err != nil {
		return err
	}

	wasLocked := acct.Locked
	acct.Chargeback(dep.amount)
	if !wasLocked {
		e.locked++
	}
	e.disputes[tx.Tx] = StateChargedBack
	e.openDisputes--
	return nil
}

func (e *Engine) requireDisputed(id model.TxID) error {
	switch e.disputes[id] {
	case StateDisputed:
		return nil
	case StateChargedBack:
		return fmt.Errorf("%w: tx %d", model.ErrChargedBack, id)
	default:
		return fmt.Errorf("%w: tx %d", model.ErrNotDisputed, id)
	}
}
