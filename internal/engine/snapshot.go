package engine

import (
	"iter"
	"slices"

	"github.com/atmx/payments-engine/internal/model"
)

// Balances iterates over every account in the order clients were first
// seen. Callers must not rely on that order.
func (e *Engine) Balances() iter.Seq[model.Balance] {
	return func(yield func(model.Balance) bool) {
		for _, id := range e.order {
			if !yield(e.accounts[id].Balance()) {
				return
			}
		}
	}
}

// Snapshot materialises Balances.
func (e *Engine) Snapshot() []model.Balance {
	return slices.Collect(e.Balances())
}

// Balance returns one client's account, if the client has been seen.
func (e *Engine) Balance(client model.ClientID) (model.Balance, bool) {
	acct, ok := e.accounts[client]
	if !ok {
		return model.Balance{}, false
	}
	return acct.Balance(), true
}

// DisputeState reports where a deposit is in the dispute lifecycle.
func (e *Engine) DisputeState(tx model.TxID) DisputeState {
	return e.disputes[tx]
}

// Clients returns the number of known accounts.
func (e *Engine) Clients() int {
	return len(e.accounts)
}
