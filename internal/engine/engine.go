// Package engine implements the transaction-processing state machine: it
// owns every client account, the record of accepted deposits and the
// per-deposit dispute state, and applies records strictly in input order.
//
// All monetary values use shopspring/decimal, never float64.
package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/atmx/payments-engine/internal/ledger"
	"github.com/atmx/payments-engine/internal/metrics"
	"github.com/atmx/payments-engine/internal/model"
)

// Policy selects how the engine settles the ambiguous cases. The zero value
// is the reference behaviour.
type Policy struct {
	// VerifyDisputeClient ignores dispute, resolve and chargeback records
	// whose client differs from the client that made the deposit.
	VerifyDisputeClient bool

	// FreezeLocked ignores every record addressed to a locked account.
	FreezeLocked bool
}

// Stats counts records seen by the engine.
type Stats struct {
	Records int
	Applied int
	Ignored int
}

// depositRecord is what a dispute needs to know about an accepted deposit.
type depositRecord struct {
	client model.ClientID
	amount decimal.Decimal
}

// Engine is not safe for concurrent use; records must be applied in order
// from a single goroutine.
type Engine struct {
	policy  Policy
	logger  *slog.Logger
	metrics *metrics.Recorder

	accounts map[model.ClientID]*ledger.Account
	order    []model.ClientID
	deposits map[model.TxID]depositRecord
	disputes map[model.TxID]DisputeState

	locked       int
	openDisputes int
	stats        Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy overrides the reference policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLogger sets the logger used for ignored-record diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics attaches a Prometheus recorder.
func WithMetrics(m *metrics.Recorder) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		logger:   slog.Default(),
		accounts: make(map[model.ClientID]*ledger.Account),
		deposits: make(map[model.TxID]depositRecord),
		disputes: make(map[model.TxID]DisputeState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process consumes txs until the sequence ends, it yields an error, or ctx
// is cancelled. Policy rejections are dropped; the first upstream error is
// returned as is.
func (e *Engine) Process(ctx context.Context, txs iter.Seq2[model.Transaction, error]) error {
	defer e.publishState()

	for tx, err := range txs {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Apply(tx); err != nil && !model.IsIgnorable(err) {
			return err
		}
	}
	return nil
}

// Apply processes a single record. It returns nil when the record changed
// state and an ignorable error explaining why it did not otherwise. The
// client's account is created even when the record is ignored.
func (e *Engine) Apply(tx model.Transaction) error {
	if tx.Op == nil {
		return fmt.Errorf("%w: tx %d has no operation", model.ErrRecordMalformed, tx.Tx)
	}

	acct := e.account(tx.Client)
	kind := tx.Op.Kind().String()
	e.stats.Records++

	if err := e.dispatch(acct, tx); err != nil {
		e.stats.Ignored++
		e.metrics.Ignored(kind, reason(err))
		e.logger.Debug("record ignored",
			"kind", kind,
			"client", tx.Client,
			"tx", tx.Tx,
			"reason", err.Error(),
		)
		return err
	}

	e.stats.Applied++
	e.metrics.Applied(kind)
	return nil
}

func (e *Engine) dispatch(acct *ledger.Account, tx model.Transaction) error {
	if e.policy.FreezeLocked && acct.Locked {
		return fmt.Errorf("%w: client %d", model.ErrAccountLocked, acct.Client)
	}

	switch op := tx.Op.(type) {
	case model.Deposit:
		acct.Deposit(op.Amount)
		e.deposits[tx.Tx] = depositRecord{client: tx.Client, amount: op.Amount}
		return nil
	case model.Withdrawal:
		return acct.Withdraw(op.Amount)
	case model.Dispute:
		return e.dispute(acct, tx)
	case model.Resolve:
		return e.resolve(acct, tx)
	case model.Chargeback:
		return e.chargeback(acct, tx)
	default:
		// Unreachable: Op is sealed to the five variants above.
		panic(fmt.Sprintf("engine: unhandled operation %T", op))
	}
}

// account returns the client's account, creating it on first reference.
func (e *Engine) account(client model.ClientID) *ledger.Account {
	acct, ok := e.accounts[client]
	if !ok {
		acct = ledger.New(client)
		e.accounts[client] = acct
		e.order = append(e.order, client)
	}
	return acct
}

// Stats returns record counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

func (e *Engine) publishState() {
	e.metrics.SetState(len(e.accounts), e.locked, e.openDisputes)
}

// reason maps an ignorable error to a metric label.
func reason(err error) string {
	switch {
	case errors.Is(err, model.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, model.ErrUnknownTx):
		return "unknown_tx"
	case errors.Is(err, model.ErrAlreadyDisputed):
		return "already_disputed"
	case errors.Is(err, model.ErrNotDisputed):
		return "not_disputed"
	case errors.Is(err, model.ErrChargedBack):
		return "charged_back"
	case errors.Is(err, model.ErrClientMismatch):
		return "client_mismatch"
	case errors.Is(err, model.ErrAccountLocked):
		return "account_locked"
	default:
		return "other"
	}
}
