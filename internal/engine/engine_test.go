package engine

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/payments-engine/internal/metrics"
	"github.com/atmx/payments-engine/internal/model"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func deposit(client model.ClientID, tx model.TxID, amount string) model.Transaction {
	return model.Transaction{Client: client, Tx: tx, Op: model.Deposit{Amount: d(amount)}}
}

func withdrawal(client model.ClientID, tx model.TxID, amount string) model.Transaction {
	return model.Transaction{Client: client, Tx: tx, Op: model.Withdrawal{Amount: d(amount)}}
}

func dispute(client model.ClientID, tx model.TxID) model.Transaction {
	return model.Transaction{Client: client, Tx: tx, Op: model.Dispute{}}
}

func resolve(client model.ClientID, tx model.TxID) model.Transaction {
	return model.Transaction{Client: client, Tx: tx, Op: model.Resolve{}}
}

func chargeback(client model.ClientID, tx model.TxID) model.Transaction {
	return model.Transaction{Client: client, Tx: tx, Op: model.Chargeback{}}
}

func seq(txs ...model.Transaction) iter.Seq2[model.Transaction, error] {
	return func(yield func(model.Transaction, error) bool) {
		for _, tx := range txs {
			if !yield(tx, nil) {
				return
			}
		}
	}
}

func run(t *testing.T, e *Engine, txs ...model.Transaction) {
	t.Helper()
	require.NoError(t, e.Process(context.Background(), seq(txs...)))
}

func assertBalance(t *testing.T, e *Engine, client model.ClientID, available, held, total string, locked bool) {
	t.Helper()
	b, ok := e.Balance(client)
	require.True(t, ok, "client %d missing", client)
	assert.True(t, b.Available.Equal(d(available)), "available: got %s want %s", b.Available, available)
	assert.True(t, b.Held.Equal(d(held)), "held: got %s want %s", b.Held, held)
	assert.True(t, b.Total.Equal(d(total)), "total: got %s want %s", b.Total, total)
	assert.Equal(t, locked, b.Locked, "locked")
}

// --- Seed scenarios ---

func TestProcess_BasicDepositWithdrawal(t *testing.T) {
	e := New()
	run(t, e,
		deposit(1, 1, "1.0"),
		deposit(2, 2, "2.0"),
		deposit(1, 3, "2.0"),
		withdrawal(1, 4, "1.5"),
		withdrawal(2, 5, "3.0"),
	)

	assertBalance(t, e, 1, "1.5", "0", "1.5", false)
	assertBalance(t, e, 2, "2", "0", "2", false)
	assert.Equal(t, Stats{Records: 5, Applied: 4, Ignored: 1}, e.Stats())
}

func TestProcess_DisputeHoldsFunds(t *testing.T) {
	e := New()
	run(t, e, deposit(1, 1, "100.0"), deposit(1, 2, "50.0"), dispute(1, 2))

	assertBalance(t, e, 1, "100", "50", "150", false)
	assert.Equal(t, StateDisputed, e.DisputeState(2))
}

func TestProcess_DisputeThenResolveRestores(t *testing.T) {
	e := New()
	run(t, e, deposit(1, 1, "100.0"), deposit(1, 2, "50.0"), dispute(1, 2), resolve(1, 2))

	assertBalance(t, e, 1, "150", "0", "150", false)
	assert.Equal(t, StateNone, e.DisputeState(2))
}

func TestProcess_DisputeThenChargebackLocks(t *testing.T) {
	e := New()
	run(t, e, deposit(1, 1, "1000.0"), deposit(1, 2, "500.0"), dispute(1, 2), chargeback(1, 2))

	assertBalance(t, e, 1, "1000", "0", "1000", true)
	assert.Equal(t, StateChargedBack, e.DisputeState(2))
}

func TestProcess_IgnoredAnomalies(t *testing.T) {
	e := New()
	run(t, e,
		deposit(1, 1, "1000.0"),
		deposit(1, 2, "500.0"),
		dispute(1, 666),
		resolve(1, 666),
		chargeback(1, 666),
		chargeback(1, 2),
	)

	assertBalance(t, e, 1, "1500", "0", "1500", false)
	assert.Equal(t, 4, e.Stats().Ignored)
}

func TestProcess_MultiplePendingDisputes(t *testing.T) {
	e := New()
	run(t, e,
		deposit(1, 1, "50.0"),
		deposit(1, 2, "60.0"),
		deposit(1, 3, "80.0"),
		dispute(1, 2),
		dispute(1, 3),
	)
	assertBalance(t, e, 1, "50", "140", "190", false)

	run(t, e, resolve(1, 2))
	assertBalance(t, e, 1, "110", "80", "190", false)
}

// --- Policy table ---

func TestApply_ReturnsIgnorableReasons(t *testing.T) {
	e := New()
	require.NoError(t, e.Apply(deposit(1, 1, "10")))

	cases := []struct {
		name string
		tx   model.Transaction
		want error
	}{
		{"withdraw too much", withdrawal(1, 2, "10.0001"), model.ErrInsufficientFunds},
		{"dispute unknown", dispute(1, 99), model.ErrUnknownTx},
		{"resolve undisputed", resolve(1, 1), model.ErrNotDisputed},
		{"chargeback undisputed", chargeback(1, 1), model.ErrNotDisputed},
		{"dispute withdrawal", dispute(1, 2), model.ErrUnknownTx},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := e.Apply(tc.tx)
			assert.ErrorIs(t, err, tc.want)
			assert.True(t, model.IsIgnorable(err))
		})
	}
	assertBalance(t, e, 1, "10", "0", "10", false)
}

func TestApply_IgnoredRecordStillCreatesAccount(t *testing.T) {
	e := New()
	err := e.Apply(withdrawal(7, 1, "5"))

	require.ErrorIs(t, err, model.ErrInsufficientFunds)
	assertBalance(t, e, 7, "0", "0", "0", false)
	assert.Equal(t, 1, e.Clients())
}

func TestApply_NilOpIsMalformed(t *testing.T) {
	e := New()
	err := e.Apply(model.Transaction{Client: 1, Tx: 1})

	assert.ErrorIs(t, err, model.ErrRecordMalformed)
	assert.Equal(t, 0, e.Clients())
}

func TestApply_WithdrawalsAreNotDisputable(t *testing.T) {
	e := New()
	run(t, e, deposit(1, 1, "10"), withdrawal(1, 2, "4"), dispute(1, 2), chargeback(1, 2))

	assertBalance(t, e, 1, "6", "0", "6", false)
	assert.Equal(t, StateNone, e.DisputeState(2))
}

func TestApply_DoubleDisputeIsIdempotent(t *testing.T) {
	once := New()
	run(t, once, deposit(1, 1, "100"), deposit(1, 2, "40"), dispute(1, 2))

	twice := New()
	run(t, twice, deposit(1, 1, "100"), deposit(1, 2, "40"), dispute(1, 2))
	assert.ErrorIs(t, twice.Apply(dispute(1, 2)), model.ErrAlreadyDisputed)

	assert.Equal(t, once.Snapshot(), twice.Snapshot())
}

func TestApply_DoubleChargebackIsIdempotent(t *testing.T) {
	e := New()
	run(t, e, deposit(1, 1, "100"), deposit(1, 2, "40"), dispute(1, 2), chargeback(1, 2))
	before := e.Snapshot()

	assert.ErrorIs(t, e.Apply(chargeback(1, 2)), model.ErrChargedBack)
	assert.Equal(t, before, e.Snapshot())
}

func TestApply_ChargedBackIsTerminal(t *testing.T) {
	e := New()
	run(t, e, deposit(1, 1, "100"), dispute(1, 1), chargeback(1, 1))
	before := e.Snapshot()

	assert.ErrorIs(t, e.Apply(dispute(1, 1)), model.ErrChargedBack)
	assert.ErrorIs(t, e.Apply(resolve(1, 1)), model.ErrChargedBack)
	assert.ErrorIs(t, e.Apply(chargeback(1, 1)), model.ErrChargedBack)
	assert.Equal(t, before, e.Snapshot())
	assert.Equal(t, StateChargedBack, e.DisputeState(1))
}

func TestApply_RedisputeAfterResolve(t *testing.T) {
	e := New()
	run(t, e, deposit(1, 1, "1000"), deposit(1, 2, "500"), dispute(1, 2), resolve(1, 2))
	assertBalance(t, e, 1, "1500", "0", "1500", false)

	run(t, e, dispute(1, 2))
	assertBalance(t, e, 1, "1000", "500", "1500", false)
}

func TestApply_DisputeAfterWithdrawalDrivesAvailableNegative(t *testing.T) {
	e := New()
	run(t, e, deposit(1, 1, "10"), withdrawal(1, 2, "7"), dispute(1, 1))

	assertBalance(t, e, 1, "-7", "10", "3", false)

	run(t, e, chargeback(1, 1))
	assertBalance(t, e, 1, "-7", "0", "-7", true)
}

func TestApply_LockedAccountKeepsTransactingByDefault(t *testing.T) {
	e := New()
	run(t, e, deposit(1, 1, "10"), dispute(1, 1), chargeback(1, 1), deposit(1, 2, "5"), withdrawal(1, 3, "2"))

	assertBalance(t, e, 1, "3", "0", "3", true)
}

func TestApply_CrossClientDisputeUsesRecordClient(t *testing.T) {
	e := New()
	run(t, e, deposit(1, 1, "10"), dispute(2, 1))

	assertBalance(t, e, 1, "10", "0", "10", false)
	assertBalance(t, e, 2, "-10", "10", "0", false)
}

// --- Optional policies ---

func TestPolicy_VerifyDisputeClient(t *testing.T) {
	e := New(WithPolicy(Policy{VerifyDisputeClient: true}))
	run(t, e, deposit(1, 1, "10"))

	assert.ErrorIs(t, e.Apply(dispute(2, 1)), model.ErrClientMismatch)
	assertBalance(t, e, 1, "10", "0", "10", false)
	assertBalance(t, e, 2, "0", "0", "0", false)

	require.NoError(t, e.Apply(dispute(1, 1)))
	assert.ErrorIs(t, e.Apply(chargeback(2, 1)), model.ErrClientMismatch)
	assertBalance(t, e, 1, "0", "10", "10", false)
}

func TestPolicy_FreezeLocked(t *testing.T) {
	e := New(WithPolicy(Policy{FreezeLocked: true}))
	run(t, e, deposit(1, 1, "10"), deposit(1, 2, "5"), dispute(1, 1), chargeback(1, 1))
	assertBalance(t, e, 1, "5", "0", "5", true)

	assert.ErrorIs(t, e.Apply(deposit(1, 3, "100")), model.ErrAccountLocked)
	assert.ErrorIs(t, e.Apply(withdrawal(1, 4, "1")), model.ErrAccountLocked)
	assert.ErrorIs(t, e.Apply(dispute(1, 2)), model.ErrAccountLocked)
	assertBalance(t, e, 1, "5", "0", "5", true)

	// A deposit refused on a locked account is not recorded.
	assert.ErrorIs(t, e.Apply(dispute(2, 3)), model.ErrUnknownTx)
}

// --- Stream handling ---

func TestProcess_StopsAtUpstreamError(t *testing.T) {
	parseErr := &model.RecordError{Line: 3, Err: model.ErrAmountMissing}
	input := func(yield func(model.Transaction, error) bool) {
		if !yield(deposit(1, 1, "5"), nil) {
			return
		}
		if !yield(model.Transaction{}, parseErr) {
			return
		}
		yield(deposit(1, 2, "5"), nil)
	}

	e := New()
	err := e.Process(context.Background(), input)

	require.ErrorIs(t, err, model.ErrAmountMissing)
	assertBalance(t, e, 1, "5", "0", "5", false)
	assert.Equal(t, 1, e.Stats().Records)
}

func TestProcess_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New()
	err := e.Process(ctx, seq(deposit(1, 1, "5")))

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, e.Clients())
}

func TestProcess_EmptyInput(t *testing.T) {
	e := New()
	run(t, e)

	assert.Empty(t, e.Snapshot())
}

// --- Invariants ---

func mixedStream() []model.Transaction {
	return []model.Transaction{
		deposit(1, 1, "100.1234"),
		deposit(2, 2, "20"),
		withdrawal(1, 3, "30.0001"),
		dispute(1, 1),
		withdrawal(2, 4, "25"),
		deposit(3, 5, "7.5"),
		dispute(3, 5),
		chargeback(3, 5),
		dispute(2, 2),
		resolve(2, 2),
		withdrawal(2, 6, "19.9999"),
		deposit(1, 7, "0.0001"),
		resolve(1, 1),
		dispute(1, 7),
		chargeback(1, 7),
		dispute(3, 5),
		deposit(4, 8, "3"),
		withdrawal(4, 9, "3"),
	}
}

func TestInvariant_Conservation(t *testing.T) {
	e := New()
	expected := decimal.Zero
	deposits := map[model.TxID]decimal.Decimal{}

	for _, tx := range mixedStream() {
		err := e.Apply(tx)
		if err != nil {
			require.True(t, model.IsIgnorable(err))
			continue
		}
		switch op := tx.Op.(type) {
		case model.Deposit:
			expected = expected.Add(op.Amount)
			deposits[tx.Tx] = op.Amount
		case model.Withdrawal:
			expected = expected.Sub(op.Amount)
		case model.Chargeback:
			expected = expected.Sub(deposits[tx.Tx])
		}
	}

	sum := decimal.Zero
	for b := range e.Balances() {
		assert.True(t, b.Total.Equal(b.Available.Add(b.Held)))
		assert.False(t, b.Held.IsNegative(), "client %d held negative", b.Client)
		sum = sum.Add(b.Total)
	}
	assert.True(t, sum.Equal(expected), "sum %s expected %s", sum, expected)

	assertBalance(t, e, 1, "70.1233", "0", "70.1233", true)
	assertBalance(t, e, 3, "0", "0", "0", true)
}

func TestInvariant_PrefixDeterminism(t *testing.T) {
	stream := mixedStream()

	incremental := New()
	for i, tx := range stream {
		_ = incremental.Apply(tx)

		replay := New()
		run(t, replay, stream[:i+1]...)
		require.Equal(t, replay.Snapshot(), incremental.Snapshot(), "prefix %d diverged", i+1)
	}
}

func TestInvariant_LockNeverClears(t *testing.T) {
	e := New()
	locked := map[model.ClientID]bool{}

	for _, tx := range mixedStream() {
		_ = e.Apply(tx)
		for b := range e.Balances() {
			if locked[b.Client] {
				assert.True(t, b.Locked, "client %d unlocked", b.Client)
			}
			locked[b.Client] = b.Locked
		}
	}
}

// --- Snapshot view ---

func TestBalances_FirstSeenOrderAndEarlyStop(t *testing.T) {
	e := New()
	run(t, e, deposit(3, 1, "1"), deposit(1, 2, "1"), deposit(2, 3, "1"))

	var got []model.ClientID
	for b := range e.Balances() {
		got = append(got, b.Client)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []model.ClientID{3, 1}, got)

	_, ok := e.Balance(42)
	assert.False(t, ok)
}

// --- Metrics ---

func TestProcess_RecordsMetrics(t *testing.T) {
	rec := metrics.New()
	e := New(WithMetrics(rec))
	run(t, e,
		deposit(1, 1, "10"),
		deposit(2, 2, "10"),
		withdrawal(1, 3, "50"),
		dispute(1, 1),
		dispute(2, 2),
		chargeback(2, 2),
		dispute(1, 99),
	)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.RecordsTotal.WithLabelValues("deposit", metrics.OutcomeApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.IgnoredTotal.WithLabelValues("withdrawal", "insufficient_funds")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.IgnoredTotal.WithLabelValues("dispute", "unknown_tx")))
	assert.Equal(t, 2.0, testutil.ToFloat64(rec.Clients))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.LockedClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.OpenDisputes))
}
