package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atmx/payments-engine/internal/model"
)

// Schema creates the snapshot tables. Amounts are NUMERIC for exact decimal
// precision.
const Schema = `
CREATE TABLE IF NOT EXISTS snapshot_runs (
	id          UUID PRIMARY KEY,
	source      TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	records     BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS balance_snapshots (
	run_id    UUID NOT NULL REFERENCES snapshot_runs (id),
	client    INTEGER NOT NULL,
	available NUMERIC NOT NULL,
	held      NUMERIC NOT NULL,
	total     NUMERIC NOT NULL,
	locked    BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, client)
);`

// pgxDB is the subset of *pgxpool.Pool the store needs.
type pgxDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db    pgxDB
	close func()
}

// NewPostgresStore creates a new PostgreSQL-backed store. The store owns
// the pool and closes it on Close.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, close: pool.Close}
}

// Migrate creates the snapshot tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate snapshot schema: %w", err)
	}
	return nil
}

// SaveSnapshot writes the run row and one row per client in a single batch,
// which PostgreSQL executes as one implicit transaction.
func (s *PostgresStore) SaveSnapshot(ctx context.Context, run model.Run, balances []model.Balance) error {
	b := &pgx.Batch{}
	b.Queue(
		`INSERT INTO snapshot_runs (id, source, started_at, finished_at, records)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Source, run.StartedAt, run.FinishedAt, int64(run.Records),
	)
	for _, bal := range balances {
		b.Queue(
			`INSERT INTO balance_snapshots (run_id, client, available, held, total, locked)
			 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)`,
			run.ID, int32(bal.Client),
			bal.Available.String(), bal.Held.String(), bal.Total.String(),
			bal.Locked,
		)
	}

	br := s.db.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("save snapshot %s: statement %d: %w", run.ID, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("save snapshot %s: %w", run.ID, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
