package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/payments-engine/internal/config"
	"github.com/atmx/payments-engine/internal/engine"
	"github.com/atmx/payments-engine/internal/ingest"
	"github.com/atmx/payments-engine/internal/metrics"
	"github.com/atmx/payments-engine/internal/model"
	"github.com/atmx/payments-engine/internal/report"
	"github.com/atmx/payments-engine/internal/store"
)

// run processes one input file: the report goes to stdout, logs to stderr.
func run(ctx context.Context, cfg *config.Config, path string, stdout, stderr io.Writer) error {
	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	r := model.Run{
		ID:        uuid.NewString(),
		Source:    path,
		StartedAt: time.Now().UTC(),
	}
	logger = logger.With("run", r.ID)

	f, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("%w: %w", model.ErrIO, err)
		logger.Error("open input failed", "path", path, "err", err)
		return logged(err)
	}
	defer f.Close()

	rec := metrics.New()
	eng := engine.New(
		engine.WithPolicy(engine.Policy{
			VerifyDisputeClient: cfg.Policy.VerifyDisputeClient,
			FreezeLocked:        cfg.Policy.FreezeLocked,
		}),
		engine.WithLogger(logger),
		engine.WithMetrics(rec),
	)

	if err := eng.Process(ctx, ingest.Stream(ctx, f, cfg.Ingest.Buffer)); err != nil {
		logger.Error("processing failed", "err", err)
		return logged(err)
	}
	if err := report.Write(stdout, eng.Balances()); err != nil {
		err = fmt.Errorf("write report: %w", err)
		logger.Error("report failed", "err", err)
		return logged(err)
	}

	r.FinishedAt = time.Now().UTC()
	stats := eng.Stats()
	r.Records = stats.Records
	rec.ObserveRun(r.FinishedAt.Sub(r.StartedAt).Seconds())

	var errs []error
	if err := export(ctx, cfg.Export, r, eng.Snapshot(), logger); err != nil {
		logger.Error("snapshot export failed", "err", err)
		errs = append(errs, err)
	}
	if cfg.Metrics.File != "" {
		if err := rec.WriteTextfile(cfg.Metrics.File); err != nil {
			logger.Error("metrics export failed", "file", cfg.Metrics.File, "err", err)
			errs = append(errs, err)
		}
	}

	logger.Info("run complete",
		"source", path,
		"records", stats.Records,
		"applied", stats.Applied,
		"ignored", stats.Ignored,
		"clients", eng.Clients(),
		"duration", r.FinishedAt.Sub(r.StartedAt),
	)
	return logged(errors.Join(errs...))
}

// loggedError marks an error that run has already written to the log.
type loggedError struct{ error }

func (e loggedError) Unwrap() error { return e.error }

func logged(err error) error {
	if err == nil {
		return nil
	}
	return loggedError{err}
}

// export saves the snapshot to every configured sink. No sinks is not an
// error.
func export(ctx context.Context, cfg config.ExportConfig, r model.Run, balances []model.Balance, logger *slog.Logger) error {
	sinks, err := openSinks(ctx, cfg)
	defer sinks.Close()
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		return nil
	}

	if err := sinks.SaveSnapshot(ctx, r, balances); err != nil {
		return err
	}
	logger.Info("snapshot exported", "sinks", len(sinks), "clients", len(balances))
	return nil
}

// openSinks connects the configured stores. On error the stores opened so
// far are still returned so the caller can close them.
func openSinks(ctx context.Context, cfg config.ExportConfig) (store.Multi, error) {
	var sinks store.Multi

	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return sinks, fmt.Errorf("postgres: %w", err)
		}
		pg := store.NewPostgresStore(pool)
		sinks = append(sinks, pg)
		if err := pg.Migrate(ctx); err != nil {
			return sinks, fmt.Errorf("postgres: %w", err)
		}
	}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return sinks, fmt.Errorf("redis: %w", err)
		}
		sinks = append(sinks, store.NewRedisStore(redis.NewClient(opt), cfg.RedisPrefix, cfg.RedisTTL))
	}

	return sinks, nil
}
