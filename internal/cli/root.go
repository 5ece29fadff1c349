// Package cli wires configuration, ingest, the engine, the report and the
// snapshot sinks into the payments-engine command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/atmx/payments-engine/internal/config"
)

// NewRootCmd builds the payments-engine command with its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "payments-engine <transactions.csv>",
		Short: "Replay a CSV of client transactions and print final balances",
		Long: `payments-engine reads deposits, withdrawals, disputes, resolves and
chargebacks from a CSV file, applies them in order to per-client accounts
and writes one balance row per client to stdout.

Diagnostics go to stderr. Settings come from flags, PAYMENTS_* environment
variables or a YAML file given with --config.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "YAML config file")
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("log-format", "json", "log format: json or text")
	flags.Int("buffer", 0, "parse on a separate goroutine with a channel of this size (0 parses inline)")
	flags.Bool("verify-dispute-client", false, "ignore disputes whose client differs from the deposit's")
	flags.Bool("freeze-locked", false, "ignore every record for a locked account")
	flags.String("metrics-file", "", "write Prometheus metrics to this file after the run")
	flags.String("postgres-url", "", "export the final snapshot to this PostgreSQL database")
	flags.String("redis-url", "", "export the final snapshot to this Redis server")
	flags.String("redis-prefix", "payments", "Redis key prefix")
	flags.Duration("redis-ttl", 0, "Redis key TTL (0 keeps keys)")

	for key, name := range map[string]string{
		"config":                       "config",
		"log.level":                    "log-level",
		"log.format":                   "log-format",
		"ingest.buffer":                "buffer",
		"policy.verify_dispute_client": "verify-dispute-client",
		"policy.freeze_locked":         "freeze-locked",
		"metrics.file":                 "metrics-file",
		"export.postgres_url":          "postgres-url",
		"export.redis_url":             "redis-url",
		"export.redis_prefix":          "redis-prefix",
		"export.redis_ttl":             "redis-ttl",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}

	return cmd
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	rootCmd.Version = version
	return executeRoot(ctx, rootCmd)
}

// executeRoot runs cmd and prints its error to stderr unless the run has
// already logged it.
func executeRoot(ctx context.Context, cmd *cobra.Command) error {
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var le loggedError
	if !errors.As(err, &le) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
	}
	return err
}

// newLogger builds the process logger. Output goes to w, never to the
// report stream.
func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}
