// Package store exports end-of-run balance snapshots. Implementations
// include PostgreSQL, Redis and in-memory (for testing). Processing itself
// never reads from a store; every run starts from empty ledgers.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/atmx/payments-engine/internal/model"
)

// Store is the snapshot export interface.
type Store interface {
	// SaveSnapshot persists the final balances of a run, keyed by run ID.
	SaveSnapshot(ctx context.Context, run model.Run, balances []model.Balance) error

	// Close releases connections held by the store.
	Close() error
}

// Multi fans a snapshot out to several stores. Every store is attempted;
// failures are joined.
type Multi []Store

func (m Multi) SaveSnapshot(ctx context.Context, run model.Run, balances []model.Balance) error {
	var errs []error
	for _, s := range m {
		if err := s.SaveSnapshot(ctx, run, balances); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
