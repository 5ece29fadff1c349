package ingest

import (
	"context"
	"io"
	"iter"

	"golang.org/x/sync/errgroup"

	"github.com/atmx/payments-engine/internal/model"
)

// Stream parses r on a separate goroutine and hands records over a channel
// holding up to buffer entries. Ordering and errors are exactly those of
// Read; only the parsing overlaps with the consumer. A buffer <= 0 falls
// back to Read.
func Stream(ctx context.Context, r io.Reader, buffer int) iter.Seq2[model.Transaction, error] {
	if buffer <= 0 {
		return Read(r)
	}

	return func(yield func(model.Transaction, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		records := make(chan model.Transaction, buffer)

		g.Go(func() error {
			defer close(records)
			for tx, err := range Read(r) {
				if err != nil {
					return err
				}
				if err := gctx.Err(); err != nil {
					return err
				}
				select {
				case records <- tx:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})

		stopped := false
		for tx := range records {
			if !yield(tx, nil) {
				stopped = true
				cancel()
				break
			}
		}

		// Once the consumer has stopped, the producer's context error is ours.
		if err := g.Wait(); err != nil && !stopped {
			yield(model.Transaction{}, err)
		}
	}
}
