// Package report writes the end-of-run balance table.
package report

import (
	"bufio"
	"fmt"
	"io"
	"iter"
	"strconv"

	"github.com/atmx/payments-engine/internal/model"
	"github.com/atmx/payments-engine/internal/money"
)

// Header is the first line of every report.
const Header = "client, available, held, total, locked"

// Write renders one row per balance:
//
//	client, available, held, total, locked
//	1, 1.5, 0, 1.5, false
func Write(w io.Writer, balances iter.Seq[model.Balance]) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintln(bw, Header); err != nil {
		return fmt.Errorf("report: write header: %w", err)
	}

	for b := range balances {
		_, err := fmt.Fprintf(bw, "%d, %s, %s, %s, %s\n",
			b.Client,
			money.Format(b.Available),
			money.Format(b.Held),
			money.Format(b.Total),
			strconv.FormatBool(b.Locked),
		)
		if err != nil {
			return fmt.Errorf("report: write client %d: %w", b.Client, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("report: flush: %w", err)
	}
	return nil
}
