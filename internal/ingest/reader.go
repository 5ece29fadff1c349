// Package ingest turns a comma-separated transaction file into a lazy
// sequence of model.Transaction values.
//
// Expected layout, header first:
//
//	type, client, tx, amount
//	deposit, 1, 1, 1.0
//	dispute, 1, 1,
//
// Fields may carry surrounding whitespace and type is case-insensitive.
// Dispute-family rows may omit the trailing amount column.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/atmx/payments-engine/internal/model"
	"github.com/atmx/payments-engine/internal/money"
)

const (
	colType = iota
	colClient
	colTx
	colAmount
	numCols
)

// Read parses r sequentially. The sequence yields at most one error, after
// which it stops.
func Read(r io.Reader) iter.Seq2[model.Transaction, error] {
	return func(yield func(model.Transaction, error) bool) {
		cr := newCSVReader(r)

		if err := readHeader(cr); err != nil {
			yield(model.Transaction{}, err)
			return
		}

		for {
			record, err := cr.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(model.Transaction{}, classify(err))
				return
			}

			line, _ := cr.FieldPos(0)
			tx, err := parseRecord(record)
			if err != nil {
				yield(model.Transaction{}, &model.RecordError{Line: line, Err: err})
				return
			}
			if !yield(tx, nil) {
				return
			}
		}
	}
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	return cr
}

func readHeader(cr *csv.Reader) error {
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &model.RecordError{Line: 1, Err: fmt.Errorf("%w: empty input", model.ErrHeaderMissing)}
	}
	if err != nil {
		return classify(err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[colType]), "type") {
		line, _ := cr.FieldPos(0)
		return &model.RecordError{
			Line: line,
			Err:  fmt.Errorf("%w: expected header starting with \"type,\"", model.ErrHeaderMissing),
		}
	}
	return nil
}

// classify separates CSV syntax errors from failures of the underlying reader.
func classify(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &model.RecordError{Line: pe.Line, Err: fmt.Errorf("%w: %v", model.ErrRecordMalformed, pe.Err)}
	}
	return fmt.Errorf("%w: %w", model.ErrIO, err)
}

func parseRecord(record []string) (model.Transaction, error) {
	if len(record) != numCols && len(record) != numCols-1 {
		return model.Transaction{}, fmt.Errorf("%w: expected %d columns, got %d",
			model.ErrRecordMalformed, numCols, len(record))
	}

	kind, err := parseKind(record[colType])
	if err != nil {
		return model.Transaction{}, err
	}

	client, err := strconv.ParseUint(strings.TrimSpace(record[colClient]), 10, 16)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: client %q", model.ErrRecordMalformed, record[colClient])
	}

	tx, err := strconv.ParseUint(strings.TrimSpace(record[colTx]), 10, 32)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: tx %q", model.ErrRecordMalformed, record[colTx])
	}

	rawAmount := ""
	if len(record) == numCols {
		rawAmount = strings.TrimSpace(record[colAmount])
	}

	op, err := buildOp(kind, rawAmount)
	if err != nil {
		return model.Transaction{}, err
	}

	return model.Transaction{
		Client: model.ClientID(client),
		Tx:     model.TxID(tx),
		Op:     op,
	}, nil
}

func parseKind(s string) (model.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deposit":
		return model.KindDeposit, nil
	case "withdrawal":
		return model.KindWithdrawal, nil
	case "dispute":
		return model.KindDispute, nil
	case "resolve":
		return model.KindResolve, nil
	case "chargeback":
		return model.KindChargeback, nil
	default:
		return 0, fmt.Errorf("%w: type %q", model.ErrRecordMalformed, s)
	}
}

// buildOp attaches the amount to the kinds that carry one. An amount on a
// dispute-family row must still be well formed but is otherwise ignored.
func buildOp(kind model.Kind, rawAmount string) (model.Op, error) {
	switch kind {
	case model.KindDeposit, model.KindWithdrawal:
		if rawAmount == "" {
			return nil, fmt.Errorf("%w: %s", model.ErrAmountMissing, kind)
		}
		amount, err := money.ParsePositive(rawAmount)
		if err != nil {
			return nil, err
		}
		if kind == model.KindDeposit {
			return model.Deposit{Amount: amount}, nil
		}
		return model.Withdrawal{Amount: amount}, nil
	}

	if rawAmount != "" {
		if _, err := money.Parse(rawAmount); err != nil {
			return nil, err
		}
	}

	switch kind {
	case model.KindDispute:
		return model.Dispute{}, nil
	case model.KindResolve:
		return model.Resolve{}, nil
	default:
		return model.Chargeback{}, nil
	}
}
