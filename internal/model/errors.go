package model

import (
	"errors"
	"fmt"
)

// Fatal errors abort stream processing and are surfaced to the caller.
var (
	ErrIO              = errors.New("model: reading input")
	ErrHeaderMissing   = errors.New("model: header missing or malformed")
	ErrRecordMalformed = errors.New("model: record malformed")
	ErrAmountMalformed = errors.New("model: amount malformed")
	ErrAmountMissing   = errors.New("model: amount missing")
)

// Ignorable errors explain why a record had no effect. The engine never
// aborts on them.
var (
	ErrInsufficientFunds = errors.New("model: insufficient available funds")
	ErrUnknownTx         = errors.New("model: referenced transaction is not a known deposit")
	ErrAlreadyDisputed   = errors.New("model: transaction already disputed")
	ErrNotDisputed       = errors.New("model: transaction not under dispute")
	ErrChargedBack       = errors.New("model: transaction already charged back")
	ErrClientMismatch    = errors.New("model: client does not own referenced transaction")
	ErrAccountLocked     = errors.New("model: account locked")
)

var fatal = []error{ErrIO, ErrHeaderMissing, ErrRecordMalformed, ErrAmountMalformed, ErrAmountMissing}

var ignorable = []error{
	ErrInsufficientFunds, ErrUnknownTx, ErrAlreadyDisputed, ErrNotDisputed,
	ErrChargedBack, ErrClientMismatch, ErrAccountLocked,
}

// IsFatal reports whether err is one of the fatal input errors.
func IsFatal(err error) bool {
	return matchesAny(err, fatal)
}

// IsIgnorable reports whether err is a policy rejection the engine drops
// without changing state.
func IsIgnorable(err error) bool {
	return matchesAny(err, ignorable)
}

func matchesAny(err error, targets []error) bool {
	if err == nil {
		return false
	}
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// RecordError attaches the 1-based input line to a parse failure.
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}
