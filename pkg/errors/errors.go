// Package errors defines the sentinel errors shared across the miner and a
// RecordError wrapper that pins load-phase failures to their source line.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

var (
	ErrMalformedRecord  = errors.New("malformed record")
	ErrUnknownTerm      = errors.New("unknown term")
	ErrDuplicateTerm    = errors.New("duplicate term")
	ErrInvalidThreshold = errors.New("invalid support threshold")
	ErrCandidateCeiling = errors.New("candidate ceiling exceeded")
	ErrInvalidConfig    = errors.New("invalid config")
	ErrSinkUnavailable  = errors.New("sink unavailable")
)

// Exit codes returned by the miner binary.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
	ExitInput   = 3
	ExitAborted = 4
)

type RecordError struct {
	Err     error
	Source  string
	Line    int
	Message string
}

func (e *RecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %s", e.Source, e.Line, e.Err.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Source, e.Err.Error(), e.Message)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func NewRecord(sentinel error, source string, line int, message string) *RecordError {
	return &RecordError{
		Err:     sentinel,
		Source:  source,
		Line:    line,
		Message: message,
	}
}

func NewRecordf(sentinel error, source string, line int, format string, args ...any) *RecordError {
	return &RecordError{
		Err:     sentinel,
		Source:  source,
		Line:    line,
		Message: fmt.Sprintf(format, args...),
	}
}

// UnknownTerm wraps ErrUnknownTerm with the offending key or index.
func UnknownTerm(term any) error {
	return fmt.Errorf("%w: %v", ErrUnknownTerm, term)
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var recErr *RecordError
	if errors.As(err, &recErr) {
		return ExitInput
	}

	switch {
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrInvalidThreshold):
		return ExitConfig
	case errors.Is(err, ErrMalformedRecord), errors.Is(err, ErrDuplicateTerm):
		return ExitInput
	case errors.Is(err, fs.ErrNotExist):
		return ExitInput
	case errors.Is(err, ErrCandidateCeiling),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return ExitAborted
	default:
		return ExitFailure
	}
}
