// Package errs declares the error kinds shared by every package of the
// clustering engine. Failures wrap one of the sentinels with %w so callers can
// test the kind with errors.Is.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFormat reports a malformed line or token for the active grammar.
	ErrFormat = errors.New("format error")
	// ErrDimensionMismatch reports inconsistent vector dimensions.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrReference reports a macro, question or feature name that does not resolve.
	ErrReference = errors.New("reference error")
	// ErrConflict reports one name bound to two different definitions.
	ErrConflict = errors.New("conflict")
	// ErrCoverage reports a question set that does not cover the phoneme inventory.
	ErrCoverage = errors.New("coverage error")
	// ErrStructural reports a broken tree invariant.
	ErrStructural = errors.New("structural invariant violation")
)

// Formatf wraps ErrFormat with a formatted message.
func Formatf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFormat, fmt.Sprintf(format, args...))
}

// CoverageError lists the phonemes no question group contains.
type CoverageError struct {
	Missing []string
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("%v: uncovered phonemes [%s]", ErrCoverage, strings.Join(e.Missing, " "))
}

// Unwrap makes errors.Is(err, ErrCoverage) hold.
func (e *CoverageError) Unwrap() error {
	return ErrCoverage
}
