package services

import (
	"errors"
	"fmt"

	"ricorrenti/internal/core"
)

var (
	// ErrOccurrenceNotLinked means the occurrence was created but could not
	// be appended to the rule's generated occurrences. A later backfill
	// relinks it.
	ErrOccurrenceNotLinked = errors.New("occurrence created but not linked to rule")

	// ErrOutsideWindow is returned for backfill dates before the start date
	// or after the end date of a rule.
	ErrOutsideWindow = errors.New("date outside rule window")

	ErrProcessorNotInitialized = errors.New("processor not properly initialized")

	// ErrRunCancelled marks rules a run never reached because its context
	// was cancelled first.
	ErrRunCancelled = errors.New("run cancelled before rule was dispatched")
)

// BackfillError records why a single backfill date failed.
type BackfillError struct {
	Date core.Date
	Err  error
}

func (e BackfillError) Error() string {
	return fmt.Sprintf("%s: %v", e.Date, e.Err)
}

func (e BackfillError) Unwrap() error {
	return e.Err
}
