package core

import "errors"

var (
	// ErrDuplicateOccurrence is returned by a transaction store when an
	// occurrence already exists for the same rule and calendar day. Callers
	// treat it as the idempotency signal, not as a failure.
	ErrDuplicateOccurrence = errors.New("occurrence already exists for rule and day")

	ErrRuleNotFound        = errors.New("recurrence rule not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrWalletNotFound      = errors.New("wallet not found")
)
