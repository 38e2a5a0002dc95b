package services

import (
	"context"
	"time"

	"ricorrenti/internal/core"
)

// Ports consumed by the recurrence engine.
type (
	// TransactionStore persists transactions. Insert must reject a second
	// occurrence for the same (recurrence, calendar day) with an error
	// wrapping core.ErrDuplicateOccurrence.
	TransactionStore interface {
		Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		FindByIDs(ctx context.Context, ids []int64) ([]core.Transaction, error)
		// FindByRecurrenceAndDateRange returns occurrences of the rule dated
		// in the half-open range [from, to).
		FindByRecurrenceAndDateRange(ctx context.Context, ruleID int64, from, to time.Time) ([]core.Transaction, error)
	}

	// WalletLedger holds wallet balances. It fails independently of the
	// transaction store.
	WalletLedger interface {
		ApplyDelta(ctx context.Context, walletID int64, delta core.Money) error
	}

	// RuleStore reads rules and links generated occurrences to them.
	// AppendOccurrences must be atomic with respect to concurrent appends
	// for the same rule.
	RuleStore interface {
		ListRules(ctx context.Context) ([]core.RecurrenceRule, error)
		GetRule(ctx context.Context, id int64) (core.RecurrenceRule, error)
		AppendOccurrences(ctx context.Context, ruleID int64, txIDs ...int64) error
	}

	// OccurrencePublisher announces newly created occurrences to downstream
	// consumers.
	OccurrencePublisher interface {
		PublishOccurrenceCreated(ctx context.Context, tx core.Transaction) error
	}

	// Clock supplies the current instant.
	Clock interface {
		Now() time.Time
	}
)

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }
