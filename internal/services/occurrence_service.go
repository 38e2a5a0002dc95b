package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ricorrenti/internal/core"
	applog "ricorrenti/internal/log"
)

// OccurrenceService decides when a rule is due and materializes its
// occurrences across the transaction store, the wallet ledger and the rule
// store.
type OccurrenceService struct {
	transactions TransactionStore
	rules        RuleStore
	ledger       WalletLedger
	publisher    OccurrencePublisher
	locks        *RuleLocks
}

// NewOccurrenceService wires the engine. publisher may be nil.
func NewOccurrenceService(transactions TransactionStore, rules RuleStore, ledger WalletLedger, publisher OccurrencePublisher) *OccurrenceService {
	return &OccurrenceService{
		transactions: transactions,
		rules:        rules,
		ledger:       ledger,
		publisher:    publisher,
		locks:        NewRuleLocks(),
	}
}

// ShouldGenerate reports whether the rule should produce an occurrence for
// the calendar day containing today. The transaction store is the single
// source of truth for what already exists; it is queried once for the day.
func (s *OccurrenceService) ShouldGenerate(ctx context.Context, rule core.RecurrenceRule, today time.Time) (bool, error) {
	day := core.Day(today)

	if rule.State(day) != core.Active {
		return false, nil
	}

	existing, err := s.transactions.FindByRecurrenceAndDateRange(ctx, rule.ID, day.Time, day.AddDays(1).Time)
	if err != nil {
		return false, fmt.Errorf("find occurrences for day: %w", err)
	}
	if len(existing) > 0 {
		slog.DebugContext(ctx, "Occurrence already exists for day", applog.FieldComponent, applog.ComponentEngine,
			applog.FieldRuleID, rule.ID,
			applog.FieldDay, day.String(),
			applog.FieldTxID, existing[0].ID)
		return false, nil
	}

	return Matches(rule, day), nil
}

// Generate creates the occurrence of rule dated at and links it to the rule.
//
// A store failure returns the error with no side effects. A ledger failure
// is logged and left unreconciled; the occurrence stays. A link failure
// returns the created transaction together with an error wrapping
// ErrOccurrenceNotLinked.
func (s *OccurrenceService) Generate(ctx context.Context, rule core.RecurrenceRule, at time.Time) (core.Transaction, error) {
	created, err := s.materialize(ctx, rule, at)
	if err != nil {
		return core.Transaction{}, err
	}

	if err := s.rules.AppendOccurrences(ctx, rule.ID, created.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to link occurrence to rule", applog.FieldComponent, applog.ComponentEngine,
			applog.FieldRuleID, rule.ID,
			applog.FieldTxID, created.ID,
			"error", err)
		return created, fmt.Errorf("%w: rule %d, transaction %d: %w", ErrOccurrenceNotLinked, rule.ID, created.ID, err)
	}

	return created, nil
}

// materialize inserts the occurrence and applies its side effects, without
// linking it to the rule.
func (s *OccurrenceService) materialize(ctx context.Context, rule core.RecurrenceRule, at time.Time) (core.Transaction, error) {
	created, err := s.transactions.Insert(ctx, rule.NewOccurrence(at))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert occurrence: %w", err)
	}

	s.applyToLedger(ctx, created)
	s.publishCreated(ctx, created)

	slog.InfoContext(ctx, "Created occurrence from recurrence rule", applog.FieldComponent, applog.ComponentEngine,
		applog.FieldRuleID, rule.ID,
		applog.FieldTxID, created.ID,
		applog.FieldDay, created.OccurrenceDay().String(),
		"name", created.Name,
		applog.FieldAmountCents, created.Amount.Cents,
		"frequency", rule.Frequency)

	return created, nil
}

// applyToLedger moves the occurrence's amount on its wallets. Failures are
// logged only; the ledger stays out of sync until reconciled by hand.
func (s *OccurrenceService) applyToLedger(ctx context.Context, tx core.Transaction) {
	if s.ledger == nil {
		return
	}

	type delta struct {
		wallet int64
		amount core.Money
	}
	var deltas []delta
	if tx.Type == core.Transfer {
		deltas = []delta{
			{tx.OriginWalletID, tx.Amount.Neg()},
			{tx.DestinationWalletID, tx.Amount},
		}
	} else {
		deltas = []delta{{tx.WalletID, tx.Amount.Signed(tx.Type)}}
	}

	for _, d := range deltas {
		if err := s.ledger.ApplyDelta(ctx, d.wallet, d.amount); err != nil {
			slog.ErrorContext(ctx, "Failed to apply occurrence to wallet ledger", applog.FieldComponent, applog.ComponentEngine,
				applog.FieldTxID, tx.ID,
				"wallet_id", d.wallet,
				"delta_cents", d.amount.Cents,
				"error", err)
		}
	}
}

func (s *OccurrenceService) publishCreated(ctx context.Context, tx core.Transaction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOccurrenceCreated(ctx, tx); err != nil {
		slog.ErrorContext(ctx, "Failed to publish occurrence created message", applog.FieldComponent, applog.ComponentEngine,
			applog.FieldTxID, tx.ID,
			"error", err)
	}
}
