package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ricorrenti/internal/core"
	applog "ricorrenti/internal/log"
)

// BackfillResult reports the outcome of one backfill call.
type BackfillResult struct {
	RuleID       int64
	GeneratedIDs []int64
	// RelinkedIDs are occurrences that already existed for a requested day
	// but were missing from the rule's generated occurrences.
	RelinkedIDs []int64
	Errors      []BackfillError
}

// Backfill creates the occurrences of rule for the given historical days.
// Each day is handled independently; failures are collected in the result.
// All new and relinked IDs are appended to the rule in a single update at
// the end. The returned error is non-nil only if that update fails.
func (s *OccurrenceService) Backfill(ctx context.Context, rule core.RecurrenceRule, dates []core.Date) (BackfillResult, error) {
	unlock := s.locks.Lock(rule.ID)
	defer unlock()

	result := BackfillResult{RuleID: rule.ID}
	seen := make(map[string]struct{}, len(dates))

	for _, date := range dates {
		day := core.Day(date.Time)
		if _, dup := seen[day.String()]; dup {
			continue
		}
		seen[day.String()] = struct{}{}

		if !rule.InWindow(day) {
			result.Errors = append(result.Errors, BackfillError{Date: day, Err: ErrOutsideWindow})
			continue
		}

		created, err := s.materialize(ctx, rule, day.Time)
		if err == nil {
			result.GeneratedIDs = append(result.GeneratedIDs, created.ID)
			continue
		}

		if errors.Is(err, core.ErrDuplicateOccurrence) {
			id, relink, lookupErr := s.unlinkedOccurrence(ctx, rule, day)
			if lookupErr != nil {
				err = fmt.Errorf("%w; lookup existing: %w", err, lookupErr)
			} else if relink {
				result.RelinkedIDs = append(result.RelinkedIDs, id)
				continue
			}
		}

		slog.WarnContext(ctx, "Backfill failed for day", applog.FieldComponent, applog.ComponentEngine,
			applog.FieldRuleID, rule.ID,
			applog.FieldDay, day.String(),
			applog.FieldError, err)
		result.Errors = append(result.Errors, BackfillError{Date: day, Err: err})
	}

	ids := append(append([]int64(nil), result.GeneratedIDs...), result.RelinkedIDs...)
	if len(ids) > 0 {
		if err := s.rules.AppendOccurrences(ctx, rule.ID, ids...); err != nil {
			return result, fmt.Errorf("%w: rule %d: %w", ErrOccurrenceNotLinked, rule.ID, err)
		}
	}

	fields := applog.NewFields().
		WithComponent(applog.ComponentEngine).
		WithOperation(applog.OpBackfill).
		WithRule(rule.ID)
	slog.InfoContext(ctx, "Backfill complete", append(fields.ToSlice(),
		"requested", len(dates),
		"generated", len(result.GeneratedIDs),
		"relinked", len(result.RelinkedIDs),
		applog.FieldErrors, len(result.Errors))...)

	return result, nil
}

// unlinkedOccurrence finds the stored occurrence for day and reports whether
// it is absent from the rule's generated occurrences.
func (s *OccurrenceService) unlinkedOccurrence(ctx context.Context, rule core.RecurrenceRule, day core.Date) (int64, bool, error) {
	existing, err := s.transactions.FindByRecurrenceAndDateRange(ctx, rule.ID, day.Time, day.AddDays(1).Time)
	if err != nil {
		return 0, false, err
	}
	for _, tx := range existing {
		if !rule.HasOccurrence(tx.ID) {
			return tx.ID, true, nil
		}
	}
	return 0, false, nil
}
