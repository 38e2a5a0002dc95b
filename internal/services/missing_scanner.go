package services

import (
	"context"
	"fmt"
	"time"

	"ricorrenti/internal/core"
)

// MissingReport compares the days a rule should have produced with the
// occurrences linked to it.
type MissingReport struct {
	RuleID        int64
	WindowEnd     core.Date
	MissingDates  []core.Date
	ExpectedCount int
	ActualCount   int
	// LastGenerated is the most recently created linked occurrence, by
	// creation time rather than occurrence date.
	LastGenerated *core.Transaction
}

// FindMissing lists the expected days up to windowEnd for which the rule has
// no linked occurrence.
func (s *OccurrenceService) FindMissing(ctx context.Context, rule core.RecurrenceRule, windowEnd time.Time) (MissingReport, error) {
	report := MissingReport{
		RuleID:    rule.ID,
		WindowEnd: core.Day(windowEnd),
	}

	expected := ExpectedDates(rule, report.WindowEnd)
	report.ExpectedCount = len(expected)

	var actual []core.Transaction
	if len(rule.GeneratedOccurrences) > 0 {
		var err error
		actual, err = s.transactions.FindByIDs(ctx, rule.GeneratedOccurrences)
		if err != nil {
			return report, fmt.Errorf("resolve generated occurrences: %w", err)
		}
	}
	report.ActualCount = len(actual)

	seen := make(map[string]struct{}, len(actual))
	for i := range actual {
		seen[actual[i].OccurrenceDay().String()] = struct{}{}
		if report.LastGenerated == nil || !actual[i].CreatedAt.Before(report.LastGenerated.CreatedAt) {
			report.LastGenerated = &actual[i]
		}
	}

	for _, day := range expected {
		if _, ok := seen[day.String()]; !ok {
			report.MissingDates = append(report.MissingDates, day)
		}
	}

	return report, nil
}
