package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"ricorrenti/internal/core"
	applog "ricorrenti/internal/log"
)

// RecurringProcessorConfig holds configuration for the batch processor
type RecurringProcessorConfig struct {
	// Concurrency is how many rules are processed in parallel (default: 1)
	Concurrency int
}

// DefaultRecurringProcessorConfig returns sensible defaults
func DefaultRecurringProcessorConfig() RecurringProcessorConfig {
	return RecurringProcessorConfig{Concurrency: 1}
}

// RuleStatus is the outcome of one rule within a run.
type RuleStatus string

const (
	RuleGenerated RuleStatus = "generated"
	RuleSkipped   RuleStatus = "skipped"
	RuleFailed    RuleStatus = "failed"
)

// RuleResult describes what a run did with one rule.
type RuleResult struct {
	RuleID        int64      `json:"rule_id"`
	Status        RuleStatus `json:"status"`
	TransactionID int64      `json:"transaction_id,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// RunSummary aggregates a batch run. Per-rule failures are reported here and
// never abort the run; Success is false only when the rule list could not be
// loaded.
type RunSummary struct {
	Success        bool         `json:"success"`
	RunID          string       `json:"run_id"`
	ProcessingDate string       `json:"processing_date"`
	Processed      int          `json:"processed"`
	Skipped        int          `json:"skipped"`
	Errors         int          `json:"errors"`
	Results        []RuleResult `json:"results"`
}

// RecurringProcessor creates the occurrences due for every rule.
type RecurringProcessor struct {
	rules       RuleStore
	occurrences *OccurrenceService
	config      RecurringProcessorConfig
	group       singleflight.Group
}

// NewRecurringProcessor creates a new recurring transaction processor
func NewRecurringProcessor(rules RuleStore, occurrences *OccurrenceService, config RecurringProcessorConfig) *RecurringProcessor {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &RecurringProcessor{
		rules:       rules,
		occurrences: occurrences,
		config:      config,
	}
}

// ProcessAll evaluates every rule once for the day containing now. The
// returned error is set only when the rule list cannot be loaded, in which
// case nothing is generated.
//
// Cancelling ctx stops further rules from being dispatched; they are
// reported as skipped with ErrRunCancelled. A rule already being processed
// runs to completion.
func (p *RecurringProcessor) ProcessAll(ctx context.Context, now time.Time) (RunSummary, error) {
	summary := RunSummary{
		RunID:          uuid.NewString(),
		ProcessingDate: core.Day(now).String(),
	}

	if p.rules == nil || p.occurrences == nil {
		return summary, ErrProcessorNotInitialized
	}

	rules, err := p.rules.ListRules(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list recurrence rules: %w", err)
	}

	slog.InfoContext(ctx, "Processing recurrence rules", applog.FieldComponent, applog.ComponentEngine,
		applog.FieldOperation, applog.OpRun,
		applog.FieldRunID, summary.RunID,
		"total_rules", len(rules),
		"processing_date", summary.ProcessingDate)

	results := make([]RuleResult, len(rules))
	var g errgroup.Group
	g.SetLimit(p.config.Concurrency)
	for i, rule := range rules {
		i, rule := i, rule
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i] = RuleResult{
					RuleID: rule.ID,
					Status: RuleSkipped,
					Error:  fmt.Errorf("%w: %w", ErrRunCancelled, err).Error(),
				}
				return nil
			}
			results[i] = p.processRule(context.WithoutCancel(ctx), rule, now)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch r.Status {
		case RuleGenerated:
			summary.Processed++
		case RuleSkipped:
			summary.Skipped++
		case RuleFailed:
			summary.Errors++
		}
	}
	summary.Results = results
	summary.Success = true

	fields := applog.NewFields().
		WithComponent(applog.ComponentEngine).
		WithOperation(applog.OpRun).
		WithRun(summary.RunID, summary.Processed, summary.Skipped, summary.Errors)
	slog.InfoContext(ctx, "Recurrence processing complete", append(fields.ToSlice(), "total_checked", len(rules))...)

	return summary, nil
}

// Trigger runs ProcessAll on demand. Concurrent triggers for the same day
// share a single run and its summary; dispatch follows the context of the
// caller that started it.
func (p *RecurringProcessor) Trigger(ctx context.Context, now time.Time) (RunSummary, error) {
	v, err, shared := p.group.Do(core.Day(now).String(), func() (any, error) {
		return p.ProcessAll(ctx, now)
	})
	if shared {
		slog.InfoContext(ctx, "Joined in-flight recurrence run", applog.FieldComponent, applog.ComponentEngine)
	}
	summary, _ := v.(RunSummary)
	return summary, err
}

// processRule applies the idempotency guard and generator to one rule while
// holding the rule's lock. A panic is recovered into a failed result.
func (p *RecurringProcessor) processRule(ctx context.Context, rule core.RecurrenceRule, now time.Time) (result RuleResult) {
	result.RuleID = rule.ID

	unlock := p.occurrences.locks.Lock(rule.ID)
	defer unlock()

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Panic while processing rule", applog.FieldComponent, applog.ComponentEngine, applog.FieldRuleID, rule.ID, "panic", r)
			result.Status = RuleFailed
			result.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	due, err := p.occurrences.ShouldGenerate(ctx, rule, now)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to check if rule is due", applog.FieldComponent, applog.ComponentEngine,
			applog.FieldRuleID, rule.ID,
			"error", err)
		result.Status = RuleFailed
		result.Error = err.Error()
		return result
	}
	if !due {
		result.Status = RuleSkipped
		return result
	}

	tx, err := p.occurrences.Generate(ctx, rule, now)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateOccurrence) {
			slog.InfoContext(ctx, "Occurrence already created by a concurrent run", applog.FieldComponent, applog.ComponentEngine, applog.FieldRuleID, rule.ID)
			result.Status = RuleSkipped
			return result
		}
		slog.ErrorContext(ctx, "Failed to generate occurrence", applog.FieldComponent, applog.ComponentEngine,
			applog.FieldRuleID, rule.ID,
			"name", rule.Template.Name,
			"error", err)
		result.Status = RuleFailed
		result.TransactionID = tx.ID
		result.Error = err.Error()
		return result
	}

	result.Status = RuleGenerated
	result.TransactionID = tx.ID
	return result
}
