package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ricorrenti/internal/core"
	applog "ricorrenti/internal/log"
	"ricorrenti/internal/services"
)

type (
	// RuleReader loads recurrence rules.
	RuleReader interface {
		ListRules(ctx context.Context) ([]core.RecurrenceRule, error)
		GetRule(ctx context.Context, id int64) (core.RecurrenceRule, error)
	}

	// Runner triggers an on-demand batch run.
	Runner interface {
		Trigger(ctx context.Context, now time.Time) (services.RunSummary, error)
	}

	// Pinger reports storage readiness.
	Pinger interface {
		Ping(ctx context.Context) error
	}
)

// Deps are the collaborators of the API handlers. Pinger is optional.
type Deps struct {
	Rules       RuleReader
	Runner      Runner
	Occurrences *services.OccurrenceService
	Clock       services.Clock
	Pinger      Pinger
}

// Handler serves the recurrence API.
type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) *Handler {
	if deps.Clock == nil {
		deps.Clock = services.SystemClock{}
	}
	return &Handler{deps: deps}
}

// RuleDTO is a rule as listed by the API.
type RuleDTO struct {
	ID             int64                `json:"id"`
	Name           string               `json:"name"`
	Frequency      core.Frequency       `json:"frequency"`
	Type           core.TransactionType `json:"type"`
	Amount         string               `json:"amount"`
	Category       string               `json:"category,omitempty"`
	StartDate      string               `json:"start_date"`
	EndDate        string               `json:"end_date,omitempty"`
	State          core.RuleState       `json:"state"`
	Generated      int                  `json:"generated"`
	NextOccurrence string               `json:"next_occurrence,omitempty"`
}

// NextDTO answers a next-occurrence preview.
type NextDTO struct {
	RuleID  int64  `json:"rule_id"`
	From    string `json:"from"`
	Next    string `json:"next,omitempty"`
	HasNext bool   `json:"has_next"`
}

// MissingDTO is a missing-occurrence report.
type MissingDTO struct {
	RuleID        int64          `json:"rule_id"`
	WindowEnd     string         `json:"window_end"`
	ExpectedCount int            `json:"expected_count"`
	ActualCount   int            `json:"actual_count"`
	MissingDates  []string       `json:"missing_dates"`
	LastGenerated *OccurrenceDTO `json:"last_generated,omitempty"`
}

// OccurrenceDTO identifies one generated transaction.
type OccurrenceDTO struct {
	TransactionID int64     `json:"transaction_id"`
	Day           string    `json:"day"`
	CreatedAt     time.Time `json:"created_at"`
}

// BackfillRequest lists the days to backfill. When Dates is empty, every
// missing day up to Until (default today) is backfilled.
type BackfillRequest struct {
	Dates []string `json:"dates"`
	Until string   `json:"until"`
}

// BackfillDTO reports a backfill.
type BackfillDTO struct {
	RuleID       int64              `json:"rule_id"`
	GeneratedIDs []int64            `json:"generated_ids"`
	RelinkedIDs  []int64            `json:"relinked_ids"`
	Errors       []BackfillErrorDTO `json:"errors"`
}

type BackfillErrorDTO struct {
	Date  string `json:"date"`
	Error string `json:"error"`
}

// RunFailureDTO is returned when a run could not load the rule list.
type RunFailureDTO struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Health always answers ok.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready checks storage.
// GET /readyz
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.deps.Pinger != nil {
		if err := h.deps.Pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Storage not ready", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// ListRules returns every rule with its state and next occurrence as of today.
// GET /api/recurrences
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.deps.Rules.ListRules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rules", err)
		return
	}

	today := core.Day(h.deps.Clock.Now())
	dtos := make([]RuleDTO, 0, len(rules))
	for _, rule := range rules {
		dto := RuleDTO{
			ID:        rule.ID,
			Name:      rule.Template.Name,
			Frequency: rule.Frequency,
			Type:      rule.Template.Type,
			Amount:    rule.Template.Amount.String(),
			Category:  rule.Template.Category,
			StartDate: rule.StartDate.String(),
			State:     rule.State(today),
			Generated: len(rule.GeneratedOccurrences),
		}
		if !rule.EndDate.IsZero() {
			dto.EndDate = rule.EndDate.String()
		}
		if next, ok := services.NextOccurrence(rule, today); ok {
			dto.NextOccurrence = next.String()
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Run processes every rule for today. Concurrent calls share one run.
// POST /api/recurrences/run
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// A client hanging up must not stop a run other callers may have joined.
	summary, err := h.deps.Runner.Trigger(context.WithoutCancel(ctx), h.deps.Clock.Now())
	if err != nil {
		fields := applog.NewFields().WithOperation(applog.OpRun).WithError(err)
		applog.FromContext(ctx).ErrorContext(ctx, "Recurrence run failed", fields.ToSlice()...)
		writeJSON(w, http.StatusInternalServerError, RunFailureDTO{Success: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Next previews the next occurrence of a rule on or after ?from (default today).
// GET /api/recurrences/{id}/next
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.loadRule(w, r)
	if !ok {
		return
	}
	from, err := dateParam(r, "from", core.Day(h.deps.Clock.Now()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}

	dto := NextDTO{RuleID: rule.ID, From: from.String()}
	if next, ok := services.NextOccurrence(rule, from); ok {
		dto.Next = next.String()
		dto.HasNext = true
	}
	writeJSON(w, http.StatusOK, dto)
}

// Missing reports expected days without a linked occurrence up to ?until
// (default today).
// GET /api/recurrences/{id}/missing
func (h *Handler) Missing(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.loadRule(w, r)
	if !ok {
		return
	}
	until, err := dateParam(r, "until", core.Day(h.deps.Clock.Now()))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid until date (use YYYY-MM-DD)", err)
		return
	}

	report, err := h.deps.Occurrences.FindMissing(r.Context(), rule, until.Time)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to scan occurrences", err)
		return
	}

	dto := MissingDTO{
		RuleID:        report.RuleID,
		WindowEnd:     report.WindowEnd.String(),
		ExpectedCount: report.ExpectedCount,
		ActualCount:   report.ActualCount,
		MissingDates:  formatDates(report.MissingDates),
	}
	if last := report.LastGenerated; last != nil {
		dto.LastGenerated = &OccurrenceDTO{
			TransactionID: last.ID,
			Day:           last.OccurrenceDay().String(),
			CreatedAt:     last.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// Backfill creates occurrences for past days of a rule.
// POST /api/recurrences/{id}/backfill
func (h *Handler) Backfill(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rule, ok := h.loadRule(w, r)
	if !ok {
		return
	}

	var req BackfillRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	var dates []core.Date
	for _, s := range req.Dates {
		d, err := core.ParseDate(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid date: %s", s), err)
			return
		}
		dates = append(dates, d)
	}

	if len(dates) == 0 {
		until := core.Day(h.deps.Clock.Now())
		if req.Until != "" {
			var err error
			if until, err = core.ParseDate(req.Until); err != nil {
				writeError(w, http.StatusBadRequest, "Invalid until date (use YYYY-MM-DD)", err)
				return
			}
		}
		report, err := h.deps.Occurrences.FindMissing(ctx, rule, until.Time)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to scan occurrences", err)
			return
		}
		dates = report.MissingDates
	}

	result, err := h.deps.Occurrences.Backfill(ctx, rule, dates)
	dto := BackfillDTO{
		RuleID:       result.RuleID,
		GeneratedIDs: nonNil(result.GeneratedIDs),
		RelinkedIDs:  nonNil(result.RelinkedIDs),
		Errors:       make([]BackfillErrorDTO, 0, len(result.Errors)),
	}
	for _, e := range result.Errors {
		dto.Errors = append(dto.Errors, BackfillErrorDTO{Date: e.Date.String(), Error: e.Err.Error()})
	}
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Backfill could not link occurrences",
			applog.FieldRuleID, rule.ID, applog.FieldError, err)
		writeJSON(w, http.StatusInternalServerError, dto)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) loadRule(w http.ResponseWriter, r *http.Request) (core.RecurrenceRule, bool) {
	id, err := ruleIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule id", err)
		return core.RecurrenceRule{}, false
	}
	rule, err := h.deps.Rules.GetRule(r.Context(), id)
	if errors.Is(err, core.ErrRuleNotFound) {
		writeError(w, http.StatusNotFound, "Rule not found", nil)
		return core.RecurrenceRule{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get rule", err)
		return core.RecurrenceRule{}, false
	}
	return rule, true
}

func formatDates(dates []core.Date) []string {
	out := make([]string, 0, len(dates))
	for _, d := range dates {
		out = append(out, d.String())
	}
	return out
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
