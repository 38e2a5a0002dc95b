package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ricorrenti/internal/core"
)

func TestRecurringScheduler_RunsOnStartAndStops(t *testing.T) {
	f := newFixture(t)
	f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})
	p := NewRecurringProcessor(f.rules, f.svc, DefaultRecurringProcessorConfig())

	s := NewRecurringScheduler(p, FixedClock(at(2024, 1, 2)), RecurringSchedulerConfig{
		Interval:   5 * time.Millisecond,
		RunOnStart: true,
	})

	ctx := context.Background()
	require.NoError(t, s.Start(ctx))
	assert.Error(t, s.Start(ctx), "second start is rejected")
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool {
		_, ok := s.LastRun()
		return ok
	}, time.Second, time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, s.Stop(stopCtx))
	assert.False(t, s.IsRunning())

	// Ticks on the same day never add a second occurrence.
	assert.Len(t, f.store.Transactions(), 1)
}

func TestRecurringScheduler_StopWhenNotRunning(t *testing.T) {
	s := NewRecurringScheduler(nil, nil, RecurringSchedulerConfig{})
	assert.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, time.Minute, s.config.Interval)
}

func TestRecurringScheduler_FatalRunKeepsLastSummary(t *testing.T) {
	f := newFixture(t)
	f.rules.listErr = errStoreDown
	p := NewRecurringProcessor(f.rules, f.svc, DefaultRecurringProcessorConfig())
	s := NewRecurringScheduler(p, FixedClock(at(2024, 1, 2)), RecurringSchedulerConfig{Interval: time.Hour})

	s.runOnce(context.Background())

	_, ok := s.LastRun()
	assert.False(t, ok)
}
