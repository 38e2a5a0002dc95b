package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ricorrenti/internal/core"
)

func TestBackfill_FillsEveryMissingDay(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 1), d(2024, 1, 10))

	for _, day := range []int{3, 7} {
		_, err := f.svc.Generate(f.ctx, r, at(2024, 1, day))
		require.NoError(t, err)
	}

	report, err := f.svc.FindMissing(f.ctx, f.reload(t, r), at(2024, 1, 31))
	require.NoError(t, err)
	assert.Equal(t, d(2024, 1, 31), report.WindowEnd)
	assert.Equal(t, 10, report.ExpectedCount)
	assert.Equal(t, 2, report.ActualCount)
	require.Len(t, report.MissingDates, 8)

	appendsBefore := f.rules.appends.Load()
	result, err := f.svc.Backfill(f.ctx, f.reload(t, r), report.MissingDates)
	require.NoError(t, err)
	assert.Len(t, result.GeneratedIDs, 8)
	assert.Empty(t, result.Errors)
	assert.Equal(t, appendsBefore+1, f.rules.appends.Load(), "one rule update per backfill")

	report, err = f.svc.FindMissing(f.ctx, f.reload(t, r), at(2024, 1, 31))
	require.NoError(t, err)
	assert.Empty(t, report.MissingDates)
	assert.Equal(t, 10, report.ActualCount)
	assert.Equal(t, int64(100000-10*5000), f.balance(t, f.wallet.ID))
}

func TestBackfill_OccurrencesDatedAtMidnight(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Weekly, d(2024, 1, 1), core.Date{})

	result, err := f.svc.Backfill(f.ctx, r, []core.Date{d(2024, 1, 8)})
	require.NoError(t, err)
	require.Len(t, result.GeneratedIDs, 1)

	txs, err := f.store.FindByIDs(f.ctx, result.GeneratedIDs)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, d(2024, 1, 8).Time, txs[0].Date)
}

func TestBackfill_RejectsDaysOutsideWindow(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 5), d(2024, 1, 6))

	result, err := f.svc.Backfill(f.ctx, r, []core.Date{d(2024, 1, 4), d(2024, 1, 5), d(2024, 1, 7)})
	require.NoError(t, err)

	assert.Len(t, result.GeneratedIDs, 1)
	require.Len(t, result.Errors, 2)
	for _, e := range result.Errors {
		assert.ErrorIs(t, e, ErrOutsideWindow)
	}
	assert.Equal(t, d(2024, 1, 4), result.Errors[0].Date)
	assert.Equal(t, d(2024, 1, 7), result.Errors[1].Date)
}

func TestBackfill_DeduplicatesInput(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})

	result, err := f.svc.Backfill(f.ctx, r, []core.Date{d(2024, 1, 2), d(2024, 1, 2), d(2024, 1, 3)})
	require.NoError(t, err)

	assert.Len(t, result.GeneratedIDs, 2)
	assert.Empty(t, result.Errors)
	assert.Len(t, f.store.Transactions(), 2)
}

func TestBackfill_LinkedDayIsAnError(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})
	_, err := f.svc.Generate(f.ctx, r, at(2024, 1, 2))
	require.NoError(t, err)

	result, err := f.svc.Backfill(f.ctx, f.reload(t, r), []core.Date{d(2024, 1, 2)})
	require.NoError(t, err)

	assert.Empty(t, result.GeneratedIDs)
	assert.Empty(t, result.RelinkedIDs)
	require.Len(t, result.Errors, 1)
	assert.ErrorIs(t, result.Errors[0], core.ErrDuplicateOccurrence)
	assert.Len(t, f.store.Transactions(), 1)
}

func TestBackfill_PartialFailureStillLinksSuccesses(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})

	// Fail only the second insert.
	inserts := 0
	f.txs.failFor = nil
	svc := NewOccurrenceService(&insertHook{countingTxStore: f.txs, hook: func() error {
		inserts++
		if inserts == 2 {
			return errStoreDown
		}
		return nil
	}}, f.rules, f.ledger, nil)

	result, err := svc.Backfill(f.ctx, r, []core.Date{d(2024, 1, 1), d(2024, 1, 2), d(2024, 1, 3)})
	require.NoError(t, err)

	assert.Len(t, result.GeneratedIDs, 2)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, d(2024, 1, 2), result.Errors[0].Date)
	assert.ErrorIs(t, result.Errors[0], errStoreDown)
	assert.ElementsMatch(t, result.GeneratedIDs, f.reload(t, r).GeneratedOccurrences)
}

func TestBackfill_LinkFailure(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})
	f.rules.appendErr = errStoreDown

	result, err := f.svc.Backfill(f.ctx, r, []core.Date{d(2024, 1, 1)})
	assert.ErrorIs(t, err, ErrOccurrenceNotLinked)
	assert.Len(t, result.GeneratedIDs, 1)
}

func TestFindMissing_LastGeneratedByCreationTime(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})

	// Created out of date order: the backfilled day is the newest record.
	_, err := f.svc.Generate(f.ctx, r, at(2024, 1, 5))
	require.NoError(t, err)
	result, err := f.svc.Backfill(f.ctx, f.reload(t, r), []core.Date{d(2024, 1, 2)})
	require.NoError(t, err)
	require.Len(t, result.GeneratedIDs, 1)

	report, err := f.svc.FindMissing(f.ctx, f.reload(t, r), at(2024, 1, 5))
	require.NoError(t, err)
	require.NotNil(t, report.LastGenerated)
	assert.Equal(t, result.GeneratedIDs[0], report.LastGenerated.ID)
	assert.Equal(t, []core.Date{d(2024, 1, 1), d(2024, 1, 3), d(2024, 1, 4)}, report.MissingDates)
}

func TestFindMissing_NoOccurrences(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Monthly, d(2024, 1, 31), core.Date{})

	report, err := f.svc.FindMissing(f.ctx, r, at(2024, 4, 30))
	require.NoError(t, err)
	assert.Nil(t, report.LastGenerated)
	assert.Equal(t, []core.Date{d(2024, 1, 31), d(2024, 2, 29), d(2024, 3, 31), d(2024, 4, 30)}, report.MissingDates)
}

func TestRuleLocks_ReleasesEntries(t *testing.T) {
	locks := NewRuleLocks()

	unlock := locks.Lock(1)
	assert.Equal(t, 1, locks.Len())

	acquired := make(chan struct{})
	go func() {
		release := locks.Lock(1)
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first is held")
	default:
	}

	unlock()
	<-acquired
	assert.Eventually(t, func() bool { return locks.Len() == 0 }, time.Second, time.Millisecond)
}
