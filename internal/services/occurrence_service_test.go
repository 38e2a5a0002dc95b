package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ricorrenti/internal/core"
)

func TestShouldGenerate(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Weekly, d(2024, 1, 1), d(2024, 1, 29))

	tests := []struct {
		name  string
		today time.Time
		want  bool
	}{
		{"before start", at(2023, 12, 25), false},
		{"start day", at(2024, 1, 1), true},
		{"off-phase day", at(2024, 1, 3), false},
		{"second week", at(2024, 1, 8), true},
		{"last day of window", at(2024, 1, 29), true},
		{"after end", at(2024, 2, 5), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.ShouldGenerate(f.ctx, r, tt.today)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestShouldGenerate_FalseWhenDayAlreadyHasOccurrence(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})

	_, err := f.svc.Generate(f.ctx, r, at(2024, 1, 5))
	require.NoError(t, err)

	// Checked late in the same day, against a stale copy of the rule.
	late := time.Date(2024, 1, 5, 23, 59, 0, 0, time.UTC)
	got, err := f.svc.ShouldGenerate(f.ctx, r, late)
	require.NoError(t, err)
	assert.False(t, got)

	got, err = f.svc.ShouldGenerate(f.ctx, r, at(2024, 1, 6))
	require.NoError(t, err)
	assert.True(t, got)
}

func TestShouldGenerate_StoreError(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})
	f.txs.findErr = errStoreDown

	_, err := f.svc.ShouldGenerate(f.ctx, r, at(2024, 1, 2))
	assert.ErrorIs(t, err, errStoreDown)
}

func TestGenerate_CopiesTemplateAndLinks(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Monthly, d(2024, 1, 31), core.Date{})
	when := at(2024, 2, 29)

	tx, err := f.svc.Generate(f.ctx, r, when)
	require.NoError(t, err)

	assert.NotZero(t, tx.ID)
	assert.Equal(t, when, tx.Date)
	require.NotNil(t, tx.RecurrenceID)
	assert.Equal(t, r.ID, *tx.RecurrenceID)
	assert.Equal(t, "Rent", tx.Name)
	assert.Equal(t, "housing", tx.Category)
	assert.Equal(t, "standing order", tx.Notes)
	assert.Equal(t, []string{"fixed"}, tx.Tags)
	assert.Equal(t, int64(5000), tx.Amount.Cents)

	reloaded := f.reload(t, r)
	assert.Equal(t, []int64{tx.ID}, reloaded.GeneratedOccurrences)
}

func TestGenerate_AppliesExpenseToLedger(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})

	_, err := f.svc.Generate(f.ctx, r, at(2024, 1, 1))
	require.NoError(t, err)

	assert.Equal(t, int64(95000), f.balance(t, f.wallet.ID))
}

func TestGenerate_AppliesTransferToBothWallets(t *testing.T) {
	f := newFixture(t)
	savings, err := f.store.CreateWallet(f.ctx, "savings", core.Money{})
	require.NoError(t, err)

	r, err := f.store.CreateRule(f.ctx, core.RecurrenceRule{
		Frequency: core.Monthly,
		StartDate: d(2024, 1, 1),
		Template: core.Template{
			OriginWalletID:      f.wallet.ID,
			DestinationWalletID: savings.ID,
			Amount:              core.Money{Cents: 20000},
			Type:                core.Transfer,
			Name:                "Savings",
		},
	})
	require.NoError(t, err)

	_, err = f.svc.Generate(f.ctx, r, at(2024, 1, 1))
	require.NoError(t, err)

	assert.Equal(t, int64(80000), f.balance(t, f.wallet.ID))
	assert.Equal(t, int64(20000), f.balance(t, savings.ID))
}

func TestGenerate_StoreFailureHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})
	f.txs.failFor[r.ID] = errStoreDown

	_, err := f.svc.Generate(f.ctx, r, at(2024, 1, 1))
	assert.ErrorIs(t, err, errStoreDown)

	assert.Empty(t, f.store.Transactions())
	assert.Equal(t, int64(100000), f.balance(t, f.wallet.ID))
	assert.Empty(t, f.reload(t, r).GeneratedOccurrences)
	assert.Zero(t, f.rules.appends.Load())
}

func TestGenerate_LedgerFailureKeepsOccurrence(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})
	f.ledger.err = errors.New("ledger offline")

	tx, err := f.svc.Generate(f.ctx, r, at(2024, 1, 1))
	require.NoError(t, err)

	assert.Len(t, f.store.Transactions(), 1)
	assert.Equal(t, []int64{tx.ID}, f.reload(t, r).GeneratedOccurrences)
	assert.Equal(t, int64(100000), f.balance(t, f.wallet.ID))
}

func TestGenerate_LinkFailureReturnsTransaction(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})
	f.rules.appendErr = errStoreDown

	tx, err := f.svc.Generate(f.ctx, r, at(2024, 1, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOccurrenceNotLinked)
	assert.ErrorIs(t, err, errStoreDown)
	assert.NotZero(t, tx.ID)

	assert.Len(t, f.store.Transactions(), 1)
	assert.Empty(t, f.reload(t, r).GeneratedOccurrences)
}

func TestGenerate_DuplicateDayRejected(t *testing.T) {
	f := newFixture(t)
	r := f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})

	_, err := f.svc.Generate(f.ctx, r, at(2024, 1, 1))
	require.NoError(t, err)

	_, err = f.svc.Generate(f.ctx, r, time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, core.ErrDuplicateOccurrence)
	assert.Len(t, f.store.Transactions(), 1)
}

func TestGenerate_PublishesCreatedOccurrence(t *testing.T) {
	f := newFixture(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewOccurrenceService(f.txs, f.rules, f.ledger, pub)
	r := f.rule(t, core.Daily, d(2024, 1, 1), core.Date{})

	tx, err := svc.Generate(f.ctx, r, at(2024, 1, 1))
	require.NoError(t, err, "publish failures are not fatal")

	assert.Equal(t, []int64{tx.ID}, pub.ids)
}
