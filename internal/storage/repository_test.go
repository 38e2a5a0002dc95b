package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ricorrenti/internal/core"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "ricorrenti.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedRule(t *testing.T, repo *SQLiteRepository) (core.Wallet, core.RecurrenceRule) {
	t.Helper()
	ctx := context.Background()
	wallet, err := repo.CreateWallet(ctx, "checking", core.Money{Cents: 10000})
	require.NoError(t, err)

	rule, err := repo.CreateRule(ctx, core.RecurrenceRule{
		Frequency: core.Monthly,
		StartDate: core.NewDate(2024, time.January, 31),
		EndDate:   core.NewDate(2024, time.December, 31),
		Template: core.Template{
			WalletID: wallet.ID,
			Amount:   core.Money{Cents: 1250},
			Type:     core.Expense,
			Category: "subscriptions",
			Name:     "Streaming",
			Notes:    "family plan",
			Tags:     []string{"media", "monthly"},
			LineItems: []core.LineItem{
				{Name: "base", Amount: core.Money{Cents: 1000}},
				{Name: "extra screen", Amount: core.Money{Cents: 250}},
			},
		},
	})
	require.NoError(t, err)
	return wallet, rule
}

func TestNewSQLiteRepository_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ricorrenti.db")

	first, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, second.Ping(context.Background()))
	require.NoError(t, second.Close())
}

func TestRuleRoundTrip(t *testing.T) {
	repo := newTestRepository(t)
	wallet, rule := seedRule(t, repo)

	got, err := repo.GetRule(context.Background(), rule.ID)
	require.NoError(t, err)

	assert.Equal(t, core.Monthly, got.Frequency)
	assert.Equal(t, "2024-01-31", got.StartDate.String())
	assert.Equal(t, "2024-12-31", got.EndDate.String())
	assert.Equal(t, wallet.ID, got.Template.WalletID)
	assert.Equal(t, []string{"media", "monthly"}, got.Template.Tags)
	assert.Equal(t, rule.Template.LineItems, got.Template.LineItems)
	assert.Empty(t, got.GeneratedOccurrences)
}

func TestCreateRule_OpenEnded(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	a, err := repo.CreateWallet(ctx, "a", core.Money{})
	require.NoError(t, err)
	b, err := repo.CreateWallet(ctx, "b", core.Money{})
	require.NoError(t, err)

	rule, err := repo.CreateRule(ctx, core.RecurrenceRule{
		Frequency: core.Weekly,
		StartDate: core.NewDate(2024, time.March, 4),
		Template: core.Template{
			OriginWalletID:      a.ID,
			DestinationWalletID: b.ID,
			Amount:              core.Money{Cents: 5000},
			Type:                core.Transfer,
			Name:                "Allowance",
		},
	})
	require.NoError(t, err)

	got, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.True(t, got.EndDate.IsZero())
	assert.Zero(t, got.Template.WalletID)
	assert.Equal(t, a.ID, got.Template.OriginWalletID)
	assert.Equal(t, b.ID, got.Template.DestinationWalletID)
	assert.Nil(t, got.Template.Tags)
}

func TestCreateRule_RejectsInvalid(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.CreateRule(context.Background(), core.RecurrenceRule{
		Frequency: "fortnightly",
		StartDate: core.NewDate(2024, time.January, 1),
		Template:  core.Template{WalletID: 1, Amount: core.Money{Cents: 1}, Type: core.Expense, Name: "x"},
	})
	assert.ErrorIs(t, err, core.ErrInvalidFrequency)
}

func TestGetRule_NotFound(t *testing.T) {
	repo := newTestRepository(t)
	_, err := repo.GetRule(context.Background(), 42)
	assert.ErrorIs(t, err, core.ErrRuleNotFound)
}

func TestInsert_RejectsSecondOccurrenceOnSameDay(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	_, rule := seedRule(t, repo)

	morning := time.Date(2024, time.February, 29, 8, 0, 0, 0, time.UTC)
	first, err := repo.Insert(ctx, rule.NewOccurrence(morning))
	require.NoError(t, err)
	assert.NotZero(t, first.ID)
	assert.True(t, morning.Equal(first.Date))
	require.NotNil(t, first.RecurrenceID)
	assert.Equal(t, rule.ID, *first.RecurrenceID)

	_, err = repo.Insert(ctx, rule.NewOccurrence(morning.Add(10*time.Hour)))
	assert.ErrorIs(t, err, core.ErrDuplicateOccurrence)

	_, err = repo.Insert(ctx, rule.NewOccurrence(morning.AddDate(0, 1, 2)))
	assert.NoError(t, err)
}

func TestInsert_OneTimeTransactionsAreNotDeduplicated(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	wallet, _ := seedRule(t, repo)

	tx := core.Transaction{
		WalletID: wallet.ID,
		Amount:   core.Money{Cents: 300},
		Type:     core.Expense,
		Name:     "Coffee",
		Date:     time.Date(2024, time.May, 1, 9, 0, 0, 0, time.UTC),
	}
	_, err := repo.Insert(ctx, tx)
	require.NoError(t, err)
	_, err = repo.Insert(ctx, tx)
	require.NoError(t, err)
}

func TestFindByRecurrenceAndDateRange_HalfOpen(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	_, rule := seedRule(t, repo)

	day := core.NewDate(2024, time.March, 31)
	_, err := repo.Insert(ctx, rule.NewOccurrence(day.Time))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, rule.NewOccurrence(day.AddDays(1).Time))
	require.NoError(t, err)

	got, err := repo.FindByRecurrenceAndDateRange(ctx, rule.ID, day.Time, day.AddDays(1).Time)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-03-31", got[0].OccurrenceDay().String())

	got, err = repo.FindByRecurrenceAndDateRange(ctx, rule.ID+1, day.Time, day.AddDays(1).Time)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendOccurrences(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	_, rule := seedRule(t, repo)

	var ids []int64
	for i := 0; i < 3; i++ {
		tx, err := repo.Insert(ctx, rule.NewOccurrence(time.Date(2024, time.Month(2+i), 1, 0, 0, 0, 0, time.UTC)))
		require.NoError(t, err)
		ids = append(ids, tx.ID)
	}

	require.NoError(t, repo.AppendOccurrences(ctx, rule.ID, ids[1], ids[0]))
	require.NoError(t, repo.AppendOccurrences(ctx, rule.ID, ids[0], ids[2]))

	got, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], ids[0], ids[2]}, got.GeneratedOccurrences)

	list, err := repo.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, got.GeneratedOccurrences, list[0].GeneratedOccurrences)

	found, err := repo.FindByIDs(ctx, append(got.GeneratedOccurrences, 999))
	require.NoError(t, err)
	assert.Len(t, found, 3)
}

func TestAppendOccurrences_UnknownRule(t *testing.T) {
	repo := newTestRepository(t)
	err := repo.AppendOccurrences(context.Background(), 7, 1)
	assert.ErrorIs(t, err, core.ErrRuleNotFound)
}

func TestAppendOccurrences_ConcurrentAppendsAreNotLost(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	_, rule := seedRule(t, repo)

	const n = 10
	ids := make([]int64, n)
	for i := range ids {
		tx, err := repo.Insert(ctx, rule.NewOccurrence(time.Date(2024, time.January, 1+i, 0, 0, 0, 0, time.UTC)))
		require.NoError(t, err)
		ids[i] = tx.ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.AppendOccurrences(ctx, rule.ID, id))
		}()
	}
	wg.Wait()

	got, err := repo.GetRule(ctx, rule.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, got.GeneratedOccurrences)
}

func TestApplyDelta(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	wallet, _ := seedRule(t, repo)

	require.NoError(t, repo.ApplyDelta(ctx, wallet.ID, core.Money{Cents: -2500}))
	got, err := repo.GetWallet(ctx, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), got.Balance.Cents)

	assert.ErrorIs(t, repo.ApplyDelta(ctx, 404, core.Money{Cents: 1}), core.ErrWalletNotFound)
}

func TestSyncStatus(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	_, rule := seedRule(t, repo)

	a, err := repo.Insert(ctx, rule.NewOccurrence(time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	b, err := repo.Insert(ctx, rule.NewOccurrence(time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	pending, err := repo.PendingSync(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, repo.MarkSynced(ctx, a.ID))
	require.NoError(t, repo.MarkSyncError(ctx, b.ID))

	pending, err = repo.PendingSync(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	assert.ErrorIs(t, repo.MarkSynced(ctx, 999), core.ErrTransactionNotFound)

	_, err = repo.GetTransaction(ctx, 999)
	assert.ErrorIs(t, err, core.ErrTransactionNotFound)
}
