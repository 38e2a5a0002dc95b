package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ricorrenti/internal/core"
	"ricorrenti/internal/storage/memory"
)

var errStoreDown = errors.New("store unavailable")

// at returns an instant on the given day, mid-morning UTC.
func at(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 9, 30, 0, 0, time.UTC)
}

type fixture struct {
	ctx    context.Context
	store  *memory.Store
	txs    *countingTxStore
	rules  *flakyRuleStore
	ledger *flakyLedger
	svc    *OccurrenceService
	wallet core.Wallet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	var mu sync.Mutex
	tick := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetNow(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick = tick.Add(time.Second)
		return tick
	})

	wallet, err := store.CreateWallet(ctx, "checking", core.Money{Cents: 100000})
	require.NoError(t, err)

	f := &fixture{
		ctx:    ctx,
		store:  store,
		txs:    &countingTxStore{Store: store, failFor: map[int64]error{}},
		rules:  &flakyRuleStore{Store: store},
		ledger: &flakyLedger{Store: store},
		wallet: wallet,
	}
	f.svc = NewOccurrenceService(f.txs, f.rules, f.ledger, nil)
	return f
}

func (f *fixture) rule(t *testing.T, freq core.Frequency, start, end core.Date) core.RecurrenceRule {
	t.Helper()
	r, err := f.store.CreateRule(f.ctx, core.RecurrenceRule{
		Frequency: freq,
		StartDate: start,
		EndDate:   end,
		Template: core.Template{
			WalletID: f.wallet.ID,
			Amount:   core.Money{Cents: 5000},
			Type:     core.Expense,
			Category: "housing",
			Name:     "Rent",
			Notes:    "standing order",
			Tags:     []string{"fixed"},
		},
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) reload(t *testing.T, r core.RecurrenceRule) core.RecurrenceRule {
	t.Helper()
	got, err := f.store.GetRule(f.ctx, r.ID)
	require.NoError(t, err)
	return got
}

func (f *fixture) balance(t *testing.T, walletID int64) int64 {
	t.Helper()
	w, err := f.store.GetWallet(f.ctx, walletID)
	require.NoError(t, err)
	return w.Balance.Cents
}

// countingTxStore counts inserts and can fail them per rule.
type countingTxStore struct {
	*memory.Store
	mu      sync.Mutex
	inserts []core.Transaction
	failFor map[int64]error
	findErr error
}

func (c *countingTxStore) Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	c.mu.Lock()
	c.inserts = append(c.inserts, tx)
	err := c.failFor[*tx.RecurrenceID]
	c.mu.Unlock()
	if err != nil {
		return core.Transaction{}, err
	}
	return c.Store.Insert(ctx, tx)
}

func (c *countingTxStore) FindByRecurrenceAndDateRange(ctx context.Context, ruleID int64, from, to time.Time) ([]core.Transaction, error) {
	if c.findErr != nil {
		return nil, c.findErr
	}
	return c.Store.FindByRecurrenceAndDateRange(ctx, ruleID, from, to)
}

func (c *countingTxStore) insertCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inserts)
}

type flakyRuleStore struct {
	*memory.Store
	listErr   error
	appendErr error
	appends   atomic.Int64
}

func (f *flakyRuleStore) ListRules(ctx context.Context) ([]core.RecurrenceRule, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.Store.ListRules(ctx)
}

func (f *flakyRuleStore) AppendOccurrences(ctx context.Context, ruleID int64, txIDs ...int64) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appends.Add(1)
	return f.Store.AppendOccurrences(ctx, ruleID, txIDs...)
}

type flakyLedger struct {
	*memory.Store
	err error
}

func (f *flakyLedger) ApplyDelta(ctx context.Context, walletID int64, delta core.Money) error {
	if f.err != nil {
		return f.err
	}
	return f.Store.ApplyDelta(ctx, walletID, delta)
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (p *recordingPublisher) PublishOccurrenceCreated(_ context.Context, tx core.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, tx.ID)
	return p.err
}

// insertHook runs hook before each insert and fails the insert when it
// returns an error.
type insertHook struct {
	*countingTxStore
	hook func() error
}

func (h *insertHook) Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := h.hook(); err != nil {
		return core.Transaction{}, err
	}
	return h.countingTxStore.Insert(ctx, tx)
}
