// Package memory is an in-process implementation of the transaction store,
// rule store and wallet ledger. It enforces the same one-occurrence-per-day
// constraint as the SQLite schema and is used by tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ricorrenti/internal/core"
)

type occurrenceKey struct {
	ruleID int64
	day    string
}

type Store struct {
	mu           sync.Mutex
	now          func() time.Time
	nextTxID     int64
	nextRuleID   int64
	nextWalletID int64
	transactions map[int64]core.Transaction
	occurrences  map[occurrenceKey]int64
	rules        map[int64]core.RecurrenceRule
	wallets      map[int64]core.Wallet
}

func New() *Store {
	return &Store{
		now:          func() time.Time { return time.Now().UTC() },
		transactions: make(map[int64]core.Transaction),
		occurrences:  make(map[occurrenceKey]int64),
		rules:        make(map[int64]core.RecurrenceRule),
		wallets:      make(map[int64]core.Wallet),
	}
}

// SetNow overrides the clock used for CreatedAt timestamps.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// CreateWallet stores a wallet with the given opening balance.
func (s *Store) CreateWallet(_ context.Context, name string, opening core.Money) (core.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextWalletID++
	w := core.Wallet{ID: s.nextWalletID, Name: name, Balance: opening}
	s.wallets[w.ID] = w
	return w, nil
}

func (s *Store) GetWallet(_ context.Context, id int64) (core.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return core.Wallet{}, fmt.Errorf("wallet %d: %w", id, core.ErrWalletNotFound)
	}
	return w, nil
}

// GetWalletByName looks a wallet up by its unique name.
func (s *Store) GetWalletByName(_ context.Context, name string) (core.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wallets {
		if w.Name == name {
			return w, nil
		}
	}
	return core.Wallet{}, fmt.Errorf("wallet %q: %w", name, core.ErrWalletNotFound)
}

// ApplyDelta implements services.WalletLedger
func (s *Store) ApplyDelta(_ context.Context, walletID int64, delta core.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet %d: %w", walletID, core.ErrWalletNotFound)
	}
	w.Balance.Cents += delta.Cents
	s.wallets[walletID] = w
	return nil
}

// CreateRule stores a new rule and returns it with its ID.
func (s *Store) CreateRule(_ context.Context, rule core.RecurrenceRule) (core.RecurrenceRule, error) {
	if err := rule.Validate(); err != nil {
		return core.RecurrenceRule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRuleID++
	rule.ID = s.nextRuleID
	rule.CreatedAt = s.now()
	rule.UpdatedAt = rule.CreatedAt
	rule.GeneratedOccurrences = append([]int64(nil), rule.GeneratedOccurrences...)
	s.rules[rule.ID] = rule
	return rule, nil
}

// ListRules implements services.RuleStore
func (s *Store) ListRules(_ context.Context) ([]core.RecurrenceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.RecurrenceRule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, copyRule(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetRule implements services.RuleStore
func (s *Store) GetRule(_ context.Context, id int64) (core.RecurrenceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return core.RecurrenceRule{}, fmt.Errorf("rule %d: %w", id, core.ErrRuleNotFound)
	}
	return copyRule(r), nil
}

// AppendOccurrences implements services.RuleStore. IDs already linked are
// ignored.
func (s *Store) AppendOccurrences(_ context.Context, ruleID int64, txIDs ...int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return fmt.Errorf("rule %d: %w", ruleID, core.ErrRuleNotFound)
	}
	for _, id := range txIDs {
		if !r.HasOccurrence(id) {
			r.GeneratedOccurrences = append(r.GeneratedOccurrences, id)
		}
	}
	r.UpdatedAt = s.now()
	s.rules[ruleID] = r
	return nil
}

// Insert implements services.TransactionStore
func (s *Store) Insert(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var key occurrenceKey
	if tx.RecurrenceID != nil {
		key = occurrenceKey{ruleID: *tx.RecurrenceID, day: tx.OccurrenceDay().String()}
		if existing, ok := s.occurrences[key]; ok {
			return core.Transaction{}, fmt.Errorf("rule %d day %s (transaction %d): %w",
				key.ruleID, key.day, existing, core.ErrDuplicateOccurrence)
		}
	}

	s.nextTxID++
	tx.ID = s.nextTxID
	tx.CreatedAt = s.now()
	if tx.RecurrenceID != nil {
		id := *tx.RecurrenceID
		tx.RecurrenceID = &id
		s.occurrences[key] = tx.ID
	}
	s.transactions[tx.ID] = tx
	return tx, nil
}

// FindByIDs implements services.TransactionStore. Unknown IDs are skipped.
func (s *Store) FindByIDs(_ context.Context, ids []int64) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(ids))
	for _, id := range ids {
		if tx, ok := s.transactions[id]; ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

// FindByRecurrenceAndDateRange implements services.TransactionStore
func (s *Store) FindByRecurrenceAndDateRange(_ context.Context, ruleID int64, from, to time.Time) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, tx := range s.transactions {
		if tx.RecurrenceID == nil || *tx.RecurrenceID != ruleID {
			continue
		}
		if tx.Date.Before(from) || !tx.Date.Before(to) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Transactions returns every stored transaction ordered by ID.
func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func copyRule(r core.RecurrenceRule) core.RecurrenceRule {
	r.GeneratedOccurrences = append([]int64(nil), r.GeneratedOccurrences...)
	return r
}
