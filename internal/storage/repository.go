package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"ricorrenti/internal/core"
	applog "ricorrenti/internal/log"
)

// timestampLayout is fixed-width so stored timestamps sort lexically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Sync states of a transaction with respect to the spreadsheet export.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// SQLiteRepository is the transaction store, rule store and wallet ledger
// backed by a single SQLite database.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection serializes writers; SQLite allows only one anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	repo := &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     func() time.Time { return time.Now().UTC() },
	}

	return repo, nil
}

func dsn(dbPath string) string {
	return dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateWallet stores a wallet with the given opening balance.
func (r *SQLiteRepository) CreateWallet(ctx context.Context, name string, opening core.Money) (core.Wallet, error) {
	w, err := r.queries.CreateWallet(ctx, CreateWalletParams{
		Name:         name,
		BalanceCents: opening.Cents,
		CreatedAt:    formatTimestamp(r.now()),
	})
	if err != nil {
		return core.Wallet{}, fmt.Errorf("create wallet: %w", err)
	}
	slog.InfoContext(ctx, "Wallet created", applog.FieldComponent, applog.ComponentStorage, "wallet_id", w.ID, "name", w.Name)
	return toCoreWallet(w), nil
}

func (r *SQLiteRepository) GetWallet(ctx context.Context, id int64) (core.Wallet, error) {
	w, err := r.queries.GetWallet(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Wallet{}, fmt.Errorf("wallet %d: %w", id, core.ErrWalletNotFound)
	}
	if err != nil {
		return core.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}
	return toCoreWallet(w), nil
}

func (r *SQLiteRepository) GetWalletByName(ctx context.Context, name string) (core.Wallet, error) {
	w, err := r.queries.GetWalletByName(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Wallet{}, fmt.Errorf("wallet %q: %w", name, core.ErrWalletNotFound)
	}
	if err != nil {
		return core.Wallet{}, fmt.Errorf("get wallet by name: %w", err)
	}
	return toCoreWallet(w), nil
}

// ApplyDelta implements services.WalletLedger
func (r *SQLiteRepository) ApplyDelta(ctx context.Context, walletID int64, delta core.Money) error {
	n, err := r.queries.AddWalletBalance(ctx, delta.Cents, walletID)
	if err != nil {
		return fmt.Errorf("apply wallet delta: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("wallet %d: %w", walletID, core.ErrWalletNotFound)
	}
	return nil
}

// CreateRule validates and stores a new rule.
func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurrenceRule) (core.RecurrenceRule, error) {
	if err := rule.Validate(); err != nil {
		return core.RecurrenceRule{}, err
	}

	t := rule.Template
	tags, items, err := encodeTemplateLists(t.Tags, t.LineItems)
	if err != nil {
		return core.RecurrenceRule{}, err
	}

	var endDate sql.NullString
	if !rule.EndDate.IsZero() {
		endDate = sql.NullString{String: rule.EndDate.String(), Valid: true}
	}

	row, err := r.queries.CreateRecurrenceRule(ctx, CreateRecurrenceRuleParams{
		Frequency:           string(rule.Frequency),
		StartDate:           rule.StartDate.String(),
		EndDate:             endDate,
		Type:                string(t.Type),
		WalletID:            nullID(t.WalletID),
		OriginWalletID:      nullID(t.OriginWalletID),
		DestinationWalletID: nullID(t.DestinationWalletID),
		AmountCents:         t.Amount.Cents,
		Category:            t.Category,
		Name:                t.Name,
		Notes:               t.Notes,
		Tags:                tags,
		LineItems:           items,
		CreatedAt:           formatTimestamp(r.now()),
	})
	if err != nil {
		return core.RecurrenceRule{}, fmt.Errorf("create recurrence rule: %w", err)
	}

	created, err := toCoreRule(row)
	if err != nil {
		return core.RecurrenceRule{}, err
	}

	slog.InfoContext(ctx, "Recurrence rule created", applog.FieldComponent, applog.ComponentStorage,
		applog.FieldRuleID, created.ID,
		"frequency", created.Frequency,
		"start_date", created.StartDate.String(),
		"name", created.Template.Name)

	return created, nil
}

// ListRules implements services.RuleStore
func (r *SQLiteRepository) ListRules(ctx context.Context) ([]core.RecurrenceRule, error) {
	rows, err := r.queries.ListRecurrenceRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list recurrence rules: %w", err)
	}
	links, err := r.queries.ListOccurrenceLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list occurrence links: %w", err)
	}

	byRule := make(map[int64][]int64)
	for _, l := range links {
		byRule[l.RuleID] = append(byRule[l.RuleID], l.TransactionID)
	}

	rules := make([]core.RecurrenceRule, 0, len(rows))
	for _, row := range rows {
		rule, err := toCoreRule(row)
		if err != nil {
			return nil, err
		}
		rule.GeneratedOccurrences = byRule[rule.ID]
		rules = append(rules, rule)
	}
	return rules, nil
}

// GetRule implements services.RuleStore
func (r *SQLiteRepository) GetRule(ctx context.Context, id int64) (core.RecurrenceRule, error) {
	row, err := r.queries.GetRecurrenceRule(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurrenceRule{}, fmt.Errorf("rule %d: %w", id, core.ErrRuleNotFound)
	}
	if err != nil {
		return core.RecurrenceRule{}, fmt.Errorf("get recurrence rule: %w", err)
	}

	rule, err := toCoreRule(row)
	if err != nil {
		return core.RecurrenceRule{}, err
	}

	links, err := r.queries.ListOccurrenceLinksByRule(ctx, id)
	if err != nil {
		return core.RecurrenceRule{}, fmt.Errorf("list occurrence links: %w", err)
	}
	for _, l := range links {
		rule.GeneratedOccurrences = append(rule.GeneratedOccurrences, l.TransactionID)
	}
	return rule, nil
}

// AppendOccurrences implements services.RuleStore. All IDs are linked in one
// transaction; IDs already linked are ignored.
func (r *SQLiteRepository) AppendOccurrences(ctx context.Context, ruleID int64, txIDs ...int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := r.queries.WithTx(tx)
	n, err := q.TouchRecurrenceRule(ctx, formatTimestamp(r.now()), ruleID)
	if err != nil {
		return fmt.Errorf("touch recurrence rule: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("rule %d: %w", ruleID, core.ErrRuleNotFound)
	}

	for _, id := range txIDs {
		if err := q.LinkOccurrence(ctx, ruleID, id); err != nil {
			return fmt.Errorf("link occurrence %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit occurrence links: %w", err)
	}
	return nil
}

// Insert implements services.TransactionStore
func (r *SQLiteRepository) Insert(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}

	tags, items, err := encodeTemplateLists(t.Tags, t.LineItems)
	if err != nil {
		return core.Transaction{}, err
	}

	var recurrenceID sql.NullInt64
	if t.RecurrenceID != nil {
		recurrenceID = sql.NullInt64{Int64: *t.RecurrenceID, Valid: true}
	}

	row, err := r.queries.CreateTransaction(ctx, CreateTransactionParams{
		Type:                string(t.Type),
		WalletID:            nullID(t.WalletID),
		OriginWalletID:      nullID(t.OriginWalletID),
		DestinationWalletID: nullID(t.DestinationWalletID),
		AmountCents:         t.Amount.Cents,
		Category:            t.Category,
		Name:                t.Name,
		Notes:               t.Notes,
		Tags:                tags,
		LineItems:           items,
		Date:                formatTimestamp(t.Date),
		OccurrenceDay:       t.OccurrenceDay().String(),
		RecurrenceID:        recurrenceID,
		CreatedAt:           formatTimestamp(r.now()),
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.Transaction{}, fmt.Errorf("rule %d day %s: %w",
				recurrenceID.Int64, t.OccurrenceDay(), core.ErrDuplicateOccurrence)
		}
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	return toCoreTransaction(row)
}

// GetTransaction returns a single transaction by ID.
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	row, err := r.queries.GetTransaction(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", id, core.ErrTransactionNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return toCoreTransaction(row)
}

// FindByIDs implements services.TransactionStore. Unknown IDs are skipped.
func (r *SQLiteRepository) FindByIDs(ctx context.Context, ids []int64) ([]core.Transaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.queries.GetTransactionsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get transactions by ids: %w", err)
	}
	return toCoreTransactions(rows)
}

// FindByRecurrenceAndDateRange implements services.TransactionStore
func (r *SQLiteRepository) FindByRecurrenceAndDateRange(ctx context.Context, ruleID int64, from, to time.Time) ([]core.Transaction, error) {
	rows, err := r.queries.GetTransactionsByRecurrenceAndDateRange(ctx, GetTransactionsByRecurrenceAndDateRangeParams{
		RecurrenceID: ruleID,
		FromDate:     formatTimestamp(from),
		ToDate:       formatTimestamp(to),
	})
	if err != nil {
		return nil, fmt.Errorf("get transactions by recurrence and date range: %w", err)
	}
	return toCoreTransactions(rows)
}

// PendingSync returns up to limit transactions not yet exported, oldest first.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]core.Transaction, error) {
	rows, err := r.queries.GetPendingSyncTransactions(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	return toCoreTransactions(rows)
}

// MarkSynced marks a transaction as exported.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id int64) error {
	if err := r.setSyncStatus(ctx, id, SyncSynced); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction marked as synced", applog.FieldComponent, applog.ComponentStorage, applog.FieldTxID, id)
	return nil
}

// MarkSyncError marks a transaction whose export failed.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id int64) error {
	if err := r.setSyncStatus(ctx, id, SyncError); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", applog.FieldComponent, applog.ComponentStorage, applog.FieldTxID, id)
	return nil
}

func (r *SQLiteRepository) setSyncStatus(ctx context.Context, id int64, status string) error {
	n, err := r.queries.SetTransactionSyncStatus(ctx, status, id)
	if err != nil {
		return fmt.Errorf("set sync status %s: %w", status, err)
	}
	if n == 0 {
		return fmt.Errorf("transaction %d: %w", id, core.ErrTransactionNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
