package storage

import (
	"context"
	"database/sql"
	"strings"
)

const transactionColumns = `id, type, wallet_id, origin_wallet_id, destination_wallet_id, amount_cents,
       category, name, notes, tags, line_items, date, occurrence_day, recurrence_id, sync_status, created_at`

const ruleColumns = `id, frequency, start_date, end_date, type, wallet_id, origin_wallet_id,
       destination_wallet_id, amount_cents, category, name, notes, tags, line_items, created_at, updated_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (Transaction, error) {
	var i Transaction
	err := row.Scan(
		&i.ID,
		&i.Type,
		&i.WalletID,
		&i.OriginWalletID,
		&i.DestinationWalletID,
		&i.AmountCents,
		&i.Category,
		&i.Name,
		&i.Notes,
		&i.Tags,
		&i.LineItems,
		&i.Date,
		&i.OccurrenceDay,
		&i.RecurrenceID,
		&i.SyncStatus,
		&i.CreatedAt,
	)
	return i, err
}

func scanRule(row scanner) (RecurrenceRule, error) {
	var i RecurrenceRule
	err := row.Scan(
		&i.ID,
		&i.Frequency,
		&i.StartDate,
		&i.EndDate,
		&i.Type,
		&i.WalletID,
		&i.OriginWalletID,
		&i.DestinationWalletID,
		&i.AmountCents,
		&i.Category,
		&i.Name,
		&i.Notes,
		&i.Tags,
		&i.LineItems,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

// placeholders expands a slice argument into "?, ?, ..." the way sqlc does for
// sqlc.slice parameters.
func placeholders(n int) string {
	if n == 0 {
		return "NULL"
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

const createWallet = `-- name: CreateWallet :one
INSERT INTO wallets (name, balance_cents, created_at)
VALUES (?, ?, ?)
RETURNING id, name, balance_cents, created_at
`

type CreateWalletParams struct {
	Name         string
	BalanceCents int64
	CreatedAt    string
}

func (q *Queries) CreateWallet(ctx context.Context, arg CreateWalletParams) (Wallet, error) {
	row := q.db.QueryRowContext(ctx, createWallet, arg.Name, arg.BalanceCents, arg.CreatedAt)
	var i Wallet
	err := row.Scan(&i.ID, &i.Name, &i.BalanceCents, &i.CreatedAt)
	return i, err
}

const getWallet = `-- name: GetWallet :one
SELECT id, name, balance_cents, created_at FROM wallets WHERE id = ?
`

func (q *Queries) GetWallet(ctx context.Context, id int64) (Wallet, error) {
	row := q.db.QueryRowContext(ctx, getWallet, id)
	var i Wallet
	err := row.Scan(&i.ID, &i.Name, &i.BalanceCents, &i.CreatedAt)
	return i, err
}

const getWalletByName = `-- name: GetWalletByName :one
SELECT id, name, balance_cents, created_at FROM wallets WHERE name = ?
`

func (q *Queries) GetWalletByName(ctx context.Context, name string) (Wallet, error) {
	row := q.db.QueryRowContext(ctx, getWalletByName, name)
	var i Wallet
	err := row.Scan(&i.ID, &i.Name, &i.BalanceCents, &i.CreatedAt)
	return i, err
}

const addWalletBalance = `-- name: AddWalletBalance :execrows
UPDATE wallets SET balance_cents = balance_cents + ? WHERE id = ?
`

func (q *Queries) AddWalletBalance(ctx context.Context, deltaCents int64, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, addWalletBalance, deltaCents, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createRecurrenceRule = `-- name: CreateRecurrenceRule :one
INSERT INTO recurrence_rules (
    frequency, start_date, end_date, type, wallet_id, origin_wallet_id, destination_wallet_id,
    amount_cents, category, name, notes, tags, line_items, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + ruleColumns + `
`

type CreateRecurrenceRuleParams struct {
	Frequency           string
	StartDate           string
	EndDate             sql.NullString
	Type                string
	WalletID            sql.NullInt64
	OriginWalletID      sql.NullInt64
	DestinationWalletID sql.NullInt64
	AmountCents         int64
	Category            string
	Name                string
	Notes               string
	Tags                string
	LineItems           string
	CreatedAt           string
}

func (q *Queries) CreateRecurrenceRule(ctx context.Context, arg CreateRecurrenceRuleParams) (RecurrenceRule, error) {
	row := q.db.QueryRowContext(ctx, createRecurrenceRule,
		arg.Frequency,
		arg.StartDate,
		arg.EndDate,
		arg.Type,
		arg.WalletID,
		arg.OriginWalletID,
		arg.DestinationWalletID,
		arg.AmountCents,
		arg.Category,
		arg.Name,
		arg.Notes,
		arg.Tags,
		arg.LineItems,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return scanRule(row)
}

const getRecurrenceRule = `-- name: GetRecurrenceRule :one
SELECT ` + ruleColumns + ` FROM recurrence_rules WHERE id = ?
`

func (q *Queries) GetRecurrenceRule(ctx context.Context, id int64) (RecurrenceRule, error) {
	return scanRule(q.db.QueryRowContext(ctx, getRecurrenceRule, id))
}

const listRecurrenceRules = `-- name: ListRecurrenceRules :many
SELECT ` + ruleColumns + ` FROM recurrence_rules ORDER BY id
`

func (q *Queries) ListRecurrenceRules(ctx context.Context) ([]RecurrenceRule, error) {
	rows, err := q.db.QueryContext(ctx, listRecurrenceRules)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecurrenceRule
	for rows.Next() {
		i, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const touchRecurrenceRule = `-- name: TouchRecurrenceRule :execrows
UPDATE recurrence_rules SET updated_at = ? WHERE id = ?
`

func (q *Queries) TouchRecurrenceRule(ctx context.Context, updatedAt string, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, touchRecurrenceRule, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const linkOccurrence = `-- name: LinkOccurrence :exec
INSERT OR IGNORE INTO recurrence_occurrences (rule_id, transaction_id) VALUES (?, ?)
`

func (q *Queries) LinkOccurrence(ctx context.Context, ruleID int64, transactionID int64) error {
	_, err := q.db.ExecContext(ctx, linkOccurrence, ruleID, transactionID)
	return err
}

const listOccurrenceLinks = `-- name: ListOccurrenceLinks :many
SELECT rule_id, transaction_id FROM recurrence_occurrences ORDER BY rule_id, id
`

func (q *Queries) ListOccurrenceLinks(ctx context.Context) ([]RecurrenceOccurrence, error) {
	return q.queryLinks(ctx, listOccurrenceLinks)
}

const listOccurrenceLinksByRule = `-- name: ListOccurrenceLinksByRule :many
SELECT rule_id, transaction_id FROM recurrence_occurrences WHERE rule_id = ? ORDER BY id
`

func (q *Queries) ListOccurrenceLinksByRule(ctx context.Context, ruleID int64) ([]RecurrenceOccurrence, error) {
	return q.queryLinks(ctx, listOccurrenceLinksByRule, ruleID)
}

func (q *Queries) queryLinks(ctx context.Context, query string, args ...interface{}) ([]RecurrenceOccurrence, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecurrenceOccurrence
	for rows.Next() {
		var i RecurrenceOccurrence
		if err := rows.Scan(&i.RuleID, &i.TransactionID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createTransaction = `-- name: CreateTransaction :one
INSERT INTO transactions (
    type, wallet_id, origin_wallet_id, destination_wallet_id, amount_cents, category, name,
    notes, tags, line_items, date, occurrence_day, recurrence_id, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + transactionColumns + `
`

type CreateTransactionParams struct {
	Type                string
	WalletID            sql.NullInt64
	OriginWalletID      sql.NullInt64
	DestinationWalletID sql.NullInt64
	AmountCents         int64
	Category            string
	Name                string
	Notes               string
	Tags                string
	LineItems           string
	Date                string
	OccurrenceDay       string
	RecurrenceID        sql.NullInt64
	CreatedAt           string
}

func (q *Queries) CreateTransaction(ctx context.Context, arg CreateTransactionParams) (Transaction, error) {
	row := q.db.QueryRowContext(ctx, createTransaction,
		arg.Type,
		arg.WalletID,
		arg.OriginWalletID,
		arg.DestinationWalletID,
		arg.AmountCents,
		arg.Category,
		arg.Name,
		arg.Notes,
		arg.Tags,
		arg.LineItems,
		arg.Date,
		arg.OccurrenceDay,
		arg.RecurrenceID,
		arg.CreatedAt,
	)
	return scanTransaction(row)
}

const getTransaction = `-- name: GetTransaction :one
SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?
`

func (q *Queries) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(q.db.QueryRowContext(ctx, getTransaction, id))
}

const getTransactionsByIDs = `-- name: GetTransactionsByIDs :many
SELECT ` + transactionColumns + ` FROM transactions WHERE id IN (/*SLICE:ids*/?) ORDER BY id
`

func (q *Queries) GetTransactionsByIDs(ctx context.Context, ids []int64) ([]Transaction, error) {
	query := strings.Replace(getTransactionsByIDs, "/*SLICE:ids*/?", placeholders(len(ids)), 1)
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return q.queryTransactions(ctx, query, args...)
}

const getTransactionsByRecurrenceAndDateRange = `-- name: GetTransactionsByRecurrenceAndDateRange :many
SELECT ` + transactionColumns + ` FROM transactions
WHERE recurrence_id = ? AND date >= ? AND date < ?
ORDER BY date
`

type GetTransactionsByRecurrenceAndDateRangeParams struct {
	RecurrenceID int64
	FromDate     string
	ToDate       string
}

func (q *Queries) GetTransactionsByRecurrenceAndDateRange(ctx context.Context, arg GetTransactionsByRecurrenceAndDateRangeParams) ([]Transaction, error) {
	return q.queryTransactions(ctx, getTransactionsByRecurrenceAndDateRange, arg.RecurrenceID, arg.FromDate, arg.ToDate)
}

const getPendingSyncTransactions = `-- name: GetPendingSyncTransactions :many
SELECT ` + transactionColumns + ` FROM transactions
WHERE sync_status = 'pending'
ORDER BY created_at
LIMIT ?
`

func (q *Queries) GetPendingSyncTransactions(ctx context.Context, limit int64) ([]Transaction, error) {
	return q.queryTransactions(ctx, getPendingSyncTransactions, limit)
}

func (q *Queries) queryTransactions(ctx context.Context, query string, args ...interface{}) ([]Transaction, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Transaction
	for rows.Next() {
		i, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const setTransactionSyncStatus = `-- name: SetTransactionSyncStatus :execrows
UPDATE transactions SET sync_status = ? WHERE id = ?
`

func (q *Queries) SetTransactionSyncStatus(ctx context.Context, status string, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, setTransactionSyncStatus, status, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
