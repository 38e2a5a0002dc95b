package storage

import "database/sql"

type Wallet struct {
	ID           int64
	Name         string
	BalanceCents int64
	CreatedAt    string
}

type RecurrenceRule struct {
	ID                  int64
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
	UpdatedAt           string
}

type Transaction struct {
	ID                  int64
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
	SyncStatus          string
	CreatedAt           string
}

type RecurrenceOccurrence struct {
	RuleID        int64
	TransactionID int64
}
