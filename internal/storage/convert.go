package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ricorrenti/internal/core"
)

type lineItemJSON struct {
	Name        string `json:"name"`
	AmountCents int64  `json:"amount_cents"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func encodeTemplateLists(tags []string, items []core.LineItem) (string, string, error) {
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("encode tags: %w", err)
	}

	rows := make([]lineItemJSON, len(items))
	for i, item := range items {
		rows[i] = lineItemJSON{Name: item.Name, AmountCents: item.Amount.Cents}
	}
	itemsJSON, err := json.Marshal(rows)
	if err != nil {
		return "", "", fmt.Errorf("encode line items: %w", err)
	}
	return string(tagsJSON), string(itemsJSON), nil
}

func decodeTemplateLists(tagsJSON, itemsJSON string) ([]string, []core.LineItem, error) {
	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return nil, nil, fmt.Errorf("decode tags: %w", err)
	}
	var rows []lineItemJSON
	if err := json.Unmarshal([]byte(itemsJSON), &rows); err != nil {
		return nil, nil, fmt.Errorf("decode line items: %w", err)
	}
	if len(tags) == 0 {
		tags = nil
	}
	var items []core.LineItem
	for _, row := range rows {
		items = append(items, core.LineItem{Name: row.Name, Amount: core.Money{Cents: row.AmountCents}})
	}
	return tags, items, nil
}

func toCoreWallet(w Wallet) core.Wallet {
	return core.Wallet{ID: w.ID, Name: w.Name, Balance: core.Money{Cents: w.BalanceCents}}
}

func toCoreRule(row RecurrenceRule) (core.RecurrenceRule, error) {
	start, err := core.ParseDate(row.StartDate)
	if err != nil {
		return core.RecurrenceRule{}, fmt.Errorf("rule %d start date: %w", row.ID, err)
	}
	var end core.Date
	if row.EndDate.Valid {
		if end, err = core.ParseDate(row.EndDate.String); err != nil {
			return core.RecurrenceRule{}, fmt.Errorf("rule %d end date: %w", row.ID, err)
		}
	}
	tags, items, err := decodeTemplateLists(row.Tags, row.LineItems)
	if err != nil {
		return core.RecurrenceRule{}, fmt.Errorf("rule %d: %w", row.ID, err)
	}
	createdAt, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return core.RecurrenceRule{}, err
	}
	updatedAt, err := parseTimestamp(row.UpdatedAt)
	if err != nil {
		return core.RecurrenceRule{}, err
	}

	return core.RecurrenceRule{
		ID:        row.ID,
		Frequency: core.Frequency(row.Frequency),
		StartDate: start,
		EndDate:   end,
		Template: core.Template{
			WalletID:            row.WalletID.Int64,
			OriginWalletID:      row.OriginWalletID.Int64,
			DestinationWalletID: row.DestinationWalletID.Int64,
			Amount:              core.Money{Cents: row.AmountCents},
			Type:                core.TransactionType(row.Type),
			Category:            row.Category,
			Name:                row.Name,
			Notes:               row.Notes,
			Tags:                tags,
			LineItems:           items,
		},
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}

func toCoreTransaction(row Transaction) (core.Transaction, error) {
	date, err := parseTimestamp(row.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	createdAt, err := parseTimestamp(row.CreatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	tags, items, err := decodeTemplateLists(row.Tags, row.LineItems)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", row.ID, err)
	}

	tx := core.Transaction{
		ID:                  row.ID,
		WalletID:            row.WalletID.Int64,
		OriginWalletID:      row.OriginWalletID.Int64,
		DestinationWalletID: row.DestinationWalletID.Int64,
		Amount:              core.Money{Cents: row.AmountCents},
		Type:                core.TransactionType(row.Type),
		Category:            row.Category,
		Name:                row.Name,
		Notes:               row.Notes,
		Tags:                tags,
		LineItems:           items,
		Date:                date,
		CreatedAt:           createdAt,
	}
	if row.RecurrenceID.Valid {
		id := row.RecurrenceID.Int64
		tx.RecurrenceID = &id
	}
	return tx, nil
}

func toCoreTransactions(rows []Transaction) ([]core.Transaction, error) {
	out := make([]core.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := toCoreTransaction(row)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}
