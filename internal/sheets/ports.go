package sheets

import (
	"context"
	"strconv"

	"ricorrenti/internal/core"
)

// Row is one exported occurrence as it appears in the spreadsheet.
type Row struct {
	Date          string
	Name          string
	Amount        core.Money // signed: expenses negative
	Type          core.TransactionType
	Category      string
	Wallet        string
	RuleID        int64
	TransactionID int64
}

// Header is the column layout of the occurrences sheet.
var Header = []string{"Date", "Name", "Amount", "Type", "Category", "Wallet", "Rule", "Transaction"}

// RowFromTransaction builds the sheet row for tx. wallet is the display name
// of the wallet it affects (the origin for transfers).
func RowFromTransaction(tx core.Transaction, wallet string) Row {
	row := Row{
		Date:          tx.OccurrenceDay().String(),
		Name:          tx.Name,
		Amount:        tx.Amount.Signed(tx.Type),
		Type:          tx.Type,
		Category:      tx.Category,
		Wallet:        wallet,
		TransactionID: tx.ID,
	}
	if tx.RecurrenceID != nil {
		row.RuleID = *tx.RecurrenceID
	}
	return row
}

// Values renders the row in Header order.
func (r Row) Values() []any {
	return []any{
		r.Date,
		r.Name,
		r.Amount.Decimal().StringFixed(2),
		string(r.Type),
		r.Category,
		r.Wallet,
		strconv.FormatInt(r.RuleID, 10),
		strconv.FormatInt(r.TransactionID, 10),
	}
}

// Ports for outbound adapters.
type (
	// OccurrenceWriter appends exported occurrences to a sheet.
	OccurrenceWriter interface {
		AppendRow(ctx context.Context, row Row) (rowRef string, err error)
	}

	// ExportedLister reports which transactions a sheet already contains, so
	// redelivered messages do not produce duplicate rows.
	ExportedLister interface {
		ExportedTransactionIDs(ctx context.Context) (map[int64]struct{}, error)
	}

	Exporter interface {
		OccurrenceWriter
		ExportedLister
	}
)
