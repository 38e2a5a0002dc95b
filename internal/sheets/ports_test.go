package sheets

import (
	"testing"
	"time"

	"ricorrenti/internal/core"
)

func TestRowFromTransaction(t *testing.T) {
	ruleID := int64(3)
	tx := core.Transaction{
		ID:           41,
		Amount:       core.Money{Cents: 85000},
		Type:         core.Expense,
		Category:     "housing",
		Name:         "Rent",
		Date:         time.Date(2024, 1, 31, 22, 15, 0, 0, time.UTC),
		RecurrenceID: &ruleID,
	}

	row := RowFromTransaction(tx, "checking")
	want := []any{"2024-01-31", "Rent", "-850.00", "expense", "housing", "checking", "3", "41"}
	got := row.Values()

	if len(got) != len(Header) {
		t.Fatalf("got %d values, header has %d", len(got), len(Header))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("column %s = %v, want %v", Header[i], got[i], want[i])
		}
	}
}

func TestRowFromTransaction_IncomeIsPositive(t *testing.T) {
	tx := core.Transaction{ID: 1, Amount: core.Money{Cents: 5}, Type: core.Income, Date: time.Now()}
	if got := RowFromTransaction(tx, "").Values()[2]; got != "0.05" {
		t.Errorf("amount = %v, want 0.05", got)
	}
}
