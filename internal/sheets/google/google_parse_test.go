package google

import (
	"strings"
	"testing"

	"ricorrenti/internal/core"
)

func TestParseRows(t *testing.T) {
	values := [][]interface{}{
		{"Date", "Name", "Amount", "Type", "Category", "Wallet", "Rule", "Transaction"},
		{"2024-01-31", "Rent", "-850.00", "expense", "housing", "checking", "3", "41"},
		{"2024-02-01", "Salary", "2400,50", "income", "work", "checking", "4", "42"},
		{"# manual note"},
		{"2024-02-02", "Broken", "n/a", "expense", "", "", "", "43"},
		{},
	}

	rows, err := parseRows(values)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2: %+v", len(rows), rows)
	}
	if rows[0].Amount.Cents != -85000 || rows[0].Type != core.Expense || rows[0].RuleID != 3 {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Amount.Cents != 240050 || rows[1].TransactionID != 42 {
		t.Errorf("unexpected second row: %+v", rows[1])
	}
}

func TestParseRows_ReorderedColumns(t *testing.T) {
	values := [][]interface{}{
		{"transaction", "rule", "wallet", "category", "type", "amount", "name", "date"},
		{7, 1, "cash", "food", "expense", "-12.5", "Lunch", "2024-03-01"},
	}

	rows, err := parseRows(values)
	if err != nil {
		t.Fatalf("parse err: %v", err)
	}
	if len(rows) != 1 || rows[0].TransactionID != 7 || rows[0].Amount.Cents != -1250 || rows[0].Name != "Lunch" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestParseRows_MissingHeader(t *testing.T) {
	_, err := parseRows([][]interface{}{{"Date", "Name"}})
	if err == nil || !strings.Contains(err.Error(), "unexpected sheet header") {
		t.Fatalf("expected header error, got %v", err)
	}
}

func TestParseRows_Empty(t *testing.T) {
	rows, err := parseRows(nil)
	if err != nil || rows != nil {
		t.Fatalf("expected no rows, got %v, %v", rows, err)
	}
}
