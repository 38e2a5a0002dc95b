package google

import (
	"context"
	"os"
	"strings"
	"testing"

	"ricorrenti/internal/core"
	ports "ricorrenti/internal/sheets"
)

func clearCredentials(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GOOGLE_SERVICE_ACCOUNT_JSON", "GOOGLE_SERVICE_ACCOUNT_FILE", "GOOGLE_APPLICATION_CREDENTIALS"} {
		t.Setenv(k, "")
	}
}

func TestNewFromEnv_MissingSpreadsheetID(t *testing.T) {
	t.Setenv("GOOGLE_SPREADSHEET_ID", "")

	_, err := NewFromEnv(context.Background())
	if err == nil {
		t.Fatal("expected error for missing GOOGLE_SPREADSHEET_ID")
	}
	if err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	clearCredentials(t)

	_, err := New(context.Background(), "test-id", "")
	if err == nil {
		t.Fatal("expected credentials error")
	}
	// Should fail at service creation, not config parsing
	if !strings.Contains(err.Error(), "sheets service") {
		t.Errorf("expected sheets service error, got: %v", err)
	}
}

func TestServiceAccountCredentials(t *testing.T) {
	t.Run("inline json wins", func(t *testing.T) {
		clearCredentials(t)
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/does/not/exist.json")

		got, err := serviceAccountCredentials()
		if err != nil || string(got) != `{"type":"service_account"}` {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("file from application credentials", func(t *testing.T) {
		clearCredentials(t)
		path := t.TempDir() + "/sa.json"
		if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)

		got, err := serviceAccountCredentials()
		if err != nil || string(got) != `{}` {
			t.Fatalf("got %q, %v", got, err)
		}
	})

	t.Run("unreadable file", func(t *testing.T) {
		clearCredentials(t)
		t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "/does/not/exist.json")

		if _, err := serviceAccountCredentials(); err == nil {
			t.Fatal("expected read error")
		}
	})
}

// Test year prefixed name function
func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		baseName string
		year     int
		expected string
	}{
		{"Ricorrenze", 2025, "2025 Ricorrenze"},
		{"", 2023, ""}, // Empty base returns empty
		{"Test Sheet", 2022, "2022 Test Sheet"},
		{"2025 Already Prefixed", 2024, "2025 Already Prefixed"}, // Already has year prefix
	}

	for _, tt := range tests {
		got := yearPrefixedName(tt.baseName, tt.year)
		if got != tt.expected {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q",
				tt.baseName, tt.year, got, tt.expected)
		}
	}
}

func TestClient_NotInitialized(t *testing.T) {
	c := &Client{spreadsheetID: "test", sheetName: "2024 Ricorrenze"} // svc is nil
	ctx := context.Background()

	if _, err := c.AppendRow(ctx, ports.Row{}); err == nil || !strings.Contains(err.Error(), "transaction id") {
		t.Errorf("expected missing transaction id error, got %v", err)
	}
	if _, err := c.AppendRow(ctx, ports.Row{TransactionID: 1, Amount: core.Money{Cents: 1}}); err == nil {
		t.Error("expected error with nil service")
	}
	if _, err := c.ExportedTransactionIDs(ctx); err == nil {
		t.Error("expected error with nil service")
	}
	if err := c.EnsureHeader(ctx); err == nil {
		t.Error("expected error with nil service")
	}
}
