// Package seed loads wallets and recurrence rules from a YAML file.
//
// Example:
//
//	wallets:
//	  - name: checking
//	    opening_balance: "1500.00"
//	  - name: savings
//	rules:
//	  - name: Rent
//	    frequency: monthly
//	    start_date: 2024-01-31
//	    type: expense
//	    amount: "1200.00"
//	    wallet: checking
//	    category: housing
//	  - name: Savings plan
//	    frequency: monthly
//	    start_date: 2024-02-01
//	    type: transfer
//	    amount: "200"
//	    from: checking
//	    to: savings
//
// Seeding is repeatable: wallets are matched by name and a rule is skipped
// when one with the same name, frequency and start date exists.
package seed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"ricorrenti/internal/core"
	applog "ricorrenti/internal/log"
)

// File is the YAML document layout.
type File struct {
	Wallets []WalletSpec `yaml:"wallets"`
	Rules   []RuleSpec   `yaml:"rules"`
}

type WalletSpec struct {
	Name           string `yaml:"name"`
	OpeningBalance string `yaml:"opening_balance"`
}

type LineItemSpec struct {
	Name   string `yaml:"name"`
	Amount string `yaml:"amount"`
}

type RuleSpec struct {
	Name      string         `yaml:"name"`
	Frequency string         `yaml:"frequency"`
	StartDate string         `yaml:"start_date"`
	EndDate   string         `yaml:"end_date"`
	Type      string         `yaml:"type"`
	Amount    string         `yaml:"amount"`
	Wallet    string         `yaml:"wallet"`
	From      string         `yaml:"from"`
	To        string         `yaml:"to"`
	Category  string         `yaml:"category"`
	Notes     string         `yaml:"notes"`
	Tags      []string       `yaml:"tags"`
	LineItems []LineItemSpec `yaml:"line_items"`
}

// Store is what seeding writes to.
type Store interface {
	GetWalletByName(ctx context.Context, name string) (core.Wallet, error)
	CreateWallet(ctx context.Context, name string, opening core.Money) (core.Wallet, error)
	ListRules(ctx context.Context) ([]core.RecurrenceRule, error)
	CreateRule(ctx context.Context, rule core.RecurrenceRule) (core.RecurrenceRule, error)
}

// Result counts what a seed run changed.
type Result struct {
	WalletsCreated int
	RulesCreated   int
	RulesSkipped   int
}

// LoadFile reads and parses a seed file.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(data []byte) (File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return f, nil
}

// Apply creates the wallets and rules of f that do not exist yet.
func Apply(ctx context.Context, store Store, f File) (Result, error) {
	var res Result

	wallets := make(map[string]int64, len(f.Wallets))
	for _, ws := range f.Wallets {
		w, created, err := ensureWallet(ctx, store, ws)
		if err != nil {
			return res, err
		}
		if created {
			res.WalletsCreated++
		}
		wallets[ws.Name] = w.ID
	}

	existing, err := store.ListRules(ctx)
	if err != nil {
		return res, fmt.Errorf("list rules: %w", err)
	}

	for i, rs := range f.Rules {
		rule, err := rs.toRule(ctx, store, wallets)
		if err != nil {
			return res, fmt.Errorf("rule %d (%s): %w", i+1, rs.Name, err)
		}
		if seeded(existing, rule) {
			res.RulesSkipped++
			continue
		}
		created, err := store.CreateRule(ctx, rule)
		if err != nil {
			return res, fmt.Errorf("rule %d (%s): %w", i+1, rs.Name, err)
		}
		existing = append(existing, created)
		res.RulesCreated++
		slog.InfoContext(ctx, "Seeded recurrence rule", applog.FieldComponent, applog.ComponentSeed,
			applog.FieldOperation, applog.OpSeed,
			applog.FieldRuleID, created.ID,
			"name", created.Template.Name,
			"frequency", created.Frequency)
	}

	return res, nil
}

func ensureWallet(ctx context.Context, store Store, ws WalletSpec) (core.Wallet, bool, error) {
	if strings.TrimSpace(ws.Name) == "" {
		return core.Wallet{}, false, errors.New("wallet name is required")
	}
	w, err := store.GetWalletByName(ctx, ws.Name)
	if err == nil {
		return w, false, nil
	}
	if !errors.Is(err, core.ErrWalletNotFound) {
		return core.Wallet{}, false, err
	}

	opening, err := parseBalance(ws.OpeningBalance)
	if err != nil {
		return core.Wallet{}, false, fmt.Errorf("wallet %s: %w", ws.Name, err)
	}
	w, err = store.CreateWallet(ctx, ws.Name, opening)
	if err != nil {
		return core.Wallet{}, false, err
	}
	slog.InfoContext(ctx, "Seeded wallet", applog.FieldComponent, applog.ComponentSeed, "wallet_id", w.ID, "name", w.Name, "balance", w.Balance.String())
	return w, true, nil
}

// parseBalance accepts signed amounts; an empty string is zero.
func parseBalance(s string) (core.Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return core.Money{}, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", "."))
	if err != nil {
		return core.Money{}, fmt.Errorf("%w: %q", core.ErrInvalidAmount, s)
	}
	return core.Money{Cents: d.Shift(2).Round(0).IntPart()}, nil
}

func (rs RuleSpec) toRule(ctx context.Context, store Store, wallets map[string]int64) (core.RecurrenceRule, error) {
	start, err := core.ParseDate(rs.StartDate)
	if err != nil {
		return core.RecurrenceRule{}, fmt.Errorf("start_date: %w", err)
	}
	var end core.Date
	if rs.EndDate != "" {
		if end, err = core.ParseDate(rs.EndDate); err != nil {
			return core.RecurrenceRule{}, fmt.Errorf("end_date: %w", err)
		}
	}
	amount, err := core.ParseMoney(rs.Amount)
	if err != nil {
		return core.RecurrenceRule{}, fmt.Errorf("amount: %w", err)
	}

	tmpl := core.Template{
		Amount:   amount,
		Type:     core.TransactionType(strings.ToLower(rs.Type)),
		Category: rs.Category,
		Name:     rs.Name,
		Notes:    rs.Notes,
		Tags:     rs.Tags,
	}
	for _, li := range rs.LineItems {
		m, err := core.ParseMoney(li.Amount)
		if err != nil {
			return core.RecurrenceRule{}, fmt.Errorf("line item %s: %w", li.Name, err)
		}
		tmpl.LineItems = append(tmpl.LineItems, core.LineItem{Name: li.Name, Amount: m})
	}

	lookup := func(name string) (int64, error) {
		if id, ok := wallets[name]; ok {
			return id, nil
		}
		w, err := store.GetWalletByName(ctx, name)
		if err != nil {
			return 0, err
		}
		wallets[name] = w.ID
		return w.ID, nil
	}
	if tmpl.Type == core.Transfer {
		if tmpl.OriginWalletID, err = lookup(rs.From); err != nil {
			return core.RecurrenceRule{}, fmt.Errorf("from: %w", err)
		}
		if tmpl.DestinationWalletID, err = lookup(rs.To); err != nil {
			return core.RecurrenceRule{}, fmt.Errorf("to: %w", err)
		}
	} else if tmpl.WalletID, err = lookup(rs.Wallet); err != nil {
		return core.RecurrenceRule{}, fmt.Errorf("wallet: %w", err)
	}

	rule := core.RecurrenceRule{
		Frequency: core.Frequency(strings.ToLower(rs.Frequency)),
		StartDate: start,
		EndDate:   end,
		Template:  tmpl,
	}
	return rule, rule.Validate()
}

func seeded(existing []core.RecurrenceRule, rule core.RecurrenceRule) bool {
	for _, r := range existing {
		if r.Template.Name == rule.Template.Name &&
			r.Frequency == rule.Frequency &&
			r.StartDate.Equal(rule.StartDate) {
			return true
		}
	}
	return false
}
