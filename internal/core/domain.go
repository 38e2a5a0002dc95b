package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

const (
	Expense  TransactionType = "expense"
	Income   TransactionType = "income"
	Transfer TransactionType = "transfer"
)

type (
	Frequency string

	TransactionType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	LineItem struct {
		Name   string
		Amount Money
	}

	// Template holds the fields copied verbatim into every occurrence of a rule.
	Template struct {
		WalletID            int64
		OriginWalletID      int64 // transfers only
		DestinationWalletID int64 // transfers only
		Amount              Money
		Type                TransactionType
		Category            string
		Name                string
		Notes               string
		Tags                []string
		LineItems           []LineItem
	}

	RecurrenceRule struct {
		ID        int64
		Frequency Frequency
		StartDate Date
		EndDate   Date // zero means open-ended
		Template  Template

		// GeneratedOccurrences lists the transaction IDs created for this rule,
		// in creation order.
		GeneratedOccurrences []int64

		CreatedAt time.Time
		UpdatedAt time.Time
	}

	Transaction struct {
		ID                  int64
		WalletID            int64
		OriginWalletID      int64
		DestinationWalletID int64
		Amount              Money
		Type                TransactionType
		Category            string
		Name                string
		Notes               string
		Tags                []string
		LineItems           []LineItem
		Date                time.Time
		RecurrenceID        *int64
		CreatedAt           time.Time
	}

	Wallet struct {
		ID      int64
		Name    string
		Balance Money // signed
	}
)

var (
	ErrInvalidDay         = errors.New("invalid day")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyName          = errors.New("empty name")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidFrequency   = errors.New("invalid frequency")
	ErrMissingWallet      = errors.New("missing wallet")
	ErrSameTransferWallet = errors.New("transfer origin and destination must differ")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Day truncates t to midnight of its UTC calendar day.
func Day(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Day(t), nil
}

// IsEmpty returns true if the date is zero (optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Before and After compare at day granularity.
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(time.DateOnly)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b Date) int {
	return int(b.Sub(a.Time).Hours() / 24)
}

// LastDayOfMonth returns the number of days in the given month.
func LastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsLastDayOfMonth reports whether d is the final day of its month.
func (d Date) IsLastDayOfMonth() bool {
	return d.Day() == LastDayOfMonth(d.Year(), d.Month())
}

func (f Frequency) IsValid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	default:
		return false
	}
}

func (t TransactionType) IsValid() bool {
	switch t {
	case Expense, Income, Transfer:
		return true
	default:
		return false
	}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Signed returns the ledger delta for the transaction type: expenses debit,
// income credits. Transfers return the positive magnitude; callers debit the
// origin and credit the destination.
func (m Money) Signed(t TransactionType) Money {
	if t == Expense {
		return Money{Cents: -m.Cents}
	}
	return m
}

func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

func (t Template) Validate() error {
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Type.IsValid() {
		return ErrInvalidType
	}
	if strings.TrimSpace(t.Name) == "" {
		return ErrEmptyName
	}
	if len(t.Name) > 200 {
		return errors.New("name too long (max 200 characters)")
	}
	if t.Type == Transfer {
		if t.OriginWalletID == 0 || t.DestinationWalletID == 0 {
			return ErrMissingWallet
		}
		if t.OriginWalletID == t.DestinationWalletID {
			return ErrSameTransferWallet
		}
		return nil
	}
	if t.WalletID == 0 {
		return ErrMissingWallet
	}
	return nil
}

// Wallets returns every wallet the template touches.
func (t Template) Wallets() []int64 {
	if t.Type == Transfer {
		return []int64{t.OriginWalletID, t.DestinationWalletID}
	}
	return []int64{t.WalletID}
}

func (re RecurrenceRule) Validate() error {
	if err := re.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}

	if !re.EndDate.IsZero() {
		if err := re.EndDate.Validate(); err != nil {
			return errors.New("invalid end date: " + err.Error())
		}
		if re.EndDate.Before(re.StartDate) {
			return errors.New("end date must be after start date")
		}
	}

	if !re.Frequency.IsValid() {
		return ErrInvalidFrequency
	}

	if err := re.Template.Validate(); err != nil {
		return errors.New("invalid template: " + err.Error())
	}

	return nil
}

// HasOccurrence reports whether id is already linked to the rule.
func (re RecurrenceRule) HasOccurrence(id int64) bool {
	for _, existing := range re.GeneratedOccurrences {
		if existing == id {
			return true
		}
	}
	return false
}

// NewOccurrence builds the transaction for one occurrence of the rule at the
// given instant. Tags and line items are copied so the occurrence does not
// alias the template.
func (re RecurrenceRule) NewOccurrence(at time.Time) Transaction {
	t := re.Template
	id := re.ID
	tx := Transaction{
		WalletID:     t.WalletID,
		Amount:       t.Amount,
		Type:         t.Type,
		Category:     t.Category,
		Name:         t.Name,
		Notes:        t.Notes,
		Tags:         append([]string(nil), t.Tags...),
		LineItems:    append([]LineItem(nil), t.LineItems...),
		Date:         at,
		RecurrenceID: &id,
	}
	if t.Type == Transfer {
		tx.OriginWalletID = t.OriginWalletID
		tx.DestinationWalletID = t.DestinationWalletID
	}
	return tx
}

// OccurrenceDay is the calendar day the transaction represents.
func (tx Transaction) OccurrenceDay() Date {
	return Day(tx.Date)
}

func (tx Transaction) Validate() error {
	if tx.Date.IsZero() {
		return errors.New("date cannot be zero")
	}
	return Template{
		WalletID:            tx.WalletID,
		OriginWalletID:      tx.OriginWalletID,
		DestinationWalletID: tx.DestinationWalletID,
		Amount:              tx.Amount,
		Type:                tx.Type,
		Name:                tx.Name,
	}.Validate()
}
