package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// UserID identifies one of the two fixed household members. The frontend may
// show any display name; internally the pair is a tagged enum, never a free
// string key into a map.
type UserID string

const (
	Hubby UserID = "hubby"
	Wifey UserID = "wifey"
)

// AllUsers lists the two members in a stable order.
func AllUsers() []UserID { return []UserID{Hubby, Wifey} }

func ParseUserID(s string) (UserID, error) {
	switch UserID(strings.ToLower(strings.TrimSpace(s))) {
	case Hubby:
		return Hubby, nil
	case Wifey:
		return Wifey, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownUser, s)
	}
}

func (u UserID) Valid() bool { return u == Hubby || u == Wifey }

// Other returns the partner of u.
func (u UserID) Other() UserID {
	if u == Hubby {
		return Wifey
	}
	return Hubby
}

// TxType classifies a ledger entry.
type TxType string

const (
	Income  TxType = "Income"
	Expense TxType = "Expense"
	Debt    TxType = "Debt"
	Savings TxType = "Savings"
	Receipt TxType = "Receipt"
)

func ParseTxType(s string) (TxType, error) {
	switch TxType(strings.TrimSpace(s)) {
	case Income, Expense, Debt, Savings, Receipt:
		return TxType(strings.TrimSpace(s)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTxType, s)
	}
}

func (t TxType) Valid() bool {
	switch t {
	case Income, Expense, Debt, Savings, Receipt:
		return true
	}
	return false
}

// Date is a civil calendar date. Dates enter and leave the system only in
// ISO-8601 (YYYY-MM-DD); there is no runtime format sniffing.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current civil date in UTC.
func Today() Date {
	y, m, d := time.Now().UTC().Date()
	return NewDate(y, m, d)
}

// ParseDate accepts ISO-8601 only.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q (want YYYY-MM-DD)", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// SameMonth reports whether the date falls in the given year and month.
func (d Date) SameMonth(year int, month time.Month) bool {
	return d.Year() == year && d.Month() == month
}

// MarshalJSON encodes the date as a bare ISO string.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidDate   = errors.New("invalid date")
	ErrUnknownUser   = errors.New("unknown user")
	ErrUnknownTxType = errors.New("unknown transaction type")
	ErrEmptyCategory = errors.New("empty category")
	ErrNotFound      = errors.New("not found")
)

// Transaction is one ledger entry. Entries are immutable once created: they
// can be deleted but never edited in place.
type Transaction struct {
	ID       string `json:"id"`
	User     UserID `json:"user"`
	Type     TxType `json:"type"`
	Amount   Money  `json:"amount"`
	Category string `json:"category"`
	// Description carries the free-form note (sub-category, debt name, or
	// savings destination depending on Type).
	Description string `json:"description,omitempty"`
	// Source tags incomes and automatic deductions with the paycheck they
	// come out of ("First Check", "Second Check", ...). Display only.
	Source string `json:"source,omitempty"`
	Date   Date   `json:"date"`
	// Monthly is the optional recurring amount attached to Debt and Savings
	// entries (monthly payment / monthly contribution).
	Monthly Money `json:"monthly"`
	// Automatic marks the entry as a recurring automatic deduction tied to a
	// paycheck. Categorization only; nothing is scheduled.
	Automatic bool      `json:"automatic,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (t Transaction) Validate() error {
	if !t.User.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownUser, t.User)
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTxType, t.Type)
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if t.Monthly.Cents != 0 {
		if err := t.Monthly.Validate(); err != nil {
			return fmt.Errorf("monthly amount: %w", err)
		}
	}
	return nil
}

// SavingsAccount is a named savings destination owned by one profile.
type SavingsAccount struct {
	Where               string `json:"where"`
	Amount              Money  `json:"amount"`
	MonthlyContribution Money  `json:"monthly_contribution"`
	Automatic           bool   `json:"automatic,omitempty"`
	Paycheck            string `json:"paycheck,omitempty"`
	Opened              Date   `json:"opened"`
}

func (a SavingsAccount) Validate() error {
	if strings.TrimSpace(a.Where) == "" {
		return errors.New("savings account needs a destination name")
	}
	if err := a.Amount.Validate(); err != nil {
		return err
	}
	return nil
}

// FixedExpense is a recurring monthly charge owned by one profile (rent,
// subscriptions). Categorization only; nothing is posted to the ledger
// automatically.
type FixedExpense struct {
	Name      string `json:"name"`
	Amount    Money  `json:"amount"`
	Automatic bool   `json:"automatic,omitempty"`
	Paycheck  string `json:"paycheck,omitempty"`
}

func (e FixedExpense) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return errors.New("fixed expense needs a name")
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.Amount.Cents == 0 {
		return ErrInvalidAmount
	}
	return nil
}

// DebtAccount is a named debt owned by one profile.
type DebtAccount struct {
	Name           string `json:"name"`
	Total          Money  `json:"total"`
	MonthlyPayment Money  `json:"monthly_payment"`
	Automatic      bool   `json:"automatic,omitempty"`
	Paycheck       string `json:"paycheck,omitempty"`
	Opened         Date   `json:"opened"`
}

func (d DebtAccount) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("debt needs a name")
	}
	if err := d.Total.Validate(); err != nil {
		return err
	}
	return nil
}

// Profile is one member's settings plus derived balances. Savings and
// DebtsTotal are caches of a recomputation over the ledger and sub-accounts;
// they are never incremented in place (see RecomputeBalance).
type Profile struct {
	User            UserID           `json:"user"`
	Name            string           `json:"name"`
	Avatar          string           `json:"avatar,omitempty"`
	Currency        Currency         `json:"currency"`
	Budget          Money            `json:"budget"`
	Savings         Money            `json:"savings"`
	SavingsAccounts []SavingsAccount `json:"savings_accounts,omitempty"`
	FixedExpenses   []FixedExpense   `json:"fixed_expenses,omitempty"`
	Debts           []DebtAccount    `json:"debts,omitempty"`
	DebtsTotal      Money            `json:"debts_total"`
}

func (p Profile) Validate() error {
	if !p.User.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownUser, p.User)
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("profile needs a display name")
	}
	if !p.Currency.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedCurrency, p.Currency)
	}
	return nil
}

// DefaultProfiles returns the initial pair used when the store is empty.
func DefaultProfiles() []Profile {
	return []Profile{
		{User: Hubby, Name: "Hubby", Currency: USD, Savings: USDCents(0), DebtsTotal: USDCents(0)},
		{User: Wifey, Name: "Wifey", Currency: COP, Savings: COPCents(0), DebtsTotal: COPCents(0)},
	}
}

// Goal is the shared savings goal. Read-mostly; only progress and the time
// estimate are derived from it.
type Goal struct {
	Name       string `json:"name"`
	Target     Money  `json:"target"`
	StartDate  Date   `json:"start_date"`
	TargetDate Date   `json:"target_date"`
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return errors.New("goal needs a name")
	}
	if err := g.Target.Validate(); err != nil {
		return err
	}
	if g.Target.Cents == 0 {
		return ErrInvalidAmount
	}
	if !g.TargetDate.IsZero() && !g.StartDate.IsZero() && g.TargetDate.Before(g.StartDate.Time) {
		return errors.New("target date before start date")
	}
	return nil
}

// DefaultGoal is the couple's standing goal when none has been configured.
func DefaultGoal() Goal {
	return Goal{
		Name:       "Cozy House",
		Target:     USDCents(30000 * 100),
		StartDate:  NewDate(2023, time.January, 1),
		TargetDate: NewDate(2025, time.January, 1),
	}
}
