package core

import (
	"fmt"
	"sort"
	"time"
)

// Ledger is the append-only list of transactions for both users, newest
// first. All aggregation is a pure function over this list; nothing here
// touches storage.
type Ledger []Transaction

// Filter selects a subset of the ledger. Zero-valued fields match
// everything.
type Filter struct {
	User UserID
	Type TxType
	// Year and Month restrict to a calendar month when both are set.
	Year  int
	Month time.Month
}

func (f Filter) matches(t Transaction) bool {
	if f.User != "" && t.User != f.User {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Year != 0 && f.Month != 0 && !t.Date.SameMonth(f.Year, f.Month) {
		return false
	}
	return true
}

// Select returns the matching transactions, preserving order.
func (l Ledger) Select(f Filter) Ledger {
	var out Ledger
	for _, t := range l {
		if f.matches(t) {
			out = append(out, t)
		}
	}
	return out
}

// SortedNewestFirst returns a copy ordered by date descending, creation time
// as tiebreaker. The stores keep this order on disk; this is for callers that
// merged lists themselves.
func (l Ledger) SortedNewestFirst() Ledger {
	out := make(Ledger, len(l))
	copy(out, l)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// sumConverted adds the matching amounts in the display currency. Amounts
// with an unknown currency tag make the whole aggregation fail loudly rather
// than silently passing the raw number through.
func (l Ledger) sumConverted(cv *Converter, f Filter, display Currency) (Money, error) {
	total := Money{Cents: 0, Currency: display}
	for _, t := range l {
		if !f.matches(t) {
			continue
		}
		conv, err := cv.Convert(t.Amount, display)
		if err != nil {
			return Money{}, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		total.Cents += conv.Cents
	}
	return total, nil
}

// Summary is one user's aggregate over a (possibly month-filtered) ledger,
// expressed in a single display currency.
type Summary struct {
	User     UserID   `json:"user"`
	Currency Currency `json:"currency"`
	Income   Money    `json:"income"`
	Expenses Money    `json:"expenses"`
	// Balance is income minus expenses and may be negative.
	Balance Money `json:"balance"`
	// Net is the signed running savings: income plus savings contributions
	// minus expenses.
	Net Money `json:"net"`
}

// Summarize aggregates the ledger for one user in the display currency. The
// base filter's Year/Month restriction is honored; its Type field is ignored.
func (l Ledger) Summarize(cv *Converter, user UserID, display Currency, year int, month time.Month) (Summary, error) {
	if !user.Valid() {
		return Summary{}, fmt.Errorf("%w: %q", ErrUnknownUser, user)
	}
	base := Filter{User: user, Year: year, Month: month}

	income, err := l.sumConverted(cv, withType(base, Income), display)
	if err != nil {
		return Summary{}, err
	}
	expenses, err := l.sumConverted(cv, withType(base, Expense), display)
	if err != nil {
		return Summary{}, err
	}
	saved, err := l.sumConverted(cv, withType(base, Savings), display)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		User:     user,
		Currency: display,
		Income:   income,
		Expenses: expenses,
		Balance:  Money{Cents: income.Cents - expenses.Cents, Currency: display},
		Net:      Money{Cents: income.Cents + saved.Cents - expenses.Cents, Currency: display},
	}, nil
}

func withType(f Filter, t TxType) Filter {
	f.Type = t
	return f
}

// RecomputeBalance derives a user's running savings balance from the full
// ledger in the user's preferred currency. This is the only way balances are
// produced: after every mutation the owning profile's cached Savings is
// replaced with this value, so the cache can never drift from the ledger.
// The result is clamped at zero, matching the product rule that a displayed
// balance never goes negative.
func (l Ledger) RecomputeBalance(cv *Converter, user UserID, currency Currency) (Money, error) {
	s, err := l.Summarize(cv, user, currency, 0, 0)
	if err != nil {
		return Money{}, err
	}
	net := s.Net
	if net.Cents < 0 {
		net.Cents = 0
	}
	return net, nil
}

// CombinedSummary is the two-user "Together" aggregate, always in USD.
// All totals are clamped at zero; integer-cent arithmetic means no NaN can
// ever appear regardless of input.
type CombinedSummary struct {
	Savings  Money `json:"savings"`
	Income   Money `json:"income"`
	Expenses Money `json:"expenses"`
	Balance  Money `json:"balance"`
}

// Combine aggregates both users' ledgers plus their recomputed savings
// balances into the shared USD view.
func (l Ledger) Combine(cv *Converter, profiles []Profile) (CombinedSummary, error) {
	var out CombinedSummary
	out.Savings = USDCents(0)
	out.Income = USDCents(0)
	out.Expenses = USDCents(0)

	for _, p := range profiles {
		balance, err := l.RecomputeBalance(cv, p.User, p.Currency)
		if err != nil {
			return CombinedSummary{}, fmt.Errorf("balance for %s: %w", p.User, err)
		}
		balanceUSD, err := cv.ToUSD(balance)
		if err != nil {
			return CombinedSummary{}, err
		}
		out.Savings.Cents += balanceUSD.Cents

		s, err := l.Summarize(cv, p.User, USD, 0, 0)
		if err != nil {
			return CombinedSummary{}, err
		}
		out.Income.Cents += s.Income.Cents
		out.Expenses.Cents += s.Expenses.Cents
	}

	out.Savings.Cents = clampNonNegative(out.Savings.Cents)
	out.Income.Cents = clampNonNegative(out.Income.Cents)
	out.Expenses.Cents = clampNonNegative(out.Expenses.Cents)
	out.Balance = USDCents(out.Income.Cents - out.Expenses.Cents)
	return out, nil
}

func clampNonNegative(c int64) int64 {
	if c < 0 {
		return 0
	}
	return c
}

// MonthPoint is one month's totals for the dashboard chart.
type MonthPoint struct {
	Year     int    `json:"year"`
	Month    int    `json:"month"`
	Label    string `json:"label"`
	Income   Money  `json:"income"`
	Expenses Money  `json:"expenses"`
	Savings  Money  `json:"savings"`
}

// MonthlySeries builds the last n months of per-month totals for one user in
// the display currency, oldest first. Months with no activity produce zero
// points so the chart has a continuous axis.
func (l Ledger) MonthlySeries(cv *Converter, user UserID, display Currency, end Date, n int) ([]MonthPoint, error) {
	if n <= 0 {
		return nil, nil
	}
	points := make([]MonthPoint, 0, n)
	y, m := end.Year(), end.Month()
	// Walk back n-1 months, then emit forward.
	for i := 0; i < n-1; i++ {
		m--
		if m < time.January {
			m = time.December
			y--
		}
	}
	for i := 0; i < n; i++ {
		s, err := l.Summarize(cv, user, display, y, m)
		if err != nil {
			return nil, err
		}
		saved := Money{Cents: s.Net.Cents - s.Balance.Cents, Currency: display}
		if saved.Cents < 0 {
			saved.Cents = 0
		}
		points = append(points, MonthPoint{
			Year:     y,
			Month:    int(m),
			Label:    time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).Format("Jan"),
			Income:   s.Income,
			Expenses: s.Expenses,
			Savings:  saved,
		})
		m++
		if m > time.December {
			m = time.January
			y++
		}
	}
	return points, nil
}
