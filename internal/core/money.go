package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Money is a currency-tagged amount in integer cents. Every monetary value in
// the system carries its currency; cross-currency arithmetic must go through
// a Converter.
type Money struct {
	Cents    int64
	Currency Currency
}

func NewMoney(cents int64, c Currency) Money {
	return Money{Cents: cents, Currency: c}
}

// USDCents and COPCents are small helpers for the common literal cases.
func USDCents(cents int64) Money { return Money{Cents: cents, Currency: USD} }
func COPCents(cents int64) Money { return Money{Cents: cents, Currency: COP} }

func (m Money) Validate() error {
	if !m.Currency.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedCurrency, m.Currency)
	}
	if m.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsZero reports whether the amount is zero cents.
func (m Money) IsZero() bool { return m.Cents == 0 }

// Units returns the amount in whole currency units as a float64 for display.
// Use cents for arithmetic.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}

func (m Money) String() string {
	neg := m.Cents < 0
	c := m.Cents
	if neg {
		c = -c
	}
	s := fmt.Sprintf("%d.%02d %s", c/100, c%100, m.Currency)
	if neg {
		return "-" + s
	}
	return s
}

// ParseAmountToCents converts a decimal string to cents with half-up rounding
// on the third decimal place. Accepts both dot and comma decimal separators.
// Negative, empty, and non-numeric input is rejected; this is the single
// entry boundary where free-form amounts are validated, so stored amounts are
// always well-formed cents and aggregation can never see NaN.
func ParseAmountToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidAmount
	}
	var fracCents int64
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return iv*100 + fracCents, nil
}

// ParseMoney combines amount and currency parsing for form input.
func ParseMoney(amount, currency string) (Money, error) {
	cur, err := ParseCurrency(currency)
	if err != nil {
		return Money{}, err
	}
	cents, err := ParseAmountToCents(amount)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: cents, Currency: cur}, nil
}
