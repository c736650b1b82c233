// Package core holds the currency and ledger domain: money amounts tagged
// with their currency, conversion between the two household currencies at a
// fixed configured rate, and aggregation over the transaction ledger.
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency identifies one of the currencies the household operates in.
type Currency string

const (
	USD Currency = "USD"
	COP Currency = "COP"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// ParseCurrency normalizes a currency tag from user input.
func ParseCurrency(s string) (Currency, error) {
	switch Currency(strings.ToUpper(strings.TrimSpace(s))) {
	case USD:
		return USD, nil
	case COP:
		return COP, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, s)
	}
}

func (c Currency) Valid() bool {
	return c == USD || c == COP
}

// Rates is the fixed exchange rate configuration. It is injected wherever a
// conversion happens so tests can supply deterministic rates; there is no
// module-level rate constant anywhere in the codebase.
type Rates struct {
	// COPPerUSD is how many Colombian pesos one US dollar buys.
	COPPerUSD decimal.Decimal
}

// DefaultRates returns the household's agreed fixed rate (4000 COP = 1 USD).
func DefaultRates() Rates {
	return Rates{COPPerUSD: decimal.NewFromInt(4000)}
}

func (r Rates) Validate() error {
	if !r.COPPerUSD.IsPositive() {
		return fmt.Errorf("exchange rate must be positive, got %s", r.COPPerUSD)
	}
	return nil
}

// Converter converts Money between currencies using a single fixed rate.
// Every call site in the system goes through the same Converter instance, so
// a converted amount is identical everywhere it is displayed.
type Converter struct {
	rates Rates
}

func NewConverter(r Rates) (*Converter, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rates: %w", err)
	}
	return &Converter{rates: r}, nil
}

// Convert returns m expressed in the target currency, rounded half-up to the
// cent. Converting to the currency the amount is already in is the identity.
// Unknown currency tags are an error, never a silent pass-through.
func (cv *Converter) Convert(m Money, target Currency) (Money, error) {
	if !m.Currency.Valid() {
		return Money{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, m.Currency)
	}
	if !target.Valid() {
		return Money{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, target)
	}
	if m.Currency == target {
		return m, nil
	}

	amount := decimal.New(m.Cents, -2)
	var converted decimal.Decimal
	switch {
	case m.Currency == USD && target == COP:
		converted = amount.Mul(cv.rates.COPPerUSD)
	case m.Currency == COP && target == USD:
		converted = amount.Div(cv.rates.COPPerUSD)
	default:
		return Money{}, fmt.Errorf("%w: %s to %s", ErrUnsupportedCurrency, m.Currency, target)
	}

	// Round half-up to 2 decimal places. This is the single rounding step for
	// the whole system.
	cents := converted.Round(2).Shift(2).IntPart()
	return Money{Cents: cents, Currency: target}, nil
}

// ToUSD is shorthand for Convert to USD, the common display currency for the
// combined view.
func (cv *Converter) ToUSD(m Money) (Money, error) {
	return cv.Convert(m, USD)
}
