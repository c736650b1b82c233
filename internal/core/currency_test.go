package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func newTestConverter(t *testing.T) *Converter {
	t.Helper()
	cv, err := NewConverter(DefaultRates())
	if err != nil {
		t.Fatalf("converter: %v", err)
	}
	return cv
}

func TestConvertIdentity(t *testing.T) {
	cv := newTestConverter(t)
	cases := []Money{
		USDCents(12345),
		COPCents(987654321),
		USDCents(0),
	}
	for i, m := range cases {
		got, err := cv.Convert(m, m.Currency)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got != m {
			t.Fatalf("case %d: identity conversion changed %v to %v", i, m, got)
		}
	}
}

func TestConvertCOPToUSD(t *testing.T) {
	cv := newTestConverter(t)
	// 4,000,000 COP at 4000 COP/USD is exactly 1000 USD.
	got, err := cv.Convert(COPCents(4_000_000_00), USD)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got.Cents != 1000_00 {
		t.Fatalf("expected 100000 cents, got %d", got.Cents)
	}
	if got.Currency != USD {
		t.Fatalf("expected USD, got %s", got.Currency)
	}
}

func TestConvertUSDToCOP(t *testing.T) {
	cv := newTestConverter(t)
	got, err := cv.Convert(USDCents(100), COP) // 1 USD
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got.Cents != 4000_00 {
		t.Fatalf("expected 400000 cents, got %d", got.Cents)
	}
}

func TestConvertRoundTripWithinOneCent(t *testing.T) {
	cv := newTestConverter(t)
	amounts := []int64{1, 99, 100, 12345, 999_999_99, 7}
	for _, cents := range amounts {
		cop, err := cv.Convert(USDCents(cents), COP)
		if err != nil {
			t.Fatalf("to COP: %v", err)
		}
		back, err := cv.Convert(cop, USD)
		if err != nil {
			t.Fatalf("back to USD: %v", err)
		}
		diff := back.Cents - cents
		if diff < -1 || diff > 1 {
			t.Fatalf("round trip of %d cents drifted by %d", cents, diff)
		}
	}
}

func TestConvertUnsupportedCurrency(t *testing.T) {
	cv := newTestConverter(t)
	_, err := cv.Convert(Money{Cents: 100, Currency: Currency("EUR")}, USD)
	if !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("expected ErrUnsupportedCurrency, got %v", err)
	}
	_, err = cv.Convert(USDCents(100), Currency("EUR"))
	if !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("expected ErrUnsupportedCurrency for target, got %v", err)
	}
}

func TestRatesValidate(t *testing.T) {
	if err := DefaultRates().Validate(); err != nil {
		t.Fatalf("default rates should be valid: %v", err)
	}
	bad := Rates{COPPerUSD: decimal.Zero}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero rate")
	}
	neg := Rates{COPPerUSD: decimal.NewFromInt(-1)}
	if err := neg.Validate(); err == nil {
		t.Fatalf("expected error for negative rate")
	}
}

func TestNewConverterRejectsBadRates(t *testing.T) {
	if _, err := NewConverter(Rates{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestParseCurrency(t *testing.T) {
	cases := []struct {
		in  string
		out Currency
		ok  bool
	}{
		{"USD", USD, true},
		{"usd", USD, true},
		{"COP", COP, true},
		{" cop ", COP, true},
		{"EUR", "", false},
		{"", "", false},
	}
	for i, tc := range cases {
		got, err := ParseCurrency(tc.in)
		if tc.ok && (err != nil || got != tc.out) {
			t.Fatalf("case %d: got %q, %v", i, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
