package core

import (
	"errors"
	"testing"
)

func TestParseAmountToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"0", 0, true},
		{".5", 50, true},
		{"1000000", 100000000, true},
		{"", 0, false},
		{"-1", 0, false},
		{"+1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1e3", 0, false},
		{"92233720368547759", 0, false}, // would overflow cents
	}
	for i, tc := range cases {
		got, err := ParseAmountToCents(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("case %d (%q): expected ok, got %v", i, tc.in, err)
			}
			if got != tc.out {
				t.Fatalf("case %d (%q): expected %d, got %d", i, tc.in, tc.out, got)
			}
		} else if err == nil {
			t.Fatalf("case %d (%q): expected error", i, tc.in)
		}
	}
}

func TestParseMoney(t *testing.T) {
	m, err := ParseMoney("12.34", "usd")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if m.Cents != 1234 || m.Currency != USD {
		t.Fatalf("unexpected money %v", m)
	}
	if _, err := ParseMoney("12.34", "EUR"); !errors.Is(err, ErrUnsupportedCurrency) {
		t.Fatalf("expected ErrUnsupportedCurrency, got %v", err)
	}
	if _, err := ParseMoney("-1", "USD"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestMoneyValidate(t *testing.T) {
	if err := USDCents(100).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := USDCents(0).Validate(); err != nil {
		t.Fatalf("zero is valid money, got %v", err)
	}
	if err := (Money{Cents: -1, Currency: USD}).Validate(); err == nil {
		t.Fatalf("expected error for negative")
	}
	if err := (Money{Cents: 1, Currency: "EUR"}).Validate(); err == nil {
		t.Fatalf("expected error for unknown currency")
	}
}

func TestMoneyString(t *testing.T) {
	cases := []struct {
		m   Money
		out string
	}{
		{USDCents(123456), "1234.56 USD"},
		{COPCents(5), "0.05 COP"},
		{Money{Cents: -250, Currency: USD}, "-2.50 USD"},
	}
	for i, tc := range cases {
		if got := tc.m.String(); got != tc.out {
			t.Fatalf("case %d: expected %q, got %q", i, tc.out, got)
		}
	}
}
