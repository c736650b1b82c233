package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestParseUserID(t *testing.T) {
	cases := []struct {
		in  string
		out UserID
		ok  bool
	}{
		{"hubby", Hubby, true},
		{"Wifey", Wifey, true},
		{" HUBBY ", Hubby, true},
		{"jorgie", "", false},
		{"", "", false},
	}
	for i, tc := range cases {
		got, err := ParseUserID(tc.in)
		if tc.ok && (err != nil || got != tc.out) {
			t.Fatalf("case %d: got %q, %v", i, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrUnknownUser) {
			t.Fatalf("case %d: expected ErrUnknownUser, got %v", i, err)
		}
	}
}

func TestUserIDOther(t *testing.T) {
	if Hubby.Other() != Wifey || Wifey.Other() != Hubby {
		t.Fatalf("partner mapping broken")
	}
}

func TestParseTxType(t *testing.T) {
	for _, s := range []string{"Income", "Expense", "Debt", "Savings", "Receipt"} {
		if _, err := ParseTxType(s); err != nil {
			t.Fatalf("%q: %v", s, err)
		}
	}
	if _, err := ParseTxType("Transfer"); !errors.Is(err, ErrUnknownTxType) {
		t.Fatalf("expected ErrUnknownTxType, got %v", err)
	}
}

func TestParseDateISOOnly(t *testing.T) {
	d, err := ParseDate("2024-07-15")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if d.Year() != 2024 || d.Month() != time.July || d.Day() != 15 {
		t.Fatalf("unexpected date %v", d)
	}

	for _, bad := range []string{"07/15/2024", "15-07-2024", "2024-7-15", "yesterday", ""} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q: expected ErrInvalidDate, got %v", bad, err)
		}
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	d := NewDate(2024, time.March, 9)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"2024-03-09"` {
		t.Fatalf("unexpected encoding %s", b)
	}
	var back Date
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(d.Time) {
		t.Fatalf("round trip changed date: %v vs %v", back, d)
	}
}

func validTx() Transaction {
	return Transaction{
		ID:        "tx-1",
		User:      Hubby,
		Type:      Expense,
		Amount:    USDCents(1500),
		Category:  "Groceries",
		Date:      NewDate(2024, time.June, 1),
		CreatedAt: time.Now(),
	}
}

func TestTransactionValidate(t *testing.T) {
	if err := validTx().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Transaction)
	}{
		{"unknown user", func(tx *Transaction) { tx.User = "gabby" }},
		{"unknown type", func(tx *Transaction) { tx.Type = "Transfer" }},
		{"zero amount", func(tx *Transaction) { tx.Amount = USDCents(0) }},
		{"negative amount", func(tx *Transaction) { tx.Amount = Money{Cents: -1, Currency: USD} }},
		{"bad currency", func(tx *Transaction) { tx.Amount = Money{Cents: 100, Currency: "EUR"} }},
		{"empty category", func(tx *Transaction) { tx.Category = "  " }},
		{"zero date", func(tx *Transaction) { tx.Date = Date{} }},
		{"negative monthly", func(tx *Transaction) { tx.Monthly = Money{Cents: -5, Currency: USD} }},
	}
	for _, tc := range cases {
		tx := validTx()
		tc.mutate(&tx)
		if err := tx.Validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestProfileValidate(t *testing.T) {
	for _, p := range DefaultProfiles() {
		if err := p.Validate(); err != nil {
			t.Fatalf("default profile %s: %v", p.User, err)
		}
	}
	bad := Profile{User: "someone", Name: "X", Currency: USD}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for unknown user")
	}
}

func TestGoalValidate(t *testing.T) {
	if err := DefaultGoal().Validate(); err != nil {
		t.Fatalf("default goal: %v", err)
	}
	bad := DefaultGoal()
	bad.TargetDate = NewDate(2022, time.January, 1)
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for target before start")
	}
	zero := Goal{Name: "x", Target: USDCents(0)}
	if err := zero.Validate(); err == nil {
		t.Fatalf("expected error for zero target")
	}
}
