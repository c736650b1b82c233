package sheets

import (
	"testing"
	"time"

	"cozyfin/internal/core"
)

func TestParseRow(t *testing.T) {
	cols := []string{
		"tx-1", "hubby", "Expense", "12.50", "USD", "Groceries",
		"weekly run", "", "2024-06-01", "", "false",
	}
	tx, ok := parseRow(cols)
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if tx.ID != "tx-1" || tx.User != core.Hubby || tx.Type != core.Expense {
		t.Fatalf("unexpected entry %+v", tx)
	}
	if tx.Amount.Cents != 1250 || tx.Amount.Currency != core.USD {
		t.Fatalf("unexpected amount %+v", tx.Amount)
	}
	if !tx.Date.SameMonth(2024, time.June) {
		t.Fatalf("unexpected date %s", tx.Date)
	}
}

func TestParseRowWithMonthlyAndAutomatic(t *testing.T) {
	cols := []string{
		"tx-2", "wifey", "Savings", "500000", "COP", "Savings",
		"emergency fund", "First Check", "2024-06-15", "250000", "true",
	}
	tx, ok := parseRow(cols)
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if tx.Monthly.Cents != 250000_00 || tx.Monthly.Currency != core.COP {
		t.Fatalf("unexpected monthly %+v", tx.Monthly)
	}
	if !tx.Automatic {
		t.Fatalf("expected automatic flag")
	}
	if tx.Source != "First Check" {
		t.Fatalf("unexpected source %q", tx.Source)
	}
}

func TestParseRowRejectsMalformed(t *testing.T) {
	cases := [][]string{
		{"ID", "User", "Type", "Amount", "Currency", "Category", "Description", "Source", "Date"}, // header
		{"tx", "hubby", "Expense", "1.00", "USD", "Cat", "", "", "06/01/2024"},                    // bad date
		{"tx", "nobody", "Expense", "1.00", "USD", "Cat", "", "", "2024-06-01"},                   // bad user
		{"tx", "hubby", "Expense", "1.00", "EUR", "Cat", "", "", "2024-06-01"},                    // bad currency
		{"tx", "hubby", "Expense", "0", "USD", "Cat", "", "", "2024-06-01"},                       // zero amount
		{"", "hubby", "Expense", "1.00", "USD", "Cat", "", "", "2024-06-01"},                      // no id
		{"tx", "hubby"}, // short row
	}
	for i, cols := range cases {
		if _, ok := parseRow(cols); ok {
			t.Fatalf("case %d: expected parse to fail", i)
		}
	}
}
