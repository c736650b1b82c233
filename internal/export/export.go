// Package export builds xlsx workbooks from the ledger.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"cozyfin/internal/core"
)

const historySheet = "History"

var historyHeader = []string{
	"ID", "Type", "Amount", "Currency", "Category", "Date", "Description", "AutoSaving", "Source",
}

// HistoryFilename is the download name for a user's history export.
func HistoryFilename(user core.UserID) string {
	return fmt.Sprintf("history_%s.xlsx", user)
}

// WriteUserHistory writes one user's movements as a single-sheet workbook,
// newest first. The ID column is the row position, not the storage ID.
func WriteUserHistory(w io.Writer, ledger core.Ledger, user core.UserID) error {
	rows := ledger.Select(core.Filter{User: user}).SortedNewestFirst()

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeRow(f, historySheet, 1, toCells(historyHeader)); err != nil {
		return err
	}
	for i, tx := range rows {
		cells := []any{
			i + 1,
			string(tx.Type),
			tx.Amount.Units(),
			string(tx.Amount.Currency),
			tx.Category,
			tx.Date.String(),
			tx.Description,
			yesNo(tx.Automatic),
			tx.Source,
		}
		if err := writeRow(f, historySheet, i+2, cells); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// WriteWorkbook writes the full household workbook: a general summary, a
// per-user summary, every movement, and sub-account sheets when a profile
// has any. All summary figures are USD.
func WriteWorkbook(w io.Writer, cv *core.Converter, ledger core.Ledger, profiles []core.Profile) error {
	f := excelize.NewFile()
	defer f.Close()

	combined, err := ledger.Combine(cv, profiles)
	if err != nil {
		return fmt.Errorf("combine ledger: %w", err)
	}

	if err := f.SetSheetName("Sheet1", "General Summary"); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	general := [][]any{
		{"Concept", "Value (USD)"},
		{"Total Income", combined.Income.Units()},
		{"Total Expenses", combined.Expenses.Units()},
		{"Total Savings", combined.Savings.Units()},
		{"Balance", combined.Balance.Units()},
	}
	if err := writeRows(f, "General Summary", general); err != nil {
		return err
	}

	if err := addUserSummarySheet(f, cv, ledger, profiles); err != nil {
		return err
	}
	if err := addMovementsSheet(f, ledger); err != nil {
		return err
	}
	if err := addSubAccountSheets(f, profiles); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func addUserSummarySheet(f *excelize.File, cv *core.Converter, ledger core.Ledger, profiles []core.Profile) error {
	const sheet = "Per-User Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	rows := [][]any{{"User", "Currency", "Total Income", "Total Expenses", "Current Balance"}}
	for _, p := range profiles {
		sum, err := ledger.Summarize(cv, p.User, p.Currency, 0, 0)
		if err != nil {
			return fmt.Errorf("summarize %s: %w", p.User, err)
		}
		balance, err := ledger.RecomputeBalance(cv, p.User, p.Currency)
		if err != nil {
			return fmt.Errorf("balance %s: %w", p.User, err)
		}
		rows = append(rows, []any{
			p.Name,
			string(p.Currency),
			sum.Income.Units(),
			sum.Expenses.Units(),
			balance.Units(),
		})
	}
	return writeRows(f, sheet, rows)
}

func addMovementsSheet(f *excelize.File, ledger core.Ledger) error {
	const sheet = "Movements"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("add sheet %s: %w", sheet, err)
	}
	rows := [][]any{{"User", "Type", "Amount", "Currency", "Category", "Description", "Source", "Date", "AutoSaving"}}
	for _, tx := range ledger.SortedNewestFirst() {
		rows = append(rows, []any{
			string(tx.User),
			string(tx.Type),
			tx.Amount.Units(),
			string(tx.Amount.Currency),
			tx.Category,
			tx.Description,
			tx.Source,
			tx.Date.String(),
			yesNo(tx.Automatic),
		})
	}
	return writeRows(f, sheet, rows)
}

// addSubAccountSheets appends the Fixed Expenses, Debts and Savings Accounts
// sheets, only when at least one profile carries entries.
func addSubAccountSheets(f *excelize.File, profiles []core.Profile) error {
	var fixed [][]any
	var debts [][]any
	var savings [][]any
	for _, p := range profiles {
		for _, e := range p.FixedExpenses {
			fixed = append(fixed, []any{
				p.Name, e.Name, e.Amount.Units(), string(e.Amount.Currency),
				yesNo(e.Automatic), e.Paycheck,
			})
		}
		for _, d := range p.Debts {
			debts = append(debts, []any{
				p.Name, d.Name, d.Total.Units(), string(d.Total.Currency),
				d.MonthlyPayment.Units(), yesNo(d.Automatic), d.Paycheck,
			})
		}
		for _, a := range p.SavingsAccounts {
			savings = append(savings, []any{
				p.Name, a.Where, a.Amount.Units(), string(a.Amount.Currency),
				a.MonthlyContribution.Units(), yesNo(a.Automatic), a.Paycheck,
			})
		}
	}

	if len(fixed) > 0 {
		const sheet = "Fixed Expenses"
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("add sheet %s: %w", sheet, err)
		}
		rows := append([][]any{{"User", "Name", "Amount", "Currency", "Auto", "Paycheck"}}, fixed...)
		if err := writeRows(f, sheet, rows); err != nil {
			return err
		}
	}
	if len(debts) > 0 {
		const sheet = "Debts"
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("add sheet %s: %w", sheet, err)
		}
		rows := append([][]any{{"User", "Name", "Total", "Currency", "Monthly Payment", "Auto", "Paycheck"}}, debts...)
		if err := writeRows(f, sheet, rows); err != nil {
			return err
		}
	}
	if len(savings) > 0 {
		const sheet = "Savings Accounts"
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("add sheet %s: %w", sheet, err)
		}
		rows := append([][]any{{"User", "Where", "Amount", "Currency", "Monthly Contribution", "Auto", "Paycheck"}}, savings...)
		if err := writeRows(f, sheet, rows); err != nil {
			return err
		}
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, cells := range rows {
		if err := writeRow(f, sheet, i+1, cells); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("write row %d on %s: %w", row, sheet, err)
	}
	return nil
}

func toCells(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
