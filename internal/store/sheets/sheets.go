// Package sheets mirrors the ledger into a Google spreadsheet the couple
// can eyeball from their phones. The spreadsheet is a mirror, never the
// source of truth; the worker feeds it from the local store.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"cozyfin/internal/core"
	"cozyfin/internal/store"
)

// Column layout of the movements sheet:
// A=ID B=User C=Type D=Amount E=Currency F=Category G=Description H=Source
// I=Date J=Monthly K=Automatic
const columnSpan = "A:K"

type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsFile string
	CredentialsJSON string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	sheetID       int64
	sheetIDKnown  bool
}

var _ store.TransactionWriter = (*Client)(nil)
var _ store.TransactionLister = (*Client)(nil)

func New(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	sheetName := strings.TrimSpace(opts.SheetName)
	if sheetName == "" {
		sheetName = "Movements"
	}

	credentials, err := loadCredentials(opts)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentials),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: opts.SpreadsheetID,
		sheetName:     sheetName,
	}, nil
}

func loadCredentials(opts Options) ([]byte, error) {
	switch {
	case strings.TrimSpace(opts.CredentialsJSON) != "":
		return []byte(opts.CredentialsJSON), nil
	case strings.TrimSpace(opts.CredentialsFile) != "":
		b, err := os.ReadFile(opts.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials")
	}
}

// Append writes the entry as a new row and returns its row reference.
func (c *Client) Append(ctx context.Context, tx core.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	row := []any{
		tx.ID,
		string(tx.User),
		string(tx.Type),
		tx.Amount.Units(),
		string(tx.Amount.Currency),
		tx.Category,
		tx.Description,
		tx.Source,
		tx.Date.String(),
		tx.Monthly.Units(),
		tx.Automatic,
	}

	vr := &gsheet.ValueRange{Values: [][]any{row}}
	resp, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, c.sheetName+"!"+columnSpan, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return c.sheetName, nil
}

// DeleteByID finds the row carrying the given transaction ID in column A and
// removes it. A missing ID is not an error: the row may never have been
// mirrored, and a delete of nothing leaves the mirror correct.
func (c *Client) DeleteByID(ctx context.Context, id string) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	resp, err := c.svc.Spreadsheets.Values.
		Get(c.spreadsheetID, c.sheetName+"!A:A").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("scan sheet %s: %w", c.sheetName, err)
	}

	rowIndex := -1
	for i, row := range resp.Values {
		if len(row) > 0 && strings.TrimSpace(fmt.Sprint(row[0])) == id {
			rowIndex = i
			break
		}
	}
	if rowIndex == -1 {
		return nil
	}

	sheetID, err := c.resolveSheetID(ctx)
	if err != nil {
		return err
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			DeleteDimension: &gsheet.DeleteDimensionRequest{
				Range: &gsheet.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(rowIndex),
					EndIndex:   int64(rowIndex + 1),
				},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("delete row %d from sheet %s: %w", rowIndex+1, c.sheetName, err)
	}
	return nil
}

func (c *Client) resolveSheetID(ctx context.Context) (int64, error) {
	if c.sheetIDKnown {
		return c.sheetID, nil
	}
	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("read spreadsheet metadata: %w", err)
	}
	for _, sh := range meta.Sheets {
		if sh.Properties != nil && sh.Properties.Title == c.sheetName {
			c.sheetID = sh.Properties.SheetId
			c.sheetIDKnown = true
			return c.sheetID, nil
		}
	}
	return 0, fmt.Errorf("sheet %q not found in spreadsheet", c.sheetName)
}

// List reads the mirror back as a ledger. Best-effort: malformed rows are
// skipped rather than failing the whole read.
func (c *Client) List(ctx context.Context, f core.Filter) (core.Ledger, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	resp, err := c.svc.Spreadsheets.Values.
		Get(c.spreadsheetID, c.sheetName+"!"+columnSpan).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", c.sheetName, err)
	}

	var out core.Ledger
	for _, raw := range resp.Values {
		tx, ok := parseRow(toStrings(raw))
		if !ok {
			continue
		}
		if f.User != "" && tx.User != f.User {
			continue
		}
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if f.Year != 0 && f.Month != 0 && !tx.Date.SameMonth(f.Year, f.Month) {
			continue
		}
		out = append(out, tx)
	}
	return out.SortedNewestFirst(), nil
}

func parseRow(cols []string) (core.Transaction, bool) {
	if len(cols) < 9 {
		return core.Transaction{}, false
	}
	user, err := core.ParseUserID(cols[1])
	if err != nil {
		return core.Transaction{}, false
	}
	typ, err := core.ParseTxType(cols[2])
	if err != nil {
		return core.Transaction{}, false
	}
	amount, err := core.ParseMoney(cols[3], cols[4])
	if err != nil || amount.IsZero() {
		return core.Transaction{}, false
	}
	date, err := core.ParseDate(cols[8])
	if err != nil {
		return core.Transaction{}, false
	}

	tx := core.Transaction{
		ID:          strings.TrimSpace(cols[0]),
		User:        user,
		Type:        typ,
		Amount:      amount,
		Category:    strings.TrimSpace(cols[5]),
		Description: strings.TrimSpace(cols[6]),
		Source:      strings.TrimSpace(cols[7]),
		Date:        date,
	}
	if len(cols) >= 10 && strings.TrimSpace(cols[9]) != "" {
		if cents, err := core.ParseAmountToCents(cols[9]); err == nil && cents > 0 {
			tx.Monthly = core.Money{Cents: cents, Currency: amount.Currency}
		}
	}
	if len(cols) >= 11 {
		auto, _ := strconv.ParseBool(strings.ToLower(strings.TrimSpace(cols[10])))
		tx.Automatic = auto
	}

	if tx.ID == "" || tx.Category == "" {
		return core.Transaction{}, false
	}
	return tx, true
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
