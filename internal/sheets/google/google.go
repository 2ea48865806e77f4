// Package google mirrors expenses into a Google Sheets tab, one row per
// expense with the id in column A.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"expensecal/internal/core"
	applog "expensecal/internal/log"
	"expensecal/internal/sheets"
)

var _ sheets.Mirror = (*Client)(nil)

// Header is written to row 1 of an empty sheet.
var Header = []any{"ID", "Date", "Amount", "Label", "Description", "Updated At"}

const lastColumn = "F"

type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string

	// serializes row lookups and writes so two upserts never pick the same new row
	mu sync.Mutex
}

// New creates a Sheets client authenticated with service account credentials.
// Extra options are appended after the credentials.
func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(cfg.SheetName) == "" {
		cfg.SheetName = "Expenses"
	}

	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	all := append([]goption.ClientOption{
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
	}, opts...)
	return newClient(ctx, cfg, all...)
}

func newClient(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Client, error) {
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", applog.FieldComponent, applog.ComponentSheets, "sheet", cfg.SheetName)
	return &Client{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: cfg.SheetName}, nil
}

func credentials(cfg Config) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_CREDENTIALS_JSON or GOOGLE_CREDENTIALS_FILE)")
	}
}

// Upsert implements sheets.Mirror.
func (c *Client) Upsert(ctx context.Context, e core.Expense) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}

	if row := rowOf(ids, e.ID); row > 0 {
		rng := c.rowRange(row)
		_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: [][]any{expenseRow(e)}}).
			ValueInputOption("RAW").Context(ctx).Do()
		if err != nil {
			return fmt.Errorf("update %s: %w", rng, err)
		}
		slog.DebugContext(ctx, "Mirror row updated", applog.FieldComponent, applog.ComponentSheets, applog.FieldExpenseID, e.ID, "row", row)
		return nil
	}

	values := [][]any{expenseRow(e)}
	if len(ids) == 0 {
		values = append([][]any{Header}, values...)
	}
	rng := fmt.Sprintf("%s!A:%s", c.sheetName, lastColumn)
	_, err = c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append to %s: %w", c.sheetName, err)
	}
	slog.DebugContext(ctx, "Mirror row appended", applog.FieldComponent, applog.ComponentSheets, applog.FieldExpenseID, e.ID)
	return nil
}

// Remove implements sheets.Mirror. The row is cleared, not deleted, so the
// positions of the other rows stay stable.
func (c *Client) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.readIDs(ctx)
	if err != nil {
		return err
	}
	row := rowOf(ids, id)
	if row == 0 {
		slog.DebugContext(ctx, "Mirror row already absent", applog.FieldComponent, applog.ComponentSheets, applog.FieldExpenseID, id)
		return nil
	}
	rng := c.rowRange(row)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

func (c *Client) readIDs(ctx context.Context) ([]string, error) {
	rng := fmt.Sprintf("%s!A:A", c.sheetName)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return firstColumn(resp.Values), nil
}

func (c *Client) rowRange(row int) string {
	return fmt.Sprintf("%s!A%d:%s%d", c.sheetName, row, lastColumn, row)
}

// expenseRow is the mirror layout: id, date, amount, label, description, updatedAt.
func expenseRow(e core.Expense) []any {
	updated := ""
	if !e.UpdatedAt.IsZero() {
		updated = e.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return []any{e.ID, e.Date.String(), e.Amount.Float(), e.Label, e.Description, updated}
}

func firstColumn(values [][]any) []string {
	out := make([]string, len(values))
	for i, row := range values {
		if len(row) > 0 {
			out[i] = strings.TrimSpace(fmt.Sprint(row[0]))
		}
	}
	return out
}

// rowOf returns the 1-based sheet row holding id, or 0. Row 1 is the header.
func rowOf(ids []string, id string) int {
	if id == "" {
		return 0
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] == id {
			return i + 1
		}
	}
	return 0
}
