// Package google exports ledger rows to a Google Sheets spreadsheet using
// service-account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"conto/internal/ledger"
)

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ ledger.Appender = (*Client)(nil)

// Config carries the spreadsheet target and service-account credentials.
// Exactly one of CredentialsJSON or CredentialsFile must be set.
type Config struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	if cfg.SheetName == "" {
		return nil, errors.New("missing sheet name")
	}

	var credentialsJSON []byte
	switch {
	case cfg.CredentialsJSON != "":
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case cfg.CredentialsFile != "":
		raw, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		credentialsJSON = raw
	default:
		return nil, errors.New("missing service account credentials")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets ledger ready",
		"spreadsheet_id", cfg.SpreadsheetID,
		"sheet", cfg.SheetName)

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
	}, nil
}

// AppendRow appends one line to the configured sheet and returns the range
// the API reports for the new row.
func (c *Client) AppendRow(ctx context.Context, row ledger.Row) (string, error) {
	values := &gsheet.ValueRange{
		Values: [][]any{{
			row.Date.String(),
			row.Description,
			row.Amount.Units(),
			row.Category,
		}},
	}

	resp, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, c.sheetName+"!A:D", values).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append ledger row: %w", err)
	}

	ref := ""
	if resp.Updates != nil {
		ref = resp.Updates.UpdatedRange
	}
	slog.InfoContext(ctx, "Ledger row appended",
		"sheet", c.sheetName,
		"range", ref,
		"amount_cents", row.Amount.Cents)
	return ref, nil
}
