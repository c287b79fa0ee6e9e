// Package ledger defines the outbound port for exporting recorded expenses
// to an external ledger, plus its adapters.
package ledger

import (
	"context"

	"conto/internal/core"
)

// Row is one exported ledger line.
type Row struct {
	Date        core.Date
	Description string
	Amount      core.Money
	Category    string
}

// Appender writes rows to the ledger and returns an adapter-specific row
// reference.
type Appender interface {
	AppendRow(ctx context.Context, row Row) (rowRef string, err error)
}
