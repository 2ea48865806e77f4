// Package sheets defines the outbound port for the spreadsheet mirror of
// the expense table.
package sheets

import (
	"context"

	"expensecal/internal/core"
)

// Mirror keeps one row per expense, keyed by id.
type Mirror interface {
	// Upsert writes e over its existing row or appends a new one.
	Upsert(ctx context.Context, e core.Expense) error
	// Remove clears the row of id; unknown ids are not an error.
	Remove(ctx context.Context, id string) error
}
