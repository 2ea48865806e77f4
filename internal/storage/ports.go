// Package storage defines the persistence contract shared by every backend.
package storage

import (
	"context"

	"expensecal/internal/core"
)

// Ports implemented by the persistence backends.
type (
	// ExpenseStore persists expense records. Dates compare as YYYY-MM-DD strings
	// and ranges include both ends.
	ExpenseStore interface {
		// Create assigns the id and timestamps and returns the stored record.
		Create(ctx context.Context, e core.Expense) (core.Expense, error)
		// Get returns core.ErrNotFound when id is unknown.
		Get(ctx context.Context, id string) (core.Expense, error)
		// ListByDate returns the expenses of one day, newest first by createdAt.
		ListByDate(ctx context.Context, date core.Date) ([]core.Expense, error)
		// ListRange returns expenses in [start, end] ordered by date, then newest first.
		ListRange(ctx context.Context, start, end core.Date) ([]core.Expense, error)
		// Update replaces the supplied fields only.
		Update(ctx context.Context, id string, u core.ExpenseUpdate) (core.Expense, error)
		// Delete removes the record and returns it.
		Delete(ctx context.Context, id string) (core.Expense, error)
		// SumAmount is zero when nothing matches.
		SumAmount(ctx context.Context, start, end core.Date) (core.Money, error)
	}

	// BudgetStore keeps the append-only budget list.
	BudgetStore interface {
		CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		// ListBudgets returns budgets newest first.
		ListBudgets(ctx context.Context) ([]core.Budget, error)
		// LatestBudget returns the most recently added budget of type t.
		LatestBudget(ctx context.Context, t core.BudgetType) (core.Budget, error)
	}

	// Store is a complete backend.
	Store interface {
		ExpenseStore
		BudgetStore
		Ping(ctx context.Context) error
		Close() error
	}
)
