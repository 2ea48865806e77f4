// Package storagetest is the behavioural contract every storage.Store backend
// must satisfy. Backend packages call Run from their own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensecal/internal/core"
	"expensecal/internal/storage"
)

// Factory returns an empty store; cleanup is registered on t by the factory.
type Factory func(t *testing.T) storage.Store

// Run executes the contract against fresh stores from newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"CreateThenListByDate", testCreateThenListByDate},
		{"ListByDateNewestFirst", testListByDateNewestFirst},
		{"ListRangeInclusive", testListRangeInclusive},
		{"UpdateChangesOnlySuppliedFields", testUpdateChangesOnlySuppliedFields},
		{"UpdateMovesDate", testUpdateMovesDate},
		{"UpdateUnknownID", testUpdateUnknownID},
		{"DeleteTwice", testDeleteTwice},
		{"SumAmount", testSumAmount},
		{"Budgets", testBudgets},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func ctx(t *testing.T) context.Context {
	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return c
}

func date(t *testing.T, s string) core.Date {
	t.Helper()
	d, err := core.ParseDate(s)
	require.NoError(t, err)
	return d
}

func mustCreate(t *testing.T, s storage.Store, d string, cents int64, label string) core.Expense {
	t.Helper()
	e, err := s.Create(ctx(t), core.Expense{Date: date(t, d), Amount: core.Money{Cents: cents}, Label: label, Description: "note " + d})
	require.NoError(t, err)
	return e
}

func testCreateThenListByDate(t *testing.T, s storage.Store) {
	created := mustCreate(t, s, "2025-09-05", 25000, "food")
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.False(t, created.UpdatedAt.IsZero())
	mustCreate(t, s, "2025-09-06", 100, "food")

	got, err := s.ListByDate(ctx(t), date(t, "2025-09-05"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, created.ID, got[0].ID)
	assert.Equal(t, int64(25000), got[0].Amount.Cents)
	assert.Equal(t, "food", got[0].Label)
	assert.Equal(t, "note 2025-09-05", got[0].Description)
	assert.Equal(t, "2025-09-05", got[0].Date.String())

	fetched, err := s.Get(ctx(t), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, fetched.ID)

	_, err = s.Get(ctx(t), "does-not-exist")
	assert.ErrorIs(t, err, core.ErrNotFound)

	empty, err := s.ListByDate(ctx(t), date(t, "2030-01-01"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testListByDateNewestFirst(t *testing.T, s storage.Store) {
	first := mustCreate(t, s, "2025-09-05", 1, "")
	time.Sleep(2 * time.Millisecond)
	second := mustCreate(t, s, "2025-09-05", 2, "")
	time.Sleep(2 * time.Millisecond)
	third := mustCreate(t, s, "2025-09-05", 3, "")

	got, err := s.ListByDate(ctx(t), date(t, "2025-09-05"))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func testListRangeInclusive(t *testing.T, s storage.Store) {
	before := mustCreate(t, s, "2025-08-31", 1, "")
	start := mustCreate(t, s, "2025-09-01", 2, "")
	mid := mustCreate(t, s, "2025-09-15", 3, "")
	end := mustCreate(t, s, "2025-09-30", 4, "")
	after := mustCreate(t, s, "2025-10-01", 5, "")

	got, err := s.ListRange(ctx(t), date(t, "2025-09-01"), date(t, "2025-09-30"))
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, e := range got {
		ids[i] = e.ID
	}
	assert.Equal(t, []string{start.ID, mid.ID, end.ID}, ids)
	assert.NotContains(t, ids, before.ID)
	assert.NotContains(t, ids, after.ID)
}

func testUpdateChangesOnlySuppliedFields(t *testing.T, s storage.Store) {
	orig := mustCreate(t, s, "2025-09-05", 1000, "food")
	amount := core.Money{Cents: 4242}

	updated, err := s.Update(ctx(t), orig.ID, core.ExpenseUpdate{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, amount, updated.Amount)
	assert.Equal(t, orig.ID, updated.ID)
	assert.Equal(t, orig.Date.String(), updated.Date.String())
	assert.Equal(t, orig.Label, updated.Label)
	assert.Equal(t, orig.Description, updated.Description)
	assert.True(t, orig.CreatedAt.Equal(updated.CreatedAt), "createdAt must not change")

	reread, err := s.Get(ctx(t), orig.ID)
	require.NoError(t, err)
	assert.Equal(t, amount, reread.Amount)
	assert.Equal(t, orig.Label, reread.Label)
}

func testUpdateMovesDate(t *testing.T, s storage.Store) {
	orig := mustCreate(t, s, "2025-09-05", 1000, "food")
	newDate := date(t, "2025-09-07")
	label := ""
	_, err := s.Update(ctx(t), orig.ID, core.ExpenseUpdate{Date: &newDate, Label: &label})
	require.NoError(t, err)

	old, err := s.ListByDate(ctx(t), date(t, "2025-09-05"))
	require.NoError(t, err)
	assert.Empty(t, old)

	moved, err := s.ListByDate(ctx(t), newDate)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, "", moved[0].Label)
}

func testUpdateUnknownID(t *testing.T, s storage.Store) {
	amount := core.Money{Cents: 1}
	_, err := s.Update(ctx(t), "0123456789abcdef01234567", core.ExpenseUpdate{Amount: &amount})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testDeleteTwice(t *testing.T, s storage.Store) {
	e := mustCreate(t, s, "2025-09-05", 1000, "food")
	keep := mustCreate(t, s, "2025-09-05", 2000, "food")

	removed, err := s.Delete(ctx(t), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, removed.ID)
	assert.Equal(t, e.Amount, removed.Amount)

	got, err := s.ListByDate(ctx(t), date(t, "2025-09-05"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, keep.ID, got[0].ID)

	_, err = s.Delete(ctx(t), e.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testSumAmount(t *testing.T, s storage.Store) {
	zero, err := s.SumAmount(ctx(t), date(t, "2025-01-01"), date(t, "2025-12-31"))
	require.NoError(t, err)
	assert.Equal(t, core.Money{}, zero)

	mustCreate(t, s, "2025-01-01", 100, "")
	mustCreate(t, s, "2025-06-30", 250, "")
	mustCreate(t, s, "2025-12-31", 1, "")
	mustCreate(t, s, "2026-01-01", 9999, "")

	sum, err := s.SumAmount(ctx(t), date(t, "2025-01-01"), date(t, "2025-12-31"))
	require.NoError(t, err)
	assert.Equal(t, int64(351), sum.Cents)
}

func testBudgets(t *testing.T, s storage.Store) {
	_, err := s.LatestBudget(ctx(t), core.MonthlyBudget)
	assert.ErrorIs(t, err, core.ErrNotFound)

	mk := func(typ core.BudgetType, cents int64) core.Budget {
		b, err := s.CreateBudget(ctx(t), core.Budget{Type: typ, Amount: core.Money{Cents: cents}, StartDate: date(t, "2025-09-01"), Category: "food"})
		require.NoError(t, err)
		assert.NotEmpty(t, b.ID)
		time.Sleep(2 * time.Millisecond)
		return b
	}
	m1 := mk(core.MonthlyBudget, 1000)
	w1 := mk(core.WeeklyBudget, 200)
	m2 := mk(core.MonthlyBudget, 3000)

	latest, err := s.LatestBudget(ctx(t), core.MonthlyBudget)
	require.NoError(t, err)
	assert.Equal(t, m2.ID, latest.ID)
	assert.Equal(t, int64(3000), latest.Amount.Cents)
	assert.Equal(t, "2025-09-01", latest.StartDate.String())
	assert.Equal(t, "food", latest.Category)

	all, err := s.ListBudgets(ctx(t))
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{m2.ID, w1.ID, m1.ID}, []string{all[0].ID, all[1].ID, all[2].ID})
}
