package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensecal/internal/core"
	"expensecal/internal/storage"
	"expensecal/internal/storage/storagetest"
)

func TestMemoryStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return New() })
}

func TestSnapshotStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		s, err := NewFromFile(filepath.Join(t.TempDir(), "snap.json"))
		require.NoError(t, err)
		return s
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snap.json")
	ctx := context.Background()

	s, err := NewFromFile(path)
	require.NoError(t, err)
	created, err := s.Create(ctx, core.Expense{Date: core.NewDate(2025, 9, 5), Amount: core.Money{Cents: 25000}, Label: "food"})
	require.NoError(t, err)
	_, err = s.CreateBudget(ctx, core.Budget{Type: core.MonthlyBudget, Amount: core.Money{Cents: 100000}, StartDate: core.NewDate(2025, 9, 1)})
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), ExpensesKey)
	assert.Contains(t, string(raw), BudgetsKey)

	reloaded, err := NewFromFile(path)
	require.NoError(t, err)
	got, err := reloaded.ListByDate(ctx, core.NewDate(2025, 9, 5))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, created.ID, got[0].ID)
	assert.Equal(t, int64(25000), got[0].Amount.Cents)

	b, err := reloaded.LatestBudget(ctx, core.MonthlyBudget)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), b.Amount.Cents)
}

func TestNewFromFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	_, err := NewFromFile(path)
	assert.Error(t, err)
}
