package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"expensecal/internal/core"
	"expensecal/internal/storage"
	"expensecal/internal/storage/storagetest"
)

func TestMongoStoreContract(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URL")
	if uri == "" {
		t.Skip("MONGODB_TEST_URL not set")
	}
	n := 0
	storagetest.Run(t, func(t *testing.T) storage.Store {
		n++
		db := fmt.Sprintf("expensecal_test_%d_%d", time.Now().UnixNano(), n)
		s, err := Open(context.Background(), uri, db)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.client.Database(db).Drop(context.Background())
			s.Close()
		})
		return s
	})
}

func TestMalformedIDIsNotFound(t *testing.T) {
	// Rejected before any round trip, so no server is needed.
	s := &Store{}
	ctx := context.Background()

	_, err := s.Get(ctx, "not-an-object-id")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = s.Delete(ctx, "xyz")
	assert.ErrorIs(t, err, core.ErrNotFound)

	amount := core.Money{Cents: 1}
	_, err = s.Update(ctx, "", core.ExpenseUpdate{Amount: &amount})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestDocumentConversion(t *testing.T) {
	oid := primitive.NewObjectID()
	created := time.Date(2025, 9, 5, 10, 0, 0, 0, time.UTC)
	e, err := expenseDoc{
		ID: oid, Date: "2025-09-05", AmountCents: 25000, Label: "food",
		CreatedAt: created, UpdatedAt: created,
	}.toExpense()
	require.NoError(t, err)
	assert.Equal(t, oid.Hex(), e.ID)
	assert.Equal(t, "2025-09-05", e.Date.String())
	assert.Equal(t, int64(25000), e.Amount.Cents)

	legacy := 12.345
	e, err = expenseDoc{ID: oid, Date: "2025-09-05", LegacyAmount: &legacy}.toExpense()
	require.NoError(t, err)
	assert.Equal(t, int64(1235), e.Amount.Cents, "number amounts round half up to cents")

	e, err = expenseDoc{ID: oid, Date: "2025-09-05", AmountCents: 700, LegacyAmount: &legacy}.toExpense()
	require.NoError(t, err)
	assert.Equal(t, int64(700), e.Amount.Cents, "amountCents wins when present")

	_, err = expenseDoc{ID: oid, Date: "2025-02-30"}.toExpense()
	assert.Error(t, err)

	b, err := budgetDoc{ID: oid, Type: "weekly", AmountCents: 500, StartDate: "2025-09-01"}.toBudget()
	require.NoError(t, err)
	assert.Equal(t, core.WeeklyBudget, b.Type)
}

func TestLegacyNumberAmounts(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URL")
	if uri == "" {
		t.Skip("MONGODB_TEST_URL not set")
	}
	ctx := context.Background()
	db := fmt.Sprintf("expensecal_legacy_%d", time.Now().UnixNano())
	s, err := Open(ctx, uri, db)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.client.Database(db).Drop(context.Background())
		s.Close()
	})

	now := time.Now().UTC()
	_, err = s.expenses.InsertOne(ctx, bson.M{
		"date": "2025-09-05", "amount": 12.5, "description": "", "label": "food",
		"createdAt": now.Add(-time.Hour), "updatedAt": now.Add(-time.Hour),
	})
	require.NoError(t, err)
	_, err = s.Create(ctx, core.Expense{Date: core.NewDate(2025, 9, 5), Amount: core.Money{Cents: 100}})
	require.NoError(t, err)

	day, err := s.ListByDate(ctx, core.NewDate(2025, 9, 5))
	require.NoError(t, err)
	require.Len(t, day, 2)
	assert.Equal(t, int64(1250), day[1].Amount.Cents)

	sum, err := s.SumAmount(ctx, core.NewDate(2025, 9, 1), core.NewDate(2025, 9, 30))
	require.NoError(t, err)
	assert.Equal(t, int64(1350), sum.Cents)

	zero := core.Money{}
	updated, err := s.Update(ctx, day[1].ID, core.ExpenseUpdate{Amount: &zero})
	require.NoError(t, err)
	assert.Equal(t, int64(0), updated.Amount.Cents, "the legacy field is dropped on amount updates")
}
