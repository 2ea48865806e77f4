package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensecal/internal/amqp"
	"expensecal/internal/core"
	"expensecal/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.ExpenseEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev amqp.ExpenseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []amqp.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

var fixedNow = time.Date(2025, 9, 10, 15, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts Options) (*ExpenseService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	if opts.Publisher == nil {
		opts.Publisher = pub
	}
	opts.Now = func() time.Time { return fixedNow }
	return NewExpenseService(memory.New(), opts), pub
}

func mustAdd(t *testing.T, s *ExpenseService, date string, cents int64, label string) core.Expense {
	t.Helper()
	d, err := core.ParseDate(date)
	require.NoError(t, err)
	e, err := s.CreateExpense(context.Background(), core.Expense{Date: d, Amount: core.Money{Cents: cents}, Label: label})
	require.NoError(t, err)
	return e
}

func TestExpenseService_CreateExpense(t *testing.T) {
	s, pub := newTestService(t, Options{})
	ctx := context.Background()

	created := mustAdd(t, s, "2025-09-05", 25000, " food ")
	assert.Equal(t, "food", created.Label)

	got, err := s.ExpensesOn(ctx, core.NewDate(2025, 9, 5))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(25000), got[0].Amount.Cents)
	assert.Equal(t, []amqp.EventType{amqp.ExpenseCreated}, pub.types())

	_, err = s.CreateExpense(ctx, core.Expense{Amount: core.Money{Cents: 1}})
	assert.True(t, core.IsValidation(err))
	_, err = s.CreateExpense(ctx, core.Expense{Date: core.NewDate(2025, 9, 5), Amount: core.Money{Cents: -1}})
	assert.True(t, core.IsValidation(err))
	assert.Len(t, pub.types(), 1, "invalid input must not publish")
}

func TestExpenseService_CategoryAllowlist(t *testing.T) {
	s, _ := newTestService(t, Options{Categories: core.NewCategories(core.DefaultCategories)})
	ctx := context.Background()

	_, err := s.CreateExpense(ctx, core.Expense{Date: core.NewDate(2025, 9, 5), Amount: core.Money{Cents: 1}, Label: "yachts"})
	var verr *core.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "label", verr.Field)

	mustAdd(t, s, "2025-09-05", 1000, "food")
	stored := mustAdd(t, s, "2025-09-05", 500, "Food")
	assert.Equal(t, "food", stored.Label, "listed labels are stored lower-cased")
	mustAdd(t, s, "2025-09-05", 1, "")
	assert.Equal(t, []string{"bills", "entertainment", "food", "other", "shopping", "travel"}, s.Categories())

	totals, err := s.CategoryTotals(ctx, 2025, 9)
	require.NoError(t, err)
	assert.Equal(t, map[string]core.Money{"food": {Cents: 1500}, "": {Cents: 1}}, totals)

	travel := "TRAVEL"
	updated, err := s.UpdateExpense(ctx, stored.ID, core.ExpenseUpdate{Label: &travel})
	require.NoError(t, err)
	assert.Equal(t, "travel", updated.Label)

	b, err := s.CreateBudget(ctx, core.Budget{Type: core.MonthlyBudget, Amount: core.Money{Cents: 100}, Category: "Bills"})
	require.NoError(t, err)
	assert.Equal(t, "bills", b.Category)
}

func TestExpenseService_PublishFailureDoesNotFailWrite(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	s, _ := newTestService(t, Options{Publisher: pub})

	created := mustAdd(t, s, "2025-09-05", 100, "")
	got, err := s.GetExpense(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestExpenseService_MonthCacheInvalidation(t *testing.T) {
	s, _ := newTestService(t, Options{})
	ctx := context.Background()

	mustAdd(t, s, "2025-09-05", 100, "food")
	first, err := s.MonthExpenses(ctx, 2025, 9)
	require.NoError(t, err)
	require.Len(t, first, 1)
	_, cached := s.Cache().Get(monthKey(2025, 9))
	assert.True(t, cached)

	e := mustAdd(t, s, "2025-09-20", 200, "food")
	_, cached = s.Cache().Get(monthKey(2025, 9))
	assert.False(t, cached, "create must invalidate the month")

	second, err := s.MonthExpenses(ctx, 2025, 9)
	require.NoError(t, err)
	assert.Len(t, second, 2)

	// Moving an expense to October invalidates both months.
	_, err = s.MonthExpenses(ctx, 2025, 10)
	require.NoError(t, err)
	oct := core.NewDate(2025, 10, 1)
	_, err = s.UpdateExpense(ctx, e.ID, core.ExpenseUpdate{Date: &oct})
	require.NoError(t, err)

	sep, err := s.MonthExpenses(ctx, 2025, 9)
	require.NoError(t, err)
	assert.Len(t, sep, 1)
	octExp, err := s.MonthExpenses(ctx, 2025, 10)
	require.NoError(t, err)
	assert.Len(t, octExp, 1)

	summary, err := s.YearSummary(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(100), summary[9].Cents)
	assert.Equal(t, int64(200), summary[10].Cents)

	_, err = s.DeleteExpense(ctx, e.ID)
	require.NoError(t, err)
	summary, err = s.YearSummary(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary[10].Cents)
}

// gatedStore parks the next ListRange after it has read from the store until
// release is closed.
type gatedStore struct {
	*memory.Store
	armed   chan struct{}
	read    chan struct{}
	release chan struct{}
}

func (g *gatedStore) ListRange(ctx context.Context, start, end core.Date) ([]core.Expense, error) {
	out, err := g.Store.ListRange(ctx, start, end)
	select {
	case <-g.armed:
		close(g.read)
		<-g.release
	default:
	}
	return out, err
}

func TestExpenseService_MonthReadRacingWriteIsNotCached(t *testing.T) {
	store := &gatedStore{
		Store:   memory.New(),
		armed:   make(chan struct{}, 1),
		read:    make(chan struct{}),
		release: make(chan struct{}),
	}
	s := NewExpenseService(store, Options{Now: func() time.Time { return fixedNow }})
	ctx := context.Background()

	store.armed <- struct{}{}
	done := make(chan []core.Expense, 1)
	go func() {
		month, err := s.MonthExpenses(ctx, 2025, 9)
		assert.NoError(t, err)
		done <- month
	}()

	<-store.read
	mustAdd(t, s, "2025-09-05", 25000, "food")
	close(store.release)
	assert.Empty(t, <-done, "the read started before the write")

	month, err := s.MonthExpenses(ctx, 2025, 9)
	require.NoError(t, err)
	assert.Len(t, month, 1)
	day, err := s.ExpensesOn(ctx, core.NewDate(2025, 9, 5))
	require.NoError(t, err)
	assert.Len(t, day, 1)
}

func TestExpenseService_UpdateAndDelete(t *testing.T) {
	s, pub := newTestService(t, Options{})
	ctx := context.Background()
	e := mustAdd(t, s, "2025-09-05", 100, "food")

	amount := core.Money{Cents: 999}
	updated, err := s.UpdateExpense(ctx, e.ID, core.ExpenseUpdate{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, amount, updated.Amount)
	assert.Equal(t, "food", updated.Label)

	bad := core.Money{Cents: -5}
	_, err = s.UpdateExpense(ctx, e.ID, core.ExpenseUpdate{Amount: &bad})
	assert.True(t, core.IsValidation(err))

	_, err = s.UpdateExpense(ctx, "missing", core.ExpenseUpdate{Amount: &amount})
	assert.ErrorIs(t, err, core.ErrNotFound)

	removed, err := s.DeleteExpense(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.ID, removed.ID)
	_, err = s.DeleteExpense(ctx, e.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.Equal(t, []amqp.EventType{amqp.ExpenseCreated, amqp.ExpenseUpdated, amqp.ExpenseDeleted}, pub.types())
}

func TestExpenseService_Aggregations(t *testing.T) {
	s, _ := newTestService(t, Options{})
	ctx := context.Background()
	mustAdd(t, s, "2025-08-31", 500, "food")
	mustAdd(t, s, "2025-09-01", 100, "food")
	mustAdd(t, s, "2025-09-01", 50, "bills")
	mustAdd(t, s, "2025-09-30", 25, "food")
	mustAdd(t, s, "2025-10-01", 1000, "food")

	grouped, err := s.GroupedMonth(ctx, 2025, 9)
	require.NoError(t, err)
	assert.Len(t, grouped, 2)
	assert.Len(t, grouped["2025-09-01"], 2)
	assert.NotContains(t, grouped, "2025-10-01")

	cats, err := s.CategoryTotals(ctx, 2025, 9)
	require.NoError(t, err)
	assert.Equal(t, map[string]core.Money{"food": {Cents: 125}, "bills": {Cents: 50}}, cats)

	daily, err := s.DailyTotals(ctx, 2025, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(150), daily["2025-09-01"].Cents)

	summary, err := s.YearSummary(ctx, 2025)
	require.NoError(t, err)
	assert.Len(t, summary, 12)
	var sum int64
	for _, m := range summary {
		sum += m.Cents
	}
	assert.Equal(t, int64(1675), sum)

	_, err = s.MonthExpenses(ctx, 2025, 13)
	assert.True(t, core.IsValidation(err))
	_, err = s.YearSummary(ctx, 0)
	assert.True(t, core.IsValidation(err))
}

func TestExpenseService_Overview(t *testing.T) {
	s, _ := newTestService(t, Options{})
	ctx := context.Background()
	mustAdd(t, s, "2025-08-10", 1000, "food")
	mustAdd(t, s, "2025-09-01", 1000, "food")
	mustAdd(t, s, "2025-09-02", 500, "bills")

	ov, err := s.Overview(ctx, 2025, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), ov.Total.Cents)
	assert.Equal(t, int64(1000), ov.PreviousTotal.Cents)
	assert.Equal(t, 50.0, ov.ChangePercent)
	assert.Equal(t, 2, ov.DaysWithExpenses)
	assert.Nil(t, ov.Budget)

	_, err = s.CreateBudget(ctx, core.Budget{Type: core.MonthlyBudget, Amount: core.Money{Cents: 1000}})
	require.NoError(t, err)
	ov, err = s.Overview(ctx, 2025, 9)
	require.NoError(t, err)
	require.NotNil(t, ov.Budget)
	assert.True(t, ov.Budget.OverBudget)
	assert.Equal(t, int64(-500), ov.Budget.Remaining.Cents)
	assert.Equal(t, "2025-09-30", ov.Budget.PeriodEnd.String())
}

func TestExpenseService_Budgets(t *testing.T) {
	s, _ := newTestService(t, Options{})
	ctx := context.Background()

	_, err := s.CurrentBudget(ctx, core.WeeklyBudget)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.CurrentBudget(ctx, "yearly")
	assert.True(t, core.IsValidation(err))

	_, err = s.CreateBudget(ctx, core.Budget{Type: core.WeeklyBudget})
	assert.True(t, core.IsValidation(err))

	b, err := s.CreateBudget(ctx, core.Budget{Type: core.WeeklyBudget, Amount: core.Money{Cents: 10000}, StartDate: core.NewDate(2025, 9, 1), Category: "food"})
	require.NoError(t, err)

	mustAdd(t, s, "2025-09-07", 3000, "food")  // previous window
	mustAdd(t, s, "2025-09-08", 2000, "food")  // current window starts 09-08
	mustAdd(t, s, "2025-09-10", 1000, "bills") // other category
	mustAdd(t, s, "2025-09-14", 500, "FOOD")

	progress, err := s.BudgetProgress(ctx, core.WeeklyBudget)
	require.NoError(t, err)
	assert.Equal(t, b.ID, progress.Budget.ID)
	assert.Equal(t, "2025-09-08", progress.PeriodStart.String())
	assert.Equal(t, "2025-09-14", progress.PeriodEnd.String())
	assert.Equal(t, int64(2500), progress.Spent.Cents)
	assert.Equal(t, int64(7500), progress.Remaining.Cents)
	assert.Equal(t, 25.0, progress.Percent)
	assert.False(t, progress.OverBudget)

	defaulted, err := s.CreateBudget(ctx, core.Budget{Type: core.MonthlyBudget, Amount: core.Money{Cents: 1}})
	require.NoError(t, err)
	assert.Equal(t, "2025-09-10", defaulted.StartDate.String())

	all, err := s.ListBudgets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, defaulted.ID, all[0].ID)
}
