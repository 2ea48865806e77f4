// Package services provides business logic and orchestration services.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"expensecal/internal/aggregate"
	"expensecal/internal/amqp"
	"expensecal/internal/cache"
	"expensecal/internal/core"
	applog "expensecal/internal/log"
	"expensecal/internal/storage"
)

// EventPublisher delivers expense change events; *amqp.Client implements it.
type EventPublisher interface {
	Publish(ctx context.Context, ev amqp.ExpenseEvent) error
}

// Options configures an ExpenseService. Zero values pick the defaults.
type Options struct {
	Categories   *core.Categories
	Publisher    EventPublisher
	CacheTTL     time.Duration
	CacheSize    int
	StoreTimeout time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// ExpenseService validates input, talks to the store, keeps the month cache
// coherent and publishes change events.
type ExpenseService struct {
	store      storage.Store
	categories *core.Categories
	publisher  EventPublisher
	ranges     *cache.LRUCache[[]core.Expense]
	timeout    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewExpenseService(store storage.Store, opts Options) *ExpenseService {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 64
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 7 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ExpenseService{
		store:      store,
		categories: opts.Categories,
		publisher:  opts.Publisher,
		ranges:     cache.NewLRUCache[[]core.Expense](opts.CacheSize, opts.CacheTTL),
		timeout:    opts.StoreTimeout,
		logger:     opts.Logger.With(applog.FieldComponent, applog.ComponentExpense),
		now:        opts.Now,
	}
}

// Cache exposes the month/year cache so a cache.Manager can sweep it.
func (s *ExpenseService) Cache() *cache.LRUCache[[]core.Expense] { return s.ranges }

// Categories returns the active allow-list, or nil when labels are free text.
func (s *ExpenseService) Categories() []string { return s.categories.Names() }

func (s *ExpenseService) Ping(ctx context.Context) error {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.Ping(ctx)
}

// CreateExpense stores e after validation and publishes expense.created.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	e.Label = strings.TrimSpace(e.Label)
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	label, err := s.categories.Canonical(e.Label)
	if err != nil {
		return core.Expense{}, err
	}
	e.Label = label

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	created, err := s.store.Create(sctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	s.invalidate(created.Date)
	s.logger.InfoContext(ctx, "Expense created", expenseFields(applog.OpCreate, created)...)
	s.publish(ctx, amqp.ExpenseCreated, created)
	return created, nil
}

func (s *ExpenseService) GetExpense(ctx context.Context, id string) (core.Expense, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.Get(ctx, id)
}

// ExpensesOn returns the expenses of one day, newest first.
func (s *ExpenseService) ExpensesOn(ctx context.Context, date core.Date) ([]core.Expense, error) {
	if err := date.Validate(); err != nil {
		return nil, core.Invalid("date", err)
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.ListByDate(ctx, date)
}

// UpdateExpense applies a partial update and publishes expense.updated.
func (s *ExpenseService) UpdateExpense(ctx context.Context, id string, u core.ExpenseUpdate) (core.Expense, error) {
	if u.Label != nil {
		label, err := s.categories.Canonical(strings.TrimSpace(*u.Label))
		if err != nil {
			return core.Expense{}, err
		}
		u.Label = &label
	}
	if err := u.Validate(); err != nil {
		return core.Expense{}, err
	}

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	before, err := s.store.Get(sctx, id)
	if err != nil {
		return core.Expense{}, err
	}
	updated, err := s.store.Update(sctx, id, u)
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}

	s.invalidate(before.Date)
	s.invalidate(updated.Date)
	s.logger.InfoContext(ctx, "Expense updated", expenseFields(applog.OpUpdate, updated)...)
	s.publish(ctx, amqp.ExpenseUpdated, updated)
	return updated, nil
}

// DeleteExpense removes the record and publishes expense.deleted.
func (s *ExpenseService) DeleteExpense(ctx context.Context, id string) (core.Expense, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	removed, err := s.store.Delete(sctx, id)
	if err != nil {
		return core.Expense{}, fmt.Errorf("delete expense: %w", err)
	}

	s.invalidate(removed.Date)
	s.logger.InfoContext(ctx, "Expense deleted", expenseFields(applog.OpDelete, removed)...)
	s.publish(ctx, amqp.ExpenseDeleted, removed)
	return removed, nil
}

// MonthExpenses returns every expense of year/month ordered by date.
func (s *ExpenseService) MonthExpenses(ctx context.Context, year, month int) ([]core.Expense, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return nil, err
	}
	first, last := core.MonthRange(year, month)
	return s.cachedRange(ctx, monthKey(year, month), first, last)
}

// GroupedMonth groups the month's expenses by date.
func (s *ExpenseService) GroupedMonth(ctx context.Context, year, month int) (map[string][]core.Expense, error) {
	expenses, err := s.MonthExpenses(ctx, year, month)
	if err != nil {
		return nil, err
	}
	return aggregate.GroupByDate(expenses), nil
}

// YearSummary returns the total of each month 1..12.
func (s *ExpenseService) YearSummary(ctx context.Context, year int) (map[int]core.Money, error) {
	if err := core.ValidateYearMonth(year, 0); err != nil {
		return nil, err
	}
	first, last := core.YearRange(year)
	expenses, err := s.cachedRange(ctx, yearKey(year), first, last)
	if err != nil {
		return nil, err
	}
	return aggregate.MonthTotals(year, expenses), nil
}

func (s *ExpenseService) CategoryTotals(ctx context.Context, year, month int) (map[string]core.Money, error) {
	expenses, err := s.MonthExpenses(ctx, year, month)
	if err != nil {
		return nil, err
	}
	return aggregate.CategoryTotals(expenses), nil
}

func (s *ExpenseService) DailyTotals(ctx context.Context, year, month int) (map[string]core.Money, error) {
	expenses, err := s.MonthExpenses(ctx, year, month)
	if err != nil {
		return nil, err
	}
	return aggregate.DailyTotals(expenses), nil
}

// MonthTotal sums year/month in the store.
func (s *ExpenseService) MonthTotal(ctx context.Context, year, month int) (core.Money, error) {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return core.Money{}, err
	}
	first, last := core.MonthRange(year, month)
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.SumAmount(ctx, first, last)
}

// Overview builds the month summary: totals, change against the previous
// month, category breakdown and monthly budget progress when a budget exists.
func (s *ExpenseService) Overview(ctx context.Context, year, month int) (core.MonthOverview, error) {
	current, err := s.MonthExpenses(ctx, year, month)
	if err != nil {
		return core.MonthOverview{}, err
	}
	var previous core.Money
	if py, pm := aggregate.PreviousMonth(year, month); py >= 1 {
		if previous, err = s.MonthTotal(ctx, py, pm); err != nil {
			return core.MonthOverview{}, err
		}
	}

	var progress *core.BudgetProgress
	if budget, err := s.CurrentBudget(ctx, core.MonthlyBudget); err == nil {
		first, last := core.MonthRange(year, month)
		p := aggregate.Progress(budget, first, last, aggregate.SpentIn(current, budget.Category))
		progress = &p
	} else if !errors.Is(err, core.ErrNotFound) {
		return core.MonthOverview{}, err
	}

	return aggregate.Overview(year, month, current, previous, progress), nil
}

// CreateBudget appends a budget; a missing start date means today.
func (s *ExpenseService) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if b.StartDate.IsZero() {
		b.StartDate = core.DateOf(s.now())
	}
	b.Category = strings.TrimSpace(b.Category)
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	category, err := s.categories.Canonical(b.Category)
	if err != nil {
		return core.Budget{}, core.Invalid("category", core.ErrLabelNotAllowed)
	}
	b.Category = category

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	created, err := s.store.CreateBudget(sctx, b)
	if err != nil {
		return core.Budget{}, fmt.Errorf("save budget: %w", err)
	}
	s.logger.InfoContext(ctx, "Budget created", "budget_id", created.ID, "type", created.Type, "amount_cents", created.Amount.Cents)
	return created, nil
}

func (s *ExpenseService) ListBudgets(ctx context.Context) ([]core.Budget, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.ListBudgets(ctx)
}

// CurrentBudget returns the most recently added budget of type t.
func (s *ExpenseService) CurrentBudget(ctx context.Context, t core.BudgetType) (core.Budget, error) {
	if !t.IsValid() {
		return core.Budget{}, core.Invalid("type", core.ErrInvalidBudgetType)
	}
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.store.LatestBudget(ctx, t)
}

// BudgetProgress measures the current budget of type t over the window containing today.
func (s *ExpenseService) BudgetProgress(ctx context.Context, t core.BudgetType) (core.BudgetProgress, error) {
	budget, err := s.CurrentBudget(ctx, t)
	if err != nil {
		return core.BudgetProgress{}, err
	}
	strategy, err := GetPeriodStrategy(budget.Type)
	if err != nil {
		return core.BudgetProgress{}, err
	}
	start, end := strategy.Window(budget.StartDate, core.DateOf(s.now()))

	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	expenses, err := s.store.ListRange(sctx, start, end)
	if err != nil {
		return core.BudgetProgress{}, err
	}
	return aggregate.Progress(budget, start, end, aggregate.SpentIn(expenses, budget.Category)), nil
}

func (s *ExpenseService) cachedRange(ctx context.Context, key string, first, last core.Date) ([]core.Expense, error) {
	if cached, ok := s.ranges.Get(key); ok {
		return cached, nil
	}
	version := s.ranges.Version(key)
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	expenses, err := s.store.ListRange(sctx, first, last)
	if err != nil {
		return nil, err
	}
	// a write that landed during the read has already invalidated key
	s.ranges.SetIfVersion(key, expenses, version)
	return expenses, nil
}

// invalidate drops the cached month and year that contain d.
func (s *ExpenseService) invalidate(d core.Date) {
	s.ranges.Delete(monthKey(d.Year(), d.Month()))
	s.ranges.Delete(yearKey(d.Year()))
}

func (s *ExpenseService) publish(ctx context.Context, t amqp.EventType, e core.Expense) {
	if s.publisher == nil {
		return
	}
	// The write already succeeded; a lost event only delays the mirror.
	if err := s.publisher.Publish(context.WithoutCancel(ctx), amqp.NewExpenseEvent(t, e)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish expense event",
			applog.NewFields().
				WithOperation(applog.OpPublish).
				With(applog.FieldEventType, string(t)).
				With(applog.FieldExpenseID, e.ID).
				WithError(err).
				ToSlice()...)
	}
}

func expenseFields(op string, e core.Expense) []any {
	return applog.NewFields().
		WithOperation(op).
		WithExpense(e.ID, e.Date.String(), e.Amount.Cents, e.Label).
		ToSlice()
}

func (s *ExpenseService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func monthKey(year, month int) string { return fmt.Sprintf("month:%04d-%02d", year, month) }

func yearKey(year int) string { return fmt.Sprintf("year:%04d", year) }
