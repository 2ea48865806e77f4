package client

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"expensecal/internal/aggregate"
	"expensecal/internal/core"
)

// DefaultMirrorTTL is how long a snapshot counts as fresh.
const DefaultMirrorTTL = 5 * time.Minute

// MirrorOptions configures a Mirror. Zero values pick the defaults.
type MirrorOptions struct {
	TTL    time.Duration
	Logger *slog.Logger
	Now    func() time.Time
}

// Mirror holds a snapshot of one month and the budget list so callers can
// read synchronously. It is owned by its caller; nothing refreshes it unless
// Refresh or Run is called. Writes go to the server first and are followed
// by a refresh whether they succeeded or not.
type Mirror struct {
	client *Client
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	year, month int
	byDate      map[string][]core.Expense
	expenses    []core.Expense
	budgets     []core.Budget
	lastUpdated time.Time
}

func NewMirror(c *Client, year, month int, opts MirrorOptions) *Mirror {
	if opts.TTL <= 0 {
		opts.TTL = DefaultMirrorTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Mirror{
		client: c,
		ttl:    opts.TTL,
		logger: opts.Logger,
		now:    opts.Now,
		year:   year,
		month:  month,
		byDate: map[string][]core.Expense{},
	}
}

// Month returns the mirrored year and month.
func (m *Mirror) Month() (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.year, m.month
}

// SetMonth switches the mirrored month and refreshes.
func (m *Mirror) SetMonth(ctx context.Context, year, month int) error {
	if err := core.ValidateYearMonth(year, month); err != nil {
		return err
	}
	m.mu.Lock()
	m.year, m.month = year, month
	m.mu.Unlock()
	return m.Refresh(ctx)
}

// Refresh reloads the month and the budgets. On failure the previous
// snapshot stays in place.
func (m *Mirror) Refresh(ctx context.Context) error {
	year, month := m.Month()

	grouped, err := m.client.MonthExpenses(ctx, year, month)
	if err != nil {
		return fmt.Errorf("refresh %04d-%02d: %w", year, month, err)
	}
	budgets, err := m.client.ListBudgets(ctx)
	if err != nil {
		return fmt.Errorf("refresh budgets: %w", err)
	}

	dates := make([]string, 0, len(grouped))
	for d := range grouped {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	var flat []core.Expense
	for _, d := range dates {
		flat = append(flat, grouped[d]...)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// the month may have changed while the request was in flight
	if m.year != year || m.month != month {
		return nil
	}
	m.byDate = grouped
	if m.byDate == nil {
		m.byDate = map[string][]core.Expense{}
	}
	m.expenses = flat
	m.budgets = budgets
	m.lastUpdated = m.now()
	return nil
}

// LastUpdated is the time of the last successful refresh.
func (m *Mirror) LastUpdated() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdated
}

// Stale reports whether the snapshot is missing or older than the TTL.
func (m *Mirror) Stale(now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUpdated.IsZero() || now.Sub(m.lastUpdated) >= m.ttl
}

// ExpensesOn returns a copy of the snapshot's expenses for date.
func (m *Mirror) ExpensesOn(date core.Date) []core.Expense {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.byDate[date.String()]
	return append([]core.Expense(nil), list...)
}

func (m *Mirror) TotalFor(date core.Date) core.Money {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return aggregate.Total(m.byDate[date.String()])
}

func (m *Mirror) MonthTotal() core.Money {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return aggregate.Total(m.expenses)
}

func (m *Mirror) DailyTotals() map[string]core.Money {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return aggregate.DailyTotals(m.expenses)
}

func (m *Mirror) CategoryTotals() map[string]core.Money {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return aggregate.CategoryTotals(m.expenses)
}

// Budgets returns the snapshot's budgets, newest first.
func (m *Mirror) Budgets() []core.Budget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]core.Budget(nil), m.budgets...)
}

// MonthlyBudget returns the most recent monthly budget, if any.
func (m *Mirror) MonthlyBudget() (core.Budget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.monthlyBudgetLocked()
}

func (m *Mirror) monthlyBudgetLocked() (core.Budget, bool) {
	for _, b := range m.budgets {
		if b.Type == core.MonthlyBudget {
			return b, true
		}
	}
	return core.Budget{}, false
}

// BudgetProgress measures the monthly budget over the mirrored month.
func (m *Mirror) BudgetProgress() (core.BudgetProgress, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.monthlyBudgetLocked()
	if !ok {
		return core.BudgetProgress{}, false
	}
	first, last := core.MonthRange(m.year, m.month)
	return aggregate.Progress(b, first, last, aggregate.SpentIn(m.expenses, b.Category)), true
}

func (m *Mirror) AddExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	created, err := m.client.CreateExpense(ctx, e)
	m.refreshAfterWrite(ctx, "add expense")
	return created, err
}

func (m *Mirror) UpdateExpense(ctx context.Context, id string, u core.ExpenseUpdate) (core.Expense, error) {
	updated, err := m.client.UpdateExpense(ctx, id, u)
	m.refreshAfterWrite(ctx, "update expense")
	return updated, err
}

func (m *Mirror) DeleteExpense(ctx context.Context, id string) error {
	err := m.client.DeleteExpense(ctx, id)
	m.refreshAfterWrite(ctx, "delete expense")
	return err
}

func (m *Mirror) AddBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	created, err := m.client.CreateBudget(ctx, b)
	m.refreshAfterWrite(ctx, "add budget")
	return created, err
}

// refreshAfterWrite logs refresh failures; the write result is what callers see.
func (m *Mirror) refreshAfterWrite(ctx context.Context, op string) {
	if err := m.Refresh(ctx); err != nil {
		m.logger.WarnContext(ctx, "Mirror refresh after write failed", "operation", op, "error", err)
	}
}

// Run refreshes on every tick until ctx ends, starting with an immediate
// refresh when the snapshot is stale. It returns nil on cancellation.
func (m *Mirror) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = m.ttl
	}
	if m.Stale(m.now()) {
		if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
			m.logger.WarnContext(ctx, "Mirror refresh failed", "error", err)
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
				m.logger.WarnContext(ctx, "Mirror refresh failed", "error", err)
			}
		}
	}
}
