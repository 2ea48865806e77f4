// Package memory is an in-process store. With a snapshot path it also keeps
// the expense and budget lists as JSON blobs on disk, one key per list.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"expensecal/internal/core"
	"expensecal/internal/storage"
)

// Snapshot keys.
const (
	ExpensesKey = "expensecal_expenses"
	BudgetsKey  = "expensecal_budgets"
)

var _ storage.Store = (*Store)(nil)

type record struct {
	core.Expense
	seq int64
}

type Store struct {
	mu      sync.Mutex
	items   []record
	budgets []core.Budget
	seq     int64
	path    string
	now     func() time.Time
}

func New() *Store {
	return &Store{now: func() time.Time { return time.Now().UTC() }}
}

// NewFromFile loads the snapshot at path if it exists and writes every change back to it.
func NewFromFile(path string) (*Store, error) {
	s := New()
	s.path = path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap map[string]json.RawMessage
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	var expenses []core.Expense
	if raw, ok := snap[ExpensesKey]; ok {
		if err := json.Unmarshal(raw, &expenses); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ExpensesKey, err)
		}
	}
	if raw, ok := snap[BudgetsKey]; ok {
		if err := json.Unmarshal(raw, &s.budgets); err != nil {
			return nil, fmt.Errorf("decode %s: %w", BudgetsKey, err)
		}
	}
	for _, e := range expenses {
		s.seq++
		s.items = append(s.items, record{Expense: e, seq: s.seq})
	}
	return s, nil
}

// Create stores the expense and returns it with id and timestamps.
func (s *Store) Create(_ context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	e.ID = uuid.NewString()
	e.CreatedAt, e.UpdatedAt = now, now
	s.seq++
	s.items = append(s.items, record{Expense: e, seq: s.seq})
	if err := s.persist(); err != nil {
		return core.Expense{}, core.WrapStore("create", err)
	}
	return e, nil
}

func (s *Store) Get(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.Expense{}, core.ErrNotFound
	}
	return s.items[i].Expense, nil
}

func (s *Store) ListByDate(_ context.Context, date core.Date) ([]core.Expense, error) {
	key := date.String()
	return s.list(func(e core.Expense) bool { return e.Date.String() == key }), nil
}

func (s *Store) ListRange(_ context.Context, start, end core.Date) ([]core.Expense, error) {
	lo, hi := start.String(), end.String()
	return s.list(func(e core.Expense) bool {
		d := e.Date.String()
		return d >= lo && d <= hi
	}), nil
}

func (s *Store) Update(_ context.Context, id string, u core.ExpenseUpdate) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.Expense{}, core.ErrNotFound
	}
	prev := s.items[i].Expense
	updated := u.Apply(prev)
	updated.UpdatedAt = s.now()
	s.items[i].Expense = updated
	if err := s.persist(); err != nil {
		s.items[i].Expense = prev
		return core.Expense{}, core.WrapStore("update", err)
	}
	return updated, nil
}

func (s *Store) Delete(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.Expense{}, core.ErrNotFound
	}
	removed := s.items[i]
	s.items = append(s.items[:i:i], s.items[i+1:]...)
	if err := s.persist(); err != nil {
		s.items = append(s.items[:i:i], append([]record{removed}, s.items[i:]...)...)
		return core.Expense{}, core.WrapStore("delete", err)
	}
	return removed.Expense, nil
}

func (s *Store) SumAmount(ctx context.Context, start, end core.Date) (core.Money, error) {
	items, _ := s.ListRange(ctx, start, end)
	var sum core.Money
	for _, e := range items {
		sum = sum.Add(e.Amount)
	}
	return sum, nil
}

func (s *Store) CreateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = uuid.NewString()
	b.CreatedAt = s.now()
	s.budgets = append(s.budgets, b)
	if err := s.persist(); err != nil {
		s.budgets = s.budgets[:len(s.budgets)-1]
		return core.Budget{}, core.WrapStore("create budget", err)
	}
	return b, nil
}

func (s *Store) ListBudgets(_ context.Context) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Budget, 0, len(s.budgets))
	for i := len(s.budgets) - 1; i >= 0; i-- {
		out = append(out, s.budgets[i])
	}
	return out, nil
}

func (s *Store) LatestBudget(_ context.Context, t core.BudgetType) (core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.budgets) - 1; i >= 0; i-- {
		if s.budgets[i].Type == t {
			return s.budgets[i], nil
		}
	}
	return core.Budget{}, core.ErrNotFound
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) indexOf(id string) int {
	for i, r := range s.items {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// list filters under the lock and orders by date, then createdAt and
// insertion sequence, newest first.
func (s *Store) list(keep func(core.Expense) bool) []core.Expense {
	s.mu.Lock()
	matched := make([]record, 0)
	for _, r := range s.items {
		if keep(r.Expense) {
			matched = append(matched, r)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if da, db := a.Date.String(), b.Date.String(); da != db {
			return da < db
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.seq > b.seq
	})
	out := make([]core.Expense, len(matched))
	for i, r := range matched {
		out[i] = r.Expense
	}
	return out
}

// persist writes the snapshot atomically. Callers hold the lock.
func (s *Store) persist() error {
	if s.path == "" {
		return nil
	}
	expenses := make([]core.Expense, len(s.items))
	for i, r := range s.items {
		expenses[i] = r.Expense
	}
	data, err := json.MarshalIndent(map[string]any{
		ExpensesKey: expenses,
		BudgetsKey:  s.budgets,
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
