package worker

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

type fakeMirror struct {
	mu   sync.Mutex
	rows map[string]core.Expense
	err  error
}

func newFakeMirror() *fakeMirror { return &fakeMirror{rows: map[string]core.Expense{}} }

func (m *fakeMirror) Upsert(_ context.Context, e core.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows[e.ID] = e
	return nil
}

func (m *fakeMirror) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.rows, id)
	return nil
}

func expense(id string, cents int64) core.Expense {
	return core.Expense{ID: id, Date: core.NewDate(2025, 9, 5), Amount: core.Money{Cents: cents}}
}

func TestHandleEvent(t *testing.T) {
	mirror := newFakeMirror()
	w := NewSyncWorker(mirror, nil)
	ctx := context.Background()

	require.NoError(t, w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.ExpenseCreated, expense("a", 100))))
	require.NoError(t, w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.ExpenseUpdated, expense("a", 250))))
	assert.Equal(t, int64(250), mirror.rows["a"].Amount.Cents)

	require.NoError(t, w.HandleEvent(ctx, amqp.NewExpenseEvent(amqp.ExpenseDeleted, expense("a", 250))))
	assert.NotContains(t, mirror.rows, "a")

	require.NoError(t, w.HandleEvent(ctx, amqp.ExpenseEvent{Type: "expense.archived", ID: "a"}))

	up, rm, failed := w.Stats()
	assert.Equal(t, [3]int64{2, 1, 0}, [3]int64{up, rm, failed})
}

func TestHandleEventFailureIsReturned(t *testing.T) {
	mirror := newFakeMirror()
	mirror.err = errors.New("quota exceeded")
	w := NewSyncWorker(mirror, nil)

	err := w.HandleEvent(context.Background(), amqp.NewExpenseEvent(amqp.ExpenseCreated, expense("a", 1)))
	assert.ErrorContains(t, err, "quota exceeded")
	_, _, failed := w.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestBackfill(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	for _, d := range []core.Date{core.NewDate(2025, 8, 31), core.NewDate(2025, 9, 1), core.NewDate(2025, 9, 30)} {
		_, err := store.Create(ctx, core.Expense{Date: d, Amount: core.Money{Cents: 1}})
		require.NoError(t, err)
	}
	mirror := newFakeMirror()
	w := NewSyncWorker(mirror, nil)

	n, err := w.Backfill(ctx, store, core.NewDate(2025, 9, 1), core.NewDate(2025, 9, 30))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, mirror.rows, 2)
}

type fakeConsumer struct {
	events []amqp.ExpenseEvent
}

func (c *fakeConsumer) ConsumeExpenseEvents(ctx context.Context, handler amqp.Handler) error {
	for _, ev := range c.events {
		if err := handler(ctx, ev); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

func TestRunStopsOnCancel(t *testing.T) {
	mirror := newFakeMirror()
	w := NewSyncWorker(mirror, nil)
	consumer := &fakeConsumer{events: []amqp.ExpenseEvent{
		amqp.NewExpenseEvent(amqp.ExpenseCreated, expense("a", 1)),
		amqp.NewExpenseEvent(amqp.ExpenseCreated, expense("b", 2)),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer, 5*time.Millisecond) }()

	require.Eventually(t, func() bool {
		up, _, _ := w.Stats()
		return up == 2
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
