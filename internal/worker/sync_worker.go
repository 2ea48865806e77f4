// Package worker applies expense change events to the spreadsheet mirror.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"expensecal/internal/amqp"
	"expensecal/internal/core"
	applog "expensecal/internal/log"
	"expensecal/internal/sheets"
	"expensecal/internal/storage"
)

// Consumer delivers events until ctx ends; *amqp.Client implements it.
type Consumer interface {
	ConsumeExpenseEvents(ctx context.Context, handler amqp.Handler) error
}

// SyncWorker mirrors expense events into a sheets.Mirror.
type SyncWorker struct {
	mirror sheets.Mirror
	logger *slog.Logger

	upserted atomic.Int64
	removed  atomic.Int64
	failed   atomic.Int64
}

func NewSyncWorker(mirror sheets.Mirror, logger *slog.Logger) *SyncWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyncWorker{mirror: mirror, logger: logger.With(applog.FieldComponent, applog.ComponentWorker)}
}

// HandleEvent applies one event. Errors are returned so the message is requeued.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev amqp.ExpenseEvent) error {
	var err error
	switch ev.Type {
	case amqp.ExpenseCreated, amqp.ExpenseUpdated:
		if err = w.mirror.Upsert(ctx, ev.Expense); err == nil {
			w.upserted.Add(1)
		}
	case amqp.ExpenseDeleted:
		if err = w.mirror.Remove(ctx, ev.ID); err == nil {
			w.removed.Add(1)
		}
	default:
		// Unknown types are acked; retrying cannot help.
		w.logger.WarnContext(ctx, "Ignoring event of unknown type", "type", ev.Type, "expense_id", ev.ID)
		return nil
	}
	if err != nil {
		w.failed.Add(1)
		return fmt.Errorf("mirror %s %s: %w", ev.Type, ev.ID, err)
	}
	w.logger.InfoContext(ctx, "Mirrored expense event",
		applog.NewFields().
			WithOperation(applog.OpSync).
			With(applog.FieldEventType, string(ev.Type)).
			WithExpense(ev.ID, ev.Expense.Date.String(), ev.Expense.Amount.Cents, ev.Expense.Label).
			ToSlice()...)
	return nil
}

// Backfill upserts every stored expense in [start, end], for a mirror that
// missed events while the worker was down.
func (w *SyncWorker) Backfill(ctx context.Context, store storage.ExpenseStore, start, end core.Date) (int, error) {
	expenses, err := store.ListRange(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("list expenses for backfill: %w", err)
	}
	for i, e := range expenses {
		if err := w.mirror.Upsert(ctx, e); err != nil {
			return i, fmt.Errorf("backfill %s: %w", e.ID, err)
		}
	}
	w.upserted.Add(int64(len(expenses)))
	w.logger.InfoContext(ctx, "Backfill complete",
		applog.FieldOperation, applog.OpBackfill,
		"count", len(expenses),
		"start", start.String(),
		"end", end.String())
	return len(expenses), nil
}

// Stats returns the number of upserts, removals and failures so far.
func (w *SyncWorker) Stats() (upserted, removed, failed int64) {
	return w.upserted.Load(), w.removed.Load(), w.failed.Load()
}

// Run consumes events and logs a heartbeat every interval until ctx ends.
func (w *SyncWorker) Run(ctx context.Context, consumer Consumer, heartbeat time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return consumer.ConsumeExpenseEvents(gctx, w.HandleEvent)
	})

	g.Go(func() error {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				up, rm, failed := w.Stats()
				w.logger.InfoContext(gctx, "Worker heartbeat", "upserted", up, "removed", rm, "failed", failed)
			}
		}
	})

	return g.Wait()
}
