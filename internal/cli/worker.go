package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"expensecal/internal/amqp"
	"expensecal/internal/backend"
	"expensecal/internal/config"
	"expensecal/internal/core"
	applog "expensecal/internal/log"
	"expensecal/internal/sheets/google"
	"expensecal/internal/worker"
)

type workerOptions struct {
	backfillFrom string
	backfillTo   string
}

func newWorkerCommand() *cobra.Command {
	opts := &workerOptions{}

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Mirror expense events into Google Sheets",
		Long: `Consumes expense events from AMQP and mirrors every created, updated or
deleted expense into a Google Sheet. With --backfill-from the worker first
copies the stored expenses of that range into the sheet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadAndValidateConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateWorker(); err != nil {
				return err
			}
			logger := SetupLogger(cfg)
			ctx, cancel := SignalContext(cmd.Context(), logger)
			defer cancel()
			return runWorker(ctx, cfg, logger, opts)
		},
	}

	cmd.Flags().StringVar(&opts.backfillFrom, "backfill-from", "", "first day (YYYY-MM-DD) to copy from the store before consuming")
	cmd.Flags().StringVar(&opts.backfillTo, "backfill-to", "", "last day of the backfill (defaults to --backfill-from)")
	return cmd
}

// backfillRange parses the flags; ok is false when no backfill was asked for.
func (o *workerOptions) backfillRange() (start, end core.Date, ok bool, err error) {
	if o.backfillFrom == "" {
		if o.backfillTo != "" {
			return start, end, false, fmt.Errorf("--backfill-to requires --backfill-from")
		}
		return start, end, false, nil
	}
	if start, err = core.ParseDate(o.backfillFrom); err != nil {
		return start, end, false, fmt.Errorf("--backfill-from: %w", err)
	}
	end = start
	if o.backfillTo != "" {
		if end, err = core.ParseDate(o.backfillTo); err != nil {
			return start, end, false, fmt.Errorf("--backfill-to: %w", err)
		}
	}
	if end.Before(start) {
		return start, end, false, fmt.Errorf("backfill range ends before it starts")
	}
	return start, end, true, nil
}

func runWorker(ctx context.Context, cfg *config.Config, logger *applog.Logger, opts *workerOptions) error {
	start, end, backfill, err := opts.backfillRange()
	if err != nil {
		return err
	}

	mirror, err := google.New(ctx, google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CredentialsFile: cfg.GoogleCredentialsFile,
	})
	if err != nil {
		return fmt.Errorf("create sheets client: %w", err)
	}
	w := worker.NewSyncWorker(mirror, logger.Logger)

	if backfill {
		bcfg, err := backend.FromAppConfig(cfg)
		if err != nil {
			return err
		}
		res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Slog()).CreateBackend(ctx, bcfg)
		if err != nil {
			return err
		}
		n, err := w.Backfill(ctx, res.Store, start, end)
		if cerr := res.Cleanup(); cerr != nil {
			applog.NewStructuredLogger(logger).LogError(ctx, "Failed to close store after backfill", cerr,
				applog.ComponentStorage, applog.OpBackfill, applog.NewFields().WithPeriod(start.Year(), 0))
		}
		if err != nil {
			return fmt.Errorf("backfill: %w", err)
		}
		logger.Info("Backfill complete", "from", start.String(), "to", end.String(), "expenses", n)
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("connect to AMQP: %w", err)
	}
	defer consumer.Close()

	logger.Info("Sheets mirror worker started",
		applog.FieldOperation, applog.OpStartup,
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName,
		"queue", cfg.AMQPQueue,
	)
	if err := w.Run(ctx, consumer, cfg.HeartbeatInterval); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("Sheets mirror worker stopped", applog.FieldOperation, applog.OpShutdown)
	return nil
}
