package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"expensecal/internal/amqp"
	"expensecal/internal/backend"
	"expensecal/internal/cache"
	"expensecal/internal/config"
	"expensecal/internal/core"
	apphttp "expensecal/internal/http"
	applog "expensecal/internal/log"
	"expensecal/internal/services"
)

const (
	shutdownTimeout    = 30 * time.Second
	cacheSweepInterval = time.Minute
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadAndValidateConfig()
			if err != nil {
				return err
			}
			logger := SetupLogger(cfg)
			ctx, cancel := SignalContext(cmd.Context(), logger)
			defer cancel()
			return runServe(ctx, cfg, logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, logger *applog.Logger) error {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Slog()).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	errLog := applog.NewStructuredLogger(logger)
	defer func() {
		if err := res.Cleanup(); err != nil {
			errLog.LogError(ctx, "Failed to close store", err, applog.ComponentStorage, applog.OpShutdown, nil)
		}
	}()

	opts := services.Options{
		Categories:   core.NewCategories(cfg.CategoryAllowlist),
		CacheTTL:     cfg.CacheTTL,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger.Logger,
	}
	if cfg.AMQPURL != "" {
		publisher, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return fmt.Errorf("connect to AMQP: %w", err)
		}
		defer publisher.Close()
		opts.Publisher = publisher
		logger.Info("Publishing expense events", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP_URL not set, expense events disabled")
	}

	svc := services.NewExpenseService(res.Store, opts)
	srv := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})

	manager := cache.NewManager(logger.Logger)
	manager.Register(svc.Cache())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting expensecal server",
			applog.FieldOperation, applog.OpStartup,
			"port", cfg.Port,
			"backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return manager.Run(gctx, cacheSweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info("Server stopped gracefully", applog.FieldOperation, applog.OpShutdown)
		return nil
	})
	return g.Wait()
}
