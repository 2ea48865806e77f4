package backend

import (
	"context"
	"fmt"
	"log/slog"

	"expensecal/internal/storage"
	"expensecal/internal/storage/memory"
	"expensecal/internal/storage/mongo"
	"expensecal/internal/storage/sqlstore"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		return f.createMemoryBackend(config)
	case SQLiteBackend:
		store, err := sqlstore.OpenSQLite(ctx, config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return result(store), nil
	case PostgresBackend:
		store, err := sqlstore.OpenPostgres(ctx, config.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize PostgreSQL store: %w", err)
		}
		f.logger.Info("Initialized PostgreSQL backend")
		return result(store), nil
	case MongoBackend:
		store, err := mongo.Open(ctx, config.MongoURL, config.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MongoDB store: %w", err)
		}
		f.logger.Info("Initialized MongoDB backend", "database", config.MongoDB)
		return result(store), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	if config.SnapshotPath == "" {
		f.logger.Info("Initialized memory backend")
		return result(memory.New()), nil
	}

	store, err := memory.NewFromFile(config.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory snapshot: %w", err)
	}
	f.logger.Info("Initialized memory backend", "snapshot", config.SnapshotPath)
	return result(store), nil
}

func result(store storage.Store) *BackendResult {
	return &BackendResult{Store: store, Cleanup: store.Close}
}
