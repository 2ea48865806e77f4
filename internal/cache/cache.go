// Package cache holds the server-side month cache: a generic LRU with TTL
// and a manager that sweeps expired entries.
package cache

import (
	"context"
	"log/slog"
	"time"

	applog "expensecal/internal/log"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	// DeleteFunc removes every key for which match returns true.
	DeleteFunc(match func(key string) bool) int
	Size() int
	Stats() Stats
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// Manager sweeps expired entries from the registered caches.
type Manager struct {
	caches []Cleaner
	logger *slog.Logger
}

// NewManager creates a new cache manager
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With(applog.FieldComponent, applog.ComponentCache)}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// Sweep cleans every registered cache once and returns the number of removed entries.
func (m *Manager) Sweep() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Run sweeps on every tick until ctx is done. It always returns nil so it can
// sit in an errgroup next to the HTTP server.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				m.logger.Debug("Expired cache entries removed", "count", n)
			}
			m.logStats()
		case <-ctx.Done():
			return nil
		}
	}
}

type statser interface {
	Stats() Stats
}

func (m *Manager) logStats() {
	for i, c := range m.caches {
		sc, ok := c.(statser)
		if !ok {
			continue
		}
		st := sc.Stats()
		m.logger.Debug("Cache stats",
			"cache", i,
			"hits", st.Hits,
			"misses", st.Misses,
			"evictions", st.Evictions,
			"expired", st.Expired,
		)
	}
}
