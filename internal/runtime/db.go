package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mohammad-safakhou/studybuddy/config"
	"github.com/mohammad-safakhou/studybuddy/internal/store"
)

// OpenStore connects the record store selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StorageConfig) (*store.Store, error) {
	dsn := cfg.DSN()
	switch cfg.Driver {
	case store.DriverSQLite:
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
	case store.DriverPostgres:
		if err := cfg.Postgres.Validate(); err != nil {
			return nil, fmt.Errorf("postgres configuration incomplete: %w", err)
		}
	}
	timeout := cfg.Postgres.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	openCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	st, err := store.Open(openCtx, cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return st, nil
}
