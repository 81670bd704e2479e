package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open returns the store for the configured driver. The sqlite database lives
// in dataDir; postgres needs a connection string.
func Open(ctx context.Context, driver, dataDir, dsn string) (Store, error) {
	switch driver {
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("a connection string is required for postgres")
		}
		return NewPostgresStore(ctx, dsn)
	case DriverSQLite, "":
		if err := os.MkdirAll(dataDir, 0700); err != nil {
			return nil, fmt.Errorf("failed creating data dir: %w", err)
		}
		return NewSQLiteStore(filepath.Join(dataDir, "pipedeck.db"))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
