package dbconnect

import (
	"fmt"

	"openprices_sync/config"
)

// NewDatabase picks the connector matching the configured driver.
func NewDatabase(cfg config.DatabaseConfig) (Database, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPgConnector(&cfg.Postgres), nil
	case config.DriverSQLite:
		return NewSQLiteConnector(&cfg.SQLite), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
