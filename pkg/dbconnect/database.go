package dbconnect

import "database/sql"

// Database hands out one shared *sql.DB. Callers must not close it
// themselves; Close releases it for everyone.
type Database interface {
	Connect() (*sql.DB, error)
	Ping() error
	Close() error
	Dialect() Dialect
}
