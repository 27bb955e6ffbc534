package migration

import (
	"database/sql"
	"fmt"

	"openprices_sync/pkg/dbconnect"
)

type MigrationInterface interface {
	UpMigration(db *sql.DB, dialect dbconnect.Dialect) error
}

// Apply runs migrations in order and stops at the first failure.
func Apply(db *sql.DB, dialect dbconnect.Dialect, migrations ...MigrationInterface) error {
	for i, m := range migrations {
		if err := m.UpMigration(db, dialect); err != nil {
			return fmt.Errorf("migration %d (%T): %w", i, m, err)
		}
	}
	return nil
}
