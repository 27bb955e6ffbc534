package infrastructure

import (
	"database/sql"
	"fmt"
	"log"

	"openprices_sync/pkg/dbconnect"
)

func checkAndSkipMigration(db *sql.DB, dialect dbconnect.Dialect, migrationName string) (bool, error) {
	var migrationExists bool
	err := db.QueryRow(
		dialect.Rebind("SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = ?)"),
		migrationName,
	).Scan(&migrationExists)
	if err != nil {
		return migrationExists, fmt.Errorf("failed to check migration status: %w", err)
	}
	if migrationExists {
		log.Printf("Migration '%s' already completed. Skipping.", migrationName)
	}
	return migrationExists, nil
}

func executeAndMarkMigration(db *sql.DB, dialect dbconnect.Dialect, query string, migrationName string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin migration '%s': %w", migrationName, err)
	}
	defer tx.Rollback()

	if _, err = tx.Exec(query); err != nil {
		return fmt.Errorf("failed to execute migration '%s': %w", migrationName, err)
	}
	_, err = tx.Exec(
		dialect.Rebind("INSERT INTO schema_migrations (name, time) VALUES (?, CURRENT_TIMESTAMP)"),
		migrationName,
	)
	if err != nil {
		return fmt.Errorf("failed to mark migration '%s' as complete: %w", migrationName, err)
	}
	return tx.Commit()
}
