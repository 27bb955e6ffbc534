package infrastructure

import (
	"database/sql"
	"fmt"
	"log"

	"openprices_sync/pkg/dbconnect"
	"openprices_sync/pkg/dbconnect/migration"
)

const (
	ProductsTableMigration   = "products.table"
	ProductsIndexesMigration = "products.indexes"
	SyncRunsTableMigration   = "sync_runs.table"
)

// All returns every migration the sync engine depends on, in apply order.
func All() []migration.MigrationInterface {
	return []migration.MigrationInterface{
		&MigrationsTable{},
		&ProductsTable{},
		&ProductsIndexes{},
		&SyncRunsTable{},
	}
}

type MigrationsTable struct{}

func (m *MigrationsTable) UpMigration(db *sql.DB, dialect dbconnect.Dialect) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name VARCHAR(255) PRIMARY KEY,
			time TIMESTAMP NOT NULL
		);`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

type ProductsTable struct{}

func (m *ProductsTable) UpMigration(db *sql.DB, dialect dbconnect.Dialect) error {
	if ok, err := checkAndSkipMigration(db, dialect, ProductsTableMigration); err != nil {
		return err
	} else if ok {
		return nil
	}

	query := `
		CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			code VARCHAR NOT NULL UNIQUE,
			source VARCHAR(10),
			source_last_synced TIMESTAMPTZ,
			product_name VARCHAR,
			image_url VARCHAR,
			product_quantity INTEGER,
			product_quantity_unit VARCHAR,
			categories_tags VARCHAR[],
			brands VARCHAR,
			brands_tags VARCHAR[],
			labels_tags VARCHAR[],
			nutriscore_grade VARCHAR,
			ecoscore_grade VARCHAR,
			nova_group INTEGER CHECK (nova_group >= 0),
			unique_scans_n INTEGER DEFAULT 0 CHECK (unique_scans_n >= 0),
			price_count INTEGER NOT NULL DEFAULT 0 CHECK (price_count >= 0),
			created TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`
	if dialect == dbconnect.DialectSQLite {
		query = `
		CREATE TABLE IF NOT EXISTS products (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT NOT NULL UNIQUE,
			source TEXT,
			source_last_synced DATETIME,
			product_name TEXT,
			image_url TEXT,
			product_quantity INTEGER,
			product_quantity_unit TEXT,
			categories_tags TEXT,
			brands TEXT,
			brands_tags TEXT,
			labels_tags TEXT,
			nutriscore_grade TEXT,
			ecoscore_grade TEXT,
			nova_group INTEGER CHECK (nova_group >= 0),
			unique_scans_n INTEGER DEFAULT 0 CHECK (unique_scans_n >= 0),
			price_count INTEGER NOT NULL DEFAULT 0 CHECK (price_count >= 0),
			created DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`
	}

	if err := executeAndMarkMigration(db, dialect, query, ProductsTableMigration); err != nil {
		return err
	}
	log.Printf("Migration '%s' completed successfully.", ProductsTableMigration)
	return nil
}

type ProductsIndexes struct{}

func (m *ProductsIndexes) UpMigration(db *sql.DB, dialect dbconnect.Dialect) error {
	if ok, err := checkAndSkipMigration(db, dialect, ProductsIndexesMigration); err != nil {
		return err
	} else if ok {
		return nil
	}

	// ExistingCodes scans by source on every run.
	query := `CREATE INDEX IF NOT EXISTS products_source_idx ON products (source);`
	if err := executeAndMarkMigration(db, dialect, query, ProductsIndexesMigration); err != nil {
		return err
	}
	log.Printf("Migration '%s' completed successfully.", ProductsIndexesMigration)
	return nil
}

type SyncRunsTable struct{}

func (m *SyncRunsTable) UpMigration(db *sql.DB, dialect dbconnect.Dialect) error {
	if ok, err := checkAndSkipMigration(db, dialect, SyncRunsTableMigration); err != nil {
		return err
	} else if ok {
		return nil
	}

	timestamp := "TIMESTAMPTZ"
	if dialect == dbconnect.DialectSQLite {
		timestamp = "DATETIME"
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS sync_runs (
			run_id VARCHAR(36) PRIMARY KEY,
			flavor VARCHAR(10) NOT NULL,
			status VARCHAR(16) NOT NULL,
			started_at %[1]s NOT NULL,
			finished_at %[1]s,
			processed INTEGER NOT NULL DEFAULT 0,
			added INTEGER NOT NULL DEFAULT 0,
			updated INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			committed INTEGER NOT NULL DEFAULT 0,
			written INTEGER NOT NULL DEFAULT 0,
			error TEXT
		);`, timestamp)

	if err := executeAndMarkMigration(db, dialect, query, SyncRunsTableMigration); err != nil {
		return err
	}
	log.Printf("Migration '%s' completed successfully.", SyncRunsTableMigration)
	return nil
}
