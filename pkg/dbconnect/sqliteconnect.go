package dbconnect

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"openprices_sync/config"
)

type SQLiteDatabase struct {
	cfg *config.SQLiteConfig
	db  *sql.DB
	mu  sync.Mutex
}

func NewSQLiteConnector(cfg *config.SQLiteConfig) *SQLiteDatabase {
	return &SQLiteDatabase{cfg: cfg}
}

func (s *SQLiteDatabase) Dialect() Dialect { return DialectSQLite }

func (s *SQLiteDatabase) Connect() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	if dir := filepath.Dir(s.cfg.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", s.cfg.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", s.cfg.Path, err)
	}
	// SQLite allows one writer; a single connection also keeps transactions
	// and plain queries from contending for the file lock.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", s.cfg.Path, err)
	}

	s.db = db
	return s.db, nil
}

func (s *SQLiteDatabase) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return fmt.Errorf("database connection is not established")
	}
	return s.db.Ping()
}

func (s *SQLiteDatabase) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
