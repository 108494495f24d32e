package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB owns the SQLite handle shared by the price and index stores.
type DB struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// Open opens (or creates) the SQLite database and runs migrations.
// Use ":memory:" for a throwaway database.
func Open(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	s := &DB{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", dbPath)
	return s, nil
}

// SetClock overrides the clock used for last_updated columns.
func (s *DB) SetClock(now func() time.Time) { s.now = now }

func (s *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS stock_daily_price (
			sid           TEXT NOT NULL,
			month         TEXT NOT NULL,
			date          TEXT NOT NULL,
			capacity      INTEGER,
			turnover      INTEGER,
			last_close    REAL,
			open          REAL,
			high          REAL,
			low           REAL,
			close         REAL,
			change        REAL,
			"transaction" INTEGER,
			updated_date  TEXT,
			PRIMARY KEY (sid, date)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_sid_month ON stock_daily_price(sid, month)`,

		`CREATE TABLE IF NOT EXISTS stock_header (
			sid          TEXT NOT NULL,
			month        TEXT NOT NULL,
			updated_date TEXT,
			PRIMARY KEY (sid, month)
		)`,

		`CREATE TABLE IF NOT EXISTS TWII_daily_price (
			date           TEXT PRIMARY KEY,
			open           REAL,
			high           REAL,
			low            REAL,
			close          REAL,
			volume         REAL,
			dividends      REAL,
			stock_splits   REAL,
			previous_close REAL,
			change         REAL,
			updated_date   TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS TWII_header (
			id           INTEGER PRIMARY KEY CHECK (id = 1),
			covered_from TEXT NOT NULL,
			updated_date TEXT
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success.
func (s *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Prices returns the price store backed by this database.
func (s *DB) Prices() *PriceStore { return &PriceStore{db: s} }

// Index returns the index store backed by this database.
func (s *DB) Index() *IndexStore { return &IndexStore{db: s} }

func (s *DB) Close() error {
	log.Println("[INFO] closing sqlite store")
	return s.db.Close()
}
