package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"TWMetrics/internal/calculator"
	"TWMetrics/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder appends report history to a SQLite database. It may share
// the file of the price cache; its tables are separate.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}

	r := &SQLiteRecorder{db: db, now: time.Now}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshot_history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			sid         TEXT NOT NULL,
			date        TEXT NOT NULL,
			close       REAL,
			change      REAL,
			change_pct  REAL,
			high_20     REAL,
			low_20      REAL,
			position    REAL,
			rsi_14      REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_sid ON snapshot_history(sid, date)`,

		`CREATE TABLE IF NOT EXISTS return_history (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp     INTEGER NOT NULL,
			sid           TEXT NOT NULL,
			metric        TEXT NOT NULL,
			n_day_average INTEGER,
			start_date    TEXT,
			start_price   REAL,
			horizon       INTEGER NOT NULL,
			end_date      TEXT,
			end_price     REAL,
			day_range     INTEGER,
			value         REAL,
			index_value   REAL,
			adjusted      REAL,
			error         TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_return_sid ON return_history(sid, start_date)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordSnapshot(s calculator.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO snapshot_history
		(timestamp, sid, date, close, change, change_pct, high_20, low_20, position, rsi_14)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.now().Unix(), s.SecurityID, model.FormatDate(s.Date), s.Close, s.Change, s.ChangePct,
		s.High20, s.Low20, s.Position, s.RSI14,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot_history: %w", err)
	}
	return nil
}

// RecordReturn writes one row per horizon. Absent values are stored as NULL.
func (r *SQLiteRecorder) RecordReturn(report *calculator.ReturnReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ts := r.now().Unix()
	var startDate sql.NullString
	if report.StartErr == nil {
		startDate = sql.NullString{String: model.FormatDate(report.Start.Date), Valid: true}
	}
	for _, h := range report.Horizons {
		var endDate, errText sql.NullString
		if !h.EndDate.IsZero() {
			endDate = sql.NullString{String: model.FormatDate(h.EndDate), Valid: true}
		}
		if h.Err != nil {
			errText = sql.NullString{String: h.Err.Error(), Valid: true}
		}
		if _, err := tx.Exec(`INSERT INTO return_history
			(timestamp, sid, metric, n_day_average, start_date, start_price, horizon,
			 end_date, end_price, day_range, value, index_value, adjusted, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ts, report.SecurityID, string(report.Metric), report.NDayAverage, startDate, report.Start.Price, h.Horizon,
			endDate, h.EndPrice, h.DayRange, nullFloat(h.Value), nullFloat(h.IndexValue), nullFloat(h.Adjusted), errText,
		); err != nil {
			return fmt.Errorf("insert return_history: %w", err)
		}
	}
	return tx.Commit()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// Close closes the database connection.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}
