package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TWMetrics/internal/model"
)

// IndexStore caches the daily bars of the broad-market index, keyed by date.
type IndexStore struct {
	db *DB
}

const indexColumns = `date, open, high, low, close, volume, dividends, stock_splits, previous_close, change, updated_date`

// HasMonth reports whether any index bar of the month (YYYYMM) is stored.
func (x *IndexStore) HasMonth(ctx context.Context, month string) (bool, error) {
	if len(month) != 6 {
		return false, fmt.Errorf("%w: month key %q must be YYYYMM", model.ErrInvalidInput, month)
	}
	prefix := month[:4] + "-" + month[4:] + "-%"
	var n int
	if err := x.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM TWII_daily_price WHERE date LIKE ?`, prefix).Scan(&n); err != nil {
		return false, fmt.Errorf("query index month %s: %w", month, err)
	}
	return n > 0, nil
}

// Upsert inserts or replaces bars by date.
func (x *IndexStore) Upsert(ctx context.Context, bars []model.IndexBar) error {
	return x.db.withTx(ctx, func(tx *sql.Tx) error {
		return x.insert(ctx, tx, bars)
	})
}

// RebuildFrom deletes every bar dated on or after from.
func (x *IndexStore) RebuildFrom(ctx context.Context, from time.Time) error {
	return x.db.withTx(ctx, func(tx *sql.Tx) error {
		return deleteIndex(ctx, tx, from, time.Time{})
	})
}

// Replace deletes the stored window [from, to] and inserts bars in one
// transaction. A zero to leaves the window open ended, as RebuildFrom does.
func (x *IndexStore) Replace(ctx context.Context, from, to time.Time, bars []model.IndexBar) error {
	return x.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := deleteIndex(ctx, tx, from, to); err != nil {
			return err
		}
		return x.insert(ctx, tx, bars)
	})
}

func deleteIndex(ctx context.Context, tx *sql.Tx, from, to time.Time) error {
	var err error
	if to.IsZero() {
		_, err = tx.ExecContext(ctx, `DELETE FROM TWII_daily_price WHERE date >= ?`, model.FormatDate(from))
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM TWII_daily_price WHERE date >= ? AND date <= ?`,
			model.FormatDate(from), model.FormatDate(to))
	}
	if err != nil {
		return fmt.Errorf("delete index from %s: %w", model.FormatDate(from), err)
	}
	return nil
}

func (x *IndexStore) insert(ctx context.Context, tx *sql.Tx, bars []model.IndexBar) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO TWII_daily_price (`+indexColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare index insert: %w", err)
	}
	defer stmt.Close()

	updated := model.FormatTimestamp(x.db.now())
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, model.FormatDate(b.Date), b.Open, b.High, b.Low, b.Close,
			b.Volume, b.Dividends, b.StockSplits, b.PreviousClose, b.Change, updated); err != nil {
			return fmt.Errorf("insert index %s: %w", model.FormatDate(b.Date), err)
		}
	}
	return nil
}

// ReadRange returns bars dated within [from, to], oldest first.
func (x *IndexStore) ReadRange(ctx context.Context, from, to time.Time) ([]model.IndexBar, error) {
	rows, err := x.db.db.QueryContext(ctx, `SELECT `+indexColumns+`
		FROM TWII_daily_price WHERE date >= ? AND date <= ? ORDER BY date`,
		model.FormatDate(from), model.FormatDate(to))
	if err != nil {
		return nil, fmt.Errorf("query index range: %w", err)
	}
	defer rows.Close()

	var bars []model.IndexBar
	for rows.Next() {
		b, err := scanIndex(rows)
		if err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// CloseOnOrBefore returns the latest bar dated on or before date.
// The bool is false when no such bar exists.
func (x *IndexStore) CloseOnOrBefore(ctx context.Context, date time.Time) (model.IndexBar, bool, error) {
	row := x.db.db.QueryRowContext(ctx, `SELECT `+indexColumns+`
		FROM TWII_daily_price WHERE date <= ? ORDER BY date DESC LIMIT 1`, model.FormatDate(date))
	b, err := scanIndex(row)
	if err == sql.ErrNoRows {
		return model.IndexBar{}, false, nil
	}
	if err != nil {
		return model.IndexBar{}, false, err
	}
	return b, true, nil
}

// LatestUpdate returns the most recent updated_date, if the table has rows.
func (x *IndexStore) LatestUpdate(ctx context.Context) (time.Time, bool, error) {
	var latest sql.NullString
	if err := x.db.db.QueryRowContext(ctx,
		`SELECT MAX(updated_date) FROM TWII_daily_price`).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("query index latest update: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	ts, err := model.ParseTimestamp(latest.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return ts, true, nil
}

// Bounds returns the earliest and latest stored dates.
func (x *IndexStore) Bounds(ctx context.Context) (first, last time.Time, ok bool, err error) {
	var lo, hi sql.NullString
	if err := x.db.db.QueryRowContext(ctx,
		`SELECT MIN(date), MAX(date) FROM TWII_daily_price`).Scan(&lo, &hi); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("query index bounds: %w", err)
	}
	if !lo.Valid || !hi.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	if first, err = model.ParseTimestamp(lo.String); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	if last, err = model.ParseTimestamp(hi.String); err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	return first, last, true, nil
}

// CoveredFrom returns the earliest date from which the provider has been
// asked for every bar up to the time of the request. A bar missing in that
// span does not exist upstream.
func (x *IndexStore) CoveredFrom(ctx context.Context) (time.Time, bool, error) {
	var from string
	err := x.db.db.QueryRowContext(ctx, `SELECT covered_from FROM TWII_header WHERE id = 1`).Scan(&from)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query index coverage: %w", err)
	}
	t, err := model.ParseDate(from)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// MarkCovered lowers the covered bound to from when from is earlier. Only
// open-ended fetches may mark coverage. A zero from marks the provider's
// full history as fetched.
func (x *IndexStore) MarkCovered(ctx context.Context, from time.Time) error {
	return x.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO TWII_header (id, covered_from, updated_date) VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				covered_from = MIN(covered_from, excluded.covered_from),
				updated_date = excluded.updated_date`,
			model.FormatDate(from), model.FormatTimestamp(x.db.now()))
		if err != nil {
			return fmt.Errorf("mark index coverage from %s: %w", model.FormatDate(from), err)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIndex(s scanner) (model.IndexBar, error) {
	var (
		b             model.IndexBar
		date, updated string
	)
	if err := s.Scan(&date, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.Dividends,
		&b.StockSplits, &b.PreviousClose, &b.Change, &updated); err != nil {
		if err == sql.ErrNoRows {
			return b, err
		}
		return b, fmt.Errorf("scan index bar: %w", err)
	}
	var err error
	if b.Date, err = model.ParseTimestamp(date); err != nil {
		return b, err
	}
	if b.LastUpdated, err = model.ParseTimestamp(updated); err != nil {
		return b, err
	}
	return b, nil
}
