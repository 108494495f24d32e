package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"TWMetrics/internal/model"
)

// PriceStore caches daily bars per security, partitioned by month.
// stock_header records which (sid, month) pairs have been fetched.
type PriceStore struct {
	db *DB
}

// HasMonth reports whether the month has been recorded as fetched for sid.
func (p *PriceStore) HasMonth(ctx context.Context, sid, month string) (bool, error) {
	var n int
	err := p.db.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM stock_header WHERE sid = ? AND month = ?`, sid, month).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query header %s/%s: %w", sid, month, err)
	}
	return n > 0, nil
}

// UpsertBars writes the month's bars and its header in one transaction.
// previous_close is derived as close - change for every bar.
func (p *PriceStore) UpsertBars(ctx context.Context, sid, month string, bars []model.PriceBar) error {
	updated := model.FormatTimestamp(p.db.now())
	return p.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO stock_daily_price
			(sid, month, date, capacity, turnover, last_close, open, high, low, close, change, "transaction", updated_date)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare bar insert: %w", err)
		}
		defer stmt.Close()

		for _, b := range bars {
			_, err := stmt.ExecContext(ctx,
				sid, month, model.FormatDate(b.Date), b.Volume, b.Turnover, b.Close-b.Change,
				b.Open, b.High, b.Low, b.Close, b.Change, b.TransactionCount, updated,
			)
			if err != nil {
				return fmt.Errorf("insert bar %s %s: %w", sid, model.FormatDate(b.Date), err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO stock_header (sid, month, updated_date) VALUES (?,?,?)`,
			sid, month, updated); err != nil {
			return fmt.Errorf("insert header %s/%s: %w", sid, month, err)
		}
		return nil
	})
}

// ReadRange returns the bars of sid in the given months, oldest first.
func (p *PriceStore) ReadRange(ctx context.Context, sid string, months []string) ([]model.PriceBar, error) {
	if len(months) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(months)+1)
	args = append(args, sid)
	for _, m := range months {
		args = append(args, m)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(months)), ",")

	rows, err := p.db.db.QueryContext(ctx, `SELECT
		sid, month, date, capacity, turnover, last_close, open, high, low, close, change, "transaction", updated_date
		FROM stock_daily_price WHERE sid = ? AND month IN (`+placeholders+`) ORDER BY date`, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars %s: %w", sid, err)
	}
	defer rows.Close()

	var bars []model.PriceBar
	for rows.Next() {
		var (
			b             model.PriceBar
			date, updated string
		)
		if err := rows.Scan(&b.SecurityID, &b.MonthKey, &date, &b.Volume, &b.Turnover, &b.PreviousClose,
			&b.Open, &b.High, &b.Low, &b.Close, &b.Change, &b.TransactionCount, &updated); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		if b.Date, err = model.ParseTimestamp(date); err != nil {
			return nil, fmt.Errorf("bar %s: %w", sid, err)
		}
		if b.LastUpdated, err = model.ParseTimestamp(updated); err != nil {
			return nil, fmt.Errorf("bar %s: %w", sid, err)
		}
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// Header returns the fetch record of a month, if any.
func (p *PriceStore) Header(ctx context.Context, sid, month string) (*model.MonthFetchRecord, error) {
	var updated string
	err := p.db.db.QueryRowContext(ctx,
		`SELECT updated_date FROM stock_header WHERE sid = ? AND month = ?`, sid, month).Scan(&updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query header %s/%s: %w", sid, month, err)
	}
	ts, err := model.ParseTimestamp(updated)
	if err != nil {
		return nil, fmt.Errorf("header %s/%s: %w", sid, month, err)
	}
	return &model.MonthFetchRecord{SecurityID: sid, MonthKey: month, LastUpdated: ts}, nil
}
