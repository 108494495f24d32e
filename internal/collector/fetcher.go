package collector

import (
	"context"
	"time"

	"TWMetrics/internal/model"
)

// MonthFetcher retrieves one calendar month of daily bars for a security.
// An empty slice with a nil error means the month has no trading bars.
type MonthFetcher interface {
	FetchMonth(ctx context.Context, sid string, ym model.YearMonth) ([]model.RawBar, error)
	Name() string
}

// IndexFetcher retrieves daily bars of a market index.
type IndexFetcher interface {
	// FetchIndex returns bars dated within [from, to]. A zero to means up to today.
	FetchIndex(ctx context.Context, symbol string, from, to time.Time) ([]model.RawIndexBar, error)
	// FetchIndexHistory returns the provider's full history for symbol.
	FetchIndexHistory(ctx context.Context, symbol string) ([]model.RawIndexBar, error)
	Name() string
}
