package calculator

import (
	"context"
	"fmt"
	"time"

	"TWMetrics/internal/model"
)

const (
	snapshotLookbackDays = 60
	rangeWindow          = 20
	rsiPeriod            = 14
)

// Snapshot summarises the latest state of one security.
type Snapshot struct {
	SecurityID string
	Date       time.Time
	Close      float64
	Change     float64
	ChangePct  float64
	High20     float64
	Low20      float64
	Position   float64
	RSI14      float64
}

// Snapshot backfills about two months of bars and derives the 20-day
// trading range, the close's position within it and RSI(14).
func (c *Calculator) Snapshot(ctx context.Context, sid string) (Snapshot, error) {
	today := c.today()
	bars, err := c.Prices.EnsureRange(ctx, sid,
		model.YearMonthOf(today.AddDate(0, 0, -snapshotLookbackDays)), model.YearMonthOf(today))
	if err != nil {
		return Snapshot{}, err
	}
	bars = upTo(bars, today)
	if len(bars) == 0 {
		return Snapshot{}, fmt.Errorf("%w: %s has no recent bars", model.ErrInsufficientHistory, sid)
	}

	last := bars[len(bars)-1]
	s := Snapshot{SecurityID: sid, Date: last.Date, Close: last.Close, Change: last.Change}
	if last.PreviousClose > 0 {
		s.ChangePct = round2(last.Change / last.PreviousClose * 100)
	}
	if s.High20, s.Low20, err = TradingRange(bars, rangeWindow); err != nil {
		return Snapshot{}, err
	}
	if s.Position, err = RangePosition(last.Close, s.High20, s.Low20); err != nil {
		return Snapshot{}, err
	}
	if s.RSI14, err = RSI(model.Closes(bars), rsiPeriod); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}
