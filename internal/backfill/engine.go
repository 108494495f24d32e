package backfill

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"TWMetrics/internal/collector"
	"TWMetrics/internal/model"
)

// indexLeadDays is how far before the requested start the index window
// begins, so the first requested day has a previous close.
const indexLeadDays = 10

// PriceStore is the persistence the engine needs for security bars.
type PriceStore interface {
	HasMonth(ctx context.Context, sid, month string) (bool, error)
	UpsertBars(ctx context.Context, sid, month string, bars []model.PriceBar) error
	ReadRange(ctx context.Context, sid string, months []string) ([]model.PriceBar, error)
}

// IndexStore is the persistence the engine needs for index bars.
type IndexStore interface {
	HasMonth(ctx context.Context, month string) (bool, error)
	Upsert(ctx context.Context, bars []model.IndexBar) error
	RebuildFrom(ctx context.Context, from time.Time) error
	Replace(ctx context.Context, from, to time.Time, bars []model.IndexBar) error
	CoveredFrom(ctx context.Context) (time.Time, bool, error)
	MarkCovered(ctx context.Context, from time.Time) error
	LatestUpdate(ctx context.Context) (time.Time, bool, error)
	Bounds(ctx context.Context) (first, last time.Time, ok bool, err error)
	CloseOnOrBefore(ctx context.Context, date time.Time) (model.IndexBar, bool, error)
}

// Engine fills the local stores from the providers on demand.
// It keeps no state between calls; the stores are the source of truth.
type Engine struct {
	Prices       PriceStore
	Index        IndexStore
	Fetcher      collector.MonthFetcher
	IndexFetcher collector.IndexFetcher
	IndexSymbol  string
	Now          func() time.Time
}

// NewEngine creates an Engine using the wall clock.
func NewEngine(prices PriceStore, index IndexStore, fetcher collector.MonthFetcher, indexFetcher collector.IndexFetcher, indexSymbol string) *Engine {
	return &Engine{
		Prices:       prices,
		Index:        index,
		Fetcher:      fetcher,
		IndexFetcher: indexFetcher,
		IndexSymbol:  indexSymbol,
		Now:          time.Now,
	}
}

// Today returns midnight of the current Taipei calendar day.
func (e *Engine) Today() time.Time { return model.Day(e.Now()) }

// EnsureRange returns the bars of sid for every month in [from, to], oldest
// first. Months that were never fetched, and the current calendar month,
// are fetched from the provider and stored before being read back.
func (e *Engine) EnsureRange(ctx context.Context, sid string, from, to model.YearMonth) ([]model.PriceBar, error) {
	current := model.YearMonthOf(e.Now())
	var result []model.PriceBar
	for _, ym := range model.MonthRange(from, to) {
		month := ym.Key()
		cached, err := e.Prices.HasMonth(ctx, sid, month)
		if err != nil {
			return nil, err
		}
		if ym == current || !cached {
			if err := e.fetchMonth(ctx, sid, ym); err != nil {
				return nil, err
			}
		}
		bars, err := e.Prices.ReadRange(ctx, sid, []string{month})
		if err != nil {
			return nil, err
		}
		result = append(result, bars...)
	}
	return result, nil
}

func (e *Engine) fetchMonth(ctx context.Context, sid string, ym model.YearMonth) error {
	raw, err := e.Fetcher.FetchMonth(ctx, sid, ym)
	if err != nil {
		return fmt.Errorf("fetch %s %s from %s: %w", sid, ym, e.Fetcher.Name(), err)
	}
	log.Printf("[INFO] fetched %d bars for %s %s from %s", len(raw), sid, ym, e.Fetcher.Name())
	return e.Prices.UpsertBars(ctx, sid, ym.Key(), normalizeBars(sid, ym, raw, e.Now()))
}

func normalizeBars(sid string, ym model.YearMonth, raw []model.RawBar, now time.Time) []model.PriceBar {
	bars := make([]model.PriceBar, len(raw))
	for i, r := range raw {
		bars[i] = model.PriceBar{
			SecurityID:       sid,
			MonthKey:         ym.Key(),
			Date:             model.Day(r.Date),
			Volume:           r.Capacity,
			Turnover:         r.Turnover,
			PreviousClose:    r.Close - r.Change,
			Open:             r.Open,
			High:             r.High,
			Low:              r.Low,
			Close:            r.Close,
			Change:           r.Change,
			TransactionCount: r.Transactions,
			LastUpdated:      now,
		}
	}
	return bars
}

// ParseYearMonthRange parses two yyyy-mm-dd dates into the months containing them.
// Validation happens before any I/O.
func ParseYearMonthRange(from, to string) (model.YearMonth, model.YearMonth, error) {
	f, err := model.ParseDate(from)
	if err != nil {
		return model.YearMonth{}, model.YearMonth{}, err
	}
	t, err := model.ParseDate(to)
	if err != nil {
		return model.YearMonth{}, model.YearMonth{}, err
	}
	return model.YearMonthOf(f), model.YearMonthOf(t), nil
}

// EnsureIndexRange refreshes the index bars for [from, to]. A zero to
// means up to today. The provider window starts indexLeadDays earlier so
// the first kept day has a previous close; stored rows overlapping the
// new window are deleted before the window is inserted.
func (e *Engine) EnsureIndexRange(ctx context.Context, from, to time.Time) error {
	raw, err := e.fetchIndex(ctx, from, to)
	if err != nil {
		return err
	}
	if err := e.storeIndex(ctx, raw, to); err != nil {
		return err
	}
	if !to.IsZero() {
		return nil
	}
	return e.Index.MarkCovered(ctx, model.Day(from).AddDate(0, 0, -indexLeadDays))
}

func (e *Engine) fetchIndex(ctx context.Context, from, to time.Time) ([]model.RawIndexBar, error) {
	raw, err := e.IndexFetcher.FetchIndex(ctx, e.IndexSymbol, model.Day(from).AddDate(0, 0, -indexLeadDays), to)
	if err != nil {
		return nil, fmt.Errorf("fetch index %s from %s: %w", e.IndexSymbol, e.IndexFetcher.Name(), err)
	}
	return raw, nil
}

// RebuildIndexFrom deletes every stored bar dated on or after from, then
// re-fetches from there to today. Rows the provider no longer returns stay
// deleted.
func (e *Engine) RebuildIndexFrom(ctx context.Context, from time.Time) error {
	raw, err := e.fetchIndex(ctx, from, time.Time{})
	if err != nil {
		return err
	}
	if err := e.Index.RebuildFrom(ctx, model.Day(from)); err != nil {
		return err
	}
	if err := e.storeIndex(ctx, raw, time.Time{}); err != nil {
		return err
	}
	return e.Index.MarkCovered(ctx, model.Day(from).AddDate(0, 0, -indexLeadDays))
}

// FillIndexGaps checks the months of [from, to]. When any has no stored bar
// and was never requested, everything from from to today is fetched and
// upserted without deleting anything. It returns the months fetched for.
func (e *Engine) FillIndexGaps(ctx context.Context, from, to time.Time) ([]model.YearMonth, error) {
	covered, known, err := e.Index.CoveredFrom(ctx)
	if err != nil {
		return nil, err
	}
	var missing []model.YearMonth
	for _, ym := range model.MonthRange(model.YearMonthOf(from), model.YearMonthOf(to)) {
		ok, err := e.Index.HasMonth(ctx, ym.Key())
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		// Months starting on or after the covered bound were already requested.
		if known && !covered.After(ym.First()) {
			continue
		}
		missing = append(missing, ym)
	}
	if len(missing) == 0 {
		return nil, nil
	}
	raw, err := e.fetchIndex(ctx, from, time.Time{})
	if err != nil {
		return nil, err
	}
	if err := e.Index.Upsert(ctx, normalizeIndex(raw)); err != nil {
		return nil, err
	}
	log.Printf("[INFO] index %s: filled %d missing months", e.IndexSymbol, len(missing))
	return missing, e.Index.MarkCovered(ctx, model.Day(from).AddDate(0, 0, -indexLeadDays))
}

// EnsureIndexHistory replaces the index table with the provider's full history.
func (e *Engine) EnsureIndexHistory(ctx context.Context) error {
	raw, err := e.IndexFetcher.FetchIndexHistory(ctx, e.IndexSymbol)
	if err != nil {
		return fmt.Errorf("fetch index history %s from %s: %w", e.IndexSymbol, e.IndexFetcher.Name(), err)
	}
	if err := e.storeIndex(ctx, raw, time.Time{}); err != nil {
		return err
	}
	return e.Index.MarkCovered(ctx, time.Time{})
}

func (e *Engine) storeIndex(ctx context.Context, raw []model.RawIndexBar, to time.Time) error {
	bars := normalizeIndex(raw)
	if len(bars) == 0 {
		log.Printf("[WARN] index %s: provider returned no usable bars", e.IndexSymbol)
		return nil
	}
	first := bars[0].Date
	if !to.IsZero() {
		to = bars[len(bars)-1].Date
	}
	if err := e.Index.Replace(ctx, first, to, bars); err != nil {
		return err
	}
	log.Printf("[INFO] index %s: stored %d bars from %s", e.IndexSymbol, len(bars), model.FormatDate(first))
	return nil
}

// normalizeIndex sorts raw bars and derives previous close and change from
// the prior row. The first row has no prior close and is dropped.
func normalizeIndex(raw []model.RawIndexBar) []model.IndexBar {
	sorted := append([]model.RawIndexBar(nil), raw...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	if len(sorted) < 2 {
		return nil
	}
	bars := make([]model.IndexBar, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		r, prev := sorted[i], sorted[i-1].Close
		bars = append(bars, model.IndexBar{
			Date:          model.Day(r.Date),
			Open:          r.Open,
			High:          r.High,
			Low:           r.Low,
			Close:         r.Close,
			Volume:        r.Volume,
			Dividends:     r.Dividends,
			StockSplits:   r.StockSplits,
			PreviousClose: prev,
			Change:        r.Close - prev,
		})
	}
	return bars
}

// IndexStale reports whether the index store was last updated before today.
// An empty store is stale.
func (e *Engine) IndexStale(ctx context.Context) (bool, error) {
	latest, ok, err := e.Index.LatestUpdate(ctx)
	if err != nil {
		return false, err
	}
	return !ok || model.Day(latest).Before(e.Today()), nil
}

// RefreshIndexIfStale seeds an empty index store with full history, or
// re-fetches from the day after the latest stored date when stale.
func (e *Engine) RefreshIndexIfStale(ctx context.Context) error {
	stale, err := e.IndexStale(ctx)
	if err != nil || !stale {
		return err
	}
	_, last, ok, err := e.Index.Bounds(ctx)
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("[INFO] index %s: empty store, fetching full history", e.IndexSymbol)
		return e.EnsureIndexHistory(ctx)
	}
	log.Printf("[INFO] index %s: stale, updating from %s", e.IndexSymbol, model.FormatDate(last.AddDate(0, 0, 1)))
	return e.EnsureIndexRange(ctx, last.AddDate(0, 0, 1), time.Time{})
}

// IndexClose returns the index bar on date, or on the latest trading day
// before it. The store is refreshed first when stale, and backfilled when
// date precedes both the earliest stored bar and the covered bound.
func (e *Engine) IndexClose(ctx context.Context, date time.Time) (model.IndexBar, error) {
	if err := e.RefreshIndexIfStale(ctx); err != nil {
		return model.IndexBar{}, err
	}
	first, _, ok, err := e.Index.Bounds(ctx)
	if err != nil {
		return model.IndexBar{}, err
	}
	if !ok || date.Before(first) {
		covered, known, err := e.Index.CoveredFrom(ctx)
		if err != nil {
			return model.IndexBar{}, err
		}
		if !known || date.Before(covered) {
			if err := e.EnsureIndexRange(ctx, date, time.Time{}); err != nil {
				return model.IndexBar{}, err
			}
		}
	}
	bar, ok, err := e.Index.CloseOnOrBefore(ctx, date)
	if err != nil {
		return model.IndexBar{}, err
	}
	if !ok {
		return model.IndexBar{}, fmt.Errorf("%w: index %s has no bar on or before %s",
			model.ErrInsufficientHistory, e.IndexSymbol, model.FormatDate(date))
	}
	return bar, nil
}
