package backfill

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"TWMetrics/internal/collector"
	"TWMetrics/internal/model"
	"TWMetrics/internal/store"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, model.Taipei)
}

type fixture struct {
	engine  *Engine
	fetcher *collector.MockFetcher
	db      *store.DB
	now     time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &fixture{fetcher: collector.NewMockFetcher(), db: db, now: now}
	clock := func() time.Time { return f.now }
	db.SetClock(clock)
	f.engine = NewEngine(db.Prices(), db.Index(), f.fetcher, f.fetcher, "TWII")
	f.engine.Now = clock
	return f
}

func rawBar(d time.Time, close, change float64) model.RawBar {
	return model.RawBar{Date: d, Capacity: 1000, Turnover: int64(close * 1000), Open: close, High: close,
		Low: close, Close: close, Change: change, Transactions: 10}
}

func TestEnsureRange_CachedMonthsAreNotRefetched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 3, 10, 14, 0, 0, 0, model.Taipei))
	f.fetcher.SetMonth("2330", model.YearMonth{Year: 2024, Month: time.January},
		[]model.RawBar{rawBar(day(2024, 1, 31), 580, 2)})
	f.fetcher.SetMonth("2330", model.YearMonth{Year: 2024, Month: time.February},
		[]model.RawBar{rawBar(day(2024, 2, 2), 605, 5), rawBar(day(2024, 2, 1), 600, 20)})

	from, to := model.YearMonth{Year: 2024, Month: time.January}, model.YearMonth{Year: 2024, Month: time.February}
	first, err := f.engine.EnsureRange(ctx, "2330", from, to)
	if err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if len(f.fetcher.MonthCalls) != 2 {
		t.Fatalf("expected 2 provider calls, got %v", f.fetcher.MonthCalls)
	}
	if len(first) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(first))
	}
	for i := 1; i < len(first); i++ {
		if !first[i-1].Date.Before(first[i].Date) {
			t.Errorf("bars not ascending at %d", i)
		}
	}
	if first[1].PreviousClose != 580 || first[1].SecurityID != "2330" || first[1].MonthKey != "202402" {
		t.Errorf("bar not normalised: %+v", first[1])
	}

	f.now = f.now.Add(time.Hour)
	second, err := f.engine.EnsureRange(ctx, "2330", from, to)
	if err != nil {
		t.Fatalf("second ensure: %v", err)
	}
	if len(f.fetcher.MonthCalls) != 2 {
		t.Errorf("cached months must not be refetched, calls: %v", f.fetcher.MonthCalls)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached read differs:\n first  %+v\n second %+v", first, second)
	}
}

func TestEnsureRange_CurrentMonthAlwaysRefetched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 3, 10, 14, 0, 0, 0, model.Taipei))
	march := model.YearMonth{Year: 2024, Month: time.March}
	f.fetcher.SetMonth("2330", march, []model.RawBar{rawBar(day(2024, 3, 1), 650, 1)})

	for i := 0; i < 2; i++ {
		if _, err := f.engine.EnsureRange(ctx, "2330", march, march); err != nil {
			t.Fatal(err)
		}
	}
	if len(f.fetcher.MonthCalls) != 2 {
		t.Errorf("current month must be fetched on every call, calls: %v", f.fetcher.MonthCalls)
	}

	// New bars appear as the month accumulates.
	f.fetcher.SetMonth("2330", march, []model.RawBar{rawBar(day(2024, 3, 1), 650, 1), rawBar(day(2024, 3, 4), 660, 10)})
	bars, err := f.engine.EnsureRange(ctx, "2330", march, march)
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 {
		t.Errorf("expected accumulated bars, got %d", len(bars))
	}
}

func TestEnsureRange_EmptyFutureMonthIsRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 3, 10, 14, 0, 0, 0, model.Taipei))
	may := model.YearMonth{Year: 2024, Month: time.May}

	for i := 0; i < 2; i++ {
		bars, err := f.engine.EnsureRange(ctx, "2330", may, may)
		if err != nil {
			t.Fatal(err)
		}
		if len(bars) != 0 {
			t.Errorf("expected no bars, got %d", len(bars))
		}
	}
	if len(f.fetcher.MonthCalls) != 1 {
		t.Errorf("an empty fetched month is complete, calls: %v", f.fetcher.MonthCalls)
	}
}

func TestEnsureRange_ProviderErrorPropagates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 3, 10, 14, 0, 0, 0, model.Taipei))
	f.fetcher.Err = fmt.Errorf("%w: connection reset", model.ErrProviderFetch)

	jan := model.YearMonth{Year: 2024, Month: time.January}
	_, err := f.engine.EnsureRange(ctx, "2330", jan, jan)
	if !errors.Is(err, model.ErrProviderFetch) {
		t.Fatalf("expected ErrProviderFetch, got %v", err)
	}
	ok, err := f.db.Prices().HasMonth(ctx, "2330", "202401")
	if err != nil || ok {
		t.Errorf("failed fetch must not mark the month complete: %v %v", ok, err)
	}
}

func TestParseYearMonthRange(t *testing.T) {
	from, to, err := ParseYearMonthRange("2023-12-15", "2024-02-01")
	if err != nil {
		t.Fatal(err)
	}
	if from.Key() != "202312" || to.Key() != "202402" {
		t.Errorf("unexpected range %s..%s", from.Key(), to.Key())
	}
	if _, _, err := ParseYearMonthRange("2023/12/15", "2024-02-01"); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func rawIndex(d time.Time, close float64) model.RawIndexBar {
	return model.RawIndexBar{Date: d, Open: close, High: close, Low: close, Close: close, Volume: 1}
}

func TestEnsureIndexRange_IdempotentRebuild(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 2, 10, 14, 0, 0, 0, model.Taipei))
	f.fetcher.Index = []model.RawIndexBar{
		rawIndex(day(2024, 1, 25), 17500),
		rawIndex(day(2024, 1, 26), 17600),
		rawIndex(day(2024, 2, 1), 18000),
		rawIndex(day(2024, 2, 2), 18100),
	}

	for i := 0; i < 2; i++ {
		if err := f.engine.EnsureIndexRange(ctx, day(2024, 2, 1), time.Time{}); err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
	}
	bars, err := f.db.Index().ReadRange(ctx, day(2024, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 3 {
		t.Fatalf("expected 3 rows (first fetched row dropped), got %d", len(bars))
	}
	if !bars[0].Date.Equal(day(2024, 1, 26)) {
		t.Errorf("expected first stored row 2024-01-26, got %v", bars[0].Date)
	}
	if bars[1].PreviousClose != 17600 || bars[1].Change != 400 {
		t.Errorf("unexpected derived fields %+v", bars[1])
	}
}

func TestRefreshIndexIfStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 2, 2, 15, 0, 0, 0, model.Taipei))
	f.fetcher.Index = []model.RawIndexBar{
		rawIndex(day(2024, 1, 31), 17800),
		rawIndex(day(2024, 2, 1), 18000),
		rawIndex(day(2024, 2, 2), 18100),
	}

	if err := f.engine.RefreshIndexIfStale(ctx); err != nil {
		t.Fatal(err)
	}
	if f.fetcher.IndexCalls != 1 {
		t.Fatalf("empty store must be seeded, calls %d", f.fetcher.IndexCalls)
	}
	if err := f.engine.RefreshIndexIfStale(ctx); err != nil {
		t.Fatal(err)
	}
	if f.fetcher.IndexCalls != 1 {
		t.Errorf("fresh store must not be refetched, calls %d", f.fetcher.IndexCalls)
	}

	f.now = time.Date(2024, 2, 5, 15, 0, 0, 0, model.Taipei)
	f.fetcher.Index = append(f.fetcher.Index, rawIndex(day(2024, 2, 5), 18300))
	stale, err := f.engine.IndexStale(ctx)
	if err != nil || !stale {
		t.Fatalf("expected stale store, got %v %v", stale, err)
	}
	bar, err := f.engine.IndexClose(ctx, day(2024, 2, 5))
	if err != nil {
		t.Fatal(err)
	}
	if f.fetcher.IndexCalls != 2 || bar.Close != 18300 || bar.Change != 200 {
		t.Errorf("expected refreshed bar, calls %d bar %+v", f.fetcher.IndexCalls, bar)
	}

	// Sunday resolves to Friday.
	bar, err = f.engine.IndexClose(ctx, day(2024, 2, 4))
	if err != nil {
		t.Fatal(err)
	}
	if !bar.Date.Equal(day(2024, 2, 2)) {
		t.Errorf("expected 2024-02-02, got %v", bar.Date)
	}
}

func TestIndexClose_BeforeAnyData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 2, 2, 15, 0, 0, 0, model.Taipei))
	f.fetcher.Index = []model.RawIndexBar{
		rawIndex(day(2024, 2, 1), 18000),
		rawIndex(day(2024, 2, 2), 18100),
	}
	_, err := f.engine.IndexClose(ctx, day(2020, 1, 1))
	if !errors.Is(err, model.ErrInsufficientHistory) {
		t.Errorf("expected ErrInsufficientHistory, got %v", err)
	}
}

// weekdayIndex returns one bar per weekday in [from, to], rising by 10 a day.
func weekdayIndex(from, to time.Time, base float64) []model.RawIndexBar {
	var bars []model.RawIndexBar
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		bars = append(bars, rawIndex(d, base))
		base += 10
	}
	return bars
}

func TestIndexClose_BackfillsBeforeCoverageOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 3, 8, 15, 0, 0, 0, model.Taipei))
	f.fetcher.Index = weekdayIndex(day(2024, 2, 1), day(2024, 3, 8), 18000)

	if err := f.engine.EnsureIndexRange(ctx, day(2024, 2, 20), time.Time{}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.engine.IndexClose(ctx, day(2020, 1, 1)); !errors.Is(err, model.ErrInsufficientHistory) {
			t.Fatalf("lookup %d: expected ErrInsufficientHistory, got %v", i, err)
		}
	}
	if f.fetcher.IndexCalls != 2 {
		t.Errorf("dates before the provider's history must be requested once, calls %d", f.fetcher.IndexCalls)
	}
}

func TestEnsureIndexRange_BoundedWindowKeepsLaterRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 3, 8, 15, 0, 0, 0, model.Taipei))
	f.fetcher.Index = weekdayIndex(day(2024, 2, 1), day(2024, 3, 8), 18000)
	if err := f.engine.EnsureIndexHistory(ctx); err != nil {
		t.Fatal(err)
	}
	before, err := f.db.Index().ReadRange(ctx, day(2024, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatal(err)
	}

	for i, b := range f.fetcher.Index {
		if b.Date.Equal(day(2024, 2, 9)) {
			f.fetcher.Index[i].Close = 20000
		}
	}
	if err := f.engine.EnsureIndexRange(ctx, day(2024, 2, 5), day(2024, 2, 9)); err != nil {
		t.Fatal(err)
	}

	after, err := f.db.Index().ReadRange(ctx, day(2024, 1, 1), day(2024, 12, 31))
	if err != nil {
		t.Fatal(err)
	}
	if len(after) != len(before) {
		t.Fatalf("rows after the window must survive: %d before, %d after", len(before), len(after))
	}
	if last := after[len(after)-1]; !last.Date.Equal(day(2024, 3, 8)) {
		t.Errorf("expected 2024-03-08 to survive, last row is %v", last.Date)
	}
	bar, ok, err := f.db.Index().CloseOnOrBefore(ctx, day(2024, 2, 9))
	if err != nil || !ok || bar.Close != 20000 {
		t.Errorf("window row must be replaced, got %+v %v %v", bar, ok, err)
	}
}

func TestRebuildIndexFrom_DropsRowsTheProviderNoLongerHas(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 3, 8, 15, 0, 0, 0, model.Taipei))
	f.fetcher.Index = weekdayIndex(day(2024, 2, 1), day(2024, 3, 8), 18000)
	if err := f.engine.EnsureIndexHistory(ctx); err != nil {
		t.Fatal(err)
	}

	f.fetcher.Index = f.fetcher.Index[:len(f.fetcher.Index)-1]
	if err := f.engine.RebuildIndexFrom(ctx, day(2024, 3, 4)); err != nil {
		t.Fatal(err)
	}
	first, last, ok, err := f.db.Index().Bounds(ctx)
	if err != nil || !ok {
		t.Fatalf("bounds: %v %v", ok, err)
	}
	if !first.Equal(day(2024, 2, 2)) || !last.Equal(day(2024, 3, 7)) {
		t.Errorf("expected 2024-02-02..2024-03-07, got %v..%v", first, last)
	}
}

func TestFillIndexGaps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, time.Date(2024, 3, 8, 15, 0, 0, 0, model.Taipei))
	f.fetcher.Index = weekdayIndex(day(2024, 1, 2), day(2024, 3, 8), 17500)
	if err := f.engine.EnsureIndexRange(ctx, day(2024, 3, 1), time.Time{}); err != nil {
		t.Fatal(err)
	}

	missing, err := f.engine.FillIndexGaps(ctx, day(2024, 1, 10), day(2024, 3, 8))
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 1 || missing[0].Key() != "202401" {
		t.Fatalf("expected January to be filled, got %v", missing)
	}
	if ok, _ := f.db.Index().HasMonth(ctx, "202401"); !ok {
		t.Error("expected January bars after the fill")
	}
	if f.fetcher.IndexCalls != 2 {
		t.Fatalf("expected one fill request, calls %d", f.fetcher.IndexCalls)
	}

	// A month with nothing upstream is requested once.
	for i := 0; i < 2; i++ {
		if _, err := f.engine.FillIndexGaps(ctx, day(2023, 12, 1), day(2023, 12, 31)); err != nil {
			t.Fatal(err)
		}
	}
	if f.fetcher.IndexCalls != 3 {
		t.Errorf("expected a single request for December, calls %d", f.fetcher.IndexCalls)
	}
}
