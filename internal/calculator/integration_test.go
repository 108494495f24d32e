package calculator_test

import (
	"context"
	"testing"
	"time"

	"TWMetrics/internal/backfill"
	"TWMetrics/internal/calculator"
	"TWMetrics/internal/collector"
	"TWMetrics/internal/model"
	"TWMetrics/internal/store"
)

func TestComputeReturn_AgainstCachedStore(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	now := time.Date(2024, 6, 1, 10, 0, 0, 0, model.Taipei)
	clock := func() time.Time { return now }
	db.SetClock(clock)

	mock := collector.NewMockFetcher()
	raw := map[model.YearMonth][]model.RawBar{}
	prev := 600.0
	for d := time.Date(2024, 1, 2, 0, 0, 0, 0, model.Taipei); !d.After(time.Date(2024, 5, 31, 0, 0, 0, 0, model.Taipei)); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		price := 600.0
		if d.After(time.Date(2024, 2, 25, 0, 0, 0, 0, model.Taipei)) {
			price = 660
		}
		ym := model.YearMonthOf(d)
		raw[ym] = append(raw[ym], model.RawBar{Date: d, Capacity: 1000, Turnover: 600000,
			Open: price, High: price, Low: price, Close: price, Change: price - prev, Transactions: 1})
		prev = price
		mock.Index = append(mock.Index, model.RawIndexBar{Date: d, Open: 18000, High: 18000, Low: 18000, Close: 18000})
	}
	for ym, bars := range raw {
		mock.SetMonth("2330", ym, bars)
	}

	engine := backfill.NewEngine(db.Prices(), db.Index(), mock, mock, "TWII")
	engine.Now = clock
	calc := calculator.New(engine, engine)
	calc.Now = clock

	opts := calculator.DefaultOptions()
	opts.AdjustByIndex = true
	start := time.Date(2024, 2, 1, 0, 0, 0, 0, model.Taipei)
	first, err := calc.ComputeReturn(ctx, "2330", start, []int{30, 365}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if v := first.Values["30"]; v == nil || *v != 10 {
		t.Fatalf("expected 10.0, got %v", first.Values)
	}
	if v := first.Values["30_adjusted"]; v == nil || *v != 10 {
		t.Errorf("flat index: expected adjusted 10.0, got %v", v)
	}
	if v, ok := first.Values["365"]; !ok || v != nil {
		t.Errorf("expected explicit nil for 365, got %v", v)
	}

	calls := len(mock.MonthCalls)
	second, err := calc.ComputeReturn(ctx, "2330", start, []int{30}, opts)
	if err != nil {
		t.Fatal(err)
	}
	if len(mock.MonthCalls) != calls {
		t.Errorf("completed months must come from the store, new calls %v", mock.MonthCalls[calls:])
	}
	if *second.Values["30"] != *first.Values["30"] {
		t.Errorf("cached result differs: %v vs %v", *second.Values["30"], *first.Values["30"])
	}
}
