package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"TWMetrics/internal/calculator"
	"TWMetrics/internal/model"
	"TWMetrics/internal/recorder"
)

type fakeIndex struct {
	today     time.Time
	refreshes int
}

func (f *fakeIndex) RefreshIndexIfStale(context.Context) error {
	f.refreshes++
	return nil
}

func (f *fakeIndex) Today() time.Time { return f.today }

func (f *fakeIndex) IndexClose(_ context.Context, date time.Time) (model.IndexBar, error) {
	return model.IndexBar{Date: date, Close: 18100, PreviousClose: 18000, Change: 100}, nil
}

type fakeSender struct{ sent []string }

func (f *fakeSender) SendWithRetry(_ context.Context, text string, _ int) error {
	f.sent = append(f.sent, text)
	return nil
}

// fakePrices serves one constant-price weekday series per security.
type fakePrices struct{ bars map[string][]model.PriceBar }

func (f *fakePrices) EnsureRange(_ context.Context, sid string, from, to model.YearMonth) ([]model.PriceBar, error) {
	var out []model.PriceBar
	for _, b := range f.bars[sid] {
		ym := model.YearMonthOf(b.Date)
		if !ym.Before(from) && !to.Before(ym) {
			out = append(out, b)
		}
	}
	return out, nil
}

func weekdayBars(sid string, from, to time.Time, price float64) []model.PriceBar {
	var bars []model.PriceBar
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		bars = append(bars, model.PriceBar{SecurityID: sid, Date: d, Turnover: 1e9,
			PreviousClose: price, Open: price, High: price, Low: price, Close: price})
	}
	return bars
}

type countingRecorder struct {
	recorder.NoopRecorder
	snapshots, returns int
}

func (c *countingRecorder) RecordSnapshot(calculator.Snapshot) error {
	c.snapshots++
	return nil
}

func (c *countingRecorder) RecordReturn(*calculator.ReturnReport) error {
	c.returns++
	return nil
}

func newTestScheduler(t *testing.T) (*Scheduler, *fakeIndex, *fakeSender) {
	t.Helper()
	now := time.Date(2024, 6, 3, 15, 0, 0, 0, model.Taipei)
	prices := &fakePrices{bars: map[string][]model.PriceBar{
		"2330": weekdayBars("2330", time.Date(2023, 1, 2, 0, 0, 0, 0, model.Taipei),
			time.Date(2024, 6, 3, 0, 0, 0, 0, model.Taipei), 800),
	}}
	index := &fakeIndex{today: time.Date(2024, 6, 3, 0, 0, 0, 0, model.Taipei)}
	calc := calculator.New(prices, index)
	calc.Now = func() time.Time { return now }
	sender := &fakeSender{}
	s := NewScheduler(context.Background(), index, calc, sender, &countingRecorder{}, Settings{
		Watchlist:   []string{"2330", "9999"},
		Horizons:    []int{30, 365},
		Options:     calculator.DefaultOptions(),
		Funds:       []calculator.Fund{{Code: "00939", Cost: 5e10, Constituents: []calculator.Constituent{{SecurityID: "2330", Name: "台積電", Weight: 10}}}},
		IndexSymbol: "TWII",
	})
	return s, index, sender
}

func TestRegisterAll(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	if err := s.RegisterAll("0 30 14 * * 1-5", "0 0 15 * * 1-5"); err != nil {
		t.Fatal(err)
	}
	if len(s.Cron.Entries()) != 2 {
		t.Errorf("expected 2 cron entries, got %d", len(s.Cron.Entries()))
	}
	if err := s.RegisterAll("not a cron", "0 0 15 * * 1-5"); err == nil {
		t.Error("expected invalid cron expression to fail")
	}
}

func TestTasksSendReports(t *testing.T) {
	s, index, sender := newTestScheduler(t)
	s.indexTask()
	s.RunReportNow()
	if index.refreshes != 1 {
		t.Errorf("expected one index refresh, got %d", index.refreshes)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0], "18100.00") {
		t.Errorf("unexpected index message:\n%s", sender.sent[0])
	}
	if !strings.Contains(sender.sent[1], "2330") || !strings.Contains(sender.sent[1], "9999") {
		t.Errorf("watchlist report must list snapshots and failures:\n%s", sender.sent[1])
	}
	if rec := s.Recorder.(*countingRecorder); rec.snapshots != 1 {
		t.Errorf("expected 1 recorded snapshot, got %d", rec.snapshots)
	}
}

func TestHandleCommand(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ctx := context.Background()
	tests := []struct {
		command string
		want    string
	}{
		{"/return 2330 2024-02-01", "+0.00%"},
		{"/return 2330 2024-02-01 irr", "IRR"},
		{"/return 2330 2024/02/01", "失敗"},
		{"/return 2330", "用法"},
		{"/fluct 2330", "近365天"},
		{"/index 2024-06-01", "2024-06-01"},
		{"/etf 00939", "2330/台積電"},
		{"/etf 0050", "未設定的 ETF"},
		{"hello", "可用指令"},
	}
	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			if got := s.HandleCommand(ctx, tt.command); !strings.Contains(got, tt.want) {
				t.Errorf("HandleCommand(%q) missing %q:\n%s", tt.command, tt.want, got)
			}
		})
	}
	if rec := s.Recorder.(*countingRecorder); rec.returns != 2 {
		t.Errorf("expected 2 recorded return reports, got %d", rec.returns)
	}
}
