package collector

import (
	"context"
	"time"

	"TWMetrics/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
// It implements both MonthFetcher and IndexFetcher and counts calls.
type MockFetcher struct {
	Months map[string][]model.RawBar // keyed by sid + "/" + month key
	Index  []model.RawIndexBar
	Err    error

	MonthCalls []string
	IndexCalls int
}

// NewMockFetcher creates an empty mock.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{Months: make(map[string][]model.RawBar)}
}

func (m *MockFetcher) Name() string { return "mock" }

// SetMonth registers the bars returned for sid in ym.
func (m *MockFetcher) SetMonth(sid string, ym model.YearMonth, bars []model.RawBar) {
	m.Months[sid+"/"+ym.Key()] = bars
}

func (m *MockFetcher) FetchMonth(_ context.Context, sid string, ym model.YearMonth) ([]model.RawBar, error) {
	key := sid + "/" + ym.Key()
	m.MonthCalls = append(m.MonthCalls, key)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Months[key], nil
}

func (m *MockFetcher) FetchIndex(_ context.Context, _ string, from, to time.Time) ([]model.RawIndexBar, error) {
	m.IndexCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	var bars []model.RawIndexBar
	for _, b := range m.Index {
		if b.Date.Before(model.Day(from)) || (!to.IsZero() && b.Date.After(model.Day(to))) {
			continue
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func (m *MockFetcher) FetchIndexHistory(_ context.Context, _ string) ([]model.RawIndexBar, error) {
	m.IndexCalls++
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]model.RawIndexBar(nil), m.Index...), nil
}
