package calculator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"TWMetrics/internal/model"
)

// PriceSource backfills and returns the bars of a security over whole months.
type PriceSource interface {
	EnsureRange(ctx context.Context, sid string, from, to model.YearMonth) ([]model.PriceBar, error)
}

// IndexSource returns the index bar on a date or the latest one before it.
type IndexSource interface {
	IndexClose(ctx context.Context, date time.Time) (model.IndexBar, error)
}

// SearchMode controls what NDayAveragePrice does when the target date has no bar.
type SearchMode int

const (
	// Soft falls back to the most recent prior trading day.
	Soft SearchMode = iota
	// Strict fails with model.ErrNoTradingDay.
	Strict
)

// Quote is a smoothed price and the trading date it was taken on.
type Quote struct {
	Price float64
	Date  time.Time
}

// Calculator derives return metrics from the cached price history.
type Calculator struct {
	Prices PriceSource
	Index  IndexSource
	Now    func() time.Time
}

// New creates a Calculator using the wall clock.
func New(prices PriceSource, index IndexSource) *Calculator {
	return &Calculator{Prices: prices, Index: index, Now: time.Now}
}

func (c *Calculator) today() time.Time { return model.Day(c.Now()) }

// NDayAveragePrice returns the mean of the trailing n closes ending at the
// latest trading day on or before target. Months from target - 3n days
// through target are backfilled first.
func (c *Calculator) NDayAveragePrice(ctx context.Context, sid string, target time.Time, n int, mode SearchMode) (Quote, error) {
	if n <= 0 {
		return Quote{}, fmt.Errorf("%w: n-day average must be positive, got %d", model.ErrInvalidInput, n)
	}
	target = model.Day(target)
	lookback := target.AddDate(0, 0, -3*n)

	bars, err := c.Prices.EnsureRange(ctx, sid, model.YearMonthOf(lookback), model.YearMonthOf(target))
	if err != nil {
		return Quote{}, err
	}
	bars = upTo(bars, target)
	if len(bars) == 0 {
		return Quote{}, fmt.Errorf("%w: %s has no bars between %s and %s", model.ErrInsufficientHistory,
			sid, model.YearMonthOf(lookback), model.FormatDate(target))
	}

	last := bars[len(bars)-1]
	if mode == Strict && !last.Date.Equal(target) {
		return Quote{}, fmt.Errorf("%w: %s on %s", model.ErrNoTradingDay, sid, model.FormatDate(target))
	}
	price, err := CalculateSMA(model.Closes(bars), n)
	if err != nil {
		return Quote{}, fmt.Errorf("%s %d-day average at %s: %w", sid, n, model.FormatDate(last.Date), err)
	}
	return Quote{Price: price, Date: last.Date}, nil
}

// Options configures ComputeReturn.
type Options struct {
	NDayAverage   int
	Metric        Metric
	AdjustByIndex bool
}

// DefaultOptions smooths prices over 5 days and reports ROI.
func DefaultOptions() Options {
	return Options{NDayAverage: 5, Metric: MetricROI}
}

// HorizonResult is the outcome of one horizon. Value is nil when the
// horizon is not yet realizable or Err is set.
type HorizonResult struct {
	Horizon    int
	Realizable bool
	EndDate    time.Time
	EndPrice   float64
	DayRange   int
	Value      *float64
	IndexValue *float64
	Adjusted   *float64
	Err        error
}

// ReturnReport maps every horizon label to a value or an explicit nil.
type ReturnReport struct {
	SecurityID  string
	Metric      Metric
	NDayAverage int
	Start       Quote
	StartErr    error
	Values      map[string]*float64
	Horizons    []HorizonResult
}

// HorizonLabel is the report key of the raw metric for horizon days.
func HorizonLabel(horizon int) string { return strconv.Itoa(horizon) }

// AdjustedLabel is the report key of the index-adjusted metric.
func AdjustedLabel(horizon int) string { return strconv.Itoa(horizon) + "_adjusted" }

// isolated reports whether err only invalidates a single horizon.
func isolated(err error) bool {
	return errors.Is(err, model.ErrInsufficientHistory) ||
		errors.Is(err, model.ErrNoTradingDay) ||
		errors.Is(err, model.ErrZeroDayRange)
}

// ComputeReturn evaluates the metric from start to start + horizon days for
// each horizon. Horizons ending after today map to nil. Missing history and
// zero-day IRR affect only their own horizon; provider and storage errors
// abort the computation.
func (c *Calculator) ComputeReturn(ctx context.Context, sid string, start time.Time, horizons []int, opts Options) (*ReturnReport, error) {
	metric, err := ParseMetric(string(opts.Metric))
	if err != nil {
		return nil, err
	}
	if opts.NDayAverage <= 0 {
		return nil, fmt.Errorf("%w: n-day average must be positive, got %d", model.ErrInvalidInput, opts.NDayAverage)
	}
	for _, h := range horizons {
		if h < 0 {
			return nil, fmt.Errorf("%w: negative horizon %d", model.ErrInvalidInput, h)
		}
	}
	start = model.Day(start)
	today := c.today()
	if start.After(today) {
		return nil, fmt.Errorf("%w: start %s is after today", model.ErrInvalidInput, model.FormatDate(start))
	}

	report := &ReturnReport{
		SecurityID:  sid,
		Metric:      metric,
		NDayAverage: opts.NDayAverage,
		Values:      make(map[string]*float64, 2*len(horizons)),
	}
	setNil := func(h int) {
		report.Values[HorizonLabel(h)] = nil
		if opts.AdjustByIndex {
			report.Values[AdjustedLabel(h)] = nil
		}
	}

	report.Start, err = c.NDayAveragePrice(ctx, sid, start, opts.NDayAverage, Soft)
	if err != nil {
		if !isolated(err) {
			return nil, err
		}
		log.Printf("[WARN] %s: no start price: %v", sid, err)
		report.StartErr = err
		for _, h := range horizons {
			setNil(h)
			report.Horizons = append(report.Horizons, HorizonResult{Horizon: h, Err: err})
		}
		return report, nil
	}

	for _, h := range horizons {
		res, err := c.evaluateHorizon(ctx, sid, report.Start, start, h, today, metric, opts)
		if err != nil {
			return nil, err
		}
		setNil(h)
		if res.Value != nil {
			report.Values[HorizonLabel(h)] = res.Value
		}
		if res.Adjusted != nil {
			report.Values[AdjustedLabel(h)] = res.Adjusted
		}
		report.Horizons = append(report.Horizons, res)
	}
	return report, nil
}

func (c *Calculator) evaluateHorizon(ctx context.Context, sid string, startQuote Quote, start time.Time, h int,
	today time.Time, metric Metric, opts Options) (HorizonResult, error) {
	res := HorizonResult{Horizon: h}
	target := start.AddDate(0, 0, h)
	if target.After(today) {
		return res, nil
	}
	res.Realizable = true

	end, err := c.NDayAveragePrice(ctx, sid, target, opts.NDayAverage, Soft)
	if err != nil {
		return isolate(res, err)
	}
	res.EndDate, res.EndPrice = end.Date, end.Price
	res.DayRange = model.DaysBetween(startQuote.Date, end.Date)

	v, err := ComputeMetric(metric, startQuote.Price, end.Price, res.DayRange)
	if err != nil {
		return isolate(res, err)
	}
	res.Value = &v

	if !opts.AdjustByIndex {
		return res, nil
	}
	if c.Index == nil {
		return res, fmt.Errorf("%w: index adjustment requested without an index source", model.ErrInvalidInput)
	}
	indexStart, err := c.Index.IndexClose(ctx, startQuote.Date)
	if err != nil {
		return isolate(res, err)
	}
	indexEnd, err := c.Index.IndexClose(ctx, end.Date)
	if err != nil {
		return isolate(res, err)
	}
	iv, err := ComputeMetric(metric, indexStart.Close, indexEnd.Close, res.DayRange)
	if err != nil {
		return isolate(res, err)
	}
	adjusted := round2(v - iv)
	res.IndexValue, res.Adjusted = &iv, &adjusted
	return res, nil
}

func isolate(res HorizonResult, err error) (HorizonResult, error) {
	if !isolated(err) {
		return res, err
	}
	log.Printf("[WARN] horizon %d skipped: %v", res.Horizon, err)
	res.Err = err
	return res, nil
}

// RecentFluctuation compares today's price with the price lookback days
// ago for each lookback, in percent. Lookbacks without history map to nil,
// and so does every lookback when there is no recent price at all.
func (c *Calculator) RecentFluctuation(ctx context.Context, sid string, lookbacks []int) (map[int]*float64, error) {
	for _, lb := range lookbacks {
		if lb <= 0 {
			return nil, fmt.Errorf("%w: lookback must be positive, got %d", model.ErrInvalidInput, lb)
		}
	}
	result := make(map[int]*float64, len(lookbacks))
	today := c.today()
	current, err := c.NDayAveragePrice(ctx, sid, today, 1, Soft)
	if err != nil {
		if !isolated(err) {
			return nil, err
		}
		log.Printf("[WARN] %s: no current price: %v", sid, err)
		for _, lb := range lookbacks {
			result[lb] = nil
		}
		return result, nil
	}

	for _, lb := range lookbacks {
		past, err := c.NDayAveragePrice(ctx, sid, today.AddDate(0, 0, -lb), 1, Soft)
		if err != nil {
			if !isolated(err) {
				return nil, err
			}
			result[lb] = nil
			continue
		}
		pct, err := ComputeMetric(MetricROI, past.Price, current.Price, 0)
		if err != nil {
			return nil, err
		}
		result[lb] = &pct
	}
	return result, nil
}
