package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"TWMetrics/internal/model"

	"github.com/go-resty/resty/v2"
)

const defaultYahooBaseURL = "https://query1.finance.yahoo.com"

// YahooFetcher implements IndexFetcher using the Yahoo Finance chart API.
type YahooFetcher struct {
	client    *resty.Client
	SymbolMap map[string]string // maps internal symbol to Yahoo ticker
	now       func() time.Time
}

// NewYahooFetcher creates a new Yahoo Finance fetcher.
func NewYahooFetcher(baseURL, proxyURL string, timeout time.Duration) *YahooFetcher {
	if baseURL == "" {
		baseURL = defaultYahooBaseURL
	}
	return &YahooFetcher{
		client: newClient(baseURL, proxyURL, timeout),
		SymbolMap: map[string]string{
			"TWII":  "^TWII",
			"TAIEX": "^TWII",
		},
		now: time.Now,
	}
}

func (f *YahooFetcher) Name() string { return "yahoo" }

func (f *YahooFetcher) yahooSymbol(symbol string) string {
	if mapped, ok := f.SymbolMap[symbol]; ok {
		return mapped
	}
	return symbol
}

// yahooChart is the response structure from the chart API. Quote arrays
// hold null for days without a print.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp []int64 `json:"timestamp"`
			Events    struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
				Splits map[string]struct {
					Numerator   float64 `json:"numerator"`
					Denominator float64 `json:"denominator"`
					Date        int64   `json:"date"`
				} `json:"splits"`
			} `json:"events"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func value(vs []*float64, i int) float64 {
	if i >= len(vs) || vs[i] == nil {
		return 0
	}
	return *vs[i]
}

func (f *YahooFetcher) FetchIndex(ctx context.Context, symbol string, from, to time.Time) ([]model.RawIndexBar, error) {
	if to.IsZero() {
		to = f.now()
	}
	// period2 is exclusive.
	params := map[string]string{
		"period1": strconv.FormatInt(model.Day(from).Unix(), 10),
		"period2": strconv.FormatInt(model.Day(to).AddDate(0, 0, 1).Unix(), 10),
	}
	bars, err := f.fetchChart(ctx, symbol, params)
	if err != nil {
		return nil, err
	}
	lo, hi := model.Day(from), model.Day(to)
	kept := bars[:0]
	for _, b := range bars {
		if !b.Date.Before(lo) && !b.Date.After(hi) {
			kept = append(kept, b)
		}
	}
	return kept, nil
}

func (f *YahooFetcher) FetchIndexHistory(ctx context.Context, symbol string) ([]model.RawIndexBar, error) {
	return f.fetchChart(ctx, symbol, map[string]string{"range": "max"})
}

func (f *YahooFetcher) fetchChart(ctx context.Context, symbol string, params map[string]string) ([]model.RawIndexBar, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetQueryParam("interval", "1d").
		SetQueryParam("events", "div,split").
		Get("/v8/finance/chart/" + url.PathEscape(f.yahooSymbol(symbol)))
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo fetch: %w", model.ErrProviderFetch, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: yahoo: status %d, body: %s", model.ErrProviderFetch, resp.StatusCode(), resp.String())
	}

	var chart yahooChart
	if err := json.Unmarshal(resp.Body(), &chart); err != nil {
		return nil, fmt.Errorf("%w: yahoo decode: %w", model.ErrProviderFetch, err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("%w: yahoo api error: %s", model.ErrProviderFetch, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w: yahoo: no result returned", model.ErrProviderFetch)
	}

	result := chart.Chart.Result[0]
	if len(result.Timestamp) == 0 {
		return []model.RawIndexBar{}, nil
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: yahoo: no quote data", model.ErrProviderFetch)
	}
	quote := result.Indicators.Quote[0]

	dividends := make(map[string]float64)
	for _, d := range result.Events.Dividends {
		dividends[model.FormatDate(time.Unix(d.Date, 0))] += d.Amount
	}
	splits := make(map[string]float64)
	for _, s := range result.Events.Splits {
		if s.Denominator != 0 {
			splits[model.FormatDate(time.Unix(s.Date, 0))] = s.Numerator / s.Denominator
		}
	}

	bars := make([]model.RawIndexBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		c := value(quote.Close, i)
		if c == 0 {
			continue // skip null bars (holidays etc.)
		}
		date := model.Day(time.Unix(ts, 0))
		key := model.FormatDate(date)
		bars = append(bars, model.RawIndexBar{
			Date:        date,
			Open:        value(quote.Open, i),
			High:        value(quote.High, i),
			Low:         value(quote.Low, i),
			Close:       c,
			Volume:      value(quote.Volume, i),
			Dividends:   dividends[key],
			StockSplits: splits[key],
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}
