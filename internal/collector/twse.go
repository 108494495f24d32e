package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"TWMetrics/internal/model"

	"github.com/go-resty/resty/v2"
)

const defaultTWSEBaseURL = "https://www.twse.com.tw"

// TWSEFetcher implements MonthFetcher using the TWSE STOCK_DAY report.
type TWSEFetcher struct {
	client *resty.Client
}

// NewTWSEFetcher creates a fetcher with optional proxy support.
func NewTWSEFetcher(baseURL, proxyURL string, timeout time.Duration) *TWSEFetcher {
	if baseURL == "" {
		baseURL = defaultTWSEBaseURL
	}
	return &TWSEFetcher{client: newClient(baseURL, proxyURL, timeout)}
}

func (f *TWSEFetcher) Name() string { return "twse" }

// twseReport is the JSON shape of exchangeReport/STOCK_DAY.
// Rows are: date(ROC), shares, turnover, open, high, low, close, change, transactions.
type twseReport struct {
	Stat string     `json:"stat"`
	Data [][]string `json:"data"`
}

func (f *TWSEFetcher) FetchMonth(ctx context.Context, sid string, ym model.YearMonth) ([]model.RawBar, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"response": "json",
			"date":     fmt.Sprintf("%04d%02d01", ym.Year, int(ym.Month)),
			"stockNo":  sid,
		}).
		Get("/exchangeReport/STOCK_DAY")
	if err != nil {
		return nil, fmt.Errorf("%w: twse %s %s: %w", model.ErrProviderFetch, sid, ym, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: twse %s %s: status %d", model.ErrProviderFetch, sid, ym, resp.StatusCode())
	}

	var report twseReport
	if err := json.Unmarshal(resp.Body(), &report); err != nil {
		return nil, fmt.Errorf("%w: twse decode %s %s: %w", model.ErrProviderFetch, sid, ym, err)
	}
	// Any other stat means no data for the month, e.g. a future month.
	if report.Stat != "OK" {
		return []model.RawBar{}, nil
	}
	return parseRows(report.Data, 1)
}

// parseRows converts exchange report rows into bars. unit scales the share
// and turnover columns, which TPEx reports in thousands.
func parseRows(rows [][]string, unit int64) ([]model.RawBar, error) {
	bars := make([]model.RawBar, 0, len(rows))
	for _, row := range rows {
		if len(row) < 9 {
			return nil, fmt.Errorf("%w: short row %v", model.ErrProviderFetch, row)
		}
		date, err := parseROCDate(row[0])
		if err != nil {
			return nil, err
		}
		if strings.Contains(row[6], "--") {
			log.Printf("[WARN] skipping untraded bar on %s", model.FormatDate(date))
			continue
		}

		var b model.RawBar
		b.Date = date
		ints := []*int64{&b.Capacity, &b.Turnover, &b.Transactions}
		for i, col := range []int{1, 2, 8} {
			if *ints[i], err = parseInt(row[col]); err != nil {
				return nil, err
			}
		}
		b.Capacity *= unit
		b.Turnover *= unit
		floats := []*float64{&b.Open, &b.High, &b.Low, &b.Close}
		for i, col := range []int{3, 4, 5, 6} {
			if *floats[i], err = parseFloat(row[col]); err != nil {
				return nil, err
			}
		}
		if b.Change, err = parseChange(row[7]); err != nil {
			return nil, err
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// parseROCDate parses a Minguo calendar date such as "113/02/01".
func parseROCDate(s string) (time.Time, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "＊*")
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("%w: bad ROC date %q", model.ErrProviderFetch, s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: bad ROC date %q", model.ErrProviderFetch, s)
		}
		nums[i] = n
	}
	return time.Date(nums[0]+1911, time.Month(nums[1]), nums[2], 0, 0, 0, 0, model.Taipei), nil
}

func parseInt(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad integer %q", model.ErrProviderFetch, s)
	}
	return n, nil
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", model.ErrProviderFetch, s)
	}
	return f, nil
}

// parseChange handles signed values and the "X0.00" marker used on
// ex-dividend days, which carries no price change.
func parseChange(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if strings.HasPrefix(s, "X") || s == "" || s == "--" {
		return 0, nil
	}
	return parseFloat(s)
}

func newClient(baseURL, proxyURL string, timeout time.Duration) *resty.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("User-Agent", "Mozilla/5.0")
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return client
}
