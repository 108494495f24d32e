package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"TWMetrics/internal/model"

	"github.com/go-resty/resty/v2"
)

const defaultTPExBaseURL = "https://www.tpex.org.tw"

// TPExFetcher implements MonthFetcher for OTC securities using the TPEx
// daily trading info report.
type TPExFetcher struct {
	client *resty.Client
}

// NewTPExFetcher creates a fetcher with optional proxy support.
func NewTPExFetcher(baseURL, proxyURL string, timeout time.Duration) *TPExFetcher {
	if baseURL == "" {
		baseURL = defaultTPExBaseURL
	}
	return &TPExFetcher{client: newClient(baseURL, proxyURL, timeout)}
}

func (f *TPExFetcher) Name() string { return "tpex" }

// tpexReport is the expected JSON shape. Shares and turnover are in thousands.
type tpexReport struct {
	AaData [][]string `json:"aaData"`
}

func (f *TPExFetcher) FetchMonth(ctx context.Context, sid string, ym model.YearMonth) ([]model.RawBar, error) {
	resp, err := f.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"l":     "zh-tw",
			"d":     fmt.Sprintf("%d/%02d", ym.Year-1911, int(ym.Month)),
			"stkno": sid,
		}).
		Get("/web/stock/aftertrading/daily_trading_info/st43_result.php")
	if err != nil {
		return nil, fmt.Errorf("%w: tpex %s %s: %w", model.ErrProviderFetch, sid, ym, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: tpex %s %s: status %d, body: %s",
			model.ErrProviderFetch, sid, ym, resp.StatusCode(), resp.String())
	}

	var report tpexReport
	if err := json.Unmarshal(resp.Body(), &report); err != nil {
		return nil, fmt.Errorf("%w: tpex decode %s %s: %w", model.ErrProviderFetch, sid, ym, err)
	}
	return parseRows(report.AaData, 1000)
}
