package collector

import (
	"context"

	"TWMetrics/internal/model"
)

// MarketRouter sends OTC securities to one fetcher and listed ones to another.
type MarketRouter struct {
	Listed MonthFetcher
	OTC    MonthFetcher
	otc    map[string]bool
}

// NewMarketRouter creates a router; otcIDs lists the security ids traded on TPEx.
func NewMarketRouter(listed, otc MonthFetcher, otcIDs []string) *MarketRouter {
	r := &MarketRouter{Listed: listed, OTC: otc, otc: make(map[string]bool, len(otcIDs))}
	for _, id := range otcIDs {
		r.otc[id] = true
	}
	return r
}

func (r *MarketRouter) Name() string { return r.Listed.Name() + "+" + r.OTC.Name() }

func (r *MarketRouter) FetchMonth(ctx context.Context, sid string, ym model.YearMonth) ([]model.RawBar, error) {
	if r.otc[sid] {
		return r.OTC.FetchMonth(ctx, sid, ym)
	}
	return r.Listed.FetchMonth(ctx, sid, ym)
}
