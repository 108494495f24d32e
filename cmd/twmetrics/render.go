package main

import (
	"fmt"
	"sort"
	"strings"

	"TWMetrics/internal/calculator"
	"TWMetrics/internal/model"

	"github.com/charmbracelet/glamour"
)

func printMarkdown(md string) {
	out, err := glamour.Render(md, "auto")
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

func pct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *v)
}

func returnMarkdown(r *calculator.ReturnReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s %s (%d-day average)\n\n", r.SecurityID, r.Metric, r.NDayAverage)
	if r.StartErr != nil {
		fmt.Fprintf(&b, "No start price: %v\n", r.StartErr)
		return b.String()
	}
	fmt.Fprintf(&b, "Start: %s at %.2f\n\n", model.FormatDate(r.Start.Date), r.Start.Price)
	b.WriteString("| Horizon | End date | End price | Days | Value | Index | Adjusted |\n")
	b.WriteString("|---:|---|---:|---:|---:|---:|---:|\n")
	for _, h := range r.Horizons {
		switch {
		case !h.Realizable:
			fmt.Fprintf(&b, "| %d | not yet | | | | | |\n", h.Horizon)
		case h.Err != nil:
			fmt.Fprintf(&b, "| %d | %v | | | | | |\n", h.Horizon, h.Err)
		default:
			fmt.Fprintf(&b, "| %d | %s | %.2f | %d | %s | %s | %s |\n", h.Horizon, model.FormatDate(h.EndDate),
				h.EndPrice, h.DayRange, pct(h.Value), pct(h.IndexValue), pct(h.Adjusted))
		}
	}
	return b.String()
}

func fluctuationMarkdown(sid string, changes map[int]*float64) string {
	lookbacks := make([]int, 0, len(changes))
	for lb := range changes {
		lookbacks = append(lookbacks, lb)
	}
	sort.Ints(lookbacks)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s recent fluctuation\n\n| Lookback (days) | Change |\n|---:|---:|\n", sid)
	for _, lb := range lookbacks {
		fmt.Fprintf(&b, "| %d | %s |\n", lb, pct(changes[lb]))
	}
	return b.String()
}

func turnoverMarkdown(fund calculator.Fund, n int, shares []calculator.TurnoverShare) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s purchase share of turnover\n\nPurchase amount: %.0f\n\n", fund.Code, fund.Cost)
	fmt.Fprintf(&b, "| Security | Name | Weight | %d-day avg turnover | Share |\n|---|---|---:|---:|---:|\n", n)
	for _, s := range shares {
		if s.Share == nil {
			fmt.Fprintf(&b, "| %s | %s | %.2f%% | %v | |\n", s.SecurityID, s.Name, s.Weight, s.Err)
			continue
		}
		fmt.Fprintf(&b, "| %s | %s | %.2f%% | %.0f | %.2f%% |\n", s.SecurityID, s.Name, s.Weight, s.AvgTurnover, *s.Share)
	}
	return b.String()
}

func indexMarkdown(symbol string, bars []model.IndexBar) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n| Date | Open | High | Low | Close | Change |\n|---|---:|---:|---:|---:|---:|\n", symbol)
	for _, bar := range bars {
		fmt.Fprintf(&b, "| %s | %.2f | %.2f | %.2f | %.2f | %+.2f |\n", model.FormatDate(bar.Date),
			bar.Open, bar.High, bar.Low, bar.Close, bar.Change)
	}
	return b.String()
}
