package notifier

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"TWMetrics/internal/calculator"
	"TWMetrics/internal/model"
)

func formatPct(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%+.2f%%", *v)
}

// FormatReturnReport formats one security's horizon returns.
func FormatReturnReport(r *calculator.ReturnReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>%s 報酬</b> | %s %d日均價\n", html.EscapeString(r.SecurityID), r.Metric, r.NDayAverage))
	if r.StartErr != nil {
		b.WriteString(fmt.Sprintf("起始價格不足: %s\n", html.EscapeString(r.StartErr.Error())))
		return b.String()
	}
	b.WriteString(fmt.Sprintf("起始: %s @ %.2f\n\n", model.FormatDate(r.Start.Date), r.Start.Price))

	for _, h := range r.Horizons {
		switch {
		case !h.Realizable:
			b.WriteString(fmt.Sprintf("  %4d天: 尚未到期\n", h.Horizon))
		case h.Err != nil:
			b.WriteString(fmt.Sprintf("  %4d天: 無法計算 (%s)\n", h.Horizon, html.EscapeString(h.Err.Error())))
		default:
			b.WriteString(fmt.Sprintf("  %4d天: %s (%s @ %.2f, %d天)", h.Horizon, formatPct(h.Value),
				model.FormatDate(h.EndDate), h.EndPrice, h.DayRange))
			if h.Adjusted != nil {
				b.WriteString(fmt.Sprintf(" | 超額 %s", formatPct(h.Adjusted)))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// FormatFluctuation formats the change against each lookback, shortest first.
func FormatFluctuation(sid string, changes map[int]*float64) string {
	lookbacks := make([]int, 0, len(changes))
	for lb := range changes {
		lookbacks = append(lookbacks, lb)
	}
	sort.Ints(lookbacks)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("📉 <b>%s 近期漲跌</b>\n", html.EscapeString(sid)))
	for _, lb := range lookbacks {
		b.WriteString(fmt.Sprintf("  近%d天: %s\n", lb, formatPct(changes[lb])))
	}
	return b.String()
}

// FormatWatchlistReport formats the daily snapshot of every watched security.
func FormatWatchlistReport(date time.Time, snaps []calculator.Snapshot, failed map[string]error) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>TWMetrics 觀察清單</b> | %s\n\n", model.FormatDate(date)))
	for _, s := range snaps {
		b.WriteString(fmt.Sprintf("<b>%s</b> %.2f (%+.2f, %+.2f%%)\n", html.EscapeString(s.SecurityID), s.Close, s.Change, s.ChangePct))
		b.WriteString(fmt.Sprintf("  20日區間: %.2f ~ %.2f (位置 %.0f%%) | RSI14: %.1f\n", s.Low20, s.High20, s.Position*100, s.RSI14))
	}
	if len(failed) > 0 {
		sids := make([]string, 0, len(failed))
		for sid := range failed {
			sids = append(sids, sid)
		}
		sort.Strings(sids)
		b.WriteString("\n⚠️ 無法取得:\n")
		for _, sid := range sids {
			b.WriteString(fmt.Sprintf("  %s: %s\n", html.EscapeString(sid), html.EscapeString(failed[sid].Error())))
		}
	}
	return b.String()
}

// FormatTurnoverShares formats an ETF's purchase share of constituent turnover.
func FormatTurnoverShares(fund calculator.Fund, n int, shares []calculator.TurnoverShare) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🏦 <b>%s 成分股成交金額占比</b> | 購入金額 %.0f\n", html.EscapeString(fund.Code), fund.Cost))
	for _, s := range shares {
		if s.Share == nil {
			b.WriteString(fmt.Sprintf("  %s/%s: 資料不足\n", s.SecurityID, s.Name))
			continue
		}
		b.WriteString(fmt.Sprintf("  %s/%s 近%d天平均成交金額: %.0f, 占比: %.2f%%\n",
			s.SecurityID, s.Name, n, s.AvgTurnover, *s.Share))
	}
	return b.String()
}

// FormatIndex formats the index bar of a trading day.
func FormatIndex(symbol string, bar model.IndexBar) string {
	pct := 0.0
	if bar.PreviousClose > 0 {
		pct = bar.Change / bar.PreviousClose * 100
	}
	return fmt.Sprintf("🇹🇼 <b>%s</b> | %s\n收盤: %.2f (%+.2f, %+.2f%%)\n開 %.2f 高 %.2f 低 %.2f\n",
		html.EscapeString(symbol), model.FormatDate(bar.Date), bar.Close, bar.Change, pct, bar.Open, bar.High, bar.Low)
}

// FormatHelp lists the supported commands.
func FormatHelp() string {
	return "可用指令:\n" +
		"/return &lt;sid&gt; &lt;yyyy-mm-dd&gt; [ROI|IRR] 計算報酬\n" +
		"/fluct &lt;sid&gt; 近期漲跌\n" +
		"/index [yyyy-mm-dd] 加權指數收盤\n" +
		"/watchlist 觀察清單\n" +
		"/etf &lt;code&gt; 成分股成交金額占比"
}
