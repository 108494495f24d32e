package calculator

import (
	"context"
	"fmt"
	"log"

	"TWMetrics/internal/model"
)

// turnoverLookbackDays is the calendar window backfilled before averaging turnover.
const turnoverLookbackDays = 31

// Constituent is one holding of an ETF. Weight is in percent.
type Constituent struct {
	SecurityID string
	Name       string
	Weight     float64
}

// Fund is an ETF and the amount it is expected to buy across its holdings.
type Fund struct {
	Code         string
	Cost         float64
	Constituents []Constituent
}

// TurnoverShare is the part of a constituent's average daily turnover that
// the fund's purchase represents, in percent.
type TurnoverShare struct {
	Constituent
	AvgTurnover float64
	Share       *float64
	Err         error
}

// TurnoverShare computes cost * weight / average turnover of the last n bars
// for every constituent. Constituents without enough history carry Err.
func (c *Calculator) TurnoverShare(ctx context.Context, fund Fund, n int) ([]TurnoverShare, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be positive, got %d", model.ErrInvalidInput, n)
	}
	if fund.Cost <= 0 {
		return nil, fmt.Errorf("%w: fund %s cost must be positive", model.ErrInvalidInput, fund.Code)
	}
	today := c.today()
	from, to := model.YearMonthOf(today.AddDate(0, 0, -turnoverLookbackDays)), model.YearMonthOf(today)

	shares := make([]TurnoverShare, 0, len(fund.Constituents))
	for _, con := range fund.Constituents {
		ts := TurnoverShare{Constituent: con}
		bars, err := c.Prices.EnsureRange(ctx, con.SecurityID, from, to)
		if err != nil {
			return nil, err
		}
		turnovers := make([]float64, len(bars))
		for i, b := range bars {
			turnovers[i] = float64(b.Turnover)
		}
		avg, err := CalculateSMA(turnovers, n)
		switch {
		case err != nil:
			ts.Err = err
		case avg == 0:
			ts.Err = fmt.Errorf("%w: %s has no turnover in the last %d bars", model.ErrInsufficientHistory, con.SecurityID, n)
		default:
			share := round2(fund.Cost * con.Weight / avg)
			ts.AvgTurnover, ts.Share = avg, &share
		}
		if ts.Err != nil {
			log.Printf("[WARN] fund %s: %s skipped: %v", fund.Code, con.SecurityID, ts.Err)
		}
		shares = append(shares, ts)
	}
	return shares, nil
}
