package calculator

import (
	"fmt"
	"time"

	"TWMetrics/internal/model"
)

// CalculateSMA computes the simple moving average of the trailing period prices.
func CalculateSMA(prices []float64, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("%w: period must be positive, got %d", model.ErrInvalidInput, period)
	}
	if len(prices) < period {
		return 0, fmt.Errorf("%w: need %d prices for SMA, have %d", model.ErrInsufficientHistory, period, len(prices))
	}
	sum := 0.0
	for i := len(prices) - period; i < len(prices); i++ {
		sum += prices[i]
	}
	return sum / float64(period), nil
}

// upTo returns the prefix of date-ordered bars dated on or before date.
func upTo(bars []model.PriceBar, date time.Time) []model.PriceBar {
	n := len(bars)
	for n > 0 && bars[n-1].Date.After(date) {
		n--
	}
	return bars[:n]
}
