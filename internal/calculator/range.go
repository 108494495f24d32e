package calculator

import (
	"fmt"
	"math"

	"TWMetrics/internal/model"
)

// TradingRange returns the highest high and lowest low of the trailing
// window bars. A window longer than the history uses all bars.
func TradingRange(bars []model.PriceBar, window int) (high, low float64, err error) {
	if window <= 0 {
		return 0, 0, fmt.Errorf("%w: window must be positive, got %d", model.ErrInvalidInput, window)
	}
	if len(bars) == 0 {
		return 0, 0, fmt.Errorf("%w: no bars for trading range", model.ErrInsufficientHistory)
	}
	start := len(bars) - window
	if start < 0 {
		start = 0
	}
	high, low = math.Inf(-1), math.Inf(1)
	for _, b := range bars[start:] {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}
	return high, low, nil
}

// RangePosition returns where current sits within [low, high], clamped to 0..1.
func RangePosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, fmt.Errorf("%w: high %v below low %v", model.ErrInvalidInput, high, low)
	}
	return math.Min(1, math.Max(0, (current-low)/(high-low))), nil
}
