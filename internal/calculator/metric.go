package calculator

import (
	"fmt"
	"math"
	"strings"

	"TWMetrics/internal/model"

	"github.com/shopspring/decimal"
)

// Metric selects how a price change is expressed.
type Metric string

const (
	// MetricROI is the simple return in percent.
	MetricROI Metric = "ROI"
	// MetricIRR is the return annualized on a 365-day basis, in percent.
	MetricIRR Metric = "IRR"
)

// ParseMetric accepts "ROI" or "IRR" in any case.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToUpper(strings.TrimSpace(s))) {
	case MetricROI:
		return MetricROI, nil
	case MetricIRR:
		return MetricIRR, nil
	}
	return "", fmt.Errorf("%w: unknown metric %q (want ROI or IRR)", model.ErrInvalidInput, s)
}

// ComputeMetric evaluates m between two prices dayRange days apart and
// rounds the percentage to 2 decimals.
func ComputeMetric(m Metric, start, end float64, dayRange int) (float64, error) {
	if start <= 0 {
		return 0, fmt.Errorf("%w: start price must be positive, got %v", model.ErrInvalidInput, start)
	}
	switch m {
	case MetricROI:
		return round2((end/start - 1) * 100), nil
	case MetricIRR:
		if dayRange == 0 {
			return 0, fmt.Errorf("%w: IRR is undefined over 0 days", model.ErrZeroDayRange)
		}
		return round2((math.Pow(end/start, 365/float64(dayRange)) - 1) * 100), nil
	}
	return 0, fmt.Errorf("%w: unknown metric %q", model.ErrInvalidInput, m)
}

// round2 rounds half away from zero at 2 decimals. Non-finite values,
// which decimal cannot represent, pass through.
func round2(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
