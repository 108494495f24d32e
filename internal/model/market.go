package model

import "time"

// PriceBar is one cached trading day of a listed security.
type PriceBar struct {
	SecurityID       string
	MonthKey         string
	Date             time.Time
	Volume           int64 // shares traded
	Turnover         int64 // NTD
	PreviousClose    float64
	Open             float64
	High             float64
	Low              float64
	Close            float64
	Change           float64
	TransactionCount int64
	LastUpdated      time.Time
}

// MonthFetchRecord marks a (security, month) pair as fully fetched.
// A month with no trading bars is still complete once recorded.
type MonthFetchRecord struct {
	SecurityID  string
	MonthKey    string
	LastUpdated time.Time
}

// IndexBar is one trading day of the broad-market index.
type IndexBar struct {
	Date          time.Time
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        float64
	Dividends     float64
	StockSplits   float64
	PreviousClose float64
	Change        float64
	LastUpdated   time.Time
}

// RawBar is a daily bar as returned by a monthly price provider.
type RawBar struct {
	Date         time.Time
	Capacity     int64
	Turnover     int64
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Change       float64
	Transactions int64
}

// RawIndexBar is a daily index bar as returned by an index provider.
type RawIndexBar struct {
	Date        time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	Dividends   float64
	StockSplits float64
}

// Closes extracts the close prices of bars in order.
func Closes(bars []PriceBar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
