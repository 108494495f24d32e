package model

import "errors"

var (
	// ErrInvalidInput is returned for malformed dates, unknown metrics and
	// similar caller mistakes. It is raised before any I/O.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProviderFetch wraps network and decoding failures of a data provider.
	ErrProviderFetch = errors.New("provider fetch failed")

	// ErrInsufficientHistory means the bars needed for a computation do not
	// exist even after backfilling.
	ErrInsufficientHistory = errors.New("insufficient price history")

	// ErrNoTradingDay is returned by strict lookups when the exact date has no bar.
	ErrNoTradingDay = errors.New("no trading bar on date")

	// ErrZeroDayRange is returned when an annualized metric spans zero days.
	ErrZeroDayRange = errors.New("zero day range")
)
