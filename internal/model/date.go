package model

import (
	"fmt"
	"time"
)

const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02 15:04:05"
)

// Taipei is the exchange time zone. A fixed offset avoids depending on tzdata.
var Taipei = time.FixedZone("Asia/Taipei", 8*60*60)

// ParseDate parses a yyyy-mm-dd string into midnight Taipei time.
// The format is checked strictly: 10 characters with dashes at positions 5 and 8.
func ParseDate(s string) (time.Time, error) {
	if len(s) != len(DateLayout) {
		return time.Time{}, fmt.Errorf("%w: date %q must be yyyy-mm-dd", ErrInvalidInput, s)
	}
	if s[4] != '-' || s[7] != '-' {
		return time.Time{}, fmt.Errorf("%w: date %q must be yyyy-mm-dd", ErrInvalidInput, s)
	}
	t, err := time.ParseInLocation(DateLayout, s, Taipei)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %v", ErrInvalidInput, s, err)
	}
	return t, nil
}

// ParseTimestamp accepts either a date or a yyyy-mm-dd HH:MM:SS timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	if len(s) == len(DateLayout) {
		return ParseDate(s)
	}
	if len(s) != len(TimestampLayout) || s[4] != '-' || s[7] != '-' || s[10] != ' ' {
		return time.Time{}, fmt.Errorf("%w: timestamp %q must be yyyy-mm-dd HH:MM:SS", ErrInvalidInput, s)
	}
	t, err := time.ParseInLocation(TimestampLayout, s, Taipei)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %q: %v", ErrInvalidInput, s, err)
	}
	return t, nil
}

// FormatDate renders t as yyyy-mm-dd in Taipei time.
func FormatDate(t time.Time) string { return t.In(Taipei).Format(DateLayout) }

// FormatTimestamp renders t as yyyy-mm-dd HH:MM:SS in Taipei time.
func FormatTimestamp(t time.Time) string { return t.In(Taipei).Format(TimestampLayout) }

// Day truncates t to midnight of its Taipei calendar day.
func Day(t time.Time) time.Time {
	t = t.In(Taipei)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, Taipei)
}

// DaysBetween returns the whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// YearMonth identifies a calendar month. Its Key is the month_key used to
// partition the price cache.
type YearMonth struct {
	Year  int
	Month time.Month
}

// YearMonthOf returns the Taipei calendar month containing t.
func YearMonthOf(t time.Time) YearMonth {
	t = t.In(Taipei)
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

// Key formats the month as YYYYMM.
func (ym YearMonth) Key() string { return fmt.Sprintf("%04d%02d", ym.Year, int(ym.Month)) }

func (ym YearMonth) String() string { return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month)) }

// Next returns the following month.
func (ym YearMonth) Next() YearMonth {
	if ym.Month == time.December {
		return YearMonth{Year: ym.Year + 1, Month: time.January}
	}
	return YearMonth{Year: ym.Year, Month: ym.Month + 1}
}

// Before reports whether ym is strictly earlier than o.
func (ym YearMonth) Before(o YearMonth) bool {
	if ym.Year != o.Year {
		return ym.Year < o.Year
	}
	return ym.Month < o.Month
}

// First returns midnight of the first day of the month.
func (ym YearMonth) First() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, Taipei)
}

// MonthRange lists every month from from to to inclusive, chronologically.
// It returns nil when to is before from.
func MonthRange(from, to YearMonth) []YearMonth {
	var months []YearMonth
	for ym := from; !to.Before(ym); ym = ym.Next() {
		months = append(months, ym)
	}
	return months
}
