package recorder

import "TWMetrics/internal/calculator"

// Recorder persists the reports sent by serve mode for later analysis.
type Recorder interface {
	RecordSnapshot(snap calculator.Snapshot) error
	RecordReturn(report *calculator.ReturnReport) error
	Close() error
}
