package recorder

import "TWMetrics/internal/calculator"

// NoopRecorder is a no-op implementation used when history is disabled.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSnapshot(_ calculator.Snapshot) error    { return nil }
func (n *NoopRecorder) RecordReturn(_ *calculator.ReturnReport) error { return nil }
func (n *NoopRecorder) Close() error                                  { return nil }
