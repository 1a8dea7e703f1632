package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// ObserveCheck is a no-op.
func (n *NoopRecorder) ObserveCheck(source string, numberMatched, dateMatched bool, duration time.Duration) {
}

// IncCheckFailure is a no-op.
func (n *NoopRecorder) IncCheckFailure(stage string) {}

// IncAuthFailure is a no-op.
func (n *NoopRecorder) IncAuthFailure(reason string) {}

// IncRateLimited is a no-op.
func (n *NoopRecorder) IncRateLimited() {}
