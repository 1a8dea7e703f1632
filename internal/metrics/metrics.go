// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Check failure stages.
const (
	StageAcquire    = "acquire"
	StageResolve    = "resolve"
	StageMembership = "membership"
	StageBirthDate  = "birth_date"
)

// Recorder captures metric events for the application.
// Implementations must never receive identifying input such as numbers or dates.
type Recorder interface {
	// Check metrics
	ObserveCheck(source string, numberMatched, dateMatched bool, duration time.Duration)
	IncCheckFailure(stage string)

	// Gate metrics
	IncAuthFailure(reason string) // reason: "missing_key" or "invalid_key"
	IncRateLimited()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
