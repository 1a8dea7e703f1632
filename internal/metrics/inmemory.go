package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Checks               uint64
	ChecksFromDemo       uint64
	NumberMatched        uint64
	DateMatched          uint64
	CheckDurationTotalNs int64
	CheckFailures        map[string]uint64
	AuthFailures         map[string]uint64
	RateLimited          uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	checks               uint64
	checksFromDemo       uint64
	numberMatched        uint64
	dateMatched          uint64
	checkDurationTotalNs int64
	rateLimited          uint64

	mu            sync.Mutex
	checkFailures map[string]uint64
	authFailures  map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		checkFailures: make(map[string]uint64),
		authFailures:  make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	checkFailures := make(map[string]uint64, len(m.checkFailures))
	for k, v := range m.checkFailures {
		checkFailures[k] = v
	}
	authFailures := make(map[string]uint64, len(m.authFailures))
	for k, v := range m.authFailures {
		authFailures[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		Checks:               atomic.LoadUint64(&m.checks),
		ChecksFromDemo:       atomic.LoadUint64(&m.checksFromDemo),
		NumberMatched:        atomic.LoadUint64(&m.numberMatched),
		DateMatched:          atomic.LoadUint64(&m.dateMatched),
		CheckDurationTotalNs: atomic.LoadInt64(&m.checkDurationTotalNs),
		CheckFailures:        checkFailures,
		AuthFailures:         authFailures,
		RateLimited:          atomic.LoadUint64(&m.rateLimited),
	}
}

// ObserveCheck records a completed check.
func (m *InMemoryRecorder) ObserveCheck(source string, numberMatched, dateMatched bool, duration time.Duration) {
	atomic.AddUint64(&m.checks, 1)
	if source == "demo" {
		atomic.AddUint64(&m.checksFromDemo, 1)
	}
	if numberMatched {
		atomic.AddUint64(&m.numberMatched, 1)
	}
	if dateMatched {
		atomic.AddUint64(&m.dateMatched, 1)
	}
	atomic.AddInt64(&m.checkDurationTotalNs, duration.Nanoseconds())
}

// IncCheckFailure increments the failure counter for stage.
func (m *InMemoryRecorder) IncCheckFailure(stage string) {
	m.mu.Lock()
	m.checkFailures[stage]++
	m.mu.Unlock()
}

// IncAuthFailure increments the auth failure counter for reason.
func (m *InMemoryRecorder) IncAuthFailure(reason string) {
	m.mu.Lock()
	m.authFailures[reason]++
	m.mu.Unlock()
}

// IncRateLimited increments the rate limited counter.
func (m *InMemoryRecorder) IncRateLimited() {
	atomic.AddUint64(&m.rateLimited, 1)
}
