package observability

import (
	"sort"
	"sync"
	"time"
)

// Metrics aggregates per-operation counters in process.
type Metrics struct {
	mu         sync.Mutex
	operations map[string]*operationMetrics
}

type operationMetrics struct {
	count         int64
	failures      int64
	totalDuration time.Duration
}

// OperationSnapshot is a point-in-time copy of one operation's counters.
type OperationSnapshot struct {
	Operation     string  `json:"operation"`
	Count         int64   `json:"count"`
	Failures      int64   `json:"failures"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

// NewMetrics creates an empty collector.
func NewMetrics() *Metrics {
	return &Metrics{operations: make(map[string]*operationMetrics)}
}

// Record adds one finished operation.
func (m *Metrics) Record(operation string, d time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	om, ok := m.operations[operation]
	if !ok {
		om = &operationMetrics{}
		m.operations[operation] = om
	}
	om.count++
	om.totalDuration += d
	if failed {
		om.failures++
	}
}

// Snapshot returns the counters sorted by operation name.
func (m *Metrics) Snapshot() []OperationSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]OperationSnapshot, 0, len(m.operations))
	for name, om := range m.operations {
		s := OperationSnapshot{Operation: name, Count: om.count, Failures: om.failures}
		if om.count > 0 {
			s.AvgDurationMs = float64(om.totalDuration.Milliseconds()) / float64(om.count)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}
