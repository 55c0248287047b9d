package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks rate limiting statistics per remote address.
type Metrics struct {
	mu sync.RWMutex

	totalAllowed  uint64
	totalRejected uint64

	allowedByAddr  map[string]*uint64
	rejectedByAddr map[string]*uint64

	startTime time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{
		allowedByAddr:  make(map[string]*uint64),
		rejectedByAddr: make(map[string]*uint64),
		startTime:      time.Now(),
	}
}

// RecordAllowed records an allowed request from remoteAddr.
func (m *Metrics) RecordAllowed(remoteAddr string) {
	atomic.AddUint64(&m.totalAllowed, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.allowedByAddr[remoteAddr]; !exists {
		var zero uint64
		m.allowedByAddr[remoteAddr] = &zero
	}
	atomic.AddUint64(m.allowedByAddr[remoteAddr], 1)
}

// RecordRejection records a rejected request from remoteAddr.
func (m *Metrics) RecordRejection(remoteAddr string) {
	atomic.AddUint64(&m.totalRejected, 1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rejectedByAddr[remoteAddr]; !exists {
		var zero uint64
		m.rejectedByAddr[remoteAddr] = &zero
	}
	atomic.AddUint64(m.rejectedByAddr[remoteAddr], 1)
}

// MetricsSnapshot is a point-in-time snapshot of all metrics.
type MetricsSnapshot struct {
	TotalAllowed   uint64            `json:"total_allowed"`
	TotalRejected  uint64            `json:"total_rejected"`
	AllowedByAddr  map[string]uint64 `json:"allowed_by_addr"`
	RejectedByAddr map[string]uint64 `json:"rejected_by_addr"`
	Uptime         time.Duration     `json:"uptime"`
	RequestsPerSec float64           `json:"requests_per_second"`
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := &MetricsSnapshot{
		TotalAllowed:   atomic.LoadUint64(&m.totalAllowed),
		TotalRejected:  atomic.LoadUint64(&m.totalRejected),
		AllowedByAddr:  make(map[string]uint64),
		RejectedByAddr: make(map[string]uint64),
		Uptime:         time.Since(m.startTime),
	}
	for addr, count := range m.allowedByAddr {
		snapshot.AllowedByAddr[addr] = atomic.LoadUint64(count)
	}
	for addr, count := range m.rejectedByAddr {
		snapshot.RejectedByAddr[addr] = atomic.LoadUint64(count)
	}
	total := snapshot.TotalAllowed + snapshot.TotalRejected
	if snapshot.Uptime.Seconds() > 0 {
		snapshot.RequestsPerSec = float64(total) / snapshot.Uptime.Seconds()
	}
	return snapshot
}

// TotalAllowed returns the total number of allowed requests.
func (m *Metrics) TotalAllowed() uint64 {
	return atomic.LoadUint64(&m.totalAllowed)
}

// TotalRejected returns the total number of rejected requests.
func (m *Metrics) TotalRejected() uint64 {
	return atomic.LoadUint64(&m.totalRejected)
}

// Reset resets all metrics.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	atomic.StoreUint64(&m.totalAllowed, 0)
	atomic.StoreUint64(&m.totalRejected, 0)
	m.allowedByAddr = make(map[string]*uint64)
	m.rejectedByAddr = make(map[string]*uint64)
	m.startTime = time.Now()
}
