package igpack

import (
	"sync/atomic"
	"time"

	"github.com/gofhir/igpack/cache"
)

// Metrics tracks preparation counters using lock-free atomic operations.
// All methods are safe for concurrent use.
type Metrics struct {
	// Preparation counts
	preparesTotal    atomic.Uint64
	packagesResolved atomic.Uint64

	// Timing (stored as nanoseconds)
	prepareTimeTotal atomic.Uint64
	prepareTimeMin   atomic.Uint64
	prepareTimeMax   atomic.Uint64

	expansionsTotal  atomic.Uint64
	expansionsFailed atomic.Uint64
	missingValueSets atomic.Uint64

	snapshotsTotal  atomic.Uint64
	snapshotsFailed atomic.Uint64

	// Cache metrics
	cacheHits   atomic.Uint64
	cacheMisses atomic.Uint64
	cacheWrites atomic.Uint64
}

// NewMetrics creates a new Metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	// Initialize min to max uint64 so first value becomes the minimum
	m.prepareTimeMin.Store(^uint64(0))
	return m
}

// --- Recording Methods ---

// RecordPrepare records a completed Prepare call.
func (m *Metrics) RecordPrepare(duration time.Duration) {
	m.preparesTotal.Add(1)

	ns := uint64(duration.Nanoseconds()) //nolint:gosec // Safe: nanoseconds are always positive for valid durations
	m.prepareTimeTotal.Add(ns)

	// Update min (CAS loop)
	for {
		old := m.prepareTimeMin.Load()
		if ns >= old {
			break
		}
		if m.prepareTimeMin.CompareAndSwap(old, ns) {
			break
		}
	}

	// Update max (CAS loop)
	for {
		old := m.prepareTimeMax.Load()
		if ns <= old {
			break
		}
		if m.prepareTimeMax.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordPackages records n resolved packages.
func (m *Metrics) RecordPackages(n int) {
	m.packagesResolved.Add(uint64(n)) //nolint:gosec // Safe: n is a small positive integer
}

// RecordExpansions records expanded and failed value sets.
func (m *Metrics) RecordExpansions(expanded, failed int) {
	m.expansionsTotal.Add(uint64(expanded)) //nolint:gosec // Safe: counts are small positive integers
	m.expansionsFailed.Add(uint64(failed))  //nolint:gosec // Safe: counts are small positive integers
}

// RecordMissingValueSets records value sets found in no package.
func (m *Metrics) RecordMissingValueSets(n int) {
	m.missingValueSets.Add(uint64(n)) //nolint:gosec // Safe: n is a small positive integer
}

// RecordSnapshots records generated and failed snapshots.
func (m *Metrics) RecordSnapshots(generated, failed int) {
	m.snapshotsTotal.Add(uint64(generated)) //nolint:gosec // Safe: counts are small positive integers
	m.snapshotsFailed.Add(uint64(failed))   //nolint:gosec // Safe: counts are small positive integers
}

// AddCacheStats adds the counters of a content cache.
func (m *Metrics) AddCacheStats(s cache.ContentStats) {
	m.cacheHits.Add(s.Hits)
	m.cacheMisses.Add(s.Misses)
	m.cacheWrites.Add(s.Writes)
}

// --- Query Methods ---

// PreparesTotal returns the number of Prepare calls recorded.
func (m *Metrics) PreparesTotal() uint64 {
	return m.preparesTotal.Load()
}

// PackagesResolved returns the number of packages resolved.
func (m *Metrics) PackagesResolved() uint64 {
	return m.packagesResolved.Load()
}

// AveragePrepareTime returns the average Prepare duration.
func (m *Metrics) AveragePrepareTime() time.Duration {
	total := m.preparesTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.prepareTimeTotal.Load() / total) //nolint:gosec // Safe: nanoseconds within int64 range
}

// MinPrepareTime returns the minimum Prepare duration.
func (m *Metrics) MinPrepareTime() time.Duration {
	minVal := m.prepareTimeMin.Load()
	if minVal == ^uint64(0) {
		return 0
	}
	return time.Duration(minVal) //nolint:gosec // Safe: minVal represents nanoseconds within int64 range
}

// MaxPrepareTime returns the maximum Prepare duration.
func (m *Metrics) MaxPrepareTime() time.Duration {
	return time.Duration(m.prepareTimeMax.Load()) //nolint:gosec // Safe: nanoseconds within int64 range
}

// ExpansionsTotal returns the number of expanded value sets.
func (m *Metrics) ExpansionsTotal() uint64 {
	return m.expansionsTotal.Load()
}

// ExpansionsFailed returns the number of value sets that failed to expand.
func (m *Metrics) ExpansionsFailed() uint64 {
	return m.expansionsFailed.Load()
}

// MissingValueSets returns the number of value sets found in no package.
func (m *Metrics) MissingValueSets() uint64 {
	return m.missingValueSets.Load()
}

// SnapshotsTotal returns the number of generated snapshots.
func (m *Metrics) SnapshotsTotal() uint64 {
	return m.snapshotsTotal.Load()
}

// SnapshotsFailed returns the number of failed snapshots.
func (m *Metrics) SnapshotsFailed() uint64 {
	return m.snapshotsFailed.Load()
}

// CacheHits returns the total cache hits.
func (m *Metrics) CacheHits() uint64 {
	return m.cacheHits.Load()
}

// CacheMisses returns the total cache misses.
func (m *Metrics) CacheMisses() uint64 {
	return m.cacheMisses.Load()
}

// CacheHitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) CacheHitRate() float64 {
	hits := m.cacheHits.Load()
	total := hits + m.cacheMisses.Load()
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// --- Export Methods ---

// Snapshot represents a point-in-time snapshot of all metrics.
type Snapshot struct {
	// Timestamp when the snapshot was taken
	Timestamp time.Time `json:"timestamp"`

	PreparesTotal    uint64 `json:"prepares_total"`
	PackagesResolved uint64 `json:"packages_resolved"`

	// Timing metrics (in nanoseconds for precision)
	AvgPrepareTimeNs uint64 `json:"avg_prepare_time_ns"`
	MinPrepareTimeNs uint64 `json:"min_prepare_time_ns"`
	MaxPrepareTimeNs uint64 `json:"max_prepare_time_ns"`

	ExpansionsTotal  uint64 `json:"expansions_total"`
	ExpansionsFailed uint64 `json:"expansions_failed"`
	MissingValueSets uint64 `json:"missing_value_sets"`

	SnapshotsTotal  uint64 `json:"snapshots_total"`
	SnapshotsFailed uint64 `json:"snapshots_failed"`

	// Cache metrics
	CacheHits    uint64  `json:"cache_hits"`
	CacheMisses  uint64  `json:"cache_misses"`
	CacheWrites  uint64  `json:"cache_writes"`
	CacheHitRate float64 `json:"cache_hit_rate"`
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	minTime := m.prepareTimeMin.Load()
	if minTime == ^uint64(0) {
		minTime = 0
	}

	return Snapshot{
		Timestamp:        time.Now(),
		PreparesTotal:    m.preparesTotal.Load(),
		PackagesResolved: m.packagesResolved.Load(),
		AvgPrepareTimeNs: uint64(m.AveragePrepareTime().Nanoseconds()), //nolint:gosec // Safe: durations are positive
		MinPrepareTimeNs: minTime,
		MaxPrepareTimeNs: m.prepareTimeMax.Load(),
		ExpansionsTotal:  m.expansionsTotal.Load(),
		ExpansionsFailed: m.expansionsFailed.Load(),
		MissingValueSets: m.missingValueSets.Load(),
		SnapshotsTotal:   m.snapshotsTotal.Load(),
		SnapshotsFailed:  m.snapshotsFailed.Load(),
		CacheHits:        m.cacheHits.Load(),
		CacheMisses:      m.cacheMisses.Load(),
		CacheWrites:      m.cacheWrites.Load(),
		CacheHitRate:     m.CacheHitRate(),
	}
}

// Export returns metrics as a map suitable for external systems.
func (m *Metrics) Export() map[string]interface{} {
	s := m.Snapshot()
	return map[string]interface{}{
		"prepares_total":      s.PreparesTotal,
		"packages_resolved":   s.PackagesResolved,
		"avg_prepare_time_ns": s.AvgPrepareTimeNs,
		"min_prepare_time_ns": s.MinPrepareTimeNs,
		"max_prepare_time_ns": s.MaxPrepareTimeNs,
		"expansions_total":    s.ExpansionsTotal,
		"expansions_failed":   s.ExpansionsFailed,
		"missing_value_sets":  s.MissingValueSets,
		"snapshots_total":     s.SnapshotsTotal,
		"snapshots_failed":    s.SnapshotsFailed,
		"cache_hits":          s.CacheHits,
		"cache_misses":        s.CacheMisses,
		"cache_writes":        s.CacheWrites,
		"cache_hit_rate":      s.CacheHitRate,
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.preparesTotal.Store(0)
	m.packagesResolved.Store(0)
	m.prepareTimeTotal.Store(0)
	m.prepareTimeMin.Store(^uint64(0))
	m.prepareTimeMax.Store(0)
	m.expansionsTotal.Store(0)
	m.expansionsFailed.Store(0)
	m.missingValueSets.Store(0)
	m.snapshotsTotal.Store(0)
	m.snapshotsFailed.Store(0)
	m.cacheHits.Store(0)
	m.cacheMisses.Store(0)
	m.cacheWrites.Store(0)
}
