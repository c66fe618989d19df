package solver

import "sync/atomic"

// Metrics tracks pool-wide solve counters, mirroring revm_bridge's
// ResetProfileCounters/ProfileCounters pair so the fuzzer can report solver
// throughput the same way it reports REVM cache-miss rates.
var (
	queriesTotal   int64
	queriesSolved  int64
	queriesDeduped int64
)

// RecordQuery increments the total-queries counter and, if solved is true,
// the solved counter.
func RecordQuery(solved bool) {
	atomic.AddInt64(&queriesTotal, 1)
	if solved {
		atomic.AddInt64(&queriesSolved, 1)
	}
}

// RecordDeduped increments the deduped-queries counter for a query that was
// skipped because Dedup.Seen reported it already solved.
func RecordDeduped() {
	atomic.AddInt64(&queriesDeduped, 1)
}

// ResetMetrics zeros every counter.
func ResetMetrics() {
	atomic.StoreInt64(&queriesTotal, 0)
	atomic.StoreInt64(&queriesSolved, 0)
	atomic.StoreInt64(&queriesDeduped, 0)
}

// Counters returns (total, solved, deduped) since the last reset.
func Counters() (total, solved, deduped int64) {
	return atomic.LoadInt64(&queriesTotal),
		atomic.LoadInt64(&queriesSolved),
		atomic.LoadInt64(&queriesDeduped)
}
