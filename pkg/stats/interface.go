package stats

import "time"

// Provider defines the interface for components that provide statistics
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics filtered by prefix
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector interface defines methods for collecting statistics about the
// tree engine: operation counters/latencies, error counts, byte
// throughput, structural gauges (leaf counts), and recovery timing.
type Collector interface {
	Provider

	// TrackOperation records a single operation
	TrackOperation(op OperationType)

	// TrackOperationWithLatency records an operation with its latency
	TrackOperationWithLatency(op OperationType, latencyNs uint64)

	// TrackError increments the counter for the specified error type
	TrackError(errorType string)

	// TrackBytes adds the specified number of bytes to the read or write counter
	TrackBytes(isWrite bool, bytes uint64)

	// TrackLeafStats records the current shape of the leaf chain: how
	// many persistent leaves exist in total, how many are empty, and how
	// many of those empty leaves are sitting in the preallocated pool
	// waiting for reuse.
	TrackLeafStats(totalLeaves, emptyLeaves, preallocatedLeaves uint64)

	// TrackPoolSize records the current size in bytes of the pool's
	// backing file.
	TrackPoolSize(bytes uint64)

	// TrackDefrag increments the defrag pass counter.
	TrackDefrag()

	// StartRecovery initializes recovery statistics
	StartRecovery() time.Time

	// FinishRecovery completes recovery statistics
	FinishRecovery(startTime time.Time, leavesRecovered, entriesRecovered, corruptedEntries uint64)
}

// Ensure AtomicCollector implements the Collector interface
var _ Collector = (*AtomicCollector)(nil)
