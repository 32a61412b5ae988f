package stats

// Provider defines the interface for components that provide statistics
type Provider interface {
	// GetStats returns all statistics
	GetStats() map[string]interface{}

	// GetStatsFiltered returns statistics filtered by prefix
	GetStatsFiltered(prefix string) map[string]interface{}
}

// Collector interface defines methods for collecting write path statistics
type Collector interface {
	Provider

	// TrackOperation records a single operation
	TrackOperation(op OperationType)

	// TrackOperationWithLatency records an operation with its latency
	TrackOperationWithLatency(op OperationType, latencyNs uint64)

	// TrackError increments the counter for the specified error type
	TrackError(errorType string)

	// TrackBytesIngested adds key and value bytes accepted by Put
	TrackBytesIngested(bytes uint64)

	// TrackFreeze counts a memtable handed to the persistence worker
	TrackFreeze()

	// TrackStall records a writer blocked on a full handoff for latencyNs
	TrackStall(latencyNs uint64)

	// TrackSegment records a segment file written by the worker
	TrackSegment(bytes uint64, entries uint64)
}

// Ensure AtomicCollector implements the Collector interface
var _ Collector = (*AtomicCollector)(nil)
