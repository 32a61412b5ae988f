package stats

import (
	"sync"
	"testing"
	"time"
)

func TestCollector_TrackOperation(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperation(OpPut)
	collector.TrackOperation(OpPut)
	collector.TrackOperation(OpFlush)

	stats := collector.GetStats()

	if stats["put_ops"].(uint64) != 2 {
		t.Errorf("Expected 2 put operations, got %v", stats["put_ops"])
	}
	if stats["flush_ops"].(uint64) != 1 {
		t.Errorf("Expected 1 flush operation, got %v", stats["flush_ops"])
	}
	if _, exists := stats["last_put_time"]; !exists {
		t.Errorf("Expected last_put_time to exist in stats")
	}
}

func TestCollector_TrackOperationWithLatency(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperationWithLatency(OpSegmentWrite, 100)
	collector.TrackOperationWithLatency(OpSegmentWrite, 200)
	collector.TrackOperationWithLatency(OpSegmentWrite, 300)

	stats := collector.GetStats()

	latencyStats, ok := stats["segment_write_latency"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected segment_write_latency to be a map, got %T", stats["segment_write_latency"])
	}
	if count := latencyStats["count"].(uint64); count != 3 {
		t.Errorf("Expected 3 latency records, got %v", count)
	}
	if avg := latencyStats["avg_ns"].(uint64); avg != 200 {
		t.Errorf("Expected average latency 200ns, got %v", avg)
	}
	if min := latencyStats["min_ns"].(uint64); min != 100 {
		t.Errorf("Expected min latency 100ns, got %v", min)
	}
	if max := latencyStats["max_ns"].(uint64); max != 300 {
		t.Errorf("Expected max latency 300ns, got %v", max)
	}
}

func TestCollector_PipelineCounters(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackBytesIngested(60)
	collector.TrackBytesIngested(40)
	collector.TrackFreeze()
	collector.TrackFreeze()
	collector.TrackStall(uint64(3 * time.Millisecond))
	collector.TrackSegment(128, 2)
	collector.TrackError("segment_write_error")

	stats := collector.GetStats()

	expected := map[string]uint64{
		"total_bytes_ingested": 100,
		"freeze_count":         2,
		"stall_count":          1,
		"stall_time_ms":        3,
		"segment_count":        1,
		"total_bytes_written":  128,
		"entries_written":      2,
	}
	for key, want := range expected {
		if got := stats[key].(uint64); got != want {
			t.Errorf("%s: expected %d, got %d", key, want, got)
		}
	}

	errs := stats["errors"].(map[string]interface{})
	if errs["segment_write_error"].(uint64) != 1 {
		t.Errorf("Expected 1 segment_write_error, got %v", errs["segment_write_error"])
	}
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	collector := NewAtomicCollector()
	const numGoroutines = 10
	const opsPerGoroutine = 999

	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()

			for j := 0; j < opsPerGoroutine; j++ {
				switch j % 3 {
				case 0:
					collector.TrackOperation(OpPut)
				case 1:
					collector.TrackStall(1)
				case 2:
					collector.TrackOperationWithLatency(OpFreeze, uint64(j))
				}
			}
		}()
	}

	wg.Wait()

	stats := collector.GetStats()
	expectedOps := uint64(numGoroutines * opsPerGoroutine / 3)

	if ops := stats["put_ops"].(uint64); ops != expectedOps {
		t.Errorf("Expected %d put operations, got %v", expectedOps, ops)
	}
	if stalls := stats["stall_count"].(uint64); stalls != expectedOps {
		t.Errorf("Expected %d stalls, got %v", expectedOps, stalls)
	}
	if ops := stats["freeze_ops"].(uint64); ops != expectedOps {
		t.Errorf("Expected %d freeze operations, got %v", expectedOps, ops)
	}
}

func TestCollector_GetStatsFiltered(t *testing.T) {
	collector := NewAtomicCollector()

	collector.TrackOperation(OpPut)
	collector.TrackStall(10)
	collector.TrackSegment(10, 1)

	filtered := collector.GetStatsFiltered("stall")
	if len(filtered) != 2 {
		t.Errorf("Expected stall_count and stall_time_ms, got %v", filtered)
	}
	if _, ok := filtered["put_ops"]; ok {
		t.Errorf("put_ops should have been filtered out")
	}

	all := collector.GetStatsFiltered("")
	if len(all) != len(collector.GetStats()) {
		t.Errorf("Empty prefix should return every statistic")
	}
}
