package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KevoDB/ingest/pkg/common/log"
	"github.com/KevoDB/ingest/pkg/config"
	"github.com/KevoDB/ingest/pkg/memtable"
	"github.com/KevoDB/ingest/pkg/sstable"
	"github.com/KevoDB/ingest/pkg/stats"
	"github.com/KevoDB/ingest/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// State is the lifecycle state of a WritePath
type State int32

const (
	// StateRunning accepts writes
	StateRunning State = iota
	// StateShuttingDown rejects writes while the last memtables are persisted
	StateShuttingDown
	// StateClosed means the worker has exited and every segment is written
	StateClosed
)

// String returns the name of the state
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// WritePath accepts writes into an active memtable and hands full memtables
// to a background worker that persists each one as a segment file.
//
// At most cap(handoff) frozen memtables wait for the worker. When the handoff
// is full the writer whose Put froze the active table blocks until the worker
// takes one, which is the write stall. Other writers keep filling the new
// active table while that happens.
type WritePath struct {
	dir       string
	threshold int64
	kind      memtable.Kind

	// mu guards active and state transitions
	mu     sync.Mutex
	active memtable.MemTable
	state  atomic.Int32

	// submitMu serializes freezes so segments are written in freeze order.
	// It is held across the handoff send.
	submitMu      sync.Mutex
	handoff       chan memtable.MemTable
	handoffClosed bool

	seq    sequence
	writer sstable.SegmentWriter
	done   chan struct{}

	logger     log.Logger
	tel        telemetry.Telemetry
	metrics    WritePathMetrics
	memMetrics memtable.MemTableMetrics
	stats      stats.Collector
}

// New creates a write path persisting segments to dir. A memtable is frozen
// once it holds sizeThreshold bytes and at most maxBuffers memtables exist at
// once. A maxBuffers of 0 selects the default.
func New(dir string, sizeThreshold int64, maxBuffers int, opts ...Option) (*WritePath, error) {
	cfg := config.NewDefaultConfig(dir)
	cfg.MemTableSize = sizeThreshold
	if maxBuffers != 0 {
		cfg.MaxMemTables = maxBuffers
	}
	return Open(cfg, opts...)
}

// Open creates the segment directory and starts the persistence worker
func Open(cfg *config.Config, opts ...Option) (*WritePath, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.Clone()

	kind, err := memtable.ParseKind(cfg.MemTableKind)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	if err := os.MkdirAll(cfg.SSTDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create segment directory: %w", err)
	}

	w := &WritePath{
		dir:       cfg.SSTDir,
		threshold: cfg.MemTableSize,
		kind:      kind,
		handoff:   make(chan memtable.MemTable, cfg.HandoffCapacity()),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		w.logger = log.GetDefaultLogger()
	}
	w.logger = w.logger.WithField("component", telemetry.ComponentEngine)
	if w.tel == nil {
		w.tel = telemetry.NewNoop()
	}
	if w.stats == nil {
		w.stats = stats.NewAtomicCollector()
	}
	w.metrics = NewWritePathMetrics(w.tel)
	w.memMetrics = memtable.NewMemTableMetrics(w.tel)
	if w.writer == nil {
		writer := sstable.NewWriter(cfg.WriteBufferSize)
		writer.SetTelemetry(sstable.NewSSTableMetrics(w.tel))
		w.writer = writer
	}

	w.active = w.newTable()
	w.state.Store(int32(StateRunning))

	go w.runWorker()

	w.logger.WithFields(map[string]interface{}{
		"dir":           w.dir,
		"threshold":     w.threshold,
		"max_memtables": cfg.MaxMemTables,
		"kind":          kind.String(),
	}).Info("write path started")

	return w, nil
}

func (w *WritePath) newTable() memtable.MemTable {
	// kind was validated in Open
	table, _ := memtable.New(w.kind)
	return table
}

// Put adds a copy of key and value to the active memtable. If the memtable
// reaches the size threshold it is frozen and handed to the worker, blocking
// while the handoff is full.
func (w *WritePath) Put(key, value []byte) error {
	start := time.Now()
	ctx := context.Background()

	k := bytes.Clone(key)
	v := bytes.Clone(value)

	w.mu.Lock()
	if w.State() != StateRunning {
		w.mu.Unlock()
		return ErrClosed
	}
	w.active.Put(k, v)
	size := w.active.Size()
	w.mu.Unlock()

	n := int64(len(k) + len(v))
	w.stats.TrackBytesIngested(uint64(n))
	w.memMetrics.RecordPut(ctx, w.kind, n)

	var err error
	if size >= w.threshold {
		err = w.freeze(ctx, memtable.FreezeReasonSize)
	}

	w.stats.TrackOperationWithLatency(stats.OpPut, uint64(time.Since(start).Nanoseconds()))
	w.metrics.RecordPut(ctx, time.Since(start), err == nil)
	if err != nil {
		w.stats.TrackError("put_freeze_error")
	}
	return err
}

// Flush freezes the active memtable, if it holds anything, regardless of its
// size. It blocks while the handoff is full.
func (w *WritePath) Flush() error {
	ctx, span := w.tel.StartSpan(context.Background(), "kevo.ingest.flush",
		attribute.String(telemetry.AttrOperationType, telemetry.OpTypeFlush))
	defer span.End()

	start := time.Now()
	err := w.freeze(ctx, memtable.FreezeReasonManual)
	w.metrics.RecordFlush(ctx, memtable.FreezeReasonManual, time.Since(start), err == nil)
	if err == nil {
		w.stats.TrackOperationWithLatency(stats.OpFlush, uint64(time.Since(start).Nanoseconds()))
	} else if !errors.Is(err, ErrClosed) {
		span.RecordError(err)
		w.stats.TrackError("flush_error")
	}
	return err
}

// freeze swaps in a fresh active memtable and hands the old one to the
// worker. Size-triggered freezes re-check the threshold because a concurrent
// writer may already have frozen the table that crossed it.
func (w *WritePath) freeze(ctx context.Context, reason string) error {
	start := time.Now()
	w.submitMu.Lock()
	defer w.submitMu.Unlock()

	w.mu.Lock()
	state := w.State()
	if reason == memtable.FreezeReasonManual && state != StateRunning {
		w.mu.Unlock()
		return ErrClosed
	}
	if w.handoffClosed {
		w.mu.Unlock()
		if state == StateRunning {
			return ErrHandoffClosed
		}
		// The shutdown flush already took this table
		return nil
	}
	if w.active.IsEmpty() || (reason == memtable.FreezeReasonSize && w.active.Size() < w.threshold) {
		w.mu.Unlock()
		return nil
	}
	frozen := w.active
	w.active = w.newTable()
	frozen.SetImmutable()
	w.mu.Unlock()

	w.stats.TrackFreeze()
	w.memMetrics.RecordFreeze(ctx, reason, frozen)
	w.logger.WithFields(map[string]interface{}{
		"reason":  reason,
		"bytes":   frozen.Size(),
		"entries": frozen.Len(),
	}).Debug("memtable frozen")

	w.submit(ctx, frozen)
	w.stats.TrackOperationWithLatency(stats.OpFreeze, uint64(time.Since(start).Nanoseconds()))
	return nil
}

// submit sends a frozen memtable to the worker. The caller holds submitMu
// and the handoff is open.
func (w *WritePath) submit(ctx context.Context, table memtable.MemTable) {
	select {
	case w.handoff <- table:
		return
	default:
	}

	pending := len(w.handoff)
	w.logger.WithField("pending", pending).Debug("handoff full, stalling writer")

	start := time.Now()
	w.handoff <- table
	stalled := time.Since(start)

	w.stats.TrackStall(uint64(stalled.Nanoseconds()))
	w.metrics.RecordStall(ctx, stalled, pending)
}

// Close stops accepting writes, persists the active memtable and waits for
// the worker to write every pending segment. Only the first call does this;
// later calls return ErrClosed.
func (w *WritePath) Close() error {
	w.mu.Lock()
	if w.State() != StateRunning {
		w.mu.Unlock()
		return ErrClosed
	}
	w.state.Store(int32(StateShuttingDown))
	w.mu.Unlock()

	ctx := context.Background()
	start := time.Now()
	flushErr := w.freeze(ctx, memtable.FreezeReasonShutdown)
	w.metrics.RecordFlush(ctx, memtable.FreezeReasonShutdown, time.Since(start), flushErr == nil)

	w.submitMu.Lock()
	w.handoffClosed = true
	close(w.handoff)
	w.submitMu.Unlock()

	<-w.done
	w.state.Store(int32(StateClosed))

	w.logger.WithField("segments", w.seq.Peek()).Info("write path closed")
	return flushErr
}

// State returns the lifecycle state
func (w *WritePath) State() State {
	return State(w.state.Load())
}

// Dir returns the segment directory
func (w *WritePath) Dir() string {
	return w.dir
}

// Stats returns write path statistics. Values are plain numbers, strings and
// maps so they can be converted to a protobuf Struct.
func (w *WritePath) Stats() map[string]interface{} {
	result := w.stats.GetStats()
	for key, value := range w.pipelineStats() {
		result[key] = value
	}
	return result
}

// StatsFiltered returns the statistics whose names start with prefix
func (w *WritePath) StatsFiltered(prefix string) map[string]interface{} {
	result := w.stats.GetStatsFiltered(prefix)
	for key, value := range w.pipelineStats() {
		if strings.HasPrefix(key, prefix) {
			result[key] = value
		}
	}
	return result
}

// pipelineStats reports the live state that the collector does not track
func (w *WritePath) pipelineStats() map[string]interface{} {
	w.mu.Lock()
	size, entries := w.active.Size(), w.active.Len()
	w.mu.Unlock()

	return map[string]interface{}{
		"memtable_size":    size,
		"memtable_entries": entries,
		"state":            w.State().String(),
		"memtable_kind":    w.kind.String(),
		"handoff_pending":  len(w.handoff),
		"handoff_capacity": cap(w.handoff),
		"next_segment":     w.seq.Peek(),
	}
}
