package sstable

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/KevoDB/ingest/pkg/memtable"
	"github.com/cespare/xxhash/v2"
)

// FileManager handles the buffered file operations for one segment
type FileManager struct {
	path    string
	file    *os.File
	buf     *bufio.Writer
	digest  *xxhash.Digest
	written int64
	scratch [LengthPrefixSize]byte
}

// NewFileManager creates path, truncating any existing file
func NewFileManager(path string, bufferSize int) (*FileManager, error) {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file: %w", err)
	}

	return &FileManager{
		path:   path,
		file:   file,
		buf:    bufio.NewWriterSize(file, bufferSize),
		digest: xxhash.New(),
	}, nil
}

func (fm *FileManager) write(data []byte) error {
	n, err := fm.buf.Write(data)
	fm.written += int64(n)
	if err != nil {
		return err
	}
	// Digest.Write never fails
	fm.digest.Write(data)
	return nil
}

func (fm *FileManager) writeField(data []byte) error {
	if uint64(len(data)) > MaxFieldSize {
		return fmt.Errorf("%w: %d bytes", ErrFieldTooLarge, len(data))
	}
	binary.LittleEndian.PutUint32(fm.scratch[:], uint32(len(data)))
	if err := fm.write(fm.scratch[:]); err != nil {
		return err
	}
	return fm.write(data)
}

// WriteRecord appends one length-prefixed key/value record
func (fm *FileManager) WriteRecord(key, value []byte) error {
	if err := fm.writeField(key); err != nil {
		return err
	}
	return fm.writeField(value)
}

// Finish flushes buffered records to the OS and closes the file.
// The data is not synced to stable storage.
func (fm *FileManager) Finish() error {
	if err := fm.buf.Flush(); err != nil {
		fm.Close()
		return fmt.Errorf("failed to flush segment: %w", err)
	}
	return fm.Close()
}

// Close closes the file
func (fm *FileManager) Close() error {
	if fm.file == nil {
		return nil
	}
	err := fm.file.Close()
	fm.file = nil
	return err
}

// Writer writes memtable entries to segment files
type Writer struct {
	bufferSize int
	metrics    SSTableMetrics
}

var _ SegmentWriter = (*Writer)(nil)

// NewWriter creates a segment writer that buffers bufferSize bytes before
// each write to the file
func NewWriter(bufferSize int) *Writer {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Writer{
		bufferSize: bufferSize,
		metrics:    NewNoopSSTableMetrics(),
	}
}

// SetTelemetry sets the metrics recorded for every segment
func (w *Writer) SetTelemetry(metrics SSTableMetrics) {
	if metrics == nil {
		metrics = NewNoopSSTableMetrics()
	}
	w.metrics = metrics
}

// WriteSegment writes entries, in the order given, to the segment file for seq.
// A failed write leaves whatever was written before the failure on disk.
func (w *Writer) WriteSegment(ctx context.Context, dir string, seq uint64, entries []memtable.Entry) (*SegmentInfo, error) {
	start := time.Now()
	path := filepath.Join(dir, FileName(seq))

	fm, err := NewFileManager(path, w.bufferSize)
	if err != nil {
		w.metrics.RecordError(ctx, "create")
		return nil, err
	}

	for i, e := range entries {
		if err := fm.WriteRecord(e.Key, e.Value); err != nil {
			fm.Close()
			w.metrics.RecordError(ctx, "write")
			return nil, fmt.Errorf("failed to write record %d of %s: %w", i, path, err)
		}
	}

	if err := fm.Finish(); err != nil {
		w.metrics.RecordError(ctx, "flush")
		return nil, fmt.Errorf("failed to finish %s: %w", path, err)
	}

	info := &SegmentInfo{
		Seq:      seq,
		Path:     path,
		Entries:  len(entries),
		Bytes:    fm.written,
		Checksum: fm.digest.Sum64(),
	}
	w.metrics.RecordWrite(ctx, time.Since(start), info)
	return info, nil
}
