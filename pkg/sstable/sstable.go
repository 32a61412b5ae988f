package sstable

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/KevoDB/ingest/pkg/memtable"
)

const (
	// FileExtension is the suffix of every segment file
	FileExtension = ".sst"
	// DefaultBufferSize is the write buffer used when none is configured
	DefaultBufferSize = 64 * 1024
	// LengthPrefixSize is the size of the key and value length fields
	LengthPrefixSize = 4
	// MaxFieldSize is the largest key or value a record can hold
	MaxFieldSize = math.MaxUint32
)

var (
	// ErrCorruptSegment indicates a segment ended in the middle of a record
	ErrCorruptSegment = errors.New("sstable: corrupt segment")
	// ErrFieldTooLarge indicates a key or value does not fit a length prefix
	ErrFieldTooLarge = errors.New("sstable: field exceeds maximum record size")
)

// SegmentInfo describes a segment after it has been written
type SegmentInfo struct {
	Seq     uint64
	Path    string
	Entries int
	// Bytes is the file size, length prefixes included
	Bytes int64
	// Checksum is the xxhash64 of the file contents. It is not stored on disk.
	Checksum uint64
}

// SegmentWriter persists the entries of one frozen memtable as segment seq in dir
type SegmentWriter interface {
	WriteSegment(ctx context.Context, dir string, seq uint64, entries []memtable.Entry) (*SegmentInfo, error)
}

// FileName returns the segment file name for seq, zero-padded to six digits
func FileName(seq uint64) string {
	return fmt.Sprintf("%06d%s", seq, FileExtension)
}

// ParseFileName extracts the sequence number from a segment file name
func ParseFileName(name string) (uint64, bool) {
	base, ok := strings.CutSuffix(name, FileExtension)
	if !ok || len(base) < 6 {
		return 0, false
	}
	seq, err := strconv.ParseUint(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// ListSegments returns the segment file names in dir ordered by sequence number
func ListSegments(dir string) ([]string, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment directory: %w", err)
	}

	type segment struct {
		name string
		seq  uint64
	}
	var segments []segment
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		if seq, ok := ParseFileName(de.Name()); ok {
			segments = append(segments, segment{name: de.Name(), seq: seq})
		}
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].seq < segments[j].seq })

	names := make([]string, len(segments))
	for i, s := range segments {
		names[i] = s.name
	}
	return names, nil
}
