package sstable

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/KevoDB/ingest/pkg/memtable"
	"github.com/cespare/xxhash/v2"
)

// Reader decodes the records of a segment in file order
type Reader struct {
	path   string
	file   *os.File
	br     *bufio.Reader
	digest *xxhash.Digest
	count  int

	// remaining is the number of unread bytes in the file
	remaining int64
}

// OpenReader opens the segment at path
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment: %w", err)
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat segment: %w", err)
	}
	return &Reader{
		path:      path,
		file:      file,
		br:        bufio.NewReaderSize(file, DefaultBufferSize),
		digest:    xxhash.New(),
		remaining: fi.Size(),
	}, nil
}

// readField reads one length-prefixed field. atStart reports whether a clean
// end of file is allowed before the prefix.
func (r *Reader) readField(atStart bool) ([]byte, error) {
	var prefix [LengthPrefixSize]byte
	n, err := io.ReadFull(r.br, prefix[:])
	if err != nil {
		if atStart && n == 0 && errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %s: truncated length after %d records", ErrCorruptSegment, r.path, r.count)
	}
	r.digest.Write(prefix[:])
	r.remaining -= LengthPrefixSize

	// The prefix is untrusted; never allocate past the end of the file
	length := int64(binary.LittleEndian.Uint32(prefix[:]))
	if length > r.remaining {
		return nil, fmt.Errorf("%w: %s: field of %d bytes with %d left after %d records",
			ErrCorruptSegment, r.path, length, r.remaining, r.count)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r.br, data); err != nil {
		return nil, fmt.Errorf("%w: %s: truncated field after %d records", ErrCorruptSegment, r.path, r.count)
	}
	r.digest.Write(data)
	r.remaining -= length
	return data, nil
}

// Next returns the next record, or io.EOF after the last one
func (r *Reader) Next() (memtable.Entry, error) {
	key, err := r.readField(true)
	if err != nil {
		return memtable.Entry{}, err
	}
	value, err := r.readField(false)
	if err != nil {
		return memtable.Entry{}, err
	}
	r.count++
	return memtable.Entry{Key: key, Value: value}, nil
}

// Count returns the number of records read so far
func (r *Reader) Count() int {
	return r.count
}

// Checksum returns the xxhash64 of the bytes read so far. After Next has
// returned io.EOF it matches SegmentInfo.Checksum of the written segment.
func (r *Reader) Checksum() uint64 {
	return r.digest.Sum64()
}

// Close closes the segment file
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// NewIterator returns an iterator over the remaining records
func (r *Reader) NewIterator() *Iterator {
	return &Iterator{reader: r}
}

// Iterator walks a segment one record at a time
type Iterator struct {
	reader  *Reader
	current memtable.Entry
	err     error
	done    bool
}

// Next advances to the next record and reports whether there is one
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	e, err := it.reader.Next()
	if err != nil {
		it.done = true
		it.current = memtable.Entry{}
		if !errors.Is(err, io.EOF) {
			it.err = err
		}
		return false
	}
	it.current = e
	return true
}

// Key returns the key of the current record
func (it *Iterator) Key() []byte {
	return it.current.Key
}

// Value returns the value of the current record
func (it *Iterator) Value() []byte {
	return it.current.Value
}

// Error returns the error that stopped iteration, if any
func (it *Iterator) Error() error {
	return it.err
}

// ReadSegment decodes every record of the segment at path
func ReadSegment(path string) ([]memtable.Entry, error) {
	r, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var entries []memtable.Entry
	for {
		e, err := r.Next()
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
}
