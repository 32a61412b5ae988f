package memtable

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/KevoDB/ingest/pkg/config"
)

// Kind selects the MemTable implementation
type Kind int

const (
	// KindLog keeps entries in insertion order
	KindLog Kind = iota
	// KindSorted keeps entries in ascending key order
	KindSorted
)

// ErrUnknownKind is returned by ParseKind and New for an unrecognized kind
var ErrUnknownKind = errors.New("unknown memtable kind")

// String returns the configuration name of the kind
func (k Kind) String() string {
	switch k {
	case KindLog:
		return config.MemTableKindLog
	case KindSorted:
		return config.MemTableKindSorted
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind maps a configuration name onto a Kind
func ParseKind(name string) (Kind, error) {
	switch name {
	case config.MemTableKindLog:
		return KindLog, nil
	case config.MemTableKindSorted:
		return KindSorted, nil
	}
	return KindLog, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// Entry is a key-value pair held by a MemTable
type Entry struct {
	Key   []byte
	Value []byte
}

// Size returns the number of bytes the entry adds to a MemTable
func (e Entry) Size() int64 {
	return int64(len(e.Key) + len(e.Value))
}

// MemTable is an in-memory buffer of writes waiting to become a segment.
//
// A MemTable is not safe for concurrent mutation: the owner serializes Put
// and calls SetImmutable before handing the table to another goroutine.
// Duplicate keys are all retained. Size counts every Put, duplicates included.
type MemTable interface {
	// Put adds an entry. It panics if the table is immutable.
	Put(key, value []byte)
	// Size returns the key and value bytes put so far
	Size() int64
	// Len returns the number of entries
	Len() int
	// IsEmpty reports whether nothing has been put
	IsEmpty() bool
	// Entries returns the entries in the table's persistence order
	Entries() []Entry
	// SetImmutable freezes the table
	SetImmutable()
	// IsImmutable reports whether the table is frozen
	IsImmutable() bool
	// Age returns the time since the table was created
	Age() time.Duration
	// Kind returns the table implementation
	Kind() Kind
}

// New creates an empty MemTable of the given kind
func New(kind Kind) (MemTable, error) {
	switch kind {
	case KindLog:
		return NewLogTable(), nil
	case KindSorted:
		return NewSortedTable(), nil
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(kind))
}

// state is shared bookkeeping for MemTable implementations
type state struct {
	creationTime time.Time
	immutable    atomic.Bool
}

func newState() state {
	return state{creationTime: time.Now()}
}

func (s *state) checkMutable() {
	if s.immutable.Load() {
		panic("memtable: put on immutable table")
	}
}

// SetImmutable marks the MemTable as immutable
func (s *state) SetImmutable() {
	s.immutable.Store(true)
}

// IsImmutable returns whether the MemTable is immutable
func (s *state) IsImmutable() bool {
	return s.immutable.Load()
}

// Age returns the age of the MemTable
func (s *state) Age() time.Duration {
	return time.Since(s.creationTime)
}
