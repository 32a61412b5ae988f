package memtable

import (
	"bytes"
	"math/rand"
	"time"
)

const (
	// MaxHeight is the maximum height of the skip list
	MaxHeight = 12

	// BranchingFactor determines the probability of increasing the height
	BranchingFactor = 4
)

// entry is a key-value pair tagged with its insertion order in the list
type entry struct {
	key   []byte
	value []byte
	seq   uint64
}

// size returns the number of key and value bytes held by the entry
func (e *entry) size() int64 {
	return int64(len(e.key) + len(e.value))
}

// compareWithEntry orders by key, then by insertion order so that equal
// keys keep the order in which they were put.
func (e *entry) compareWithEntry(other *entry) int {
	cmp := bytes.Compare(e.key, other.key)
	if cmp != 0 {
		return cmp
	}
	switch {
	case e.seq < other.seq:
		return -1
	case e.seq > other.seq:
		return 1
	}
	return 0
}

// node represents a node in the skip list
type node struct {
	entry *entry
	// next contains pointers to the next nodes at each level
	next [MaxHeight]*node
}

// SkipList is a single-writer skip list ordered by key then insertion.
// Callers serialize Insert; iteration is safe once writes have stopped.
type SkipList struct {
	head      *node
	maxHeight int
	rnd       *rand.Rand
	nextSeq   uint64
	size      int64
	count     int
}

// NewSkipList creates a new skip list
func NewSkipList() *SkipList {
	return &SkipList{
		head:      &node{},
		maxHeight: 1,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// randomHeight generates a random height for a new node
func (s *SkipList) randomHeight() int {
	height := 1
	for height < MaxHeight && s.rnd.Intn(BranchingFactor) == 0 {
		height++
	}
	return height
}

// Insert adds key and value after any existing entries with the same key.
func (s *SkipList) Insert(key, value []byte) {
	e := &entry{key: key, value: value, seq: s.nextSeq}
	s.nextSeq++

	height := s.randomHeight()
	if height > s.maxHeight {
		s.maxHeight = height
	}

	var prev [MaxHeight]*node
	current := s.head
	for level := s.maxHeight - 1; level >= 0; level-- {
		for next := current.next[level]; next != nil; next = current.next[level] {
			if next.entry.compareWithEntry(e) >= 0 {
				break
			}
			current = next
		}
		prev[level] = current
	}

	n := &node{entry: e}
	for level := 0; level < height; level++ {
		n.next[level] = prev[level].next[level]
		prev[level].next[level] = n
	}

	s.size += e.size()
	s.count++
}

// Size returns the number of key and value bytes inserted
func (s *SkipList) Size() int64 {
	return s.size
}

// Len returns the number of entries in the list
func (s *SkipList) Len() int {
	return s.count
}

// Iterator provides sequential access to the skip list entries
type Iterator struct {
	list    *SkipList
	current *node
}

// NewIterator creates a new Iterator for the skip list
func (s *SkipList) NewIterator() *Iterator {
	return &Iterator{
		list:    s,
		current: s.head,
	}
}

// Valid returns true if the iterator is positioned at a valid entry
func (it *Iterator) Valid() bool {
	return it.current != nil && it.current != it.list.head
}

// Next advances the iterator to the next entry
func (it *Iterator) Next() {
	if it.current == nil {
		return
	}
	it.current = it.current.next[0]
}

// SeekToFirst positions the iterator at the first entry
func (it *Iterator) SeekToFirst() {
	it.current = it.list.head.next[0]
}

// Key returns the key of the current entry
func (it *Iterator) Key() []byte {
	if !it.Valid() {
		return nil
	}
	return it.current.entry.key
}

// Value returns the value of the current entry
func (it *Iterator) Value() []byte {
	if !it.Valid() {
		return nil
	}
	return it.current.entry.value
}
