package memtable

// SortedTable keeps entries in ascending key order using a skip list.
// Entries with equal keys are yielded in the order they were put.
type SortedTable struct {
	state
	list *SkipList
}

var _ MemTable = (*SortedTable)(nil)

// NewSortedTable creates an empty key-ordered table
func NewSortedTable() *SortedTable {
	return &SortedTable{
		state: newState(),
		list:  NewSkipList(),
	}
}

// Put inserts the entry at its key position
func (t *SortedTable) Put(key, value []byte) {
	t.checkMutable()
	t.list.Insert(key, value)
}

func (t *SortedTable) Size() int64 { return t.list.Size() }

func (t *SortedTable) Len() int { return t.list.Len() }

func (t *SortedTable) IsEmpty() bool { return t.list.Len() == 0 }

// Entries returns a snapshot of the entries in key order
func (t *SortedTable) Entries() []Entry {
	entries := make([]Entry, 0, t.list.Len())
	it := t.list.NewIterator()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		entries = append(entries, Entry{Key: it.Key(), Value: it.Value()})
	}
	return entries
}

func (t *SortedTable) Kind() Kind { return KindSorted }
