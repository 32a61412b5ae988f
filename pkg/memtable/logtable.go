package memtable

// LogTable appends entries in arrival order. Segments written from a
// LogTable are not sorted.
type LogTable struct {
	state
	entries []Entry
	size    int64
}

var _ MemTable = (*LogTable)(nil)

// NewLogTable creates an empty insertion-ordered table
func NewLogTable() *LogTable {
	return &LogTable{state: newState()}
}

// Put appends the entry
func (t *LogTable) Put(key, value []byte) {
	t.checkMutable()
	e := Entry{Key: key, Value: value}
	t.entries = append(t.entries, e)
	t.size += e.Size()
}

func (t *LogTable) Size() int64 { return t.size }

func (t *LogTable) Len() int { return len(t.entries) }

func (t *LogTable) IsEmpty() bool { return len(t.entries) == 0 }

// Entries returns the entries in insertion order. The slice is shared with
// the table and must not be modified.
func (t *LogTable) Entries() []Entry { return t.entries }

func (t *LogTable) Kind() Kind { return KindLog }
