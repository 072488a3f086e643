package storage

import (
	"sync"

	"github.com/tidwall/btree"
	"mit.edu/dsg/flowdb/common"
)

type memRow struct {
	rowID  int64
	values []common.Value
}

// MemTable is an in-memory table of rows ordered by a monotonically increasing row id.
// It is a wrapper around github.com/tidwall/btree. Readers scan a copy-on-write snapshot of the tree, so
// inserts that happen while a pipeline is scanning are not visible to that scan.
type MemTable struct {
	types []common.Type

	mu        sync.Mutex // serializes writers; readers only take snapshots
	nextRowID int64
	tree      *btree.BTreeG[memRow]
}

// NewMemTable creates an empty table with the given column types.
func NewMemTable(types []common.Type) *MemTable {
	return &MemTable{
		types: append([]common.Type(nil), types...),
		tree:  btree.NewBTreeG(func(a, b memRow) bool { return a.rowID < b.rowID }),
	}
}

// Types returns the column types of the table.
func (t *MemTable) Types() []common.Type {
	return t.types
}

// Len returns the number of rows currently in the table.
func (t *MemTable) Len() int {
	return t.tree.Len()
}

// Insert appends a row and returns its row id. NULL is accepted in any column; any other value must match the
// column type.
func (t *MemTable) Insert(values ...common.Value) (int64, error) {
	if err := t.checkRow(values); err != nil {
		return 0, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insertLocked(values), nil
}

// InsertBatch appends every row of b.
func (t *MemTable) InsertBatch(b *RowBatch) error {
	row := make([]common.Value, 0, b.NumColumns())
	for i := 0; i < b.NumRows(); i++ {
		if err := t.checkRow(b.Row(i, row)); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < b.NumRows(); i++ {
		row = b.Row(i, row)
		t.insertLocked(row)
	}
	return nil
}

func (t *MemTable) insertLocked(values []common.Value) int64 {
	id := t.nextRowID
	t.nextRowID++
	t.tree.Set(memRow{rowID: id, values: append([]common.Value(nil), values...)})
	return id
}

func (t *MemTable) checkRow(values []common.Value) error {
	if len(values) != len(t.types) {
		return common.NewError(common.ResourceFaultError, "row has %d values, table has %d columns", len(values), len(t.types))
	}
	for i, v := range values {
		if !v.IsNull() && v.Type() != t.types[i] {
			return common.NewError(common.ResourceFaultError, "column %d expects %s, got %s", i, t.types[i], v.Type())
		}
	}
	return nil
}

// Reader returns a reader over a snapshot of the table producing batches of at most batchSize rows.
func (t *MemTable) Reader(batchSize int) BatchReader {
	return t.RangeReader(0, -1, batchSize)
}

// RangeReader returns a reader over the rows with lo <= rowID < hi of a snapshot of the table. A negative hi
// means no upper bound.
func (t *MemTable) RangeReader(lo, hi int64, batchSize int) BatchReader {
	common.Assert(batchSize > 0, "batch size must be positive")
	t.mu.Lock()
	snapshot := t.tree.Copy()
	t.mu.Unlock()

	iter := snapshot.Iter()
	return &memTableReader{
		iter:  iter,
		valid: iter.Seek(memRow{rowID: lo}),
		hi:    hi,
		batch: NewRowBatch(len(t.types), batchSize),
		size:  batchSize,
	}
}

type memTableReader struct {
	iter   btree.IterG[memRow]
	valid  bool
	hi     int64
	batch  *RowBatch
	size   int
	closed bool
}

func (r *memTableReader) Next() (*RowBatch, error) {
	if r.closed {
		return nil, nil
	}
	r.batch.Resize(0)
	for r.valid && r.batch.NumRows() < r.size {
		item := r.iter.Item()
		if r.hi >= 0 && item.rowID >= r.hi {
			r.valid = false
			break
		}
		r.batch.AppendRow(item.values...)
		r.valid = r.iter.Next()
	}
	if r.batch.NumRows() == 0 {
		return nil, nil
	}
	return r.batch, nil
}

func (r *memTableReader) Close() error {
	if !r.closed {
		r.closed = true
		r.iter.Release()
	}
	return nil
}
