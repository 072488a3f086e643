package storage

import (
	"strings"

	"mit.edu/dsg/flowdb/common"
)

// RowBatch is the unit of data exchanged between pipeline stages.
//
// A batch is columnar: it stores one slice of values per column, all of the same logical length NumRows(). The
// column count is fixed when the batch is created; the row count is changed with Resize. Backing storage is kept
// across Resize calls so that a batch reused as an operator's scratch buffer does not reallocate every iteration.
//
// A batch is owned by exactly one operator at a time. Ownership moves downstream on emit and the emitter must not
// touch the batch until the consumer asks for the next one.
type RowBatch struct {
	columns [][]common.Value
	numRows int
}

// NewRowBatch creates an empty batch with the given column count and per-column capacity.
func NewRowBatch(numColumns int, capacity int) *RowBatch {
	common.Assert(numColumns >= 0, "negative column count %d", numColumns)
	columns := make([][]common.Value, numColumns)
	for i := range columns {
		columns[i] = make([]common.Value, 0, capacity)
	}
	return &RowBatch{columns: columns}
}

// FromRows builds a batch from row-major values. All rows must have the same width.
func FromRows(rows ...[]common.Value) *RowBatch {
	if len(rows) == 0 {
		return NewRowBatch(0, 0)
	}
	b := NewRowBatch(len(rows[0]), len(rows))
	for _, row := range rows {
		b.AppendRow(row...)
	}
	return b
}

// FromColumns builds a batch from column slices. All columns must have the same length.
func FromColumns(columns ...[]common.Value) *RowBatch {
	b := &RowBatch{columns: make([][]common.Value, len(columns))}
	for i, col := range columns {
		if i > 0 {
			common.Assert(len(col) == b.numRows, "column %d has %d rows, expected %d", i, len(col), b.numRows)
		}
		b.numRows = len(col)
		b.columns[i] = append([]common.Value(nil), col...)
	}
	return b
}

// IntColumn is a shorthand for a single int column batch.
func IntColumn(values ...int64) *RowBatch {
	col := make([]common.Value, len(values))
	for i, v := range values {
		col[i] = common.NewIntValue(v)
	}
	return FromColumns(col)
}

// NumColumns returns the fixed column count.
func (b *RowBatch) NumColumns() int {
	return len(b.columns)
}

// NumRows returns the current row count.
func (b *RowBatch) NumRows() int {
	return b.numRows
}

// Resize sets the row count to n. Cells exposed by growing the batch are NULL; the contents of the remaining
// rows are unchanged.
func (b *RowBatch) Resize(n int) {
	common.Assert(n >= 0, "negative row count %d", n)
	for i, col := range b.columns {
		if n <= cap(col) {
			old := len(col)
			col = col[:n]
			for j := old; j < n; j++ {
				col[j] = common.Value{}
			}
		} else {
			grown := make([]common.Value, n)
			copy(grown, col)
			col = grown
		}
		b.columns[i] = col
	}
	b.numRows = n
}

// Get returns the cell at (row, col).
func (b *RowBatch) Get(row, col int) common.Value {
	common.Assert(row >= 0 && row < b.numRows, "row %d out of range [0,%d)", row, b.numRows)
	return b.columns[col][row]
}

// Set overwrites the cell at (row, col).
func (b *RowBatch) Set(row, col int, v common.Value) {
	common.Assert(row >= 0 && row < b.numRows, "row %d out of range [0,%d)", row, b.numRows)
	b.columns[col][row] = v
}

// Column returns the values of column col. The slice aliases the batch and is only valid until it is resized.
func (b *RowBatch) Column(col int) []common.Value {
	return b.columns[col][:b.numRows]
}

// Row copies row into dst, reusing its capacity, and returns it.
func (b *RowBatch) Row(row int, dst []common.Value) []common.Value {
	common.Assert(row >= 0 && row < b.numRows, "row %d out of range [0,%d)", row, b.numRows)
	dst = dst[:0]
	for _, col := range b.columns {
		dst = append(dst, col[row])
	}
	return dst
}

// AppendRow adds a row at the end of the batch.
func (b *RowBatch) AppendRow(values ...common.Value) {
	common.Assert(len(values) == len(b.columns), "row has %d values, batch has %d columns", len(values), len(b.columns))
	for i, v := range values {
		b.columns[i] = append(b.columns[i][:b.numRows], v)
	}
	b.numRows++
}

// AppendBatch adds all rows of other, which must have the same width, at the end of the batch.
func (b *RowBatch) AppendBatch(other *RowBatch) {
	common.Assert(other.NumColumns() == b.NumColumns(), "width mismatch: %d vs %d", other.NumColumns(), b.NumColumns())
	for i := range b.columns {
		b.columns[i] = append(b.columns[i][:b.numRows], other.Column(i)...)
	}
	b.numRows += other.numRows
}

// CopyRows overwrites rows [dstStart, dstStart+n) of column dstCol with rows [srcStart, srcStart+n) of column
// srcCol of src.
func (b *RowBatch) CopyRows(dstCol, dstStart int, src *RowBatch, srcCol, srcStart, n int) {
	common.Assert(dstStart+n <= b.numRows && srcStart+n <= src.numRows, "copy out of range")
	copy(b.columns[dstCol][dstStart:dstStart+n], src.columns[srcCol][srcStart:srcStart+n])
}

// Clone returns a deep copy of the batch that shares no backing storage with it.
func (b *RowBatch) Clone() *RowBatch {
	c := &RowBatch{columns: make([][]common.Value, len(b.columns)), numRows: b.numRows}
	for i, col := range b.columns {
		c.columns[i] = append(make([]common.Value, 0, b.numRows), col[:b.numRows]...)
	}
	return c
}

// Equal reports whether both batches have the same shape and equal cells.
func (b *RowBatch) Equal(other *RowBatch) bool {
	if b == nil || other == nil {
		return b == other
	}
	if b.NumColumns() != other.NumColumns() || b.numRows != other.numRows {
		return false
	}
	for i := range b.columns {
		for j := 0; j < b.numRows; j++ {
			if !b.columns[i][j].Equal(other.columns[i][j]) {
				return false
			}
		}
	}
	return true
}

func (b *RowBatch) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	row := make([]common.Value, 0, len(b.columns))
	for i := 0; i < b.numRows; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		row = b.Row(i, row)
		sb.WriteString("(")
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(v.String())
		}
		sb.WriteString(")")
	}
	sb.WriteString("]")
	return sb.String()
}
