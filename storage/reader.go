package storage

// BatchReader is the storage boundary. A reader hands out batches until it returns (nil, nil), which marks the
// end of the data; calling Next again after that keeps returning (nil, nil). The batch returned by Next is owned
// by the reader and is only valid until the following call to Next or Close.
//
// Close releases whatever the reader holds (file handle, snapshot) and must be called exactly once, whether or
// not the data was read to the end.
type BatchReader interface {
	Next() (*RowBatch, error)
	Close() error
}

// sliceReader serves a fixed list of batches.
type sliceReader struct {
	batches []*RowBatch
	pos     int
}

// NewSliceReader returns a reader over the given batches. The batches are served as is, without copying.
func NewSliceReader(batches ...*RowBatch) BatchReader {
	return &sliceReader{batches: batches}
}

func (r *sliceReader) Next() (*RowBatch, error) {
	for r.pos < len(r.batches) {
		b := r.batches[r.pos]
		r.pos++
		if b.NumRows() > 0 {
			return b, nil
		}
	}
	return nil, nil
}

func (r *sliceReader) Close() error {
	r.batches = nil
	return nil
}
