package storage

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"
	"mit.edu/dsg/flowdb/common"
)

// A block file stores a table as a sequence of compressed batches.
//
//	header: magic (8 bytes) | uvarint column count | one type byte per column
//	block:  uvarint row count | uvarint payload length | crc32c of payload (4 bytes) | payload
//
// The payload is the snappy-compressed, column-major AppendBinary encoding of the block's cells.
const blockFileMagic = "FLOWBLK1"

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// BlockWriter appends batches to a new block file.
type BlockWriter struct {
	path    string
	file    *os.File
	w       *bufio.Writer
	types   []common.Type
	rows    int64
	scratch []byte
	closed  bool
}

// CreateBlockFile creates (or truncates) the file at path and writes the header.
func CreateBlockFile(path string, types []common.Type) (*BlockWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, common.WrapError(common.ResourceFaultError, err, "create block file %s", path)
	}
	w := &BlockWriter{path: path, file: f, w: bufio.NewWriter(f), types: append([]common.Type(nil), types...)}

	header := append([]byte(blockFileMagic), binary.AppendUvarint(nil, uint64(len(types)))...)
	for _, t := range types {
		header = append(header, byte(t))
	}
	if _, err := w.w.Write(header); err != nil {
		_ = f.Close()
		return nil, common.WrapError(common.ResourceFaultError, err, "write block file header %s", path)
	}
	return w, nil
}

// WriteBatch appends b as one block. Empty batches are skipped.
func (w *BlockWriter) WriteBatch(b *RowBatch) error {
	common.Assert(!w.closed, "write to closed block file")
	if b.NumColumns() != len(w.types) {
		return common.NewError(common.ResourceFaultError, "batch has %d columns, block file %s has %d", b.NumColumns(), w.path, len(w.types))
	}
	if b.NumRows() == 0 {
		return nil
	}

	raw := w.scratch[:0]
	for c := 0; c < b.NumColumns(); c++ {
		for _, v := range b.Column(c) {
			if !v.IsNull() && v.Type() != w.types[c] {
				return common.NewError(common.ResourceFaultError, "column %d expects %s, got %s", c, w.types[c], v.Type())
			}
			raw = v.AppendBinary(raw)
		}
	}
	w.scratch = raw
	payload := snappy.Encode(nil, raw)

	hdr := binary.AppendUvarint(nil, uint64(b.NumRows()))
	hdr = binary.AppendUvarint(hdr, uint64(len(payload)))
	hdr = binary.LittleEndian.AppendUint32(hdr, crc32.Checksum(payload, castagnoli))
	if _, err := w.w.Write(hdr); err != nil {
		return common.WrapError(common.ResourceFaultError, err, "write block header %s", w.path)
	}
	if _, err := w.w.Write(payload); err != nil {
		return common.WrapError(common.ResourceFaultError, err, "write block payload %s", w.path)
	}
	w.rows += int64(b.NumRows())
	return nil
}

// Rows returns the number of rows written so far.
func (w *BlockWriter) Rows() int64 {
	return w.rows
}

// Close flushes buffered blocks and closes the file.
func (w *BlockWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.w.Flush()
	if err == nil {
		err = w.file.Sync()
	}
	err = errors.CombineErrors(err, w.file.Close())
	if err != nil {
		return common.WrapError(common.ResourceFaultError, err, "close block file %s", w.path)
	}
	return nil
}

// BlockFileInfo summarizes a block file without decoding its payloads.
type BlockFileInfo struct {
	Types  []common.Type
	Rows   int64
	Blocks int
}

// StatBlockFile reads the header and the block headers of the file at path.
func StatBlockFile(path string) (BlockFileInfo, error) {
	r, err := OpenBlockFile(path)
	if err != nil {
		return BlockFileInfo{}, err
	}
	defer r.Close()

	info := BlockFileInfo{Types: r.Types()}
	for {
		rows, length, _, err := r.readBlockHeader()
		if err == io.EOF {
			return info, nil
		}
		if err != nil {
			return BlockFileInfo{}, err
		}
		if _, err := r.r.Discard(int(length)); err != nil {
			return BlockFileInfo{}, common.WrapError(common.ResourceFaultError, err, "truncated block in %s", path)
		}
		info.Rows += int64(rows)
		info.Blocks++
	}
}

// BlockReader reads a block file one block (batch) at a time. It implements BatchReader.
type BlockReader struct {
	path    string
	file    *os.File
	r       *bufio.Reader
	types   []common.Type
	batch   *RowBatch
	payload []byte
	raw     []byte
	done    bool
	closed  bool
}

// OpenBlockFile opens the file at path and validates its header.
func OpenBlockFile(path string) (*BlockReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.WrapError(common.ResourceFaultError, err, "open block file %s", path)
	}
	r := &BlockReader{path: path, file: f, r: bufio.NewReader(f)}
	if err := r.readHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	r.batch = NewRowBatch(len(r.types), 0)
	return r, nil
}

func (r *BlockReader) readHeader() error {
	magic := make([]byte, len(blockFileMagic))
	if _, err := io.ReadFull(r.r, magic); err != nil || string(magic) != blockFileMagic {
		return common.NewError(common.ResourceFaultError, "%s is not a block file", r.path)
	}
	n, err := binary.ReadUvarint(r.r)
	if err != nil || n > 1<<16 {
		return common.NewError(common.ResourceFaultError, "corrupt column count in %s", r.path)
	}
	r.types = make([]common.Type, n)
	for i := range r.types {
		b, err := r.r.ReadByte()
		if err != nil || !common.Type(b).IsValid() {
			return common.NewError(common.ResourceFaultError, "corrupt column type in %s", r.path)
		}
		r.types[i] = common.Type(b)
	}
	return nil
}

// readBlockHeader returns io.EOF at a clean end of file.
func (r *BlockReader) readBlockHeader() (rows, length uint64, checksum uint32, err error) {
	rows, err = binary.ReadUvarint(r.r)
	if err == io.EOF {
		return 0, 0, 0, io.EOF
	}
	if err != nil {
		return 0, 0, 0, common.WrapError(common.ResourceFaultError, err, "read block header in %s", r.path)
	}
	length, err = binary.ReadUvarint(r.r)
	if err != nil {
		return 0, 0, 0, common.WrapError(common.ResourceFaultError, err, "read block header in %s", r.path)
	}
	var sum [4]byte
	if _, err = io.ReadFull(r.r, sum[:]); err != nil {
		return 0, 0, 0, common.WrapError(common.ResourceFaultError, err, "read block checksum in %s", r.path)
	}
	return rows, length, binary.LittleEndian.Uint32(sum[:]), nil
}

// Types returns the column types stored in the header.
func (r *BlockReader) Types() []common.Type {
	return r.types
}

// Next decodes the next block. The returned batch is reused by the following call.
func (r *BlockReader) Next() (*RowBatch, error) {
	if r.done || r.closed {
		return nil, nil
	}
	rows, length, checksum, err := r.readBlockHeader()
	if err == io.EOF {
		r.done = true
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if length > 1<<31 || rows > 1<<24 {
		return nil, common.NewError(common.ResourceFaultError, "implausible block (%d rows, %d bytes) in %s", rows, length, r.path)
	}

	if uint64(cap(r.payload)) < length {
		r.payload = make([]byte, length)
	}
	r.payload = r.payload[:length]
	if _, err := io.ReadFull(r.r, r.payload); err != nil {
		return nil, common.WrapError(common.ResourceFaultError, err, "truncated block in %s", r.path)
	}
	if crc32.Checksum(r.payload, castagnoli) != checksum {
		return nil, common.NewError(common.ResourceFaultError, "checksum mismatch in %s", r.path)
	}
	r.raw, err = snappy.Decode(r.raw[:cap(r.raw)], r.payload)
	if err != nil {
		return nil, common.WrapError(common.ResourceFaultError, err, "decompress block in %s", r.path)
	}

	r.batch.Resize(int(rows))
	pos := 0
	for c := range r.types {
		for i := 0; i < int(rows); i++ {
			v, n, err := common.ReadValue(r.raw[pos:])
			if err != nil {
				return nil, errors.Wrapf(err, "decode block in %s", r.path)
			}
			r.batch.Set(i, c, v)
			pos += n
		}
	}
	return r.batch, nil
}

// Close releases the file handle.
func (r *BlockReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if err := r.file.Close(); err != nil {
		return common.WrapError(common.ResourceFaultError, err, "close block file %s", r.path)
	}
	return nil
}
