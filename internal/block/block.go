package block

import (
	"encoding/binary"
	"errors"
	"sort"
)

// ErrCorruptBlock is returned when a block's trailer cannot be parsed.
var ErrCorruptBlock = errors.New("block: corrupt trailer")

// Comparator orders two internal keys, matching dbformat.InternalKeyComparator.Compare.
type Comparator func(a, b []byte) int

// Reader wraps the raw bytes of one serialized block and exposes random
// access to its records via the trailing offset array.
type Reader struct {
	data    []byte
	offsets []uint32
}

// NewReader parses data (as produced by Builder.Finish) into a Reader.
// The returned Reader aliases data; the caller must keep it alive (e.g.
// via a block-cache handle) for as long as any Key()/Value() slice
// derived from it is in use.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < 4 {
		return nil, ErrCorruptBlock
	}
	count := binary.LittleEndian.Uint32(data[len(data)-4:])
	trailerLen := 4 + 4*int(count)
	if trailerLen > len(data) {
		return nil, ErrCorruptBlock
	}
	offStart := len(data) - trailerLen
	offsets := make([]uint32, count)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(data[offStart+4*i:])
	}
	return &Reader{data: data[:offStart], offsets: offsets}, nil
}

// Count returns the number of records in the block.
func (r *Reader) Count() int {
	return len(r.offsets)
}

func (r *Reader) recordAt(idx int) (key, value []byte) {
	off := r.offsets[idx]
	klen := binary.LittleEndian.Uint32(r.data[off:])
	off += 4
	key = r.data[off : off+klen]
	off += klen
	vlen := binary.LittleEndian.Uint32(r.data[off:])
	off += 4
	value = r.data[off : off+vlen]
	return key, value
}

// Iterator walks the records of a Reader in order.
type Iterator struct {
	r   *Reader
	cmp Comparator
	idx int // -1 when invalid, len(offsets) is the end sentinel
}

// NewIterator returns an iterator over r ordered by cmp. The iterator
// starts invalid; call SeekToFirst or Seek to position it.
func NewIterator(r *Reader, cmp Comparator) *Iterator {
	return &Iterator{r: r, cmp: cmp, idx: -1}
}

// Valid reports whether the iterator is positioned at a record.
func (it *Iterator) Valid() bool {
	return it.idx >= 0 && it.idx < len(it.r.offsets)
}

// Key returns a zero-copy slice of the current record's key.
func (it *Iterator) Key() []byte {
	k, _ := it.r.recordAt(it.idx)
	return k
}

// Value returns a zero-copy slice of the current record's value.
func (it *Iterator) Value() []byte {
	_, v := it.r.recordAt(it.idx)
	return v
}

// SeekToFirst positions the iterator at the first record.
func (it *Iterator) SeekToFirst() {
	if len(it.r.offsets) == 0 {
		it.idx = -1
		return
	}
	it.idx = 0
}

// Seek positions the iterator at the first record whose key is >= target.
// If no such record exists the iterator becomes invalid.
func (it *Iterator) Seek(target []byte) {
	n := len(it.r.offsets)
	i := sort.Search(n, func(i int) bool {
		k, _ := it.r.recordAt(i)
		return it.cmp(k, target) >= 0
	})
	if i >= n {
		it.idx = n
		return
	}
	it.idx = i
}

// Next advances to the next record.
func (it *Iterator) Next() {
	if it.idx < len(it.r.offsets) {
		it.idx++
	}
}

// Error always returns nil: a Reader is fully parsed up front, so a
// positioned Iterator cannot fail mid-scan.
func (it *Iterator) Error() error {
	return nil
}
