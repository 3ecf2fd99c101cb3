// Package block implements the sorted, fixed-capacity data block format
// used inside SSTables: a sequence of length-prefixed key/value records
// followed by a trailing array of record offsets, so a reader can binary
// search without scanning.
package block

import "encoding/binary"

// Builder accumulates records into one block.
type Builder struct {
	buf       []byte
	restarts  []uint32 // start offset of each record, in order
	blockSize int
}

// NewBuilder returns a Builder targeting approximately blockSize bytes
// before Append starts refusing additions.
func NewBuilder(blockSize int) *Builder {
	return &Builder{blockSize: blockSize}
}

// Empty reports whether any record has been appended.
func (b *Builder) Empty() bool {
	return len(b.restarts) == 0
}

// Size returns the number of bytes the block would currently occupy,
// including the not-yet-written trailer.
func (b *Builder) Size() int {
	return len(b.buf) + 4*len(b.restarts) + 4
}

// Append adds a record. It returns false without modifying the builder
// when the block already holds at least one record and adding this one
// would exceed blockSize — the caller should finish this block and start
// a new one. The first record in a block is always accepted regardless
// of size, so a single oversized record still produces a valid block.
func (b *Builder) Append(key, value []byte) bool {
	added := 8 + len(key) + len(value)
	if !b.Empty() && b.Size()+added+4 > b.blockSize {
		return false
	}
	b.restarts = append(b.restarts, uint32(len(b.buf)))
	var lenbuf [4]byte
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(key)))
	b.buf = append(b.buf, lenbuf[:]...)
	b.buf = append(b.buf, key...)
	binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(value)))
	b.buf = append(b.buf, lenbuf[:]...)
	b.buf = append(b.buf, value...)
	return true
}

// Finish returns the complete serialized block: records, then the offset
// array, then the record count.
func (b *Builder) Finish() []byte {
	out := make([]byte, len(b.buf), b.Size())
	copy(out, b.buf)
	var tmp [4]byte
	for _, off := range b.restarts {
		binary.LittleEndian.PutUint32(tmp[:], off)
		out = append(out, tmp[:]...)
	}
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(b.restarts)))
	out = append(out, tmp[:]...)
	return out
}

// Reset clears the builder for reuse.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
	b.restarts = b.restarts[:0]
}
