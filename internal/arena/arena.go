// Package arena implements a bump allocator for memtable value storage.
//
// Grounded on original_source's common/allocator.hpp ArenaAllocator: values
// written into a memtable are copied into fixed-size blocks instead of
// being retained as individually garbage-collected slices, so a memtable
// holding many small values puts far less pressure on the GC than one
// slice-per-value would.
package arena

// BlockSize is the size of each backing block. A value larger than
// BlockSize gets its own dedicated block.
const BlockSize = 8192

// Arena is a bump allocator. It is not safe for concurrent use; callers
// serialize writes externally (the engine's write mutex serializes
// memtable Put/Del; the memtable itself takes no lock).
type Arena struct {
	blocks     [][]byte
	cur        []byte
	off        int
	memoryUsed int
}

// New returns an empty Arena.
func New() *Arena {
	return &Arena{}
}

// Allocate copies src into the arena and returns a slice backed by arena
// memory. The returned slice is valid for the lifetime of the Arena.
func (a *Arena) Allocate(src []byte) []byte {
	n := len(src)
	if n == 0 {
		return nil
	}
	if a.cur == nil || a.off+n > len(a.cur) {
		size := BlockSize
		if n > size {
			size = n
		}
		a.cur = make([]byte, size)
		a.off = 0
		a.blocks = append(a.blocks, a.cur)
		a.memoryUsed += size
	}
	dst := a.cur[a.off : a.off+n : a.off+n]
	copy(dst, src)
	a.off += n
	return dst
}

// MemoryUsage returns the total number of bytes backing all blocks,
// including unused tail space in the current block.
func (a *Arena) MemoryUsage() int {
	return a.memoryUsed
}
