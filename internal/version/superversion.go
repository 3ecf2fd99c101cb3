package version

import (
	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/iterator"
	"rockyardkv/internal/memtable"
)

// SuperVersion pairs the live memtables with the on-disk level tree,
// giving a consistent view for a single Get or iterator without holding
// any lock across the whole operation: the caller snapshots a
// SuperVersion once (a cheap pointer copy under the engine's mutex) and
// then reads from it lock-free.
type SuperVersion struct {
	Mutable    *memtable.MemTable
	Immutables []*memtable.MemTable // newest first
	Current    *Version
}

// Ref pins the SuperVersion's on-disk Version so its tables survive
// concurrent compaction until Unref is called. Memtables need no
// pinning: they are retained by ordinary Go references for as long as
// the SuperVersion itself is reachable.
func (sv *SuperVersion) Ref() {
	sv.Current.Ref()
}

// Unref releases the pin taken by Ref.
func (sv *SuperVersion) Unref() {
	sv.Current.Unref()
}

// Get checks the mutable memtable, then immutable memtables newest
// first, then the on-disk Version, short-circuiting on the first
// Found or Deleted result.
func (sv *SuperVersion) Get(ikc dbformat.InternalKeyComparator, userKey []byte, seq dbformat.SequenceNumber) ([]byte, dbformat.GetResult, error) {
	if v, res := sv.Mutable.Get(userKey, seq); res != dbformat.NotFound {
		return v, res, nil
	}
	for _, m := range sv.Immutables {
		if v, res := m.Get(userKey, seq); res != dbformat.NotFound {
			return v, res, nil
		}
	}
	return sv.Current.Get(ikc, userKey, seq)
}

// NewIterator returns a merging iterator over the mutable memtable, every
// immutable memtable, and every on-disk SortedRun, in that priority
// order. Because InternalKeyComparator orders records with the same user
// key by descending sequence number, the newest version of any key
// surfaces first regardless of which child produced it.
func (sv *SuperVersion) NewIterator(ikc dbformat.InternalKeyComparator) iterator.Iterator {
	children := make([]iterator.Iterator, 0, 2+len(sv.Immutables))
	children = append(children, sv.Mutable.NewIterator())
	for _, m := range sv.Immutables {
		children = append(children, m.NewIterator())
	}
	runs := sv.Current.AllSortedRuns()
	for _, r := range runs {
		children = append(children, r.NewIterator(ikc))
	}
	return iterator.NewMerging(ikc.Compare, children)
}
