package iterator

import "container/heap"

// Comparator orders two encoded internal keys.
type Comparator func(a, b []byte) int

// Merging is a min-heap over a fixed set of child iterators, ordered by
// each child's current internal key. Duplicate user keys across
// children are all surfaced; callers needing snapshot/dedup semantics
// wrap this with something like a DB-level filtering iterator.
type Merging struct {
	cmp     Comparator
	h       iterHeap
	built   bool
	lastErr error
}

// NewMerging returns a Merging iterator over children, ordered by cmp.
// children must all be positioned (or exhausted) consistently by the
// caller before the first Seek/SeekToFirst on the Merging iterator.
func NewMerging(cmp Comparator, children []Iterator) *Merging {
	return &Merging{cmp: cmp, h: iterHeap{cmp: cmp, children: children}}
}

func (m *Merging) rebuild() {
	m.h.items = m.h.items[:0]
	for _, c := range m.h.children {
		if c.Valid() {
			m.h.items = append(m.h.items, c)
		}
	}
	heap.Init(&m.h)
	m.built = true
}

// SeekToFirst positions every child at its first record and rebuilds
// the heap.
func (m *Merging) SeekToFirst() {
	for _, c := range m.h.children {
		c.SeekToFirst()
	}
	m.rebuild()
}

// Seek positions every child at target and rebuilds the heap.
func (m *Merging) Seek(target []byte) {
	for _, c := range m.h.children {
		c.Seek(target)
	}
	m.rebuild()
}

// Valid reports whether any child has records remaining.
func (m *Merging) Valid() bool {
	return len(m.h.items) > 0
}

// Key returns the smallest current internal key among all children.
func (m *Merging) Key() []byte {
	return m.h.items[0].Key()
}

// Value returns the value belonging to the current smallest key.
func (m *Merging) Value() []byte {
	return m.h.items[0].Value()
}

// Next advances the child holding the current minimum and re-heapifies.
func (m *Merging) Next() {
	top := m.h.items[0]
	top.Next()
	if top.Valid() {
		heap.Fix(&m.h, 0)
	} else {
		heap.Pop(&m.h)
	}
	if err := top.Error(); err != nil {
		m.lastErr = err
	}
}

// Error returns the first error observed from any child.
func (m *Merging) Error() error {
	return m.lastErr
}

// iterHeap implements container/heap.Interface over live child
// iterators. children retains the full set (for rebuilding on
// Seek/SeekToFirst); items holds only currently-valid children, which
// is what heap operations act on.
type iterHeap struct {
	cmp      Comparator
	children []Iterator
	items    []Iterator
}

func (h *iterHeap) Len() int { return len(h.items) }

func (h *iterHeap) Less(i, j int) bool {
	return h.cmp(h.items[i].Key(), h.items[j].Key()) < 0
}

func (h *iterHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
}

func (h *iterHeap) Push(x any) {
	h.items = append(h.items, x.(Iterator))
}

func (h *iterHeap) Pop() any {
	n := len(h.items)
	x := h.items[n-1]
	h.items = h.items[:n-1]
	return x
}
