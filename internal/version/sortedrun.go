package version

import (
	"sort"

	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/iterator"
)

// SortedRun is an ordered, non-overlapping sequence of SSTables that
// together represent one merged stream of records. A run's tables are
// always produced from a single ascending-order write (a flush or a
// compaction job splitting its output across file-size boundaries), so
// they never overlap by construction.
type SortedRun struct {
	Tables []*SSTable // ascending by key range
}

// NewSortedRun builds a run from tables already in ascending order.
func NewSortedRun(tables []*SSTable) *SortedRun {
	return &SortedRun{Tables: tables}
}

// Ref adds one reference to every table in the run.
func (r *SortedRun) Ref() {
	for _, t := range r.Tables {
		t.Ref()
	}
}

// Unref drops one reference from every table in the run.
func (r *SortedRun) Unref() {
	for _, t := range r.Tables {
		t.Unref()
	}
}

// Size returns the total on-disk size of the run's tables.
func (r *SortedRun) Size() uint64 {
	var total uint64
	for _, t := range r.Tables {
		total += t.Info.Size
	}
	return total
}

// Smallest returns the run's smallest internal key, or nil if empty.
func (r *SortedRun) Smallest() dbformat.InternalKey {
	if len(r.Tables) == 0 {
		return nil
	}
	return r.Tables[0].Smallest()
}

// Largest returns the run's largest internal key, or nil if empty.
func (r *SortedRun) Largest() dbformat.InternalKey {
	if len(r.Tables) == 0 {
		return nil
	}
	return r.Tables[len(r.Tables)-1].Largest()
}

// Overlaps reports whether [smallest, largest] (user keys) intersects
// the run's key range.
func (r *SortedRun) Overlaps(ikc dbformat.InternalKeyComparator, smallest, largest []byte) bool {
	if len(r.Tables) == 0 {
		return false
	}
	if ikc.UserCmp(largest, dbformat.ExtractUserKey(r.Smallest())) < 0 {
		return false
	}
	if ikc.UserCmp(smallest, dbformat.ExtractUserKey(r.Largest())) > 0 {
		return false
	}
	return true
}

// Get looks up userKey within the run, locating the single candidate
// table via binary search over table key ranges.
func (r *SortedRun) Get(ikc dbformat.InternalKeyComparator, userKey []byte, seq dbformat.SequenceNumber) ([]byte, dbformat.GetResult, error) {
	i := sort.Search(len(r.Tables), func(i int) bool {
		return ikc.UserCmp(dbformat.ExtractUserKey(r.Tables[i].Largest()), userKey) >= 0
	})
	if i >= len(r.Tables) {
		return nil, dbformat.NotFound, nil
	}
	t := r.Tables[i]
	if ikc.UserCmp(userKey, dbformat.ExtractUserKey(t.Smallest())) < 0 {
		return nil, dbformat.NotFound, nil
	}
	return t.Reader().Get(userKey, seq)
}

// NewIterator returns an iterator over every record in the run, in
// ascending internal-key order, crossing table boundaries transparently.
func (r *SortedRun) NewIterator(ikc dbformat.InternalKeyComparator) iterator.Iterator {
	return &runIterator{run: r, ikc: ikc, idx: -1}
}

type runIterator struct {
	run    *SortedRun
	ikc    dbformat.InternalKeyComparator
	idx    int
	cur    iterator.Iterator
	target []byte // non-nil when the current scan was seeded by Seek
}

func (it *runIterator) advanceToNonEmpty() {
	for it.idx < len(it.run.Tables) {
		ti := it.run.Tables[it.idx].Reader().NewIterator()
		if it.target != nil {
			ti.Seek(it.target)
		} else {
			ti.SeekToFirst()
		}
		if ti.Valid() {
			it.cur = ti
			return
		}
		it.idx++
	}
	it.cur = nil
}

func (it *runIterator) SeekToFirst() {
	it.idx = 0
	it.target = nil
	it.advanceToNonEmpty()
}

func (it *runIterator) Seek(target []byte) {
	it.idx = sort.Search(len(it.run.Tables), func(i int) bool {
		return it.ikc.Compare(it.run.Tables[i].Largest(), target) >= 0
	})
	it.target = target
	it.advanceToNonEmpty()
}

func (it *runIterator) Valid() bool {
	return it.cur != nil && it.cur.Valid()
}

func (it *runIterator) Key() []byte {
	return it.cur.Key()
}

func (it *runIterator) Value() []byte {
	return it.cur.Value()
}

func (it *runIterator) Next() {
	it.cur.Next()
	if !it.cur.Valid() {
		it.idx++
		it.target = nil
		it.advanceToNonEmpty()
	}
}

func (it *runIterator) Error() error {
	if it.cur == nil {
		return nil
	}
	return it.cur.Error()
}
