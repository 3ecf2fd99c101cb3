package version

import (
	"sync/atomic"

	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/iterator"
)

// Version is an immutable snapshot of the level tree: which SSTables
// exist and which level/run each belongs to. Compaction and flush never
// mutate a Version in place -- they build a new one with the affected
// levels replaced and leave the old Version for any reader still holding
// it to release in its own time.
type Version struct {
	Levels []Level
	refs   atomic.Int32
}

// NewVersion returns a Version over levels with an initial refcount of 1.
func NewVersion(levels []Level) *Version {
	v := &Version{Levels: levels}
	v.refs.Store(1)
	for i := range v.Levels {
		v.Levels[i].Ref()
	}
	return v
}

// Ref adds one reference to the Version.
func (v *Version) Ref() {
	v.refs.Add(1)
}

// Unref drops one reference. At zero, every run (and so every table) in
// the Version is unreffed in turn, allowing obsolete tables to close and
// delete their files.
func (v *Version) Unref() {
	if v.refs.Add(-1) == 0 {
		for i := range v.Levels {
			v.Levels[i].Unref()
		}
	}
}

// Get looks up userKey across the level tree, level 0 first (newest run
// first within it), then levels 1..N in order.
func (v *Version) Get(ikc dbformat.InternalKeyComparator, userKey []byte, seq dbformat.SequenceNumber) ([]byte, dbformat.GetResult, error) {
	for i := range v.Levels {
		val, res, err := v.Levels[i].Get(ikc, userKey, seq)
		if err != nil {
			return nil, dbformat.NotFound, err
		}
		if res != dbformat.NotFound {
			return val, res, nil
		}
	}
	return nil, dbformat.NotFound, nil
}

// AllSortedRuns returns every run across every level, in the same
// lookup-priority order as Get, for building a merging iterator's child
// list.
func (v *Version) AllSortedRuns() []*SortedRun {
	var runs []*SortedRun
	for i := range v.Levels {
		runs = append(runs, v.Levels[i].Runs...)
	}
	return runs
}

// NewIterator returns a merging iterator over every SortedRun in the
// Version.
func (v *Version) NewIterator(ikc dbformat.InternalKeyComparator) iterator.Iterator {
	runs := v.AllSortedRuns()
	children := make([]iterator.Iterator, 0, len(runs))
	for _, r := range runs {
		children = append(children, r.NewIterator(ikc))
	}
	return iterator.NewMerging(ikc.Compare, children)
}

// WithLevel returns a new Version identical to v except that level idx's
// runs are replaced with newRuns. Used by flush (append an L0 run) and
// compaction (replace source and target runs with the job's output). The
// returned Version takes its own reference on every run; v is untouched
// and must still be Unref'd by its owner.
func (v *Version) WithLevel(idx int, newRuns []*SortedRun) *Version {
	levels := make([]Level, len(v.Levels))
	copy(levels, v.Levels)
	if idx >= len(levels) {
		grown := make([]Level, idx+1)
		copy(grown, levels)
		levels = grown
	}
	levels[idx] = Level{Runs: newRuns}
	return NewVersion(levels)
}
