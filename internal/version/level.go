package version

import "rockyardkv/internal/dbformat"

// Level holds every SortedRun assigned to one level of the tree. Level 0
// may hold multiple overlapping runs (one per flush); under the leveled
// strategy levels above it hold exactly one run whose tables are
// mutually non-overlapping, while the tiered strategy appends runs at
// any level. Nothing here enforces that distinction structurally -- it
// falls out of how the compaction picker assigns runs to levels.
type Level struct {
	Runs []*SortedRun // newest-first; L>=1 holds one run under leveled, possibly several under tiered
}

// Size returns the total on-disk size of every run in the level.
func (l *Level) Size() uint64 {
	var total uint64
	for _, r := range l.Runs {
		total += r.Size()
	}
	return total
}

// Get looks up userKey across the level's runs, newest first.
func (l *Level) Get(ikc dbformat.InternalKeyComparator, userKey []byte, seq dbformat.SequenceNumber) ([]byte, dbformat.GetResult, error) {
	for _, r := range l.Runs {
		v, res, err := r.Get(ikc, userKey, seq)
		if err != nil {
			return nil, dbformat.NotFound, err
		}
		if res != dbformat.NotFound {
			return v, res, nil
		}
	}
	return nil, dbformat.NotFound, nil
}

// Ref adds one reference to every run in the level.
func (l *Level) Ref() {
	for _, r := range l.Runs {
		r.Ref()
	}
}

// Unref drops one reference from every run in the level.
func (l *Level) Unref() {
	for _, r := range l.Runs {
		r.Unref()
	}
}
