// Package compaction implements the two compaction strategies spec'd for
// the engine (leveled, tiered) and the job that executes a picked
// compaction by merging its input SSTables into new ones.
package compaction

import (
	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/iterator"
	"rockyardkv/internal/version"
)

// Reason records why a Task was picked, for logging.
type Reason int

const (
	ReasonL0Trigger Reason = iota
	ReasonLevelSize
	ReasonTieredRunCount
	ReasonTieredLevelSize
)

func (r Reason) String() string {
	switch r {
	case ReasonL0Trigger:
		return "L0 run count trigger"
	case ReasonLevelSize:
		return "level size trigger"
	case ReasonTieredRunCount:
		return "tiered run count trigger"
	case ReasonTieredLevelSize:
		return "tiered level size trigger"
	default:
		return "unknown"
	}
}

// Attach describes how a Task's output run is installed at TargetLevel.
type Attach int

const (
	// ReplaceRun installs the job's output, merged with CarryForward
	// tables, as the target level's single run (leveled strategy).
	ReplaceRun Attach = iota
	// AppendRun adds the job's output as a brand new run alongside the
	// target level's existing runs, unchanged (tiered strategy).
	AppendRun
)

// Task describes one compaction: which tables to merge, where the result
// goes, and how it attaches to the target level.
type Task struct {
	SourceLevel  int
	TargetLevel  int
	InputTables  []*version.SSTable // merged to produce the new run
	CarryForward []*version.SSTable // target-level tables kept as-is (ReplaceRun only)
	Attach       Attach
	TrivialMove  bool // nothing to merge (leveled: one table, no overlap; tiered: one run onto an empty level): just reassign its level
	Reason       Reason

	// SourceFullyConsumed is true when every table at SourceLevel is part
	// of InputTables (L0-trigger and tiered picks), so SourceLevel becomes
	// empty after the task runs. It is false when only one table is
	// picked out of a multi-table run (leveled L>=1 picks), leaving the
	// rest of the source level's run in place.
	SourceFullyConsumed bool
}

// Options configures both picker strategies.
type Options struct {
	Level0CompactionTrigger int
	BaseLevelSize           uint64
	CompactionSizeRatio     uint64 // "ratio" in base_level_size * ratio^L
}

// Picker selects the next compaction to run against a Version, if any.
type Picker interface {
	Pick(v *version.Version) (*Task, bool)
}

// InputIterator returns a merging iterator over every table in t's input
// set, ready to hand to a Job.
func (t *Task) InputIterator(cmp iterator.Comparator) iterator.Iterator {
	children := make([]iterator.Iterator, 0, len(t.InputTables))
	for _, sst := range t.InputTables {
		children = append(children, sst.Reader().NewIterator())
	}
	return iterator.NewMerging(cmp, children)
}

func flattenRuns(runs []*version.SortedRun) []*version.SSTable {
	var out []*version.SSTable
	for _, r := range runs {
		out = append(out, r.Tables...)
	}
	return out
}

func overlaps(ikc dbformat.InternalKeyComparator, a, b *version.SSTable) bool {
	aSmall, aLarge := dbformat.ExtractUserKey(a.Smallest()), dbformat.ExtractUserKey(a.Largest())
	bSmall, bLarge := dbformat.ExtractUserKey(b.Smallest()), dbformat.ExtractUserKey(b.Largest())
	if ikc.UserCmp(aLarge, bSmall) < 0 {
		return false
	}
	if ikc.UserCmp(aSmall, bLarge) > 0 {
		return false
	}
	return true
}

// targetLevelSize returns base_level_size * ratio^(level-1) for level>=1,
// matching spec 4.10's leveled-strategy target.
func targetLevelSize(opts Options, level int) uint64 {
	size := opts.BaseLevelSize
	ratio := opts.CompactionSizeRatio
	if ratio == 0 {
		ratio = 1
	}
	for i := 1; i < level; i++ {
		size *= ratio
	}
	return size
}
