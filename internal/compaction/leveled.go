package compaction

import (
	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/version"
)

// LeveledPicker implements spec 4.10's leveled strategy: Level 0 may hold
// several overlapping runs; Level >=1 holds exactly one run of
// non-overlapping tables. Compaction either merges all of L0 into L1, or
// picks one table from level L and every table it overlaps at L+1.
type LeveledPicker struct {
	IKC  dbformat.InternalKeyComparator
	Opts Options
}

func (p *LeveledPicker) Pick(v *version.Version) (*Task, bool) {
	if t, ok := p.pickL0(v); ok {
		return t, true
	}
	for l := 1; l < len(v.Levels); l++ {
		if t, ok := p.pickLevel(v, l); ok {
			return t, true
		}
	}
	return nil, false
}

func (p *LeveledPicker) pickL0(v *version.Version) (*Task, bool) {
	if len(v.Levels) == 0 || len(v.Levels[0].Runs) < p.Opts.Level0CompactionTrigger {
		return nil, false
	}
	l0Tables := flattenRuns(v.Levels[0].Runs)
	var l1Tables []*version.SSTable
	if len(v.Levels) > 1 && len(v.Levels[1].Runs) > 0 {
		l1Tables = v.Levels[1].Runs[0].Tables
	}
	return &Task{
		SourceLevel:         0,
		TargetLevel:         1,
		InputTables:         append(append([]*version.SSTable(nil), l0Tables...), l1Tables...),
		Attach:              ReplaceRun,
		Reason:              ReasonL0Trigger,
		SourceFullyConsumed: true,
	}, true
}

// pickLevel picks one table from level l (oldest sst-id, a tie-break
// that favors flushing out long-lived compaction debt first) plus every
// table it overlaps at level l+1. Tables at l+1 with no overlap keep
// their identity via CarryForward.
func (p *LeveledPicker) pickLevel(v *version.Version, l int) (*Task, bool) {
	lvl := v.Levels[l]
	if lvl.Size() <= targetLevelSize(p.Opts, l) {
		return nil, false
	}
	if len(lvl.Runs) == 0 || len(lvl.Runs[0].Tables) == 0 {
		return nil, false
	}
	run := lvl.Runs[0]
	picked := run.Tables[0]
	for _, t := range run.Tables[1:] {
		if t.Info.SSTID < picked.Info.SSTID {
			picked = t
		}
	}

	targetLevel := l + 1
	var overlapping, carryForward []*version.SSTable
	if targetLevel < len(v.Levels) && len(v.Levels[targetLevel].Runs) > 0 {
		for _, t := range v.Levels[targetLevel].Runs[0].Tables {
			if overlaps(p.IKC, picked, t) {
				overlapping = append(overlapping, t)
			} else {
				carryForward = append(carryForward, t)
			}
		}
	}

	return &Task{
		SourceLevel:  l,
		TargetLevel:  targetLevel,
		InputTables:  append([]*version.SSTable{picked}, overlapping...),
		CarryForward: carryForward,
		Attach:       ReplaceRun,
		TrivialMove:  len(overlapping) == 0,
		Reason:       ReasonLevelSize,
	}, true
}
