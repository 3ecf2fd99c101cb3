package compaction

import "rockyardkv/internal/version"

// TieredPicker implements spec 4.10's tiered strategy: every level may
// hold several runs treated as one tier. A compaction merges ALL runs at
// level L into a single new run appended at L+1, leaving L+1's existing
// runs untouched.
type TieredPicker struct {
	Opts Options
}

func (p *TieredPicker) Pick(v *version.Version) (*Task, bool) {
	for l := range v.Levels {
		if t, ok := p.pickLevel(v, l); ok {
			return t, true
		}
	}
	return nil, false
}

func (p *TieredPicker) pickLevel(v *version.Version, l int) (*Task, bool) {
	lvl := v.Levels[l]
	runCount := len(lvl.Runs)
	if runCount == 0 {
		return nil, false
	}

	triggered := false
	reason := ReasonTieredLevelSize
	if l == 0 {
		triggered = runCount >= p.Opts.Level0CompactionTrigger
		reason = ReasonTieredRunCount
	} else {
		triggered = lvl.Size() > targetLevelSize(p.Opts, l)
	}
	if !triggered {
		return nil, false
	}

	targetLevel := l + 1
	trivialMove := runCount == 1 && (targetLevel >= len(v.Levels) || len(v.Levels[targetLevel].Runs) == 0)

	return &Task{
		SourceLevel:         l,
		TargetLevel:         targetLevel,
		InputTables:         flattenRuns(lvl.Runs),
		Attach:              AppendRun,
		TrivialMove:         trivialMove,
		Reason:              reason,
		SourceFullyConsumed: true,
	}, true
}
