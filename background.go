package rockyardkv

import (
	"sort"
	"time"

	"rockyardkv/internal/compaction"
	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/flush"
	"rockyardkv/internal/logging"
	"rockyardkv/internal/memtable"
	"rockyardkv/internal/table"
	"rockyardkv/internal/version"
	"rockyardkv/internal/vfs"
)

// flushLoop is the dedicated flush thread: it waits for switchMemtable to
// signal new immutable memtables, then drains each through a compaction
// job to produce a new Level 0 run.
func (db *DB) flushLoop() {
	defer db.wg.Done()
	for {
		db.dbMu.Lock()
		if db.stop.Load() {
			db.dbMu.Unlock()
			return
		}

		for !db.stop.Load() && db.l0RunCount() >= db.opts.Level0StopWritesTrigger {
			db.dbMu.Unlock()
			time.Sleep(stopWriteDelay)
			db.dbMu.Lock()
		}
		if db.stop.Load() {
			db.dbMu.Unlock()
			return
		}

		imms := db.pickMemtables()
		if len(imms) == 0 {
			db.flushFlag = false
			db.flushCond.Wait()
			db.dbMu.Unlock()
			continue
		}
		db.flushFlag = true
		for _, imm := range imms {
			imm.MarkFlushInProgress()
		}
		db.dbMu.Unlock()

		runs := db.flushMemtables(imms)

		db.dbMu.Lock()
		db.installFlushedRuns(imms, runs)
		db.flushFlag = false
		db.compactFlag = true
		db.dbMu.Unlock()
		db.compactCond.Signal()
	}
}

// compactionLoop is the dedicated compaction thread: it repeatedly asks
// the picker for the next task and runs it until none remains, then
// waits for the flush thread to signal fresh work.
func (db *DB) compactionLoop() {
	defer db.wg.Done()
	for {
		db.dbMu.Lock()
		if db.stop.Load() {
			db.dbMu.Unlock()
			return
		}
		sv := db.getSV()
		task, ok := db.picker.Pick(sv.Current)
		if !ok {
			db.compactFlag = false
			db.compactCond.Wait()
			db.dbMu.Unlock()
			continue
		}
		db.compactFlag = true
		db.dbMu.Unlock()

		if err := db.runCompaction(task); err != nil {
			db.logger.Errorf(logging.NSCompact+"compaction failed: %v", err)
		}
	}
}

// isBottomLevel reports whether level is the deepest level currently
// populated (or deeper), meaning nothing below it could still need a
// shadowed version or tombstone.
func (db *DB) isBottomLevel(level int) bool {
	sv := db.getSV()
	return level >= len(sv.Current.Levels)-1
}

// l0RunCount reads the current Level 0 run count. Must be called with
// dbMu held (it only reads the SuperVersion, which has its own lock).
func (db *DB) l0RunCount() int {
	sv := db.getSV()
	if len(sv.Current.Levels) == 0 {
		return 0
	}
	return len(sv.Current.Levels[0].Runs)
}

// pickMemtables returns the immutable memtables not yet claimed by a
// flush job. Requires dbMu held.
func (db *DB) pickMemtables() []*memtable.MemTable {
	sv := db.getSV()
	var picked []*memtable.MemTable
	for _, imm := range sv.Immutables {
		if !imm.IsFlushInProgress() && !imm.IsFlushComplete() {
			picked = append(picked, imm)
		}
	}
	return picked
}

func (db *DB) openSSTables(infos []table.Info) ([]*version.SSTable, error) {
	tables := make([]*version.SSTable, 0, len(infos))
	for _, info := range infos {
		raf, err := db.openRandomAccess(info.Filename)
		if err != nil {
			return nil, err
		}
		reader, err := table.Open(info.SSTID, raf, db.ikc, db.blockCache)
		if err != nil {
			return nil, err
		}
		tables = append(tables, version.NewSSTable(info, reader))
	}
	return tables, nil
}

// openRandomAccess opens filename for reading, requesting O_DIRECT when
// the database was opened with UseDirectIO and the FS supports it.
func (db *DB) openRandomAccess(filename string) (vfs.RandomAccessFile, error) {
	if !db.opts.UseDirectIO {
		return db.fs.OpenRandomAccess(filename)
	}
	dfs, ok := db.fs.(vfs.DirectIOFS)
	if !ok {
		return db.fs.OpenRandomAccess(filename)
	}
	return dfs.OpenRandomAccessWithOptions(filename, vfs.FileOptions{UseDirectReads: true})
}

// flushMemtables runs a flush job over each picked memtable, logging and
// skipping any that fail (they remain marked in-progress and are
// retried on the next flushLoop pass).
func (db *DB) flushMemtables(imms []*memtable.MemTable) []*version.SortedRun {
	var runs []*version.SortedRun
	for _, imm := range imms {
		job := flush.Job{Compaction: &compaction.Job{
			FS:          db.fs,
			DBPath:      db.opts.DBPath,
			TableOpts:   db.tableOptions(),
			SSTFileSize: db.opts.SSTFileSize,
			NextSSTID:   db.newSSTID,
			UseDirectIO: db.opts.UseDirectIO,
		}}
		infos, err := job.Run(imm)
		if err != nil {
			db.logger.Errorf(logging.NSFlush+"flush failed: %v", err)
			continue
		}
		if len(infos) == 0 {
			continue
		}
		tables, err := db.openSSTables(infos)
		if err != nil {
			db.logger.Errorf(logging.NSFlush+"reopening flushed sstable: %v", err)
			continue
		}
		runs = append(runs, version.NewSortedRun(tables))
	}
	return runs
}

// installFlushedRuns appends the newly flushed runs to Level 0 (newest
// first) and drops the completed memtables from the immutable list.
// Requires dbMu held.
func (db *DB) installFlushedRuns(imms []*memtable.MemTable, runs []*version.SortedRun) {
	for _, imm := range imms {
		imm.MarkFlushComplete()
	}

	sv := db.getSV()
	newImms := make([]*memtable.MemTable, 0, len(sv.Immutables))
	for _, imm := range sv.Immutables {
		if !imm.IsFlushComplete() {
			newImms = append(newImms, imm)
		}
	}

	var oldL0 []*version.SortedRun
	if len(sv.Current.Levels) > 0 {
		oldL0 = sv.Current.Levels[0].Runs
	}
	newL0 := append(append([]*version.SortedRun(nil), runs...), oldL0...)

	newVersion := sv.Current.WithLevel(0, newL0)
	oldVersion := sv.Current
	db.installSV(&version.SuperVersion{Mutable: sv.Mutable, Immutables: newImms, Current: newVersion})
	oldVersion.Unref()

	if len(runs) > 0 {
		db.logger.Infof(logging.NSFlush+"flushed %d memtable(s) into %d new run(s) at L0", len(imms), len(runs))
	}
}

// runCompaction executes task: a trivial move just reassigns the input
// tables' level, otherwise it merges them into new SSTables via a
// compaction job.
func (db *DB) runCompaction(task *compaction.Task) error {
	if task.TrivialMove {
		db.installCompactionResult(task, task.InputTables, false)
		return nil
	}

	job := &compaction.Job{
		FS:           db.fs,
		DBPath:       db.opts.DBPath,
		TableOpts:    db.tableOptions(),
		SSTFileSize:  db.opts.SSTFileSize,
		NextSSTID:    db.newSSTID,
		DropObsolete: db.isBottomLevel(task.TargetLevel) && db.activeIterators.Load() == 0,
		UseDirectIO:  db.opts.UseDirectIO,
	}
	it := task.InputIterator(db.ikc.Compare)
	infos, err := job.Run(it)
	if err != nil {
		return err
	}
	outTables, err := db.openSSTables(infos)
	if err != nil {
		return err
	}
	db.installCompactionResult(task, outTables, true)
	return nil
}

// installCompactionResult builds a new Version with task's source level
// relieved of its consumed tables and outTables attached at the target
// level (merged with CarryForward for a leveled ReplaceRun, or appended
// as a new run for a tiered AppendRun). When obsoleteInputs is true, the
// original input tables are marked for deletion once the old Version's
// reference to them is released.
func (db *DB) installCompactionResult(task *compaction.Task, outTables []*version.SSTable, obsoleteInputs bool) {
	db.svMu.Lock()
	sv := db.sv
	oldVersion := sv.Current

	newLevels := append([]version.Level(nil), oldVersion.Levels...)
	for len(newLevels) <= task.TargetLevel {
		newLevels = append(newLevels, version.Level{})
	}

	if task.SourceFullyConsumed {
		newLevels[task.SourceLevel] = version.Level{}
	} else {
		picked := task.InputTables[0]
		var remaining []*version.SSTable
		if len(newLevels[task.SourceLevel].Runs) > 0 {
			for _, t := range newLevels[task.SourceLevel].Runs[0].Tables {
				if t != picked {
					remaining = append(remaining, t)
				}
			}
		}
		if len(remaining) > 0 {
			newLevels[task.SourceLevel] = version.Level{Runs: []*version.SortedRun{version.NewSortedRun(remaining)}}
		} else {
			newLevels[task.SourceLevel] = version.Level{}
		}
	}

	switch task.Attach {
	case compaction.AppendRun:
		newRun := version.NewSortedRun(outTables)
		newLevels[task.TargetLevel] = version.Level{
			Runs: append([]*version.SortedRun{newRun}, newLevels[task.TargetLevel].Runs...),
		}
	default: // ReplaceRun
		merged := append(append([]*version.SSTable(nil), outTables...), task.CarryForward...)
		sort.Slice(merged, func(i, j int) bool {
			ki := dbformat.ExtractUserKey(merged[i].Smallest())
			kj := dbformat.ExtractUserKey(merged[j].Smallest())
			return db.ikc.UserCmp(ki, kj) < 0
		})
		newLevels[task.TargetLevel] = version.Level{Runs: []*version.SortedRun{version.NewSortedRun(merged)}}
	}

	newVersion := version.NewVersion(newLevels)
	db.sv = &version.SuperVersion{Mutable: sv.Mutable, Immutables: sv.Immutables, Current: newVersion}
	db.svMu.Unlock()

	if obsoleteInputs {
		for _, t := range task.InputTables {
			t.MarkObsolete()
		}
	}
	oldVersion.Unref()

	db.logger.Infof(logging.NSCompact+"%s: L%d -> L%d, %d input table(s), %d output table(s)",
		task.Reason, task.SourceLevel, task.TargetLevel, len(task.InputTables), len(outTables))
}
