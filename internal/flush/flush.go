// Package flush runs spec 4.9's flush job: a compaction.Job over a
// single immutable memtable's iterator, producing the Level 0 run that
// replaces it.
package flush

import (
	"rockyardkv/internal/compaction"
	"rockyardkv/internal/memtable"
	"rockyardkv/internal/table"
)

// Job flushes one memtable to a sequence of new SSTables.
type Job struct {
	Compaction *compaction.Job
}

// Run drains mt's iterator through the underlying compaction job and
// returns the produced SSTable infos, in ascending key order.
func (j *Job) Run(mt *memtable.MemTable) ([]table.Info, error) {
	return j.Compaction.Run(mt.NewIterator())
}
