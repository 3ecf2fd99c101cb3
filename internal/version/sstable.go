// Package version implements the immutable level-tree snapshot (Version)
// and the SuperVersion that pairs it with the live memtables, following
// the teacher's Version/SuperVersion split in internal/version but
// replacing its MANIFEST-log persistence with the engine's single flat
// metadata file (see internal/manifest).
package version

import (
	"os"
	"sync/atomic"

	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/table"
)

// SSTable is a reference-counted handle to one open SSTable file. A
// SortedRun holds one SSTable per on-disk file; a Version holds
// SortedRuns transitively. The backing file is closed (and, if the
// table was superseded by compaction, deleted) only when the last
// reference drops — matching spec 5's "deleted only from the destructor
// when the last shared owner releases it" guarantee.
type SSTable struct {
	Info     table.Info
	reader   *table.Reader
	refs     atomic.Int32
	obsolete atomic.Bool
}

// NewSSTable wraps an open reader with a zero refcount: it owns no
// reference of its own and relies entirely on being added to a Level
// (via Version/NewVersion's Ref cascade) to stay alive. A table handed
// to NewSortedRun/NewVersion without ever being placed in a live Version
// is simply never referenced and its file is never removed, since
// nothing ever calls MarkObsolete on it.
func NewSSTable(info table.Info, reader *table.Reader) *SSTable {
	return &SSTable{Info: info, reader: reader}
}

// Ref adds one reference.
func (s *SSTable) Ref() {
	s.refs.Add(1)
}

// Unref drops one reference. At zero, the file is closed; if
// MarkObsolete was called, the backing file is also removed.
func (s *SSTable) Unref() {
	if s.refs.Add(-1) == 0 {
		_ = s.reader.Close()
		if s.obsolete.Load() {
			_ = os.Remove(s.Info.Filename)
		}
	}
}

// MarkObsolete flags the table for deletion once its last reference is
// released. Called when a compaction produces a replacement for it.
func (s *SSTable) MarkObsolete() {
	s.obsolete.Store(true)
}

// Reader returns the underlying table reader for point lookups and
// iteration.
func (s *SSTable) Reader() *table.Reader {
	return s.reader
}

// Smallest returns the table's smallest internal key.
func (s *SSTable) Smallest() dbformat.InternalKey {
	return s.Info.Smallest
}

// Largest returns the table's largest internal key.
func (s *SSTable) Largest() dbformat.InternalKey {
	return s.Info.Largest
}
