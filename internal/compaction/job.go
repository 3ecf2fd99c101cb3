package compaction

import (
	"fmt"
	"path/filepath"

	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/iterator"
	"rockyardkv/internal/table"
	"rockyardkv/internal/vfs"
)

// Job consumes records from an iterator in ascending internal-key order
// and writes them to one or more new SSTables, rolling over to a fresh
// file once the current one exceeds SSTFileSize -- but only between two
// different user keys, never mid version-chain. Spec 4.11's baseline
// never drops tombstones or superseded versions.
type Job struct {
	FS          vfs.FS
	DBPath      string
	TableOpts   table.Options
	SSTFileSize uint64
	NextSSTID   func() uint64

	// DropObsolete drops every version of a user key except the newest,
	// and drops the newest version too when it is a Deletion. Only safe
	// when compacting into the last populated level with no open
	// snapshot older than the records being dropped -- callers are
	// responsible for that precondition; the Job itself does not track
	// snapshots. Off by default (spec 4.11's baseline keeps every
	// version).
	DropObsolete bool

	// UseDirectIO opens output files with O_DIRECT when FS supports it,
	// bypassing the page cache for compaction/flush writes.
	UseDirectIO bool
}

// Run drives it to completion and returns the Info for every SSTable
// produced, in ascending key order.
func (j *Job) Run(it iterator.Iterator) ([]table.Info, error) {
	var outputs []table.Info
	var builder *table.Builder
	var sstID uint64
	var filename string
	var lastUserKey []byte
	sawLastUserKey := false

	flush := func() error {
		if builder == nil || builder.Empty() {
			return nil
		}
		info, err := builder.Finish(sstID, filename)
		if err != nil {
			return err
		}
		outputs = append(outputs, info)
		builder = nil
		return nil
	}

	openNew := func() error {
		sstID = j.NextSSTID()
		filename = filepath.Join(j.DBPath, fmt.Sprintf("%d.sst", sstID))
		wf, err := j.create(filename)
		if err != nil {
			return err
		}
		builder = table.NewBuilder(wf, j.TableOpts)
		return nil
	}

	for it.SeekToFirst(); it.Valid(); it.Next() {
		ikey := dbformat.InternalKey(it.Key())
		value := it.Value()
		userKey := dbformat.ExtractUserKey(ikey)
		sameAsLast := sawLastUserKey && bytesEqual(userKey, lastUserKey)

		if builder != nil && builder.Size() >= j.SSTFileSize && !sameAsLast {
			if err := flush(); err != nil {
				return nil, err
			}
		}

		if j.DropObsolete {
			if sameAsLast {
				continue // superseded version of a key already resolved
			}
			if dbformat.ExtractValueType(ikey) == dbformat.TypeDeletion {
				lastUserKey = append(lastUserKey[:0], userKey...)
				sawLastUserKey = true
				continue // tombstone with nothing left below to shadow
			}
		}

		if builder == nil {
			if err := openNew(); err != nil {
				return nil, err
			}
		}
		if err := builder.Append(ikey, value); err != nil {
			return nil, err
		}
		lastUserKey = append(lastUserKey[:0], userKey...)
		sawLastUserKey = true
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// create opens filename for writing, requesting O_DIRECT when UseDirectIO
// is set and the FS supports it.
func (j *Job) create(filename string) (vfs.WritableFile, error) {
	if !j.UseDirectIO {
		return j.FS.Create(filename)
	}
	dfs, ok := j.FS.(vfs.DirectIOFS)
	if !ok {
		return j.FS.Create(filename)
	}
	return dfs.CreateWithOptions(filename, vfs.FileOptions{UseDirectWrites: true})
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
