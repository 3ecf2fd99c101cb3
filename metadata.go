package rockyardkv

import (
	"path/filepath"

	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/manifest"
	"rockyardkv/internal/memtable"
	"rockyardkv/internal/table"
	"rockyardkv/internal/version"
)

const metadataFileName = "metadata"

func (db *DB) metadataPath() string {
	return filepath.Join(db.opts.DBPath, metadataFileName)
}

// saveMetadata persists the current sequence/sst-id counters and level
// tree to the database directory's flat metadata file.
func (db *DB) saveMetadata() error {
	sv := db.getSV()
	m := manifest.Metadata{
		NextSeq:   dbformat.SequenceNumber(db.seq.Load()),
		NextSSTID: db.nextSSTID.Load(),
	}
	for _, lvl := range sv.Current.Levels {
		li := manifest.LevelInfo{LevelID: uint64(len(m.Levels))}
		for _, run := range lvl.Runs {
			ri := manifest.RunInfo{}
			for _, sst := range run.Tables {
				ri.SSTables = append(ri.SSTables, manifest.FromTableInfo(sst.Info))
			}
			li.Runs = append(li.Runs, ri)
		}
		m.Levels = append(m.Levels, li)
	}
	return manifest.Save(db.metadataPath(), m)
}

// loadMetadata reads the metadata file and reopens every referenced
// SSTable, returning the reconstructed Version and the persisted
// counters.
func (db *DB) loadMetadata() (*version.Version, dbformat.SequenceNumber, uint64, error) {
	m, err := manifest.Load(db.metadataPath())
	if err != nil {
		return nil, 0, 0, err
	}

	levels := make([]version.Level, len(m.Levels))
	for i, li := range m.Levels {
		lvl := version.Level{}
		for _, ri := range li.Runs {
			tables := make([]*version.SSTable, 0, len(ri.SSTables))
			for _, sstInfo := range ri.SSTables {
				info := manifest.ToTableInfo(sstInfo)
				info.Filename = filepath.Join(db.opts.DBPath, filepath.Base(info.Filename))
				raf, err := db.openRandomAccess(info.Filename)
				if err != nil {
					return nil, 0, 0, err
				}
				reader, err := table.Open(info.SSTID, raf, db.ikc, db.blockCache)
				if err != nil {
					return nil, 0, 0, err
				}
				tables = append(tables, version.NewSSTable(info, reader))
			}
			lvl.Runs = append(lvl.Runs, version.NewSortedRun(tables))
		}
		levels[i] = lvl
	}

	return version.NewVersion(levels), m.NextSeq, m.NextSSTID, nil
}

// newEmptySuperVersion builds the zero-state SuperVersion for a freshly
// created database: an empty mutable memtable, no immutables, no levels.
func newEmptySuperVersion(ikc dbformat.InternalKeyComparator) *version.SuperVersion {
	return &version.SuperVersion{
		Mutable: memtable.New(ikc),
		Current: version.NewVersion(nil),
	}
}
