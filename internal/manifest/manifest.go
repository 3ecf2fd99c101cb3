// Package manifest persists the engine's level-tree metadata to a single
// flat file, following spec 6's field layout exactly (no MANIFEST
// append-log): next_seq, next_sst_id, the level count, then per level its
// id and runs, then per run its SSTables. A trailing xxh3 checksum over
// the encoded body lets Load detect a stale or partially written file on
// reopen.
package manifest

import (
	"errors"
	"io"
	"os"

	"github.com/zeebo/xxh3"

	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/encoding"
	"rockyardkv/internal/table"
)

// ErrCorruption is returned when the metadata file's checksum does not
// match its body, or the encoded shape is truncated or malformed.
var ErrCorruption = errors.New("manifest: corrupt metadata file")

const checksumLen = 8

// SSTInfo is the persisted form of one SSTable's metadata, mirroring
// table.Info's durable fields.
type SSTInfo struct {
	Count       uint64
	Size        uint64
	SSTID       uint64
	IndexOffset uint64
	BloomOffset uint64
	Filename    string
	Smallest    dbformat.InternalKey
	Largest     dbformat.InternalKey
}

// RunInfo is one sorted run's ordered list of SSTables.
type RunInfo struct {
	SSTables []SSTInfo
}

// LevelInfo is one level's id and ordered list of runs.
type LevelInfo struct {
	LevelID uint64
	Runs    []RunInfo
}

// Metadata is the full persisted state of the engine's level tree plus
// its sequence and sst-id counters.
type Metadata struct {
	NextSeq   dbformat.SequenceNumber
	NextSSTID uint64
	Levels    []LevelInfo
}

func appendString(dst []byte, s string) []byte {
	dst = encoding.AppendFixed64(dst, uint64(len(s)))
	return append(dst, s...)
}

func readString(r *byteReader) (string, error) {
	n, err := r.readU64()
	if err != nil {
		return "", err
	}
	buf, err := r.readN(int(n))
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func appendBytes(dst []byte, b []byte) []byte {
	dst = encoding.AppendFixed64(dst, uint64(len(b)))
	return append(dst, b...)
}

func readBytes(r *byteReader) ([]byte, error) {
	n, err := r.readU64()
	if err != nil {
		return nil, err
	}
	return r.readN(int(n))
}

// Encode serializes m in spec 6's field order, without the checksum
// trailer (Save appends that separately so tests can exercise the raw
// body layout in isolation).
func Encode(m Metadata) []byte {
	buf := make([]byte, 0, 256)
	buf = encoding.AppendFixed64(buf, uint64(m.NextSeq))
	buf = encoding.AppendFixed64(buf, m.NextSSTID)
	buf = encoding.AppendFixed64(buf, uint64(len(m.Levels)))
	for _, lvl := range m.Levels {
		buf = encoding.AppendFixed64(buf, lvl.LevelID)
		buf = encoding.AppendFixed64(buf, uint64(len(lvl.Runs)))
		for _, run := range lvl.Runs {
			buf = encoding.AppendFixed64(buf, uint64(len(run.SSTables)))
			for _, sst := range run.SSTables {
				buf = encoding.AppendFixed64(buf, sst.Count)
				buf = encoding.AppendFixed64(buf, sst.Size)
				buf = encoding.AppendFixed64(buf, sst.SSTID)
				buf = encoding.AppendFixed64(buf, sst.IndexOffset)
				buf = encoding.AppendFixed64(buf, sst.BloomOffset)
				buf = appendString(buf, sst.Filename)
				buf = appendBytes(buf, sst.Smallest)
				buf = appendBytes(buf, sst.Largest)
			}
		}
	}
	return buf
}

type byteReader struct {
	data []byte
	off  int
}

func (r *byteReader) readU64() (uint64, error) {
	if r.off+8 > len(r.data) {
		return 0, ErrCorruption
	}
	v := encoding.DecodeFixed64(r.data[r.off:])
	r.off += 8
	return v, nil
}

func (r *byteReader) readN(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, ErrCorruption
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Decode parses a body previously produced by Encode.
func Decode(body []byte) (Metadata, error) {
	r := &byteReader{data: body}
	var m Metadata

	seq, err := r.readU64()
	if err != nil {
		return Metadata{}, err
	}
	m.NextSeq = dbformat.SequenceNumber(seq)

	m.NextSSTID, err = r.readU64()
	if err != nil {
		return Metadata{}, err
	}

	levelCount, err := r.readU64()
	if err != nil {
		return Metadata{}, err
	}
	m.Levels = make([]LevelInfo, levelCount)
	for i := range m.Levels {
		lvl := &m.Levels[i]
		lvl.LevelID, err = r.readU64()
		if err != nil {
			return Metadata{}, err
		}
		runCount, err := r.readU64()
		if err != nil {
			return Metadata{}, err
		}
		lvl.Runs = make([]RunInfo, runCount)
		for j := range lvl.Runs {
			run := &lvl.Runs[j]
			sstCount, err := r.readU64()
			if err != nil {
				return Metadata{}, err
			}
			run.SSTables = make([]SSTInfo, sstCount)
			for k := range run.SSTables {
				sst := &run.SSTables[k]
				if sst.Count, err = r.readU64(); err != nil {
					return Metadata{}, err
				}
				if sst.Size, err = r.readU64(); err != nil {
					return Metadata{}, err
				}
				if sst.SSTID, err = r.readU64(); err != nil {
					return Metadata{}, err
				}
				if sst.IndexOffset, err = r.readU64(); err != nil {
					return Metadata{}, err
				}
				if sst.BloomOffset, err = r.readU64(); err != nil {
					return Metadata{}, err
				}
				if sst.Filename, err = readString(r); err != nil {
					return Metadata{}, err
				}
				if sst.Smallest, err = readBytes(r); err != nil {
					return Metadata{}, err
				}
				if sst.Largest, err = readBytes(r); err != nil {
					return Metadata{}, err
				}
			}
		}
	}
	return m, nil
}

// Save atomically writes m to path: the body plus checksum is written to
// a temp file, synced, then renamed over path.
func Save(path string, m Metadata) error {
	body := Encode(m)
	sum := xxh3.Hash(body)
	out := make([]byte, 0, len(body)+checksumLen)
	out = append(out, body...)
	out = encoding.AppendFixed64(out, sum)

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(out); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads and validates the metadata file at path, returning
// ErrCorruption if the checksum does not match or the file is too short
// to contain one.
func Load(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return Metadata{}, err
	}
	if len(raw) < checksumLen {
		return Metadata{}, ErrCorruption
	}
	body := raw[:len(raw)-checksumLen]
	wantSum := encoding.DecodeFixed64(raw[len(raw)-checksumLen:])
	if xxh3.Hash(body) != wantSum {
		return Metadata{}, ErrCorruption
	}
	return Decode(body)
}

// FromTableInfo converts a table.Info into its persisted SSTInfo form.
func FromTableInfo(info table.Info) SSTInfo {
	return SSTInfo{
		Count:       info.Count,
		Size:        info.Size,
		SSTID:       info.SSTID,
		IndexOffset: info.IndexOffset,
		BloomOffset: info.BloomOffset,
		Filename:    info.Filename,
		Smallest:    info.Smallest,
		Largest:     info.Largest,
	}
}

// ToTableInfo converts a persisted SSTInfo back into a table.Info.
func ToTableInfo(s SSTInfo) table.Info {
	return table.Info{
		SSTID:       s.SSTID,
		Count:       s.Count,
		Size:        s.Size,
		IndexOffset: s.IndexOffset,
		BloomOffset: s.BloomOffset,
		Filename:    s.Filename,
		Smallest:    s.Smallest,
		Largest:     s.Largest,
	}
}
