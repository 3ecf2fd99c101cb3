// Package table implements the SSTable file format: data blocks back
// to back, an index block mapping each data block's largest internal
// key to its location, a bloom filter block, and a fixed-size footer.
package table

import (
	"rockyardkv/internal/block"
	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/filter"
	"rockyardkv/internal/vfs"
)

// Options configures a Builder.
type Options struct {
	BlockSize         int
	BloomBitsPerKey   int // values below 1 are treated as 1; EnableBloomFilter turns the filter on or off
	EnableBloomFilter bool
}

// Info describes one finished SSTable, matching the fields persisted in
// the engine's metadata file.
type Info struct {
	SSTID       uint64
	Count       uint64
	Size        uint64
	IndexOffset uint64
	BloomOffset uint64
	Filename    string
	Smallest    dbformat.InternalKey
	Largest     dbformat.InternalKey
}

// Builder writes one SSTable to a WritableFile.
type Builder struct {
	opts   Options
	w      vfs.WritableFile
	offset uint64

	data    *block.Builder
	index   *block.Builder
	bloom   *filter.Builder
	lastKey dbformat.InternalKey

	smallest, largest dbformat.InternalKey
	count             uint64
}

// NewBuilder returns a Builder that writes to w.
func NewBuilder(w vfs.WritableFile, opts Options) *Builder {
	b := &Builder{
		opts:  opts,
		w:     w,
		data:  block.NewBuilder(opts.BlockSize),
		index: block.NewBuilder(opts.BlockSize),
	}
	if opts.EnableBloomFilter {
		b.bloom = filter.NewBuilder(opts.BloomBitsPerKey)
	}
	return b
}

// Append adds one record. Records must be appended in ascending
// internal-key order.
func (b *Builder) Append(ikey dbformat.InternalKey, value []byte) error {
	if b.count == 0 {
		b.smallest = append(dbformat.InternalKey(nil), ikey...)
	}
	b.largest = append(dbformat.InternalKey(nil), ikey...)
	b.count++

	if b.bloom != nil {
		b.bloom.AddKey(dbformat.ExtractUserKey(ikey))
	}

	if !b.data.Append(ikey, value) {
		if err := b.flushDataBlock(); err != nil {
			return err
		}
		b.data.Append(ikey, value)
	}
	b.lastKey = append(b.lastKey[:0], ikey...)
	return nil
}

func (b *Builder) flushDataBlock() error {
	if b.data.Empty() {
		return nil
	}
	payload := b.data.Finish()
	handle := block.Handle{Offset: b.offset, Size: uint64(len(payload))}
	if _, err := b.w.Write(payload); err != nil {
		return err
	}
	b.offset += uint64(len(payload))

	var handleBuf [block.EncodedLength]byte
	encoded := handle.EncodeTo(handleBuf[:0])
	b.index.Append(append(dbformat.InternalKey(nil), b.lastKey...), encoded)

	b.data.Reset()
	return nil
}

// Finish flushes any pending data block plus the index and bloom
// blocks and the footer, and returns the finished table's Info.
func (b *Builder) Finish(sstID uint64, filename string) (Info, error) {
	if err := b.flushDataBlock(); err != nil {
		return Info{}, err
	}

	indexOffset := b.offset
	indexPayload := b.index.Finish()
	if _, err := b.w.Write(indexPayload); err != nil {
		return Info{}, err
	}
	b.offset += uint64(len(indexPayload))

	bloomOffset := b.offset
	var bloomPayload []byte
	if b.bloom != nil {
		bloomPayload = b.bloom.Finish()
	}
	if len(bloomPayload) > 0 {
		if _, err := b.w.Write(bloomPayload); err != nil {
			return Info{}, err
		}
	}
	b.offset += uint64(len(bloomPayload))

	footer := Footer{
		IndexOffset: indexOffset,
		IndexSize:   uint64(len(indexPayload)),
		BloomOffset: bloomOffset,
		BloomSize:   uint64(len(bloomPayload)),
		Count:       b.count,
	}
	var footerBuf [FooterLength]byte
	footer.EncodeTo(footerBuf[:])
	if _, err := b.w.Write(footerBuf[:]); err != nil {
		return Info{}, err
	}
	b.offset += FooterLength

	if err := b.w.Sync(); err != nil {
		return Info{}, err
	}
	if err := b.w.Close(); err != nil {
		return Info{}, err
	}

	return Info{
		SSTID:       sstID,
		Count:       b.count,
		Size:        b.offset,
		IndexOffset: indexOffset,
		BloomOffset: bloomOffset,
		Filename:    filename,
		Smallest:    b.smallest,
		Largest:     b.largest,
	}, nil
}

// Empty reports whether Append has never been called.
func (b *Builder) Empty() bool {
	return b.count == 0
}

// Size returns the number of bytes written to the output so far, plus
// the pending (not-yet-flushed) data block. Used by the compaction job
// to decide when to roll over to a new output file.
func (b *Builder) Size() uint64 {
	return b.offset + uint64(b.data.Size())
}
