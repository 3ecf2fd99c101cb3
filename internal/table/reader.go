package table

import (
	"rockyardkv/internal/block"
	"rockyardkv/internal/cache"
	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/filter"
	"rockyardkv/internal/vfs"
)

// Reader provides point lookups and iteration over one SSTable file.
// The index and bloom blocks are loaded once at Open and held in
// memory for the Reader's lifetime; data blocks flow through the
// shared block cache.
type Reader struct {
	sstID uint64
	f     vfs.RandomAccessFile
	ikc   dbformat.InternalKeyComparator
	cache *cache.Cache

	footer Footer
	index  *block.Reader
	bloom  *filter.Reader
}

// Open parses f's footer, index block, and bloom block and returns a
// ready Reader. f is retained for the Reader's lifetime to serve data
// block reads on cache misses.
func Open(sstID uint64, f vfs.RandomAccessFile, ikc dbformat.InternalKeyComparator, blockCache *cache.Cache) (*Reader, error) {
	size := f.Size()
	if size < FooterLength {
		return nil, ErrCorruptFooter
	}
	footerBuf := make([]byte, FooterLength)
	if _, err := f.ReadAt(footerBuf, size-FooterLength); err != nil {
		return nil, err
	}
	footer, err := DecodeFooter(footerBuf)
	if err != nil {
		return nil, err
	}

	indexBuf := make([]byte, footer.IndexSize)
	if _, err := f.ReadAt(indexBuf, int64(footer.IndexOffset)); err != nil {
		return nil, err
	}
	indexReader, err := block.NewReader(indexBuf)
	if err != nil {
		return nil, err
	}

	var bloomReader *filter.Reader
	if footer.BloomSize > 0 {
		bloomBuf := make([]byte, footer.BloomSize)
		if _, err := f.ReadAt(bloomBuf, int64(footer.BloomOffset)); err != nil {
			return nil, err
		}
		bloomReader = filter.NewReader(bloomBuf)
	}

	return &Reader{
		sstID:  sstID,
		f:      f,
		ikc:    ikc,
		cache:  blockCache,
		footer: footer,
		index:  indexReader,
		bloom:  bloomReader,
	}, nil
}

// Close releases the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}

// SSTID returns the table's identifier.
func (r *Reader) SSTID() uint64 {
	return r.sstID
}

// Count returns the number of records in the table.
func (r *Reader) Count() uint64 {
	return r.footer.Count
}

func (r *Reader) loadDataBlock(h block.Handle) (*block.Reader, *cache.Handle, error) {
	key := cache.Key{SSTID: r.sstID, BlockOffset: h.Offset}
	if ch := r.cache.Lookup(key); ch != nil {
		br, err := block.NewReader(ch.Value())
		if err != nil {
			r.cache.Release(ch)
			return nil, nil, err
		}
		return br, ch, nil
	}

	buf := make([]byte, h.Size)
	if _, err := r.f.ReadAt(buf, int64(h.Offset)); err != nil {
		return nil, nil, err
	}
	br, err := block.NewReader(buf)
	if err != nil {
		return nil, nil, err
	}
	ch, err := r.cache.Insert(key, buf, uint64(len(buf)))
	if err != nil {
		// Cache couldn't hold it (e.g. larger than capacity); still
		// return the freshly read block, just uncached.
		return br, nil, nil
	}
	return br, ch, nil
}

// Get implements spec 4.3's point-lookup contract: a negative bloom
// probe answers NotFound with no I/O beyond the cached bloom block;
// otherwise the index is searched and the located data block scanned.
func (r *Reader) Get(userKey []byte, seq dbformat.SequenceNumber) ([]byte, dbformat.GetResult, error) {
	if r.bloom != nil && !r.bloom.MayContain(userKey) {
		return nil, dbformat.NotFound, nil
	}

	target := dbformat.AppendInternalKey(make([]byte, 0, len(userKey)+9), dbformat.ParsedInternalKey{
		UserKey: userKey, Seq: seq, Type: dbformat.TypeValue,
	})

	idxIt := block.NewIterator(r.index, r.ikc.Compare)
	idxIt.Seek(target)
	if !idxIt.Valid() {
		return nil, dbformat.NotFound, nil
	}
	handle, _, err := block.DecodeHandle(idxIt.Value())
	if err != nil {
		return nil, dbformat.NotFound, err
	}

	dataReader, ch, err := r.loadDataBlock(handle)
	if err != nil {
		return nil, dbformat.NotFound, err
	}
	if ch != nil {
		defer r.cache.Release(ch)
	}

	dataIt := block.NewIterator(dataReader, r.ikc.Compare)
	dataIt.Seek(target)
	if !dataIt.Valid() {
		return nil, dbformat.NotFound, nil
	}
	if r.ikc.CompareUserKey(dataIt.Key(), target) != 0 {
		return nil, dbformat.NotFound, nil
	}
	if dbformat.ExtractValueType(dataIt.Key()) == dbformat.TypeDeletion {
		return nil, dbformat.Deleted, nil
	}
	value := append([]byte(nil), dataIt.Value()...)
	return value, dbformat.Found, nil
}

// Iterator scans every record of the table in ascending internal-key
// order, crossing data block boundaries transparently.
type Iterator struct {
	r       *Reader
	idxIt   *block.Iterator
	dataIt  *block.Iterator
	curCh   *cache.Handle
	lastErr error
}

// NewIterator returns an unpositioned Iterator over r.
func (r *Reader) NewIterator() *Iterator {
	return &Iterator{r: r, idxIt: block.NewIterator(r.index, r.ikc.Compare)}
}

func (it *Iterator) releaseCur() {
	if it.curCh != nil {
		it.r.cache.Release(it.curCh)
		it.curCh = nil
	}
}

// loadBlockAtCurrent loads the data block the index iterator currently
// points at, advancing through empty blocks (there should be none, but
// this keeps the scan correct if one ever occurs) until it finds a
// non-empty one or runs out of blocks.
func (it *Iterator) loadBlockAtCurrent() {
	it.dataIt = nil
	it.releaseCur()
	for it.idxIt.Valid() {
		handle, _, err := block.DecodeHandle(it.idxIt.Value())
		if err != nil {
			it.lastErr = err
			return
		}
		br, ch, err := it.r.loadDataBlock(handle)
		if err != nil {
			it.lastErr = err
			return
		}
		it.curCh = ch
		it.dataIt = block.NewIterator(br, it.r.ikc.Compare)
		it.dataIt.SeekToFirst()
		if it.dataIt.Valid() {
			return
		}
		it.idxIt.Next()
	}
}

// SeekToFirst positions the iterator at the table's first record.
func (it *Iterator) SeekToFirst() {
	it.idxIt.SeekToFirst()
	it.loadBlockAtCurrent()
}

// Seek positions the iterator at the first record with internal key
// >= target.
func (it *Iterator) Seek(target []byte) {
	it.idxIt.Seek(target)
	it.loadBlockAtCurrent()
	if it.dataIt != nil {
		it.dataIt.Seek(target)
		if !it.dataIt.Valid() {
			it.advanceBlock()
		}
	}
}

func (it *Iterator) advanceBlock() {
	it.idxIt.Next()
	it.loadBlockAtCurrent()
}

// Valid reports whether the iterator is positioned at a record.
func (it *Iterator) Valid() bool {
	return it.dataIt != nil && it.dataIt.Valid()
}

// Key returns the current record's internal key.
func (it *Iterator) Key() []byte {
	return it.dataIt.Key()
}

// Value returns the current record's value.
func (it *Iterator) Value() []byte {
	return it.dataIt.Value()
}

// Next advances to the next record, crossing into the next data block
// when the current one is exhausted.
func (it *Iterator) Next() {
	it.dataIt.Next()
	if !it.dataIt.Valid() {
		it.advanceBlock()
	}
}

// Error returns any error encountered while scanning.
func (it *Iterator) Error() error {
	return it.lastErr
}

// Close releases the iterator's cache handle, if any.
func (it *Iterator) Close() {
	it.releaseCur()
}
