package rockyardkv

import (
	"bytes"

	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/iterator"
	"rockyardkv/internal/version"
)

// Iterator scans keys in ascending order over a consistent snapshot
// taken at construction time. It is not safe for concurrent use.
type Iterator struct {
	db   *DB
	sv   *version.SuperVersion
	ikc  dbformat.InternalKeyComparator
	snap dbformat.SequenceNumber

	src   iterator.Iterator
	key   []byte
	value []byte
	valid bool
}

// newIterator pins sv (so its memtables and on-disk tables outlive the
// iterator regardless of concurrent flush/compaction) and builds the
// merging stream filtered to records visible as of snap. It also counts
// toward db's outstanding-iterator count, which gates whether a
// bottom-level compaction is allowed to drop obsolete versions (see
// runCompaction's DropObsolete wiring): dropping a version that an open
// iterator might still need to see would break snapshot isolation.
func newIterator(db *DB, sv *version.SuperVersion, ikc dbformat.InternalKeyComparator, snap dbformat.SequenceNumber) *Iterator {
	sv.Ref()
	db.activeIterators.Add(1)
	return &Iterator{
		db:   db,
		sv:   sv,
		ikc:  ikc,
		snap: snap,
		src:  sv.NewIterator(ikc),
	}
}

// Begin returns an iterator positioned at the first key visible as of
// the database's current sequence number.
func (db *DB) Begin() *Iterator {
	sv := db.getSV()
	snap := dbformat.SequenceNumber(db.seq.Load())
	it := newIterator(db, sv, db.ikc, snap)
	it.src.SeekToFirst()
	it.settle()
	return it
}

// Seek returns an iterator positioned at the first visible key >= key.
func (db *DB) Seek(key []byte) *Iterator {
	sv := db.getSV()
	snap := dbformat.SequenceNumber(db.seq.Load())
	it := newIterator(db, sv, db.ikc, snap)
	it.src.Seek(dbformat.MakeInternalKey(key, dbformat.MaxSequenceNumber, dbformat.TypeValue))
	it.settle()
	return it
}

// Valid reports whether the iterator is positioned at a live record.
func (it *Iterator) Valid() bool { return it.valid }

// Key returns the current record's user key.
func (it *Iterator) Key() []byte { return it.key }

// Value returns the current record's value.
func (it *Iterator) Value() []byte { return it.value }

// Error returns any error encountered while scanning.
func (it *Iterator) Error() error { return it.src.Error() }

// Close releases the iterator's pin on its snapshot. It must be called
// exactly once when the iterator is no longer needed.
func (it *Iterator) Close() {
	it.sv.Unref()
	it.db.activeIterators.Add(-1)
}

// Next advances to the next distinct, visible user key.
func (it *Iterator) Next() {
	if !it.valid {
		return
	}
	it.skipCurrentUserKey()
	it.settle()
}

// settle advances the underlying merging iterator until it finds the
// next user key visible as of the snapshot (applying spec 4.8's
// seq-filter and tombstone-skip rules), or runs out of input.
func (it *Iterator) settle() {
	for {
		for it.src.Valid() && dbformat.ExtractSequenceNumber(it.src.Key()) > it.snap {
			it.src.Next()
		}
		if !it.src.Valid() {
			it.valid = false
			it.key, it.value = nil, nil
			return
		}

		ikey := it.src.Key()
		userKey := append([]byte(nil), dbformat.ExtractUserKey(ikey)...)
		typ := dbformat.ExtractValueType(ikey)
		if typ == dbformat.TypeDeletion {
			it.skipUserKey(userKey)
			continue
		}

		it.key = userKey
		it.value = append([]byte(nil), it.src.Value()...)
		it.valid = true
		return
	}
}

// skipCurrentUserKey advances past every remaining record sharing the
// key just yielded.
func (it *Iterator) skipCurrentUserKey() {
	it.skipUserKey(it.key)
}

func (it *Iterator) skipUserKey(userKey []byte) {
	for it.src.Valid() && bytes.Equal(dbformat.ExtractUserKey(it.src.Key()), userKey) {
		it.src.Next()
	}
}
