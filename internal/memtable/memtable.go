package memtable

import (
	"sync"
	"sync/atomic"

	"rockyardkv/internal/arena"
	"rockyardkv/internal/dbformat"
	"rockyardkv/internal/encoding"
)

// perRecordOverhead approximates the bookkeeping cost of one entry
// (skip-list tower, length prefixes) for size-based flush triggering.
const perRecordOverhead = 32

// MemTable is the in-memory sorted write buffer. Values are copied into
// a per-memtable arena on insert (grounded on original_source's
// ArenaAllocator, see internal/arena) so returned slices stay valid for
// the memtable's lifetime regardless of what the caller does with its
// own buffers.
//
// Concurrency: Put/Del require external synchronization (the engine's
// write mutex serializes them and assigns sequence numbers). Get and
// iteration are safe to run concurrently with further Put/Del calls
// because the skip list never mutates a node once linked in.
type MemTable struct {
	mu   sync.RWMutex // not locked anywhere; size and flush state are atomics
	ikc  dbformat.InternalKeyComparator
	list *skipList
	ar   *arena.Arena

	size atomic.Int64

	flushInProgress atomic.Bool
	flushComplete   atomic.Bool
}

// New returns an empty MemTable ordered by ikc.
func New(ikc dbformat.InternalKeyComparator) *MemTable {
	mt := &MemTable{ikc: ikc, ar: arena.New()}
	mt.list = newSkipList(mt.compareEntries)
	return mt
}

// entry wire format: varint(ikeyLen) ikey varint(valLen) value.
func encodeEntry(dst []byte, ikey, value []byte) []byte {
	dst = encoding.AppendVarint32(dst, uint32(len(ikey)))
	dst = append(dst, ikey...)
	dst = encoding.AppendVarint32(dst, uint32(len(value)))
	dst = append(dst, value...)
	return dst
}

func decodeEntry(entry []byte) (ikey, value []byte) {
	klen, n, err := encoding.DecodeVarint32(entry)
	if err != nil {
		return nil, nil
	}
	entry = entry[n:]
	ikey = entry[:klen]
	entry = entry[klen:]
	vlen, n, err := encoding.DecodeVarint32(entry)
	if err != nil {
		return ikey, nil
	}
	entry = entry[n:]
	value = entry[:vlen]
	return ikey, value
}

func (mt *MemTable) compareEntries(a, b []byte) int {
	ak, _ := decodeEntry(a)
	bk, _ := decodeEntry(b)
	return mt.ikc.Compare(ak, bk)
}

func (mt *MemTable) put(userKey []byte, seq dbformat.SequenceNumber, typ dbformat.ValueType, value []byte) {
	ikey := dbformat.AppendInternalKey(make([]byte, 0, len(userKey)+9), dbformat.ParsedInternalKey{
		UserKey: userKey, Seq: seq, Type: typ,
	})
	raw := encodeEntry(make([]byte, 0, len(ikey)+len(value)+10), ikey, value)
	stored := mt.ar.Allocate(raw)
	mt.list.Insert(stored)
	mt.size.Add(int64(len(userKey) + len(value) + perRecordOverhead))
}

// Put inserts a live value for userKey at seq.
func (mt *MemTable) Put(userKey []byte, seq dbformat.SequenceNumber, value []byte) {
	mt.put(userKey, seq, dbformat.TypeValue, value)
}

// Del inserts a tombstone for userKey at seq.
func (mt *MemTable) Del(userKey []byte, seq dbformat.SequenceNumber) {
	mt.put(userKey, seq, dbformat.TypeDeletion, nil)
}

// Get looks up the newest record for userKey with sequence <= seq.
func (mt *MemTable) Get(userKey []byte, seq dbformat.SequenceNumber) (value []byte, result dbformat.GetResult) {
	target := dbformat.AppendInternalKey(make([]byte, 0, len(userKey)+9), dbformat.ParsedInternalKey{
		UserKey: userKey, Seq: seq, Type: dbformat.TypeValue,
	})
	it := mt.list.newIterator()
	it.Seek(encodeEntry(nil, target, nil))
	if !it.Valid() {
		return nil, dbformat.NotFound
	}
	ikey, v := decodeEntry(it.Entry())
	if mt.ikc.CompareUserKey(ikey, target) != 0 {
		return nil, dbformat.NotFound
	}
	if dbformat.ExtractValueType(ikey) == dbformat.TypeDeletion {
		return nil, dbformat.Deleted
	}
	return v, dbformat.Found
}

// Size returns the logically-charged number of bytes (keys + values +
// per-record overhead) used for flush-trigger accounting.
func (mt *MemTable) Size() int64 {
	return mt.size.Load()
}

// Empty reports whether the memtable holds no records.
func (mt *MemTable) Empty() bool {
	return mt.list.Count() == 0
}

// MarkFlushInProgress transitions the memtable out of the queued state.
func (mt *MemTable) MarkFlushInProgress() {
	mt.flushInProgress.Store(true)
}

// IsFlushInProgress reports whether a flush has claimed this memtable.
func (mt *MemTable) IsFlushInProgress() bool {
	return mt.flushInProgress.Load()
}

// MarkFlushComplete transitions the memtable to its terminal state; the
// engine drops it from the immutable list on the next SuperVersion swap.
func (mt *MemTable) MarkFlushComplete() {
	mt.flushComplete.Store(true)
}

// IsFlushComplete reports whether the flush job finished successfully.
func (mt *MemTable) IsFlushComplete() bool {
	return mt.flushComplete.Load()
}

// Iterator yields every record in ascending internal-key order.
type Iterator struct {
	it  *iterator
	ikc dbformat.InternalKeyComparator
}

// NewIterator returns an unpositioned Iterator over mt.
func (mt *MemTable) NewIterator() *Iterator {
	return &Iterator{it: mt.list.newIterator(), ikc: mt.ikc}
}

func (it *Iterator) Valid() bool { return it.it.Valid() }

func (it *Iterator) Next() { it.it.Next() }

func (it *Iterator) SeekToFirst() { it.it.SeekToFirst() }

// Seek positions at the first record with internal key >= target.
func (it *Iterator) Seek(target []byte) {
	it.it.Seek(encodeEntry(nil, target, nil))
}

// Key returns the current record's encoded internal key.
func (it *Iterator) Key() []byte {
	k, _ := decodeEntry(it.it.Entry())
	return k
}

// Value returns the current record's value.
func (it *Iterator) Value() []byte {
	_, v := decodeEntry(it.it.Entry())
	return v
}

func (it *Iterator) Error() error { return nil }
