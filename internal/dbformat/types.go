// Package dbformat defines the on-disk key encoding shared by every layer
// of the engine: memtable, SSTable blocks, and iterators all compare keys
// through the same internal-key representation so merges, tombstones and
// snapshot reads agree on ordering.
package dbformat

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// SequenceNumber orders writes. Sequence numbers are assigned in strictly
// increasing order as writes are applied to the active memtable.
type SequenceNumber uint64

// ValueType tags an internal key as a live value or a tombstone.
type ValueType uint8

const (
	// TypeDeletion marks a key as deleted as of its sequence number.
	TypeDeletion ValueType = 0
	// TypeValue marks a key as holding a live value.
	TypeValue ValueType = 1
)

func (t ValueType) String() string {
	switch t {
	case TypeDeletion:
		return "Deletion"
	case TypeValue:
		return "Value"
	default:
		return "Unknown"
	}
}

// trailerLen is the number of bytes appended to every user key: an 8-byte
// little-endian sequence number followed by a 1-byte value type.
const trailerLen = 9

// MaxSequenceNumber sorts after every real sequence number; used to build
// a seek key that lands on the first internal key for a given user key
// regardless of which sequence number wrote it.
const MaxSequenceNumber SequenceNumber = (1 << 64) - 1

var errInternalKeyTooShort = errors.New("dbformat: internal key shorter than trailer")

// ParsedInternalKey is the decomposed form of an internal key: a user key,
// the sequence number that produced it, and whether it is a value or a
// deletion marker.
type ParsedInternalKey struct {
	UserKey []byte
	Seq     SequenceNumber
	Type    ValueType
}

// InternalKey is the encoded form: UserKey followed by the 9-byte trailer.
type InternalKey []byte

// AppendInternalKey appends the encoding of key to dst and returns the
// extended slice.
func AppendInternalKey(dst []byte, key ParsedInternalKey) []byte {
	dst = append(dst, key.UserKey...)
	var trailer [trailerLen]byte
	binary.LittleEndian.PutUint64(trailer[:8], uint64(key.Seq))
	trailer[8] = byte(key.Type)
	return append(dst, trailer[:]...)
}

// MakeInternalKey encodes key into a freshly allocated InternalKey.
func MakeInternalKey(userKey []byte, seq SequenceNumber, typ ValueType) InternalKey {
	return InternalKey(AppendInternalKey(make([]byte, 0, len(userKey)+trailerLen), ParsedInternalKey{
		UserKey: userKey, Seq: seq, Type: typ,
	}))
}

// ParseInternalKey decodes an encoded internal key. The returned UserKey
// aliases ikey; callers that need the result to outlive ikey must copy it.
func ParseInternalKey(ikey []byte) (ParsedInternalKey, error) {
	if len(ikey) < trailerLen {
		return ParsedInternalKey{}, errInternalKeyTooShort
	}
	n := len(ikey) - trailerLen
	trailer := ikey[n:]
	return ParsedInternalKey{
		UserKey: ikey[:n],
		Seq:     SequenceNumber(binary.LittleEndian.Uint64(trailer[:8])),
		Type:    ValueType(trailer[8]),
	}, nil
}

// ExtractUserKey returns the user-key portion of an internal key.
func ExtractUserKey(ikey []byte) []byte {
	if len(ikey) < trailerLen {
		return ikey
	}
	return ikey[:len(ikey)-trailerLen]
}

// ExtractSequenceNumber returns the sequence number of an internal key.
func ExtractSequenceNumber(ikey []byte) SequenceNumber {
	n := len(ikey) - trailerLen
	return SequenceNumber(binary.LittleEndian.Uint64(ikey[n : n+8]))
}

// ExtractValueType returns the value type of an internal key.
func ExtractValueType(ikey []byte) ValueType {
	return ValueType(ikey[len(ikey)-1])
}

// BytewiseCompare is the default user-key comparator.
func BytewiseCompare(a, b []byte) int {
	return bytes.Compare(a, b)
}

// UserComparator orders user keys. The engine ships only BytewiseCompare,
// but the internal-key comparator is built generically over this type so
// an alternate ordering could be substituted without touching callers.
type UserComparator func(a, b []byte) int

// InternalKeyComparator orders internal keys: ascending by user key, then
// descending by sequence number (newer writes sort first), then by type.
// Descending sequence order means a forward scan naturally visits the
// newest version of a user key before any older version, which is what
// snapshot reads and compaction both require.
type InternalKeyComparator struct {
	UserCmp UserComparator
}

// NewInternalKeyComparator builds a comparator over cmp, defaulting to
// BytewiseCompare when cmp is nil.
func NewInternalKeyComparator(cmp UserComparator) InternalKeyComparator {
	if cmp == nil {
		cmp = BytewiseCompare
	}
	return InternalKeyComparator{UserCmp: cmp}
}

// Compare orders two encoded internal keys.
func (c InternalKeyComparator) Compare(a, b []byte) int {
	ua, ub := ExtractUserKey(a), ExtractUserKey(b)
	if r := c.UserCmp(ua, ub); r != 0 {
		return r
	}
	sa, sb := ExtractSequenceNumber(a), ExtractSequenceNumber(b)
	switch {
	case sa > sb:
		return -1
	case sa < sb:
		return 1
	}
	ta, tb := ExtractValueType(a), ExtractValueType(b)
	switch {
	case ta > tb:
		return -1
	case ta < tb:
		return 1
	}
	return 0
}

// CompareUserKey compares only the user-key portions of two internal keys.
func (c InternalKeyComparator) CompareUserKey(a, b []byte) int {
	return c.UserCmp(ExtractUserKey(a), ExtractUserKey(b))
}

// GetResult is the three-way outcome of a point lookup against a
// memtable or SSTable, grounded on original_source's common.hpp
// GetResult enum (kFound, kNotFound, kDelete).
type GetResult int

const (
	// NotFound means the key is absent from this source entirely.
	NotFound GetResult = iota
	// Found means a live value was located.
	Found
	// Deleted means the newest record for this key (within the
	// queried snapshot) is a tombstone.
	Deleted
)
