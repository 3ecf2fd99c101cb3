// Package filter implements the cache-local Bloom filter used to skip
// SSTable point lookups that cannot possibly hit.
//
// The probe strategy (FastLocalBloom: one 64-byte cache line per key,
// golden-ratio rehashing for successive probes within that line) is
// carried over from the teacher's internal/filter/bloom.go, which itself
// follows RocksDB's util/bloom_impl.h. The on-disk framing is simplified
// to spec's (bit count, k, bit array) rather than RocksDB's
// format_version=5 metadata suffix, since nothing else in this engine
// needs to interoperate with a real RocksDB filter block.
package filter

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// CacheLineSize is the size of one probe region in bytes.
const CacheLineSize = 64

// CacheLineBits is the number of bits in a cache line.
const CacheLineBits = CacheLineSize * 8

// headerLen is the serialized (bitCount uint64, numProbes uint8) header
// that precedes the bit array.
const headerLen = 9

// Builder accumulates key hashes and produces a serialized filter.
type Builder struct {
	bitsPerKey int
	hashes     []uint64
}

// NewBuilder returns a Builder targeting bitsPerKey bits of filter per
// key added (10 bits/key yields roughly a 1% false-positive rate).
func NewBuilder(bitsPerKey int) *Builder {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	return &Builder{bitsPerKey: bitsPerKey, hashes: make([]uint64, 0, 256)}
}

// AddKey records a user key to be represented in the filter.
func (b *Builder) AddKey(key []byte) {
	b.hashes = append(b.hashes, xxh3.Hash(key))
}

// NumKeys returns the number of keys added since the last Reset.
func (b *Builder) NumKeys() int {
	return len(b.hashes)
}

// Finish serializes the filter: an 8-byte bit count, a 1-byte probe
// count, then the cache-line-aligned bit array.
func (b *Builder) Finish() []byte {
	n := len(b.hashes)
	if n == 0 {
		out := make([]byte, headerLen)
		return out
	}

	filterLen := calculateSpace(n, b.bitsPerKey)
	numProbes := chooseNumProbes(b.bitsPerKey * 1000)

	out := make([]byte, headerLen+filterLen)
	binary.LittleEndian.PutUint64(out[0:8], uint64(filterLen)*8)
	out[8] = byte(numProbes)
	bits := out[headerLen:]
	for _, h := range b.hashes {
		addHash(h, uint32(filterLen), numProbes, bits)
	}
	return out
}

// Reset clears the builder for reuse.
func (b *Builder) Reset() {
	b.hashes = b.hashes[:0]
}

// Reader answers MayContain queries against a serialized filter.
type Reader struct {
	bits      []byte
	filterLen uint32
	numProbes int
}

// NewReader parses a filter previously produced by Builder.Finish. It
// returns nil (not an error) for malformed input (a short header or bit
// array); table.Reader skips a nil filter and searches the data blocks.
// A filter with a zero bit count or zero probes (what Finish writes when
// no key was added) yields an empty Reader whose MayContain always
// reports false. MayContain on a nil Reader also reports false.
func NewReader(data []byte) *Reader {
	if len(data) < headerLen {
		return nil
	}
	bitCount := binary.LittleEndian.Uint64(data[0:8])
	numProbes := int(data[8])
	if bitCount == 0 || numProbes == 0 {
		return &Reader{}
	}
	bits := data[headerLen:]
	filterLen := uint32(bitCount / 8)
	if uint64(len(bits)) < uint64(filterLen) {
		return nil
	}
	return &Reader{bits: bits, filterLen: filterLen, numProbes: numProbes}
}

// MayContain reports whether key might be present. False means key is
// definitely absent.
func (r *Reader) MayContain(key []byte) bool {
	if r == nil || r.filterLen == 0 || r.numProbes == 0 {
		return false
	}
	return hashMayMatch(xxh3.Hash(key), r.filterLen, r.numProbes, r.bits)
}

func calculateSpace(numEntries, bitsPerKey int) int {
	totalBits := numEntries * bitsPerKey
	numCacheLines := (totalBits + CacheLineBits - 1) / CacheLineBits
	if numCacheLines == 0 {
		numCacheLines = 1
	}
	return numCacheLines * CacheLineSize
}

// chooseNumProbes picks the number of hash probes per key given
// millibits-per-key (bitsPerKey * 1000), following RocksDB's
// FastLocalBloomImpl::ChooseNumProbes lookup table.
func chooseNumProbes(millibitsPerKey int) int {
	switch {
	case millibitsPerKey <= 2080:
		return 1
	case millibitsPerKey <= 3580:
		return 2
	case millibitsPerKey <= 5100:
		return 3
	case millibitsPerKey <= 6640:
		return 4
	case millibitsPerKey <= 8300:
		return 5
	case millibitsPerKey <= 10070:
		return 6
	case millibitsPerKey <= 11720:
		return 7
	case millibitsPerKey <= 14001:
		return 8
	case millibitsPerKey <= 16050:
		return 9
	case millibitsPerKey <= 18300:
		return 10
	case millibitsPerKey <= 22001:
		return 11
	case millibitsPerKey <= 25501:
		return 12
	case millibitsPerKey > 50000:
		return 24
	default:
		return (millibitsPerKey-1)/2000 - 1
	}
}

func fastRange32(h, n uint32) uint32 {
	return uint32((uint64(h) * uint64(n)) >> 32)
}

func addHash(hash uint64, lenBytes uint32, numProbes int, data []byte) {
	h1 := uint32(hash)
	h2 := uint32(hash >> 32)
	numCacheLines := lenBytes >> 6
	cacheLineOffset := fastRange32(h1, numCacheLines) << 6
	addHashPrepared(h2, numProbes, data[cacheLineOffset:cacheLineOffset+CacheLineSize])
}

func addHashPrepared(h2 uint32, numProbes int, cacheLine []byte) {
	h := h2
	for range numProbes {
		bitpos := h >> (32 - 9)
		cacheLine[bitpos>>3] |= 1 << (bitpos & 7)
		h *= 0x9e3779b9
	}
}

func hashMayMatch(hash uint64, lenBytes uint32, numProbes int, data []byte) bool {
	h1 := uint32(hash)
	h2 := uint32(hash >> 32)
	numCacheLines := lenBytes >> 6
	cacheLineOffset := fastRange32(h1, numCacheLines) << 6
	return hashMayMatchPrepared(h2, numProbes, data[cacheLineOffset:cacheLineOffset+CacheLineSize])
}

func hashMayMatchPrepared(h2 uint32, numProbes int, cacheLine []byte) bool {
	h := h2
	for range numProbes {
		bitpos := h >> (32 - 9)
		if (cacheLine[bitpos>>3] & (1 << (bitpos & 7))) == 0 {
			return false
		}
		h *= 0x9e3779b9
	}
	return true
}
