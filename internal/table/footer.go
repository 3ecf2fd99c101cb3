package table

import (
	"encoding/binary"
	"errors"
)

// FooterLength is the fixed number of bytes at the tail of every
// SSTable file. A fixed-size footer lets Open read it straight from the
// file's last FooterLength bytes without scanning forward, matching
// spec's "the footer MUST be fixed-size" requirement. Layout (all
// fields little-endian uint64): magic, indexOffset, indexSize,
// bloomOffset, bloomSize, recordCount.
const FooterLength = 48

const footerMagic uint64 = 0x524b5654424c4b31 // "RKVTBLK1"

// ErrCorruptFooter is returned when a file's trailing bytes do not
// carry a valid footer magic number.
var ErrCorruptFooter = errors.New("table: corrupt footer")

// Footer locates the index and bloom blocks within an SSTable file and
// records its total record count.
type Footer struct {
	IndexOffset uint64
	IndexSize   uint64
	BloomOffset uint64
	BloomSize   uint64
	Count       uint64
}

// EncodeTo serializes f into a FooterLength-byte buffer.
func (f Footer) EncodeTo(dst []byte) {
	binary.LittleEndian.PutUint64(dst[0:8], footerMagic)
	binary.LittleEndian.PutUint64(dst[8:16], f.IndexOffset)
	binary.LittleEndian.PutUint64(dst[16:24], f.IndexSize)
	binary.LittleEndian.PutUint64(dst[24:32], f.BloomOffset)
	binary.LittleEndian.PutUint64(dst[32:40], f.BloomSize)
	binary.LittleEndian.PutUint64(dst[40:48], f.Count)
}

// DecodeFooter parses a FooterLength-byte buffer produced by EncodeTo.
func DecodeFooter(src []byte) (Footer, error) {
	if len(src) != FooterLength {
		return Footer{}, ErrCorruptFooter
	}
	if binary.LittleEndian.Uint64(src[0:8]) != footerMagic {
		return Footer{}, ErrCorruptFooter
	}
	return Footer{
		IndexOffset: binary.LittleEndian.Uint64(src[8:16]),
		IndexSize:   binary.LittleEndian.Uint64(src[16:24]),
		BloomOffset: binary.LittleEndian.Uint64(src[24:32]),
		BloomSize:   binary.LittleEndian.Uint64(src[32:40]),
		Count:       binary.LittleEndian.Uint64(src[40:48]),
	}, nil
}
