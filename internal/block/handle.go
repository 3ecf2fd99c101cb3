package block

import "rockyardkv/internal/encoding"

// Handle locates a block within an SSTable file.
type Handle struct {
	Offset uint64
	Size   uint64
}

// EncodedLength is the maximum number of bytes EncodeTo can write.
const EncodedLength = 2 * encoding.MaxVarintLen64

// EncodeTo appends the varint encoding of h to dst.
func (h Handle) EncodeTo(dst []byte) []byte {
	dst = encoding.AppendVarint64(dst, h.Offset)
	dst = encoding.AppendVarint64(dst, h.Size)
	return dst
}

// DecodeHandle reads a Handle from src, returning the handle and the
// number of bytes consumed.
func DecodeHandle(src []byte) (Handle, int, error) {
	off, n1, err := encoding.DecodeVarint64(src)
	if err != nil {
		return Handle{}, 0, err
	}
	size, n2, err := encoding.DecodeVarint64(src[n1:])
	if err != nil {
		return Handle{}, 0, err
	}
	return Handle{Offset: off, Size: size}, n1 + n2, nil
}
