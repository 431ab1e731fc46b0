package wire

import "encoding/binary"

// PutUvarint encodes v as unsigned LEB128 into buf and returns the number
// of bytes written. buf must have at least UvarintLen(v) bytes available
// (MaxVarintLen always suffices).
// This is the same 7-bit-group, continuation-bit scheme as
// encoding/binary.PutUvarint, which mebo's own tag encoder calls directly;
// we do the same rather than hand-rolling an equivalent loop.
func PutUvarint(buf []byte, v uint64) int {
	return binary.PutUvarint(buf, v)
}

// Uvarint decodes an unsigned LEB128 value from buf. It returns the value
// and the number of bytes read, or n <= 0 per encoding/binary.Uvarint's own
// convention: n == 0 means buf too small, n < 0 means the value overflowed
// 64 bits (shifted past bit 63).
func Uvarint(buf []byte) (uint64, int) {
	return binary.Uvarint(buf)
}

// PutVarint encodes a signed value via ZigZag then unsigned LEB128.
func PutVarint(buf []byte, v int64) int {
	return binary.PutVarint(buf, v)
}

// Varint decodes a ZigZag+LEB128-encoded signed value.
func Varint(buf []byte) (int64, int) {
	return binary.Varint(buf)
}

// ZigZagEncode maps a signed value to an unsigned one so small-magnitude
// values (positive or negative) get small codes: (n << 1) ^ (n >> 63).
func ZigZagEncode(n int64) uint64 {
	return uint64(n<<1) ^ uint64(n>>63)
}

// ZigZagDecode is the inverse of ZigZagEncode: (z >> 1) ^ -(z & 1).
func ZigZagDecode(z uint64) int64 {
	return int64(z>>1) ^ -int64(z&1)
}

// MaxVarintLen is the maximum number of bytes a 64-bit LEB128 varint can
// occupy: ceil(64/7) = 10.
const MaxVarintLen = binary.MaxVarintLen64

// UvarintLen returns the number of bytes PutUvarint(v) would write, without
// allocating a scratch buffer. Grounded on mebo's own fast inline
// varintLen helper (encoding/tag.go), which benchmarks faster than calling
// PutUvarint against a throwaway buffer just to measure it.
func UvarintLen(v uint64) int {
	switch {
	case v < 1<<7:
		return 1
	case v < 1<<14:
		return 2
	case v < 1<<21:
		return 3
	case v < 1<<28:
		return 4
	case v < 1<<35:
		return 5
	case v < 1<<42:
		return 6
	case v < 1<<49:
		return 7
	case v < 1<<56:
		return 8
	case v < 1<<63:
		return 9
	default:
		return 10
	}
}
