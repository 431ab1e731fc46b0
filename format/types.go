// Package format defines the set of payload compression algorithms a
// collaborator may apply to a framed message's COMPRESSED payload.
//
// The core wire codec (see package wire) never compresses or decompresses
// data itself; that responsibility belongs to the caller. This package
// gives callers that do compress a shared vocabulary for which algorithm
// was used.
package format

// CompressionType identifies a payload compression algorithm applied outside
// the core codec, at the transport boundary.
type CompressionType uint8

const (
	CompressionNone CompressionType = 0x1 // CompressionNone means the payload is stored as-is.
	CompressionZstd CompressionType = 0x2 // CompressionZstd means the payload was compressed with Zstandard.
	CompressionS2   CompressionType = 0x3 // CompressionS2 means the payload was compressed with S2.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 means the payload was compressed with LZ4.
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}
