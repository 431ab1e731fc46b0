// Package compress provides optional payload compression for the DCF
// transport layer.
//
// The core wire codec (package wire/encoder/decoder) treats the COMPRESSED
// flag as opaque: it is the caller's responsibility to compress a payload
// before writing it and decompress it after reading it. This package
// supplies that caller with three real algorithms plus a no-op, all
// behind the same Compressor/Decompressor/Codec interfaces, so the
// transport package can select one by format.CompressionType without
// special-casing any of them.
package compress
