// Package endian provides host byte-order detection and explicit byte-swap
// primitives for the DCF wire codec.
//
// The wire format itself is always big-endian: header fields, tags, and
// fixed-width payload values are never re-ordered based on host
// endianness. This package handles the lower layer underneath that --
// detecting the host's native byte order and converting between host and
// network order -- for collaborators (e.g. hand-rolled sub-grammars
// written with WriteRaw/WriteReserve) that need it directly.
//
// EndianEngine combines encoding/binary's ByteOrder and AppendByteOrder
// interfaces into one, satisfied by binary.LittleEndian and binary.BigEndian
// as-is. The other packages of this module only ever call
// GetBigEndianEngine(); the host-order detection, byte-swap and
// little-endian helpers have no caller in the module outside this
// package's own tests.
package endian

import (
	"encoding/binary"
	"unsafe"
)

// EndianEngine combines ByteOrder and AppendByteOrder from the standard
// library into a single interface for convenient byte-order operations.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// CheckEndianness uses a fixed integer value to determine the host's byte order.
func CheckEndianness() binary.ByteOrder {
	// 0x0100 is 256. For a little-endian system, the LSB (0x00) is first.
	// For a big-endian system, the MSB (0x01) is first.
	var i uint16 = 0x0100

	b := (*[2]byte)(unsafe.Pointer(&i))
	if b[0] == 0x01 {
		return binary.BigEndian
	}

	return binary.LittleEndian
}

func IsNativeLittleEndian() bool {
	return CheckEndianness() == binary.LittleEndian
}

func IsNativeBigEndian() bool {
	return CheckEndianness() == binary.BigEndian
}

func CompareNativeEndian(engine EndianEngine) bool {
	return engine == CheckEndianness()
}

// GetLittleEndianEngine returns the little-endian engine.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}

// GetBigEndianEngine returns the big-endian engine. The wire package uses
// this exclusively -- every field on the wire is big-endian regardless of
// host order.
func GetBigEndianEngine() EndianEngine {
	return binary.BigEndian
}

// Bswap16 reverses the byte order of a 16-bit value.
func Bswap16(v uint16) uint16 {
	return v<<8 | v>>8
}

// Bswap32 reverses the byte order of a 32-bit value.
func Bswap32(v uint32) uint32 {
	return v<<24 | (v&0xFF00)<<8 | (v&0xFF0000)>>8 | v>>24
}

// Bswap64 reverses the byte order of a 64-bit value.
func Bswap64(v uint64) uint64 {
	return v<<56 | (v&0xFF00)<<40 | (v&0xFF0000)<<24 | (v&0xFF000000)<<8 |
		(v&0xFF00000000)>>8 | (v&0xFF0000000000)>>24 | (v&0xFF000000000000)>>40 | v>>56
}

// HtoN16 converts a 16-bit value from host order to network (big-endian) order.
func HtoN16(v uint16) uint16 {
	if IsNativeBigEndian() {
		return v
	}

	return Bswap16(v)
}

// HtoN32 converts a 32-bit value from host order to network order.
func HtoN32(v uint32) uint32 {
	if IsNativeBigEndian() {
		return v
	}

	return Bswap32(v)
}

// HtoN64 converts a 64-bit value from host order to network order.
func HtoN64(v uint64) uint64 {
	if IsNativeBigEndian() {
		return v
	}

	return Bswap64(v)
}

// NtoH16 converts a 16-bit value from network order to host order. Network
// order is big-endian, so this is its own inverse and identical to HtoN16.
func NtoH16(v uint16) uint16 { return HtoN16(v) }

// NtoH32 converts a 32-bit value from network order to host order.
func NtoH32(v uint32) uint32 { return HtoN32(v) }

// NtoH64 converts a 64-bit value from network order to host order.
func NtoH64(v uint64) uint64 { return HtoN64(v) }
