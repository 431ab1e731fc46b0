package wire

import "hash/crc32"

// crcTable is the IEEE 802.3 polynomial (0xEDB88320, reflected) table,
// the same polynomial hash/crc32.IEEETable is built from. We reference the
// standard library's precomputed table directly rather than hand-rolling
// one: no third-party package in this codebase's dependency set re-derives
// CRC32, and the stdlib table (built once at package initialization) is the
// deterministic table the design calls for.
var crcTable = crc32.IEEETable

// CRC32 computes the one-shot IEEE 802.3 CRC32 of data: seeded
// 0xFFFFFFFF, folded through the reflected polynomial, finalized by XOR
// with 0xFFFFFFFF.
func CRC32(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// CRC32Update folds more bytes into a running CRC32 computation. The
// caller seeds running with 0xFFFFFFFF before the first call and XORs the
// final result with 0xFFFFFFFF to obtain the finished checksum; this
// mirrors the incremental update contract in spec so header and payload
// can be folded in one pass without concatenating them first.
func CRC32Update(running uint32, data []byte) uint32 {
	// crc32.Update inverts its argument on entry and its result on exit;
	// undo both so running stays the raw register value described above.
	return ^crc32.Update(^running, crcTable, data)
}
