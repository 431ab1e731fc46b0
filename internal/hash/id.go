package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of the given string.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}

// Bytes computes the xxHash64 of the given byte slice, for callers (such
// as transport's content-dedup option) that already hold the data as
// []byte and would otherwise pay a string conversion just to call ID.
func Bytes(data []byte) uint64 {
	return xxhash.Sum64(data)
}
