package utils

import (
	"hash/fnv"
)

// Digest folds the given parts into a single FNV-1a value, used to derive
// deterministic cache entry names. Parts are separated so that ("ab", "c")
// and ("a", "bc") never collide.
func Digest(parts ...string) uint64 {
	h := fnv.New64a()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}

	return h.Sum64()
}
