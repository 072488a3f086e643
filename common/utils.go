package common

import "fmt"

// Assert checks a condition and panics if it is false.
//
// Assertions guard internal invariants: conditions that can only fail if the engine itself is broken (a batch
// accessed out of range, a value read with the wrong accessor, a scheduler port used after release). Conditions
// caused by plans, data or the environment are reported as errors instead.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

const (
	offset64 = 14695981039346656037
	prime64  = 1099511628211
)

// Hash computes the FNV-1a 64-bit hash of the provided byte slice without allocation.
func Hash(data []byte) uint64 {
	var h uint64 = offset64
	for _, b := range data {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}

// HashCombine mixes h2 into h1. It is order sensitive.
func HashCombine(h1, h2 uint64) uint64 {
	h1 ^= h2 + 0x9e3779b97f4a7c15 + (h1 << 6) + (h1 >> 2)
	return h1
}
