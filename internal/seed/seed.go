// Package seed provides the deterministic selection primitives used wherever
// the engine needs "randomness". All variation is derived from FNV-1a hashes
// of stable keys, so the same inputs always produce the same choices across
// processes and restarts.
package seed

import "hash/fnv"

// Hash returns a stable 32-bit FNV-1a hash of s.
func Hash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

// Roll maps key into [0, mod). A non-positive mod yields 0.
func Roll(key string, mod int) int {
	if mod <= 0 {
		return 0
	}
	return int(Hash(key) % uint32(mod))
}

// Range maps key onto [min, max] inclusive.
func Range(key string, min, max int) int {
	if max <= min {
		return min
	}
	return min + Roll(key, max-min+1)
}
