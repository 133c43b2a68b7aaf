// Package randutil builds seeded math/rand/v2 generators so every
// component that needs randomness can be made deterministic in tests.
package randutil

import (
	crand "crypto/rand"
	"encoding/binary"
	rand "math/rand/v2"
)

// New returns a generator seeded deterministically from seed. A splitmix64
// stream expands the single seed into the two 64-bit words the PCG needs,
// so all call sites get reproducible sequences.
func New(seed int64) *rand.Rand {
	state := uint64(seed)
	return rand.New(rand.NewPCG(splitmix64(&state), splitmix64(&state)))
}

// FromEntropy returns a generator seeded from the OS entropy pool.
func FromEntropy() *rand.Rand {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		panic("randutil: reading entropy: " + err.Error())
	}
	return New(int64(binary.LittleEndian.Uint64(b[:])))
}

func splitmix64(state *uint64) uint64 {
	*state += 0x9e3779b97f4a7c15
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
