package captcha

import (
	cryptorand "crypto/rand"
	"math/rand/v2"
	"sync/atomic"
)

// NewRand returns a generator private to one request, seeded from the
// operating system's CSPRNG. Generators are never shared between requests.
func NewRand() *rand.Rand {
	var seed [32]byte
	cryptorand.Read(seed[:]) // never fails; crashes the program instead
	return rand.New(rand.NewChaCha8(seed))
}

// SeededRand returns a factory of reproducible generators for tests and
// offline batches. Each call yields a distinct stream derived from seed.
func SeededRand(seed uint64) func() *rand.Rand {
	var n atomic.Uint64
	return func() *rand.Rand {
		return rand.New(rand.NewPCG(seed, seed^0xdeadbeef+n.Add(1)))
	}
}
