package rng

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Crypto draws from crypto/rand
// Every real game is dealt with it; Seeded is for replays and tests.
type Crypto struct{}

var _ Generator = Crypto{}

// Intn returns a uniform number in [0, n)
// Like math/rand it panics if n <= 0.
func (Crypto) Intn(n int) int {
	if n <= 0 {
		panic("rng: invalid argument to Intn")
	}

	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Errorf("rng: system random source failed: %w", err))
	}

	return int(v.Int64())
}
