package responses

import (
	"crypto/sha256"
	"math/big"
	"math/rand/v2"
)

const seedModulus = 500

// HashSeed derives a small deterministic seed (0 <= seed < 500) from s.
func HashSeed(s string) int64 {
	sum := sha256.Sum256([]byte(s))
	n := new(big.Int).SetBytes(sum[:])
	return n.Mod(n, big.NewInt(seedModulus)).Int64()
}

// Shuffle permutes items in place using a PRNG seeded by seed, so every
// student sees a stable order across notebook restarts.
func Shuffle[T any](items []T, seed int64) []T {
	r := rand.New(rand.NewPCG(uint64(seed), 0))
	r.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
	return items
}

// RandomSeed picks a fresh seed for a student who has none yet.
func RandomSeed() int64 {
	return rand.Int64N(100)
}
