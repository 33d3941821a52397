package helpers

import (
	"math/rand"
	"testing"
	"time"
)

// RandUnix logs seed so failed random case can be replayed.
func RandUnix(t testing.TB) *rand.Rand {
	seed := time.Now().UnixNano()
	t.Logf("random seed=%d", seed)
	return rand.New(rand.NewSource(seed))
}
