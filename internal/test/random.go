package test

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// RandomPhone returns a formatted phone number whose digits are unique enough for search tests.
func RandomPhone() string {
	return fmt.Sprintf("+7 (9%02d) %03d-%02d-%02d", randomIntn(100), randomIntn(1000), randomIntn(100), randomIntn(100))
}

// RandomID returns prefix followed by a pseudo-random suffix.
func RandomID(prefix string) string {
	return fmt.Sprintf("%s-%06d", prefix, randomIntn(1000000))
}

func randomIntn(n int) int {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rng.Intn(n)
}
