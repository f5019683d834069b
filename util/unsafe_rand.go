package util

import (
	unsafeRandom "math/rand"
	"sync"
	"time"
)

var (
	randomSource = unsafeRandom.New(unsafeRandom.NewSource(time.Now().UnixNano()))
	randomMutex  sync.Mutex
)

func UnsafeIntn(n int) int {
	randomMutex.Lock()
	defer randomMutex.Unlock()

	return randomSource.Intn(n)
}

func UnsafeRand(min int, max int) int {
	return UnsafeIntn(max-min+1) + min
}
