package worker

import (
	"math/rand"
	"time"
)

// randomStubDelay returns a uniformly random duration in [1000ms, 2000ms),
// the simulated work window for StubExecutor.
func randomStubDelay() time.Duration {
	return time.Duration(1000+rand.Intn(1000)) * time.Millisecond
}
