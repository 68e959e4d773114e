package util

import "time"

// WaitFixed waits with fixed number of iterations and interval.
// Returns true if condition was met, false after all iterations.
func WaitFixed(iterations int, interval time.Duration, condition func() bool) bool {
	for i := 0; i < iterations; i++ {
		if condition() {
			return true
		}
		if i < iterations-1 {
			time.Sleep(interval)
		}
	}
	return false
}
