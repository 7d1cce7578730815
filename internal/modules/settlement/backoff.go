package settlement

import "time"

// Backoff returns the delay before retry number attempt (1-based):
// base * 2^(attempt-1), capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		return base
	}
	// 2^30 * 1ns already exceeds any sane cap.
	if attempt > 31 {
		return max
	}

	delay := base * time.Duration(1<<(attempt-1))
	if delay <= 0 || (max > 0 && delay > max) {
		return max
	}
	return delay
}
