package jobs

import "time"

// Backoff computes the redelivery delay after a failed attempt:
// Base * 2^(attempt-1), capped at Max when Max > 0.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Next decides where a failed job goes: back to queued after a delay, or dead
// once attempt has used up maxAttempts or the failure is permanent.
func (b Backoff) Next(attempt, maxAttempts int, permanent bool) (State, time.Duration) {
	if permanent || (maxAttempts > 0 && attempt >= maxAttempts) {
		return StateDead, 0
	}
	return StateQueued, b.Delay(attempt)
}
