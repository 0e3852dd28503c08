package httpx

import (
	"math/rand"
	"time"
)

// Backoff is a capped exponential delay schedule with additive jitter.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{Base: 120 * time.Millisecond, Max: 2 * time.Second, Jitter: 75 * time.Millisecond}
}

// Delay returns the wait before the given attempt; attempt 1 is the first retry.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	base := b.Base
	if base <= 0 {
		base = DefaultBackoff().Base
	}
	shift := attempt - 1
	if shift > 30 {
		shift = 30
	}
	d := base * time.Duration(1<<uint(shift))
	if b.Max > 0 && (d > b.Max || d <= 0) {
		d = b.Max
	}
	if b.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(b.Jitter)))
	}
	return d
}
