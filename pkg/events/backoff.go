package events

import (
	"math/rand"
	"sync"
	"time"
)

var (
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Backoff computes reconnect delays: exponential growth capped at a
// ceiling, with jitter to avoid synchronized retries.
type Backoff struct {
	Initial    time.Duration
	Ceiling    time.Duration
	Multiplier float64
	Jitter     bool
}

// DefaultBackoff returns the reconnect schedule used when the caller
// configures none.
func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    100 * time.Millisecond,
		Ceiling:    10 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// Delay returns the wait before the given attempt, 1-based. A successful
// connection resets the attempt counter, and with it the schedule.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := b.Initial
	if initial <= 0 {
		initial = 100 * time.Millisecond
	}
	ceiling := b.Ceiling
	if ceiling <= 0 {
		ceiling = 10 * time.Second
	}
	multiplier := b.Multiplier
	if multiplier < 1 {
		multiplier = 2.0
	}

	delay := float64(initial)
	for i := 1; i < attempt; i++ {
		delay *= multiplier
		if delay >= float64(ceiling) {
			break
		}
	}
	if delay > float64(ceiling) {
		delay = float64(ceiling)
	}
	if b.Jitter {
		randMu.Lock()
		factor := 0.5 + randSource.Float64()*0.5
		randMu.Unlock()
		delay *= factor
	}
	return time.Duration(delay)
}
