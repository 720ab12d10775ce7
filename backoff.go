package mqtt311

import (
	"math/rand/v2"
	"time"
)

// ReconnectStrategy computes the wait before the next reconnect attempt.
// NextDelay is called once per lost connection or failed dial.
type ReconnectStrategy interface {
	NextDelay() time.Duration
}

// Reconnect backoff bounds used when the configured values are not positive.
const (
	DefaultReconnectMinDelay = 10 * time.Second
	DefaultReconnectMaxDelay = 60 * time.Second
)

// ExponentialBackoff doubles the added wait after each rapid failure and
// falls back to the minimum once the connection stayed up for max+min.
//
// ExponentialBackoff is not safe for concurrent use.
type ExponentialBackoff struct {
	min   time.Duration
	max   time.Duration
	retry int
	last  time.Time

	now    func() time.Time
	jitter func() time.Duration
}

// NewExponentialBackoff creates a backoff bounded by min and max.
func NewExponentialBackoff(minDelay, maxDelay time.Duration) *ExponentialBackoff {
	if maxDelay <= 0 {
		maxDelay = DefaultReconnectMaxDelay
	}
	if minDelay <= 0 {
		minDelay = DefaultReconnectMinDelay
	}
	if minDelay > maxDelay {
		maxDelay = minDelay
	}

	return &ExponentialBackoff{
		min: minDelay,
		max: maxDelay,
		now: time.Now,
		jitter: func() time.Duration {
			return time.Duration(rand.IntN(2)) * time.Second
		},
	}
}

// Min returns the lower bound.
func (b *ExponentialBackoff) Min() time.Duration { return b.min }

// Max returns the upper bound.
func (b *ExponentialBackoff) Max() time.Duration { return b.max }

// NextDelay returns the wait before the next attempt and records the call time.
func (b *ExponentialBackoff) NextDelay() time.Duration {
	now := b.now()
	sinceLast := now.Sub(b.last)
	first := b.last.IsZero()
	b.last = now

	if first || sinceLast > b.max+b.min {
		b.retry = 0
		return b.min
	}

	shift := b.retry
	if shift > 30 {
		shift = 30
	}
	b.retry++

	delay := b.min + time.Duration(uint64(1)<<shift)*time.Second
	if delay > b.max {
		delay = b.max
	}
	return delay + b.jitter()
}

// Reset clears the retry counter.
func (b *ExponentialBackoff) Reset() {
	b.retry = 0
	b.last = time.Time{}
}

// ConstantDelay waits the same time before every attempt.
type ConstantDelay time.Duration

// NextDelay returns d.
func (d ConstantDelay) NextDelay() time.Duration { return time.Duration(d) }
