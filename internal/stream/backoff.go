package stream

import (
	"math/rand"
	"time"
)

const MinReconnectDelay = 100 * time.Millisecond

// Backoff computes reconnect delays. With Multiplier 1 and no Jitter the
// delay is fixed. Jitter is a fraction of the delay added or removed at
// random.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

func NewBackoff(initial, max time.Duration, multiplier, jitter float64) *Backoff {
	if initial < MinReconnectDelay {
		initial = MinReconnectDelay
	}
	if max < initial {
		max = initial
	}
	if multiplier < 1 {
		multiplier = 1
	}
	if jitter < 0 {
		jitter = 0
	}
	if jitter >= 1 {
		jitter = 0.99
	}
	return &Backoff{
		InitialDelay: initial,
		MaxDelay:     max,
		Multiplier:   multiplier,
		Jitter:       jitter,
	}
}

func (b *Backoff) NextDelay(attempt int) time.Duration {
	delay := float64(b.InitialDelay)
	for i := 0; i < attempt && b.Multiplier > 1; i++ {
		delay *= b.Multiplier
		if delay > float64(b.MaxDelay) {
			delay = float64(b.MaxDelay)
			break
		}
	}

	if b.Jitter > 0 {
		delay += delay * b.Jitter * (2*rand.Float64() - 1)
	}

	if delay > float64(b.MaxDelay) {
		delay = float64(b.MaxDelay)
	}
	if delay < float64(MinReconnectDelay) {
		delay = float64(MinReconnectDelay)
	}

	return time.Duration(delay)
}
