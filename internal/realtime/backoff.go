package realtime

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
	DefaultFactor      = 2.0
	DefaultMaxAttempts = 8
)

// Backoff computes reconnect delays: the ceiling grows by Factor per
// attempt from Base up to Max, and the delay is drawn from [0, ceiling).
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	// Jitter picks the delay for a ceiling. Nil means full jitter.
	Jitter func(ceiling time.Duration) time.Duration
}

func DefaultBackoff() Backoff {
	return Backoff{
		Base:   DefaultBaseDelay,
		Max:    DefaultMaxDelay,
		Factor: DefaultFactor,
	}
}

// Ceiling is the largest delay allowed for a zero-based attempt.
func (b Backoff) Ceiling(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	ceiling := float64(b.Base) * math.Pow(b.Factor, float64(attempt))
	if ceiling > float64(b.Max) || math.IsInf(ceiling, 1) {
		return b.Max
	}
	return time.Duration(ceiling)
}

func (b Backoff) Delay(attempt int) time.Duration {
	ceiling := b.Ceiling(attempt)
	if b.Jitter != nil {
		return b.Jitter(ceiling)
	}
	if ceiling <= 0 {
		return 0
	}
	return rand.N(ceiling)
}
