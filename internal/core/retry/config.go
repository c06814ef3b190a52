package retry

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// JitterMode selects how a backoff delay is randomized.
type JitterMode string

const (
	// JitterSpread draws the delay uniformly from [d/2, 3d/2].
	JitterSpread JitterMode = "spread"
	// JitterFull draws the delay uniformly from [0, d].
	JitterFull JitterMode = "full"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 100 * time.Millisecond
	DefaultMultiplier   = 1.5
	DefaultMaxDelay     = time.Second
)

var ErrInvalidConfig = errors.New("invalid retry config")

// Config describes a bounded exponential backoff.
type Config struct {
	// MaxAttempts counts the first attempt, so 3 means one try and two retries.
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
	JitterMode   JitterMode
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		Multiplier:   DefaultMultiplier,
		MaxDelay:     DefaultMaxDelay,
		Jitter:       true,
		JitterMode:   JitterSpread,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts %d < 1", ErrInvalidConfig, c.MaxAttempts)
	case !(c.Multiplier >= 1):
		return fmt.Errorf("%w: multiplier %v < 1", ErrInvalidConfig, c.Multiplier)
	case c.InitialDelay < 0:
		return fmt.Errorf("%w: negative initial delay", ErrInvalidConfig)
	case c.MaxDelay < c.InitialDelay:
		return fmt.Errorf("%w: max delay %s below initial delay %s", ErrInvalidConfig, c.MaxDelay, c.InitialDelay)
	}
	switch c.JitterMode {
	case "", JitterSpread, JitterFull:
	default:
		return fmt.Errorf("%w: unknown jitter mode %q", ErrInvalidConfig, c.JitterMode)
	}
	return nil
}

// Delay returns the un-jittered wait after the given failed attempt (1-based):
// min(MaxDelay, InitialDelay * Multiplier^(attempt-1)).
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if d >= float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(d)
}

// jittered spreads d using r, a sample from [0, 1).
func (c Config) jittered(d time.Duration, r float64) time.Duration {
	if !c.Jitter || d <= 0 {
		return d
	}
	if c.JitterMode == JitterFull {
		return time.Duration(float64(d) * r)
	}
	return time.Duration(float64(d) * (0.5 + r))
}
