package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayGrowsAndCaps(t *testing.T) {
	cfg := Config{
		MaxAttempts:  10,
		InitialDelay: 100 * time.Millisecond,
		Multiplier:   2,
		MaxDelay:     time.Second,
	}
	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, cfg.Delay(i+1), "attempt %d", i+1)
	}
	assert.Equal(t, cfg.Delay(1), cfg.Delay(0))
}

func TestDelayDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 100*time.Millisecond, cfg.Delay(1))
	assert.Equal(t, 150*time.Millisecond, cfg.Delay(2))
	assert.Equal(t, 225*time.Millisecond, cfg.Delay(3))
}

func TestJitterBounds(t *testing.T) {
	d := 100 * time.Millisecond

	spread := Config{Jitter: true, JitterMode: JitterSpread}
	assert.Equal(t, 50*time.Millisecond, spread.jittered(d, 0))
	assert.Equal(t, 100*time.Millisecond, spread.jittered(d, 0.5))
	assert.InDelta(t, float64(150*time.Millisecond), float64(spread.jittered(d, 0.999999)), float64(time.Microsecond))

	full := Config{Jitter: true, JitterMode: JitterFull}
	assert.Equal(t, time.Duration(0), full.jittered(d, 0))
	assert.Equal(t, 50*time.Millisecond, full.jittered(d, 0.5))

	off := Config{Jitter: false, JitterMode: JitterFull}
	assert.Equal(t, d, off.jittered(d, 0.1))

	// An empty mode falls back to spread.
	unset := Config{Jitter: true}
	assert.Equal(t, 50*time.Millisecond, unset.jittered(d, 0))
}
