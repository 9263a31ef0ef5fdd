package channel

import (
	"errors"
	"math"
	"time"
)

// Backoff is the reconnect schedule: InitialDelay * Multiplier^attempt, capped at MaxDelay.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultBackoff returns the schedule used when none is configured.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the wait before reconnect attempt n (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return b.InitialDelay
	}

	delay := float64(b.InitialDelay) * math.Pow(b.Multiplier, float64(attempt))
	if delay > float64(b.MaxDelay) || math.IsInf(delay, 0) {
		return b.MaxDelay
	}
	return time.Duration(delay)
}

func (b Backoff) Validate() error {
	if b.InitialDelay <= 0 {
		return errors.New("initial delay must be positive")
	}
	if b.MaxDelay < b.InitialDelay {
		return errors.New("max delay must be at least the initial delay")
	}
	if b.Multiplier < 1 {
		return errors.New("multiplier must be at least 1")
	}
	return nil
}
