package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for response padding on failed verifications
type TimingConfig struct {
	MinDuration    time.Duration // floor for the total response time
	Jitter         time.Duration // random extra in [0, Jitter)
	DelayOnSuccess bool
}

// TimingDelay pads failed password and code checks to a uniform duration so that
// "no such profile", "wrong password" and "wrong code" are indistinguishable by latency.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{config: config}
}

// cryptoJitter returns a secure random duration in [0, max)
func cryptoJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

func (td *TimingDelay) target(success bool) time.Duration {
	if td == nil || (success && !td.config.DelayOnSuccess) {
		return 0
	}
	return td.config.MinDuration + cryptoJitter(td.config.Jitter)
}

// Wait sleeps for the full padding on failure (or always, with DelayOnSuccess)
func (td *TimingDelay) Wait(success bool) {
	if d := td.target(success); d > 0 {
		time.Sleep(d)
	}
}

// WaitFrom sleeps until at least the padding has elapsed since start.
// It returns early if ctx is cancelled.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time, success bool) {
	remaining := td.target(success) - time.Since(start)
	if remaining <= 0 {
		return
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
