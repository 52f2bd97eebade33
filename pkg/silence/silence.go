// Package silence decides when a live session has been quiet long enough
// to close on its own.
//
// The monitor is passive: the owner calls Tick once per second with the
// current time and whether the user is expected to be talking, and acts on
// the returned Decision.
package silence

import (
	"math"
	"sync"
	"time"
)

// Defaults for the auto-close policy.
const (
	DefaultWarnAfter  = 5 * time.Second
	DefaultCloseAfter = 10 * time.Second
	DefaultInterval   = time.Second

	// DefaultThreshold is the RMS amplitude above which a capture frame
	// counts as speech.
	DefaultThreshold = 0.05
)

// Decision is the outcome of one tick.
type Decision struct {
	// Countdown is the number of whole seconds left before auto-close, or
	// zero when no warning should be shown.
	Countdown int

	// Close is true exactly once per silence period, on the tick that
	// crosses CloseAfter.
	Close bool
}

// Config holds monitor thresholds. Zero fields take the defaults.
type Config struct {
	WarnAfter  time.Duration
	CloseAfter time.Duration
	Threshold  float64
}

// Monitor tracks the last moment the conversation showed signs of life.
type Monitor struct {
	cfg Config

	mu         sync.Mutex
	lastSpeech time.Time
	countdown  int
	fired      bool
}

// New creates a Monitor whose silence period starts at now.
func New(cfg Config, now time.Time) *Monitor {
	if cfg.WarnAfter <= 0 {
		cfg.WarnAfter = DefaultWarnAfter
	}
	if cfg.CloseAfter <= 0 {
		cfg.CloseAfter = DefaultCloseAfter
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Monitor{cfg: cfg, lastSpeech: now}
}

// Touch records activity at now: speech energy, a finished user turn, the
// AI starting or stopping, a tool call, or a mic toggle.
func (m *Monitor) Touch(now time.Time) {
	m.mu.Lock()
	m.lastSpeech = now
	m.countdown = 0
	m.mu.Unlock()
}

// Observe touches the monitor if rms is above the speech threshold and
// reports whether it was.
func (m *Monitor) Observe(now time.Time, rms float64) bool {
	if rms <= m.cfg.Threshold {
		return false
	}
	m.Touch(now)
	return true
}

// Tick evaluates the policy. active must be true only while the session is
// connected, the mic is on and the AI is not speaking; otherwise the
// silence period restarts at now.
func (m *Monitor) Tick(now time.Time, active bool) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !active {
		m.lastSpeech = now
		m.countdown = 0
		return Decision{}
	}

	elapsed := now.Sub(m.lastSpeech)
	switch {
	case elapsed >= m.cfg.CloseAfter:
		m.countdown = 0
		if m.fired {
			return Decision{}
		}
		m.fired = true
		return Decision{Close: true}
	case elapsed >= m.cfg.WarnAfter:
		m.countdown = int(math.Ceil((m.cfg.CloseAfter - elapsed).Seconds()))
	default:
		m.countdown = 0
	}
	return Decision{Countdown: m.countdown}
}

// Countdown returns the value from the most recent tick.
func (m *Monitor) Countdown() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countdown
}

// LastSpeechAt returns the start of the current silence period.
func (m *Monitor) LastSpeechAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastSpeech
}

// Reset starts a fresh silence period and re-arms the close trigger.
func (m *Monitor) Reset(now time.Time) {
	m.mu.Lock()
	m.lastSpeech = now
	m.countdown = 0
	m.fired = false
	m.mu.Unlock()
}
