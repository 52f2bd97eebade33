package session

import (
	"sync"
	"time"

	"github.com/teslashibe/go-jarvis/pkg/clock"
)

// Reconnector bounds automatic reconnects: a fixed delay between attempts
// and a hard ceiling, reset whenever a connection opens.
type Reconnector struct {
	max   int
	delay time.Duration
	clock clock.Clock

	mu       sync.Mutex
	attempts int
	timer    clock.Timer
	stopped  bool
}

// NewReconnector creates a Reconnector.
func NewReconnector(max int, delay time.Duration, clk clock.Clock) *Reconnector {
	return &Reconnector{max: max, delay: delay, clock: clk}
}

// Schedule arranges for fn to run after the delay if attempts remain. It
// returns the attempt number and false once the ceiling is reached or the
// Reconnector was stopped.
func (r *Reconnector) Schedule(fn func()) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped || r.attempts >= r.max {
		return r.attempts, false
	}
	r.attempts++
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = r.clock.AfterFunc(r.delay, fn)
	return r.attempts, true
}

// Reset clears the attempt counter after a successful open.
func (r *Reconnector) Reset() {
	r.mu.Lock()
	r.attempts = 0
	r.mu.Unlock()
}

// Attempts returns the number of reconnects since the last Reset.
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// Stop cancels a pending reconnect and refuses further ones.
func (r *Reconnector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
