package silence

import (
	"testing"
	"time"
)

func TestTickCountdown(t *testing.T) {
	start := time.Unix(0, 0)

	tests := []struct {
		name      string
		elapsed   time.Duration
		countdown int
		close     bool
	}{
		{"fresh", 0, 0, false},
		{"just under warn", 4999 * time.Millisecond, 0, false},
		{"at warn", 5 * time.Second, 5, false},
		{"mid warn", 7500 * time.Millisecond, 3, false},
		{"last second", 9100 * time.Millisecond, 1, false},
		{"at close", 10 * time.Second, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(Config{}, start)
			d := m.Tick(start.Add(tt.elapsed), true)
			if d.Countdown != tt.countdown || d.Close != tt.close {
				t.Errorf("Tick(+%v) = %+v, want countdown %d close %v", tt.elapsed, d, tt.countdown, tt.close)
			}
		})
	}
}

func TestCloseFiresOnce(t *testing.T) {
	start := time.Unix(0, 0)
	m := New(Config{}, start)

	closes := 0
	for i := 1; i <= 15; i++ {
		if m.Tick(start.Add(time.Duration(i)*time.Second), true).Close {
			closes++
		}
	}
	if closes != 1 {
		t.Errorf("close fired %d times, want 1", closes)
	}

	m.Reset(start.Add(20 * time.Second))
	if !m.Tick(start.Add(30*time.Second), true).Close {
		t.Error("close should re-arm after Reset")
	}
}

func TestInactiveResets(t *testing.T) {
	start := time.Unix(0, 0)
	m := New(Config{}, start)

	if d := m.Tick(start.Add(7*time.Second), true); d.Countdown == 0 {
		t.Fatal("expected countdown before pause")
	}

	// AI starts speaking: accounting pauses and restarts.
	paused := start.Add(8 * time.Second)
	if d := m.Tick(paused, false); d != (Decision{}) {
		t.Errorf("inactive tick = %+v, want zero", d)
	}
	if m.Countdown() != 0 {
		t.Error("countdown not cleared")
	}
	if !m.LastSpeechAt().Equal(paused) {
		t.Errorf("LastSpeechAt = %v, want %v", m.LastSpeechAt(), paused)
	}
	if d := m.Tick(paused.Add(3*time.Second), true); d.Countdown != 0 || d.Close {
		t.Errorf("tick after resume = %+v, want quiet", d)
	}
}

func TestObserve(t *testing.T) {
	start := time.Unix(0, 0)
	m := New(Config{}, start)

	if m.Observe(start.Add(time.Second), 0.01) {
		t.Error("quiet frame counted as speech")
	}
	if !m.LastSpeechAt().Equal(start) {
		t.Error("quiet frame moved LastSpeechAt")
	}
	at := start.Add(2 * time.Second)
	if !m.Observe(at, 0.2) {
		t.Error("loud frame not counted as speech")
	}
	if !m.LastSpeechAt().Equal(at) {
		t.Error("loud frame did not move LastSpeechAt")
	}
}
