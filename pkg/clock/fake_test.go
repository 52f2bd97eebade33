package clock

import (
	"testing"
	"time"
)

func TestFakeAdvanceFiresInOrder(t *testing.T) {
	c := NewFake(time.Unix(0, 0))

	var order []string
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(time.Second, func() { order = append(order, "a") })
	c.AfterFunc(5*time.Second, func() { order = append(order, "c") })

	c.Advance(3 * time.Second)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v, want [a b]", order)
	}
	if got := c.Now(); !got.Equal(time.Unix(3, 0)) {
		t.Errorf("now = %v, want 3s", got)
	}
	if c.Pending() != 1 {
		t.Errorf("pending = %d, want 1", c.Pending())
	}
}

func TestFakeStop(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	if !tm.Stop() {
		t.Fatal("Stop should report true for a pending timer")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if tm.Stop() {
		t.Error("second Stop should report false")
	}
}

func TestFakeNestedTimers(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	var at []time.Time
	c.AfterFunc(time.Second, func() {
		at = append(at, c.Now())
		c.AfterFunc(500*time.Millisecond, func() { at = append(at, c.Now()) })
	})

	c.Advance(2 * time.Second)

	if len(at) != 2 {
		t.Fatalf("fired %d timers, want 2", len(at))
	}
	if !at[1].Equal(time.Unix(0, 0).Add(1500 * time.Millisecond)) {
		t.Errorf("nested timer fired at %v, want 1.5s", at[1])
	}
}
