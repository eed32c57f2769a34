package clocktest

import (
	"testing"
	"time"
)

var start = time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)

func TestAdvanceFiresInDueOrder(t *testing.T) {
	s := NewScheduler(start)
	var fired []string
	var at []time.Time

	s.After(3*time.Second, func() { fired = append(fired, "after"); at = append(at, s.Now()) })
	stop := s.Every(time.Second, func() { fired = append(fired, "tick"); at = append(at, s.Now()) })

	s.Advance(3 * time.Second)

	// Timers due at the same instant fire in the order they were scheduled.
	want := []string{"tick", "tick", "after", "tick"}
	if len(fired) != len(want) {
		t.Fatalf("fired = %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Fatalf("fired = %v, want %v", fired, want)
		}
	}
	if !at[2].Equal(start.Add(3 * time.Second)) {
		t.Errorf("after fired at %v", at[2])
	}
	if n := s.ActiveTimers(); n != 1 {
		t.Errorf("active timers = %d, want the ticker only", n)
	}

	stop()
	s.Advance(5 * time.Second)
	if len(fired) != 4 || s.ActiveTimers() != 0 {
		t.Errorf("stopped ticker fired: %v", fired)
	}
	if !s.Now().Equal(start.Add(8 * time.Second)) {
		t.Errorf("now = %v", s.Now())
	}
}

func TestCallbackCanScheduleAndStop(t *testing.T) {
	s := NewScheduler(start)
	count := 0
	var stop func()
	stop = s.Every(time.Second, func() {
		count++
		if count == 2 {
			stop()
			s.After(time.Second, func() { count += 10 })
		}
	})

	s.Advance(10 * time.Second)
	if count != 12 {
		t.Errorf("count = %d, want 12", count)
	}
}
