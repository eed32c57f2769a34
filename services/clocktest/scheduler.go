// Package clocktest provides a scheduler whose time only moves when a test says so.
package clocktest

import (
	"sort"
	"sync"
	"time"
)

// Scheduler satisfies services.Scheduler; its time only moves when Advance is called.
// Callbacks run on the goroutine calling Advance, in due-time order.
type Scheduler struct {
	now    time.Time
	timers []*manualTimer
	nextID int
	mutex  sync.Mutex
}

type manualTimer struct {
	id       int
	at       time.Time
	interval time.Duration
	fn       func()
	stopped  bool
}

func NewScheduler(start time.Time) *Scheduler {
	return &Scheduler{now: start}
}

func (m *Scheduler) Now() time.Time {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.now
}

func (m *Scheduler) Every(interval time.Duration, fn func()) func() {
	return m.add(interval, interval, fn)
}

func (m *Scheduler) After(delay time.Duration, fn func()) func() {
	return m.add(delay, 0, fn)
}

func (m *Scheduler) add(delay, interval time.Duration, fn func()) func() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.nextID++
	t := &manualTimer{id: m.nextID, at: m.now.Add(delay), interval: interval, fn: fn}
	m.timers = append(m.timers, t)
	return func() {
		m.mutex.Lock()
		defer m.mutex.Unlock()
		t.stopped = true
	}
}

// Advance moves time forward by d, firing every timer that comes due.
func (m *Scheduler) Advance(d time.Duration) {
	m.mutex.Lock()
	target := m.now.Add(d)
	m.mutex.Unlock()

	for {
		m.mutex.Lock()
		next := m.nextDue(target)
		if next == nil {
			m.now = target
			m.mutex.Unlock()
			return
		}
		m.now = next.at
		if next.interval > 0 {
			next.at = next.at.Add(next.interval)
		} else {
			next.stopped = true
		}
		fn := next.fn
		m.mutex.Unlock()

		fn()
	}
}

// ActiveTimers reports how many timers are still scheduled.
func (m *Scheduler) ActiveTimers() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (m *Scheduler) nextDue(target time.Time) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	m.timers = live

	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at.Equal(m.timers[j].at) {
			return m.timers[i].id < m.timers[j].id
		}
		return m.timers[i].at.Before(m.timers[j].at)
	})

	if len(m.timers) == 0 || m.timers[0].at.After(target) {
		return nil
	}
	return m.timers[0]
}
