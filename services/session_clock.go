package services

import (
	"sync"
	"time"
)

// Scheduler is the timing primitive sessions run on.
type Scheduler interface {
	Now() time.Time
	// Every calls fn once per interval until stop is called.
	Every(interval time.Duration, fn func()) (stop func())
	// After calls fn once after delay unless stop is called first.
	After(delay time.Duration, fn func()) (stop func())
}

type SystemScheduler struct{}

func NewSystemScheduler() SystemScheduler {
	return SystemScheduler{}
}

func (SystemScheduler) Now() time.Time {
	return time.Now()
}

func (SystemScheduler) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	var once sync.Once

	go func() {
		for {
			select {
			case <-ticker.C:
				fn()
			case <-done:
				return
			}
		}
	}()

	// Stop never waits for the goroutine: fn may be blocked handing a tick to
	// the caller that is stopping us.
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}

func (SystemScheduler) After(delay time.Duration, fn func()) func() {
	t := time.AfterFunc(delay, fn)
	return func() { t.Stop() }
}

// SessionClock owns the single active countdown subscription of a session.
type SessionClock struct {
	scheduler Scheduler
	interval  time.Duration
	stop      func()
	gen       int
}

func NewSessionClock(scheduler Scheduler, interval time.Duration) *SessionClock {
	if interval <= 0 {
		interval = time.Second
	}
	return &SessionClock{scheduler: scheduler, interval: interval}
}

// Start replaces any running subscription with one that reports ticks tagged gen.
func (sc *SessionClock) Start(gen int, onTick func(gen int)) {
	sc.Stop()
	sc.gen = gen
	sc.stop = sc.scheduler.Every(sc.interval, func() { onTick(gen) })
}

func (sc *SessionClock) Stop() {
	if sc.stop != nil {
		sc.stop()
		sc.stop = nil
	}
}
