package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"haven/models"
	"haven/utils"

	"github.com/sirupsen/logrus"
)

const effectTimeout = 10 * time.Second

// RunnerDeps are the collaborators a session runner executes effects against.
type RunnerDeps struct {
	Machine       SessionMachine
	Scheduler     Scheduler
	History       *HistoryService
	Dispatcher    AlertDispatcher
	Feedback      Feedback
	Publisher     EventPublisher
	Locator       LocationProvider
	TickInterval  time.Duration
	LocationDelay time.Duration
	SettleDelay   time.Duration
}

type envelope struct {
	event Event
	reply chan envelopeResult
}

type envelopeResult struct {
	snapshot models.SessionSnapshot
	err      error
}

// SessionRunner owns one session. Every event, whether a user command, a clock
// tick or a delayed callback, goes through a single goroutine, so transitions
// never interleave.
type SessionRunner struct {
	id      string
	scope   string
	deps    RunnerDeps
	session Session
	clock   *SessionClock
	timers  []func()

	inbox     chan envelope
	done      chan struct{}
	closeOnce sync.Once
	onExit    func(*SessionRunner)
}

func NewSessionRunner(deps RunnerDeps, session Session, onExit func(*SessionRunner)) *SessionRunner {
	if deps.Scheduler == nil {
		deps.Scheduler = NewSystemScheduler()
	}
	if deps.Feedback == nil {
		deps.Feedback = LogFeedback{}
	}
	if deps.Publisher == nil {
		deps.Publisher = noopPublisher{}
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = directDispatcher{transport: LogTransport{}}
	}
	if session.Phase == nil {
		session.Phase = IdlePhase{}
	}

	return &SessionRunner{
		id:      session.ID,
		scope:   session.Scope,
		deps:    deps,
		session: session,
		clock:   NewSessionClock(deps.Scheduler, deps.TickInterval),
		inbox:   make(chan envelope),
		done:    make(chan struct{}),
		onExit:  onExit,
	}
}

func (r *SessionRunner) Start() {
	go r.loop()
}

func (r *SessionRunner) ID() string {
	return r.id
}

func (r *SessionRunner) Scope() string {
	return r.scope
}

func (r *SessionRunner) Done() <-chan struct{} {
	return r.done
}

// Send applies ev and returns the resulting snapshot.
func (r *SessionRunner) Send(ctx context.Context, ev Event) (models.SessionSnapshot, error) {
	reply := make(chan envelopeResult, 1)

	select {
	case r.inbox <- envelope{event: ev, reply: reply}:
	case <-r.done:
		return models.SessionSnapshot{}, ErrSessionEnded
	case <-ctx.Done():
		return models.SessionSnapshot{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.snapshot, res.err
	case <-ctx.Done():
		return models.SessionSnapshot{}, ctx.Err()
	}
}

// Close stops the runner without recording anything.
func (r *SessionRunner) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

func (r *SessionRunner) loop() {
	defer r.release()

	for {
		select {
		case env := <-r.inbox:
			if exited := r.handle(env); exited {
				return
			}
		case <-r.done:
			return
		}
	}
}

func (r *SessionRunner) handle(env envelope) bool {
	prev := r.session
	next, effects, err := r.deps.Machine.Step(prev, env.event, r.deps.Scheduler.Now())
	if err != nil {
		env.reply <- envelopeResult{snapshot: prev.Snapshot(), err: err}
		return false
	}

	r.session = next
	for _, effect := range effects {
		r.apply(effect)
	}
	r.publish(prev, next, env.event)

	// Deregister before replying so the device can start a new session as soon
	// as the exit call returns.
	exited := next.State() == models.SessionStateExited
	if exited {
		r.Close()
		if r.onExit != nil {
			r.onExit(r)
		}
	}

	env.reply <- envelopeResult{snapshot: next.Snapshot()}
	return exited
}

func (r *SessionRunner) apply(effect Effect) {
	scope := r.session.Scope

	switch e := effect.(type) {
	case StartClockEffect:
		r.clock.Start(e.Gen, func(gen int) {
			r.post(TickEvent{Gen: gen})
		})

	case StopClockEffect:
		r.clock.Stop()

	case PlayCueEffect:
		playSafely(scope, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
			defer cancel()
			return r.deps.Feedback.PlayCue(ctx, scope, e.Cue)
		})

	case VibrateEffect:
		playSafely(scope, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
			defer cancel()
			return r.deps.Feedback.Vibrate(ctx, scope, e.Pattern)
		})

	case RecordHistoryEffect:
		if r.deps.History == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
		defer cancel()
		if _, err := r.deps.History.Record(ctx, scope, e); err != nil {
			logrus.WithFields(logrus.Fields{
				"scope":   scope,
				"session": r.session.ID,
			}).Errorf("Failed to record session history: %v", err)
		}

	case AcquireLocationEffect:
		r.after(r.deps.LocationDelay, func() {
			r.post(LocationAcquiredEvent{Location: r.locate()})
		})

	case DeliverAlertEffect:
		ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
		defer cancel()
		err := r.deps.Dispatcher.Dispatch(ctx, DispatchRequest{
			Scope:     scope,
			SessionID: r.session.ID,
			Alert:     e.Alert,
		})
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"scope":   scope,
				"session": r.session.ID,
			}).Errorf("Failed to dispatch alert: %v", err)
		}

	case ScheduleSettleEffect:
		r.after(r.deps.SettleDelay, func() {
			r.post(DispatchSettledEvent{})
		})

	case SessionExitedEffect:
		logrus.WithFields(logrus.Fields{
			"scope":   scope,
			"session": r.session.ID,
			"outcome": e.Outcome,
		}).Info("Session exited")
	}
}

func (r *SessionRunner) locate() *models.Location {
	if r.deps.Locator == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
	defer cancel()

	loc, err := r.deps.Locator.CurrentLocation(ctx)
	if err != nil {
		logrus.WithField("scope", r.scope).Warnf("Location unavailable, sending without it: %v", err)
		return nil
	}
	return &loc
}

func (r *SessionRunner) after(delay time.Duration, fn func()) {
	r.timers = append(r.timers, r.deps.Scheduler.After(delay, fn))
}

// post is how timer callbacks feed the loop. It waits until the event is
// handled so callers observe transitions in order.
func (r *SessionRunner) post(ev Event) {
	if _, err := r.Send(context.Background(), ev); err != nil && !errors.Is(err, ErrSessionEnded) {
		logrus.WithField("scope", r.scope).Debugf("Dropped %s: %v", ev.eventName(), err)
	}
}

func (r *SessionRunner) publish(prev, next Session, ev Event) {
	if _, ok := ev.(SnapshotEvent); ok {
		return
	}

	scope := next.Scope
	now := time.Now()

	if tick, ok := ev.(TickEvent); ok && prev.State() == next.State() {
		if tick.Gen != prev.ClockGen {
			return
		}
		snap := next.Snapshot()
		clock := snap.TimeLeft
		if snap.State == models.SessionStateCheckIn {
			clock = snap.GraceTimeLeft
		}
		r.deps.Publisher.Publish(scope, models.WSMessage{
			Type: models.WSTypeSessionTick,
			Data: models.WSSessionTick{
				State:         snap.State,
				TimeLeft:      snap.TimeLeft,
				GraceTimeLeft: snap.GraceTimeLeft,
				Clock:         utils.FormatClock(clock),
			},
			Scope:     scope,
			SessionID: next.ID,
			Timestamp: now,
		})
		return
	}

	if prev.State() != next.State() {
		logrus.WithFields(logrus.Fields{
			"scope":   scope,
			"session": next.ID,
			"from":    prev.State(),
			"to":      next.State(),
		}).Info("Session state changed")
	}

	r.deps.Publisher.Publish(scope, models.WSMessage{
		Type:      models.WSTypeSessionState,
		Data:      next.Snapshot(),
		Scope:     scope,
		SessionID: next.ID,
		Timestamp: now,
	})

	if p, ok := next.Phase.(EmergencyPhase); ok && prev.State() != models.SessionStateEmergency {
		r.deps.Publisher.Publish(scope, models.WSMessage{
			Type:      models.WSTypeAlertSent,
			Data:      p.Alert,
			Scope:     scope,
			SessionID: next.ID,
			Timestamp: now,
		})
	}
}

func (r *SessionRunner) release() {
	r.clock.Stop()
	for _, stop := range r.timers {
		stop()
	}
	r.timers = nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, models.WSMessage) {}

// directDispatcher delivers inline; used when no worker pool is wired.
type directDispatcher struct {
	transport Transport
}

func (dd directDispatcher) Dispatch(ctx context.Context, req DispatchRequest) error {
	return dd.transport.Deliver(ctx, req)
}
