package services

import (
	"net/http"
	"time"

	"haven/models"
	"haven/utils"
)

var (
	ErrInvalidTransition = utils.ServiceError{
		Code:       "INVALID_TRANSITION",
		Message:    "Operation not allowed in the current session state",
		StatusCode: http.StatusConflict,
	}
	ErrSessionLocked = utils.ServiceError{
		Code:       "SESSION_LOCKED",
		Message:    "Session details can no longer be changed",
		StatusCode: http.StatusConflict,
	}
	ErrDispatchInProgress = utils.ServiceError{
		Code:       "DISPATCH_IN_PROGRESS",
		Message:    "An alert is being sent",
		StatusCode: http.StatusConflict,
	}
	ErrSessionEnded = utils.ServiceError{
		Code:       "SESSION_ENDED",
		Message:    "Session has ended",
		StatusCode: http.StatusConflict,
	}
	ErrInvalidDuration = utils.ServiceError{
		Code:       utils.ErrCodeValidation,
		Message:    "Duration must be at least one second",
		StatusCode: http.StatusBadRequest,
	}
	ErrInvalidInstruction = utils.ServiceError{
		Code:       utils.ErrCodeValidation,
		Message:    "Unknown contact instruction",
		StatusCode: http.StatusBadRequest,
	}
	ErrRecipientNotFound = utils.ServiceError{
		Code:       utils.ErrCodeNotFound,
		Message:    "Recipient not found in this session",
		StatusCode: http.StatusNotFound,
	}
)

// Phase is one of the session lifecycle states, carrying only the data that
// state needs.
type Phase interface {
	State() models.SessionState
}

type IdlePhase struct{}

type RunningPhase struct {
	TimeLeft int
}

type CheckInPhase struct {
	GraceTimeLeft int
}

// DispatchingPhase covers the window between trigger and confirmation.
type DispatchingPhase struct {
	Trigger          models.TriggerReason
	AwaitingLocation bool
	Alert            *models.AlertPayload
}

type EmergencyPhase struct {
	Alert models.AlertPayload
}

type ExitedPhase struct {
	Outcome models.SessionStatus
}

func (IdlePhase) State() models.SessionState        { return models.SessionStateIdle }
func (RunningPhase) State() models.SessionState     { return models.SessionStateRunning }
func (CheckInPhase) State() models.SessionState     { return models.SessionStateCheckIn }
func (DispatchingPhase) State() models.SessionState { return models.SessionStateDispatching }
func (EmergencyPhase) State() models.SessionState   { return models.SessionStateEmergency }
func (ExitedPhase) State() models.SessionState      { return models.SessionStateExited }

// Session is the full state of one monitoring cycle. Values are replaced, not
// mutated, by Step.
type Session struct {
	ID              string
	Scope           string
	DurationSeconds int
	CustomMessage   string
	Substance       string
	Instruction     models.ContactInstruction
	Action          models.EscalationAction
	Recipients      []models.EmergencyContact
	StartedAt       time.Time
	Phase           Phase
	// ClockGen identifies the current countdown subscription. Ticks from an older
	// generation are ignored.
	ClockGen int
}

// IncludeLocation is derived from the instruction so the two cannot disagree.
func (s Session) IncludeLocation() bool {
	return s.Instruction == models.InstructionSendHelpImmediately
}

func (s Session) State() models.SessionState {
	if s.Phase == nil {
		return models.SessionStateIdle
	}
	return s.Phase.State()
}

func (s Session) IsProcessing() bool {
	_, ok := s.Phase.(DispatchingPhase)
	return ok
}

// Snapshot renders the session for clients.
func (s Session) Snapshot() models.SessionSnapshot {
	snap := models.SessionSnapshot{
		ID:                 s.ID,
		Scope:              s.Scope,
		State:              s.State(),
		DurationSeconds:    s.DurationSeconds,
		TimeLeft:           s.DurationSeconds,
		IsProcessing:       s.IsProcessing(),
		CustomMessage:      s.CustomMessage,
		Substance:          s.Substance,
		ContactInstruction: s.Instruction,
		IncludeLocation:    s.IncludeLocation(),
		Action:             s.Action,
		Recipients:         append([]models.EmergencyContact{}, s.Recipients...),
	}
	if !s.StartedAt.IsZero() {
		started := s.StartedAt
		snap.StartedAt = &started
	}

	switch p := s.Phase.(type) {
	case RunningPhase:
		snap.TimeLeft = p.TimeLeft
	case CheckInPhase:
		snap.TimeLeft = 0
		snap.GraceTimeLeft = p.GraceTimeLeft
	case DispatchingPhase:
		snap.TimeLeft = 0
		if p.Alert != nil {
			alert := *p.Alert
			snap.Alert = &alert
		}
	case EmergencyPhase:
		snap.TimeLeft = 0
		alert := p.Alert
		snap.Alert = &alert
	case ExitedPhase:
		snap.TimeLeft = 0
	}
	return snap
}

// Events

type Event interface {
	eventName() string
}

type StartEvent struct {
	// DurationSeconds overrides the seeded duration when positive.
	DurationSeconds int
}

type TickEvent struct {
	Gen int
}

type ConfirmOKEvent struct{}
type ExtendEvent struct{}

type TriggerEvent struct {
	Reason models.TriggerReason
}

type LocationAcquiredEvent struct {
	Location *models.Location
}

type DispatchSettledEvent struct{}
type SafeExitEvent struct{}
type AcknowledgeEvent struct{}

type SetInstructionEvent struct {
	Instruction models.ContactInstruction
}

type SetSubstanceEvent struct {
	Substance string
}

type SetMessageEvent struct {
	Message string
}

type RemoveRecipientEvent struct {
	ContactID string
}

// SnapshotEvent changes nothing; it lets readers go through the same queue.
type SnapshotEvent struct{}

func (StartEvent) eventName() string            { return "start" }
func (TickEvent) eventName() string             { return "tick" }
func (ConfirmOKEvent) eventName() string        { return "confirm_ok" }
func (ExtendEvent) eventName() string           { return "extend" }
func (TriggerEvent) eventName() string          { return "trigger" }
func (LocationAcquiredEvent) eventName() string { return "location_acquired" }
func (DispatchSettledEvent) eventName() string  { return "dispatch_settled" }
func (SafeExitEvent) eventName() string         { return "safe_exit" }
func (AcknowledgeEvent) eventName() string      { return "acknowledge" }
func (SetInstructionEvent) eventName() string   { return "set_instruction" }
func (SetSubstanceEvent) eventName() string     { return "set_substance" }
func (SetMessageEvent) eventName() string       { return "set_message" }
func (RemoveRecipientEvent) eventName() string  { return "remove_recipient" }
func (SnapshotEvent) eventName() string         { return "snapshot" }

// Effects

type Cue string

const (
	CueGentle Cue = "gentle"
	CueAlert  Cue = "alert"
)

var (
	HapticGraceTick = []time.Duration{200 * time.Millisecond}
	HapticCheckIn   = []time.Duration{
		500 * time.Millisecond, 200 * time.Millisecond,
		500 * time.Millisecond, 200 * time.Millisecond,
		500 * time.Millisecond,
	}
	HapticEmergency = []time.Duration{
		400 * time.Millisecond, 100 * time.Millisecond,
		400 * time.Millisecond, 100 * time.Millisecond,
		1000 * time.Millisecond,
	}
)

type Effect interface {
	effectName() string
}

type StartClockEffect struct {
	Gen int
}

type StopClockEffect struct{}

type PlayCueEffect struct {
	Cue Cue
}

type VibrateEffect struct {
	Pattern []time.Duration
}

type RecordHistoryEffect struct {
	Status    models.SessionStatus
	Trigger   models.TriggerReason
	StartedAt time.Time
	EndedAt   time.Time
	Substance string
}

// AcquireLocationEffect asks the runner to fetch a location and report back.
type AcquireLocationEffect struct{}

type DeliverAlertEffect struct {
	Alert models.AlertPayload
}

// ScheduleSettleEffect asks the runner to report DispatchSettledEvent after the
// confirmation delay.
type ScheduleSettleEffect struct{}

type SessionExitedEffect struct {
	Outcome models.SessionStatus
}

func (StartClockEffect) effectName() string      { return "start_clock" }
func (StopClockEffect) effectName() string       { return "stop_clock" }
func (PlayCueEffect) effectName() string         { return "play_cue" }
func (VibrateEffect) effectName() string         { return "vibrate" }
func (RecordHistoryEffect) effectName() string   { return "record_history" }
func (AcquireLocationEffect) effectName() string { return "acquire_location" }
func (DeliverAlertEffect) effectName() string    { return "deliver_alert" }
func (ScheduleSettleEffect) effectName() string  { return "schedule_settle" }
func (SessionExitedEffect) effectName() string   { return "session_exited" }

const (
	DefaultGracePeriodSeconds = 8
	DefaultExtendSeconds      = 600
)

// SessionMachine holds the tunables of the transition function.
type SessionMachine struct {
	GracePeriodSeconds int
	ExtendSeconds      int
}

func NewSessionMachine(gracePeriodSeconds, extendSeconds int) SessionMachine {
	if gracePeriodSeconds < 1 {
		gracePeriodSeconds = DefaultGracePeriodSeconds
	}
	if extendSeconds < 1 {
		extendSeconds = DefaultExtendSeconds
	}
	return SessionMachine{
		GracePeriodSeconds: gracePeriodSeconds,
		ExtendSeconds:      extendSeconds,
	}
}

// Step is the whole transition table. It never performs I/O: every side effect
// is returned for the caller to run, in order.
func (m SessionMachine) Step(s Session, ev Event, now time.Time) (Session, []Effect, error) {
	if s.Phase == nil {
		s.Phase = IdlePhase{}
	}

	switch e := ev.(type) {
	case SnapshotEvent:
		return s, nil, nil
	case StartEvent:
		return m.start(s, e, now)
	case TickEvent:
		return m.tick(s, e, now)
	case ConfirmOKEvent:
		return m.confirmOK(s)
	case ExtendEvent:
		return m.extend(s)
	case TriggerEvent:
		return m.trigger(s, e.Reason, now)
	case LocationAcquiredEvent:
		return m.locationAcquired(s, e)
	case DispatchSettledEvent:
		return m.settle(s)
	case SafeExitEvent:
		return m.safeExit(s, now)
	case AcknowledgeEvent:
		return m.acknowledge(s)
	case SetInstructionEvent, SetSubstanceEvent, SetMessageEvent, RemoveRecipientEvent:
		return m.edit(s, ev)
	}
	return s, nil, ErrInvalidTransition
}

func (m SessionMachine) start(s Session, e StartEvent, now time.Time) (Session, []Effect, error) {
	switch s.Phase.(type) {
	case IdlePhase:
	case ExitedPhase:
		return s, nil, ErrSessionEnded
	default:
		return s, nil, ErrInvalidTransition
	}

	duration := s.DurationSeconds
	if e.DurationSeconds > 0 {
		duration = e.DurationSeconds
	}
	if duration < 1 {
		return s, nil, ErrInvalidDuration
	}

	s.DurationSeconds = duration
	s.StartedAt = now
	s.Phase = RunningPhase{TimeLeft: duration}
	s.ClockGen++
	return s, []Effect{
		StartClockEffect{Gen: s.ClockGen},
		PlayCueEffect{Cue: CueGentle},
	}, nil
}

func (m SessionMachine) tick(s Session, e TickEvent, now time.Time) (Session, []Effect, error) {
	if e.Gen != s.ClockGen {
		return s, nil, nil
	}

	switch p := s.Phase.(type) {
	case RunningPhase:
		left := p.TimeLeft - 1
		if left > 0 {
			s.Phase = RunningPhase{TimeLeft: left}
			return s, nil, nil
		}
		s.Phase = CheckInPhase{GraceTimeLeft: m.GracePeriodSeconds}
		s.ClockGen++
		return s, []Effect{
			StartClockEffect{Gen: s.ClockGen},
			PlayCueEffect{Cue: CueAlert},
			VibrateEffect{Pattern: HapticCheckIn},
		}, nil

	case CheckInPhase:
		if p.GraceTimeLeft <= 1 {
			s.Phase = CheckInPhase{GraceTimeLeft: 0}
			return m.trigger(s, models.TriggerTimeout, now)
		}
		s.Phase = CheckInPhase{GraceTimeLeft: p.GraceTimeLeft - 1}
		return s, []Effect{
			PlayCueEffect{Cue: CueAlert},
			VibrateEffect{Pattern: HapticGraceTick},
		}, nil
	}

	// A clock that outlived its phase; nothing to count.
	return s, nil, nil
}

func (m SessionMachine) confirmOK(s Session) (Session, []Effect, error) {
	switch s.Phase.(type) {
	case RunningPhase, CheckInPhase:
	case ExitedPhase:
		return s, nil, ErrSessionEnded
	default:
		return s, nil, ErrInvalidTransition
	}

	s.Phase = RunningPhase{TimeLeft: s.DurationSeconds}
	s.ClockGen++
	return s, []Effect{
		StartClockEffect{Gen: s.ClockGen},
		PlayCueEffect{Cue: CueGentle},
	}, nil
}

func (m SessionMachine) extend(s Session) (Session, []Effect, error) {
	p, ok := s.Phase.(RunningPhase)
	if !ok {
		if _, exited := s.Phase.(ExitedPhase); exited {
			return s, nil, ErrSessionEnded
		}
		return s, nil, ErrInvalidTransition
	}
	s.Phase = RunningPhase{TimeLeft: p.TimeLeft + m.ExtendSeconds}
	return s, []Effect{PlayCueEffect{Cue: CueGentle}}, nil
}

func (m SessionMachine) trigger(s Session, reason models.TriggerReason, now time.Time) (Session, []Effect, error) {
	switch s.Phase.(type) {
	case RunningPhase, CheckInPhase:
	case DispatchingPhase, EmergencyPhase:
		// Already escalating; a second trigger must not send twice.
		return s, nil, nil
	case ExitedPhase:
		return s, nil, ErrSessionEnded
	default:
		return s, nil, ErrInvalidTransition
	}

	if reason != models.TriggerTimeout {
		reason = models.TriggerManual
	}

	s.ClockGen++
	effects := []Effect{
		StopClockEffect{},
		PlayCueEffect{Cue: CueAlert},
		VibrateEffect{Pattern: HapticEmergency},
		RecordHistoryEffect{
			Status:    models.SessionStatusAlert,
			Trigger:   reason,
			StartedAt: s.StartedAt,
			EndedAt:   now,
			Substance: s.Substance,
		},
	}

	if s.IncludeLocation() {
		s.Phase = DispatchingPhase{Trigger: reason, AwaitingLocation: true}
		return s, append(effects, AcquireLocationEffect{}), nil
	}

	alert := ComposeAlert(m.composeInput(s, reason, nil))
	s.Phase = DispatchingPhase{Trigger: reason, Alert: &alert}
	return s, append(effects, DeliverAlertEffect{Alert: alert}, ScheduleSettleEffect{}), nil
}

func (m SessionMachine) locationAcquired(s Session, e LocationAcquiredEvent) (Session, []Effect, error) {
	p, ok := s.Phase.(DispatchingPhase)
	if !ok || !p.AwaitingLocation {
		return s, nil, nil
	}

	alert := ComposeAlert(m.composeInput(s, p.Trigger, e.Location))
	s.Phase = DispatchingPhase{Trigger: p.Trigger, Alert: &alert}
	return s, []Effect{
		DeliverAlertEffect{Alert: alert},
		ScheduleSettleEffect{},
	}, nil
}

func (m SessionMachine) settle(s Session) (Session, []Effect, error) {
	p, ok := s.Phase.(DispatchingPhase)
	if !ok || p.AwaitingLocation || p.Alert == nil {
		return s, nil, nil
	}
	s.Phase = EmergencyPhase{Alert: *p.Alert}
	return s, nil, nil
}

func (m SessionMachine) safeExit(s Session, now time.Time) (Session, []Effect, error) {
	switch s.Phase.(type) {
	case IdlePhase:
		// Never started: nothing was monitored, so nothing is recorded.
		s.Phase = ExitedPhase{Outcome: models.SessionStatusSafe}
		return s, []Effect{SessionExitedEffect{Outcome: models.SessionStatusSafe}}, nil

	case RunningPhase, CheckInPhase:
		s.ClockGen++
		s.Phase = ExitedPhase{Outcome: models.SessionStatusSafe}
		return s, []Effect{
			StopClockEffect{},
			RecordHistoryEffect{
				Status:    models.SessionStatusSafe,
				StartedAt: s.StartedAt,
				EndedAt:   now,
				Substance: s.Substance,
			},
			SessionExitedEffect{Outcome: models.SessionStatusSafe},
		}, nil

	case DispatchingPhase:
		return s, nil, ErrDispatchInProgress

	case EmergencyPhase:
		// The alert was already recorded at trigger time.
		return m.acknowledge(s)
	}
	return s, nil, ErrSessionEnded
}

func (m SessionMachine) acknowledge(s Session) (Session, []Effect, error) {
	switch s.Phase.(type) {
	case EmergencyPhase:
		s.Phase = ExitedPhase{Outcome: models.SessionStatusAlert}
		return s, []Effect{SessionExitedEffect{Outcome: models.SessionStatusAlert}}, nil
	case ExitedPhase:
		return s, nil, ErrSessionEnded
	}
	return s, nil, ErrInvalidTransition
}

func (m SessionMachine) edit(s Session, ev Event) (Session, []Effect, error) {
	switch s.Phase.(type) {
	case IdlePhase, RunningPhase, CheckInPhase:
	case ExitedPhase:
		return s, nil, ErrSessionEnded
	default:
		return s, nil, ErrSessionLocked
	}

	switch e := ev.(type) {
	case SetInstructionEvent:
		if !e.Instruction.Valid() {
			return s, nil, ErrInvalidInstruction
		}
		s.Instruction = e.Instruction
	case SetSubstanceEvent:
		s.Substance = e.Substance
	case SetMessageEvent:
		s.CustomMessage = e.Message
	case RemoveRecipientEvent:
		idx := -1
		for i, c := range s.Recipients {
			if c.ID == e.ContactID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return s, nil, ErrRecipientNotFound
		}
		recipients := make([]models.EmergencyContact, 0, len(s.Recipients)-1)
		recipients = append(recipients, s.Recipients[:idx]...)
		recipients = append(recipients, s.Recipients[idx+1:]...)
		s.Recipients = recipients
	}
	return s, nil, nil
}

func (m SessionMachine) composeInput(s Session, reason models.TriggerReason, loc *models.Location) ComposeInput {
	return ComposeInput{
		CustomMessage:   s.CustomMessage,
		Substance:       s.Substance,
		Instruction:     s.Instruction,
		IncludeLocation: s.IncludeLocation(),
		Location:        loc,
		Recipients:      s.Recipients,
		Action:          s.Action,
		Trigger:         reason,
	}
}
