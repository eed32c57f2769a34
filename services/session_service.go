package services

import (
	"context"
	"net/http"
	"sync"
	"time"

	"haven/models"
	"haven/repositories"
	"haven/utils"

	"github.com/sirupsen/logrus"
)

var (
	ErrSessionActive = utils.ServiceError{
		Code:       "SESSION_ACTIVE",
		Message:    "A session is already active on this device",
		StatusCode: http.StatusConflict,
	}
	ErrNoActiveSession = utils.ServiceError{
		Code:       utils.ErrCodeNotFound,
		Message:    "No active session",
		StatusCode: http.StatusNotFound,
	}
)

type SessionConfig struct {
	GracePeriodSeconds int
	ExtendSeconds      int
	TickInterval       time.Duration
	LocationDelay      time.Duration
	SettleDelay        time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		GracePeriodSeconds: DefaultGracePeriodSeconds,
		ExtendSeconds:      DefaultExtendSeconds,
		TickInterval:       time.Second,
		LocationDelay:      1500 * time.Millisecond,
		SettleDelay:        1500 * time.Millisecond,
	}
}

// SessionService keeps at most one live session per device scope.
type SessionService struct {
	store      repositories.ProfileStore
	history    *HistoryService
	scheduler  Scheduler
	dispatcher AlertDispatcher
	feedback   Feedback
	publisher  EventPublisher
	locator    LocationProvider
	config     SessionConfig
	machine    SessionMachine

	runners map[string]*SessionRunner
	mutex   sync.Mutex
}

func NewSessionService(
	store repositories.ProfileStore,
	history *HistoryService,
	scheduler Scheduler,
	dispatcher AlertDispatcher,
	feedback Feedback,
	publisher EventPublisher,
	locator LocationProvider,
	config SessionConfig,
) *SessionService {
	return &SessionService{
		store:      store,
		history:    history,
		scheduler:  scheduler,
		dispatcher: dispatcher,
		feedback:   feedback,
		publisher:  publisher,
		locator:    locator,
		config:     config,
		machine:    NewSessionMachine(config.GracePeriodSeconds, config.ExtendSeconds),
		runners:    make(map[string]*SessionRunner),
	}
}

// Create seeds an idle session from the stored profile.
func (ss *SessionService) Create(ctx context.Context, scope string, durationSeconds int) (models.SessionSnapshot, error) {
	if durationSeconds < 0 {
		return models.SessionSnapshot{}, ErrInvalidDuration
	}

	session := ss.seed(ctx, scope)
	if durationSeconds > 0 {
		session.DurationSeconds = durationSeconds
	}
	if session.DurationSeconds < 1 {
		return models.SessionSnapshot{}, ErrInvalidDuration
	}

	ss.mutex.Lock()
	if _, exists := ss.runners[scope]; exists {
		ss.mutex.Unlock()
		return models.SessionSnapshot{}, ErrSessionActive
	}
	runner := NewSessionRunner(ss.runnerDeps(), session, ss.remove)
	ss.runners[scope] = runner
	ss.mutex.Unlock()

	runner.Start()

	logrus.WithFields(logrus.Fields{
		"scope":      scope,
		"session":    session.ID,
		"duration":   session.DurationSeconds,
		"recipients": len(session.Recipients),
	}).Info("Session created")

	return runner.Send(ctx, SnapshotEvent{})
}

// Start begins monitoring. With no idle session it creates one first.
func (ss *SessionService) Start(ctx context.Context, scope string, durationSeconds int) (models.SessionSnapshot, error) {
	if durationSeconds < 0 {
		return models.SessionSnapshot{}, ErrInvalidDuration
	}
	if _, ok := ss.runner(scope); !ok {
		if _, err := ss.Create(ctx, scope, durationSeconds); err != nil {
			return models.SessionSnapshot{}, err
		}
	}
	return ss.send(ctx, scope, StartEvent{DurationSeconds: durationSeconds})
}

func (ss *SessionService) Current(ctx context.Context, scope string) (models.SessionSnapshot, error) {
	return ss.send(ctx, scope, SnapshotEvent{})
}

func (ss *SessionService) ConfirmOK(ctx context.Context, scope string) (models.SessionSnapshot, error) {
	return ss.send(ctx, scope, ConfirmOKEvent{})
}

func (ss *SessionService) Extend(ctx context.Context, scope string) (models.SessionSnapshot, error) {
	return ss.send(ctx, scope, ExtendEvent{})
}

func (ss *SessionService) Trigger(ctx context.Context, scope string) (models.SessionSnapshot, error) {
	return ss.send(ctx, scope, TriggerEvent{Reason: models.TriggerManual})
}

func (ss *SessionService) SafeExit(ctx context.Context, scope string) (models.SessionSnapshot, error) {
	return ss.send(ctx, scope, SafeExitEvent{})
}

func (ss *SessionService) Acknowledge(ctx context.Context, scope string) (models.SessionSnapshot, error) {
	return ss.send(ctx, scope, AcknowledgeEvent{})
}

func (ss *SessionService) SetInstruction(ctx context.Context, scope string, instruction models.ContactInstruction) (models.SessionSnapshot, error) {
	return ss.send(ctx, scope, SetInstructionEvent{Instruction: instruction})
}

func (ss *SessionService) SetSubstance(ctx context.Context, scope, substance string) (models.SessionSnapshot, error) {
	return ss.send(ctx, scope, SetSubstanceEvent{Substance: substance})
}

func (ss *SessionService) SetMessage(ctx context.Context, scope, message string) (models.SessionSnapshot, error) {
	return ss.send(ctx, scope, SetMessageEvent{Message: message})
}

func (ss *SessionService) RemoveRecipient(ctx context.Context, scope, contactID string) (models.SessionSnapshot, error) {
	return ss.send(ctx, scope, RemoveRecipientEvent{ContactID: contactID})
}

// Command applies a session action by name, for clients that send commands
// over the live connection.
func (ss *SessionService) Command(ctx context.Context, scope, command string) (models.SessionSnapshot, error) {
	switch command {
	case "start":
		return ss.Start(ctx, scope, 0)
	case "ok":
		return ss.ConfirmOK(ctx, scope)
	case "extend":
		return ss.Extend(ctx, scope)
	case "trigger":
		return ss.Trigger(ctx, scope)
	case "exit":
		return ss.SafeExit(ctx, scope)
	case "acknowledge":
		return ss.Acknowledge(ctx, scope)
	case "status":
		return ss.Current(ctx, scope)
	}
	return models.SessionSnapshot{}, utils.NewBadRequestError("Unknown session command: " + command)
}

// ActiveCount reports how many devices have a live session.
func (ss *SessionService) ActiveCount() int {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	return len(ss.runners)
}

// Shutdown stops every runner. Sessions are not recorded.
func (ss *SessionService) Shutdown() {
	ss.mutex.Lock()
	runners := make([]*SessionRunner, 0, len(ss.runners))
	for scope, r := range ss.runners {
		runners = append(runners, r)
		delete(ss.runners, scope)
	}
	ss.mutex.Unlock()

	for _, r := range runners {
		r.Close()
	}
	logrus.Infof("Stopped %d active sessions", len(runners))
}

func (ss *SessionService) send(ctx context.Context, scope string, ev Event) (models.SessionSnapshot, error) {
	runner, ok := ss.runner(scope)
	if !ok {
		return models.SessionSnapshot{}, ErrNoActiveSession
	}
	return runner.Send(ctx, ev)
}

func (ss *SessionService) runner(scope string) (*SessionRunner, bool) {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	r, ok := ss.runners[scope]
	return r, ok
}

func (ss *SessionService) remove(r *SessionRunner) {
	ss.mutex.Lock()
	defer ss.mutex.Unlock()
	if current, ok := ss.runners[r.Scope()]; ok && current == r {
		delete(ss.runners, r.Scope())
	}
}

func (ss *SessionService) runnerDeps() RunnerDeps {
	return RunnerDeps{
		Machine:       ss.machine,
		Scheduler:     ss.scheduler,
		History:       ss.history,
		Dispatcher:    ss.dispatcher,
		Feedback:      ss.feedback,
		Publisher:     ss.publisher,
		Locator:       ss.locator,
		TickInterval:  ss.config.TickInterval,
		LocationDelay: ss.config.LocationDelay,
		SettleDelay:   ss.config.SettleDelay,
	}
}

// seed loads the profile. Store failures fall back to defaults so a session
// can always be started.
func (ss *SessionService) seed(ctx context.Context, scope string) Session {
	log := logrus.WithField("scope", scope)

	contacts, err := ss.store.GetContacts(ctx, scope)
	if err != nil {
		log.Warnf("Using empty contacts: %v", err)
	}
	plan, err := ss.store.GetEscalationPlan(ctx, scope)
	if err != nil {
		log.Warnf("Using default escalation plan: %v", err)
	}
	message, err := ss.store.GetCustomMessage(ctx, scope)
	if err != nil {
		log.Warnf("Using default message: %v", err)
	}
	instruction, err := ss.store.GetContactInstruction(ctx, scope)
	if err != nil {
		log.Warnf("Using default instruction: %v", err)
	}
	minutes, err := ss.store.GetDefaultDurationMinutes(ctx, scope)
	if err != nil {
		log.Warnf("Using default duration: %v", err)
	}

	return Session{
		ID:              utils.GenerateUUID(),
		Scope:           scope,
		DurationSeconds: utils.MinutesToSeconds(minutes),
		CustomMessage:   message,
		Instruction:     instruction,
		Action:          plan.Action,
		Recipients:      SelectRecipients(contacts, plan.ContactIDs),
		Phase:           IdlePhase{},
	}
}

// SelectRecipients returns the plan's contacts in plan order, or every contact
// when the plan names none. Unknown IDs are skipped.
func SelectRecipients(contacts []models.EmergencyContact, contactIDs []string) []models.EmergencyContact {
	if len(contactIDs) == 0 {
		return append([]models.EmergencyContact{}, contacts...)
	}

	byID := make(map[string]models.EmergencyContact, len(contacts))
	for _, c := range contacts {
		byID[c.ID] = c
	}

	selected := make([]models.EmergencyContact, 0, len(contactIDs))
	seen := make(map[string]bool, len(contactIDs))
	for _, id := range contactIDs {
		c, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		selected = append(selected, c)
	}
	return selected
}
