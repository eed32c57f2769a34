package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"haven/models"
	"haven/repositories"
	"haven/services/clocktest"
)

type recordingPublisher struct {
	mutex    sync.Mutex
	messages []models.WSMessage
}

func (p *recordingPublisher) Publish(scope string, message models.WSMessage) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.messages = append(p.messages, message)
}

func (p *recordingPublisher) count(msgType string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	n := 0
	for _, m := range p.messages {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

type recordingDispatcher struct {
	mutex    sync.Mutex
	requests []DispatchRequest
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, req DispatchRequest) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.requests = append(d.requests, req)
	return nil
}

func (d *recordingDispatcher) sent() []DispatchRequest {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return append([]DispatchRequest{}, d.requests...)
}

type sessionFixture struct {
	service    *SessionService
	scheduler  *clocktest.Scheduler
	store      *repositories.ProfileRepository
	history    *HistoryService
	dispatcher *recordingDispatcher
	publisher  *recordingPublisher
}

const testScope = "device-1"

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	return newSessionFixtureWithLocator(t, NewStaticLocator("8 Ave SW, Calgary", "///puzzle.glorious.flick"))
}

func newSessionFixtureWithLocator(t *testing.T, locator LocationProvider) *sessionFixture {
	t.Helper()

	store := repositories.NewProfileRepository(repositories.NewMemoryKVStore())
	history := NewHistoryService(store)
	scheduler := clocktest.NewScheduler(t0)
	dispatcher := &recordingDispatcher{}
	publisher := &recordingPublisher{}

	service := NewSessionService(
		store,
		history,
		scheduler,
		dispatcher,
		LogFeedback{},
		publisher,
		locator,
		DefaultSessionConfig(),
	)
	t.Cleanup(service.Shutdown)

	return &sessionFixture{
		service:    service,
		scheduler:  scheduler,
		store:      store,
		history:    history,
		dispatcher: dispatcher,
		publisher:  publisher,
	}
}

func TestMissedCheckInEscalatesToEmergency(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, testScope, 1); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.scheduler.Advance(time.Second)
	snap, err := f.service.Current(ctx, testScope)
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if snap.State != models.SessionStateCheckIn || snap.GraceTimeLeft != 8 {
		t.Fatalf("after 1 tick: %s grace %d", snap.State, snap.GraceTimeLeft)
	}

	f.scheduler.Advance(8 * time.Second)
	snap, _ = f.service.Current(ctx, testScope)
	if snap.State != models.SessionStateDispatching || !snap.IsProcessing {
		t.Fatalf("after grace: %s", snap.State)
	}

	f.scheduler.Advance(1500 * time.Millisecond)
	snap, _ = f.service.Current(ctx, testScope)
	if snap.State != models.SessionStateEmergency {
		t.Fatalf("after settle: %s", snap.State)
	}
	if snap.Alert == nil || snap.Alert.Trigger != models.TriggerTimeout {
		t.Fatalf("alert = %#v", snap.Alert)
	}

	records, err := f.history.List(ctx, testScope)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %#v", records)
	}
	r := records[0]
	if r.Status != models.SessionStatusAlert || r.Trigger != models.TriggerTimeout || r.DurationSeconds != 9 {
		t.Errorf("record = %#v", r)
	}

	sent := f.dispatcher.sent()
	if len(sent) != 1 {
		t.Fatalf("dispatched %d alerts", len(sent))
	}
	d := sent[0].Alert.Directive
	if d.Mode != models.DeliveryModeSMS || len(d.Targets) != 0 {
		t.Errorf("directive = %#v", d)
	}
	if f.publisher.count(models.WSTypeAlertSent) != 1 {
		t.Errorf("alert_sent published %d times", f.publisher.count(models.WSTypeAlertSent))
	}
	if f.scheduler.ActiveTimers() != 0 {
		t.Errorf("%d timers still scheduled in emergency", f.scheduler.ActiveTimers())
	}

	snap, err = f.service.Acknowledge(ctx, testScope)
	if err != nil || snap.State != models.SessionStateExited {
		t.Fatalf("Acknowledge: %s %v", snap.State, err)
	}
	if _, err := f.service.Current(ctx, testScope); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("session still active after acknowledge: %v", err)
	}
	if records, _ := f.history.List(ctx, testScope); len(records) != 1 {
		t.Errorf("acknowledge added a record: %d", len(records))
	}
}

func TestSafeExitWhileRunning(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, testScope, 1200); err != nil {
		t.Fatalf("Start: %v", err)
	}
	f.scheduler.Advance(300 * time.Second)

	snap, _ := f.service.Current(ctx, testScope)
	if snap.TimeLeft != 900 {
		t.Fatalf("TimeLeft = %d, want 900", snap.TimeLeft)
	}

	snap, err := f.service.SafeExit(ctx, testScope)
	if err != nil || snap.State != models.SessionStateExited {
		t.Fatalf("SafeExit: %s %v", snap.State, err)
	}

	records, _ := f.history.List(ctx, testScope)
	if len(records) != 1 || records[0].Status != models.SessionStatusSafe || records[0].DurationSeconds != 300 {
		t.Fatalf("records = %#v", records)
	}
	if records[0].Trigger != "" {
		t.Errorf("safe record has trigger %q", records[0].Trigger)
	}
	if n := len(f.dispatcher.sent()); n != 0 {
		t.Errorf("dispatched %d alerts on safe exit", n)
	}
	if f.scheduler.ActiveTimers() != 0 {
		t.Errorf("clock still running after exit")
	}
}

func TestManualTriggerIncludesLocation(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	contacts := []models.EmergencyContact{
		{ID: "a", Name: "Alex", Phone: "+14035550101"},
		{ID: "b", Name: "Sam", Phone: "+14035550102"},
	}
	if err := f.store.SetContacts(ctx, testScope, contacts); err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetEscalationPlan(ctx, testScope, models.EscalationPlan{
		Action:     models.EscalationActionCall,
		ContactIDs: []string{"b", "a"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := f.store.SetContactInstruction(ctx, testScope, models.InstructionSendHelpImmediately); err != nil {
		t.Fatal(err)
	}

	if _, err := f.service.Start(ctx, testScope, 60); err != nil {
		t.Fatalf("Start: %v", err)
	}
	snap, err := f.service.Trigger(ctx, testScope)
	if err != nil || snap.State != models.SessionStateDispatching {
		t.Fatalf("Trigger: %s %v", snap.State, err)
	}
	if len(f.dispatcher.sent()) != 0 {
		t.Fatalf("dispatched before location was acquired")
	}

	if _, err := f.service.SafeExit(ctx, testScope); !errors.Is(err, ErrDispatchInProgress) {
		t.Errorf("SafeExit while dispatching err = %v", err)
	}
	if _, err := f.service.SetSubstance(ctx, testScope, "x"); !errors.Is(err, ErrSessionLocked) {
		t.Errorf("SetSubstance while dispatching err = %v", err)
	}

	f.scheduler.Advance(1500 * time.Millisecond)
	sent := f.dispatcher.sent()
	if len(sent) != 1 {
		t.Fatalf("dispatched %d alerts", len(sent))
	}
	alert := sent[0].Alert
	if !strings.Contains(alert.Body, " Location: 8 Ave SW, Calgary (///puzzle.glorious.flick)") {
		t.Errorf("body = %q", alert.Body)
	}
	if alert.Directive.Mode != models.DeliveryModeVoice || alert.Directive.Targets[0] != "+14035550102" {
		t.Errorf("directive = %#v", alert.Directive)
	}
	if alert.Trigger != models.TriggerManual {
		t.Errorf("trigger = %s", alert.Trigger)
	}

	f.scheduler.Advance(1500 * time.Millisecond)
	snap, _ = f.service.Current(ctx, testScope)
	if snap.State != models.SessionStateEmergency {
		t.Fatalf("state = %s", snap.State)
	}

	records, _ := f.history.List(ctx, testScope)
	if len(records) != 1 || records[0].Trigger != models.TriggerManual {
		t.Errorf("records = %#v", records)
	}
}

func TestSingleActiveSessionPerDevice(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if _, err := f.service.Create(ctx, testScope, 30); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.service.Create(ctx, testScope, 30); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("second Create err = %v", err)
	}
	if _, err := f.service.Create(ctx, "device-2", 30); err != nil {
		t.Fatalf("other device Create: %v", err)
	}
	if f.service.ActiveCount() != 2 {
		t.Errorf("ActiveCount = %d", f.service.ActiveCount())
	}

	if _, err := f.service.SafeExit(ctx, testScope); err != nil {
		t.Fatalf("SafeExit: %v", err)
	}
	if _, err := f.service.Create(ctx, testScope, 30); err != nil {
		t.Errorf("Create after exit: %v", err)
	}
	if records, _ := f.history.List(ctx, testScope); len(records) != 0 {
		t.Errorf("exit from idle recorded %d sessions", len(records))
	}
}

func TestCreateSeedsFromProfile(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	f.store.SetContacts(ctx, testScope, []models.EmergencyContact{
		{ID: "a", Name: "Alex", Phone: "111"},
		{ID: "b", Name: "Sam", Phone: "222"},
	})
	f.store.SetEscalationPlan(ctx, testScope, models.EscalationPlan{
		Action:     models.EscalationActionSMS,
		ContactIDs: []string{"b", "missing"},
	})
	f.store.SetCustomMessage(ctx, testScope, "Check on me.")
	f.store.SetDefaultDurationMinutes(ctx, testScope, 0.5)

	snap, err := f.service.Create(ctx, testScope, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if snap.State != models.SessionStateIdle || snap.DurationSeconds != 30 {
		t.Errorf("snapshot = %s %d", snap.State, snap.DurationSeconds)
	}
	if snap.CustomMessage != "Check on me." || snap.ContactInstruction != models.InstructionCallMeFirst {
		t.Errorf("message %q instruction %q", snap.CustomMessage, snap.ContactInstruction)
	}
	if len(snap.Recipients) != 1 || snap.Recipients[0].ID != "b" {
		t.Errorf("recipients = %#v", snap.Recipients)
	}

	snap, err = f.service.RemoveRecipient(ctx, testScope, "b")
	if err != nil || len(snap.Recipients) != 0 {
		t.Errorf("RemoveRecipient: %#v %v", snap.Recipients, err)
	}
}

func TestCommand(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	snap, err := f.service.Command(ctx, testScope, "start")
	if err != nil || snap.State != models.SessionStateRunning {
		t.Fatalf("start: %s %v", snap.State, err)
	}
	if snap.DurationSeconds != 1200 {
		t.Errorf("default duration = %d, want 1200", snap.DurationSeconds)
	}
	if _, err := f.service.Command(ctx, testScope, "dance"); err == nil {
		t.Errorf("unknown command accepted")
	}
	if snap, _ := f.service.Command(ctx, testScope, "exit"); snap.State != models.SessionStateExited {
		t.Errorf("exit: %s", snap.State)
	}
}

func TestTicksArePublished(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	f.service.Start(ctx, testScope, 10)
	f.scheduler.Advance(3 * time.Second)

	if n := f.publisher.count(models.WSTypeSessionTick); n != 3 {
		t.Errorf("published %d ticks, want 3", n)
	}
}

func TestSelectRecipients(t *testing.T) {
	contacts := []models.EmergencyContact{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	all := SelectRecipients(contacts, nil)
	if len(all) != 3 {
		t.Errorf("no plan ids: got %d contacts", len(all))
	}

	picked := SelectRecipients(contacts, []string{"c", "a", "c", "zzz"})
	if len(picked) != 2 || picked[0].ID != "c" || picked[1].ID != "a" {
		t.Errorf("picked = %#v", picked)
	}
}

func TestRepeatedManualTriggerSendsOnce(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if err := f.store.SetContactInstruction(ctx, testScope, models.InstructionSendHelpImmediately); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.Start(ctx, testScope, 60); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.Trigger(ctx, testScope); err != nil {
				t.Errorf("Trigger: %v", err)
			}
		}()
	}
	wg.Wait()

	f.scheduler.Advance(3 * time.Second)

	if n := len(f.dispatcher.sent()); n != 1 {
		t.Errorf("dispatched %d alerts, want 1", n)
	}
	if records, _ := f.history.List(ctx, testScope); len(records) != 1 {
		t.Errorf("recorded %d sessions, want 1", len(records))
	}
	if f.publisher.count(models.WSTypeAlertSent) != 1 {
		t.Errorf("alert_sent published %d times", f.publisher.count(models.WSTypeAlertSent))
	}
}

func TestTriggerRacingGraceExpiry(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	if _, err := f.service.Start(ctx, testScope, 1); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// Check-in with one second of grace left.
	f.scheduler.Advance(8 * time.Second)
	if snap, _ := f.service.Current(ctx, testScope); snap.State != models.SessionStateCheckIn || snap.GraceTimeLeft != 1 {
		t.Fatalf("before race: %s grace %d", snap.State, snap.GraceTimeLeft)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		f.scheduler.Advance(time.Second)
	}()
	go func() {
		defer wg.Done()
		if _, err := f.service.Trigger(ctx, testScope); err != nil {
			t.Errorf("Trigger: %v", err)
		}
	}()
	wg.Wait()

	f.scheduler.Advance(3 * time.Second)

	snap, _ := f.service.Current(ctx, testScope)
	if snap.State != models.SessionStateEmergency {
		t.Fatalf("state = %s", snap.State)
	}
	if n := len(f.dispatcher.sent()); n != 1 {
		t.Errorf("dispatched %d alerts, want 1", n)
	}
	records, _ := f.history.List(ctx, testScope)
	if len(records) != 1 || records[0].Status != models.SessionStatusAlert {
		t.Errorf("records = %#v", records)
	}
}

type unavailableLocator struct{}

func (unavailableLocator) CurrentLocation(ctx context.Context) (models.Location, error) {
	return models.Location{}, errors.New("no fix")
}

func TestAlertWithoutLocationSaysSo(t *testing.T) {
	f := newSessionFixtureWithLocator(t, unavailableLocator{})
	ctx := context.Background()

	if err := f.store.SetContactInstruction(ctx, testScope, models.InstructionSendHelpImmediately); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.Start(ctx, testScope, 60); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.service.Trigger(ctx, testScope); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	f.scheduler.Advance(3 * time.Second)

	sent := f.dispatcher.sent()
	if len(sent) != 1 {
		t.Fatalf("dispatched %d alerts", len(sent))
	}
	alert := sent[0].Alert
	if alert.IncludeLocation || alert.Location != nil || strings.Contains(alert.Body, "Location:") {
		t.Errorf("alert = %#v", alert)
	}

	snap, _ := f.service.Current(ctx, testScope)
	if snap.Alert == nil || snap.Alert.IncludeLocation {
		t.Errorf("confirmation alert = %#v", snap.Alert)
	}
	if !snap.IncludeLocation {
		t.Errorf("session lost its instruction-derived flag")
	}
}
