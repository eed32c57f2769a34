package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"haven/config"
	"haven/models"
	"haven/repositories"
	"haven/services"
	"haven/services/clocktest"
	"haven/websocket"

	"github.com/gin-gonic/gin"
)

var start = time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)

type queuedDispatcher struct {
	mutex    sync.Mutex
	requests []services.DispatchRequest
}

func (q *queuedDispatcher) Dispatch(ctx context.Context, req services.DispatchRequest) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.requests = append(q.requests, req)
	return nil
}

func (q *queuedDispatcher) count() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.requests)
}

type apiFixture struct {
	router     *gin.Engine
	scheduler  *clocktest.Scheduler
	dispatcher *queuedDispatcher
	token      string
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Environment:        "test",
		JWTSecret:          "test-secret",
		TokenTTL:           time.Hour,
		GracePeriodSeconds: 8,
		ExtendSeconds:      600,
		LocationDelay:      1500 * time.Millisecond,
		DispatchSettle:     1500 * time.Millisecond,
		LocationAddress:    "8 Ave SW, Calgary",
		RateLimitRequest:   1000,
		RateLimitWindow:    1,
	}

	f := &apiFixture{
		scheduler:  clocktest.NewScheduler(start),
		dispatcher: &queuedDispatcher{},
	}
	router, svc := SetupRoutes(Dependencies{
		Config:     cfg,
		Store:      repositories.NewMemoryKVStore(),
		Hub:        websocket.NewHub(nil),
		Dispatcher: f.dispatcher,
		Registry:   services.NewDeviceRegistry(),
		Scheduler:  f.scheduler,
	})
	t.Cleanup(svc.Session.Shutdown)
	f.router = router

	var token models.DeviceTokenResponse
	f.do(t, http.MethodPost, "/api/v1/auth/device", map[string]string{"deviceId": "device-1"}, http.StatusCreated, &token)
	if token.AccessToken == "" {
		t.Fatal("no access token issued")
	}
	f.token = token.AccessToken
	return f
}

// do sends a request and decodes the response data into out when it is not nil.
func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, wantStatus int, out interface{}) {
	t.Helper()

	var req *http.Request
	if body != nil {
		raw, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != wantStatus {
		t.Fatalf("%s %s = %d, want %d: %s", method, path, w.Code, wantStatus, w.Body.String())
	}
	if out == nil {
		return
	}
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestRequiresToken(t *testing.T) {
	f := newAPIFixture(t)
	f.token = ""
	f.do(t, http.MethodGet, "/api/v1/session", nil, http.StatusUnauthorized, nil)

	f.token = "not-a-jwt"
	f.do(t, http.MethodGet, "/api/v1/profile", nil, http.StatusUnauthorized, nil)
}

func TestIssueTokenValidation(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodPost, "/api/v1/auth/device", map[string]string{"deviceId": "x"}, http.StatusBadRequest, nil)
}

func TestProfileEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	var contacts []models.EmergencyContact
	f.do(t, http.MethodPut, "/api/v1/profile/contacts", map[string]interface{}{
		"contacts": []map[string]string{
			{"id": "a", "name": "Alex", "phone": "+14035550101"},
			{"name": "Sam", "phone": "+14035550102"},
		},
	}, http.StatusOK, &contacts)
	if len(contacts) != 2 || contacts[0].ID != "a" || contacts[1].ID == "" {
		t.Fatalf("contacts = %#v", contacts)
	}

	f.do(t, http.MethodPut, "/api/v1/profile/plan", map[string]interface{}{
		"action": "FAX", "contactIds": []string{},
	}, http.StatusBadRequest, nil)

	f.do(t, http.MethodPut, "/api/v1/profile/contacts", map[string]interface{}{
		"contacts": []map[string]string{{"name": "Bad", "phone": "12"}},
	}, http.StatusBadRequest, nil)

	var profile models.Profile
	f.do(t, http.MethodGet, "/api/v1/profile", nil, http.StatusOK, &profile)
	if profile.CustomMessage != models.DefaultCustomMessage || len(profile.Contacts) != 2 {
		t.Errorf("profile = %#v", profile)
	}

	f.do(t, http.MethodDelete, "/api/v1/profile/contacts/missing", nil, http.StatusNotFound, nil)
}

func TestSessionOverHTTP(t *testing.T) {
	f := newAPIFixture(t)

	f.do(t, http.MethodPut, "/api/v1/profile/contacts", map[string]interface{}{
		"contacts": []map[string]string{{"id": "a", "name": "Alex", "phone": "+14035550101"}},
	}, http.StatusOK, nil)
	f.do(t, http.MethodPut, "/api/v1/profile/plan", map[string]interface{}{
		"action": "SMS", "includeLocation": true, "contactIds": []string{"a"},
	}, http.StatusOK, nil)

	f.do(t, http.MethodGet, "/api/v1/session", nil, http.StatusNotFound, nil)

	var snap models.SessionSnapshot
	f.do(t, http.MethodPost, "/api/v1/session/start", map[string]int{"durationSeconds": 5}, http.StatusOK, &snap)
	if snap.State != models.SessionStateRunning || snap.TimeLeft != 5 || len(snap.Recipients) != 1 {
		t.Fatalf("started = %#v", snap)
	}
	f.do(t, http.MethodPost, "/api/v1/session", nil, http.StatusConflict, nil)

	f.scheduler.Advance(5 * time.Second)
	f.do(t, http.MethodGet, "/api/v1/session", nil, http.StatusOK, &snap)
	if snap.State != models.SessionStateCheckIn || snap.GraceTimeLeft != 8 {
		t.Fatalf("after countdown = %#v", snap)
	}

	f.do(t, http.MethodPost, "/api/v1/session/ok", nil, http.StatusOK, &snap)
	if snap.State != models.SessionStateRunning || snap.TimeLeft != 5 {
		t.Fatalf("after ok = %#v", snap)
	}

	f.do(t, http.MethodPut, "/api/v1/session/substance", map[string]string{"substance": "opioids"}, http.StatusOK, &snap)
	f.do(t, http.MethodPost, "/api/v1/session/trigger", nil, http.StatusOK, &snap)
	if snap.State != models.SessionStateDispatching {
		t.Fatalf("after trigger = %#v", snap)
	}
	f.do(t, http.MethodPost, "/api/v1/session/exit", nil, http.StatusConflict, nil)

	f.scheduler.Advance(3 * time.Second)
	f.do(t, http.MethodGet, "/api/v1/session", nil, http.StatusOK, &snap)
	if snap.State != models.SessionStateEmergency || snap.Alert == nil {
		t.Fatalf("after dispatch = %#v", snap)
	}
	if f.dispatcher.count() != 1 {
		t.Errorf("dispatched %d alerts", f.dispatcher.count())
	}

	f.do(t, http.MethodPost, "/api/v1/session/acknowledge", nil, http.StatusOK, &snap)
	if snap.State != models.SessionStateExited {
		t.Errorf("after acknowledge = %s", snap.State)
	}
	f.do(t, http.MethodGet, "/api/v1/session", nil, http.StatusNotFound, nil)

	var records []models.SessionRecord
	f.do(t, http.MethodGet, "/api/v1/history", nil, http.StatusOK, &records)
	if len(records) != 1 || records[0].Status != models.SessionStatusAlert || records[0].Trigger != models.TriggerManual || records[0].Substance != "opioids" {
		t.Errorf("history = %#v", records)
	}
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	f.do(t, http.MethodGet, "/health", nil, http.StatusOK, nil)
}
