package utils

import (
	"strings"
	"testing"
	"time"

	"haven/models"
)

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"+14035550101", true},
		{"(403) 555-0101", true},
		{"403.555.0101", true},
		{"555", false},
		{"call me", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidPhone(tt.phone); got != tt.want {
			t.Errorf("IsValidPhone(%q) = %v, want %v", tt.phone, got, tt.want)
		}
	}
}

func TestValidateStruct(t *testing.T) {
	vs := NewValidationService()

	if errs := vs.ValidateStruct(&models.AddContactRequest{Name: "Alex", Phone: "+14035550101"}); errs != nil {
		t.Errorf("valid contact rejected: %v", errs)
	}

	errs := vs.ValidateStruct(&models.AddContactRequest{Name: "", Phone: "nope"})
	if len(errs) != 2 {
		t.Fatalf("errors = %v", errs)
	}
	tags := map[string]bool{}
	for _, e := range errs {
		tags[e.Tag] = true
	}
	if !tags["required"] || !tags["phone"] {
		t.Errorf("tags = %v", tags)
	}

	plan := &models.EscalationPlan{Action: "FAX", ContactIDs: []string{}}
	errs = vs.ValidateStruct(plan)
	if len(errs) != 1 || errs[0].Message != "Action must be SMS or CALL" {
		t.Errorf("plan errors = %v", errs)
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := SanitizeInput("  <Alex>; "); got != "Alex" {
		t.Errorf("SanitizeInput = %q", got)
	}
}

func TestJWTRoundTrip(t *testing.T) {
	js := NewJWTService("secret", time.Hour)

	token, expiresAt, err := js.GenerateDeviceToken("device-1", "fcm")
	if err != nil {
		t.Fatal(err)
	}
	if time.Until(expiresAt) <= 59*time.Minute {
		t.Errorf("expiresAt = %v", expiresAt)
	}

	claims, err := js.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "device-1" || claims.PushToken != "fcm" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := NewJWTService("other", time.Hour).ValidateToken(token); err == nil {
		t.Errorf("token accepted with the wrong key")
	}
	if _, err := js.ValidateToken(token + "x"); err == nil {
		t.Errorf("tampered token accepted")
	}
}

func TestJWTRejectsEmptySubject(t *testing.T) {
	js := NewJWTService("secret", time.Hour)
	token, _, err := js.GenerateDeviceToken("", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := js.ValidateToken(token); err == nil || !strings.Contains(err.Error(), "subject") {
		t.Errorf("err = %v", err)
	}
}

func TestKeyedWindowLimiter(t *testing.T) {
	kl := NewKeyedWindowLimiter(2, time.Minute)
	now := time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)

	if ok, remaining := kl.Allow("a", now); !ok || remaining != 1 {
		t.Errorf("first = %v, %d", ok, remaining)
	}
	if ok, remaining := kl.Allow("a", now.Add(time.Second)); !ok || remaining != 0 {
		t.Errorf("second = %v, %d", ok, remaining)
	}
	if ok, _ := kl.Allow("a", now.Add(2*time.Second)); ok {
		t.Errorf("third request allowed")
	}
	if ok, _ := kl.Allow("b", now.Add(2*time.Second)); !ok {
		t.Errorf("keys share a window")
	}
	if ok, _ := kl.Allow("a", now.Add(61*time.Second)); !ok {
		t.Errorf("window did not slide")
	}
}

func TestTokenBucket(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour)
	if !rl.Allow() || !rl.Allow() {
		t.Fatal("burst rejected")
	}
	if rl.Allow() {
		t.Errorf("bucket not exhausted")
	}
}

func TestDurationHelpers(t *testing.T) {
	start := time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)
	if got := ElapsedSeconds(start, start.Add(1999*time.Millisecond)); got != 1 {
		t.Errorf("ElapsedSeconds = %d", got)
	}
	if got := ElapsedSeconds(start, start.Add(-time.Second)); got != 0 {
		t.Errorf("negative span = %d", got)
	}
	if got := MinutesToSeconds(0.5); got != 30 {
		t.Errorf("MinutesToSeconds = %d", got)
	}
	if got := FormatDuration(45); got != "45s" {
		t.Errorf("FormatDuration(45) = %q", got)
	}
	if got := FormatDuration(303); got != "5m 3s" {
		t.Errorf("FormatDuration(303) = %q", got)
	}
	if got := FormatClock(65); got != "1:05" {
		t.Errorf("FormatClock = %q", got)
	}
}
