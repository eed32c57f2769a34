package models

import (
	"encoding/json"
	"time"
)

// WebSocket Message Types
type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Scope     string      `json:"scope,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"requestId,omitempty"`
}

const (
	WSTypeSessionState = "session_state"
	WSTypeSessionTick  = "session_tick"
	WSTypeCue          = "feedback_cue"
	WSTypeHaptic       = "feedback_haptic"
	WSTypeAlertSent    = "alert_sent"
	WSTypeDirective    = "delivery_directive"
	WSTypePing         = "ping"
	WSTypePong         = "pong"
	WSTypeError        = "error"
)

type WSSessionTick struct {
	State         SessionState `json:"state"`
	TimeLeft      int          `json:"timeLeft"`
	GraceTimeLeft int          `json:"graceTimeLeft"`
	Clock         string       `json:"clock"` // M:SS of whichever countdown is showing
}

type WSCue struct {
	Cue string `json:"cue"` // gentle, alert
}

type WSHaptic struct {
	PatternMs []int64 `json:"patternMs"`
}

type WSDirective struct {
	Mode    DeliveryMode `json:"mode"`
	URI     string       `json:"uri"`
	Targets []string     `json:"targets"`
	Body    string       `json:"body,omitempty"`
}

// WSRequest is an inbound client frame.
type WSRequest struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// WSSessionCommand asks the server to apply a session action, e.g. "ok" or "trigger".
type WSSessionCommand struct {
	Command string `json:"command"`
}

type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	WSTypeSessionCommand = "session_command"

	WSErrorInvalidMessage = "INVALID_MESSAGE"
	WSErrorRateLimit      = "RATE_LIMIT"
	WSErrorCommandFailed  = "COMMAND_FAILED"
)
