package models

import "time"

// SessionState is the externally visible phase of a safety session.
type SessionState string

const (
	SessionStateIdle        SessionState = "IDLE"
	SessionStateRunning     SessionState = "RUNNING"
	SessionStateCheckIn     SessionState = "CHECK_IN"
	SessionStateDispatching SessionState = "DISPATCHING"
	SessionStateEmergency   SessionState = "EMERGENCY"
	SessionStateExited      SessionState = "EXITED"
)

type SessionStatus string

const (
	SessionStatusSafe  SessionStatus = "SAFE"
	SessionStatusAlert SessionStatus = "ALERT"
)

// TriggerReason distinguishes a missed check-in from a user pressing the alert button.
type TriggerReason string

const (
	TriggerTimeout TriggerReason = "timeout"
	TriggerManual  TriggerReason = "manual"
)

// SessionRecord is one finished session in the history log.
type SessionRecord struct {
	ID              string        `json:"id" bson:"id"`
	Timestamp       string        `json:"timestamp" bson:"timestamp"`
	DurationSeconds int           `json:"durationSeconds" bson:"durationSeconds"`
	Substance       string        `json:"substance,omitempty" bson:"substance,omitempty"`
	Status          SessionStatus `json:"status" bson:"status"`
	Trigger         TriggerReason `json:"trigger,omitempty" bson:"trigger,omitempty"`
}

type HistorySummary struct {
	Total         int    `json:"total"`
	Safe          int    `json:"safe"`
	Alert         int    `json:"alert"`
	TotalSeconds  int    `json:"totalSeconds"`
	TotalDuration string `json:"totalDuration"`
}

// SessionSnapshot is a read-only view of a live session.
type SessionSnapshot struct {
	ID                 string             `json:"id"`
	Scope              string             `json:"scope"`
	State              SessionState       `json:"state"`
	DurationSeconds    int                `json:"durationSeconds"`
	TimeLeft           int                `json:"timeLeft"`
	GraceTimeLeft      int                `json:"graceTimeLeft"`
	IsProcessing       bool               `json:"isProcessing"`
	CustomMessage      string             `json:"customMessage"`
	Substance          string             `json:"substance,omitempty"`
	ContactInstruction ContactInstruction `json:"contactInstruction"`
	IncludeLocation    bool               `json:"includeLocation"`
	Action             EscalationAction   `json:"action"`
	Recipients         []EmergencyContact `json:"recipients"`
	StartedAt          *time.Time         `json:"startedAt,omitempty"`
	Alert              *AlertPayload      `json:"alert,omitempty"`
}

// Request payloads

type CreateSessionRequest struct {
	DurationSeconds int `json:"durationSeconds" validate:"omitempty,gte=1"`
}

type StartSessionRequest struct {
	DurationSeconds int `json:"durationSeconds" validate:"omitempty,gte=1"`
}

type SetSubstanceRequest struct {
	Substance string `json:"substance" validate:"max=100"`
}
