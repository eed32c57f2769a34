package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"haven/models"
	"haven/utils"

	"github.com/sirupsen/logrus"
)

// Logical keys shared with the profile screens.
const (
	KeyContacts           = "haven_contacts"
	KeyEscalationPlan     = "haven_escalation_plan"
	KeyCustomMessage      = "haven_custom_message"
	KeyContactInstruction = "haven_contact_instruction"
	KeyDefaultDuration    = "haven_default_duration"
	KeySessionHistory     = "haven_session_history"
)

// ProfileStore is the typed view of a device's persisted profile.
//
// Getters never fail on bad data: a missing or malformed value yields the documented
// default. An error is only returned when the backend itself could not be reached, and
// the default is returned alongside it.
type ProfileStore interface {
	GetContacts(ctx context.Context, scope string) ([]models.EmergencyContact, error)
	SetContacts(ctx context.Context, scope string, contacts []models.EmergencyContact) error
	GetEscalationPlan(ctx context.Context, scope string) (models.EscalationPlan, error)
	SetEscalationPlan(ctx context.Context, scope string, plan models.EscalationPlan) error
	GetCustomMessage(ctx context.Context, scope string) (string, error)
	SetCustomMessage(ctx context.Context, scope, message string) error
	GetContactInstruction(ctx context.Context, scope string) (models.ContactInstruction, error)
	SetContactInstruction(ctx context.Context, scope string, instruction models.ContactInstruction) error
	GetDefaultDurationMinutes(ctx context.Context, scope string) (float64, error)
	SetDefaultDurationMinutes(ctx context.Context, scope string, minutes float64) error
	GetHistory(ctx context.Context, scope string) ([]models.SessionRecord, error)
	AppendHistory(ctx context.Context, scope string, record models.SessionRecord) error
}

type ProfileRepository struct {
	kv KVStore
}

func NewProfileRepository(kv KVStore) *ProfileRepository {
	return &ProfileRepository{kv: kv}
}

func (pr *ProfileRepository) GetContacts(ctx context.Context, scope string) ([]models.EmergencyContact, error) {
	raw, err := pr.get(ctx, scope, KeyContacts)
	if err != nil {
		return []models.EmergencyContact{}, err
	}
	contacts := decodeJSON(scope, KeyContacts, raw, []models.EmergencyContact{})
	if contacts == nil {
		contacts = []models.EmergencyContact{}
	}
	return contacts, nil
}

func (pr *ProfileRepository) SetContacts(ctx context.Context, scope string, contacts []models.EmergencyContact) error {
	if contacts == nil {
		contacts = []models.EmergencyContact{}
	}
	return pr.setJSON(ctx, scope, KeyContacts, contacts)
}

func (pr *ProfileRepository) GetEscalationPlan(ctx context.Context, scope string) (models.EscalationPlan, error) {
	raw, err := pr.get(ctx, scope, KeyEscalationPlan)
	if err != nil {
		return models.DefaultEscalationPlan(), err
	}
	plan := decodeJSON(scope, KeyEscalationPlan, raw, models.DefaultEscalationPlan())
	if !plan.Action.Valid() {
		logrus.WithField("scope", scope).Warnf("Unknown escalation action %q, using SMS", plan.Action)
		plan.Action = models.EscalationActionSMS
	}
	if plan.ContactIDs == nil {
		plan.ContactIDs = []string{}
	}
	return plan, nil
}

func (pr *ProfileRepository) SetEscalationPlan(ctx context.Context, scope string, plan models.EscalationPlan) error {
	if plan.ContactIDs == nil {
		plan.ContactIDs = []string{}
	}
	return pr.setJSON(ctx, scope, KeyEscalationPlan, plan)
}

func (pr *ProfileRepository) GetCustomMessage(ctx context.Context, scope string) (string, error) {
	raw, err := pr.get(ctx, scope, KeyCustomMessage)
	if err != nil || raw == "" {
		return models.DefaultCustomMessage, err
	}
	return raw, nil
}

func (pr *ProfileRepository) SetCustomMessage(ctx context.Context, scope, message string) error {
	return pr.set(ctx, scope, KeyCustomMessage, message)
}

func (pr *ProfileRepository) GetContactInstruction(ctx context.Context, scope string) (models.ContactInstruction, error) {
	raw, err := pr.get(ctx, scope, KeyContactInstruction)
	if err != nil || raw == "" {
		return models.DefaultContactInstruction, err
	}
	instruction, ok := models.ParseContactInstruction(raw)
	if !ok {
		logrus.WithField("scope", scope).Warnf("Malformed contact instruction %q, using default", raw)
		return models.DefaultContactInstruction, nil
	}
	return instruction, nil
}

func (pr *ProfileRepository) SetContactInstruction(ctx context.Context, scope string, instruction models.ContactInstruction) error {
	return pr.set(ctx, scope, KeyContactInstruction, string(instruction))
}

func (pr *ProfileRepository) GetDefaultDurationMinutes(ctx context.Context, scope string) (float64, error) {
	raw, err := pr.get(ctx, scope, KeyDefaultDuration)
	if err != nil || raw == "" {
		return models.DefaultSessionDurationMinutes, err
	}
	minutes, perr := strconv.ParseFloat(raw, 64)
	if perr != nil || minutes <= 0 || utils.MinutesToSeconds(minutes) < 1 {
		logrus.WithField("scope", scope).Warnf("Malformed default duration %q, using default", raw)
		return models.DefaultSessionDurationMinutes, nil
	}
	return minutes, nil
}

func (pr *ProfileRepository) SetDefaultDurationMinutes(ctx context.Context, scope string, minutes float64) error {
	return pr.set(ctx, scope, KeyDefaultDuration, strconv.FormatFloat(minutes, 'f', -1, 64))
}

func (pr *ProfileRepository) GetHistory(ctx context.Context, scope string) ([]models.SessionRecord, error) {
	raw, err := pr.get(ctx, scope, KeySessionHistory)
	if err != nil {
		return []models.SessionRecord{}, err
	}
	history := decodeJSON(scope, KeySessionHistory, raw, []models.SessionRecord{})
	if history == nil {
		history = []models.SessionRecord{}
	}
	return history, nil
}

// AppendHistory puts record at the front of the log. A single active session per
// device makes this read-modify-write safe without locking the store.
func (pr *ProfileRepository) AppendHistory(ctx context.Context, scope string, record models.SessionRecord) error {
	history, err := pr.GetHistory(ctx, scope)
	if err != nil {
		return err
	}
	updated := make([]models.SessionRecord, 0, len(history)+1)
	updated = append(updated, record)
	updated = append(updated, history...)
	return pr.setJSON(ctx, scope, KeySessionHistory, updated)
}

func (pr *ProfileRepository) get(ctx context.Context, scope, key string) (string, error) {
	raw, err := pr.kv.Get(ctx, scope, key)
	if errors.Is(err, ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", utils.NewStoreError("get "+key, err)
	}
	return raw, nil
}

func (pr *ProfileRepository) set(ctx context.Context, scope, key, value string) error {
	if err := pr.kv.Set(ctx, scope, key, value); err != nil {
		return utils.NewStoreError("set "+key, err)
	}
	return nil
}

// decodeJSON returns fallback when raw is empty or does not decode cleanly.
func decodeJSON[T any](scope, key, raw string, fallback T) T {
	if raw == "" {
		return fallback
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		logrus.WithFields(logrus.Fields{
			"scope": scope,
			"key":   key,
		}).Warnf("Malformed stored value, using default: %v", err)
		return fallback
	}
	return v
}

func (pr *ProfileRepository) setJSON(ctx context.Context, scope, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return utils.NewServiceErrorWithCause(utils.ErrCodeInternal, "failed to encode "+key, err)
	}
	return pr.set(ctx, scope, key, string(data))
}
