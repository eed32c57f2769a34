package services

import (
	"context"
	"strings"

	"haven/models"
	"haven/repositories"
	"haven/utils"

	"github.com/sirupsen/logrus"
)

const DefaultContactRelation = "Trusted Contact"

// ProfileService manages a device's stored contacts and escalation preferences.
type ProfileService struct {
	store repositories.ProfileStore
}

func NewProfileService(store repositories.ProfileStore) *ProfileService {
	return &ProfileService{store: store}
}

func (ps *ProfileService) GetProfile(ctx context.Context, scope string) (models.Profile, error) {
	contacts, err := ps.store.GetContacts(ctx, scope)
	if err != nil {
		return models.Profile{}, err
	}
	plan, err := ps.store.GetEscalationPlan(ctx, scope)
	if err != nil {
		return models.Profile{}, err
	}
	message, err := ps.store.GetCustomMessage(ctx, scope)
	if err != nil {
		return models.Profile{}, err
	}
	instruction, err := ps.store.GetContactInstruction(ctx, scope)
	if err != nil {
		return models.Profile{}, err
	}
	minutes, err := ps.store.GetDefaultDurationMinutes(ctx, scope)
	if err != nil {
		return models.Profile{}, err
	}

	return models.Profile{
		Contacts:               contacts,
		Plan:                   plan,
		CustomMessage:          message,
		ContactInstruction:     instruction,
		DefaultDurationMinutes: minutes,
	}, nil
}

func (ps *ProfileService) GetContacts(ctx context.Context, scope string) ([]models.EmergencyContact, error) {
	return ps.store.GetContacts(ctx, scope)
}

// ReplaceContacts stores the full list. Contacts without an id get one; duplicate
// ids are rejected.
func (ps *ProfileService) ReplaceContacts(ctx context.Context, scope string, contacts []models.EmergencyContact) ([]models.EmergencyContact, error) {
	seen := make(map[string]bool, len(contacts))
	cleaned := make([]models.EmergencyContact, 0, len(contacts))
	for _, c := range contacts {
		c = normalizeContact(c)
		if c.ID == "" {
			c.ID = utils.GenerateUUID()
		}
		if seen[c.ID] {
			return nil, utils.NewConflictError("Duplicate contact id: " + c.ID)
		}
		seen[c.ID] = true
		cleaned = append(cleaned, c)
	}

	if err := ps.store.SetContacts(ctx, scope, cleaned); err != nil {
		return nil, err
	}
	return cleaned, nil
}

func (ps *ProfileService) AddContact(ctx context.Context, scope string, req models.AddContactRequest) (models.EmergencyContact, error) {
	contacts, err := ps.store.GetContacts(ctx, scope)
	if err != nil {
		return models.EmergencyContact{}, err
	}

	contact := normalizeContact(models.EmergencyContact{
		ID:       utils.GenerateUUID(),
		Name:     req.Name,
		Phone:    req.Phone,
		Relation: req.Relation,
	})

	if err := ps.store.SetContacts(ctx, scope, append(contacts, contact)); err != nil {
		return models.EmergencyContact{}, err
	}

	logrus.WithField("scope", scope).Infof("Contact added: %s", contact.ID)
	return contact, nil
}

// DeleteContact removes the contact and drops it from the escalation plan.
func (ps *ProfileService) DeleteContact(ctx context.Context, scope, contactID string) error {
	contacts, err := ps.store.GetContacts(ctx, scope)
	if err != nil {
		return err
	}

	remaining := make([]models.EmergencyContact, 0, len(contacts))
	for _, c := range contacts {
		if c.ID != contactID {
			remaining = append(remaining, c)
		}
	}
	if len(remaining) == len(contacts) {
		return utils.NewNotFoundError("Contact")
	}
	if err := ps.store.SetContacts(ctx, scope, remaining); err != nil {
		return err
	}

	plan, err := ps.store.GetEscalationPlan(ctx, scope)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(plan.ContactIDs))
	for _, id := range plan.ContactIDs {
		if id != contactID {
			ids = append(ids, id)
		}
	}
	if len(ids) != len(plan.ContactIDs) {
		plan.ContactIDs = ids
		if err := ps.store.SetEscalationPlan(ctx, scope, plan); err != nil {
			return err
		}
	}

	logrus.WithField("scope", scope).Infof("Contact deleted: %s", contactID)
	return nil
}

func (ps *ProfileService) GetPlan(ctx context.Context, scope string) (models.EscalationPlan, error) {
	return ps.store.GetEscalationPlan(ctx, scope)
}

// SetPlan stores the plan after dropping repeated contact ids.
func (ps *ProfileService) SetPlan(ctx context.Context, scope string, plan models.EscalationPlan) (models.EscalationPlan, error) {
	if !plan.Action.Valid() {
		return models.EscalationPlan{}, utils.NewBadRequestError("Unknown escalation action")
	}

	seen := make(map[string]bool, len(plan.ContactIDs))
	ids := make([]string, 0, len(plan.ContactIDs))
	for _, id := range plan.ContactIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	plan.ContactIDs = ids

	if err := ps.store.SetEscalationPlan(ctx, scope, plan); err != nil {
		return models.EscalationPlan{}, err
	}
	return plan, nil
}

func (ps *ProfileService) GetMessage(ctx context.Context, scope string) (string, error) {
	return ps.store.GetCustomMessage(ctx, scope)
}

func (ps *ProfileService) SetMessage(ctx context.Context, scope, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", utils.NewBadRequestError("Message cannot be empty")
	}
	if err := ps.store.SetCustomMessage(ctx, scope, message); err != nil {
		return "", err
	}
	return message, nil
}

func (ps *ProfileService) GetInstruction(ctx context.Context, scope string) (models.ContactInstruction, error) {
	return ps.store.GetContactInstruction(ctx, scope)
}

func (ps *ProfileService) SetInstruction(ctx context.Context, scope, raw string) (models.ContactInstruction, error) {
	instruction, ok := models.ParseContactInstruction(raw)
	if !ok {
		return "", ErrInvalidInstruction
	}
	if err := ps.store.SetContactInstruction(ctx, scope, instruction); err != nil {
		return "", err
	}
	return instruction, nil
}

func (ps *ProfileService) GetDurationMinutes(ctx context.Context, scope string) (float64, error) {
	return ps.store.GetDefaultDurationMinutes(ctx, scope)
}

func (ps *ProfileService) SetDurationMinutes(ctx context.Context, scope string, minutes float64) (float64, error) {
	if minutes <= 0 || utils.MinutesToSeconds(minutes) < 1 {
		return 0, ErrInvalidDuration
	}
	if err := ps.store.SetDefaultDurationMinutes(ctx, scope, minutes); err != nil {
		return 0, err
	}
	return minutes, nil
}

func normalizeContact(c models.EmergencyContact) models.EmergencyContact {
	c.Name = utils.SanitizeInput(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Relation = utils.SanitizeInput(c.Relation)
	if c.Relation == "" {
		c.Relation = DefaultContactRelation
	}
	return c
}
