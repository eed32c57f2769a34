package services

import (
	"strings"

	"haven/models"
)

const (
	mapsLinkBase      = "https://maps.google.com/?q="
	shortCodeLinkBase = "https://w3w.co/"
)

// ComposeInput is everything the alert depends on at dispatch time.
type ComposeInput struct {
	CustomMessage   string
	Substance       string
	Instruction     models.ContactInstruction
	IncludeLocation bool
	// Location is attached only when IncludeLocation is set and a location was acquired.
	Location   *models.Location
	Recipients []models.EmergencyContact
	Action     models.EscalationAction
	Trigger    models.TriggerReason
}

// ComposeBody builds "<message>[ Substance: <s>] (<instruction>)".
func ComposeBody(message, substance string, instruction models.ContactInstruction) string {
	var b strings.Builder
	b.WriteString(message)
	if substance != "" {
		b.WriteString(" Substance: ")
		b.WriteString(substance)
	}
	b.WriteString(" (")
	b.WriteString(string(instruction))
	b.WriteString(")")
	return b.String()
}

// LocationSuffix renders the address, short code and both links.
func LocationSuffix(loc models.Location) string {
	mapsLink := mapsLinkBase + models.EncodeURIComponent(loc.Address)
	shortCodeLink := shortCodeLinkBase + strings.TrimPrefix(loc.ShortCode, "///")
	return " Location: " + loc.Address + " (" + loc.ShortCode + ") Maps: " + mapsLink + " | " + shortCodeLink
}

// BuildDirective targets the first recipient by voice for CALL plans, and every
// recipient by text otherwise.
func BuildDirective(action models.EscalationAction, recipients []models.EmergencyContact, body string) models.DeliveryDirective {
	if action == models.EscalationActionCall {
		targets := []string{}
		if len(recipients) > 0 {
			targets = append(targets, recipients[0].Phone)
		}
		return models.DeliveryDirective{
			Mode:    models.DeliveryModeVoice,
			Targets: targets,
		}
	}

	targets := make([]string, 0, len(recipients))
	for _, c := range recipients {
		targets = append(targets, c.Phone)
	}
	return models.DeliveryDirective{
		Mode:    models.DeliveryModeSMS,
		Targets: targets,
		Body:    body,
	}
}

// ComposeAlert produces the final payload. It has no side effects.
// IncludeLocation on the payload reports what was sent: it is false when a
// location was wanted but none could be acquired.
func ComposeAlert(in ComposeInput) models.AlertPayload {
	body := ComposeBody(in.CustomMessage, in.Substance, in.Instruction)

	var location *models.Location
	if in.IncludeLocation && in.Location != nil {
		loc := *in.Location
		location = &loc
		body += LocationSuffix(loc)
	}

	recipients := make([]models.EmergencyContact, len(in.Recipients))
	copy(recipients, in.Recipients)

	return models.AlertPayload{
		Body:            body,
		Recipients:      recipients,
		Directive:       BuildDirective(in.Action, recipients, body),
		IncludeLocation: location != nil,
		Location:        location,
		Trigger:         in.Trigger,
	}
}
