package models

import (
	"net/url"
	"strings"
)

type DeliveryMode string

const (
	DeliveryModeSMS   DeliveryMode = "SMS"
	DeliveryModeVoice DeliveryMode = "CALL"
)

// RecipientDelimiter joins phone numbers in a multi-recipient text directive.
const RecipientDelimiter = ","

// DeliveryDirective is the instruction handed to an external transport.
// A voice directive has at most one target; a text directive may have any number,
// including none.
type DeliveryDirective struct {
	Mode    DeliveryMode `json:"mode"`
	Targets []string     `json:"targets"`
	Body    string       `json:"body,omitempty"`
}

// URI renders the directive as a device intent link (tel: or sms:).
func (d DeliveryDirective) URI() string {
	if d.Mode == DeliveryModeVoice {
		target := ""
		if len(d.Targets) > 0 {
			target = d.Targets[0]
		}
		return "tel:" + target
	}
	return "sms:" + strings.Join(d.Targets, RecipientDelimiter) + "?body=" + EncodeURIComponent(d.Body)
}

// Location is a static, user-controlled location reference.
type Location struct {
	Address   string `json:"address"`
	ShortCode string `json:"shortCode"`
}

// AlertPayload is everything that was sent, kept for the confirmation view.
type AlertPayload struct {
	Body            string             `json:"body"`
	Recipients      []EmergencyContact `json:"recipients"`
	Directive       DeliveryDirective  `json:"directive"`
	IncludeLocation bool               `json:"includeLocation"`
	Location        *Location          `json:"location,omitempty"`
	Trigger         TriggerReason      `json:"trigger"`
}

// RecipientNames returns the confirmation summary line for the recipients.
func (p AlertPayload) RecipientNames() string {
	if len(p.Recipients) == 0 {
		return "No specific contacts"
	}
	names := make([]string, 0, len(p.Recipients))
	for _, c := range p.Recipients {
		names = append(names, c.Name)
	}
	return strings.Join(names, ", ")
}

// EncodeURIComponent escapes s the way browsers encode a URI component:
// spaces become %20 rather than +.
func EncodeURIComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
