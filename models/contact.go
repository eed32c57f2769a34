package models

type EmergencyContact struct {
	ID       string `json:"id" bson:"id" validate:"required,max=64"`
	Name     string `json:"name" bson:"name" validate:"required,min=1,max=100"`
	Phone    string `json:"phone" bson:"phone" validate:"required,phone"`
	Relation string `json:"relation" bson:"relation" validate:"max=50"`
}

type EscalationAction string

const (
	EscalationActionSMS  EscalationAction = "SMS"
	EscalationActionCall EscalationAction = "CALL"
)

func (a EscalationAction) Valid() bool {
	return a == EscalationActionSMS || a == EscalationActionCall
}

// EscalationPlan is the user's standing preference for how an alert goes out.
type EscalationPlan struct {
	Action          EscalationAction `json:"action" bson:"action" validate:"required,escalation_action"`
	IncludeLocation bool             `json:"includeLocation" bson:"includeLocation"`
	ContactIDs      []string         `json:"contactIds" bson:"contactIds" validate:"dive,required"`
}

func DefaultEscalationPlan() EscalationPlan {
	return EscalationPlan{
		Action:     EscalationActionSMS,
		ContactIDs: []string{},
	}
}

// ContactInstruction tells recipients what the user wants them to do.
// The stored form is the human label, which is also what goes into the alert body.
type ContactInstruction string

const (
	InstructionCallMeFirst         ContactInstruction = "Call me first"
	InstructionSendHelpImmediately ContactInstruction = "Send help immediately"
)

func (i ContactInstruction) Valid() bool {
	return i == InstructionCallMeFirst || i == InstructionSendHelpImmediately
}

// ParseContactInstruction accepts either the label or the short enum name.
func ParseContactInstruction(s string) (ContactInstruction, bool) {
	switch s {
	case string(InstructionCallMeFirst), "CallMeFirst", "CALL_ME_FIRST":
		return InstructionCallMeFirst, true
	case string(InstructionSendHelpImmediately), "SendHelpImmediately", "SEND_HELP_IMMEDIATELY":
		return InstructionSendHelpImmediately, true
	}
	return "", false
}

// Profile defaults used when the store holds nothing usable.
const (
	DefaultCustomMessage          = "Overdose suspected."
	DefaultContactInstruction     = InstructionCallMeFirst
	DefaultSessionDurationMinutes = 20.0
)

// Request payloads

// ContactInput is a contact as submitted by a client; the id is optional.
type ContactInput struct {
	ID       string `json:"id" validate:"max=64"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Phone    string `json:"phone" validate:"required,phone"`
	Relation string `json:"relation" validate:"max=50"`
}

type SetContactsRequest struct {
	Contacts []ContactInput `json:"contacts" validate:"dive"`
}

func (r SetContactsRequest) ToContacts() []EmergencyContact {
	contacts := make([]EmergencyContact, 0, len(r.Contacts))
	for _, c := range r.Contacts {
		contacts = append(contacts, EmergencyContact{
			ID:       c.ID,
			Name:     c.Name,
			Phone:    c.Phone,
			Relation: c.Relation,
		})
	}
	return contacts
}

type AddContactRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Phone    string `json:"phone" validate:"required,phone"`
	Relation string `json:"relation" validate:"max=50"`
}

type SetMessageRequest struct {
	Message string `json:"message" validate:"required,max=500"`
}

type SetInstructionRequest struct {
	Instruction string `json:"instruction" validate:"required,contact_instruction"`
}

type SetDurationRequest struct {
	Minutes float64 `json:"minutes" validate:"required,gt=0,lte=1440"`
}

// Profile is every stored preference of a device in one view.
type Profile struct {
	Contacts               []EmergencyContact `json:"contacts"`
	Plan                   EscalationPlan     `json:"plan"`
	CustomMessage          string             `json:"customMessage"`
	ContactInstruction     ContactInstruction `json:"contactInstruction"`
	DefaultDurationMinutes float64            `json:"defaultDurationMinutes"`
}
