// Package contracts defines the shared value types of the dispatch engine:
// hits coming in from discovery, drafted action envelopes, webform jobs,
// controller capabilities, and the resolved policy view.
//
// Everything here is plain data. Components exchange these types; none of
// them carries behavior beyond validation and status transitions.
package contracts

import (
	"fmt"
	"time"
)

// Channel is a communication path to a controller.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelWebform Channel = "webform"
	ChannelAPI     Channel = "api"
)

// ActionStatus is the lifecycle state of an ActionEnvelope.
//
// Transitions: draft → prepared → sent → {escalate_pending | failed}.
// The only backward-looking move is sent → escalate_pending, taken when the
// webform worker dead-letters the job behind an already-dispatched action.
type ActionStatus string

const (
	ActionDraft           ActionStatus = "draft"
	ActionPrepared        ActionStatus = "prepared"
	ActionSent            ActionStatus = "sent"
	ActionEscalatePending ActionStatus = "escalate_pending"
	ActionFailed          ActionStatus = "failed"
)

// CanTransition reports whether moving from s to next is a legal
// forward transition.
func (s ActionStatus) CanTransition(next ActionStatus) bool {
	switch s {
	case ActionDraft:
		return next == ActionPrepared || next == ActionFailed
	case ActionPrepared:
		return next == ActionSent || next == ActionFailed
	case ActionSent:
		return next == ActionEscalatePending
	case ActionEscalatePending, ActionFailed:
		return false
	}
	return false
}

// IdentityPreview is the redacted identity block carried inside an envelope.
// Raw PII never enters an ActionEnvelope; discovery hands us previews only.
type IdentityPreview struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	City  string `json:"city,omitempty"`
}

// StructuredFields is the machine-readable part of a drafted request.
type StructuredFields struct {
	Action         string   `json:"action"` // "remove" | "correct"
	DataCategories []string `json:"data_categories,omitempty"`
	LegalBasis     string   `json:"legal_basis,omitempty"`
	ReplyToHint    string   `json:"reply_to_hint,omitempty"`
}

// ActionEnvelope is one removal/correction attempt against a controller.
// Envelopes are never deleted; they only move forward through ActionStatus.
type ActionEnvelope struct {
	ID             string           `json:"id"`
	ControllerID   string           `json:"controller_id"`
	ControllerName string           `json:"controller_name,omitempty"`
	Category       string           `json:"category,omitempty"`
	Identity       IdentityPreview  `json:"identity"`
	EvidenceURLs   []string         `json:"evidence_urls,omitempty"`
	Subject        string           `json:"subject"`
	Body           string           `json:"body"`
	Fields         StructuredFields `json:"fields"`
	ReplyChannel   Channel          `json:"reply_channel,omitempty"`
	ReplyPreview   string           `json:"reply_preview,omitempty"`

	Status     ActionStatus `json:"status"`
	Channel    Channel      `json:"channel,omitempty"`     // channel that actually carried the send
	ProviderID string       `json:"provider_id,omitempty"` // transport-side message/ticket id

	ProofHash      string `json:"proof_hash,omitempty"`
	ProofSignature string `json:"proof_signature,omitempty"`
	ProofKeyID     string `json:"proof_key_id,omitempty"`

	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"` // manual follow-up anchor after escalation
}

// Validate checks the fields required before an envelope may enter dispatch.
func (e *ActionEnvelope) Validate() error {
	if e.ControllerID == "" {
		return fmt.Errorf("%w: controller_id is required", ErrInvalidInput)
	}
	if e.Subject == "" && e.Body == "" {
		return fmt.Errorf("%w: envelope has no drafted content", ErrInvalidInput)
	}
	if e.Fields.Action == "" {
		return fmt.Errorf("%w: fields.action is required", ErrInvalidInput)
	}
	return nil
}

// Hit is a candidate exposure produced by the discovery collaborator.
type Hit struct {
	Broker     string          `json:"broker"`
	URL        string          `json:"url"`
	Category   string          `json:"category,omitempty"`
	Confidence float64         `json:"confidence"` // [0,1] match score
	Why        []string        `json:"why,omitempty"`
	Preview    IdentityPreview `json:"preview"`
	Adapter    string          `json:"adapter,omitempty"` // explicit controller tag, optional
	Region     string          `json:"region,omitempty"`
}

// Draft is the opaque content handed over by the draft-generation
// collaborator. The engine length-caps and scrubs it but never rewrites it.
type Draft struct {
	Subject     string           `json:"subject"`
	Body        string           `json:"body"`
	Fields      StructuredFields `json:"fields"`
	Attachments []string         `json:"attachments,omitempty"`
}

// Length caps applied to draft content before storage.
const (
	MaxSubjectLen = 140
	MaxBodyLen    = 1800
	MaxEvidence   = 10
)
