// Package approval sends meeting protocols to the board for approval and
// records the per-recipient responses that arrive through tokenized links.
package approval

import (
	"strings"
	"time"
)

// Status is the state of a single recipient's approval record.
type Status string

const (
	StatusSent     Status = "Sent"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool { return s == StatusApproved || s == StatusRejected }

// Label is the Norwegian display name.
func (s Status) Label() string {
	switch s {
	case StatusApproved:
		return "Godkjent"
	case StatusRejected:
		return "Avvist"
	case StatusSent:
		return "Sendt"
	}
	return string(s)
}

// DocumentStatus is the aggregate approval state stored on the document.
type DocumentStatus string

const (
	DocumentPendingApproval DocumentStatus = "PendingApproval"
	DocumentApproved        DocumentStatus = "Approved"
	DocumentRejected        DocumentStatus = "Rejected"
)

// Action is a recipient's response.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction normalizes raw input; the second result is false for anything else.
func ParseAction(raw string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(raw))); a {
	case ActionApprove, ActionReject:
		return a, true
	}
	return "", false
}

func (a Action) status() Status {
	if a == ActionApprove {
		return StatusApproved
	}
	return StatusRejected
}

// Record is one recipient's row in an approval batch.
type Record struct {
	BatchID     string     `json:"batch_id"`
	DocumentID  string     `json:"document_id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Token       string     `json:"-"`
	SentAt      time.Time  `json:"sent_at"`
	Status      Status     `json:"status"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	Comment     string     `json:"comment,omitempty"`
	DocumentURL string     `json:"document_url"`
}

// Recipient is a board member that receives the approval request.
type Recipient struct {
	Name  string
	Email string
}

// SendRequest asks for a document to be sent for approval.
type SendRequest struct {
	DocumentID  string `validate:"required,max=200"`
	DocumentURL string `validate:"omitempty,url,max=2048"`
}

// SendResult summarizes a created batch. RecipientCount counts records created,
// not emails delivered.
type SendResult struct {
	BatchID        string `json:"batch_id"`
	RecipientCount int    `json:"recipient_count"`
	EmailsFailed   int    `json:"emails_failed"`
}

// CallbackRequest is the query of an approval link.
type CallbackRequest struct {
	BatchID string `validate:"required,max=200"`
	Token   string `validate:"required,max=256"`
	Action  string `validate:"required,approval_action"`
	Comment string `validate:"max=2000"`
}

// Outcome classifies a callback result.
type Outcome string

const (
	OutcomeRecorded         Outcome = "recorded"
	OutcomeInvalidRequest   Outcome = "invalid_request"
	OutcomeInvalidLink      Outcome = "invalid_link"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeExpired          Outcome = "expired"
	OutcomeSuperseded       Outcome = "superseded"
	OutcomeError            Outcome = "error"
)

// Response is the renderable answer to a callback.
type Response struct {
	Outcome   Outcome
	Title     string
	Message   string
	Status    Status
	Aggregate DocumentStatus
}

// BatchStatus is the status view of one batch.
type BatchStatus struct {
	BatchID    string         `json:"batch_id"`
	DocumentID string         `json:"document_id"`
	Aggregate  DocumentStatus `json:"aggregate"`
	Current    bool           `json:"current"`
	Records    []Record       `json:"records"`
}
