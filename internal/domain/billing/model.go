package billing

import (
	"time"

	"github.com/google/uuid"
)

// Claim statuses. Settled, rejected and cancelled are terminal.
const (
	StatusDraft             = "draft"
	StatusSubmitted         = "submitted"
	StatusInReview          = "in_review"
	StatusRejected          = "rejected"
	StatusApproved          = "approved"
	StatusPartiallyApproved = "partially_approved"
	StatusDenied            = "denied"
	StatusAppealed          = "appealed"
	StatusSettled           = "settled"
	StatusCancelled         = "cancelled"
)

type Claim struct {
	ID            uuid.UUID  `json:"id"`
	ClaimNumber   string     `json:"claim_number"`
	PatientID     uuid.UUID  `json:"patient_id"`
	ProviderID    uuid.UUID  `json:"provider_id"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Payer         string     `json:"payer"`
	Status        string     `json:"status"`
	ServiceDate   time.Time  `json:"service_date"`

	// BilledAmount is always the sum of the claim's lines. AllowedAmount
	// and PaidAmount are set during adjudication and payment posting;
	// PatientResponsibility is derived, never stored independently.
	BilledAmount          float64 `json:"billed_amount"`
	AllowedAmount         float64 `json:"allowed_amount"`
	PaidAmount            float64 `json:"paid_amount"`
	PatientResponsibility float64 `json:"patient_responsibility"`

	ExternalID   *string    `json:"external_id,omitempty"`
	DenialReason *string    `json:"denial_reason,omitempty"`
	AppealReason *string    `json:"appeal_reason,omitempty"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	SettledAt    *time.Time `json:"settled_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the claim has reached a final state.
func (c *Claim) IsTerminal() bool {
	switch c.Status {
	case StatusSettled, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

type ClaimLine struct {
	ID          uuid.UUID `json:"id"`
	ClaimID     uuid.UUID `json:"claim_id"`
	Sequence    int       `json:"sequence"`
	CPTCode     string    `json:"cpt_code"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	Amount      float64   `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

type Payment struct {
	ID        uuid.UUID `json:"id"`
	ClaimID   uuid.UUID `json:"claim_id"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Reference *string   `json:"reference,omitempty"`
	PostedAt  time.Time `json:"posted_at"`
}
