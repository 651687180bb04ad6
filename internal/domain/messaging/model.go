package messaging

import (
	"time"

	"github.com/google/uuid"
)

// Message statuses. Failed, bounced, read and cancelled are terminal.
const (
	StatusDraft     = "draft"
	StatusQueued    = "queued"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
	StatusBounced   = "bounced"
	StatusCancelled = "cancelled"
)

// Thread groups messages on a single subject, optionally tied to a patient.
type Thread struct {
	ID        uuid.UUID  `json:"id"`
	Subject   string     `json:"subject"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}

type Message struct {
	ID          uuid.UUID  `json:"id"`
	ThreadID    uuid.UUID  `json:"thread_id"`
	Sender      string     `json:"sender"`
	Recipient   string     `json:"recipient"`
	Channel     string     `json:"channel"`
	Body        string     `json:"body"`
	Status      string     `json:"status"`
	FailReason  *string    `json:"fail_reason,omitempty"`
	QueuedAt    *time.Time `json:"queued_at,omitempty"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the message can no longer change state.
func (m *Message) IsTerminal() bool {
	switch m.Status {
	case StatusRead, StatusFailed, StatusBounced, StatusCancelled:
		return true
	}
	return false
}
