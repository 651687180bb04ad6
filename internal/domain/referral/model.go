package referral

import (
	"time"

	"github.com/google/uuid"
)

// Referral statuses. Declined, completed and cancelled are terminal.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusAccepted  = "accepted"
	StatusDeclined  = "declined"
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Urgency levels.
const (
	UrgencyRoutine = "routine"
	UrgencyUrgent  = "urgent"
	UrgencyStat    = "stat"
)

type Referral struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	FromProviderID uuid.UUID  `json:"from_provider_id"`
	ToProviderID   uuid.UUID  `json:"to_provider_id"`
	Specialty      string     `json:"specialty"`
	Reason         string     `json:"reason"`
	Urgency        string     `json:"urgency"`
	Status         string     `json:"status"`
	DeclineReason  *string    `json:"decline_reason,omitempty"`
	AppointmentID  *uuid.UUID `json:"appointment_id,omitempty"`
	ExternalID     *string    `json:"external_id,omitempty"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsTerminal reports whether the referral has reached a final state.
func (r *Referral) IsTerminal() bool {
	switch r.Status {
	case StatusDeclined, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
