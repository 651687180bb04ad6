package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses. Completed, cancelled, no_show and rescheduled
// are terminal.
const (
	StatusScheduled   = "scheduled"
	StatusConfirmed   = "confirmed"
	StatusCheckedIn   = "checked_in"
	StatusInProgress  = "in_progress"
	StatusCompleted   = "completed"
	StatusCancelled   = "cancelled"
	StatusNoShow      = "no_show"
	StatusRescheduled = "rescheduled"
)

// Visit types offered by the practice.
const (
	VisitOfficeVisit = "office_visit"
	VisitTelehealth  = "telehealth"
	VisitFollowUp    = "follow_up"
	VisitProcedure   = "procedure"
	VisitLabWork     = "lab_work"
)

type Appointment struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	ProviderID     uuid.UUID  `json:"provider_id"`
	LocationID     *uuid.UUID `json:"location_id,omitempty"`
	VisitType      string     `json:"visit_type"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	Notes          *string    `json:"notes,omitempty"`
	CancelReason   *string    `json:"cancel_reason,omitempty"`
	RescheduledTo  *uuid.UUID `json:"rescheduled_to,omitempty"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Duration returns the booked length of the visit.
func (a *Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// IsTerminal reports whether the appointment has reached a final state.
func (a *Appointment) IsTerminal() bool {
	switch a.Status {
	case StatusCompleted, StatusCancelled, StatusNoShow, StatusRescheduled:
		return true
	}
	return false
}
