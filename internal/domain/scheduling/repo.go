package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Appointment, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)

	// ListByProviderRange returns a provider's appointments starting
	// inside [from, to), ordered by start time.
	ListByProviderRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*Appointment, error)

	// CountOverlapping returns how many non-terminal appointments for the
	// provider intersect the window, excluding the given appointment id.
	CountOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time, exclude uuid.UUID) (int, error)

	// DueForReminder returns confirmed or scheduled appointments starting
	// within the window that have not had a reminder sent.
	DueForReminder(ctx context.Context, window time.Duration) ([]*Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}
