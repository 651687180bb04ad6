package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practicehq/practice/internal/platform/db"
	"github.com/practicehq/practice/internal/platform/notify"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminal          = errors.New("appointment is in a terminal state")
	ErrOverlap           = errors.New("provider already booked for this time")
	ErrPatientInactive   = errors.New("patient is not active")
	ErrProviderInactive  = errors.New("provider is not active")
)

// statusTransitions is the appointment lifecycle graph. Anything not
// listed here is rejected.
var statusTransitions = map[string][]string{
	StatusScheduled:  {StatusConfirmed, StatusCancelled, StatusRescheduled},
	StatusConfirmed:  {StatusCheckedIn, StatusCancelled, StatusNoShow, StatusRescheduled},
	StatusCheckedIn:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func canTransition(from, to string) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var validVisitTypes = map[string]bool{
	VisitOfficeVisit: true,
	VisitTelehealth:  true,
	VisitFollowUp:    true,
	VisitProcedure:   true,
	VisitLabWork:     true,
}

// PatientGate answers whether a patient may take on new activity.
type PatientGate interface {
	IsActive(ctx context.Context, id uuid.UUID) (bool, error)
}

// ProviderGate answers whether a provider can be booked.
type ProviderGate interface {
	IsActive(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo       Repository
	patients   PatientGate
	providers  ProviderGate
	runTx      db.TxFunc
	dispatcher *notify.Dispatcher
	log        zerolog.Logger
}

func NewService(repo Repository, patients PatientGate, providers ProviderGate, runTx db.TxFunc, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		patients:  patients,
		providers: providers,
		runTx:     runTx,
		log:       log.With().Str("component", "scheduling").Logger(),
	}
}

// SetDispatcher attaches the notification dispatcher used for reminders.
func (s *Service) SetDispatcher(d *notify.Dispatcher) {
	s.dispatcher = d
}

// Create books an appointment. allowOverlap lets front desk overbook a
// provider's slot deliberately; without it a same-provider overlap is
// rejected.
func (s *Service) Create(ctx context.Context, a *Appointment, allowOverlap bool) error {
	if a.PatientID == uuid.Nil || a.ProviderID == uuid.Nil {
		return fmt.Errorf("patient_id and provider_id are required")
	}
	if a.Reason == "" {
		return fmt.Errorf("reason is required")
	}
	if a.StartTime.IsZero() || a.EndTime.IsZero() {
		return fmt.Errorf("start_time and end_time are required")
	}
	if !a.EndTime.After(a.StartTime) {
		return fmt.Errorf("end_time must be after start_time")
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.Status != StatusScheduled {
		return fmt.Errorf("new appointments start as scheduled, got %s", a.Status)
	}
	if a.VisitType == "" {
		a.VisitType = VisitOfficeVisit
	}
	if !validVisitTypes[a.VisitType] {
		return fmt.Errorf("invalid visit_type: %s", a.VisitType)
	}

	active, err := s.patients.IsActive(ctx, a.PatientID)
	if err != nil {
		return fmt.Errorf("checking patient: %w", err)
	}
	if !active {
		return ErrPatientInactive
	}
	active, err = s.providers.IsActive(ctx, a.ProviderID)
	if err != nil {
		return fmt.Errorf("checking provider: %w", err)
	}
	if !active {
		return ErrProviderInactive
	}

	if !allowOverlap {
		overlapping, err := s.repo.CountOverlapping(ctx, a.ProviderID, a.StartTime, a.EndTime, uuid.Nil)
		if err != nil {
			return err
		}
		if overlapping > 0 {
			return ErrOverlap
		}
	}
	return s.repo.Create(ctx, a)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.List(ctx, params, sort, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Booking reports who an appointment is booked for and with. Other
// services use this to validate appointment references they are handed.
func (s *Service) Booking(ctx context.Context, id uuid.UUID) (uuid.UUID, uuid.UUID, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return a.PatientID, a.ProviderID, nil
}

// Calendar returns a provider's appointments for one day, earliest
// first.
func (s *Service) Calendar(ctx context.Context, providerID uuid.UUID, day time.Time) ([]*Appointment, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	return s.repo.ListByProviderRange(ctx, providerID, start, start.AddDate(0, 0, 1))
}

// Transition moves the appointment to a new status, enforcing the
// lifecycle graph. Cancellations require a reason.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to string, reason string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminal, a.Status)
	}
	if !canTransition(a.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}
	if to == StatusCancelled {
		if reason == "" {
			return nil, fmt.Errorf("cancellation requires a reason")
		}
		a.CancelReason = &reason
	}
	a.Status = to
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Reschedule closes the current appointment and books a replacement in
// one transaction. The original keeps a link to its successor.
// allowOverlap carries the same overbooking meaning as in Create.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newStart, newEnd time.Time, allowOverlap bool) (*Appointment, error) {
	if !newEnd.After(newStart) {
		return nil, fmt.Errorf("end_time must be after start_time")
	}

	var replacement *Appointment
	err := s.runTx(ctx, func(ctx context.Context) error {
		a, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if a.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrTerminal, a.Status)
		}
		if !canTransition(a.Status, StatusRescheduled) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, StatusRescheduled)
		}

		if !allowOverlap {
			overlapping, err := s.repo.CountOverlapping(ctx, a.ProviderID, newStart, newEnd, a.ID)
			if err != nil {
				return err
			}
			if overlapping > 0 {
				return ErrOverlap
			}
		}

		replacement = &Appointment{
			PatientID:  a.PatientID,
			ProviderID: a.ProviderID,
			LocationID: a.LocationID,
			VisitType:  a.VisitType,
			Status:     StatusScheduled,
			Reason:     a.Reason,
			StartTime:  newStart,
			EndTime:    newEnd,
			Notes:      a.Notes,
		}
		if err := s.repo.Create(ctx, replacement); err != nil {
			return err
		}

		a.Status = StatusRescheduled
		a.RescheduledTo = &replacement.ID
		return s.repo.Update(ctx, a)
	})
	if err != nil {
		return nil, err
	}
	return replacement, nil
}

// SendReminders dispatches reminders for appointments starting within the
// window. Called periodically from the server loop.
func (s *Service) SendReminders(ctx context.Context, window time.Duration, recipientFor func(context.Context, uuid.UUID) (string, error)) error {
	if s.dispatcher == nil {
		return nil
	}
	due, err := s.repo.DueForReminder(ctx, window)
	if err != nil {
		return err
	}
	for _, a := range due {
		recipient, err := recipientFor(ctx, a.PatientID)
		if err != nil || recipient == "" {
			continue
		}
		err = s.dispatcher.Dispatch(ctx, notify.ChannelEmail, recipient, "appointment-reminder", map[string]string{
			"Time":   a.StartTime.Format("Mon Jan 2 15:04"),
			"Reason": a.Reason,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("appointment", a.ID.String()).Msg("reminder dispatch failed")
			continue
		}
		if err := s.repo.MarkReminderSent(ctx, a.ID, time.Now().UTC()); err != nil {
			s.log.Error().Err(err).Str("appointment", a.ID.String()).Msg("marking reminder sent failed")
		}
	}
	return nil
}
