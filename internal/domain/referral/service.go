package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practicehq/practice/internal/platform/gateway"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminal          = errors.New("referral is in a terminal state")
	ErrPatientInactive   = errors.New("patient is not active")
	ErrProviderClosed    = errors.New("receiving provider is not accepting referrals")
	ErrAppointmentWrong  = errors.New("appointment does not match the referral")
)

var validUrgencies = map[string]bool{
	UrgencyRoutine: true, UrgencyUrgent: true, UrgencyStat: true,
}

// statusTransitions is the referral lifecycle graph.
var statusTransitions = map[string][]string{
	StatusPending:   {StatusSent, StatusCancelled},
	StatusSent:      {StatusAccepted, StatusDeclined, StatusCancelled},
	StatusAccepted:  {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusCompleted, StatusCancelled},
}

func canTransition(from, to string) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PatientGate answers whether a patient may take on new activity.
type PatientGate interface {
	IsActive(ctx context.Context, id uuid.UUID) (bool, error)
}

// ProviderGate answers whether the receiving provider takes referrals.
type ProviderGate interface {
	CanReceiveReferrals(ctx context.Context, id uuid.UUID) (bool, error)
}

// Transmitter forwards referrals to the receiving provider's network.
type Transmitter interface {
	TransmitReferral(ctx context.Context, tr gateway.ReferralTransmission) (*gateway.ReferralAck, error)
}

// AppointmentGate resolves an appointment to the patient and provider
// it was booked for.
type AppointmentGate interface {
	Booking(ctx context.Context, id uuid.UUID) (patientID, providerID uuid.UUID, err error)
}

type Service struct {
	repo         Repository
	patients     PatientGate
	providers    ProviderGate
	appointments AppointmentGate
	transmitter  Transmitter
	log          zerolog.Logger
}

func NewService(repo Repository, patients PatientGate, providers ProviderGate, transmitter Transmitter, log zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		patients:    patients,
		providers:   providers,
		transmitter: transmitter,
		log:         log.With().Str("component", "referral").Logger(),
	}
}

// SetAppointmentGate attaches the scheduling lookup used to validate
// appointments before a referral is marked scheduled.
func (s *Service) SetAppointmentGate(g AppointmentGate) {
	s.appointments = g
}

func (s *Service) Create(ctx context.Context, r *Referral) error {
	if r.PatientID == uuid.Nil || r.FromProviderID == uuid.Nil || r.ToProviderID == uuid.Nil {
		return fmt.Errorf("patient_id, from_provider_id and to_provider_id are required")
	}
	if r.FromProviderID == r.ToProviderID {
		return fmt.Errorf("referral cannot point back at the referring provider")
	}
	if r.Specialty == "" || r.Reason == "" {
		return fmt.Errorf("specialty and reason are required")
	}
	if r.Urgency == "" {
		r.Urgency = UrgencyRoutine
	}
	if !validUrgencies[r.Urgency] {
		return fmt.Errorf("invalid urgency: %s", r.Urgency)
	}
	r.Status = StatusPending

	active, err := s.patients.IsActive(ctx, r.PatientID)
	if err != nil {
		return fmt.Errorf("checking patient: %w", err)
	}
	if !active {
		return ErrPatientInactive
	}
	open, err := s.providers.CanReceiveReferrals(ctx, r.ToProviderID)
	if err != nil {
		return fmt.Errorf("checking receiving provider: %w", err)
	}
	if !open {
		return ErrProviderClosed
	}
	return s.repo.Create(ctx, r)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Referral, int, error) {
	return s.repo.List(ctx, params, sort, limit, offset)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Referral, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Send transmits a pending referral through the gateway and marks it sent.
func (s *Service) Send(ctx context.Context, id uuid.UUID, fromNPI, toNPI string) (*Referral, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(r.Status, StatusSent) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusSent)
	}

	ack, err := s.transmitter.TransmitReferral(ctx, gateway.ReferralTransmission{
		ReferralID:   r.ID.String(),
		FromNPI:      fromNPI,
		ToNPI:        toNPI,
		Specialty:    r.Specialty,
		Reason:       r.Reason,
		UrgencyLevel: r.Urgency,
	})
	if err != nil {
		return nil, fmt.Errorf("transmitting referral: %w", err)
	}

	now := time.Now().UTC()
	r.Status = StatusSent
	r.SentAt = &now
	r.ExternalID = &ack.ExternalID
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	s.log.Info().Str("referral", r.ID.String()).Str("external_id", ack.ExternalID).Msg("referral sent")
	return r, nil
}

// Accept records the receiving provider taking the referral.
func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.transition(ctx, id, StatusAccepted)
}

// Decline records a refusal. A reason is mandatory.
func (s *Service) Decline(ctx context.Context, id uuid.UUID, reason string) (*Referral, error) {
	if reason == "" {
		return nil, fmt.Errorf("decline requires a reason")
	}
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminal, r.Status)
	}
	if !canTransition(r.Status, StatusDeclined) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusDeclined)
	}
	r.Status = StatusDeclined
	r.DeclineReason = &reason
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Schedule binds the referral to the appointment booked for it. The
// appointment must exist and be booked for the referral's patient with
// the receiving provider.
func (s *Service) Schedule(ctx context.Context, id, appointmentID uuid.UUID) (*Referral, error) {
	if appointmentID == uuid.Nil {
		return nil, fmt.Errorf("appointment_id is required")
	}
	if s.appointments == nil {
		return nil, fmt.Errorf("appointment lookup is not configured")
	}
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminal, r.Status)
	}
	if !canTransition(r.Status, StatusScheduled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, StatusScheduled)
	}
	patientID, providerID, err := s.appointments.Booking(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("looking up appointment: %w", err)
	}
	if patientID != r.PatientID {
		return nil, fmt.Errorf("%w: booked for a different patient", ErrAppointmentWrong)
	}
	if providerID != r.ToProviderID {
		return nil, fmt.Errorf("%w: booked with a different provider", ErrAppointmentWrong)
	}
	r.Status = StatusScheduled
	r.AppointmentID = &appointmentID
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Complete closes the referral after the visit took place.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.transition(ctx, id, StatusCompleted)
}

// Cancel withdraws the referral at any pre-completion stage.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return s.transition(ctx, id, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to string) (*Referral, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminal, r.Status)
	}
	if !canTransition(r.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, to)
	}
	r.Status = to
	if err := s.repo.Update(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}
