package patient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDeceased          = errors.New("patient record is closed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

var validGenders = map[string]bool{
	"female": true, "male": true, "other": true, "unknown": true,
}

// statusTransitions defines the allowed patient status changes.
// Deceased has no outgoing edges.
var statusTransitions = map[string][]string{
	StatusActive:   {StatusInactive, StatusDeceased},
	StatusInactive: {StatusActive, StatusDeceased},
	StatusDeceased: {},
}

func canTransition(from, to string) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// FormatMRN renders a sequence value as a medical record number.
func FormatMRN(seq int64) string {
	return fmt.Sprintf("P-%08d", seq)
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if p.DateOfBirth.IsZero() {
		return fmt.Errorf("date_of_birth is required")
	}
	if p.DateOfBirth.After(time.Now()) {
		return fmt.Errorf("date_of_birth cannot be in the future")
	}
	if p.Gender == "" {
		p.Gender = "unknown"
	}
	if !validGenders[p.Gender] {
		return fmt.Errorf("invalid gender: %s", p.Gender)
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	if p.Status != StatusActive && p.Status != StatusInactive {
		return fmt.Errorf("new patients must be active or inactive, got %s", p.Status)
	}

	seq, err := s.repo.NextMRNSeq(ctx)
	if err != nil {
		return fmt.Errorf("allocating mrn: %w", err)
	}
	p.MRN = FormatMRN(seq)
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return s.repo.GetByMRN(ctx, mrn)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if existing.Status == StatusDeceased {
		return ErrDeceased
	}
	if p.Status != "" && p.Status != existing.Status {
		if !canTransition(existing.Status, p.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, existing.Status, p.Status)
		}
	} else {
		p.Status = existing.Status
	}
	if p.Gender != "" && !validGenders[p.Gender] {
		return fmt.Errorf("invalid gender: %s", p.Gender)
	}
	// MRN and deceased timestamp never change through a plain update.
	p.MRN = existing.MRN
	p.DeceasedAt = existing.DeceasedAt
	return s.repo.Update(ctx, p)
}

// MarkDeceased closes the record. The patient can no longer be scheduled,
// billed, or referred once this runs.
func (s *Service) MarkDeceased(ctx context.Context, id uuid.UUID, at time.Time) error {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if p.Status == StatusDeceased {
		return ErrDeceased
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	p.Status = StatusDeceased
	p.DeceasedAt = &at
	return s.repo.Update(ctx, p)
}

// IsActive reports whether the patient can take part in new clinical or
// financial activity. Other services use this as their admission gate.
func (s *Service) IsActive(ctx context.Context, id uuid.UUID) (bool, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return p.Status == StatusActive, nil
}

func (s *Service) List(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, params, sort, limit, offset)
}

func (s *Service) AddPolicy(ctx context.Context, pol *InsurancePolicy) error {
	if pol.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if pol.Payer == "" || pol.MemberID == "" {
		return fmt.Errorf("payer and member_id are required")
	}
	if pol.Rank < 1 {
		pol.Rank = 1
	}
	if pol.EffectiveFrom.IsZero() {
		pol.EffectiveFrom = time.Now().UTC()
	}
	if pol.EffectiveTo != nil && pol.EffectiveTo.Before(pol.EffectiveFrom) {
		return fmt.Errorf("effective_to precedes effective_from")
	}

	p, err := s.repo.GetByID(ctx, pol.PatientID)
	if err != nil {
		return err
	}
	if p.Status == StatusDeceased {
		return ErrDeceased
	}

	existing, err := s.repo.GetPolicies(ctx, pol.PatientID)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if e.Rank == pol.Rank && e.ActiveOn(pol.EffectiveFrom) {
			return fmt.Errorf("patient already has an active rank %d policy", pol.Rank)
		}
	}
	return s.repo.AddPolicy(ctx, pol)
}

func (s *Service) GetPolicies(ctx context.Context, patientID uuid.UUID) ([]*InsurancePolicy, error) {
	return s.repo.GetPolicies(ctx, patientID)
}

// ReorderPolicies reassigns coverage ranks. The order slice must name
// every policy the patient holds exactly once; position determines rank.
func (s *Service) ReorderPolicies(ctx context.Context, patientID uuid.UUID, order []uuid.UUID) error {
	existing, err := s.repo.GetPolicies(ctx, patientID)
	if err != nil {
		return err
	}
	if len(order) != len(existing) {
		return fmt.Errorf("order lists %d policies, patient has %d", len(order), len(existing))
	}
	known := make(map[uuid.UUID]bool, len(existing))
	for _, p := range existing {
		known[p.ID] = true
	}
	seen := make(map[uuid.UUID]bool, len(order))
	for _, id := range order {
		if !known[id] {
			return fmt.Errorf("policy %s does not belong to patient %s", id, patientID)
		}
		if seen[id] {
			return fmt.Errorf("policy %s listed twice", id)
		}
		seen[id] = true
	}
	for i, id := range order {
		if err := s.repo.UpdatePolicyRank(ctx, patientID, id, i+1); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) DeletePolicy(ctx context.Context, patientID, policyID uuid.UUID) error {
	return s.repo.DeletePolicy(ctx, patientID, policyID)
}
