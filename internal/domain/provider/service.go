package provider

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

var npiPattern = regexp.MustCompile(`^\d{10}$`)

var validStatuses = map[string]bool{
	StatusActive: true, StatusInactive: true,
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, p *Provider) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if !npiPattern.MatchString(p.NPI) {
		return fmt.Errorf("npi must be 10 digits")
	}
	if p.Specialty == "" {
		return fmt.Errorf("specialty is required")
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	if !validStatuses[p.Status] {
		return fmt.Errorf("invalid provider status: %s", p.Status)
	}
	if existing, err := s.repo.GetByNPI(ctx, p.NPI); err == nil && existing != nil {
		return fmt.Errorf("npi %s is already registered", p.NPI)
	}
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p *Provider) error {
	existing, err := s.repo.GetByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if p.Status == "" {
		p.Status = existing.Status
	}
	if !validStatuses[p.Status] {
		return fmt.Errorf("invalid provider status: %s", p.Status)
	}
	// An inactive provider cannot hold itself open for new work.
	if p.Status == StatusInactive {
		p.AcceptingPatients = false
		p.AcceptingReferrals = false
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) List(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Provider, int, error) {
	return s.repo.List(ctx, params, sort, limit, offset)
}

// CanReceiveReferrals reports whether the provider is active and open to
// referrals. The referral service uses this as its routing gate.
func (s *Service) CanReceiveReferrals(ctx context.Context, id uuid.UUID) (bool, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return p.Status == StatusActive && p.AcceptingReferrals, nil
}

// IsActive reports whether the provider can be scheduled.
func (s *Service) IsActive(ctx context.Context, id uuid.UUID) (bool, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return p.Status == StatusActive, nil
}
