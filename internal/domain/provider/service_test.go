package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type mockRepo struct {
	providers map[uuid.UUID]*Provider
}

func newMockRepo() *mockRepo {
	return &mockRepo{providers: make(map[uuid.UUID]*Provider)}
}

func (m *mockRepo) Create(_ context.Context, p *Provider) error {
	p.ID = uuid.New()
	cp := *p
	m.providers[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	p, ok := m.providers[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByNPI(_ context.Context, npi string) (*Provider, error) {
	for _, p := range m.providers {
		if p.NPI == npi {
			cp := *p
			return &cp, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *mockRepo) Update(_ context.Context, p *Provider) error {
	if _, ok := m.providers[p.ID]; !ok {
		return errors.New("not found")
	}
	cp := *p
	m.providers[p.ID] = &cp
	return nil
}

func (m *mockRepo) List(_ context.Context, _ map[string]string, _ string, _, _ int) ([]*Provider, int, error) {
	var items []*Provider
	for _, p := range m.providers {
		items = append(items, p)
	}
	return items, len(items), nil
}

func newTestProvider() *Provider {
	return &Provider{
		NPI:                "1234567893",
		FirstName:          "Maya",
		LastName:           "Okafor",
		Specialty:          "cardiology",
		AcceptingReferrals: true,
	}
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	p := newTestProvider()
	p.NPI = "12345"
	if err := svc.Create(ctx, p); err == nil {
		t.Error("expected error for short npi")
	}

	p = newTestProvider()
	p.Specialty = ""
	if err := svc.Create(ctx, p); err == nil {
		t.Error("expected error for missing specialty")
	}

	p = newTestProvider()
	if err := svc.Create(ctx, p); err != nil {
		t.Fatalf("valid provider rejected: %v", err)
	}
	if p.Status != StatusActive {
		t.Errorf("status = %q, want active", p.Status)
	}
}

func TestCreateRejectsDuplicateNPI(t *testing.T) {
	svc := NewService(newMockRepo())
	ctx := context.Background()

	if err := svc.Create(ctx, newTestProvider()); err != nil {
		t.Fatal(err)
	}
	if err := svc.Create(ctx, newTestProvider()); err == nil {
		t.Error("expected error for duplicate npi")
	}
}

func TestDeactivationClosesIntake(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p := newTestProvider()
	p.AcceptingPatients = true
	if err := svc.Create(ctx, p); err != nil {
		t.Fatal(err)
	}

	p.Status = StatusInactive
	if err := svc.Update(ctx, p); err != nil {
		t.Fatal(err)
	}
	stored, _ := repo.GetByID(ctx, p.ID)
	if stored.AcceptingPatients || stored.AcceptingReferrals {
		t.Error("inactive provider should not accept patients or referrals")
	}
}

func TestCanReceiveReferrals(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo)
	ctx := context.Background()

	p := newTestProvider()
	if err := svc.Create(ctx, p); err != nil {
		t.Fatal(err)
	}
	ok, err := svc.CanReceiveReferrals(ctx, p.ID)
	if err != nil || !ok {
		t.Errorf("CanReceiveReferrals = (%v, %v), want (true, nil)", ok, err)
	}

	p.AcceptingReferrals = false
	if err := svc.Update(ctx, p); err != nil {
		t.Fatal(err)
	}
	ok, _ = svc.CanReceiveReferrals(ctx, p.ID)
	if ok {
		t.Error("provider with referrals closed should not receive referrals")
	}
}

func TestFullName(t *testing.T) {
	cred := "MD"
	p := &Provider{FirstName: "Maya", LastName: "Okafor", Credentials: &cred}
	if got := p.FullName(); got != "Maya Okafor, MD" {
		t.Errorf("FullName = %q", got)
	}
	p.Credentials = nil
	if got := p.FullName(); got != "Maya Okafor" {
		t.Errorf("FullName without credentials = %q", got)
	}
}
