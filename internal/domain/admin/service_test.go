package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	settings  *Settings
	locations map[uuid.UUID]*Location
	users     map[uuid.UUID]*User
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		locations: make(map[uuid.UUID]*Location),
		users:     make(map[uuid.UUID]*User),
	}
}

func (m *mockRepo) GetSettings(context.Context) (*Settings, error) {
	if m.settings == nil {
		return nil, errors.New("not found")
	}
	cp := *m.settings
	return &cp, nil
}

func (m *mockRepo) UpsertSettings(_ context.Context, s *Settings) error {
	cp := *s
	m.settings = &cp
	return nil
}

func (m *mockRepo) CreateLocation(_ context.Context, l *Location) error {
	l.ID = uuid.New()
	cp := *l
	m.locations[l.ID] = &cp
	return nil
}

func (m *mockRepo) GetLocation(_ context.Context, id uuid.UUID) (*Location, error) {
	l, ok := m.locations[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *l
	return &cp, nil
}

func (m *mockRepo) UpdateLocation(_ context.Context, l *Location) error {
	if _, ok := m.locations[l.ID]; !ok {
		return errors.New("not found")
	}
	cp := *l
	m.locations[l.ID] = &cp
	return nil
}

func (m *mockRepo) DeleteLocation(_ context.Context, id uuid.UUID) error {
	delete(m.locations, id)
	return nil
}

func (m *mockRepo) ListLocations(context.Context) ([]*Location, error) {
	var items []*Location
	for _, l := range m.locations {
		items = append(items, l)
	}
	return items, nil
}

func (m *mockRepo) CreateUser(_ context.Context, u *User) error {
	u.ID = uuid.New()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockRepo) GetUser(_ context.Context, id uuid.UUID) (*User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *u
	return &cp, nil
}

func (m *mockRepo) GetUserByEmail(_ context.Context, email string) (*User, error) {
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errors.New("not found")
}

func (m *mockRepo) UpdateUser(_ context.Context, u *User) error {
	if _, ok := m.users[u.ID]; !ok {
		return errors.New("not found")
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockRepo) ListUsers(_ context.Context, _, _ int) ([]*User, int, error) {
	var items []*User
	for _, u := range m.users {
		items = append(items, u)
	}
	return items, len(items), nil
}

func validSettings() *Settings {
	return &Settings{
		PracticeName:       "Lakeside Family Practice",
		AddressLine1:       "200 Main St",
		City:               "Madison",
		State:              "WI",
		PostalCode:         "53703",
		Phone:              "608-555-0100",
		DefaultApptMinutes: 30,
		NoShowFee:          25,
		ReminderHours:      24,
	}
}

func TestSaveSettingsValidation(t *testing.T) {
	svc := NewService(newMockRepo(), zerolog.Nop())
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"missing name", func(s *Settings) { s.PracticeName = "" }},
		{"zero duration", func(s *Settings) { s.DefaultApptMinutes = 0 }},
		{"excessive duration", func(s *Settings) { s.DefaultApptMinutes = 500 }},
		{"negative fee", func(s *Settings) { s.NoShowFee = -5 }},
		{"zero reminder window", func(s *Settings) { s.ReminderHours = 0 }},
		{"reminder window over a week", func(s *Settings) { s.ReminderHours = 200 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := validSettings()
			tc.mutate(s)
			if err := svc.SaveSettings(ctx, s); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSaveSettingsUpserts(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, zerolog.Nop())
	ctx := context.Background()

	if err := svc.SaveSettings(ctx, validSettings()); err != nil {
		t.Fatal(err)
	}
	second := validSettings()
	second.NoShowFee = 50
	if err := svc.SaveSettings(ctx, second); err != nil {
		t.Fatal(err)
	}
	got, err := svc.GetSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.NoShowFee != 50 {
		t.Errorf("no_show_fee = %v, want 50", got.NoShowFee)
	}
}

func TestLocationLifecycle(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, zerolog.Nop())
	ctx := context.Background()

	l := &Location{Name: "Downtown", Address: "10 State St", Phone: "608-555-0101"}
	if err := svc.CreateLocation(ctx, l); err != nil {
		t.Fatal(err)
	}
	if !l.Active {
		t.Error("new location should be active")
	}

	l.Name = "Downtown Clinic"
	if err := svc.UpdateLocation(ctx, l); err != nil {
		t.Fatal(err)
	}
	got, _ := svc.GetLocation(ctx, l.ID)
	if got.Name != "Downtown Clinic" {
		t.Errorf("name = %q", got.Name)
	}

	if err := svc.DeleteLocation(ctx, l.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GetLocation(ctx, l.ID); err == nil {
		t.Error("expected error after delete")
	}
}

func TestCreateLocationRequiresFields(t *testing.T) {
	svc := NewService(newMockRepo(), zerolog.Nop())
	if err := svc.CreateLocation(context.Background(), &Location{Name: "No Address"}); err == nil {
		t.Error("expected error")
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc := NewService(newMockRepo(), zerolog.Nop())
	ctx := context.Background()

	cases := []struct {
		name string
		user User
	}{
		{"bad email", User{Email: "not-an-email", Name: "A", Roles: []string{"admin"}}},
		{"missing name", User{Email: "a@b.com", Roles: []string{"admin"}}},
		{"no roles", User{Email: "a@b.com", Name: "A"}},
		{"unknown role", User{Email: "a@b.com", Name: "A", Roles: []string{"superuser"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.CreateUser(ctx, &tc.user); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	svc := NewService(newMockRepo(), zerolog.Nop())
	ctx := context.Background()

	u := &User{Email: "lee@example.com", Name: "Lee", Roles: []string{"clinician"}}
	if err := svc.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	dup := &User{Email: "lee@example.com", Name: "Other Lee", Roles: []string{"billing"}}
	if err := svc.CreateUser(ctx, dup); !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestDeactivateUserKeepsRecord(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, zerolog.Nop())
	ctx := context.Background()

	u := &User{Email: "kim@example.com", Name: "Kim", Roles: []string{"front-desk"}}
	if err := svc.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	got, err := svc.DeactivateUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Active {
		t.Error("user still active")
	}
	if _, err := svc.GetUser(ctx, u.ID); err != nil {
		t.Error("deactivated user should remain readable")
	}
}
