package admin

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practicehq/practice/internal/platform/auth"
)

var ErrDuplicateEmail = errors.New("email already in use")

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var validRoles = map[string]bool{
	auth.RoleAdmin:     true,
	auth.RoleClinician: true,
	auth.RoleFrontDesk: true,
	auth.RoleBilling:   true,
}

type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "admin").Logger(),
	}
}

func (s *Service) GetSettings(ctx context.Context) (*Settings, error) {
	return s.repo.GetSettings(ctx)
}

// SaveSettings validates and upserts the tenant's settings row.
func (s *Service) SaveSettings(ctx context.Context, st *Settings) error {
	if st.PracticeName == "" {
		return fmt.Errorf("practice_name is required")
	}
	if st.DefaultApptMinutes <= 0 || st.DefaultApptMinutes > 480 {
		return fmt.Errorf("default_appt_minutes must be between 1 and 480")
	}
	if st.NoShowFee < 0 || math.IsNaN(st.NoShowFee) {
		return fmt.Errorf("no_show_fee must be a non-negative amount")
	}
	if st.ReminderHours <= 0 || st.ReminderHours > 168 {
		return fmt.Errorf("reminder_hours must be between 1 and 168")
	}
	return s.repo.UpsertSettings(ctx, st)
}

func (s *Service) CreateLocation(ctx context.Context, l *Location) error {
	if l.Name == "" || l.Address == "" {
		return fmt.Errorf("name and address are required")
	}
	l.Active = true
	return s.repo.CreateLocation(ctx, l)
}

func (s *Service) GetLocation(ctx context.Context, id uuid.UUID) (*Location, error) {
	return s.repo.GetLocation(ctx, id)
}

func (s *Service) UpdateLocation(ctx context.Context, l *Location) error {
	if l.Name == "" || l.Address == "" {
		return fmt.Errorf("name and address are required")
	}
	if _, err := s.repo.GetLocation(ctx, l.ID); err != nil {
		return err
	}
	return s.repo.UpdateLocation(ctx, l)
}

func (s *Service) DeleteLocation(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetLocation(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteLocation(ctx, id)
}

func (s *Service) ListLocations(ctx context.Context) ([]*Location, error) {
	return s.repo.ListLocations(ctx)
}

func validateUser(u *User) error {
	if !emailPattern.MatchString(u.Email) {
		return fmt.Errorf("invalid email: %s", u.Email)
	}
	if u.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(u.Roles) == 0 {
		return fmt.Errorf("at least one role is required")
	}
	for _, role := range u.Roles {
		if !validRoles[role] {
			return fmt.Errorf("invalid role: %s", role)
		}
	}
	return nil
}

func (s *Service) CreateUser(ctx context.Context, u *User) error {
	if err := validateUser(u); err != nil {
		return err
	}
	if existing, err := s.repo.GetUserByEmail(ctx, u.Email); err == nil && existing != nil {
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, u.Email)
	}
	u.Active = true
	return s.repo.CreateUser(ctx, u)
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetUser(ctx, id)
}

func (s *Service) UpdateUser(ctx context.Context, u *User) error {
	if err := validateUser(u); err != nil {
		return err
	}
	existing, err := s.repo.GetUser(ctx, u.ID)
	if err != nil {
		return err
	}
	if existing.Email != u.Email {
		if other, err := s.repo.GetUserByEmail(ctx, u.Email); err == nil && other != nil && other.ID != u.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateEmail, u.Email)
		}
	}
	return s.repo.UpdateUser(ctx, u)
}

// DeactivateUser keeps the row for audit history instead of deleting.
func (s *Service) DeactivateUser(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Active = false
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info().Str("user", u.ID.String()).Msg("user deactivated")
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.repo.ListUsers(ctx, limit, offset)
}
