package admin

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetSettings(ctx context.Context) (*Settings, error)
	UpsertSettings(ctx context.Context, s *Settings) error

	CreateLocation(ctx context.Context, l *Location) error
	GetLocation(ctx context.Context, id uuid.UUID) (*Location, error)
	UpdateLocation(ctx context.Context, l *Location) error
	DeleteLocation(ctx context.Context, id uuid.UUID) error
	ListLocations(ctx context.Context) ([]*Location, error)

	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUser(ctx context.Context, u *User) error
	ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error)
}
