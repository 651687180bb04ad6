package messaging

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	CreateThread(ctx context.Context, t *Thread) error
	GetThread(ctx context.Context, id uuid.UUID) (*Thread, error)
	ListThreads(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Thread, int, error)

	CreateMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*Message, error)
	UpdateMessage(ctx context.Context, m *Message) error
	ListByThread(ctx context.Context, threadID uuid.UUID, limit, offset int) ([]*Message, int, error)
	ListQueued(ctx context.Context, limit int) ([]*Message, error)
	UnreadCount(ctx context.Context, recipient string) (int, error)
}
