package billing

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	GetByNumber(ctx context.Context, number string) (*Claim, error)
	Update(ctx context.Context, c *Claim) error
	List(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Claim, int, error)
	NextClaimSeq(ctx context.Context) (int64, error)

	AddLine(ctx context.Context, line *ClaimLine) error
	DeleteLine(ctx context.Context, claimID, lineID uuid.UUID) error
	GetLines(ctx context.Context, claimID uuid.UUID) ([]*ClaimLine, error)

	AddPayment(ctx context.Context, p *Payment) error
	GetPayments(ctx context.Context, claimID uuid.UUID) ([]*Payment, error)
}
