package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByMRN(ctx context.Context, mrn string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Patient, int, error)
	NextMRNSeq(ctx context.Context) (int64, error)

	AddPolicy(ctx context.Context, pol *InsurancePolicy) error
	GetPolicies(ctx context.Context, patientID uuid.UUID) ([]*InsurancePolicy, error)
	UpdatePolicyRank(ctx context.Context, patientID, policyID uuid.UUID, rank int) error
	DeletePolicy(ctx context.Context, patientID, policyID uuid.UUID) error
}
