package reporting

import "context"

type Repository interface {
	RevenueByMonth(ctx context.Context, p Period) ([]RevenueRow, error)
	ClaimsByStatus(ctx context.Context) ([]StatusRow, error)
	ClaimsAging(ctx context.Context) ([]AgingRow, error)
	PatientGrowth(ctx context.Context, p Period) ([]GrowthRow, error)
	AppointmentVolume(ctx context.Context, p Period) ([]VolumeRow, error)
	NoShowRate(ctx context.Context, p Period) ([]NoShowRow, error)
	ReferralConversion(ctx context.Context, p Period) ([]ConversionRow, error)
}
