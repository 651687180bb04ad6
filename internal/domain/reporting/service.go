package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/practicehq/practice/internal/platform/cache"
	"github.com/practicehq/practice/internal/platform/db"
)

// Service layers a read-through cache over the aggregate queries.
// Results are cached per tenant and period; refresh bypasses the cache.
type Service struct {
	repo  Repository
	cache *cache.Cache
	log   zerolog.Logger
}

func NewService(repo Repository, c *cache.Cache, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: c,
		log:   log.With().Str("component", "reporting").Logger(),
	}
}

func periodKey(p Period) string {
	const layout = "20060102"
	from, to := "open", "open"
	if !p.From.IsZero() {
		from = p.From.Format(layout)
	}
	if !p.To.IsZero() {
		to = p.To.Format(layout)
	}
	return fmt.Sprintf("%s-%s", from, to)
}

// cached runs the query through the tenant-scoped cache.
func cached[T any](ctx context.Context, s *Service, name, suffix string, refresh bool,
	query func(context.Context) ([]T, error)) ([]T, error) {

	key := cache.Key(db.TenantFromContext(ctx), "report:"+name, suffix)
	if !refresh {
		var rows []T
		hit, err := s.cache.GetJSON(ctx, key, &rows)
		if err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("report cache read failed")
		}
		if hit {
			return rows, nil
		}
	}
	rows, err := query(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, key, rows); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("report cache write failed")
	}
	return rows, nil
}

func (s *Service) RevenueByMonth(ctx context.Context, p Period, refresh bool) ([]RevenueRow, error) {
	return cached(ctx, s, "revenue", periodKey(p), refresh, func(ctx context.Context) ([]RevenueRow, error) {
		return s.repo.RevenueByMonth(ctx, p)
	})
}

func (s *Service) ClaimsByStatus(ctx context.Context, refresh bool) ([]StatusRow, error) {
	day := time.Now().UTC().Format("20060102")
	return cached(ctx, s, "claim-status", day, refresh, func(ctx context.Context) ([]StatusRow, error) {
		return s.repo.ClaimsByStatus(ctx)
	})
}

func (s *Service) PatientGrowth(ctx context.Context, p Period, refresh bool) ([]GrowthRow, error) {
	return cached(ctx, s, "growth", periodKey(p), refresh, func(ctx context.Context) ([]GrowthRow, error) {
		return s.repo.PatientGrowth(ctx, p)
	})
}

func (s *Service) ClaimsAging(ctx context.Context, refresh bool) ([]AgingRow, error) {
	// Aging buckets move with NOW(), so the key rolls over daily.
	day := time.Now().UTC().Format("20060102")
	return cached(ctx, s, "aging", day, refresh, func(ctx context.Context) ([]AgingRow, error) {
		return s.repo.ClaimsAging(ctx)
	})
}

func (s *Service) AppointmentVolume(ctx context.Context, p Period, refresh bool) ([]VolumeRow, error) {
	return cached(ctx, s, "volume", periodKey(p), refresh, func(ctx context.Context) ([]VolumeRow, error) {
		return s.repo.AppointmentVolume(ctx, p)
	})
}

func (s *Service) NoShowRate(ctx context.Context, p Period, refresh bool) ([]NoShowRow, error) {
	return cached(ctx, s, "noshow", periodKey(p), refresh, func(ctx context.Context) ([]NoShowRow, error) {
		return s.repo.NoShowRate(ctx, p)
	})
}

func (s *Service) ReferralConversion(ctx context.Context, p Period, refresh bool) ([]ConversionRow, error) {
	return cached(ctx, s, "conversion", periodKey(p), refresh, func(ctx context.Context) ([]ConversionRow, error) {
		return s.repo.ReferralConversion(ctx, p)
	})
}
