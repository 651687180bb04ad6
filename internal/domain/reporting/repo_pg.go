package reporting

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/practicehq/practice/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// periodClause appends bounds on the given column when the period is set.
// Args are numbered from the current length of args.
func periodClause(column string, p Period, args []interface{}) (string, []interface{}) {
	clause := ""
	if !p.From.IsZero() {
		args = append(args, p.From)
		clause += " AND " + column + " >= $" + strconv.Itoa(len(args))
	}
	if !p.To.IsZero() {
		args = append(args, p.To)
		clause += " AND " + column + " < $" + strconv.Itoa(len(args))
	}
	return clause, args
}

func (r *repoPG) RevenueByMonth(ctx context.Context, p Period) ([]RevenueRow, error) {
	var args []interface{}
	clause, args := periodClause("submitted_at", p, args)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(date_trunc('month', submitted_at), 'YYYY-MM') AS month,
			COUNT(*),
			COALESCE(SUM(billed_amount), 0),
			COALESCE(SUM(allowed_amount), 0),
			COALESCE(SUM(paid_amount), 0)
		FROM claims
		WHERE submitted_at IS NOT NULL`+clause+`
		GROUP BY 1
		ORDER BY 1`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RevenueRow
	for rows.Next() {
		var row RevenueRow
		if err := rows.Scan(&row.Month, &row.ClaimCount, &row.Billed, &row.Allowed, &row.Collected); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repoPG) ClaimsByStatus(ctx context.Context) ([]StatusRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(billed_amount), 0)
		FROM claims
		GROUP BY status
		ORDER BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StatusRow
	for rows.Next() {
		var row StatusRow
		if err := rows.Scan(&row.Status, &row.ClaimCount, &row.Billed); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repoPG) PatientGrowth(ctx context.Context, p Period) ([]GrowthRow, error) {
	var args []interface{}
	clause, args := periodClause("created_at", p, args)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(date_trunc('month', created_at), 'YYYY-MM') AS month, COUNT(*)
		FROM patients
		WHERE true`+clause+`
		GROUP BY 1
		ORDER BY 1`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GrowthRow
	for rows.Next() {
		var row GrowthRow
		if err := rows.Scan(&row.Month, &row.NewPatients); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repoPG) ClaimsAging(ctx context.Context) ([]AgingRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT CASE
			WHEN NOW() - submitted_at < interval '30 days' THEN '0-30'
			WHEN NOW() - submitted_at < interval '60 days' THEN '31-60'
			WHEN NOW() - submitted_at < interval '90 days' THEN '61-90'
			ELSE '90+'
		END AS bucket,
			COUNT(*),
			COALESCE(SUM(billed_amount - paid_amount), 0)
		FROM claims
		WHERE submitted_at IS NOT NULL
		  AND status NOT IN ('settled', 'cancelled', 'denied')
		GROUP BY 1
		ORDER BY 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AgingRow
	for rows.Next() {
		var row AgingRow
		if err := rows.Scan(&row.Bucket, &row.ClaimCount, &row.Balance); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repoPG) AppointmentVolume(ctx context.Context, p Period) ([]VolumeRow, error) {
	var args []interface{}
	clause, args := periodClause("a.start_time", p, args)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT a.provider_id,
			pr.first_name || ' ' || pr.last_name,
			COUNT(*),
			COUNT(*) FILTER (WHERE a.status = 'completed'),
			COUNT(*) FILTER (WHERE a.status = 'cancelled'),
			COUNT(*) FILTER (WHERE a.status = 'no_show')
		FROM appointments a
		JOIN providers pr ON pr.id = a.provider_id
		WHERE true`+clause+`
		GROUP BY a.provider_id, pr.first_name, pr.last_name
		ORDER BY 2`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VolumeRow
	for rows.Next() {
		var row VolumeRow
		if err := rows.Scan(&row.ProviderID, &row.ProviderName, &row.Scheduled, &row.Completed, &row.Cancelled, &row.NoShows); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repoPG) NoShowRate(ctx context.Context, p Period) ([]NoShowRow, error) {
	var args []interface{}
	clause, args := periodClause("start_time", p, args)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(date_trunc('month', start_time), 'YYYY-MM') AS month,
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'no_show'),
			ROUND(100.0 * COUNT(*) FILTER (WHERE status = 'no_show') / COUNT(*), 2)
		FROM appointments
		WHERE status IN ('completed', 'no_show')`+clause+`
		GROUP BY 1
		ORDER BY 1`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NoShowRow
	for rows.Next() {
		var row NoShowRow
		if err := rows.Scan(&row.Month, &row.Total, &row.NoShows, &row.RatePct); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *repoPG) ReferralConversion(ctx context.Context, p Period) ([]ConversionRow, error) {
	var args []interface{}
	clause, args := periodClause("created_at", p, args)
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT specialty,
			COUNT(*) FILTER (WHERE sent_at IS NOT NULL),
			COUNT(*) FILTER (WHERE status IN ('accepted', 'scheduled', 'completed')),
			COUNT(*) FILTER (WHERE status = 'completed'),
			ROUND(100.0 * COUNT(*) FILTER (WHERE status = 'completed')
				/ GREATEST(COUNT(*) FILTER (WHERE sent_at IS NOT NULL), 1), 2)
		FROM referrals
		WHERE true`+clause+`
		GROUP BY specialty
		ORDER BY specialty`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ConversionRow
	for rows.Next() {
		var row ConversionRow
		if err := rows.Scan(&row.Specialty, &row.Sent, &row.Accepted, &row.Completed, &row.RatePct); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
