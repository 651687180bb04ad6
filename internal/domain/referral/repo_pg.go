package referral

import (
	"context"

	"github.com/google/uuid"
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

const referralCols = `id, patient_id, from_provider_id, to_provider_id, specialty, reason,
	urgency, status, decline_reason, appointment_id, external_id, sent_at, created_at, updated_at`

func (r *repoPG) scanReferral(row pgx.Row) (*Referral, error) {
	var ref Referral
	err := row.Scan(&ref.ID, &ref.PatientID, &ref.FromProviderID, &ref.ToProviderID, &ref.Specialty, &ref.Reason,
		&ref.Urgency, &ref.Status, &ref.DeclineReason, &ref.AppointmentID, &ref.ExternalID, &ref.SentAt,
		&ref.CreatedAt, &ref.UpdatedAt)
	return &ref, err
}

func (r *repoPG) Create(ctx context.Context, ref *Referral) error {
	ref.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO referrals (id, patient_id, from_provider_id, to_provider_id, specialty,
			reason, urgency, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		ref.ID, ref.PatientID, ref.FromProviderID, ref.ToProviderID, ref.Specialty,
		ref.Reason, ref.Urgency, ref.Status)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Referral, error) {
	return r.scanReferral(r.conn(ctx).QueryRow(ctx, `SELECT `+referralCols+` FROM referrals WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, ref *Referral) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE referrals SET status=$2, decline_reason=$3, appointment_id=$4,
			external_id=$5, sent_at=$6, urgency=$7, updated_at=NOW()
		WHERE id = $1`,
		ref.ID, ref.Status, ref.DeclineReason, ref.AppointmentID,
		ref.ExternalID, ref.SentAt, ref.Urgency)
	return err
}

var referralFilters = map[string]db.FilterConfig{
	"patient":   {Type: db.FilterRef, Column: "patient_id"},
	"from":      {Type: db.FilterRef, Column: "from_provider_id"},
	"to":        {Type: db.FilterRef, Column: "to_provider_id"},
	"status":    {Type: db.FilterExact, Column: "status"},
	"urgency":   {Type: db.FilterExact, Column: "urgency"},
	"specialty": {Type: db.FilterExact, Column: "specialty"},
	"created":   {Type: db.FilterDate, Column: "created_at"},
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Referral, int, error) {
	qb := db.NewListQuery("referrals", referralCols)
	qb.ApplyFilters(params, referralFilters)
	qb.ApplySort(sort, "created_at DESC", referralFilters)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Referral
	for rows.Next() {
		ref, err := r.scanReferral(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ref)
	}
	return items, total, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Referral, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM referrals WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+referralCols+` FROM referrals WHERE patient_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Referral
	for rows.Next() {
		ref, err := r.scanReferral(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, ref)
	}
	return items, total, nil
}
