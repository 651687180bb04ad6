package billing

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

const claimCols = `id, claim_number, patient_id, provider_id, appointment_id, payer, status,
	service_date, billed_amount, allowed_amount, paid_amount, patient_responsibility,
	external_id, denial_reason, appeal_reason, submitted_at, settled_at, created_at, updated_at`

func (r *repoPG) scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.ClaimNumber, &c.PatientID, &c.ProviderID, &c.AppointmentID, &c.Payer, &c.Status,
		&c.ServiceDate, &c.BilledAmount, &c.AllowedAmount, &c.PaidAmount, &c.PatientResponsibility,
		&c.ExternalID, &c.DenialReason, &c.AppealReason, &c.SubmittedAt, &c.SettledAt, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *repoPG) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claims (id, claim_number, patient_id, provider_id, appointment_id, payer,
			status, service_date, billed_amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		c.ID, c.ClaimNumber, c.PatientID, c.ProviderID, c.AppointmentID, c.Payer,
		c.Status, c.ServiceDate, c.BilledAmount)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return r.scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claims WHERE id = $1`, id))
}

func (r *repoPG) GetByNumber(ctx context.Context, number string) (*Claim, error) {
	return r.scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM claims WHERE claim_number = $1`, number))
}

func (r *repoPG) Update(ctx context.Context, c *Claim) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE claims SET status=$2, billed_amount=$3, allowed_amount=$4, paid_amount=$5,
			patient_responsibility=$6, external_id=$7, denial_reason=$8, appeal_reason=$9,
			submitted_at=$10, settled_at=$11, payer=$12, service_date=$13,
			appointment_id=$14, updated_at=NOW()
		WHERE id = $1`,
		c.ID, c.Status, c.BilledAmount, c.AllowedAmount, c.PaidAmount,
		c.PatientResponsibility, c.ExternalID, c.DenialReason, c.AppealReason,
		c.SubmittedAt, c.SettledAt, c.Payer, c.ServiceDate, c.AppointmentID)
	return err
}

var claimFilters = map[string]db.FilterConfig{
	"patient":      {Type: db.FilterRef, Column: "patient_id"},
	"provider":     {Type: db.FilterRef, Column: "provider_id"},
	"status":       {Type: db.FilterExact, Column: "status"},
	"payer":        {Type: db.FilterText, Column: "payer"},
	"claim_number": {Type: db.FilterExact, Column: "claim_number"},
	"service_date": {Type: db.FilterDate, Column: "service_date"},
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Claim, int, error) {
	qb := db.NewListQuery("claims", claimCols)
	qb.ApplyFilters(params, claimFilters)
	qb.ApplySort(sort, "created_at DESC", claimFilters)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Claim
	for rows.Next() {
		c, err := r.scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, nil
}

func (r *repoPG) NextClaimSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('claim_number_seq')`).Scan(&seq)
	return seq, err
}

func (r *repoPG) AddLine(ctx context.Context, line *ClaimLine) error {
	line.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claim_lines (id, claim_id, sequence, cpt_code, description, quantity, unit_price, amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		line.ID, line.ClaimID, line.Sequence, line.CPTCode, line.Description,
		line.Quantity, line.UnitPrice, line.Amount)
	return err
}

func (r *repoPG) DeleteLine(ctx context.Context, claimID, lineID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM claim_lines WHERE id = $1 AND claim_id = $2`, lineID, claimID)
	return err
}

func (r *repoPG) GetLines(ctx context.Context, claimID uuid.UUID) ([]*ClaimLine, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, claim_id, sequence, cpt_code, description, quantity, unit_price, amount, created_at
		FROM claim_lines WHERE claim_id = $1 ORDER BY sequence`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ClaimLine
	for rows.Next() {
		var line ClaimLine
		if err := rows.Scan(&line.ID, &line.ClaimID, &line.Sequence, &line.CPTCode, &line.Description,
			&line.Quantity, &line.UnitPrice, &line.Amount, &line.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &line)
	}
	return items, nil
}

func (r *repoPG) AddPayment(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claim_payments (id, claim_id, amount, method, reference, posted_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.ClaimID, p.Amount, p.Method, p.Reference, p.PostedAt)
	return err
}

func (r *repoPG) GetPayments(ctx context.Context, claimID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, claim_id, amount, method, reference, posted_at
		FROM claim_payments WHERE claim_id = $1 ORDER BY posted_at`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.ClaimID, &p.Amount, &p.Method, &p.Reference, &p.PostedAt); err != nil {
			return nil, err
		}
		items = append(items, &p)
	}
	return items, nil
}
