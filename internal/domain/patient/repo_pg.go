package patient

import (
	"context"
	"fmt"

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

const patientCols = `id, mrn, first_name, last_name, date_of_birth, gender,
	email, phone, address_line, city, state, postal_code,
	primary_provider_id, status, deceased_at, note, created_at, updated_at`

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Email, &p.Phone, &p.AddressLine, &p.City, &p.State, &p.PostalCode,
		&p.PrimaryProviderID, &p.Status, &p.DeceasedAt, &p.Note, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, mrn, first_name, last_name, date_of_birth, gender,
			email, phone, address_line, city, state, postal_code,
			primary_provider_id, status, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.DateOfBirth, p.Gender,
		p.Email, p.Phone, p.AddressLine, p.City, p.State, p.PostalCode,
		p.PrimaryProviderID, p.Status, p.Note)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *repoPG) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE mrn = $1`, mrn))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, date_of_birth=$4, gender=$5,
			email=$6, phone=$7, address_line=$8, city=$9, state=$10, postal_code=$11,
			primary_provider_id=$12, status=$13, deceased_at=$14, note=$15, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender,
		p.Email, p.Phone, p.AddressLine, p.City, p.State, p.PostalCode,
		p.PrimaryProviderID, p.Status, p.DeceasedAt, p.Note)
	return err
}

var patientFilters = map[string]db.FilterConfig{
	"mrn":      {Type: db.FilterExact, Column: "mrn"},
	"status":   {Type: db.FilterExact, Column: "status"},
	"name":     {Type: db.FilterText, Column: "first_name || ' ' || last_name"},
	"provider": {Type: db.FilterRef, Column: "primary_provider_id"},
	"dob":      {Type: db.FilterDate, Column: "date_of_birth"},
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Patient, int, error) {
	qb := db.NewListQuery("patients", patientCols)
	qb.ApplyFilters(params, patientFilters)
	qb.ApplySort(sort, "last_name ASC, first_name ASC", patientFilters)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}

func (r *repoPG) NextMRNSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := r.conn(ctx).QueryRow(ctx, `SELECT nextval('patient_mrn_seq')`).Scan(&seq)
	return seq, err
}

func (r *repoPG) AddPolicy(ctx context.Context, pol *InsurancePolicy) error {
	pol.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO insurance_policies (id, patient_id, payer, member_id, group_number,
			plan_name, rank, effective_from, effective_to)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		pol.ID, pol.PatientID, pol.Payer, pol.MemberID, pol.GroupNumber,
		pol.PlanName, pol.Rank, pol.EffectiveFrom, pol.EffectiveTo)
	return err
}

func (r *repoPG) GetPolicies(ctx context.Context, patientID uuid.UUID) ([]*InsurancePolicy, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, patient_id, payer, member_id, group_number,
			plan_name, rank, effective_from, effective_to, created_at
		FROM insurance_policies WHERE patient_id = $1 ORDER BY rank, created_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*InsurancePolicy
	for rows.Next() {
		var pol InsurancePolicy
		if err := rows.Scan(&pol.ID, &pol.PatientID, &pol.Payer, &pol.MemberID, &pol.GroupNumber,
			&pol.PlanName, &pol.Rank, &pol.EffectiveFrom, &pol.EffectiveTo, &pol.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &pol)
	}
	return items, nil
}

func (r *repoPG) UpdatePolicyRank(ctx context.Context, patientID, policyID uuid.UUID, rank int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE insurance_policies SET rank = $3
		WHERE id = $1 AND patient_id = $2`, policyID, patientID, rank)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("policy %s not found for patient %s", policyID, patientID)
	}
	return nil
}

func (r *repoPG) DeletePolicy(ctx context.Context, patientID, policyID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM insurance_policies WHERE id = $1 AND patient_id = $2`, policyID, patientID)
	return err
}
