package provider

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

const providerCols = `id, npi, first_name, last_name, credentials, specialty,
	email, phone, status, accepting_patients, accepting_referrals, created_at, updated_at`

func (r *repoPG) scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.NPI, &p.FirstName, &p.LastName, &p.Credentials, &p.Specialty,
		&p.Email, &p.Phone, &p.Status, &p.AcceptingPatients, &p.AcceptingReferrals,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Provider) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO providers (id, npi, first_name, last_name, credentials, specialty,
			email, phone, status, accepting_patients, accepting_referrals)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.NPI, p.FirstName, p.LastName, p.Credentials, p.Specialty,
		p.Email, p.Phone, p.Status, p.AcceptingPatients, p.AcceptingReferrals)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return r.scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM providers WHERE id = $1`, id))
}

func (r *repoPG) GetByNPI(ctx context.Context, npi string) (*Provider, error) {
	return r.scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM providers WHERE npi = $1`, npi))
}

func (r *repoPG) Update(ctx context.Context, p *Provider) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE providers SET first_name=$2, last_name=$3, credentials=$4, specialty=$5,
			email=$6, phone=$7, status=$8, accepting_patients=$9, accepting_referrals=$10,
			updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.Credentials, p.Specialty,
		p.Email, p.Phone, p.Status, p.AcceptingPatients, p.AcceptingReferrals)
	return err
}

var providerFilters = map[string]db.FilterConfig{
	"npi":                 {Type: db.FilterExact, Column: "npi"},
	"status":              {Type: db.FilterExact, Column: "status"},
	"specialty":           {Type: db.FilterExact, Column: "specialty"},
	"name":                {Type: db.FilterText, Column: "first_name || ' ' || last_name"},
	"accepting_referrals": {Type: db.FilterExact, Column: "accepting_referrals"},
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Provider, int, error) {
	qb := db.NewListQuery("providers", providerCols)
	qb.ApplyFilters(params, providerFilters)
	qb.ApplySort(sort, "last_name ASC, first_name ASC", providerFilters)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Provider
	for rows.Next() {
		p, err := r.scanProvider(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, nil
}
