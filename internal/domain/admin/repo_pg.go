package admin

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

// Settings live in a single row keyed by id = true so upsert is a
// plain ON CONFLICT.
func (r *repoPG) GetSettings(ctx context.Context) (*Settings, error) {
	var s Settings
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT practice_name, address_line1, address_line2, city, state, postal_code,
			phone, default_appt_minutes, no_show_fee, reminder_hours, updated_at
		FROM practice_settings WHERE id = true`).Scan(
		&s.PracticeName, &s.AddressLine1, &s.AddressLine2, &s.City, &s.State, &s.PostalCode,
		&s.Phone, &s.DefaultApptMinutes, &s.NoShowFee, &s.ReminderHours, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) UpsertSettings(ctx context.Context, s *Settings) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO practice_settings (id, practice_name, address_line1, address_line2,
			city, state, postal_code, phone, default_appt_minutes, no_show_fee, reminder_hours)
		VALUES (true,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			practice_name=$1, address_line1=$2, address_line2=$3, city=$4, state=$5,
			postal_code=$6, phone=$7, default_appt_minutes=$8, no_show_fee=$9,
			reminder_hours=$10, updated_at=NOW()`,
		s.PracticeName, s.AddressLine1, s.AddressLine2, s.City, s.State, s.PostalCode,
		s.Phone, s.DefaultApptMinutes, s.NoShowFee, s.ReminderHours)
	return err
}

const locationCols = `id, name, address, phone, active, created_at, updated_at`

func (r *repoPG) scanLocation(row pgx.Row) (*Location, error) {
	var l Location
	err := row.Scan(&l.ID, &l.Name, &l.Address, &l.Phone, &l.Active, &l.CreatedAt, &l.UpdatedAt)
	return &l, err
}

func (r *repoPG) CreateLocation(ctx context.Context, l *Location) error {
	l.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO locations (id, name, address, phone, active)
		VALUES ($1,$2,$3,$4,$5)`,
		l.ID, l.Name, l.Address, l.Phone, l.Active)
	return err
}

func (r *repoPG) GetLocation(ctx context.Context, id uuid.UUID) (*Location, error) {
	return r.scanLocation(r.conn(ctx).QueryRow(ctx, `SELECT `+locationCols+` FROM locations WHERE id = $1`, id))
}

func (r *repoPG) UpdateLocation(ctx context.Context, l *Location) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE locations SET name=$2, address=$3, phone=$4, active=$5, updated_at=NOW()
		WHERE id = $1`,
		l.ID, l.Name, l.Address, l.Phone, l.Active)
	return err
}

func (r *repoPG) DeleteLocation(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	return err
}

func (r *repoPG) ListLocations(ctx context.Context) ([]*Location, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+locationCols+` FROM locations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Location
	for rows.Next() {
		l, err := r.scanLocation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

const userCols = `id, email, name, roles, active, created_at, updated_at`

func (r *repoPG) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Roles, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	return &u, err
}

func (r *repoPG) CreateUser(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO users (id, email, name, roles, active)
		VALUES ($1,$2,$3,$4,$5)`,
		u.ID, u.Email, u.Name, u.Roles, u.Active)
	return err
}

func (r *repoPG) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id))
}

func (r *repoPG) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return r.scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE email = $1`, email))
}

func (r *repoPG) UpdateUser(ctx context.Context, u *User) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET email=$2, name=$3, roles=$4, active=$5, updated_at=NOW()
		WHERE id = $1`,
		u.ID, u.Email, u.Name, u.Roles, u.Active)
	return err
}

func (r *repoPG) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+userCols+` FROM users ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*User
	for rows.Next() {
		u, err := r.scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, u)
	}
	return items, total, nil
}
