package scheduling

import (
	"context"
	"time"

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

const apptCols = `id, patient_id, provider_id, location_id, visit_type, status, reason,
	start_time, end_time, notes, cancel_reason, rescheduled_to, reminder_sent_at,
	created_at, updated_at`

func (r *repoPG) scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.ProviderID, &a.LocationID, &a.VisitType, &a.Status, &a.Reason,
		&a.StartTime, &a.EndTime, &a.Notes, &a.CancelReason, &a.RescheduledTo, &a.ReminderSentAt,
		&a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointments (id, patient_id, provider_id, location_id, visit_type, status, reason,
			start_time, end_time, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		a.ID, a.PatientID, a.ProviderID, a.LocationID, a.VisitType, a.Status, a.Reason,
		a.StartTime, a.EndTime, a.Notes)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return r.scanAppointment(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointments WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status=$2, reason=$3, start_time=$4, end_time=$5,
			notes=$6, cancel_reason=$7, rescheduled_to=$8, location_id=$9, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.Status, a.Reason, a.StartTime, a.EndTime,
		a.Notes, a.CancelReason, a.RescheduledTo, a.LocationID)
	return err
}

var apptFilters = map[string]db.FilterConfig{
	"patient":    {Type: db.FilterRef, Column: "patient_id"},
	"provider":   {Type: db.FilterRef, Column: "provider_id"},
	"location":   {Type: db.FilterRef, Column: "location_id"},
	"visit_type": {Type: db.FilterExact, Column: "visit_type"},
	"status":     {Type: db.FilterExact, Column: "status"},
	"date":       {Type: db.FilterDate, Column: "start_time"},
	"reason":     {Type: db.FilterText, Column: "reason"},
}

func (r *repoPG) List(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Appointment, int, error) {
	qb := db.NewListQuery("appointments", apptCols)
	qb.ApplyFilters(params, apptFilters)
	qb.ApplySort(sort, "start_time ASC", apptFilters)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointments WHERE patient_id = $1 ORDER BY start_time DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, nil
}

func (r *repoPG) ListByProviderRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE provider_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time ASC`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, nil
}

func (r *repoPG) CountOverlapping(ctx context.Context, providerID uuid.UUID, start, end time.Time, exclude uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE provider_id = $1
		  AND id <> $2
		  AND status NOT IN ('completed', 'cancelled', 'no_show', 'rescheduled')
		  AND start_time < $4 AND end_time > $3`,
		providerID, exclude, start, end).Scan(&count)
	return count, err
}

func (r *repoPG) DueForReminder(ctx context.Context, window time.Duration) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+` FROM appointments
		WHERE status IN ('scheduled', 'confirmed')
		  AND reminder_sent_at IS NULL
		  AND start_time BETWEEN NOW() AND NOW() + make_interval(secs => $1)
		ORDER BY start_time`, window.Seconds())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := r.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE appointments SET reminder_sent_at = $2 WHERE id = $1`, id, at)
	return err
}
