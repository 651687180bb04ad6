package messaging

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

const threadCols = `id, subject, patient_id, created_by, created_at`

func (r *repoPG) scanThread(row pgx.Row) (*Thread, error) {
	var t Thread
	err := row.Scan(&t.ID, &t.Subject, &t.PatientID, &t.CreatedBy, &t.CreatedAt)
	return &t, err
}

func (r *repoPG) CreateThread(ctx context.Context, t *Thread) error {
	t.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO message_threads (id, subject, patient_id, created_by)
		VALUES ($1,$2,$3,$4)`,
		t.ID, t.Subject, t.PatientID, t.CreatedBy)
	return err
}

func (r *repoPG) GetThread(ctx context.Context, id uuid.UUID) (*Thread, error) {
	return r.scanThread(r.conn(ctx).QueryRow(ctx, `SELECT `+threadCols+` FROM message_threads WHERE id = $1`, id))
}

var threadFilters = map[string]db.FilterConfig{
	"patient": {Type: db.FilterRef, Column: "patient_id"},
	"subject": {Type: db.FilterText, Column: "subject"},
	"created": {Type: db.FilterDate, Column: "created_at"},
}

func (r *repoPG) ListThreads(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Thread, int, error) {
	qb := db.NewListQuery("message_threads", threadCols)
	qb.ApplyFilters(params, threadFilters)
	qb.ApplySort(sort, "created_at DESC", threadFilters)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, qb.CountSQL(), qb.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, qb.DataSQL(), qb.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Thread
	for rows.Next() {
		t, err := r.scanThread(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, t)
	}
	return items, total, nil
}

const messageCols = `id, thread_id, sender, recipient, channel, body, status, fail_reason,
	queued_at, sent_at, delivered_at, read_at, created_at, updated_at`

func (r *repoPG) scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ThreadID, &m.Sender, &m.Recipient, &m.Channel, &m.Body, &m.Status, &m.FailReason,
		&m.QueuedAt, &m.SentAt, &m.DeliveredAt, &m.ReadAt, &m.CreatedAt, &m.UpdatedAt)
	return &m, err
}

func (r *repoPG) CreateMessage(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO messages (id, thread_id, sender, recipient, channel, body, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		m.ID, m.ThreadID, m.Sender, m.Recipient, m.Channel, m.Body, m.Status)
	return err
}

func (r *repoPG) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	return r.scanMessage(r.conn(ctx).QueryRow(ctx, `SELECT `+messageCols+` FROM messages WHERE id = $1`, id))
}

func (r *repoPG) UpdateMessage(ctx context.Context, m *Message) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE messages SET status=$2, fail_reason=$3, queued_at=$4, sent_at=$5,
			delivered_at=$6, read_at=$7, updated_at=NOW()
		WHERE id = $1`,
		m.ID, m.Status, m.FailReason, m.QueuedAt, m.SentAt, m.DeliveredAt, m.ReadAt)
	return err
}

func (r *repoPG) ListByThread(ctx context.Context, threadID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM messages WHERE thread_id = $1`, threadID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+messageCols+` FROM messages WHERE thread_id = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3`, threadID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		m, err := r.scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, nil
}

// UnreadCount counts messages addressed to the recipient that went out
// but carry no read receipt yet.
func (r *repoPG) UnreadCount(ctx context.Context, recipient string) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM messages
		WHERE recipient = $1 AND status IN ('sent', 'delivered')`, recipient).Scan(&n)
	return n, err
}

// ListQueued locks the rows it returns so concurrent delivery workers
// do not pick up the same batch.
func (r *repoPG) ListQueued(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+messageCols+` FROM messages
		WHERE status = 'queued'
		ORDER BY queued_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Message
	for rows.Next() {
		m, err := r.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, nil
}
