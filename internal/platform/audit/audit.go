package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Event is a single record of access to patient data. Events are written
// to the shared audit_log table so they survive tenant schema changes.
type Event struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role,omitempty"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	ResourceID string    `json:"resource_id,omitempty"`
	PatientID  string    `json:"patient_id,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	StatusCode int       `json:"status_code"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Logger buffers audit events and writes them asynchronously so that
// audit persistence never sits on the request path.
type Logger struct {
	pool   *pgxpool.Pool
	events chan Event
	done   chan struct{}
	log    zerolog.Logger
}

const bufferSize = 1024

func NewLogger(pool *pgxpool.Pool, log zerolog.Logger) *Logger {
	l := &Logger{
		pool:   pool,
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
		log:    log.With().Str("component", "audit").Logger(),
	}
	go l.run()
	return l
}

// Record enqueues an event. If the buffer is full the event is dropped
// and a warning logged rather than blocking the caller.
func (l *Logger) Record(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	select {
	case l.events <- ev:
	default:
		l.log.Warn().Str("action", ev.Action).Str("resource", ev.Resource).
			Msg("audit buffer full, event dropped")
	}
}

// Close drains remaining events and stops the writer.
func (l *Logger) Close() {
	close(l.events)
	<-l.done
}

func (l *Logger) run() {
	defer close(l.done)
	for ev := range l.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		l.insert(ctx, ev)
		cancel()
	}
}

func (l *Logger) insert(ctx context.Context, ev Event) {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO shared.audit_log
			(id, tenant_id, user_id, role, action, resource, resource_id,
			 patient_id, request_id, ip_address, user_agent, status_code, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ev.ID, ev.TenantID, ev.UserID, ev.Role, ev.Action, ev.Resource, ev.ResourceID,
		ev.PatientID, ev.RequestID, ev.IPAddress, ev.UserAgent, ev.StatusCode, ev.OccurredAt)
	if err != nil {
		l.log.Error().Err(err).Str("resource", ev.Resource).Msg("audit insert failed")
	}
}

// SearchFilter narrows an audit trail query.
type SearchFilter struct {
	TenantID  string
	UserID    string
	Resource  string
	Action    string
	PatientID string
	From      time.Time
	To        time.Time
}

// Search returns matching events, newest first.
func (l *Logger) Search(ctx context.Context, f SearchFilter, limit, offset int) ([]Event, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, role, action, resource, resource_id,
		       patient_id, request_id, ip_address, user_agent, status_code, occurred_at
		FROM shared.audit_log
		WHERE tenant_id = $1
		  AND ($2 = '' OR user_id = $2)
		  AND ($3 = '' OR resource = $3)
		  AND ($4 = '' OR action = $4)
		  AND ($5 = '' OR patient_id = $5)
		  AND ($6::timestamptz IS NULL OR occurred_at >= $6)
		  AND ($7::timestamptz IS NULL OR occurred_at <= $7)
		ORDER BY occurred_at DESC
		LIMIT $8 OFFSET $9`,
		f.TenantID, f.UserID, f.Resource, f.Action, f.PatientID,
		nullableTime(f.From), nullableTime(f.To), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.TenantID, &ev.UserID, &ev.Role, &ev.Action,
			&ev.Resource, &ev.ResourceID, &ev.PatientID, &ev.RequestID, &ev.IPAddress,
			&ev.UserAgent, &ev.StatusCode, &ev.OccurredAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
