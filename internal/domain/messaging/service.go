package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practicehq/practice/internal/platform/db"
	"github.com/practicehq/practice/internal/platform/notify"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminal          = errors.New("message is in a terminal state")
	ErrNotRecipient      = errors.New("only the recipient can mark a message read")
	ErrPatientInactive   = errors.New("patient is not active")
)

const deliveryBatchSize = 50

// ChannelPortal messages never leave the system, so delivery is
// immediate and skips the dispatcher.
const ChannelPortal = "portal"

var validChannels = map[string]notify.Channel{
	"email": notify.ChannelEmail,
	"sms":   notify.ChannelSMS,
}

// statusTransitions is the message delivery lifecycle graph.
var statusTransitions = map[string][]string{
	StatusDraft:     {StatusQueued, StatusCancelled},
	StatusQueued:    {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered, StatusFailed, StatusBounced},
	StatusDelivered: {StatusRead},
}

func canTransition(from, to string) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Deliverer pushes rendered messages out over a channel.
type Deliverer interface {
	Dispatch(ctx context.Context, ch notify.Channel, recipient, tmplName string, data interface{}) error
}

// PatientGate answers whether a patient may take on new activity.
type PatientGate interface {
	IsActive(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service struct {
	repo      Repository
	patients  PatientGate
	deliverer Deliverer
	runTx     db.TxFunc
	log       zerolog.Logger
}

func NewService(repo Repository, patients PatientGate, deliverer Deliverer, runTx db.TxFunc, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		patients:  patients,
		deliverer: deliverer,
		runTx:     runTx,
		log:       log.With().Str("component", "messaging").Logger(),
	}
}

// gatePatient rejects new activity on a thread tied to a patient who is
// no longer active.
func (s *Service) gatePatient(ctx context.Context, patientID *uuid.UUID) error {
	if patientID == nil {
		return nil
	}
	active, err := s.patients.IsActive(ctx, *patientID)
	if err != nil {
		return fmt.Errorf("checking patient: %w", err)
	}
	if !active {
		return ErrPatientInactive
	}
	return nil
}

func (s *Service) CreateThread(ctx context.Context, t *Thread) error {
	if t.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if t.CreatedBy == "" {
		return fmt.Errorf("created_by is required")
	}
	if err := s.gatePatient(ctx, t.PatientID); err != nil {
		return err
	}
	return s.repo.CreateThread(ctx, t)
}

func (s *Service) GetThread(ctx context.Context, id uuid.UUID) (*Thread, error) {
	return s.repo.GetThread(ctx, id)
}

func (s *Service) ListThreads(ctx context.Context, params map[string]string, sort string, limit, offset int) ([]*Thread, int, error) {
	return s.repo.ListThreads(ctx, params, sort, limit, offset)
}

// CreateMessage stores a new draft in an existing thread.
func (s *Service) CreateMessage(ctx context.Context, m *Message) error {
	if m.ThreadID == uuid.Nil {
		return fmt.Errorf("thread_id is required")
	}
	if m.Sender == "" || m.Recipient == "" {
		return fmt.Errorf("sender and recipient are required")
	}
	if m.Body == "" {
		return fmt.Errorf("body is required")
	}
	if _, ok := validChannels[m.Channel]; !ok && m.Channel != ChannelPortal {
		return fmt.Errorf("invalid channel: %s", m.Channel)
	}
	t, err := s.repo.GetThread(ctx, m.ThreadID)
	if err != nil {
		return fmt.Errorf("looking up thread: %w", err)
	}
	if err := s.gatePatient(ctx, t.PatientID); err != nil {
		return err
	}
	m.Status = StatusDraft
	return s.repo.CreateMessage(ctx, m)
}

func (s *Service) GetMessage(ctx context.Context, id uuid.UUID) (*Message, error) {
	return s.repo.GetMessage(ctx, id)
}

func (s *Service) ListByThread(ctx context.Context, threadID uuid.UUID, limit, offset int) ([]*Message, int, error) {
	return s.repo.ListByThread(ctx, threadID, limit, offset)
}

// Queue hands a draft to the delivery worker.
func (s *Service) Queue(ctx context.Context, id uuid.UUID) (*Message, error) {
	m, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(m.Status, StatusQueued) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, StatusQueued)
	}
	now := time.Now().UTC()
	m.Status = StatusQueued
	m.QueuedAt = &now
	if err := s.repo.UpdateMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// DeliverQueued drains one batch of queued messages through the
// dispatcher. Each message ends up sent or failed; the batch runs in a
// single transaction so the queue rows stay locked while in flight.
// Returns the number of messages delivered.
func (s *Service) DeliverQueued(ctx context.Context) (int, error) {
	delivered := 0
	err := s.runTx(ctx, func(ctx context.Context) error {
		batch, err := s.repo.ListQueued(ctx, deliveryBatchSize)
		if err != nil {
			return err
		}
		for _, m := range batch {
			now := time.Now().UTC()
			if m.Channel == ChannelPortal {
				m.Status = StatusDelivered
				m.SentAt = &now
				m.DeliveredAt = &now
				delivered++
				if err := s.repo.UpdateMessage(ctx, m); err != nil {
					return err
				}
				continue
			}
			if err := s.deliverer.Dispatch(ctx, validChannels[m.Channel], m.Recipient, "direct-message", m); err != nil {
				reason := err.Error()
				m.Status = StatusFailed
				m.FailReason = &reason
				s.log.Warn().Err(err).Str("message", m.ID.String()).Msg("delivery failed")
			} else {
				m.Status = StatusSent
				m.SentAt = &now
				delivered++
			}
			if err := s.repo.UpdateMessage(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	return delivered, err
}

// MarkDelivered records a delivery receipt from the channel.
func (s *Service) MarkDelivered(ctx context.Context, id uuid.UUID) (*Message, error) {
	return s.transition(ctx, id, StatusDelivered, func(m *Message, now time.Time) {
		m.DeliveredAt = &now
	})
}

// MarkRead records a read receipt. A non-empty reader must match the
// message recipient.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, reader string) (*Message, error) {
	m, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if reader != "" && reader != m.Recipient {
		return nil, ErrNotRecipient
	}
	return s.transition(ctx, id, StatusRead, func(m *Message, now time.Time) {
		m.ReadAt = &now
	})
}

// UnreadCount reports how many outbound messages addressed to the
// recipient carry no read receipt yet.
func (s *Service) UnreadCount(ctx context.Context, recipient string) (int, error) {
	if recipient == "" {
		return 0, fmt.Errorf("recipient is required")
	}
	return s.repo.UnreadCount(ctx, recipient)
}

// MarkBounced records a hard bounce reported by the channel.
func (s *Service) MarkBounced(ctx context.Context, id uuid.UUID, reason string) (*Message, error) {
	if reason == "" {
		return nil, fmt.Errorf("bounce requires a reason")
	}
	return s.transition(ctx, id, StatusBounced, func(m *Message, _ time.Time) {
		m.FailReason = &reason
	})
}

// Cancel withdraws a draft before it is queued.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Message, error) {
	return s.transition(ctx, id, StatusCancelled, nil)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to string, apply func(*Message, time.Time)) (*Message, error) {
	m, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsTerminal() {
		return nil, fmt.Errorf("%w: %s", ErrTerminal, m.Status)
	}
	if !canTransition(m.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.Status, to)
	}
	m.Status = to
	if apply != nil {
		apply(m, time.Now().UTC())
	}
	if err := s.repo.UpdateMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
