package messaging

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/practicehq/practice/internal/platform/notify"
)

type mockRepo struct {
	threads  map[uuid.UUID]*Thread
	messages map[uuid.UUID]*Message
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		threads:  make(map[uuid.UUID]*Thread),
		messages: make(map[uuid.UUID]*Message),
	}
}

func (m *mockRepo) CreateThread(_ context.Context, t *Thread) error {
	t.ID = uuid.New()
	cp := *t
	m.threads[t.ID] = &cp
	return nil
}

func (m *mockRepo) GetThread(_ context.Context, id uuid.UUID) (*Thread, error) {
	t, ok := m.threads[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *t
	return &cp, nil
}

func (m *mockRepo) ListThreads(_ context.Context, _ map[string]string, _ string, _, _ int) ([]*Thread, int, error) {
	var items []*Thread
	for _, t := range m.threads {
		items = append(items, t)
	}
	return items, len(items), nil
}

func (m *mockRepo) CreateMessage(_ context.Context, msg *Message) error {
	msg.ID = uuid.New()
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *mockRepo) GetMessage(_ context.Context, id uuid.UUID) (*Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *msg
	return &cp, nil
}

func (m *mockRepo) UpdateMessage(_ context.Context, msg *Message) error {
	if _, ok := m.messages[msg.ID]; !ok {
		return errors.New("not found")
	}
	cp := *msg
	m.messages[msg.ID] = &cp
	return nil
}

func (m *mockRepo) ListByThread(_ context.Context, threadID uuid.UUID, _, _ int) ([]*Message, int, error) {
	var items []*Message
	for _, msg := range m.messages {
		if msg.ThreadID == threadID {
			items = append(items, msg)
		}
	}
	return items, len(items), nil
}

func (m *mockRepo) UnreadCount(_ context.Context, recipient string) (int, error) {
	n := 0
	for _, msg := range m.messages {
		if msg.Recipient == recipient && (msg.Status == StatusSent || msg.Status == StatusDelivered) {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) ListQueued(_ context.Context, limit int) ([]*Message, error) {
	var items []*Message
	for _, msg := range m.messages {
		if msg.Status == StatusQueued {
			cp := *msg
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].QueuedAt.Before(*items[j].QueuedAt) })
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

type fakeDeliverer struct {
	dispatched []notify.Channel
	failFor    map[string]bool
}

func (f *fakeDeliverer) Dispatch(_ context.Context, ch notify.Channel, recipient, _ string, _ interface{}) error {
	if f.failFor[recipient] {
		return errors.New("channel unavailable")
	}
	f.dispatched = append(f.dispatched, ch)
	return nil
}

func passthroughTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

type patientGate struct{ active bool }

func (g patientGate) IsActive(context.Context, uuid.UUID) (bool, error) { return g.active, nil }

func newTestService(repo *mockRepo, d *fakeDeliverer) *Service {
	return NewService(repo, patientGate{true}, d, passthroughTx, zerolog.Nop())
}

func newTestMessage(t *testing.T, svc *Service, repo *mockRepo) *Message {
	t.Helper()
	ctx := context.Background()
	thread := &Thread{Subject: "lab results", CreatedBy: "dr-lee"}
	if err := svc.CreateThread(ctx, thread); err != nil {
		t.Fatal(err)
	}
	m := &Message{
		ThreadID:  thread.ID,
		Sender:    "dr-lee",
		Recipient: "patient@example.com",
		Channel:   "email",
		Body:      "your results are in",
	}
	if err := svc.CreateMessage(ctx, m); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCreateMessageValidation(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeDeliverer{})
	ctx := context.Background()

	thread := &Thread{Subject: "billing", CreatedBy: "front-desk"}
	if err := svc.CreateThread(ctx, thread); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		msg  Message
	}{
		{"missing thread", Message{Sender: "a", Recipient: "b", Channel: "email", Body: "x"}},
		{"missing body", Message{ThreadID: thread.ID, Sender: "a", Recipient: "b", Channel: "email"}},
		{"bad channel", Message{ThreadID: thread.ID, Sender: "a", Recipient: "b", Channel: "fax", Body: "x"}},
		{"unknown thread", Message{ThreadID: uuid.New(), Sender: "a", Recipient: "b", Channel: "email", Body: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.CreateMessage(ctx, &tc.msg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestCreateMessageStartsAsDraft(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeDeliverer{})
	m := newTestMessage(t, svc, repo)
	if m.Status != StatusDraft {
		t.Errorf("status = %q, want draft", m.Status)
	}
}

func TestQueueSetsTimestamp(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeDeliverer{})
	m := newTestMessage(t, svc, repo)

	got, err := svc.Queue(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusQueued || got.QueuedAt == nil {
		t.Errorf("queue: status=%q queued_at=%v", got.Status, got.QueuedAt)
	}
	// Queuing twice is not allowed.
	if _, err := svc.Queue(context.Background(), m.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestDeliverQueuedSendsBatch(t *testing.T) {
	repo := newMockRepo()
	d := &fakeDeliverer{}
	svc := newTestService(repo, d)
	ctx := context.Background()

	m1 := newTestMessage(t, svc, repo)
	m2 := newTestMessage(t, svc, repo)
	for _, m := range []*Message{m1, m2} {
		if _, err := svc.Queue(ctx, m.ID); err != nil {
			t.Fatal(err)
		}
	}

	n, err := svc.DeliverQueued(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("delivered = %d, want 2", n)
	}
	for _, m := range []*Message{m1, m2} {
		got, _ := repo.GetMessage(ctx, m.ID)
		if got.Status != StatusSent || got.SentAt == nil {
			t.Errorf("message %s: status=%q sent_at=%v", m.ID, got.Status, got.SentAt)
		}
	}
}

func TestDeliverQueuedMarksFailures(t *testing.T) {
	repo := newMockRepo()
	d := &fakeDeliverer{failFor: map[string]bool{"patient@example.com": true}}
	svc := newTestService(repo, d)
	ctx := context.Background()

	m := newTestMessage(t, svc, repo)
	if _, err := svc.Queue(ctx, m.ID); err != nil {
		t.Fatal(err)
	}

	n, err := svc.DeliverQueued(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("delivered = %d, want 0", n)
	}
	got, _ := repo.GetMessage(ctx, m.ID)
	if got.Status != StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.FailReason == nil || *got.FailReason == "" {
		t.Error("fail reason not recorded")
	}
}

func TestReceiptLifecycle(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeDeliverer{})
	ctx := context.Background()

	m := newTestMessage(t, svc, repo)
	if _, err := svc.Queue(ctx, m.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.DeliverQueued(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := svc.MarkDelivered(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DeliveredAt == nil {
		t.Error("delivered_at not set")
	}
	// Only the recipient may record the read receipt.
	if _, err := svc.MarkRead(ctx, m.ID, "someone-else"); !errors.Is(err, ErrNotRecipient) {
		t.Errorf("expected ErrNotRecipient, got %v", err)
	}
	got, err = svc.MarkRead(ctx, m.ID, m.Recipient)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReadAt == nil {
		t.Error("read_at not set")
	}
	// Read is terminal.
	if _, err := svc.MarkBounced(ctx, m.ID, "mailbox full"); !errors.Is(err, ErrTerminal) {
		t.Errorf("expected ErrTerminal, got %v", err)
	}
}

func TestBounceRequiresReason(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeDeliverer{})
	ctx := context.Background()

	m := newTestMessage(t, svc, repo)
	if _, err := svc.Queue(ctx, m.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.DeliverQueued(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.MarkBounced(ctx, m.ID, ""); err == nil {
		t.Error("expected error for bounce without reason")
	}
	got, err := svc.MarkBounced(ctx, m.ID, "address rejected")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusBounced || got.FailReason == nil {
		t.Errorf("bounce: status=%q reason=%v", got.Status, got.FailReason)
	}
}

func TestCancelOnlyFromDraft(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeDeliverer{})
	ctx := context.Background()

	m := newTestMessage(t, svc, repo)
	if _, err := svc.Cancel(ctx, m.ID); err != nil {
		t.Fatal(err)
	}

	m2 := newTestMessage(t, svc, repo)
	if _, err := svc.Queue(ctx, m2.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Cancel(ctx, m2.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPortalMessagesDeliverImmediately(t *testing.T) {
	repo := newMockRepo()
	d := &fakeDeliverer{}
	svc := newTestService(repo, d)
	ctx := context.Background()

	thread := &Thread{Subject: "portal", CreatedBy: "dr-lee"}
	if err := svc.CreateThread(ctx, thread); err != nil {
		t.Fatal(err)
	}
	m := &Message{ThreadID: thread.ID, Sender: "dr-lee", Recipient: "pat-1", Channel: ChannelPortal, Body: "hello"}
	if err := svc.CreateMessage(ctx, m); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Queue(ctx, m.ID); err != nil {
		t.Fatal(err)
	}

	n, err := svc.DeliverQueued(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("delivered = %d, want 1", n)
	}
	got, _ := repo.GetMessage(ctx, m.ID)
	if got.Status != StatusDelivered || got.SentAt == nil || got.DeliveredAt == nil {
		t.Errorf("portal message: status=%q sent_at=%v delivered_at=%v", got.Status, got.SentAt, got.DeliveredAt)
	}
	if len(d.dispatched) != 0 {
		t.Errorf("portal message went through the dispatcher %d times", len(d.dispatched))
	}
}

func TestUnreadCount(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo, &fakeDeliverer{})
	ctx := context.Background()

	m1 := newTestMessage(t, svc, repo)
	m2 := newTestMessage(t, svc, repo)
	for _, m := range []*Message{m1, m2} {
		if _, err := svc.Queue(ctx, m.ID); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.DeliverQueued(ctx); err != nil {
		t.Fatal(err)
	}

	n, err := svc.UnreadCount(ctx, "patient@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("unread = %d, want 2", n)
	}

	if _, err := svc.MarkDelivered(ctx, m1.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MarkRead(ctx, m1.ID, "patient@example.com"); err != nil {
		t.Fatal(err)
	}
	n, err = svc.UnreadCount(ctx, "patient@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("unread after read = %d, want 1", n)
	}

	if _, err := svc.UnreadCount(ctx, ""); err == nil {
		t.Error("expected error for empty recipient")
	}
}

func TestInactivePatientBlocksNewMessages(t *testing.T) {
	repo := newMockRepo()
	d := &fakeDeliverer{}
	active := NewService(repo, patientGate{true}, d, passthroughTx, zerolog.Nop())
	inactive := NewService(repo, patientGate{false}, d, passthroughTx, zerolog.Nop())
	ctx := context.Background()

	patientID := uuid.New()
	thread := &Thread{Subject: "billing question", CreatedBy: "front-desk", PatientID: &patientID}
	if err := active.CreateThread(ctx, thread); err != nil {
		t.Fatal(err)
	}

	// Once the patient is no longer active, the existing thread rejects
	// new drafts and no new threads can reference them.
	m := &Message{
		ThreadID:  thread.ID,
		Sender:    "front-desk",
		Recipient: "patient@example.com",
		Channel:   "email",
		Body:      "following up",
	}
	if err := inactive.CreateMessage(ctx, m); !errors.Is(err, ErrPatientInactive) {
		t.Errorf("expected ErrPatientInactive, got %v", err)
	}
	dead := &Thread{Subject: "new topic", CreatedBy: "front-desk", PatientID: &patientID}
	if err := inactive.CreateThread(ctx, dead); !errors.Is(err, ErrPatientInactive) {
		t.Errorf("expected ErrPatientInactive, got %v", err)
	}

	// Threads without a patient are unaffected.
	general := &Thread{Subject: "staffing", CreatedBy: "front-desk"}
	if err := inactive.CreateThread(ctx, general); err != nil {
		t.Errorf("patient-less thread should create: %v", err)
	}
}
