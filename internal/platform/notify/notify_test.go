package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakeSender struct {
	sent     []Notification
	failures int
}

func (f *fakeSender) Send(_ context.Context, n Notification) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("provider unavailable")
	}
	f.sent = append(f.sent, n)
	return nil
}

func newTestDispatcher(t *testing.T, s Sender) *Dispatcher {
	t.Helper()
	d := NewDispatcher(zerolog.Nop())
	d.backoff = time.Millisecond
	d.RegisterSender(ChannelEmail, s)
	if err := d.RegisterTemplate("reminder",
		"Appointment reminder for {{.Patient}}",
		"Hi {{.Patient}}, you have an appointment at {{.Time}}."); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestDispatchRendersTemplate(t *testing.T) {
	fake := &fakeSender{}
	d := newTestDispatcher(t, fake)

	err := d.Dispatch(context.Background(), ChannelEmail, "pat@example.com", "reminder",
		map[string]string{"Patient": "Ana Silva", "Time": "09:30"})
	if err != nil {
		t.Fatal(err)
	}
	if len(fake.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(fake.sent))
	}
	n := fake.sent[0]
	if n.Subject != "Appointment reminder for Ana Silva" {
		t.Errorf("subject = %q", n.Subject)
	}
	if n.Body != "Hi Ana Silva, you have an appointment at 09:30." {
		t.Errorf("body = %q", n.Body)
	}
}

func TestDispatchUnknownTemplate(t *testing.T) {
	d := newTestDispatcher(t, &fakeSender{})
	err := d.Dispatch(context.Background(), ChannelEmail, "a@b.c", "nope", nil)
	if err == nil {
		t.Error("expected error for unregistered template")
	}
}

func TestDispatchUnknownChannel(t *testing.T) {
	d := newTestDispatcher(t, &fakeSender{})
	err := d.Dispatch(context.Background(), ChannelSMS, "+15550100", "reminder", nil)
	if err == nil {
		t.Error("expected error for unregistered channel")
	}
}

func TestDispatchRetriesTransientFailure(t *testing.T) {
	fake := &fakeSender{failures: 2}
	d := newTestDispatcher(t, fake)

	err := d.Dispatch(context.Background(), ChannelEmail, "pat@example.com", "reminder",
		map[string]string{"Patient": "Ana Silva", "Time": "09:30"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(fake.sent) != 1 {
		t.Errorf("sent %d, want 1", len(fake.sent))
	}
}

func TestDispatchGivesUpAfterMaxAttempts(t *testing.T) {
	fake := &fakeSender{failures: 10}
	d := newTestDispatcher(t, fake)

	err := d.Dispatch(context.Background(), ChannelEmail, "pat@example.com", "reminder",
		map[string]string{"Patient": "Ana", "Time": "09:30"})
	if err == nil {
		t.Error("expected failure after exhausting retries")
	}
}

func TestAttemptLog(t *testing.T) {
	fake := &fakeSender{failures: 2}
	d := newTestDispatcher(t, fake)
	ctx := context.Background()
	data := map[string]string{"Patient": "Ana", "Time": "09:30"}

	if err := d.Dispatch(ctx, ChannelEmail, "pat@example.com", "reminder", data); err != nil {
		t.Fatal(err)
	}
	fake.failures = 10
	if err := d.Dispatch(ctx, ChannelEmail, "pat@example.com", "reminder", data); err == nil {
		t.Fatal("expected failure")
	}

	attempts := d.Attempts()
	if len(attempts) != 2 {
		t.Fatalf("attempt log has %d entries, want 2", len(attempts))
	}
	if attempts[0].Tries != 3 || attempts[0].Error != "" {
		t.Errorf("first attempt: tries=%d error=%q", attempts[0].Tries, attempts[0].Error)
	}
	if attempts[1].Error == "" {
		t.Error("failed dispatch recorded without error")
	}
}
