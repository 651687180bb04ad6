package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"sync"
	"text/template"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Channel identifies how a notification is delivered.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Notification is a rendered, ready-to-send message.
type Notification struct {
	Channel   Channel
	Recipient string
	Subject   string
	Body      string
}

// Sender delivers a single notification over one channel.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

const (
	maxAttempts  = 3
	retryBackoff = 2 * time.Second

	// attemptLogSize bounds the in-memory delivery history.
	attemptLogSize = 200
)

// Attempt records the final outcome of one dispatch.
type Attempt struct {
	Channel    Channel   `json:"channel"`
	Recipient  string    `json:"recipient"`
	Template   string    `json:"template"`
	Tries      int       `json:"tries"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Dispatcher renders templates and routes notifications to the right
// sender, retrying transient failures.
type Dispatcher struct {
	senders   map[Channel]Sender
	templates map[string]*template.Template
	backoff   time.Duration
	log       zerolog.Logger

	mu       sync.Mutex
	attempts []Attempt
}

func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		senders:   make(map[Channel]Sender),
		templates: make(map[string]*template.Template),
		backoff:   retryBackoff,
		log:       log.With().Str("component", "notify").Logger(),
	}
}

func (d *Dispatcher) RegisterSender(ch Channel, s Sender) {
	d.senders[ch] = s
}

func (d *Dispatcher) RegisterTemplate(name, subject, body string) error {
	tmpl, err := template.New(name).Parse(body)
	if err != nil {
		return fmt.Errorf("parsing template %s: %w", name, err)
	}
	subjTmpl, err := template.New(name + ".subject").Parse(subject)
	if err != nil {
		return fmt.Errorf("parsing subject template %s: %w", name, err)
	}
	d.templates[name] = tmpl
	d.templates[name+".subject"] = subjTmpl
	return nil
}

// Dispatch renders the named template with data and sends it over the
// channel. Sends are retried up to three times with a fixed backoff.
func (d *Dispatcher) Dispatch(ctx context.Context, ch Channel, recipient, tmplName string, data interface{}) error {
	sender, ok := d.senders[ch]
	if !ok {
		return fmt.Errorf("no sender registered for channel %s", ch)
	}
	body, err := d.render(tmplName, data)
	if err != nil {
		return err
	}
	subject, err := d.render(tmplName+".subject", data)
	if err != nil {
		return err
	}

	n := Notification{Channel: ch, Recipient: recipient, Subject: subject, Body: body}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if lastErr = sender.Send(ctx, n); lastErr == nil {
			d.record(Attempt{Channel: ch, Recipient: recipient, Template: tmplName, Tries: attempt})
			return nil
		}
		d.log.Warn().Err(lastErr).Int("attempt", attempt).
			Str("channel", string(ch)).Str("template", tmplName).
			Msg("notification send failed")
		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff):
			}
		}
	}
	d.record(Attempt{Channel: ch, Recipient: recipient, Template: tmplName, Tries: maxAttempts, Error: lastErr.Error()})
	return fmt.Errorf("sending %s notification after %d attempts: %w", ch, maxAttempts, lastErr)
}

func (d *Dispatcher) record(a Attempt) {
	a.OccurredAt = time.Now().UTC()
	d.mu.Lock()
	d.attempts = append(d.attempts, a)
	if len(d.attempts) > attemptLogSize {
		d.attempts = d.attempts[len(d.attempts)-attemptLogSize:]
	}
	d.mu.Unlock()
}

// Attempts returns the recorded delivery outcomes, oldest first.
func (d *Dispatcher) Attempts() []Attempt {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Attempt, len(d.attempts))
	copy(out, d.attempts)
	return out
}

// AttemptsHandler exposes the dispatcher's recent delivery outcomes.
func AttemptsHandler(d *Dispatcher) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, d.Attempts())
	}
}

func (d *Dispatcher) render(name string, data interface{}) (string, error) {
	tmpl, ok := d.templates[name]
	if !ok {
		return "", fmt.Errorf("template %s not registered", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering template %s: %w", name, err)
	}
	return buf.String(), nil
}
