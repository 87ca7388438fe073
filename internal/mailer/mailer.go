// Package mailer delivers queued email messages and records the outcome.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/metrics"
	"github.com/ignite/outreach-crm/internal/pkg/logger"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

// DefaultSendDelay spaces consecutive sends in SendPending.
const DefaultSendDelay = 2 * time.Second

var (
	// ErrNotEmail is returned when asked to send a non-email message.
	ErrNotEmail = errors.New("mailer: message medium is not email")
	// ErrNoEmailAddress is returned when neither the message nor its person
	// carries a usable email address.
	ErrNoEmailAddress = errors.New("mailer: no usable email address")
)

// Transport hands a rendered message to a mail provider.
type Transport interface {
	Deliver(ctx context.Context, to, subject, htmlBody, textBody string) (messageID string, err error)
}

// SendReport summarizes one SendPending pass.
type SendReport struct {
	Pending int `json:"pending"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Mailer sends messages through a Transport.
type Mailer struct {
	messages  crm.MessageRepository
	people    crm.PersonRepository
	transport Transport
	signature string
	delay     time.Duration
	metrics   *metrics.Metrics

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

// Option customizes a Mailer.
type Option func(*Mailer)

// WithSignature appends sig to every message body.
func WithSignature(sig string) Option {
	return func(m *Mailer) { m.signature = strings.TrimSpace(sig) }
}

// WithSendDelay sets the pause between sends. Negative values are ignored.
func WithSendDelay(d time.Duration) Option {
	return func(m *Mailer) {
		if d >= 0 {
			m.delay = d
		}
	}
}

// WithMetrics records delivery outcomes on mt.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Mailer) { m.metrics = mt }
}

// New creates a Mailer.
func New(gw *crm.Gateway, transport Transport, opts ...Option) *Mailer {
	m := &Mailer{
		messages:  gw.Messages,
		people:    gw.People,
		transport: transport,
		delay:     DefaultSendDelay,
		now:       time.Now,
		wait:      sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Send delivers msg. Precondition failures return ErrNotEmail or
// ErrNoEmailAddress without touching the store. A delivery failure marks the
// message failed and returns false with a nil error; only store errors are
// returned.
func (m *Mailer) Send(ctx context.Context, msg *domain.Message) (bool, error) {
	if msg.Media != domain.MediaEmail {
		return false, ErrNotEmail
	}
	to, err := m.recipient(ctx, msg)
	if err != nil {
		return false, err
	}

	htmlBody, textBody, err := renderBodies(msg.Content, m.signature)
	if err != nil {
		return false, fmt.Errorf("render message %d: %w", msg.ID, err)
	}

	providerID, err := m.transport.Deliver(ctx, to, msg.Subject, htmlBody, textBody)
	if err != nil {
		m.metrics.MessageDelivered(false)
		logger.Error("[Mailer] Delivery failed", "message_id", msg.ID, "to", to, "error", err)
		if markErr := m.messages.MarkFailed(context.WithoutCancel(ctx), msg.ID); markErr != nil {
			return false, fmt.Errorf("mark message %d failed: %w", msg.ID, markErr)
		}
		return false, nil
	}

	m.metrics.MessageDelivered(true)
	if err := m.messages.MarkSent(context.WithoutCancel(ctx), msg.ID, m.now()); err != nil {
		return true, fmt.Errorf("mark message %d sent: %w", msg.ID, err)
	}
	logger.Info("[Mailer] Sent", "message_id", msg.ID, "to", to, "provider_id", providerID)
	return true, nil
}

// recipient prefers the message address when it parses as an email, then the
// person's email.
func (m *Mailer) recipient(ctx context.Context, msg *domain.Message) (string, error) {
	if addr, ok := parseEmail(msg.Address); ok {
		return addr, nil
	}
	person := msg.Person
	if person == nil || person.Email == "" {
		p, err := m.people.Get(ctx, msg.PersonID)
		if errors.Is(err, crm.ErrNotFound) {
			return "", ErrNoEmailAddress
		}
		if err != nil {
			return "", fmt.Errorf("load person %d: %w", msg.PersonID, err)
		}
		person = p
	}
	if addr, ok := parseEmail(person.Email); ok {
		return addr, nil
	}
	return "", ErrNoEmailAddress
}

func parseEmail(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", false
	}
	return a.Address, true
}

// SendPending sends every to_send email message in order, pausing between
// sends. Non-email messages are skipped and left queued.
func (m *Mailer) SendPending(ctx context.Context) (SendReport, error) {
	var rep SendReport
	queued, err := m.messages.ListByStatus(ctx, domain.MessageToSend)
	if err != nil {
		return rep, fmt.Errorf("list queued messages: %w", err)
	}

	first := true
	for i := range queued {
		msg := &queued[i]
		if msg.Media != domain.MediaEmail {
			rep.Skipped++
			continue
		}
		rep.Pending++

		if !first {
			if err := m.wait(ctx, m.delay); err != nil {
				return rep, err
			}
		}
		first = false

		ok, err := m.Send(ctx, msg)
		switch {
		case errors.Is(err, ErrNoEmailAddress):
			rep.Skipped++
			logger.Warn("[Mailer] Skipping message without email address", "message_id", msg.ID)
		case err != nil:
			rep.Failed++
			logger.Error("[Mailer] Send error", "message_id", msg.ID, "error", err)
		case ok:
			rep.Sent++
		default:
			rep.Failed++
		}
	}

	logger.Info("[Mailer] Pending pass complete",
		"pending", rep.Pending, "sent", rep.Sent, "failed", rep.Failed, "skipped", rep.Skipped)
	return rep, nil
}
