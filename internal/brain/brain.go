// Package brain turns new person-scoped triggers into draft messages.
//
// Each trigger is claimed through a distributed lock before drafting, and the
// draft insert plus the trigger's move to handled happen in one gateway call,
// so overlapping passes draft a trigger at most once.
package brain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/metrics"
	"github.com/ignite/outreach-crm/internal/pkg/distlock"
	"github.com/ignite/outreach-crm/internal/pkg/logger"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

// DefaultClaimTTL bounds how long a crashed pass can hold a trigger claim.
const DefaultClaimTTL = 5 * time.Minute

// Drafter produces a message draft for a person and trigger.
type Drafter interface {
	Draft(ctx context.Context, person *domain.Person, trigger *domain.Trigger) (*domain.OutreachDraft, error)
}

// Report summarizes one processing pass.
type Report struct {
	Scanned             int `json:"scanned"`
	Drafted             int `json:"drafted"`
	SkippedAccountLevel int `json:"skipped_account_level"`
	SkippedNoAddress    int `json:"skipped_no_address"`
	SkippedClaimed      int `json:"skipped_claimed"`
	Failed              int `json:"failed"`
}

type outcome int

const (
	drafted outcome = iota
	accountLevel
	noAddress
	claimed
	failed
)

// Brain is the trigger processor.
type Brain struct {
	gw       *crm.Gateway
	drafter  Drafter
	locks    distlock.Locker
	claimTTL time.Duration
	metrics  *metrics.Metrics
}

// Option customizes a Brain.
type Option func(*Brain)

// WithClaimTTL sets the per-trigger claim lifetime.
func WithClaimTTL(d time.Duration) Option {
	return func(b *Brain) {
		if d > 0 {
			b.claimTTL = d
		}
	}
}

// WithMetrics records drafts on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Brain) { b.metrics = m }
}

// New creates a Brain.
func New(gw *crm.Gateway, drafter Drafter, locks distlock.Locker, opts ...Option) *Brain {
	b := &Brain{gw: gw, drafter: drafter, locks: locks, claimTTL: DefaultClaimTTL}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ProcessTriggers drafts a message for every new person-scoped trigger.
// Per-trigger failures are logged and counted; only a failure to list the
// triggers or a cancelled context is returned.
func (b *Brain) ProcessTriggers(ctx context.Context) (Report, error) {
	var rep Report
	triggers, err := b.gw.Triggers.ListByStatus(ctx, domain.TriggerNew)
	if err != nil {
		return rep, fmt.Errorf("list new triggers: %w", err)
	}

	for i := range triggers {
		if err := ctx.Err(); err != nil {
			logger.Warn("[MessageBrain] Pass interrupted", "processed", rep.Scanned, "error", err)
			return rep, err
		}
		rep.Scanned++
		switch b.processOne(ctx, &triggers[i]) {
		case drafted:
			rep.Drafted++
		case accountLevel:
			rep.SkippedAccountLevel++
		case noAddress:
			rep.SkippedNoAddress++
		case claimed:
			rep.SkippedClaimed++
		case failed:
			rep.Failed++
		}
	}

	logger.Info("[MessageBrain] Pass complete",
		"scanned", rep.Scanned, "drafted", rep.Drafted,
		"account_level", rep.SkippedAccountLevel, "no_address", rep.SkippedNoAddress,
		"claimed", rep.SkippedClaimed, "failed", rep.Failed)
	return rep, nil
}

func (b *Brain) processOne(ctx context.Context, t *domain.Trigger) outcome {
	if !t.IsPersonScoped() {
		return accountLevel
	}

	lock := b.locks.Lock(fmt.Sprintf("trigger:%d", t.ID), b.claimTTL)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		logger.Error("[MessageBrain] Claim failed", "trigger_id", t.ID, "error", err)
		return failed
	}
	if !ok {
		return claimed
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("[MessageBrain] Claim release failed", "trigger_id", t.ID, "error", err)
		}
	}()

	current, err := b.gw.Triggers.Get(ctx, t.ID)
	if errors.Is(err, crm.ErrNotFound) {
		return claimed
	}
	if err != nil {
		logger.Error("[MessageBrain] Re-reading trigger failed", "trigger_id", t.ID, "error", err)
		return failed
	}
	if current.Status != domain.TriggerNew {
		return claimed
	}

	person, err := b.gw.People.Get(ctx, *current.PersonID)
	if err != nil {
		logger.Error("[MessageBrain] Loading person failed", "trigger_id", t.ID, "person_id", *current.PersonID, "error", err)
		return failed
	}

	draft, err := b.drafter.Draft(ctx, person, current)
	if err != nil {
		logger.Error("[MessageBrain] Generation failed", "trigger_id", t.ID, "error", err)
		return failed
	}

	media, address, ok := ResolveAddress(person, draft.Media)
	if !ok {
		logger.Warn("[MessageBrain] No contact channel, leaving trigger new",
			"trigger_id", t.ID, "person_id", person.ID, "media", draft.Media)
		return noAddress
	}

	msg, err := b.gw.Messages.CreateDraftForTrigger(ctx, &domain.Message{
		PersonID:  person.ID,
		TriggerID: &current.ID,
		Media:     media,
		Address:   address,
		From:      domain.FromUs,
		Subject:   draft.Subject,
		Content:   draft.Content,
		Status:    domain.MessageDraft,
	})
	if errors.Is(err, crm.ErrTriggerNotNew) {
		return claimed
	}
	if err != nil {
		logger.Error("[MessageBrain] Creating draft failed", "trigger_id", t.ID, "error", err)
		return failed
	}

	b.metrics.DraftCreated()
	logger.Info("[MessageBrain] Draft created",
		"trigger_id", t.ID, "message_id", msg.ID, "media", media, "address", address)
	return drafted
}

// ResolveAddress picks the destination for media. email, linkedin and twitter
// use their own channel only; any other medium tries email then linkedin and
// reports the channel actually used.
func ResolveAddress(p *domain.Person, media domain.MessageMedia) (domain.MessageMedia, string, bool) {
	switch media {
	case domain.MediaEmail, domain.MediaLinkedIn, domain.MediaTwitter:
		addr := p.Channel(media)
		return media, addr, addr != ""
	}
	for _, m := range []domain.MessageMedia{domain.MediaEmail, domain.MediaLinkedIn} {
		if addr := p.Channel(m); addr != "" {
			return m, addr, true
		}
	}
	return media, "", false
}
