package crm

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/pkg/logger"
)

// Service implements the CRM rules the HTTP layer relies on: input
// validation, address resolution and forward-only status changes.
// All public methods are safe for concurrent use if the gateway is.
type Service struct {
	gw *Gateway
}

// NewService creates a crm service backed by the given gateway.
func NewService(gw *Gateway) *Service {
	return &Service{gw: gw}
}

// Gateway exposes the underlying repositories to pipeline workers.
func (s *Service) Gateway() *Gateway { return s.gw }

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

func (s *Service) ListAccounts(ctx context.Context, f ListFilter) ([]domain.Account, int, error) {
	return s.gw.Accounts.List(ctx, f)
}

func (s *Service) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	return s.gw.Accounts.Get(ctx, id)
}

// CreateAccount validates and persists a new account.
func (s *Service) CreateAccount(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	a.Name = strings.TrimSpace(a.Name)
	errs := fieldErrors{}
	if a.Name == "" {
		errs.add("name", "is required")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return s.gw.Accounts.Create(ctx, a)
}

func (s *Service) UpdateAccount(ctx context.Context, id int64, u AccountUpdate) (*domain.Account, error) {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return nil, &ValidationError{Fields: map[string]string{"name": "cannot be empty"}}
	}
	return s.gw.Accounts.Update(ctx, id, u)
}

func (s *Service) DeleteAccount(ctx context.Context, id int64) error {
	return s.gw.Accounts.Delete(ctx, id)
}

// ---------------------------------------------------------------------------
// People
// ---------------------------------------------------------------------------

// PersonInput is the create payload for a person. Birthday is YYYY-MM-DD.
type PersonInput struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	AccountID   *int64 `json:"account_id"`
	Title       string `json:"title"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	LinkedIn    string `json:"linkedin"`
	Twitter     string `json:"twitter"`
	Facebook    string `json:"facebook"`
	Instagram   string `json:"instagram"`
	Birthday    string `json:"birthday"`
	Details     string `json:"details"`
	Description string `json:"description"`
}

// PersonPatch is the partial update payload for a person. An empty birthday
// string clears the stored date.
type PersonPatch struct {
	PersonUpdate
	Birthday *string `json:"birthday"`
}

func (s *Service) ListPeople(ctx context.Context, f ListFilter) ([]domain.Person, int, error) {
	return s.gw.People.List(ctx, f)
}

func (s *Service) GetPerson(ctx context.Context, id int64) (*domain.Person, error) {
	return s.gw.People.Get(ctx, id)
}

// CreatePerson validates and persists a new person.
func (s *Service) CreatePerson(ctx context.Context, in PersonInput) (*domain.Person, error) {
	p := &domain.Person{
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Title:       in.Title,
		Email:       strings.TrimSpace(in.Email),
		Phone:       in.Phone,
		LinkedIn:    in.LinkedIn,
		Twitter:     in.Twitter,
		Facebook:    in.Facebook,
		Instagram:   in.Instagram,
		Details:     in.Details,
		Description: in.Description,
	}
	errs := fieldErrors{}
	if p.FirstName == "" {
		errs.add("first_name", "is required")
	}
	if p.LastName == "" {
		errs.add("last_name", "is required")
	}
	if p.Email != "" && !validEmail(p.Email) {
		errs.add("email", "is not a valid email address")
	}
	if in.Birthday != "" {
		bd, err := ParseBirthday(in.Birthday)
		if err != nil {
			errs.add("birthday", "must be YYYY-MM-DD")
		} else {
			p.Birthday = &bd
		}
	}
	if in.AccountID != nil && *in.AccountID > 0 {
		if err := s.requireAccount(ctx, *in.AccountID, errs); err != nil {
			return nil, err
		}
		p.AccountID = in.AccountID
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return s.gw.People.Create(ctx, p)
}

// UpdatePerson applies a partial update.
func (s *Service) UpdatePerson(ctx context.Context, id int64, patch PersonPatch) (*domain.Person, error) {
	u := patch.PersonUpdate
	errs := fieldErrors{}
	if u.FirstName != nil && strings.TrimSpace(*u.FirstName) == "" {
		errs.add("first_name", "cannot be empty")
	}
	if u.LastName != nil && strings.TrimSpace(*u.LastName) == "" {
		errs.add("last_name", "cannot be empty")
	}
	if u.Email != nil && *u.Email != "" && !validEmail(*u.Email) {
		errs.add("email", "is not a valid email address")
	}
	if patch.Birthday != nil {
		if *patch.Birthday == "" {
			zero := time.Time{}
			u.Birthday = &zero
		} else if bd, err := ParseBirthday(*patch.Birthday); err != nil {
			errs.add("birthday", "must be YYYY-MM-DD")
		} else {
			u.Birthday = &bd
		}
	}
	if u.AccountID != nil && *u.AccountID > 0 {
		if err := s.requireAccount(ctx, *u.AccountID, errs); err != nil {
			return nil, err
		}
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return s.gw.People.Update(ctx, id, u)
}

func (s *Service) DeletePerson(ctx context.Context, id int64) error {
	return s.gw.People.Delete(ctx, id)
}

// ParseBirthday accepts a full YYYY-MM-DD date. Partial dates are rejected.
func ParseBirthday(v string) (time.Time, error) {
	return time.Parse("2006-01-02", strings.TrimSpace(v))
}

// ---------------------------------------------------------------------------
// Triggers
// ---------------------------------------------------------------------------

// TriggerPatch is the partial update payload for a trigger.
type TriggerPatch struct {
	TriggerUpdate
	Status *domain.TriggerStatus `json:"status"`
}

func (s *Service) ListTriggers(ctx context.Context, f ListFilter) ([]domain.Trigger, int, error) {
	return s.gw.Triggers.List(ctx, f)
}

func (s *Service) GetTrigger(ctx context.Context, id int64) (*domain.Trigger, error) {
	return s.gw.Triggers.Get(ctx, id)
}

// CreateTrigger records a manually entered trigger. It always starts as new;
// a person-scoped trigger inherits the person's account.
func (s *Service) CreateTrigger(ctx context.Context, t *domain.Trigger) (*domain.Trigger, error) {
	errs := fieldErrors{}
	t.Content = strings.TrimSpace(t.Content)
	if t.Content == "" {
		errs.add("content", "is required")
	}
	if t.TriggerType == "" {
		t.TriggerType = domain.TriggerNews
	}
	if !t.TriggerType.Valid() {
		errs.add("trigger_type", "must be one of news, birthday, anniversary, social_post")
	}
	if t.Status != "" && t.Status != domain.TriggerNew {
		errs.add("status", "new triggers must start as new")
	}
	t.Status = domain.TriggerNew
	if t.AccountID == nil && t.PersonID == nil {
		errs.add("account_id", "account_id or person_id is required")
	}
	if t.PersonID != nil {
		p, err := s.gw.People.Get(ctx, *t.PersonID)
		switch {
		case errors.Is(err, ErrNotFound):
			errs.add("person_id", "does not exist")
		case err != nil:
			return nil, err
		case t.AccountID == nil:
			t.AccountID = p.AccountID
		}
	}
	if t.AccountID != nil {
		if err := s.requireAccount(ctx, *t.AccountID, errs); err != nil {
			return nil, err
		}
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return s.gw.Triggers.Create(ctx, t)
}

// UpdateTrigger applies a partial update. A status change must move forward.
func (s *Service) UpdateTrigger(ctx context.Context, id int64, patch TriggerPatch) (*domain.Trigger, error) {
	u := patch.TriggerUpdate
	errs := fieldErrors{}
	if u.Content != nil && strings.TrimSpace(*u.Content) == "" {
		errs.add("content", "cannot be empty")
	}
	if u.TriggerType != nil && !u.TriggerType.Valid() {
		errs.add("trigger_type", "must be one of news, birthday, anniversary, social_post")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		errs.add("status", "must be one of new, handled, ignored")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	cur, err := s.gw.Triggers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	move := patch.Status != nil && *patch.Status != cur.Status
	if move && !cur.Status.CanTransition(*patch.Status) {
		return nil, fmt.Errorf("trigger %d %s -> %s: %w", cur.ID, cur.Status, *patch.Status, ErrInvalidTransition)
	}

	t, err := s.gw.Triggers.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}
	if move {
		return s.transitionTrigger(ctx, t, *patch.Status)
	}
	return t, nil
}

// IgnoreTrigger marks a new trigger as ignored.
func (s *Service) IgnoreTrigger(ctx context.Context, id int64) (*domain.Trigger, error) {
	t, err := s.gw.Triggers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transitionTrigger(ctx, t, domain.TriggerIgnored)
}

func (s *Service) transitionTrigger(ctx context.Context, t *domain.Trigger, next domain.TriggerStatus) (*domain.Trigger, error) {
	if !t.Status.CanTransition(next) {
		return nil, fmt.Errorf("trigger %d %s -> %s: %w", t.ID, t.Status, next, ErrInvalidTransition)
	}
	return s.gw.Triggers.UpdateStatus(ctx, t.ID, next)
}

func (s *Service) DeleteTrigger(ctx context.Context, id int64) error {
	return s.gw.Triggers.Delete(ctx, id)
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// MessagePatch is the partial update payload for a message.
type MessagePatch struct {
	MessageUpdate
	Status *domain.MessageStatus `json:"status"`
}

func (s *Service) ListMessages(ctx context.Context, f ListFilter) ([]domain.Message, int, error) {
	return s.gw.Messages.List(ctx, f)
}

func (s *Service) GetMessage(ctx context.Context, id int64) (*domain.Message, error) {
	return s.gw.Messages.Get(ctx, id)
}

// CreateMessage validates and persists a manually written message. An
// empty address is resolved from the person's channel for the medium.
func (s *Service) CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	errs := fieldErrors{}
	if m.Media == "" {
		m.Media = domain.MediaEmail
	}
	if !m.Media.Valid() {
		errs.add("media", "must be one of email, linkedin, twitter, phone")
	}
	if m.From == "" {
		m.From = domain.FromUs
	}
	if m.From != domain.FromUs && m.From != domain.FromLead {
		errs.add("from", "must be us or lead")
	}
	if m.Status == "" {
		m.Status = domain.MessageDraft
	}
	if m.Status != domain.MessageDraft {
		errs.add("status", "new messages must start as draft")
	}
	m.SentAt = nil
	if strings.TrimSpace(m.Content) == "" {
		errs.add("content", "is required")
	}

	var person *domain.Person
	if m.PersonID <= 0 {
		errs.add("person_id", "is required")
	} else {
		p, err := s.gw.People.Get(ctx, m.PersonID)
		switch {
		case errors.Is(err, ErrNotFound):
			errs.add("person_id", "does not exist")
		case err != nil:
			return nil, err
		default:
			person = p
		}
	}

	m.Address = strings.TrimSpace(m.Address)
	if m.Address == "" && person != nil && m.Media.Valid() {
		m.Address = person.Channel(m.Media)
	}
	if m.Address == "" && person != nil {
		errs.add("address", fmt.Sprintf("person has no %s address on file", m.Media))
	}

	if m.TriggerID != nil {
		if _, err := s.gw.Triggers.Get(ctx, *m.TriggerID); errors.Is(err, ErrNotFound) {
			errs.add("trigger_id", "does not exist")
		} else if err != nil {
			return nil, err
		}
	}
	if m.ConversationID != nil {
		if _, err := s.gw.Conversations.Get(ctx, *m.ConversationID); errors.Is(err, ErrNotFound) {
			errs.add("conversation_id", "does not exist")
		} else if err != nil {
			return nil, err
		}
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return s.gw.Messages.Create(ctx, m)
}

// UpdateMessage applies a partial update. Status changes are limited to the
// user-driven moves; sent and failed belong to the mailer.
func (s *Service) UpdateMessage(ctx context.Context, id int64, patch MessagePatch) (*domain.Message, error) {
	u := patch.MessageUpdate
	errs := fieldErrors{}
	if u.Address != nil && strings.TrimSpace(*u.Address) == "" {
		errs.add("address", "cannot be empty")
	}
	if u.Content != nil && strings.TrimSpace(*u.Content) == "" {
		errs.add("content", "cannot be empty")
	}
	if u.Media != nil && !u.Media.Valid() {
		errs.add("media", "must be one of email, linkedin, twitter, phone")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		errs.add("status", "must be one of draft, to_send, sent, failed")
	}
	if err := errs.err(); err != nil {
		return nil, err
	}

	current, err := s.gw.Messages.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Status != nil && *patch.Status != current.Status && !current.Status.CanTransition(*patch.Status) {
		return nil, fmt.Errorf("message %d %s -> %s: %w", id, current.Status, *patch.Status, ErrInvalidTransition)
	}

	m, err := s.gw.Messages.Update(ctx, id, u)
	if err != nil {
		return nil, err
	}
	if patch.Status != nil && *patch.Status != m.Status {
		return s.gw.Messages.UpdateStatus(ctx, id, *patch.Status)
	}
	return m, nil
}

// QueueMessage moves a draft (or a failed message being retried by hand) to to_send.
func (s *Service) QueueMessage(ctx context.Context, id int64) (*domain.Message, error) {
	m, err := s.gw.Messages.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.Status.CanTransition(domain.MessageToSend) {
		return nil, fmt.Errorf("message %d %s -> %s: %w", id, m.Status, domain.MessageToSend, ErrInvalidTransition)
	}
	return s.gw.Messages.UpdateStatus(ctx, id, domain.MessageToSend)
}

// PromoteDrafts moves every draft to to_send.
func (s *Service) PromoteDrafts(ctx context.Context) (int, error) {
	n, err := s.gw.Messages.PromoteDrafts(ctx)
	if err != nil {
		return 0, fmt.Errorf("promote drafts: %w", err)
	}
	logger.Info("crm: promoted drafts", "count", n)
	return n, nil
}

func (s *Service) DeleteMessage(ctx context.Context, id int64) error {
	return s.gw.Messages.Delete(ctx, id)
}

// ---------------------------------------------------------------------------
// Conversations
// ---------------------------------------------------------------------------

func (s *Service) ListConversations(ctx context.Context, f ListFilter) ([]domain.Conversation, int, error) {
	return s.gw.Conversations.List(ctx, f)
}

func (s *Service) GetConversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	return s.gw.Conversations.Get(ctx, id)
}

func (s *Service) CreateConversation(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error) {
	errs := fieldErrors{}
	if c.Media == "" {
		c.Media = domain.MediaEmail
	}
	if !c.Media.Valid() {
		errs.add("media", "must be one of email, linkedin, twitter, phone")
	}
	if c.PersonID <= 0 {
		errs.add("person_id", "is required")
	} else if _, err := s.gw.People.Get(ctx, c.PersonID); errors.Is(err, ErrNotFound) {
		errs.add("person_id", "does not exist")
	} else if err != nil {
		return nil, err
	}
	if err := errs.err(); err != nil {
		return nil, err
	}
	return s.gw.Conversations.Create(ctx, c)
}

func (s *Service) UpdateConversation(ctx context.Context, id int64, u ConversationUpdate) (*domain.Conversation, error) {
	if u.Media != nil && !u.Media.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"media": "must be one of email, linkedin, twitter, phone"}}
	}
	return s.gw.Conversations.Update(ctx, id, u)
}

func (s *Service) DeleteConversation(ctx context.Context, id int64) error {
	return s.gw.Conversations.Delete(ctx, id)
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats counts records for the dashboard.
func (s *Service) Stats(ctx context.Context) (*domain.Stats, error) {
	one := ListFilter{Limit: 1}
	st := &domain.Stats{
		TriggersByStatus: make(map[domain.TriggerStatus]int),
		MessagesByStatus: make(map[domain.MessageStatus]int),
	}

	var err error
	if _, st.Accounts, err = s.gw.Accounts.List(ctx, one); err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	if _, st.People, err = s.gw.People.List(ctx, one); err != nil {
		return nil, fmt.Errorf("count people: %w", err)
	}
	if _, st.Conversations, err = s.gw.Conversations.List(ctx, one); err != nil {
		return nil, fmt.Errorf("count conversations: %w", err)
	}
	for _, status := range []domain.TriggerStatus{domain.TriggerNew, domain.TriggerHandled, domain.TriggerIgnored} {
		f := one
		f.Status = string(status)
		_, n, err := s.gw.Triggers.List(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("count triggers: %w", err)
		}
		st.TriggersByStatus[status] = n
	}
	for _, status := range []domain.MessageStatus{domain.MessageDraft, domain.MessageToSend, domain.MessageSent, domain.MessageFailed} {
		f := one
		f.Status = string(status)
		_, n, err := s.gw.Messages.List(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("count messages: %w", err)
		}
		st.MessagesByStatus[status] = n
	}
	return st, nil
}

func (s *Service) requireAccount(ctx context.Context, id int64, errs fieldErrors) error {
	_, err := s.gw.Accounts.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		errs.add("account_id", "does not exist")
		return nil
	}
	return err
}

func validEmail(v string) bool {
	addr, err := mail.ParseAddress(v)
	return err == nil && addr.Address == strings.TrimSpace(v)
}
