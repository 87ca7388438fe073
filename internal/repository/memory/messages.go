package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

// MessageRepo implements crm.MessageRepository in memory.
type MessageRepo struct{ s *Store }

// messageView returns a copy of m embedding person, trigger and conversation.
// Caller holds the lock.
func (s *Store) messageView(m *domain.Message) domain.Message {
	cp := *m
	cp.TriggerID = copyID(m.TriggerID)
	cp.ConversationID = copyID(m.ConversationID)
	if m.SentAt != nil {
		cp.SentAt = ptr(*m.SentAt)
	}
	cp.Person, cp.Trigger, cp.Conversation = nil, nil, nil
	if p, ok := s.people[cp.PersonID]; ok {
		pc := s.withAccount(p)
		cp.Person = &pc
	}
	if cp.TriggerID != nil {
		if t, ok := s.triggers[*cp.TriggerID]; ok {
			tc := *t
			tc.Account, tc.Person = nil, nil
			cp.Trigger = &tc
		}
	}
	if cp.ConversationID != nil {
		if c, ok := s.conversations[*cp.ConversationID]; ok {
			cc := *c
			cp.Conversation = &cc
		}
	}
	return cp
}

func (s *Store) insertMessage(m *domain.Message) (*domain.Message, error) {
	if _, ok := s.people[m.PersonID]; !ok {
		return nil, fmt.Errorf("create message: person %d does not exist", m.PersonID)
	}
	if m.TriggerID != nil {
		for _, other := range s.messages {
			if other.TriggerID != nil && *other.TriggerID == *m.TriggerID {
				return nil, fmt.Errorf("create message: trigger %d already has message %d", *m.TriggerID, other.ID)
			}
		}
	}
	cp := *m
	cp.Person, cp.Trigger, cp.Conversation = nil, nil, nil
	cp.TriggerID = copyID(m.TriggerID)
	cp.ConversationID = copyID(m.ConversationID)
	cp.ID = s.nextID()
	cp.CreatedAt = s.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.messages[cp.ID] = &cp
	return &cp, nil
}

func (r *MessageRepo) List(_ context.Context, f crm.ListFilter) ([]domain.Message, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Message{}
	for _, m := range r.s.messages {
		if f.PersonID != nil && m.PersonID != *f.PersonID {
			continue
		}
		if !idMatches(f.TriggerID, m.TriggerID) || !idMatches(f.ConversationID, m.ConversationID) {
			continue
		}
		if f.Status != "" && string(m.Status) != f.Status {
			continue
		}
		if f.Media != "" && string(m.Media) != f.Media {
			continue
		}
		if f.Search != "" && !containsFold(m.Subject+" "+m.Content, f.Search) {
			continue
		}
		if f.CreatedSince != nil && m.CreatedAt.Before(*f.CreatedSince) {
			continue
		}
		out = append(out, r.s.messageView(m))
	}
	newestFirst(out, func(m domain.Message) time.Time { return m.CreatedAt }, func(m domain.Message) int64 { return m.ID })
	items, total := page(out, f)
	return items, total, nil
}

func (r *MessageRepo) Get(_ context.Context, id int64) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	v := r.s.messageView(m)
	return &v, nil
}

func (r *MessageRepo) Create(_ context.Context, m *domain.Message) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, err := r.s.insertMessage(m)
	if err != nil {
		return nil, err
	}
	v := r.s.messageView(stored)
	return &v, nil
}

func (r *MessageRepo) Update(_ context.Context, id int64, u crm.MessageUpdate) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	if u.ConversationID != nil {
		if *u.ConversationID == 0 {
			m.ConversationID = nil
		} else {
			m.ConversationID = ptr(*u.ConversationID)
		}
	}
	if u.Media != nil {
		m.Media = *u.Media
	}
	if u.Address != nil {
		m.Address = *u.Address
	}
	if u.Subject != nil {
		m.Subject = *u.Subject
	}
	if u.Content != nil {
		m.Content = *u.Content
	}
	m.UpdatedAt = r.s.Now()
	v := r.s.messageView(m)
	return &v, nil
}

func (r *MessageRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.messages[id]; !ok {
		return crm.ErrNotFound
	}
	delete(r.s.messages, id)
	return nil
}

func (r *MessageRepo) ListByStatus(_ context.Context, status domain.MessageStatus) ([]domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Message{}
	for _, m := range r.s.messages {
		if m.Status == status {
			out = append(out, r.s.messageView(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MessageRepo) CreateDraftForTrigger(_ context.Context, m *domain.Message) (*domain.Message, error) {
	if m.TriggerID == nil {
		return nil, fmt.Errorf("create draft: trigger id is required")
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.triggers[*m.TriggerID]
	if !ok {
		return nil, crm.ErrNotFound
	}
	if t.Status != domain.TriggerNew {
		return nil, crm.ErrTriggerNotNew
	}
	draft := *m
	draft.Status = domain.MessageDraft
	draft.SentAt = nil
	stored, err := r.s.insertMessage(&draft)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TriggerHandled
	t.UpdatedAt = r.s.Now()
	v := r.s.messageView(stored)
	return &v, nil
}

func (r *MessageRepo) MarkSent(_ context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return crm.ErrNotFound
	}
	if at.Before(m.CreatedAt) {
		at = m.CreatedAt
	}
	m.Status = domain.MessageSent
	m.SentAt = ptr(at)
	m.UpdatedAt = r.s.Now()
	return nil
}

func (r *MessageRepo) MarkFailed(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return crm.ErrNotFound
	}
	m.Status = domain.MessageFailed
	m.SentAt = nil
	m.UpdatedAt = r.s.Now()
	return nil
}

func (r *MessageRepo) PromoteDrafts(_ context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	now := r.s.Now()
	for _, m := range r.s.messages {
		if m.Status == domain.MessageDraft {
			m.Status = domain.MessageToSend
			m.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *MessageRepo) UpdateStatus(_ context.Context, id int64, status domain.MessageStatus) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	m.Status = status
	m.UpdatedAt = r.s.Now()
	v := r.s.messageView(m)
	return &v, nil
}
