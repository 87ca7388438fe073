package memory

import (
	"context"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

// ConversationRepo implements crm.ConversationRepository in memory.
type ConversationRepo struct{ s *Store }

func (s *Store) dropConversation(id int64) {
	delete(s.conversations, id)
	for _, m := range s.messages {
		if m.ConversationID != nil && *m.ConversationID == id {
			m.ConversationID = nil
		}
	}
}

func (s *Store) conversationView(c *domain.Conversation) domain.Conversation {
	cp := *c
	cp.Person = nil
	if p, ok := s.people[c.PersonID]; ok {
		pc := s.withAccount(p)
		cp.Person = &pc
	}
	return cp
}

func (r *ConversationRepo) List(_ context.Context, f crm.ListFilter) ([]domain.Conversation, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Conversation{}
	for _, c := range r.s.conversations {
		if f.PersonID != nil && c.PersonID != *f.PersonID {
			continue
		}
		if f.Media != "" && string(c.Media) != f.Media {
			continue
		}
		if f.Search != "" && !containsFold(c.Subject, f.Search) {
			continue
		}
		out = append(out, r.s.conversationView(c))
	}
	newestFirst(out, func(c domain.Conversation) time.Time { return c.CreatedAt }, func(c domain.Conversation) int64 { return c.ID })
	items, total := page(out, f)
	return items, total, nil
}

func (r *ConversationRepo) Get(_ context.Context, id int64) (*domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	v := r.s.conversationView(c)
	return &v, nil
}

func (r *ConversationRepo) Create(_ context.Context, c *domain.Conversation) (*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *c
	cp.Person = nil
	cp.ID = r.s.nextID()
	cp.CreatedAt = r.s.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.s.conversations[cp.ID] = &cp
	v := r.s.conversationView(&cp)
	return &v, nil
}

func (r *ConversationRepo) Update(_ context.Context, id int64, u crm.ConversationUpdate) (*domain.Conversation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.conversations[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	if u.Subject != nil {
		c.Subject = *u.Subject
	}
	if u.Media != nil {
		c.Media = *u.Media
	}
	c.UpdatedAt = r.s.Now()
	v := r.s.conversationView(c)
	return &v, nil
}

func (r *ConversationRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.conversations[id]; !ok {
		return crm.ErrNotFound
	}
	r.s.dropConversation(id)
	return nil
}
