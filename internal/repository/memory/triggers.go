package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

// TriggerRepo implements crm.TriggerRepository in memory.
type TriggerRepo struct{ s *Store }

// triggerView returns a copy of t embedding its account and person. Caller holds the lock.
func (s *Store) triggerView(t *domain.Trigger) domain.Trigger {
	cp := *t
	cp.AccountID = copyID(t.AccountID)
	cp.PersonID = copyID(t.PersonID)
	cp.Account, cp.Person = nil, nil
	if cp.AccountID != nil {
		if a, ok := s.accounts[*cp.AccountID]; ok {
			ac := *a
			cp.Account = &ac
		}
	}
	if cp.PersonID != nil {
		if p, ok := s.people[*cp.PersonID]; ok {
			pc := s.withAccount(p)
			cp.Person = &pc
		}
	}
	return cp
}

func (s *Store) dropTrigger(id int64) {
	delete(s.triggers, id)
	for _, m := range s.messages {
		if m.TriggerID != nil && *m.TriggerID == id {
			m.TriggerID = nil
		}
	}
}

func (s *Store) findBySource(accountID, personID *int64, url string) *domain.Trigger {
	if url == "" {
		return nil
	}
	for _, t := range s.triggers {
		if t.URL == url && t.SameSubject(accountID, personID) {
			return t
		}
	}
	return nil
}

func (s *Store) insertTrigger(t *domain.Trigger) *domain.Trigger {
	cp := *t
	cp.Account, cp.Person = nil, nil
	cp.AccountID = copyID(t.AccountID)
	cp.PersonID = copyID(t.PersonID)
	if cp.Status == "" {
		cp.Status = domain.TriggerNew
	}
	cp.ID = s.nextID()
	cp.CreatedAt = s.Now()
	cp.UpdatedAt = cp.CreatedAt
	s.triggers[cp.ID] = &cp
	return &cp
}

func (r *TriggerRepo) List(_ context.Context, f crm.ListFilter) ([]domain.Trigger, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Trigger{}
	for _, t := range r.s.triggers {
		if !idMatches(f.AccountID, t.AccountID) || !idMatches(f.PersonID, t.PersonID) {
			continue
		}
		if f.Status != "" && string(t.Status) != f.Status {
			continue
		}
		if f.Type != "" && string(t.TriggerType) != f.Type {
			continue
		}
		if f.Media != "" && t.Media != f.Media {
			continue
		}
		if f.Search != "" && !containsFold(t.Content, f.Search) {
			continue
		}
		if f.CreatedSince != nil && t.CreatedAt.Before(*f.CreatedSince) {
			continue
		}
		out = append(out, r.s.triggerView(t))
	}
	newestFirst(out, func(t domain.Trigger) time.Time { return t.CreatedAt }, func(t domain.Trigger) int64 { return t.ID })
	items, total := page(out, f)
	return items, total, nil
}

func (r *TriggerRepo) Get(_ context.Context, id int64) (*domain.Trigger, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.triggers[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	v := r.s.triggerView(t)
	return &v, nil
}

// Create inserts t. Like the SQL unique index, a second trigger with the same
// subject and non-empty url is rejected.
func (r *TriggerRepo) Create(_ context.Context, t *domain.Trigger) (*domain.Trigger, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing := r.s.findBySource(t.AccountID, t.PersonID, t.URL); existing != nil {
		return nil, fmt.Errorf("create trigger: duplicate source url (existing id %d)", existing.ID)
	}
	v := r.s.triggerView(r.s.insertTrigger(t))
	return &v, nil
}

func (r *TriggerRepo) Update(_ context.Context, id int64, u crm.TriggerUpdate) (*domain.Trigger, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.triggers[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	if u.TriggerType != nil {
		t.TriggerType = *u.TriggerType
	}
	if u.Content != nil {
		t.Content = *u.Content
	}
	if u.URL != nil {
		t.URL = *u.URL
	}
	if u.Media != nil {
		t.Media = *u.Media
	}
	t.UpdatedAt = r.s.Now()
	v := r.s.triggerView(t)
	return &v, nil
}

func (r *TriggerRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.triggers[id]; !ok {
		return crm.ErrNotFound
	}
	r.s.dropTrigger(id)
	return nil
}

func (r *TriggerRepo) ListByStatus(_ context.Context, status domain.TriggerStatus) ([]domain.Trigger, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Trigger{}
	for _, t := range r.s.triggers {
		if t.Status == status {
			out = append(out, r.s.triggerView(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *TriggerRepo) Recent(ctx context.Context, n int) ([]domain.Trigger, error) {
	items, _, err := r.List(ctx, crm.ListFilter{Limit: n})
	return items, err
}

func (r *TriggerRepo) FindBySource(_ context.Context, accountID, personID *int64, url string) (*domain.Trigger, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t := r.s.findBySource(accountID, personID, url)
	if t == nil {
		return nil, crm.ErrNotFound
	}
	v := r.s.triggerView(t)
	return &v, nil
}

func (r *TriggerRepo) CreateIfAbsent(_ context.Context, t *domain.Trigger) (*domain.Trigger, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing := r.s.findBySource(t.AccountID, t.PersonID, t.URL); existing != nil {
		v := r.s.triggerView(existing)
		return &v, false, nil
	}
	v := r.s.triggerView(r.s.insertTrigger(t))
	return &v, true, nil
}

func (r *TriggerRepo) UpdateStatus(_ context.Context, id int64, status domain.TriggerStatus) (*domain.Trigger, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.triggers[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	t.Status = status
	t.UpdatedAt = r.s.Now()
	v := r.s.triggerView(t)
	return &v, nil
}
