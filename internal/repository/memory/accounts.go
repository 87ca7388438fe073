package memory

import (
	"context"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

// AccountRepo implements crm.AccountRepository in memory.
type AccountRepo struct{ s *Store }

func (r *AccountRepo) List(_ context.Context, f crm.ListFilter) ([]domain.Account, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Account{}
	for _, a := range r.s.accounts {
		if f.Search != "" && !containsFold(a.Name+" "+a.Field+" "+a.Website, f.Search) {
			continue
		}
		if f.CreatedSince != nil && a.CreatedAt.Before(*f.CreatedSince) {
			continue
		}
		out = append(out, *a)
	}
	newestFirst(out, func(a domain.Account) time.Time { return a.CreatedAt }, func(a domain.Account) int64 { return a.ID })
	items, total := page(out, f)
	return items, total, nil
}

func (r *AccountRepo) Get(_ context.Context, id int64) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *AccountRepo) Create(_ context.Context, a *domain.Account) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *a
	cp.ID = r.s.nextID()
	cp.CreatedAt = r.s.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.s.accounts[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *AccountRepo) Update(_ context.Context, id int64, u crm.AccountUpdate) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	if u.Name != nil {
		a.Name = *u.Name
	}
	if u.Field != nil {
		a.Field = *u.Field
	}
	if u.Address != nil {
		a.Address = *u.Address
	}
	if u.Website != nil {
		a.Website = *u.Website
	}
	if u.Description != nil {
		a.Description = *u.Description
	}
	a.UpdatedAt = r.s.Now()
	cp := *a
	return &cp, nil
}

// Delete removes the account, unlinks its people and drops its account-level
// triggers. Person-scoped triggers lose the account id, as in the SQL schema.
func (r *AccountRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[id]; !ok {
		return crm.ErrNotFound
	}
	delete(r.s.accounts, id)
	for _, p := range r.s.people {
		if p.AccountID != nil && *p.AccountID == id {
			p.AccountID = nil
		}
	}
	for tid, t := range r.s.triggers {
		if t.AccountID == nil || *t.AccountID != id {
			continue
		}
		if t.PersonID != nil {
			t.AccountID = nil
			continue
		}
		r.s.dropTrigger(tid)
	}
	return nil
}
