package memory

import (
	"context"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

// PersonRepo implements crm.PersonRepository in memory.
type PersonRepo struct{ s *Store }

// withAccount returns a copy of p embedding its account. Caller holds the lock.
func (s *Store) withAccount(p *domain.Person) domain.Person {
	cp := *p
	cp.AccountID = copyID(p.AccountID)
	if p.Birthday != nil {
		cp.Birthday = ptr(*p.Birthday)
	}
	cp.Account = nil
	if cp.AccountID != nil {
		if a, ok := s.accounts[*cp.AccountID]; ok {
			ac := *a
			cp.Account = &ac
		}
	}
	return cp
}

func (r *PersonRepo) List(_ context.Context, f crm.ListFilter) ([]domain.Person, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []domain.Person{}
	for _, p := range r.s.people {
		if !idMatches(f.AccountID, p.AccountID) {
			continue
		}
		if f.Search != "" && !containsFold(p.FirstName+" "+p.LastName+" "+p.Email+" "+p.Title, f.Search) {
			continue
		}
		if f.CreatedSince != nil && p.CreatedAt.Before(*f.CreatedSince) {
			continue
		}
		out = append(out, r.s.withAccount(p))
	}
	newestFirst(out, func(p domain.Person) time.Time { return p.CreatedAt }, func(p domain.Person) int64 { return p.ID })
	items, total := page(out, f)
	return items, total, nil
}

func (r *PersonRepo) Get(_ context.Context, id int64) (*domain.Person, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.people[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	cp := r.s.withAccount(p)
	return &cp, nil
}

func (r *PersonRepo) Create(_ context.Context, p *domain.Person) (*domain.Person, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *p
	cp.Account = nil
	cp.AccountID = copyID(p.AccountID)
	cp.ID = r.s.nextID()
	cp.CreatedAt = r.s.Now()
	cp.UpdatedAt = cp.CreatedAt
	r.s.people[cp.ID] = &cp
	out := r.s.withAccount(&cp)
	return &out, nil
}

func (r *PersonRepo) Update(_ context.Context, id int64, u crm.PersonUpdate) (*domain.Person, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.people[id]
	if !ok {
		return nil, crm.ErrNotFound
	}
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.FirstName, u.FirstName)
	set(&p.LastName, u.LastName)
	set(&p.Title, u.Title)
	set(&p.Email, u.Email)
	set(&p.Phone, u.Phone)
	set(&p.LinkedIn, u.LinkedIn)
	set(&p.Twitter, u.Twitter)
	set(&p.Facebook, u.Facebook)
	set(&p.Instagram, u.Instagram)
	set(&p.Details, u.Details)
	set(&p.Description, u.Description)
	if u.AccountID != nil {
		if *u.AccountID == 0 {
			p.AccountID = nil
		} else {
			p.AccountID = ptr(*u.AccountID)
		}
	}
	if u.Birthday != nil {
		if u.Birthday.IsZero() {
			p.Birthday = nil
		} else {
			p.Birthday = ptr(*u.Birthday)
		}
	}
	p.UpdatedAt = r.s.Now()
	out := r.s.withAccount(p)
	return &out, nil
}

// Delete removes the person with their triggers, messages and conversations.
func (r *PersonRepo) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.people[id]; !ok {
		return crm.ErrNotFound
	}
	delete(r.s.people, id)
	for tid, t := range r.s.triggers {
		if t.PersonID != nil && *t.PersonID == id {
			r.s.dropTrigger(tid)
		}
	}
	for mid, m := range r.s.messages {
		if m.PersonID == id {
			delete(r.s.messages, mid)
		}
	}
	for cid, c := range r.s.conversations {
		if c.PersonID == id {
			r.s.dropConversation(cid)
		}
	}
	return nil
}
