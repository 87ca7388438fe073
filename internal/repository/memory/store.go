// Package memory implements the crm repositories in process memory. It backs
// unit tests and the database-less dev mode.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

// Store holds every entity behind one mutex so cross-entity writes
// (draft creation plus trigger status) are atomic.
type Store struct {
	mu            sync.RWMutex
	seq           int64
	accounts      map[int64]*domain.Account
	people        map[int64]*domain.Person
	triggers      map[int64]*domain.Trigger
	messages      map[int64]*domain.Message
	conversations map[int64]*domain.Conversation

	// Now is the clock used for timestamps. Tests may replace it.
	Now func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		accounts:      make(map[int64]*domain.Account),
		people:        make(map[int64]*domain.Person),
		triggers:      make(map[int64]*domain.Trigger),
		messages:      make(map[int64]*domain.Message),
		conversations: make(map[int64]*domain.Conversation),
		Now:           time.Now,
	}
}

// NewGateway returns a crm.Gateway over a fresh store.
func NewGateway() *crm.Gateway {
	return NewStore().Gateway()
}

// Gateway wraps the store in the crm repository interfaces.
func (s *Store) Gateway() *crm.Gateway {
	return &crm.Gateway{
		Accounts:      &AccountRepo{s},
		People:        &PersonRepo{s},
		Triggers:      &TriggerRepo{s},
		Messages:      &MessageRepo{s},
		Conversations: &ConversationRepo{s},
	}
}

func (s *Store) nextID() int64 {
	s.seq++
	return s.seq
}

// page applies offset/limit and returns the window plus total.
func page[T any](items []T, f crm.ListFilter) ([]T, int) {
	total := len(items)
	if f.Offset >= total {
		return []T{}, total
	}
	end := f.Offset + f.EffectiveLimit()
	if end > total {
		end = total
	}
	return items[f.Offset:end], total
}

// newestFirst orders by created_at DESC, id DESC.
func newestFirst[T any](items []T, created func(T) time.Time, id func(T) int64) {
	sort.SliceStable(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return id(items[i]) > id(items[j])
	})
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func idMatches(want, got *int64) bool {
	if want == nil {
		return true
	}
	return got != nil && *got == *want
}

func ptr[T any](v T) *T { return &v }

func copyID(p *int64) *int64 {
	if p == nil {
		return nil
	}
	return ptr(*p)
}
