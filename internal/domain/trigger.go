package domain

import "time"

// TriggerType enumerates the kinds of external events that may warrant outreach.
type TriggerType string

const (
	TriggerNews        TriggerType = "news"
	TriggerBirthday    TriggerType = "birthday"
	TriggerAnniversary TriggerType = "anniversary"
	TriggerSocialPost  TriggerType = "social_post"
)

// Valid reports whether t is a known trigger type.
func (t TriggerType) Valid() bool {
	switch t {
	case TriggerNews, TriggerBirthday, TriggerAnniversary, TriggerSocialPost:
		return true
	}
	return false
}

// TriggerStatus enumerates the lifecycle states of a trigger.
type TriggerStatus string

const (
	TriggerNew     TriggerStatus = "new"
	TriggerHandled TriggerStatus = "handled"
	TriggerIgnored TriggerStatus = "ignored"
)

// Valid reports whether s is a known trigger status.
func (s TriggerStatus) Valid() bool {
	return s == TriggerNew || s == TriggerHandled || s == TriggerIgnored
}

// CanTransition reports whether a trigger may move from s to next.
// Status only moves forward: new -> handled | ignored.
func (s TriggerStatus) CanTransition(next TriggerStatus) bool {
	return s == TriggerNew && (next == TriggerHandled || next == TriggerIgnored)
}

// Trigger is a detected event. At least one of AccountID/PersonID is set;
// person-scoped triggers carry the person's account id at creation time.
type Trigger struct {
	ID          int64         `json:"id" db:"id"`
	AccountID   *int64        `json:"account_id" db:"account_id"`
	PersonID    *int64        `json:"person_id" db:"person_id"`
	Account     *Account      `json:"account,omitempty"`
	Person      *Person       `json:"person,omitempty"`
	TriggerType TriggerType   `json:"trigger_type" db:"trigger_type"`
	Status      TriggerStatus `json:"status" db:"status"`
	Content     string        `json:"content" db:"content"`
	URL         string        `json:"url" db:"url"`
	Media       string        `json:"media" db:"media"` // source label, e.g. hostname
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// IsPersonScoped reports whether the trigger references a specific contact.
func (t *Trigger) IsPersonScoped() bool { return t.PersonID != nil }

// SameSubject reports whether t is about the given subject. A person-scoped
// subject is the person alone, since the copied account id follows the
// person's employer.
func (t *Trigger) SameSubject(accountID, personID *int64) bool {
	if personID != nil {
		return eqID(t.PersonID, personID)
	}
	return t.PersonID == nil && eqID(t.AccountID, accountID)
}

func eqID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
