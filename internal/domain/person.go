package domain

import (
	"strings"
	"time"
)

// Person is a contact. A person may be unaffiliated (AccountID == nil).
type Person struct {
	ID        int64    `json:"id" db:"id"`
	FirstName string   `json:"first_name" db:"first_name"`
	LastName  string   `json:"last_name" db:"last_name"`
	AccountID *int64   `json:"account_id" db:"account_id"`
	Account   *Account `json:"account,omitempty"`
	Title     string   `json:"title" db:"title"`

	Email     string `json:"email" db:"email"`
	Phone     string `json:"phone" db:"phone"`
	LinkedIn  string `json:"linkedin" db:"linkedin"`
	Twitter   string `json:"twitter" db:"twitter"`
	Facebook  string `json:"facebook" db:"facebook"`
	Instagram string `json:"instagram" db:"instagram"`

	// Birthday is the structured date of birth. Only month and day are used.
	Birthday    *time.Time `json:"birthday,omitempty" db:"birthday"`
	Details     string     `json:"details" db:"details"`
	Description string     `json:"description" db:"description"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName returns "First Last" with surrounding whitespace trimmed.
func (p *Person) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// CompanyName returns the embedded account name, or "" for unaffiliated people.
func (p *Person) CompanyName() string {
	if p.Account == nil {
		return ""
	}
	return p.Account.Name
}

// Channel returns the contact string stored for the given medium.
func (p *Person) Channel(media MessageMedia) string {
	switch media {
	case MediaEmail:
		return strings.TrimSpace(p.Email)
	case MediaLinkedIn:
		return strings.TrimSpace(p.LinkedIn)
	case MediaTwitter:
		return strings.TrimSpace(p.Twitter)
	case MediaPhone:
		return strings.TrimSpace(p.Phone)
	}
	return ""
}

// Channels returns the non-empty contact channels keyed by name.
func (p *Person) Channels() map[string]string {
	out := make(map[string]string)
	for k, v := range map[string]string{
		"email":     p.Email,
		"phone":     p.Phone,
		"linkedin":  p.LinkedIn,
		"twitter":   p.Twitter,
		"facebook":  p.Facebook,
		"instagram": p.Instagram,
	} {
		if v = strings.TrimSpace(v); v != "" {
			out[k] = v
		}
	}
	return out
}
