package domain

import "time"

// Conversation groups the messages exchanged with one person.
type Conversation struct {
	ID        int64        `json:"id" db:"id"`
	PersonID  int64        `json:"person_id" db:"person_id"`
	Person    *Person      `json:"person,omitempty"`
	Subject   string       `json:"subject" db:"subject"`
	Media     MessageMedia `json:"media" db:"media"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}
