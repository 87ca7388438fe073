package domain

import "time"

// MessageMedia enumerates the channels a message can go out on.
type MessageMedia string

const (
	MediaEmail    MessageMedia = "email"
	MediaLinkedIn MessageMedia = "linkedin"
	MediaTwitter  MessageMedia = "twitter"
	MediaPhone    MessageMedia = "phone"
)

// Valid reports whether m is a known medium.
func (m MessageMedia) Valid() bool {
	switch m {
	case MediaEmail, MediaLinkedIn, MediaTwitter, MediaPhone:
		return true
	}
	return false
}

// MessageStatus enumerates the lifecycle of a message.
type MessageStatus string

const (
	MessageDraft  MessageStatus = "draft"
	MessageToSend MessageStatus = "to_send"
	MessageSent   MessageStatus = "sent"
	MessageFailed MessageStatus = "failed"
)

// Valid reports whether s is a known message status.
func (s MessageStatus) Valid() bool {
	switch s {
	case MessageDraft, MessageToSend, MessageSent, MessageFailed:
		return true
	}
	return false
}

// IsTerminal returns true once the mailer has decided the outcome.
func (s MessageStatus) IsTerminal() bool {
	return s == MessageSent || s == MessageFailed
}

// MessageFrom tells who authored a message.
type MessageFrom string

const (
	FromUs   MessageFrom = "us"
	FromLead MessageFrom = "lead"
)

// Message is one outbound (or recorded inbound) communication with a person.
type Message struct {
	ID             int64         `json:"id" db:"id"`
	PersonID       int64         `json:"person_id" db:"person_id"`
	TriggerID      *int64        `json:"trigger_id" db:"trigger_id"`
	ConversationID *int64        `json:"conversation_id" db:"conversation_id"`
	Person         *Person       `json:"person,omitempty"`
	Trigger        *Trigger      `json:"trigger,omitempty"`
	Conversation   *Conversation `json:"conversation,omitempty"`
	Media          MessageMedia  `json:"media" db:"media"`
	Address        string        `json:"address" db:"address"`
	From           MessageFrom   `json:"from" db:"from_party"`
	Subject        string        `json:"subject" db:"subject"`
	Content        string        `json:"content" db:"content"`
	Status         MessageStatus `json:"status" db:"status"`
	SentAt         *time.Time    `json:"sent_at" db:"sent_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// OutreachDraft is the transient output of the outreach generator before it
// becomes a persisted Message.
type OutreachDraft struct {
	Subject string       `json:"subject"`
	Content string       `json:"content"`
	Tone    string       `json:"tone"`
	Media   MessageMedia `json:"media"`
}

// CanTransition reports whether a user action may move a message from s to
// next. sent and failed are reserved for the mailer and never targets here.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	switch s {
	case MessageDraft:
		return next == MessageToSend
	case MessageToSend:
		return next == MessageDraft
	case MessageFailed:
		return next == MessageToSend
	}
	return false
}
