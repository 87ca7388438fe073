package crm

import (
	"context"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
)

// DefaultLimit is the page size used when a ListFilter carries none.
const DefaultLimit = 50

// ListFilter controls pagination and filtering for entity lists. Fields that
// do not apply to an entity are ignored by its repository.
type ListFilter struct {
	Search         string
	AccountID      *int64
	PersonID       *int64
	TriggerID      *int64
	ConversationID *int64
	Status         string
	Type           string
	Media          string
	CreatedSince   *time.Time
	Limit          int
	Offset         int
}

// EffectiveLimit returns Limit, or DefaultLimit when unset.
func (f ListFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultLimit
	}
	return f.Limit
}

// AccountRepository defines the data access contract for accounts.
// Implementations must be safe for concurrent use.
type AccountRepository interface {
	List(ctx context.Context, f ListFilter) ([]domain.Account, int, error)
	Get(ctx context.Context, id int64) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) (*domain.Account, error)
	Update(ctx context.Context, id int64, u AccountUpdate) (*domain.Account, error)
	Delete(ctx context.Context, id int64) error
}

// PersonRepository defines the data access contract for people. Returned
// people embed their account.
type PersonRepository interface {
	List(ctx context.Context, f ListFilter) ([]domain.Person, int, error)
	Get(ctx context.Context, id int64) (*domain.Person, error)
	Create(ctx context.Context, p *domain.Person) (*domain.Person, error)
	Update(ctx context.Context, id int64, u PersonUpdate) (*domain.Person, error)
	Delete(ctx context.Context, id int64) error
}

// TriggerRepository defines the data access contract for triggers. Returned
// triggers embed their account and person.
type TriggerRepository interface {
	List(ctx context.Context, f ListFilter) ([]domain.Trigger, int, error)
	Get(ctx context.Context, id int64) (*domain.Trigger, error)
	Create(ctx context.Context, t *domain.Trigger) (*domain.Trigger, error)
	Update(ctx context.Context, id int64, u TriggerUpdate) (*domain.Trigger, error)
	Delete(ctx context.Context, id int64) error

	// ListByStatus returns every trigger in status, oldest first.
	ListByStatus(ctx context.Context, status domain.TriggerStatus) ([]domain.Trigger, error)
	// Recent returns the n most recently created triggers.
	Recent(ctx context.Context, n int) ([]domain.Trigger, error)
	// FindBySource returns the trigger recorded for (subject, url) or ErrNotFound.
	FindBySource(ctx context.Context, accountID, personID *int64, url string) (*domain.Trigger, error)
	// CreateIfAbsent inserts t unless a trigger with the same subject and
	// non-empty url exists. created is false when the existing row is returned.
	CreateIfAbsent(ctx context.Context, t *domain.Trigger) (tr *domain.Trigger, created bool, err error)
	// UpdateStatus sets the status without checking the transition.
	UpdateStatus(ctx context.Context, id int64, status domain.TriggerStatus) (*domain.Trigger, error)
}

// MessageRepository defines the data access contract for messages. Returned
// messages embed their person, trigger and conversation.
type MessageRepository interface {
	List(ctx context.Context, f ListFilter) ([]domain.Message, int, error)
	Get(ctx context.Context, id int64) (*domain.Message, error)
	Create(ctx context.Context, m *domain.Message) (*domain.Message, error)
	Update(ctx context.Context, id int64, u MessageUpdate) (*domain.Message, error)
	Delete(ctx context.Context, id int64) error

	// ListByStatus returns every message in status, oldest first.
	ListByStatus(ctx context.Context, status domain.MessageStatus) ([]domain.Message, error)
	// CreateDraftForTrigger inserts m and marks m.TriggerID handled in one
	// transaction. It fails with ErrTriggerNotNew if the trigger was already
	// handled or ignored, leaving no message behind.
	CreateDraftForTrigger(ctx context.Context, m *domain.Message) (*domain.Message, error)
	// MarkSent sets status sent and sent_at = max(at, created_at).
	MarkSent(ctx context.Context, id int64, at time.Time) error
	// MarkFailed sets status failed and clears sent_at.
	MarkFailed(ctx context.Context, id int64) error
	// PromoteDrafts moves every draft to to_send and returns how many moved.
	PromoteDrafts(ctx context.Context) (int, error)
	// UpdateStatus sets the status without checking the transition.
	UpdateStatus(ctx context.Context, id int64, status domain.MessageStatus) (*domain.Message, error)
}

// ConversationRepository defines the data access contract for conversations.
type ConversationRepository interface {
	List(ctx context.Context, f ListFilter) ([]domain.Conversation, int, error)
	Get(ctx context.Context, id int64) (*domain.Conversation, error)
	Create(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error)
	Update(ctx context.Context, id int64, u ConversationUpdate) (*domain.Conversation, error)
	Delete(ctx context.Context, id int64) error
}

// Gateway is the persistence surface shared by every component.
type Gateway struct {
	Accounts      AccountRepository
	People        PersonRepository
	Triggers      TriggerRepository
	Messages      MessageRepository
	Conversations ConversationRepository
}

// AccountUpdate holds the mutable fields for an account update.
// Nil fields are not applied.
type AccountUpdate struct {
	Name        *string `json:"name"`
	Field       *string `json:"field"`
	Address     *string `json:"address"`
	Website     *string `json:"website"`
	Description *string `json:"description"`
}

// PersonUpdate holds the mutable fields for a person update.
// AccountID 0 unlinks the person; a zero Birthday clears it.
type PersonUpdate struct {
	FirstName   *string    `json:"first_name"`
	LastName    *string    `json:"last_name"`
	AccountID   *int64     `json:"account_id"`
	Title       *string    `json:"title"`
	Email       *string    `json:"email"`
	Phone       *string    `json:"phone"`
	LinkedIn    *string    `json:"linkedin"`
	Twitter     *string    `json:"twitter"`
	Facebook    *string    `json:"facebook"`
	Instagram   *string    `json:"instagram"`
	Birthday    *time.Time `json:"-"`
	Details     *string    `json:"details"`
	Description *string    `json:"description"`
}

// TriggerUpdate holds the mutable fields for a trigger update. Status goes
// through UpdateStatus.
type TriggerUpdate struct {
	TriggerType *domain.TriggerType `json:"trigger_type"`
	Content     *string             `json:"content"`
	URL         *string             `json:"url"`
	Media       *string             `json:"media"`
}

// MessageUpdate holds the mutable fields for a message update. Status goes
// through UpdateStatus. ConversationID 0 detaches the message.
type MessageUpdate struct {
	ConversationID *int64               `json:"conversation_id"`
	Media          *domain.MessageMedia `json:"media"`
	Address        *string              `json:"address"`
	Subject        *string              `json:"subject"`
	Content        *string              `json:"content"`
}

// ConversationUpdate holds the mutable fields for a conversation update.
type ConversationUpdate struct {
	Subject *string              `json:"subject"`
	Media   *domain.MessageMedia `json:"media"`
}
