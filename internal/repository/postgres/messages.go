package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

const messageColumns = `m.id, m.person_id, m.trigger_id, m.conversation_id, m.media, m.address,
	m.from_party, m.subject, m.content, m.status, m.sent_at, m.created_at, m.updated_at,
	p.first_name, p.last_name, p.email, p.linkedin, p.twitter, p.account_id,
	COALESCE(t.trigger_type, ''), COALESCE(t.status, ''), COALESCE(t.content, ''), COALESCE(t.url, ''),
	COALESCE(c.subject, '')`

const messageFrom = `messages m
	JOIN people p ON p.id = m.person_id
	LEFT JOIN triggers t ON t.id = m.trigger_id
	LEFT JOIN conversations c ON c.id = m.conversation_id`

// MessageRepo implements crm.MessageRepository against PostgreSQL.
type MessageRepo struct{ db *sql.DB }

// NewMessageRepo creates a Postgres-backed message repository.
func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{db: db} }

func scanMessage(s rowScanner) (*domain.Message, error) {
	m := &domain.Message{Person: &domain.Person{}}
	var (
		triggerID, conversationID, accountID sql.NullInt64
		sentAt                               sql.NullTime
		tType, tStatus, tContent, tURL       string
		convSubject                          string
	)
	if err := s.Scan(
		&m.ID, &m.PersonID, &triggerID, &conversationID, &m.Media, &m.Address,
		&m.From, &m.Subject, &m.Content, &m.Status, &sentAt, &m.CreatedAt, &m.UpdatedAt,
		&m.Person.FirstName, &m.Person.LastName, &m.Person.Email, &m.Person.LinkedIn, &m.Person.Twitter, &accountID,
		&tType, &tStatus, &tContent, &tURL,
		&convSubject,
	); err != nil {
		return nil, err
	}
	m.Person.ID = m.PersonID
	m.Person.AccountID = idPtr(accountID)
	m.TriggerID = idPtr(triggerID)
	m.ConversationID = idPtr(conversationID)
	if sentAt.Valid {
		at := sentAt.Time
		m.SentAt = &at
	}
	if m.TriggerID != nil {
		m.Trigger = &domain.Trigger{
			ID:          *m.TriggerID,
			TriggerType: domain.TriggerType(tType),
			Status:      domain.TriggerStatus(tStatus),
			Content:     tContent,
			URL:         tURL,
		}
	}
	if m.ConversationID != nil {
		m.Conversation = &domain.Conversation{ID: *m.ConversationID, PersonID: m.PersonID, Subject: convSubject}
	}
	return m, nil
}

func (r *MessageRepo) query(ctx context.Context, b sq.SelectBuilder) ([]domain.Message, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *MessageRepo) Get(ctx context.Context, id int64) (*domain.Message, error) {
	query, args, err := psql.Select(messageColumns).From(messageFrom).Where(sq.Eq{"m.id": id}).ToSql()
	if err != nil {
		return nil, wrap("get message", err)
	}
	m, err := scanMessage(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, wrap("get message", err)
	}
	return m, nil
}

func (r *MessageRepo) List(ctx context.Context, f crm.ListFilter) ([]domain.Message, int, error) {
	where := sq.And{}
	if f.PersonID != nil {
		where = append(where, sq.Eq{"m.person_id": *f.PersonID})
	}
	if f.AccountID != nil {
		where = append(where, sq.Eq{"p.account_id": *f.AccountID})
	}
	if f.TriggerID != nil {
		where = append(where, sq.Eq{"m.trigger_id": *f.TriggerID})
	}
	if f.ConversationID != nil {
		where = append(where, sq.Eq{"m.conversation_id": *f.ConversationID})
	}
	if f.Status != "" {
		where = append(where, sq.Eq{"m.status": f.Status})
	}
	if f.Media != "" {
		where = append(where, sq.Eq{"m.media": f.Media})
	}
	if f.Search != "" {
		where = append(where, searchAny(f.Search, "m.subject", "m.content"))
	}
	if f.CreatedSince != nil {
		where = append(where, sq.GtOrEq{"m.created_at": *f.CreatedSince})
	}

	total, err := count(ctx, r.db, messageFrom, where)
	if err != nil {
		return nil, 0, wrap("count messages", err)
	}
	out, err := r.query(ctx, psql.Select(messageColumns).From(messageFrom).Where(where).
		OrderBy("m.created_at DESC", "m.id DESC").
		Limit(uint64(f.EffectiveLimit())).Offset(uint64(f.Offset)))
	if err != nil {
		return nil, 0, wrap("list messages", err)
	}
	return out, total, nil
}

func (r *MessageRepo) ListByStatus(ctx context.Context, status domain.MessageStatus) ([]domain.Message, error) {
	out, err := r.query(ctx, psql.Select(messageColumns).From(messageFrom).
		Where(sq.Eq{"m.status": string(status)}).OrderBy("m.id ASC"))
	return out, wrap("list messages by status", err)
}

func insertMessage(m *domain.Message, status domain.MessageStatus) sq.InsertBuilder {
	from := m.From
	if from == "" {
		from = domain.FromUs
	}
	return psql.Insert("messages").
		Columns("person_id", "trigger_id", "conversation_id", "media", "address",
			"from_party", "subject", "content", "status").
		Values(m.PersonID, nullableID(m.TriggerID), nullableID(m.ConversationID), string(m.Media), m.Address,
			string(from), m.Subject, m.Content, string(status))
}

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	status := m.Status
	if status == "" {
		status = domain.MessageDraft
	}
	id, err := insertReturningID(ctx, r.db, insertMessage(m, status))
	if err != nil {
		return nil, wrap("create message", err)
	}
	return r.Get(ctx, id)
}

// CreateDraftForTrigger locks the trigger row, inserts the draft and marks the
// trigger handled before committing.
func (r *MessageRepo) CreateDraftForTrigger(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	if m.TriggerID == nil {
		return nil, fmt.Errorf("create draft: trigger id is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("create draft: begin: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM triggers WHERE id = $1 FOR UPDATE`, *m.TriggerID).Scan(&status)
	if err != nil {
		return nil, wrap("create draft: lock trigger", err)
	}
	if domain.TriggerStatus(status) != domain.TriggerNew {
		return nil, crm.ErrTriggerNotNew
	}

	id, err := insertReturningID(ctx, tx, insertMessage(m, domain.MessageDraft))
	if err != nil {
		return nil, fmt.Errorf("create draft: insert message: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE triggers SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(domain.TriggerHandled), *m.TriggerID); err != nil {
		return nil, fmt.Errorf("create draft: mark trigger handled: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("create draft: commit: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *MessageRepo) MarkSent(ctx context.Context, id int64, at time.Time) error {
	return wrap("mark sent", execOne(ctx, r.db, psql.Update("messages").
		Set("status", string(domain.MessageSent)).
		Set("sent_at", sq.Expr("GREATEST(?::timestamptz, created_at)", at)).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id})))
}

func (r *MessageRepo) MarkFailed(ctx context.Context, id int64) error {
	return wrap("mark failed", execOne(ctx, r.db, psql.Update("messages").
		Set("status", string(domain.MessageFailed)).
		Set("sent_at", nil).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id})))
}

func (r *MessageRepo) PromoteDrafts(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET status = $1, updated_at = NOW() WHERE status = $2`,
		string(domain.MessageToSend), string(domain.MessageDraft))
	if err != nil {
		return 0, fmt.Errorf("promote drafts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *MessageRepo) UpdateStatus(ctx context.Context, id int64, status domain.MessageStatus) (*domain.Message, error) {
	err := execOne(ctx, r.db, psql.Update("messages").
		Set("status", string(status)).Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, wrap("update message status", err)
	}
	return r.Get(ctx, id)
}

func (r *MessageRepo) Update(ctx context.Context, id int64, u crm.MessageUpdate) (*domain.Message, error) {
	set := map[string]any{}
	if u.ConversationID != nil {
		set["conversation_id"] = nullableID(u.ConversationID)
	}
	if u.Media != nil {
		set["media"] = string(*u.Media)
	}
	if u.Address != nil {
		set["address"] = *u.Address
	}
	if u.Subject != nil {
		set["subject"] = *u.Subject
	}
	if u.Content != nil {
		set["content"] = *u.Content
	}
	if len(set) == 0 {
		return r.Get(ctx, id)
	}
	set["updated_at"] = sq.Expr("NOW()")
	if err := execOne(ctx, r.db, psql.Update("messages").SetMap(set).Where(sq.Eq{"id": id})); err != nil {
		return nil, wrap("update message", err)
	}
	return r.Get(ctx, id)
}

func (r *MessageRepo) Delete(ctx context.Context, id int64) error {
	return wrap("delete message", execOne(ctx, r.db, psql.Delete("messages").Where(sq.Eq{"id": id})))
}
