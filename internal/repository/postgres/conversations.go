package postgres

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

const conversationColumns = `c.id, c.person_id, c.subject, c.media, c.created_at, c.updated_at,
	p.first_name, p.last_name`

const conversationFrom = "conversations c JOIN people p ON p.id = c.person_id"

// ConversationRepo implements crm.ConversationRepository against PostgreSQL.
type ConversationRepo struct{ db *sql.DB }

// NewConversationRepo creates a Postgres-backed conversation repository.
func NewConversationRepo(db *sql.DB) *ConversationRepo { return &ConversationRepo{db: db} }

func scanConversation(s rowScanner) (*domain.Conversation, error) {
	c := &domain.Conversation{Person: &domain.Person{}}
	if err := s.Scan(&c.ID, &c.PersonID, &c.Subject, &c.Media, &c.CreatedAt, &c.UpdatedAt,
		&c.Person.FirstName, &c.Person.LastName); err != nil {
		return nil, err
	}
	c.Person.ID = c.PersonID
	return c, nil
}

func (r *ConversationRepo) Get(ctx context.Context, id int64) (*domain.Conversation, error) {
	query, args, err := psql.Select(conversationColumns).From(conversationFrom).Where(sq.Eq{"c.id": id}).ToSql()
	if err != nil {
		return nil, wrap("get conversation", err)
	}
	c, err := scanConversation(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, wrap("get conversation", err)
	}
	return c, nil
}

func (r *ConversationRepo) List(ctx context.Context, f crm.ListFilter) ([]domain.Conversation, int, error) {
	where := sq.And{}
	if f.PersonID != nil {
		where = append(where, sq.Eq{"c.person_id": *f.PersonID})
	}
	if f.Media != "" {
		where = append(where, sq.Eq{"c.media": f.Media})
	}
	if f.Search != "" {
		where = append(where, searchAny(f.Search, "c.subject"))
	}

	total, err := count(ctx, r.db, conversationFrom, where)
	if err != nil {
		return nil, 0, wrap("count conversations", err)
	}
	query, args, err := psql.Select(conversationColumns).From(conversationFrom).Where(where).
		OrderBy("c.created_at DESC", "c.id DESC").
		Limit(uint64(f.EffectiveLimit())).Offset(uint64(f.Offset)).ToSql()
	if err != nil {
		return nil, 0, wrap("list conversations", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, wrap("list conversations", err)
	}
	defer rows.Close()

	out := []domain.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, 0, wrap("scan conversation", err)
		}
		out = append(out, *c)
	}
	return out, total, wrap("list conversations", rows.Err())
}

func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) (*domain.Conversation, error) {
	id, err := insertReturningID(ctx, r.db, psql.Insert("conversations").
		Columns("person_id", "subject", "media").
		Values(c.PersonID, c.Subject, string(c.Media)))
	if err != nil {
		return nil, wrap("create conversation", err)
	}
	return r.Get(ctx, id)
}

func (r *ConversationRepo) Update(ctx context.Context, id int64, u crm.ConversationUpdate) (*domain.Conversation, error) {
	set := map[string]any{}
	if u.Subject != nil {
		set["subject"] = *u.Subject
	}
	if u.Media != nil {
		set["media"] = string(*u.Media)
	}
	if len(set) == 0 {
		return r.Get(ctx, id)
	}
	set["updated_at"] = sq.Expr("NOW()")
	if err := execOne(ctx, r.db, psql.Update("conversations").SetMap(set).Where(sq.Eq{"id": id})); err != nil {
		return nil, wrap("update conversation", err)
	}
	return r.Get(ctx, id)
}

func (r *ConversationRepo) Delete(ctx context.Context, id int64) error {
	return wrap("delete conversation", execOne(ctx, r.db, psql.Delete("conversations").Where(sq.Eq{"id": id})))
}
