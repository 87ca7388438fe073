package postgres

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

const triggerColumns = `t.id, t.account_id, t.person_id, t.trigger_type, t.status,
	t.content, t.url, t.media, t.created_at, t.updated_at,
	COALESCE(a.name, ''), COALESCE(a.field, ''),
	COALESCE(p.first_name, ''), COALESCE(p.last_name, ''), COALESCE(p.email, '')`

const triggerFrom = `triggers t
	LEFT JOIN accounts a ON a.id = t.account_id
	LEFT JOIN people p ON p.id = t.person_id`

// ON CONFLICT targets for uq_triggers_person_url and uq_triggers_account_url.
const (
	personConflict  = `ON CONFLICT (person_id, url) WHERE person_id IS NOT NULL AND url <> '' DO NOTHING`
	accountConflict = `ON CONFLICT (account_id, url) WHERE person_id IS NULL AND url <> '' DO NOTHING`
)

// TriggerRepo implements crm.TriggerRepository against PostgreSQL.
type TriggerRepo struct{ db *sql.DB }

// NewTriggerRepo creates a Postgres-backed trigger repository.
func NewTriggerRepo(db *sql.DB) *TriggerRepo { return &TriggerRepo{db: db} }

func scanTrigger(s rowScanner) (*domain.Trigger, error) {
	t := &domain.Trigger{}
	var (
		accountID, personID      sql.NullInt64
		accName, accField        string
		first, last, personEmail string
	)
	if err := s.Scan(
		&t.ID, &accountID, &personID, &t.TriggerType, &t.Status,
		&t.Content, &t.URL, &t.Media, &t.CreatedAt, &t.UpdatedAt,
		&accName, &accField, &first, &last, &personEmail,
	); err != nil {
		return nil, err
	}
	t.AccountID = idPtr(accountID)
	t.PersonID = idPtr(personID)
	if t.AccountID != nil {
		t.Account = &domain.Account{ID: *t.AccountID, Name: accName, Field: accField}
	}
	if t.PersonID != nil {
		t.Person = &domain.Person{ID: *t.PersonID, FirstName: first, LastName: last, Email: personEmail, AccountID: t.AccountID}
	}
	return t, nil
}

func (r *TriggerRepo) query(ctx context.Context, b sq.SelectBuilder) ([]domain.Trigger, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Trigger{}
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (r *TriggerRepo) Get(ctx context.Context, id int64) (*domain.Trigger, error) {
	query, args, err := psql.Select(triggerColumns).From(triggerFrom).Where(sq.Eq{"t.id": id}).ToSql()
	if err != nil {
		return nil, wrap("get trigger", err)
	}
	t, err := scanTrigger(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, wrap("get trigger", err)
	}
	return t, nil
}

func (r *TriggerRepo) List(ctx context.Context, f crm.ListFilter) ([]domain.Trigger, int, error) {
	where := sq.And{}
	if f.AccountID != nil {
		where = append(where, sq.Eq{"t.account_id": *f.AccountID})
	}
	if f.PersonID != nil {
		where = append(where, sq.Eq{"t.person_id": *f.PersonID})
	}
	if f.Status != "" {
		where = append(where, sq.Eq{"t.status": f.Status})
	}
	if f.Type != "" {
		where = append(where, sq.Eq{"t.trigger_type": f.Type})
	}
	if f.Media != "" {
		where = append(where, sq.Eq{"t.media": f.Media})
	}
	if f.Search != "" {
		where = append(where, searchAny(f.Search, "t.content"))
	}
	if f.CreatedSince != nil {
		where = append(where, sq.GtOrEq{"t.created_at": *f.CreatedSince})
	}

	total, err := count(ctx, r.db, triggerFrom, where)
	if err != nil {
		return nil, 0, wrap("count triggers", err)
	}
	out, err := r.query(ctx, psql.Select(triggerColumns).From(triggerFrom).Where(where).
		OrderBy("t.created_at DESC", "t.id DESC").
		Limit(uint64(f.EffectiveLimit())).Offset(uint64(f.Offset)))
	if err != nil {
		return nil, 0, wrap("list triggers", err)
	}
	return out, total, nil
}

func (r *TriggerRepo) ListByStatus(ctx context.Context, status domain.TriggerStatus) ([]domain.Trigger, error) {
	out, err := r.query(ctx, psql.Select(triggerColumns).From(triggerFrom).
		Where(sq.Eq{"t.status": string(status)}).OrderBy("t.id ASC"))
	return out, wrap("list triggers by status", err)
}

func (r *TriggerRepo) Recent(ctx context.Context, n int) ([]domain.Trigger, error) {
	if n <= 0 {
		return []domain.Trigger{}, nil
	}
	out, err := r.query(ctx, psql.Select(triggerColumns).From(triggerFrom).
		OrderBy("t.created_at DESC", "t.id DESC").Limit(uint64(n)))
	return out, wrap("recent triggers", err)
}

func (r *TriggerRepo) FindBySource(ctx context.Context, accountID, personID *int64, url string) (*domain.Trigger, error) {
	if url == "" {
		return nil, crm.ErrNotFound
	}
	query, args, err := psql.Select(triggerColumns).From(triggerFrom).
		Where(sourceWhere(accountID, personID, url)).ToSql()
	if err != nil {
		return nil, wrap("find trigger by source", err)
	}
	t, err := scanTrigger(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, wrap("find trigger by source", err)
	}
	return t, nil
}

func (r *TriggerRepo) insert(t *domain.Trigger) sq.InsertBuilder {
	status := t.Status
	if status == "" {
		status = domain.TriggerNew
	}
	return psql.Insert("triggers").
		Columns("account_id", "person_id", "trigger_type", "status", "content", "url", "media").
		Values(nullableID(t.AccountID), nullableID(t.PersonID), string(t.TriggerType), string(status), t.Content, t.URL, t.Media)
}

func (r *TriggerRepo) Create(ctx context.Context, t *domain.Trigger) (*domain.Trigger, error) {
	id, err := insertReturningID(ctx, r.db, r.insert(t))
	if err != nil {
		return nil, wrap("create trigger", err)
	}
	return r.Get(ctx, id)
}

func (r *TriggerRepo) CreateIfAbsent(ctx context.Context, t *domain.Trigger) (*domain.Trigger, bool, error) {
	if t.URL == "" {
		created, err := r.Create(ctx, t)
		return created, err == nil, err
	}
	conflict := accountConflict
	if t.PersonID != nil {
		conflict = personConflict
	}
	id, err := insertReturningID(ctx, r.db, r.insert(t).Suffix(conflict))
	if err == sql.ErrNoRows {
		existing, ferr := r.FindBySource(ctx, t.AccountID, t.PersonID, t.URL)
		return existing, false, ferr
	}
	if err != nil {
		return nil, false, wrap("create trigger", err)
	}
	created, err := r.Get(ctx, id)
	return created, err == nil, err
}

func (r *TriggerRepo) Update(ctx context.Context, id int64, u crm.TriggerUpdate) (*domain.Trigger, error) {
	set := map[string]any{}
	if u.TriggerType != nil {
		set["trigger_type"] = string(*u.TriggerType)
	}
	if u.Content != nil {
		set["content"] = *u.Content
	}
	if u.URL != nil {
		set["url"] = *u.URL
	}
	if u.Media != nil {
		set["media"] = *u.Media
	}
	if len(set) == 0 {
		return r.Get(ctx, id)
	}
	set["updated_at"] = sq.Expr("NOW()")
	if err := execOne(ctx, r.db, psql.Update("triggers").SetMap(set).Where(sq.Eq{"id": id})); err != nil {
		return nil, wrap("update trigger", err)
	}
	return r.Get(ctx, id)
}

func (r *TriggerRepo) UpdateStatus(ctx context.Context, id int64, status domain.TriggerStatus) (*domain.Trigger, error) {
	err := execOne(ctx, r.db, psql.Update("triggers").
		Set("status", string(status)).Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, wrap("update trigger status", err)
	}
	return r.Get(ctx, id)
}

func (r *TriggerRepo) Delete(ctx context.Context, id int64) error {
	return wrap("delete trigger", execOne(ctx, r.db, psql.Delete("triggers").Where(sq.Eq{"id": id})))
}

// sourceWhere matches the unique source indexes: person and url for
// person-scoped triggers, account and url otherwise.
func sourceWhere(accountID, personID *int64, url string) sq.And {
	if personID != nil {
		return sq.And{sq.Eq{"t.person_id": *personID}, sq.Eq{"t.url": url}}
	}
	return sq.And{sq.Eq{"t.person_id": nil}, sq.Eq{"t.account_id": nullableID(accountID)}, sq.Eq{"t.url": url}}
}
