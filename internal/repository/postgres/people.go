package postgres

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

const personColumns = `p.id, p.first_name, p.last_name, p.account_id, p.title,
	p.email, p.phone, p.linkedin, p.twitter, p.facebook, p.instagram,
	p.birthday, p.details, p.description, p.created_at, p.updated_at,
	COALESCE(a.name, ''), COALESCE(a.field, ''), COALESCE(a.website, '')`

const personFrom = "people p LEFT JOIN accounts a ON a.id = p.account_id"

// PersonRepo implements crm.PersonRepository against PostgreSQL.
type PersonRepo struct{ db *sql.DB }

// NewPersonRepo creates a Postgres-backed person repository.
func NewPersonRepo(db *sql.DB) *PersonRepo { return &PersonRepo{db: db} }

func scanPerson(s rowScanner) (*domain.Person, error) {
	p := &domain.Person{}
	var (
		accountID                 sql.NullInt64
		birthday                  sql.NullTime
		accName, accField, accWeb string
	)
	if err := s.Scan(
		&p.ID, &p.FirstName, &p.LastName, &accountID, &p.Title,
		&p.Email, &p.Phone, &p.LinkedIn, &p.Twitter, &p.Facebook, &p.Instagram,
		&birthday, &p.Details, &p.Description, &p.CreatedAt, &p.UpdatedAt,
		&accName, &accField, &accWeb,
	); err != nil {
		return nil, err
	}
	p.AccountID = idPtr(accountID)
	if birthday.Valid {
		bd := birthday.Time
		p.Birthday = &bd
	}
	if p.AccountID != nil {
		p.Account = &domain.Account{ID: *p.AccountID, Name: accName, Field: accField, Website: accWeb}
	}
	return p, nil
}

func (r *PersonRepo) Get(ctx context.Context, id int64) (*domain.Person, error) {
	query, args, err := psql.Select(personColumns).From(personFrom).Where(sq.Eq{"p.id": id}).ToSql()
	if err != nil {
		return nil, wrap("get person", err)
	}
	p, err := scanPerson(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, wrap("get person", err)
	}
	return p, nil
}

func (r *PersonRepo) List(ctx context.Context, f crm.ListFilter) ([]domain.Person, int, error) {
	where := sq.And{}
	if f.AccountID != nil {
		where = append(where, sq.Eq{"p.account_id": *f.AccountID})
	}
	if f.Search != "" {
		where = append(where, searchAny(f.Search, "p.first_name", "p.last_name", "p.email", "p.title", "a.name"))
	}
	if f.CreatedSince != nil {
		where = append(where, sq.GtOrEq{"p.created_at": *f.CreatedSince})
	}

	total, err := count(ctx, r.db, personFrom, where)
	if err != nil {
		return nil, 0, wrap("count people", err)
	}

	query, args, err := psql.Select(personColumns).From(personFrom).Where(where).
		OrderBy("p.created_at DESC", "p.id DESC").
		Limit(uint64(f.EffectiveLimit())).Offset(uint64(f.Offset)).ToSql()
	if err != nil {
		return nil, 0, wrap("list people", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, wrap("list people", err)
	}
	defer rows.Close()

	out := []domain.Person{}
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, 0, wrap("scan person", err)
		}
		out = append(out, *p)
	}
	return out, total, wrap("list people", rows.Err())
}

func (r *PersonRepo) Create(ctx context.Context, p *domain.Person) (*domain.Person, error) {
	var birthday any
	if p.Birthday != nil {
		birthday = *p.Birthday
	}
	id, err := insertReturningID(ctx, r.db, psql.Insert("people").
		Columns("first_name", "last_name", "account_id", "title",
			"email", "phone", "linkedin", "twitter", "facebook", "instagram",
			"birthday", "details", "description").
		Values(p.FirstName, p.LastName, nullableID(p.AccountID), p.Title,
			p.Email, p.Phone, p.LinkedIn, p.Twitter, p.Facebook, p.Instagram,
			birthday, p.Details, p.Description))
	if err != nil {
		return nil, wrap("create person", err)
	}
	return r.Get(ctx, id)
}

func (r *PersonRepo) Update(ctx context.Context, id int64, u crm.PersonUpdate) (*domain.Person, error) {
	set := map[string]any{}
	str := func(col string, v *string) {
		if v != nil {
			set[col] = *v
		}
	}
	str("first_name", u.FirstName)
	str("last_name", u.LastName)
	str("title", u.Title)
	str("email", u.Email)
	str("phone", u.Phone)
	str("linkedin", u.LinkedIn)
	str("twitter", u.Twitter)
	str("facebook", u.Facebook)
	str("instagram", u.Instagram)
	str("details", u.Details)
	str("description", u.Description)
	if u.AccountID != nil {
		set["account_id"] = nullableID(u.AccountID)
	}
	if u.Birthday != nil {
		if u.Birthday.IsZero() {
			set["birthday"] = nil
		} else {
			set["birthday"] = u.Birthday.Format(time.DateOnly)
		}
	}
	if len(set) == 0 {
		return r.Get(ctx, id)
	}
	set["updated_at"] = sq.Expr("NOW()")

	if err := execOne(ctx, r.db, psql.Update("people").SetMap(set).Where(sq.Eq{"id": id})); err != nil {
		return nil, wrap("update person", err)
	}
	return r.Get(ctx, id)
}

func (r *PersonRepo) Delete(ctx context.Context, id int64) error {
	return wrap("delete person", execOne(ctx, r.db, psql.Delete("people").Where(sq.Eq{"id": id})))
}
