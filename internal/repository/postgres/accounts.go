package postgres

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

const accountColumns = "id, name, field, address, website, description, created_at, updated_at"

// AccountRepo implements crm.AccountRepository against PostgreSQL.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo creates a Postgres-backed account repository.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

func scanAccount(s rowScanner) (*domain.Account, error) {
	a := &domain.Account{}
	err := s.Scan(&a.ID, &a.Name, &a.Field, &a.Address, &a.Website, &a.Description, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *AccountRepo) Get(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := scanAccount(r.db.QueryRowContext(ctx,
		"SELECT "+accountColumns+" FROM accounts WHERE id = $1", id))
	if err != nil {
		return nil, wrap("get account", err)
	}
	return a, nil
}

func (r *AccountRepo) List(ctx context.Context, f crm.ListFilter) ([]domain.Account, int, error) {
	where := sq.And{}
	if f.Search != "" {
		where = append(where, searchAny(f.Search, "name", "field", "website"))
	}
	if f.CreatedSince != nil {
		where = append(where, sq.GtOrEq{"created_at": *f.CreatedSince})
	}

	total, err := count(ctx, r.db, "accounts", where)
	if err != nil {
		return nil, 0, wrap("count accounts", err)
	}

	query, args, err := psql.Select(accountColumns).From("accounts").Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(f.EffectiveLimit())).Offset(uint64(f.Offset)).ToSql()
	if err != nil {
		return nil, 0, wrap("list accounts", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, wrap("list accounts", err)
	}
	defer rows.Close()

	out := []domain.Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, wrap("scan account", err)
		}
		out = append(out, *a)
	}
	return out, total, wrap("list accounts", rows.Err())
}

func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	id, err := insertReturningID(ctx, r.db, psql.Insert("accounts").
		Columns("name", "field", "address", "website", "description").
		Values(a.Name, a.Field, a.Address, a.Website, a.Description))
	if err != nil {
		return nil, wrap("create account", err)
	}
	return r.Get(ctx, id)
}

func (r *AccountRepo) Update(ctx context.Context, id int64, u crm.AccountUpdate) (*domain.Account, error) {
	set := map[string]any{}
	if u.Name != nil {
		set["name"] = *u.Name
	}
	if u.Field != nil {
		set["field"] = *u.Field
	}
	if u.Address != nil {
		set["address"] = *u.Address
	}
	if u.Website != nil {
		set["website"] = *u.Website
	}
	if u.Description != nil {
		set["description"] = *u.Description
	}
	if len(set) == 0 {
		return r.Get(ctx, id)
	}
	set["updated_at"] = sq.Expr("NOW()")

	if err := execOne(ctx, r.db, psql.Update("accounts").SetMap(set).Where(sq.Eq{"id": id})); err != nil {
		return nil, wrap("update account", err)
	}
	return r.Get(ctx, id)
}

// Delete removes the account together with its account-level triggers.
// Person-scoped triggers keep their rows; the foreign key clears account_id.
func (r *AccountRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete account: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM triggers WHERE account_id = $1 AND person_id IS NULL`, id); err != nil {
		return fmt.Errorf("delete account: drop account triggers: %w", err)
	}
	if err := execOne(ctx, tx, psql.Delete("accounts").Where(sq.Eq{"id": id})); err != nil {
		return wrap("delete account", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete account: commit: %w", err)
	}
	return nil
}
