// Package postgres implements the crm repositories against PostgreSQL using
// database/sql with lib/pq and squirrel-built queries.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/ignite/outreach-crm/internal/service/crm"
)

// psql builds queries with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// NewGateway wires every Postgres repository into a crm.Gateway.
func NewGateway(db *sql.DB) *crm.Gateway {
	return &crm.Gateway{
		Accounts:      NewAccountRepo(db),
		People:        NewPersonRepo(db),
		Triggers:      NewTriggerRepo(db),
		Messages:      NewMessageRepo(db),
		Conversations: NewConversationRepo(db),
	}
}

// count runs SELECT COUNT(*) over from with the given conditions.
func count(ctx context.Context, q querier, from string, where sq.And) (int, error) {
	query, args, err := psql.Select("COUNT(*)").From(from).Where(where).ToSql()
	if err != nil {
		return 0, err
	}
	var total int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// execOne runs a built statement and maps zero affected rows to ErrNotFound.
func execOne(ctx context.Context, q querier, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return crm.ErrNotFound
	}
	return nil
}

// insertReturningID runs an INSERT ... RETURNING id.
func insertReturningID(ctx context.Context, q querier, b sq.InsertBuilder) (int64, error) {
	query, args, err := b.Suffix("RETURNING id").ToSql()
	if err != nil {
		return 0, err
	}
	var id int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func like(v string) string {
	return "%" + strings.TrimSpace(v) + "%"
}

func searchAny(term string, cols ...string) sq.Or {
	or := sq.Or{}
	for _, c := range cols {
		or = append(or, sq.ILike{c: like(term)})
	}
	return or
}

func nullableID(p *int64) any {
	if p == nil || *p == 0 {
		return nil
	}
	return *p
}

func idPtr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == crm.ErrNotFound || err == sql.ErrNoRows {
		return crm.ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
