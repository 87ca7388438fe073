package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	}
}

var triggerRowCols = []string{
	"id", "account_id", "person_id", "trigger_type", "status", "content", "url", "media",
	"created_at", "updated_at", "a_name", "a_field", "p_first", "p_last", "p_email",
}

func triggerRow(id, accountID int64, status string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(triggerRowCols).AddRow(
		id, accountID, nil, "news", status, "Acme raises $10M", "https://techcrunch.com/x", "techcrunch.com",
		now, now, "Acme Corp", "fintech", "", "", "",
	)
}

func TestAccountRepo_GetNotFound(t *testing.T) {
	db, mock, done := setupTestDB(t)
	defer done()

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id = \$1`).
		WithArgs(int64(9)).
		WillReturnError(sql.ErrNoRows)

	_, err := NewAccountRepo(db).Get(context.Background(), 9)
	assert.ErrorIs(t, err, crm.ErrNotFound)
}

func TestAccountRepo_StorageErrorsAreWrapped(t *testing.T) {
	db, mock, done := setupTestDB(t)
	defer done()

	mock.ExpectQuery(`INSERT INTO accounts`).
		WillReturnError(errors.New("pq: violates check constraint"))

	_, err := NewAccountRepo(db).Create(context.Background(), &domain.Account{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, crm.ErrNotFound)
	assert.Contains(t, err.Error(), "create account")
}

func TestAccountRepo_ListAppliesDefaultLimit(t *testing.T) {
	db, mock, done := setupTestDB(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM accounts WHERE .*name ILIKE \$1 OR field ILIKE \$2 OR website ILIKE \$3`).
		WithArgs("%acme%", "%acme%", "%acme%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE .+ ORDER BY created_at DESC, id DESC LIMIT 50 OFFSET 0`).
		WithArgs("%acme%", "%acme%", "%acme%").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "field", "address", "website", "description", "created_at", "updated_at"}).
			AddRow(1, "Acme Corp", "fintech", "", "acme.com", "", now, now))

	items, total, err := NewAccountRepo(db).List(context.Background(), crm.ListFilter{Search: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Acme Corp", items[0].Name)
}

func TestTriggerRepo_CreateIfAbsent(t *testing.T) {
	acme := int64(1)
	hit := &domain.Trigger{AccountID: &acme, TriggerType: domain.TriggerNews, Content: "Acme raises $10M", URL: "https://techcrunch.com/x", Media: "techcrunch.com"}

	t.Run("inserts new row", func(t *testing.T) {
		db, mock, done := setupTestDB(t)
		defer done()

		mock.ExpectQuery(`INSERT INTO triggers .+ ON CONFLICT \(account_id, url\) WHERE person_id IS NULL .+ DO NOTHING RETURNING id`).
			WithArgs(acme, nil, "news", "new", hit.Content, hit.URL, hit.Media).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(5))
		mock.ExpectQuery(`SELECT .+ FROM triggers t .+ WHERE t.id = \$1`).
			WithArgs(int64(5)).
			WillReturnRows(triggerRow(5, acme, "new"))

		tr, created, err := NewTriggerRepo(db).CreateIfAbsent(context.Background(), hit)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, int64(5), tr.ID)
		require.NotNil(t, tr.Account)
		assert.Equal(t, "Acme Corp", tr.Account.Name)
		assert.Nil(t, tr.Person)
	})

	t.Run("conflict returns existing row", func(t *testing.T) {
		db, mock, done := setupTestDB(t)
		defer done()

		mock.ExpectQuery(`INSERT INTO triggers .+ ON CONFLICT`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery(`SELECT .+ FROM triggers t .+ WHERE \(t.person_id IS NULL AND t.account_id = \$1 AND t.url = \$2\)`).
			WithArgs(acme, hit.URL).
			WillReturnRows(triggerRow(5, acme, "handled"))

		tr, created, err := NewTriggerRepo(db).CreateIfAbsent(context.Background(), hit)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, int64(5), tr.ID)
	})

	t.Run("person-scoped conflict matches on person alone", func(t *testing.T) {
		db, mock, done := setupTestDB(t)
		defer done()

		jane, globex := int64(2), int64(8)
		mock.ExpectQuery(`INSERT INTO triggers .+ ON CONFLICT \(person_id, url\) WHERE person_id IS NOT NULL .+ DO NOTHING RETURNING id`).
			WithArgs(globex, jane, "news", "new", hit.Content, hit.URL, hit.Media).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery(`SELECT .+ FROM triggers t .+ WHERE \(t.person_id = \$1 AND t.url = \$2\)`).
			WithArgs(jane, hit.URL).
			WillReturnRows(triggerRow(5, acme, "handled"))

		moved := &domain.Trigger{AccountID: &globex, PersonID: &jane, TriggerType: domain.TriggerNews, Content: hit.Content, URL: hit.URL, Media: hit.Media}
		tr, created, err := NewTriggerRepo(db).CreateIfAbsent(context.Background(), moved)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, int64(5), tr.ID)
	})
}

func TestAccountRepo_DeleteDropsOnlyAccountTriggers(t *testing.T) {
	db, mock, done := setupTestDB(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM triggers WHERE account_id = \$1 AND person_id IS NULL`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM accounts WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewAccountRepo(db).Delete(context.Background(), 1))
}

func TestAccountRepo_DeleteMissingRollsBack(t *testing.T) {
	db, mock, done := setupTestDB(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM triggers`).WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM accounts`).WithArgs(int64(9)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	assert.ErrorIs(t, NewAccountRepo(db).Delete(context.Background(), 9), crm.ErrNotFound)
}

func TestMessageRepo_CreateDraftForTrigger(t *testing.T) {
	triggerID := int64(3)
	msg := &domain.Message{PersonID: 2, TriggerID: &triggerID, Media: domain.MediaEmail, Address: "jane@x.com", From: domain.FromUs, Subject: "S", Content: "C"}

	t.Run("commits insert and status change together", func(t *testing.T) {
		db, mock, done := setupTestDB(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM triggers WHERE id = \$1 FOR UPDATE`).
			WithArgs(triggerID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("new"))
		mock.ExpectQuery(`INSERT INTO messages .+ RETURNING id`).
			WithArgs(int64(2), triggerID, nil, "email", "jane@x.com", "us", "S", "C", "draft").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))
		mock.ExpectExec(`UPDATE triggers SET status = \$1, updated_at = NOW\(\) WHERE id = \$2`).
			WithArgs("handled", triggerID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		mock.ExpectQuery(`SELECT .+ FROM messages m .+ WHERE m.id = \$1`).
			WithArgs(int64(11)).
			WillReturnError(sql.ErrNoRows)

		_, err := NewMessageRepo(db).CreateDraftForTrigger(context.Background(), msg)
		assert.ErrorIs(t, err, crm.ErrNotFound)
	})

	t.Run("rolls back when trigger already handled", func(t *testing.T) {
		db, mock, done := setupTestDB(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM triggers WHERE id = \$1 FOR UPDATE`).
			WithArgs(triggerID).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("handled"))
		mock.ExpectRollback()

		_, err := NewMessageRepo(db).CreateDraftForTrigger(context.Background(), msg)
		assert.ErrorIs(t, err, crm.ErrTriggerNotNew)
	})

	t.Run("rolls back when insert fails", func(t *testing.T) {
		db, mock, done := setupTestDB(t)
		defer done()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM triggers`).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("new"))
		mock.ExpectQuery(`INSERT INTO messages`).
			WillReturnError(errors.New(`pq: duplicate key value violates unique constraint "uq_messages_trigger"`))
		mock.ExpectRollback()

		_, err := NewMessageRepo(db).CreateDraftForTrigger(context.Background(), msg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insert message")
	})
}

func TestMessageRepo_MarkSentClampsInSQL(t *testing.T) {
	db, mock, done := setupTestDB(t)
	defer done()

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE messages SET status = \$1, sent_at = GREATEST\(\$2::timestamptz, created_at\), updated_at = NOW\(\) WHERE id = \$3`).
		WithArgs("sent", at, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewMessageRepo(db).MarkSent(context.Background(), 7, at))
}

func TestMessageRepo_MarkFailedMissingRow(t *testing.T) {
	db, mock, done := setupTestDB(t)
	defer done()

	mock.ExpectExec(`UPDATE messages SET status = \$1, sent_at = \$2`).
		WithArgs("failed", nil, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, NewMessageRepo(db).MarkFailed(context.Background(), 7), crm.ErrNotFound)
}

func TestMessageRepo_PromoteDrafts(t *testing.T) {
	db, mock, done := setupTestDB(t)
	defer done()

	mock.ExpectExec(`UPDATE messages SET status = \$1, updated_at = NOW\(\) WHERE status = \$2`).
		WithArgs("to_send", "draft").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := NewMessageRepo(db).PromoteDrafts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
