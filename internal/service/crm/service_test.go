package crm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/repository/memory"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

func newService(t *testing.T) *crm.Service {
	t.Helper()
	return crm.NewService(memory.NewGateway())
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var ve *crm.ValidationError
	require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
	return ve.Fields
}

func TestCreateAccount_RequiresName(t *testing.T) {
	svc := newService(t)
	_, err := svc.CreateAccount(context.Background(), &domain.Account{Name: "   "})
	assert.Contains(t, fieldsOf(t, err), "name")

	a, err := svc.CreateAccount(context.Background(), &domain.Account{Name: " Acme Corp "})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", a.Name)
	assert.NotZero(t, a.ID)
}

func TestCreatePerson_Validation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	missing := int64(999)

	_, err := svc.CreatePerson(ctx, crm.PersonInput{Email: "nope", Birthday: "03/14", AccountID: &missing})
	fields := fieldsOf(t, err)
	assert.Contains(t, fields, "first_name")
	assert.Contains(t, fields, "last_name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "birthday")
	assert.Contains(t, fields, "account_id")

	p, err := svc.CreatePerson(ctx, crm.PersonInput{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com", Birthday: "1990-03-14"})
	require.NoError(t, err)
	require.NotNil(t, p.Birthday)
	assert.Equal(t, 14, p.Birthday.Day())
}

func TestParseBirthday(t *testing.T) {
	d, err := crm.ParseBirthday(" 1990-03-14 ")
	require.NoError(t, err)
	assert.Equal(t, time.March, d.Month())
	assert.Equal(t, 14, d.Day())

	for _, v := range []string{"03-14", "03/14", "14.03.1990", ""} {
		_, err := crm.ParseBirthday(v)
		assert.Error(t, err, v)
	}
}

func TestUpdatePerson_ClearsBirthday(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	p, err := svc.CreatePerson(ctx, crm.PersonInput{FirstName: "Jane", LastName: "Doe", Birthday: "1990-03-14"})
	require.NoError(t, err)

	empty := ""
	p, err = svc.UpdatePerson(ctx, p.ID, crm.PersonPatch{Birthday: &empty})
	require.NoError(t, err)
	assert.Nil(t, p.Birthday)
}

func TestCreateTrigger_InheritsPersonAccount(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	acme, err := svc.CreateAccount(ctx, &domain.Account{Name: "Acme Corp"})
	require.NoError(t, err)
	jane, err := svc.CreatePerson(ctx, crm.PersonInput{FirstName: "Jane", LastName: "Doe", AccountID: &acme.ID})
	require.NoError(t, err)

	tr, err := svc.CreateTrigger(ctx, &domain.Trigger{PersonID: &jane.ID, Content: "Promoted to CTO"})
	require.NoError(t, err)
	require.NotNil(t, tr.AccountID)
	assert.Equal(t, acme.ID, *tr.AccountID)
	assert.Equal(t, domain.TriggerNews, tr.TriggerType)
	assert.Equal(t, domain.TriggerNew, tr.Status)

	_, err = svc.CreateTrigger(ctx, &domain.Trigger{Content: "orphan"})
	assert.Contains(t, fieldsOf(t, err), "account_id")

	_, err = svc.CreateTrigger(ctx, &domain.Trigger{AccountID: &acme.ID, Content: "x", Status: domain.TriggerHandled})
	assert.Contains(t, fieldsOf(t, err), "status")
}

func TestTriggerTransitionsAreForwardOnly(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	acme, err := svc.CreateAccount(ctx, &domain.Account{Name: "Acme Corp"})
	require.NoError(t, err)
	tr, err := svc.CreateTrigger(ctx, &domain.Trigger{AccountID: &acme.ID, Content: "c"})
	require.NoError(t, err)

	tr, err = svc.IgnoreTrigger(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TriggerIgnored, tr.Status)

	back := domain.TriggerNew
	_, err = svc.UpdateTrigger(ctx, tr.ID, crm.TriggerPatch{Status: &back})
	assert.ErrorIs(t, err, crm.ErrInvalidTransition)

	_, err = svc.IgnoreTrigger(ctx, tr.ID)
	assert.ErrorIs(t, err, crm.ErrInvalidTransition)

	_, err = svc.IgnoreTrigger(ctx, 12345)
	assert.ErrorIs(t, err, crm.ErrNotFound)
}

func TestUpdateTrigger_RejectedTransitionKeepsFields(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	acme, err := svc.CreateAccount(ctx, &domain.Account{Name: "Acme Corp"})
	require.NoError(t, err)
	tr, err := svc.CreateTrigger(ctx, &domain.Trigger{AccountID: &acme.ID, Content: "original"})
	require.NoError(t, err)
	_, err = svc.IgnoreTrigger(ctx, tr.ID)
	require.NoError(t, err)

	edited, back := "edited", domain.TriggerNew
	_, err = svc.UpdateTrigger(ctx, tr.ID, crm.TriggerPatch{
		TriggerUpdate: crm.TriggerUpdate{Content: &edited},
		Status:        &back,
	})
	require.ErrorIs(t, err, crm.ErrInvalidTransition)

	got, err := svc.GetTrigger(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TriggerIgnored, got.Status)
	assert.Equal(t, "original", got.Content)

	// same status plus a field edit is a plain update
	ignored := domain.TriggerIgnored
	got, err = svc.UpdateTrigger(ctx, tr.ID, crm.TriggerPatch{
		TriggerUpdate: crm.TriggerUpdate{Content: &edited},
		Status:        &ignored,
	})
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)
}

func TestCreateMessage_ResolvesAddress(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	jane, err := svc.CreatePerson(ctx, crm.PersonInput{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com"})
	require.NoError(t, err)

	m, err := svc.CreateMessage(ctx, &domain.Message{PersonID: jane.ID, Content: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, "jane@x.com", m.Address)
	assert.Equal(t, domain.MediaEmail, m.Media)
	assert.Equal(t, domain.MessageDraft, m.Status)
	assert.Equal(t, domain.FromUs, m.From)

	_, err = svc.CreateMessage(ctx, &domain.Message{PersonID: jane.ID, Media: domain.MediaLinkedIn, Content: "Hello"})
	assert.Contains(t, fieldsOf(t, err), "address")

	_, err = svc.CreateMessage(ctx, &domain.Message{PersonID: jane.ID, Content: "x", Status: domain.MessageSent})
	assert.Contains(t, fieldsOf(t, err), "status")
}

func TestMessageStatusChanges(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	jane, err := svc.CreatePerson(ctx, crm.PersonInput{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com"})
	require.NoError(t, err)
	m, err := svc.CreateMessage(ctx, &domain.Message{PersonID: jane.ID, Content: "Hello"})
	require.NoError(t, err)

	sent := domain.MessageSent
	_, err = svc.UpdateMessage(ctx, m.ID, crm.MessagePatch{Status: &sent})
	assert.ErrorIs(t, err, crm.ErrInvalidTransition, "sent is reserved for the mailer")

	m, err = svc.QueueMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageToSend, m.Status)

	_, err = svc.QueueMessage(ctx, m.ID)
	assert.ErrorIs(t, err, crm.ErrInvalidTransition)

	subject := "New subject"
	m, err = svc.UpdateMessage(ctx, m.ID, crm.MessagePatch{MessageUpdate: crm.MessageUpdate{Subject: &subject}})
	require.NoError(t, err)
	assert.Equal(t, "New subject", m.Subject)
	assert.Equal(t, domain.MessageToSend, m.Status)
}

func TestPromoteDraftsAndStats(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	acme, err := svc.CreateAccount(ctx, &domain.Account{Name: "Acme Corp"})
	require.NoError(t, err)
	jane, err := svc.CreatePerson(ctx, crm.PersonInput{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com", AccountID: &acme.ID})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := svc.CreateMessage(ctx, &domain.Message{PersonID: jane.ID, Content: "Hello"})
		require.NoError(t, err)
	}
	_, err = svc.CreateTrigger(ctx, &domain.Trigger{AccountID: &acme.ID, Content: "c"})
	require.NoError(t, err)

	n, err := svc.PromoteDrafts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Accounts)
	assert.Equal(t, 1, st.People)
	assert.Equal(t, 1, st.TriggersByStatus[domain.TriggerNew])
	assert.Equal(t, 3, st.MessagesByStatus[domain.MessageToSend])
	assert.Equal(t, 0, st.MessagesByStatus[domain.MessageDraft])
}

func TestValidationErrorMessage(t *testing.T) {
	err := &crm.ValidationError{Fields: map[string]string{"name": "is required", "email": "is invalid"}}
	assert.Equal(t, "validation failed: email is invalid; name is required", err.Error())
}
