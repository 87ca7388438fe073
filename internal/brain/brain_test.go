package brain

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/pkg/distlock"
	"github.com/ignite/outreach-crm/internal/repository/memory"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

type stubDrafter struct {
	mu    sync.Mutex
	draft domain.OutreachDraft
	err   error
	calls int
	delay time.Duration
}

func (s *stubDrafter) Draft(_ context.Context, _ *domain.Person, _ *domain.Trigger) (*domain.OutreachDraft, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	d := s.draft
	return &d, nil
}

type fixture struct {
	gw      *crm.Gateway
	locks   *distlock.Provider
	drafter *stubDrafter
	brain   *Brain
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gw := memory.NewGateway()
	locks := distlock.NewProvider(nil, nil)
	d := &stubDrafter{draft: domain.OutreachDraft{Media: domain.MediaEmail, Subject: "S", Content: "C"}}
	return &fixture{gw: gw, locks: locks, drafter: d, brain: New(gw, d, locks)}
}

func (f *fixture) person(t *testing.T, p domain.Person) *domain.Person {
	t.Helper()
	out, err := f.gw.People.Create(context.Background(), &p)
	require.NoError(t, err)
	return out
}

func (f *fixture) trigger(t *testing.T, tr domain.Trigger) *domain.Trigger {
	t.Helper()
	if tr.TriggerType == "" {
		tr.TriggerType = domain.TriggerNews
	}
	tr.Status = domain.TriggerNew
	out, err := f.gw.Triggers.Create(context.Background(), &tr)
	require.NoError(t, err)
	return out
}

func (f *fixture) messagesFor(t *testing.T, triggerID int64) []domain.Message {
	t.Helper()
	msgs, _, err := f.gw.Messages.List(context.Background(), crm.ListFilter{TriggerID: &triggerID})
	require.NoError(t, err)
	return msgs
}

func (f *fixture) status(t *testing.T, id int64) domain.TriggerStatus {
	t.Helper()
	tr, err := f.gw.Triggers.Get(context.Background(), id)
	require.NoError(t, err)
	return tr.Status
}

func TestProcessTriggers_DraftsForJane(t *testing.T) {
	f := newFixture(t)
	jane := f.person(t, domain.Person{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com"})
	tr := f.trigger(t, domain.Trigger{PersonID: &jane.ID, Content: "Jane spoke at GopherCon"})

	rep, err := f.brain.ProcessTriggers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Drafted: 1}, rep)

	msgs := f.messagesFor(t, tr.ID)
	require.Len(t, msgs, 1)
	m := msgs[0]
	assert.Equal(t, jane.ID, m.PersonID)
	assert.Equal(t, domain.MessageDraft, m.Status)
	assert.Equal(t, "jane@x.com", m.Address)
	assert.Equal(t, "S", m.Subject)
	assert.Equal(t, "C", m.Content)
	assert.Equal(t, domain.FromUs, m.From)
	assert.Nil(t, m.ConversationID)
	assert.Equal(t, domain.TriggerHandled, f.status(t, tr.ID))
}

func TestProcessTriggers_NoChannelLeavesTriggerNew(t *testing.T) {
	f := newFixture(t)
	jane := f.person(t, domain.Person{FirstName: "Jane", LastName: "Doe", Phone: "+1 555 0100"})
	tr := f.trigger(t, domain.Trigger{PersonID: &jane.ID, Content: "news"})

	rep, err := f.brain.ProcessTriggers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.SkippedNoAddress)
	assert.Empty(t, f.messagesFor(t, tr.ID))
	assert.Equal(t, domain.TriggerNew, f.status(t, tr.ID))
}

func TestProcessTriggers_AccountLevelUntouched(t *testing.T) {
	f := newFixture(t)
	acct, err := f.gw.Accounts.Create(context.Background(), &domain.Account{Name: "Acme Corp"})
	require.NoError(t, err)
	tr := f.trigger(t, domain.Trigger{AccountID: &acct.ID, Content: "Acme raises $10M", URL: "https://techcrunch.com/x"})

	rep, err := f.brain.ProcessTriggers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.SkippedAccountLevel)
	assert.Zero(t, f.drafter.calls)
	assert.Equal(t, domain.TriggerNew, f.status(t, tr.ID))
	assert.Empty(t, f.messagesFor(t, tr.ID))
}

func TestProcessTriggers_SecondPassCreatesNothing(t *testing.T) {
	f := newFixture(t)
	jane := f.person(t, domain.Person{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com"})
	tr := f.trigger(t, domain.Trigger{PersonID: &jane.ID, Content: "news"})

	_, err := f.brain.ProcessTriggers(context.Background())
	require.NoError(t, err)
	rep, err := f.brain.ProcessTriggers(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{}, rep)
	assert.Len(t, f.messagesFor(t, tr.ID), 1)
	assert.Equal(t, 1, f.drafter.calls)
}

func TestProcessTriggers_GenerationErrorContinues(t *testing.T) {
	f := newFixture(t)
	f.drafter.err = errors.New("model down")
	jane := f.person(t, domain.Person{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com"})
	bob := f.person(t, domain.Person{FirstName: "Bob", LastName: "Roe", Email: "bob@x.com"})
	t1 := f.trigger(t, domain.Trigger{PersonID: &jane.ID, Content: "a"})
	t2 := f.trigger(t, domain.Trigger{PersonID: &bob.ID, Content: "b"})

	rep, err := f.brain.ProcessTriggers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Failed)
	assert.Equal(t, 2, f.drafter.calls)
	assert.Equal(t, domain.TriggerNew, f.status(t, t1.ID))
	assert.Equal(t, domain.TriggerNew, f.status(t, t2.ID))
}

func TestProcessTriggers_ClaimedElsewhere(t *testing.T) {
	f := newFixture(t)
	jane := f.person(t, domain.Person{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com"})
	tr := f.trigger(t, domain.Trigger{PersonID: &jane.ID, Content: "news"})

	held := f.locks.Lock("trigger:"+itoa(tr.ID), time.Minute)
	ok, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	rep, err := f.brain.ProcessTriggers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.SkippedClaimed)
	assert.Zero(t, f.drafter.calls)

	require.NoError(t, held.Release(context.Background()))
	rep, err = f.brain.ProcessTriggers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Drafted)
}

func TestProcessTriggers_ConcurrentPassesDraftOnce(t *testing.T) {
	f := newFixture(t)
	f.drafter.delay = 20 * time.Millisecond
	jane := f.person(t, domain.Person{FirstName: "Jane", LastName: "Doe", Email: "jane@x.com"})
	tr := f.trigger(t, domain.Trigger{PersonID: &jane.ID, Content: "news"})

	var wg sync.WaitGroup
	reports := make([]Report, 2)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reports[i], _ = f.brain.ProcessTriggers(context.Background())
		}(i)
	}
	wg.Wait()

	assert.Len(t, f.messagesFor(t, tr.ID), 1)
	assert.Equal(t, 1, reports[0].Drafted+reports[1].Drafted)
}

func TestResolveAddress(t *testing.T) {
	full := &domain.Person{Email: "a@x.com", LinkedIn: "in/a", Twitter: "@a"}
	onlyLinkedIn := &domain.Person{LinkedIn: "in/b"}

	tests := []struct {
		name      string
		person    *domain.Person
		media     domain.MessageMedia
		wantMedia domain.MessageMedia
		wantAddr  string
		wantOK    bool
	}{
		{"email", full, domain.MediaEmail, domain.MediaEmail, "a@x.com", true},
		{"linkedin", full, domain.MediaLinkedIn, domain.MediaLinkedIn, "in/a", true},
		{"twitter", full, domain.MediaTwitter, domain.MediaTwitter, "@a", true},
		{"phone falls back to email", full, domain.MediaPhone, domain.MediaEmail, "a@x.com", true},
		{"phone falls back to linkedin", onlyLinkedIn, domain.MediaPhone, domain.MediaLinkedIn, "in/b", true},
		{"email missing", onlyLinkedIn, domain.MediaEmail, domain.MediaEmail, "", false},
		{"nothing", &domain.Person{}, domain.MediaPhone, domain.MediaPhone, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, addr, ok := ResolveAddress(tt.person, tt.media)
			assert.Equal(t, tt.wantMedia, m)
			assert.Equal(t, tt.wantAddr, addr)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
