package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/repository/memory"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

type stubSource struct {
	mu      sync.Mutex
	hits    map[string][]domain.ExternalHit
	fail    map[string]bool
	queries []string
}

func (s *stubSource) Search(_ context.Context, q string) ([]domain.ExternalHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.fail[q] {
		return nil, errors.New("upstream 503")
	}
	return s.hits[q], nil
}

func newScanner(t *testing.T, src *stubSource) (*Scanner, *crm.Gateway) {
	t.Helper()
	gw := memory.NewGateway()
	return New(gw, src, Options{CallDelay: -1}), gw
}

func allTriggers(t *testing.T, gw *crm.Gateway) []domain.Trigger {
	t.Helper()
	items, _, err := gw.Triggers.List(context.Background(), crm.ListFilter{Limit: 1000})
	require.NoError(t, err)
	return items
}

func TestScanAccounts_AcmeIdempotent(t *testing.T) {
	src := &stubSource{hits: map[string][]domain.ExternalHit{
		"Acme Corp": {{Title: "Acme raises $10M", Link: "https://techcrunch.com/x"}},
	}}
	s, gw := newScanner(t, src)
	acme, err := gw.Accounts.Create(context.Background(), &domain.Account{Name: "Acme Corp"})
	require.NoError(t, err)

	res, err := s.ScanAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	triggers := allTriggers(t, gw)
	require.Len(t, triggers, 1)
	tr := triggers[0]
	require.NotNil(t, tr.AccountID)
	assert.Equal(t, acme.ID, *tr.AccountID)
	assert.Nil(t, tr.PersonID)
	assert.Equal(t, domain.TriggerNews, tr.TriggerType)
	assert.Equal(t, domain.TriggerNew, tr.Status)
	assert.Equal(t, "https://techcrunch.com/x", tr.URL)
	assert.Equal(t, "techcrunch.com", tr.Media)
	assert.Equal(t, "Acme raises $10M", tr.Content)

	res, err = s.ScanAccounts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Equal(t, 1, res.Duplicates)
	assert.Len(t, allTriggers(t, gw), 1)
}

func TestScanAccounts_TitleMatchInRecentWindow(t *testing.T) {
	src := &stubSource{hits: map[string][]domain.ExternalHit{
		"Acme Corp": {
			{Title: "Acme raises $10M", Link: "https://techcrunch.com/x", Snippet: "Series A led by..."},
			{Title: "Acme raises $10M", Link: "https://news.example.com/syndicated"},
		},
	}}
	s, gw := newScanner(t, src)
	_, err := gw.Accounts.Create(context.Background(), &domain.Account{Name: "Acme Corp"})
	require.NoError(t, err)

	res, err := s.ScanAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, "Acme raises $10M\nSeries A led by...", allTriggers(t, gw)[0].Content)
}

func TestScanAccounts_SearchFailureDoesNotAbort(t *testing.T) {
	src := &stubSource{
		hits: map[string][]domain.ExternalHit{"Beta Inc": {{Title: "Beta launches", Link: "https://b.example/1"}}},
		fail: map[string]bool{"Acme Corp": true},
	}
	s, gw := newScanner(t, src)
	for _, name := range []string{"Acme Corp", "Beta Inc"} {
		_, err := gw.Accounts.Create(context.Background(), &domain.Account{Name: name})
		require.NoError(t, err)
	}

	res, err := s.ScanAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.SearchErrors)
	assert.Equal(t, 1, res.Created)
	assert.ElementsMatch(t, []string{"Acme Corp", "Beta Inc"}, src.queries)
}

func TestScanPeople_QueriesAndScope(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{hits: map[string][]domain.ExternalHit{
		`"Jane Doe"`:             {{Title: "Jane Doe keynote", Link: "https://conf.example/jane"}},
		`"Jane Doe" "Acme Corp"`: {{Title: "Acme CTO Jane Doe", Link: "https://www.wired.com/acme"}},
	}}
	s, gw := newScanner(t, src)
	acme, err := gw.Accounts.Create(ctx, &domain.Account{Name: "Acme Corp"})
	require.NoError(t, err)
	jane, err := gw.People.Create(ctx, &domain.Person{FirstName: "Jane", LastName: "Doe", AccountID: &acme.ID})
	require.NoError(t, err)

	res, err := s.ScanPeople(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, []string{`"Jane Doe"`, `"Jane Doe" "Acme Corp"`}, src.queries)

	for _, tr := range allTriggers(t, gw) {
		require.NotNil(t, tr.PersonID)
		assert.Equal(t, jane.ID, *tr.PersonID)
		require.NotNil(t, tr.AccountID)
		assert.Equal(t, acme.ID, *tr.AccountID)
	}

	res, err = s.ScanPeople(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Created)
}

func TestScanPeople_AccountChangeKeepsSingleTrigger(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{hits: map[string][]domain.ExternalHit{
		`"Jane Doe"`: {{Title: "Jane Doe keynote", Link: "https://conf.example/jane"}},
	}}
	s, gw := newScanner(t, src)
	acme, err := gw.Accounts.Create(ctx, &domain.Account{Name: "Acme Corp"})
	require.NoError(t, err)
	globex, err := gw.Accounts.Create(ctx, &domain.Account{Name: "Globex"})
	require.NoError(t, err)
	jane, err := gw.People.Create(ctx, &domain.Person{FirstName: "Jane", LastName: "Doe", AccountID: &acme.ID})
	require.NoError(t, err)

	res, err := s.ScanPeople(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)

	_, err = gw.People.Update(ctx, jane.ID, crm.PersonUpdate{AccountID: &globex.ID})
	require.NoError(t, err)
	// push the first trigger out of the recent window
	for i := 0; i < 12; i++ {
		_, err := gw.Triggers.Create(ctx, &domain.Trigger{AccountID: &globex.ID, TriggerType: domain.TriggerNews, Content: "filler"})
		require.NoError(t, err)
	}

	res, err = s.ScanPeople(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Created)

	// deleting the old account keeps the person's trigger
	require.NoError(t, gw.Accounts.Delete(ctx, acme.ID))
	res, err = s.ScanPeople(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Created)

	items, total, err := gw.Triggers.List(ctx, crm.ListFilter{PersonID: &jane.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "https://conf.example/jane", items[0].URL)
	assert.Nil(t, items[0].AccountID)
}

func TestSearchPerson_MergesAndDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	hit := domain.ExternalHit{Title: "Jane Doe", Link: "https://a.example/1"}
	src := &stubSource{hits: map[string][]domain.ExternalHit{
		`"Jane Doe"`:             {hit},
		`"Jane Doe" "Acme Corp"`: {hit, {Title: "Other", Link: "https://a.example/2"}},
	}}
	s, gw := newScanner(t, src)
	acme, _ := gw.Accounts.Create(ctx, &domain.Account{Name: "Acme Corp"})
	jane, _ := gw.People.Create(ctx, &domain.Person{FirstName: "Jane", LastName: "Doe", AccountID: &acme.ID})

	hits, err := s.SearchPerson(ctx, jane.ID)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Empty(t, allTriggers(t, gw))

	_, err = s.SearchPerson(ctx, 999)
	assert.ErrorIs(t, err, crm.ErrNotFound)
}

func TestScanBirthdays_OncePerDay(t *testing.T) {
	ctx := context.Background()
	s, gw := newScanner(t, &stubSource{})
	s.loc = time.UTC
	s.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }

	bday := time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC)
	structured, _ := gw.People.Create(ctx, &domain.Person{FirstName: "Ann", LastName: "Lee", Birthday: &bday})
	freeText, _ := gw.People.Create(ctx, &domain.Person{FirstName: "Bo", LastName: "Kim", Details: "met at expo; bday 03/14"})
	_, _ = gw.People.Create(ctx, &domain.Person{FirstName: "Cy", LastName: "Ng", Details: "born 1985-07-01"})

	res, err := s.ScanBirthdays(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)

	res, err = s.ScanBirthdays(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Equal(t, 2, res.Duplicates)

	ids := map[int64]bool{}
	for _, tr := range allTriggers(t, gw) {
		assert.Equal(t, domain.TriggerBirthday, tr.TriggerType)
		ids[*tr.PersonID] = true
	}
	assert.Equal(t, map[int64]bool{structured.ID: true, freeText.ID: true}, ids)
}

func TestHasBirthday(t *testing.T) {
	today := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	leapDay := time.Date(2000, 2, 29, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		person domain.Person
		today  time.Time
		want   bool
	}{
		{"dashes", domain.Person{Details: "birthday: 03-14"}, today, true},
		{"with year", domain.Person{Details: "DOB 1990-03-14"}, today, true},
		{"dots", domain.Person{Details: "1990.3.14"}, today, true},
		{"other day", domain.Person{Details: "03-15"}, today, false},
		{"invalid month", domain.Person{Details: "14-03"}, today, false},
		{"no date", domain.Person{Details: "likes golf"}, today, false},
		{"leap day in common year", domain.Person{Birthday: &leapDay}, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), true},
		{"leap day in leap year", domain.Person{Birthday: &leapDay}, time.Date(2028, 2, 28, 0, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasBirthday(&tt.person, tt.today))
		})
	}
}

type failingAccounts struct {
	crm.AccountRepository
}

func (failingAccounts) List(context.Context, crm.ListFilter) ([]domain.Account, int, error) {
	return nil, 0, errors.New("connection refused")
}

func TestRunFullScan_IsolatesFailures(t *testing.T) {
	ctx := context.Background()
	src := &stubSource{hits: map[string][]domain.ExternalHit{
		`"Jane Doe"`: {{Title: "Jane Doe keynote", Link: "https://conf.example/jane"}},
	}}
	s, gw := newScanner(t, src)
	_, err := gw.People.Create(ctx, &domain.Person{FirstName: "Jane", LastName: "Doe"})
	require.NoError(t, err)
	gw.Accounts = failingAccounts{gw.Accounts}

	rep, err := s.RunFullScan(ctx)
	require.Error(t, err)
	assert.Contains(t, rep.Errors, KindAccounts)
	assert.NotContains(t, rep.Errors, KindPeople)
	assert.Equal(t, 1, rep.People.Created)
}

func TestSearch_SpacesCalls(t *testing.T) {
	ctx := context.Background()
	gw := memory.NewGateway()
	s := New(gw, &stubSource{}, Options{CallDelay: 40 * time.Millisecond})
	for _, name := range []string{"A", "B", "C"} {
		_, err := gw.Accounts.Create(ctx, &domain.Account{Name: name})
		require.NoError(t, err)
	}

	start := time.Now()
	res, err := s.ScanAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Queries)
	assert.GreaterOrEqual(t, time.Since(start), 75*time.Millisecond)
}
