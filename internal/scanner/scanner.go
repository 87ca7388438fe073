// Package scanner discovers outreach-worthy events: news mentions of accounts
// and people from an external search source, and birthdays.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/metrics"
	"github.com/ignite/outreach-crm/internal/pkg/logger"
	"github.com/ignite/outreach-crm/internal/search"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

// Defaults applied by New when Options leave a field at zero.
const (
	DefaultAccountLimit = 100
	DefaultPeopleLimit  = 100
	DefaultRecentWindow = 10
	DefaultCallDelay    = time.Second
)

// Scan kinds, used in reports and metrics.
const (
	KindAccounts  = "accounts"
	KindPeople    = "people"
	KindBirthdays = "birthdays"
)

// Options tunes a Scanner.
type Options struct {
	AccountLimit int
	PeopleLimit  int
	// RecentWindow is how many of the latest triggers the heuristic
	// duplicate check inspects.
	RecentWindow int
	// CallDelay is the minimum spacing between search calls. A negative
	// value disables spacing.
	CallDelay time.Duration
	// Location decides what "today" means for birthdays.
	Location *time.Location
	Metrics  *metrics.Metrics
}

// ScanResult counts what one scan did.
type ScanResult struct {
	Subjects     int `json:"subjects"`
	Queries      int `json:"queries"`
	Hits         int `json:"hits"`
	Created      int `json:"created"`
	Duplicates   int `json:"duplicates"`
	SearchErrors int `json:"search_errors"`
}

// FullScanReport collects the three scans of RunFullScan. Errors is keyed by
// scan kind.
type FullScanReport struct {
	Accounts  ScanResult        `json:"accounts"`
	People    ScanResult        `json:"people"`
	Birthdays ScanResult        `json:"birthdays"`
	Errors    map[string]string `json:"errors,omitempty"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
}

// Scanner inserts new triggers from external events.
type Scanner struct {
	gw      *crm.Gateway
	source  search.Source
	limiter *rate.Limiter
	metrics *metrics.Metrics

	accountLimit int
	peopleLimit  int
	recentWindow int
	loc          *time.Location
	now          func() time.Time
}

// New creates a Scanner. source may be nil, in which case only birthdays are
// scanned.
func New(gw *crm.Gateway, source search.Source, opts Options) *Scanner {
	if opts.AccountLimit <= 0 {
		opts.AccountLimit = DefaultAccountLimit
	}
	if opts.PeopleLimit <= 0 {
		opts.PeopleLimit = DefaultPeopleLimit
	}
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = DefaultRecentWindow
	}
	if opts.CallDelay == 0 {
		opts.CallDelay = DefaultCallDelay
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	limit := rate.Inf
	if opts.CallDelay > 0 {
		limit = rate.Every(opts.CallDelay)
	}
	return &Scanner{
		gw:           gw,
		source:       source,
		limiter:      rate.NewLimiter(limit, 1),
		metrics:      opts.Metrics,
		accountLimit: opts.AccountLimit,
		peopleLimit:  opts.PeopleLimit,
		recentWindow: opts.RecentWindow,
		loc:          opts.Location,
		now:          time.Now,
	}
}

// RunFullScan runs the account, people and birthday scans concurrently. A
// failing scan is logged and reported without stopping the others; the
// returned error joins every scan failure.
func (s *Scanner) RunFullScan(ctx context.Context) (FullScanReport, error) {
	rep := FullScanReport{StartedAt: s.now()}
	scans := []struct {
		kind string
		run  func(context.Context) (ScanResult, error)
		out  *ScanResult
	}{
		{KindAccounts, s.ScanAccounts, &rep.Accounts},
		{KindPeople, s.ScanPeople, &rep.People},
		{KindBirthdays, s.ScanBirthdays, &rep.Birthdays},
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, sc := range scans {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := sc.run(ctx)
			*sc.out = res
			if err == nil {
				return
			}
			logger.Error("[Scanner] Scan failed", "kind", sc.kind, "error", err)
			mu.Lock()
			defer mu.Unlock()
			if rep.Errors == nil {
				rep.Errors = make(map[string]string)
			}
			rep.Errors[sc.kind] = err.Error()
			errs = append(errs, fmt.Errorf("%s scan: %w", sc.kind, err))
		}()
	}
	wg.Wait()

	rep.Duration = s.now().Sub(rep.StartedAt)
	logger.Info("[Scanner] Full scan complete",
		"accounts_created", rep.Accounts.Created, "people_created", rep.People.Created,
		"birthdays_created", rep.Birthdays.Created, "failed_scans", len(errs), "duration", rep.Duration)
	return rep, errors.Join(errs...)
}

// ScanAccounts searches news for the first accounts and records new hits as
// account-level triggers.
func (s *Scanner) ScanAccounts(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	if s.source == nil {
		return res, nil
	}
	accounts, _, err := s.gw.Accounts.List(ctx, crm.ListFilter{Limit: s.accountLimit})
	if err != nil {
		return res, fmt.Errorf("list accounts: %w", err)
	}

	for i := range accounts {
		a := &accounts[i]
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		res.Subjects++
		hits, err := s.search(ctx, &res, name)
		if err != nil {
			return res, err
		}
		for _, hit := range hits {
			if err := s.record(ctx, &res, KindAccounts, &a.ID, nil, hit); err != nil {
				logger.Error("[Scanner] Recording account hit failed", "account_id", a.ID, "link", hit.Link, "error", err)
			}
		}
	}
	logger.Info("[Scanner] Account scan complete", "accounts", res.Subjects, "hits", res.Hits, "created", res.Created)
	return res, nil
}

// ScanPeople searches news for the first people by name, and by name plus
// company when the person has an account.
func (s *Scanner) ScanPeople(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	if s.source == nil {
		return res, nil
	}
	people, _, err := s.gw.People.List(ctx, crm.ListFilter{Limit: s.peopleLimit})
	if err != nil {
		return res, fmt.Errorf("list people: %w", err)
	}

	for i := range people {
		p := &people[i]
		queries := PersonQueries(p)
		if len(queries) == 0 {
			continue
		}
		res.Subjects++
		for _, q := range queries {
			hits, err := s.search(ctx, &res, q)
			if err != nil {
				return res, err
			}
			for _, hit := range hits {
				if err := s.record(ctx, &res, KindPeople, p.AccountID, &p.ID, hit); err != nil {
					logger.Error("[Scanner] Recording person hit failed", "person_id", p.ID, "link", hit.Link, "error", err)
				}
			}
		}
	}
	logger.Info("[Scanner] People scan complete", "people", res.Subjects, "hits", res.Hits, "created", res.Created)
	return res, nil
}

// SearchPerson runs the person queries without recording anything. Hits are
// merged by link. Search failures yield an empty result.
func (s *Scanner) SearchPerson(ctx context.Context, personID int64) ([]domain.ExternalHit, error) {
	p, err := s.gw.People.Get(ctx, personID)
	if err != nil {
		return nil, err
	}
	out := []domain.ExternalHit{}
	if s.source == nil {
		return out, nil
	}
	var res ScanResult
	seen := make(map[string]bool)
	for _, q := range PersonQueries(p) {
		hits, err := s.search(ctx, &res, q)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if h.Link != "" && seen[h.Link] {
				continue
			}
			seen[h.Link] = true
			out = append(out, h)
		}
	}
	return out, nil
}

// PersonQueries returns the quoted search phrases for p.
func PersonQueries(p *domain.Person) []string {
	name := p.FullName()
	if name == "" {
		return nil
	}
	queries := []string{fmt.Sprintf("%q", name)}
	if company := strings.TrimSpace(p.CompanyName()); company != "" {
		queries = append(queries, fmt.Sprintf("%q %q", name, company))
	}
	return queries
}

// search waits for the shared limiter, then calls the source. Source errors
// are logged and become an empty result; only a cancelled wait is returned.
func (s *Scanner) search(ctx context.Context, res *ScanResult, query string) ([]domain.ExternalHit, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	res.Queries++
	hits, err := s.source.Search(ctx, query)
	if err != nil {
		res.SearchErrors++
		logger.Warn("[Scanner] Search failed", "query", query, "error", err)
		return nil, nil
	}
	res.Hits += len(hits)
	return hits, nil
}

// record inserts hit as a news trigger unless it is already represented.
func (s *Scanner) record(ctx context.Context, res *ScanResult, kind string, accountID, personID *int64, hit domain.ExternalHit) error {
	link := strings.TrimSpace(hit.Link)
	title := strings.TrimSpace(hit.Title)
	if link == "" && title == "" {
		return nil
	}

	dup, err := s.represented(ctx, accountID, personID, link, title)
	if err != nil {
		return err
	}
	if dup {
		res.Duplicates++
		return nil
	}

	label := hit.SourceLabel
	if label == "" {
		label = search.SourceLabel(link)
	}
	content := title
	if snippet := strings.TrimSpace(hit.Snippet); snippet != "" && snippet != title {
		content = strings.TrimSpace(title + "\n" + snippet)
	}

	_, created, err := s.gw.Triggers.CreateIfAbsent(ctx, &domain.Trigger{
		AccountID:   accountID,
		PersonID:    personID,
		TriggerType: domain.TriggerNews,
		Status:      domain.TriggerNew,
		Content:     content,
		URL:         link,
		Media:       label,
	})
	if err != nil {
		return fmt.Errorf("create trigger: %w", err)
	}
	if !created {
		res.Duplicates++
		return nil
	}
	res.Created++
	s.metrics.TriggerCreated(kind)
	return nil
}

// represented checks the exact (subject, url) lookup first, then the recent
// window for a same-subject trigger with the same url or containing the title.
func (s *Scanner) represented(ctx context.Context, accountID, personID *int64, link, title string) (bool, error) {
	if link != "" {
		_, err := s.gw.Triggers.FindBySource(ctx, accountID, personID, link)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, crm.ErrNotFound) {
			return false, fmt.Errorf("find trigger by source: %w", err)
		}
	}

	recent, err := s.gw.Triggers.Recent(ctx, s.recentWindow)
	if err != nil {
		return false, fmt.Errorf("recent triggers: %w", err)
	}
	for i := range recent {
		t := &recent[i]
		if !t.SameSubject(accountID, personID) {
			continue
		}
		if link != "" && t.URL == link {
			return true, nil
		}
		if title != "" && strings.Contains(t.Content, title) {
			return true, nil
		}
	}
	return false, nil
}
