package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/outreach-crm/internal/domain"
	"github.com/ignite/outreach-crm/internal/pkg/httputil"
	"github.com/ignite/outreach-crm/internal/scheduler"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

// JobController is the scheduler surface exposed over HTTP.
type JobController interface {
	Status() map[string]scheduler.JobStatus
	RunJobManually(ctx context.Context, name string) (any, error)
	StartJob(name string) error
	StopJob(name string) error
}

// NewsFinder looks up recent news about a person without recording anything.
type NewsFinder interface {
	SearchPerson(ctx context.Context, personID int64) ([]domain.ExternalHit, error)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	svc  *crm.Service
	jobs JobController
	news NewsFinder
}

// NewHandlers creates a new Handlers instance. jobs and news may be nil.
func NewHandlers(svc *crm.Service, jobs JobController, news NewsFinder) *Handlers {
	return &Handlers{svc: svc, jobs: jobs, news: news}
}

// parseFilter reads the list filters shared by every collection.
func parseFilter(r *http.Request) (crm.ListFilter, error) {
	q := r.URL.Query()
	f := crm.ListFilter{
		Search: strings.TrimSpace(q.Get("search")),
		Status: q.Get("status"),
		Type:   q.Get("type"),
		Media:  q.Get("media"),
	}
	if f.Search == "" {
		f.Search = strings.TrimSpace(q.Get("q"))
	}
	ids := map[string]**int64{
		"account_id":      &f.AccountID,
		"person_id":       &f.PersonID,
		"trigger_id":      &f.TriggerID,
		"conversation_id": &f.ConversationID,
	}
	for name, dst := range ids {
		v := q.Get(name)
		if v == "" {
			continue
		}
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return f, fmt.Errorf("invalid %s", name)
		}
		*dst = &id
	}
	if v := q.Get("created_since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			ts, err = time.ParseInLocation("2006-01-02", v, time.Local)
		}
		if err != nil {
			return f, fmt.Errorf("invalid created_since")
		}
		f.CreatedSince = &ts
	}
	return f, nil
}

func listResponse[T any](w http.ResponseWriter, r *http.Request, list func(context.Context, crm.ListFilter) ([]T, int, error)) {
	f, err := parseFilter(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	p := parsePage(r)
	p.apply(&f)

	items, total, err := list(r.Context(), f)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, newListPage(items, p, total))
}

func getResponse[T any](w http.ResponseWriter, r *http.Request, get func(context.Context, int64) (T, error)) {
	id, ok := httputil.IDParam(w, r, "id")
	if !ok {
		return
	}
	v, err := get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, v)
}

func updateResponse[P, T any](w http.ResponseWriter, r *http.Request, update func(context.Context, int64, P) (T, error)) {
	id, ok := httputil.IDParam(w, r, "id")
	if !ok {
		return
	}
	var patch P
	if !httputil.Decode(w, r, &patch) {
		return
	}
	v, err := update(r.Context(), id, patch)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, v)
}

func deleteResponse(w http.ResponseWriter, r *http.Request, del func(context.Context, int64) error) {
	id, ok := httputil.IDParam(w, r, "id")
	if !ok {
		return
	}
	if err := del(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	httputil.NoContent(w)
}

// Accounts

func (h *Handlers) ListAccounts(w http.ResponseWriter, r *http.Request) {
	listResponse(w, r, h.svc.ListAccounts)
}

func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	getResponse(w, r, h.svc.GetAccount)
}

func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var in domain.Account
	if !httputil.Decode(w, r, &in) {
		return
	}
	a, err := h.svc.CreateAccount(r.Context(), &in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, a)
}

func (h *Handlers) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	updateResponse(w, r, h.svc.UpdateAccount)
}

func (h *Handlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	deleteResponse(w, r, h.svc.DeleteAccount)
}

// People

func (h *Handlers) ListPeople(w http.ResponseWriter, r *http.Request) {
	listResponse(w, r, h.svc.ListPeople)
}

func (h *Handlers) GetPerson(w http.ResponseWriter, r *http.Request) {
	getResponse(w, r, h.svc.GetPerson)
}

func (h *Handlers) CreatePerson(w http.ResponseWriter, r *http.Request) {
	var in crm.PersonInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	p, err := h.svc.CreatePerson(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, p)
}

func (h *Handlers) UpdatePerson(w http.ResponseWriter, r *http.Request) {
	updateResponse(w, r, h.svc.UpdatePerson)
}

func (h *Handlers) DeletePerson(w http.ResponseWriter, r *http.Request) {
	deleteResponse(w, r, h.svc.DeletePerson)
}

// PersonNews returns recent external news about a person.
//
//	GET /api/people/{id}/news
func (h *Handlers) PersonNews(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.IDParam(w, r, "id")
	if !ok {
		return
	}
	if h.news == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "news search is not configured")
		return
	}
	hits, err := h.news.SearchPerson(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if hits == nil {
		hits = []domain.ExternalHit{}
	}
	httputil.OK(w, map[string]any{"person_id": id, "data": hits})
}

// Triggers

func (h *Handlers) ListTriggers(w http.ResponseWriter, r *http.Request) {
	listResponse(w, r, h.svc.ListTriggers)
}

func (h *Handlers) GetTrigger(w http.ResponseWriter, r *http.Request) {
	getResponse(w, r, h.svc.GetTrigger)
}

func (h *Handlers) CreateTrigger(w http.ResponseWriter, r *http.Request) {
	var in domain.Trigger
	if !httputil.Decode(w, r, &in) {
		return
	}
	t, err := h.svc.CreateTrigger(r.Context(), &in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, t)
}

func (h *Handlers) UpdateTrigger(w http.ResponseWriter, r *http.Request) {
	updateResponse(w, r, h.svc.UpdateTrigger)
}

func (h *Handlers) DeleteTrigger(w http.ResponseWriter, r *http.Request) {
	deleteResponse(w, r, h.svc.DeleteTrigger)
}

// IgnoreTrigger marks a new trigger ignored.
//
//	POST /api/triggers/{id}/ignore
func (h *Handlers) IgnoreTrigger(w http.ResponseWriter, r *http.Request) {
	getResponse(w, r, h.svc.IgnoreTrigger)
}

// Messages

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	listResponse(w, r, h.svc.ListMessages)
}

func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	getResponse(w, r, h.svc.GetMessage)
}

func (h *Handlers) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var in domain.Message
	if !httputil.Decode(w, r, &in) {
		return
	}
	m, err := h.svc.CreateMessage(r.Context(), &in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, m)
}

func (h *Handlers) UpdateMessage(w http.ResponseWriter, r *http.Request) {
	updateResponse(w, r, h.svc.UpdateMessage)
}

func (h *Handlers) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	deleteResponse(w, r, h.svc.DeleteMessage)
}

// QueueMessage moves a draft to to_send.
//
//	POST /api/messages/{id}/queue
func (h *Handlers) QueueMessage(w http.ResponseWriter, r *http.Request) {
	getResponse(w, r, h.svc.QueueMessage)
}

// PromoteDrafts moves every draft to to_send.
//
//	POST /api/messages/promote-drafts
func (h *Handlers) PromoteDrafts(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.PromoteDrafts(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]int{"promoted": n})
}

// Conversations

func (h *Handlers) ListConversations(w http.ResponseWriter, r *http.Request) {
	listResponse(w, r, h.svc.ListConversations)
}

func (h *Handlers) GetConversation(w http.ResponseWriter, r *http.Request) {
	getResponse(w, r, h.svc.GetConversation)
}

func (h *Handlers) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var in domain.Conversation
	if !httputil.Decode(w, r, &in) {
		return
	}
	c, err := h.svc.CreateConversation(r.Context(), &in)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.Created(w, c)
}

func (h *Handlers) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	updateResponse(w, r, h.svc.UpdateConversation)
}

func (h *Handlers) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	deleteResponse(w, r, h.svc.DeleteConversation)
}

// GetStats returns record counts.
//
//	GET /api/stats
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, st)
}

// Jobs

// ListJobs returns every job's status ordered by name.
//
//	GET /api/jobs
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	WriteJobStatus(w, h.jobs.Status())
}

// WriteJobStatus writes job statuses as {"data": [...]} ordered by name.
func WriteJobStatus(w http.ResponseWriter, status map[string]scheduler.JobStatus) {
	out := make([]scheduler.JobStatus, 0, len(status))
	for _, s := range status {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	httputil.OK(w, map[string]any{"data": out})
}

// RunJob executes a job synchronously and returns its report.
//
//	POST /api/jobs/{name}/run
func (h *Handlers) RunJob(w http.ResponseWriter, r *http.Request) {
	name := jobName(r)
	res, err := h.jobs.RunJobManually(r.Context(), name)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"job": name, "result": res})
}

// StartJob puts a job back on its schedule.
//
//	POST /api/jobs/{name}/start
func (h *Handlers) StartJob(w http.ResponseWriter, r *http.Request) {
	h.changeJob(w, r, h.jobs.StartJob)
}

// StopJob takes a job off its schedule.
//
//	POST /api/jobs/{name}/stop
func (h *Handlers) StopJob(w http.ResponseWriter, r *http.Request) {
	h.changeJob(w, r, h.jobs.StopJob)
}

func (h *Handlers) changeJob(w http.ResponseWriter, r *http.Request, fn func(string) error) {
	name := jobName(r)
	if err := fn(name); err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, h.jobs.Status()[name])
}
