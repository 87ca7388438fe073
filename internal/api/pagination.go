package api

import (
	"net/http"
	"strconv"

	"github.com/ignite/outreach-crm/internal/service/crm"
)

// maxPageSize caps the limit query parameter.
const maxPageSize = 200

// pageRequest is the window a list call asks for. Clients send either
// page/limit or offset/limit; offset wins when both are present.
type pageRequest struct {
	Page   int
	Limit  int
	Offset int
}

// listPage is the envelope of every collection endpoint.
type listPage[T any] struct {
	Data       []T      `json:"data"`
	Pagination pageMeta `json:"pagination"`
}

type pageMeta struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Offset     int  `json:"offset"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

func parsePage(r *http.Request) pageRequest {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 {
		limit = crm.DefaultLimit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if v := q.Get("offset"); v != "" {
		if off, err := strconv.Atoi(v); err == nil && off >= 0 {
			return pageRequest{Page: off/limit + 1, Limit: limit, Offset: off}
		}
	}
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	return pageRequest{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// apply narrows f to the requested window.
func (p pageRequest) apply(f *crm.ListFilter) {
	f.Limit, f.Offset = p.Limit, p.Offset
}

func newListPage[T any](items []T, p pageRequest, total int) listPage[T] {
	if items == nil {
		items = []T{}
	}
	pages := (total + p.Limit - 1) / p.Limit
	if pages < 1 {
		pages = 1
	}
	return listPage[T]{
		Data: items,
		Pagination: pageMeta{
			Page:       p.Page,
			Limit:      p.Limit,
			Offset:     p.Offset,
			Total:      total,
			TotalPages: pages,
			HasMore:    p.Offset+len(items) < total,
		},
	}
}
