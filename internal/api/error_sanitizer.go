package api

import (
	"errors"
	"net/http"

	"github.com/ignite/outreach-crm/internal/pkg/httputil"
	"github.com/ignite/outreach-crm/internal/scheduler"
	"github.com/ignite/outreach-crm/internal/service/crm"
)

// respondError maps service errors to HTTP responses. Anything unrecognized
// is logged and answered with a generic 500 so storage details never leak.
func respondError(w http.ResponseWriter, err error) {
	var verr *crm.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.Validation(w, verr.Fields)
	case errors.Is(err, crm.ErrNotFound):
		httputil.NotFound(w, "not found")
	case errors.Is(err, scheduler.ErrUnknownJob):
		httputil.NotFound(w, "unknown job")
	case errors.Is(err, crm.ErrInvalidTransition), errors.Is(err, crm.ErrTriggerNotNew):
		httputil.Conflict(w, err.Error())
	case errors.Is(err, scheduler.ErrJobBusy):
		httputil.Conflict(w, "job is already executing")
	default:
		httputil.InternalError(w, err)
	}
}
