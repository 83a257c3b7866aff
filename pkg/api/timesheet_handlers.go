package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/httputil"
	"github.com/tracklane/tracklane/pkg/timesheets"
)

// TimesheetHandlers handles timesheet HTTP requests.
type TimesheetHandlers struct {
	timesheetService timesheets.Service
}

// NewTimesheetHandlers creates a new TimesheetHandlers.
func NewTimesheetHandlers(timesheetService timesheets.Service) *TimesheetHandlers {
	return &TimesheetHandlers{
		timesheetService: timesheetService,
	}
}

// RegisterRoutes registers timesheet routes.
func (h *TimesheetHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/timesheets", h.LogEntry).Methods("POST")
	router.HandleFunc("/timesheets", h.ListUserEntries).Methods("GET")
	router.HandleFunc("/timesheets/{id}", h.UpdateEntry).Methods("PUT")
	router.HandleFunc("/timesheets/{id}", h.DeleteEntry).Methods("DELETE")
	router.HandleFunc("/projects/{id}/timesheets", h.ListProjectEntries).Methods("GET")
}

// LogEntry logs time for the caller against a project.
func (h *TimesheetHandlers) LogEntry(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req timesheets.LogEntryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ProjectID == 0 {
		httputil.WriteValidationError(w, "project_id is required")
		return
	}
	if req.Hours <= 0 {
		httputil.WriteValidationError(w, "hours must be positive")
		return
	}

	entry, err := h.timesheetService.LogEntry(r.Context(), &req, authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteCreated(w, entry)
}

// ListProjectEntries lists a project's entries. Any project member may look.
func (h *TimesheetHandlers) ListProjectEntries(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	list, err := h.timesheetService.ListProjectEntries(r.Context(), projectID, authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// ListUserEntries lists the caller's own entries, optionally bounded by
// from/to date query parameters.
func (h *TimesheetHandlers) ListUserEntries(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	from, ok := parseDateParam(w, r, "from", time.Time{})
	if !ok {
		return
	}
	to, ok := parseDateParam(w, r, "to", time.Now().AddDate(0, 0, 1))
	if !ok {
		return
	}

	list, err := h.timesheetService.ListUserEntries(r.Context(), authCtx.User.ID, from, to)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// UpdateEntry applies partial updates to an entry.
func (h *TimesheetHandlers) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req timesheets.UpdateEntryRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Hours != nil && *req.Hours <= 0 {
		httputil.WriteValidationError(w, "hours must be positive")
		return
	}

	entry, err := h.timesheetService.UpdateEntry(r.Context(), id, authCtx.User.ID, &req)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, entry)
}

// DeleteEntry deletes an entry.
func (h *TimesheetHandlers) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.timesheetService.DeleteEntry(r.Context(), id, authCtx.User.ID); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// parseDateParam reads an optional YYYY-MM-DD query parameter, writing a
// validation error when it is malformed.
func parseDateParam(w http.ResponseWriter, r *http.Request, name string, fallback time.Time) (time.Time, bool) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback, true
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		httputil.WriteValidationError(w, name+" must be a YYYY-MM-DD date")
		return time.Time{}, false
	}
	return parsed, true
}
