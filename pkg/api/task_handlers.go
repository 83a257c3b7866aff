package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/httputil"
	"github.com/tracklane/tracklane/pkg/tasks"
)

// TaskHandlers handles task HTTP requests. Authorization happens inside the
// task service, which consults the project ACL.
type TaskHandlers struct {
	taskService tasks.Service
}

// NewTaskHandlers creates a new TaskHandlers.
func NewTaskHandlers(taskService tasks.Service) *TaskHandlers {
	return &TaskHandlers{
		taskService: taskService,
	}
}

// RegisterRoutes registers task routes. The assigned route is registered
// before the id route so "assigned" is not parsed as a task id.
func (h *TaskHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/tasks", h.CreateTask).Methods("POST")
	router.HandleFunc("/tasks/assigned", h.ListAssignedTasks).Methods("GET")
	router.HandleFunc("/tasks/{id}", h.GetTask).Methods("GET")
	router.HandleFunc("/tasks/{id}", h.UpdateTask).Methods("PUT")
	router.HandleFunc("/tasks/{id}", h.DeleteTask).Methods("DELETE")
	router.HandleFunc("/projects/{id}/tasks", h.ListProjectTasks).Methods("GET")
}

// CreateTask creates a task in a project.
func (h *TaskHandlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req tasks.CreateTaskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Title, "title") {
		return
	}
	if req.ProjectID == 0 {
		httputil.WriteValidationError(w, "project_id is required")
		return
	}

	task, err := h.taskService.CreateTask(r.Context(), &req, authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteCreated(w, task)
}

// GetTask retrieves a task. Non-members of the task's project get a 404.
func (h *TaskHandlers) GetTask(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(r.Context(), id, authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, task)
}

// ListProjectTasks lists a project's tasks in board order.
func (h *TaskHandlers) ListProjectTasks(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	projectID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	list, err := h.taskService.ListProjectTasks(r.Context(), projectID, authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// ListAssignedTasks lists the caller's assigned tasks across all projects
// they can see.
func (h *TaskHandlers) ListAssignedTasks(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	list, err := h.taskService.ListAssignedTasks(r.Context(), authCtx.User.ID)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, list)
}

// UpdateTask applies partial updates to a task.
func (h *TaskHandlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req tasks.UpdateTaskRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Status != nil && !req.Status.IsValid() {
		httputil.WriteValidationError(w, "invalid status")
		return
	}

	task, err := h.taskService.UpdateTask(r.Context(), id, authCtx.User.ID, &req)
	if err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteSuccess(w, task)
}

// DeleteTask deletes a task. Requires project owner or admin.
func (h *TaskHandlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(r.Context(), id, authCtx.User.ID); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
