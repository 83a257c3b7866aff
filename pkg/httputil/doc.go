// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteSuccess(w, workspace)
//	httputil.WriteCreated(w, project)
//	httputil.WriteNoContent(w)
//
// Error responses:
//
//	httputil.WriteValidationError(w, "name is required")
//	httputil.WriteUnauthorized(w, "authentication required")
//	httputil.WriteNotFoundError(w, "project not found")
//
// WriteACLError maps the membership error taxonomy onto status codes. Both
// "not a member" and "insufficient role" become a generic 403 so callers
// cannot probe which resources exist:
//
//	if err := service.RemoveMember(ctx, projectID, actorID, targetID); err != nil {
//		httputil.WriteACLError(w, err)
//		return
//	}
//
// # Request Parsing
//
// JSON bodies:
//
//	var req createProjectRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // error response already written
//	}
//
// Path and query parameters:
//
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	limit, err := httputil.ParseQueryInt(r, "limit", 20)
package httputil
