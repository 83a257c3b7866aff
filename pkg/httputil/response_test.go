package httputil

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracklane/tracklane/pkg/acl"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]string{"name": "Acme"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Acme")
}

func TestStatusWriters(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		body   string
	}{
		{"validation", func(w http.ResponseWriter) { WriteValidationError(w, "name is required") }, http.StatusBadRequest, "name is required"},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "authentication required") }, http.StatusUnauthorized, "authentication required"},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "access denied") }, http.StatusForbidden, "access denied"},
		{"not found", func(w http.ResponseWriter) { WriteNotFoundError(w, "project not found") }, http.StatusNotFound, "project not found"},
		{"conflict", func(w http.ResponseWriter) { WriteConflict(w, "already a member") }, http.StatusConflict, "already a member"},
		{"rate limited", func(w http.ResponseWriter) { WriteTooManyRequests(w, "rate limit exceeded") }, http.StatusTooManyRequests, "rate limit exceeded"},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w, errors.New("boom")) }, http.StatusInternalServerError, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.write(w)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestWriteACLError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"last owner", acl.NewLastOwnerError("workspace", 1), http.StatusConflict, "last owner"},
		{"conflict", fmt.Errorf("member: %w", acl.ErrConflict), http.StatusConflict, "member"},
		{"not found", fmt.Errorf("project: %w", acl.ErrNotFound), http.StatusNotFound, "project"},
		{"non-member collapses into access denied", fmt.Errorf("user 9: %w", acl.ErrNotAMember), http.StatusForbidden, "access denied"},
		{"insufficient role collapses into access denied", fmt.Errorf("role viewer: %w", acl.ErrForbidden), http.StatusForbidden, "access denied"},
		{"unknown error is a 500", errors.New("connection reset"), http.StatusInternalServerError, "connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteACLError(w, tt.err)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}

	t.Run("membership errors are indistinguishable to the caller", func(t *testing.T) {
		outsider := httptest.NewRecorder()
		WriteACLError(outsider, fmt.Errorf("user 9: %w", acl.ErrNotAMember))
		viewer := httptest.NewRecorder()
		WriteACLError(viewer, fmt.Errorf("role viewer: %w", acl.ErrForbidden))

		assert.Equal(t, outsider.Code, viewer.Code)
		assert.Equal(t, outsider.Body.String(), viewer.Body.String())
	})
}
