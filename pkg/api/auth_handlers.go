package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tracklane/tracklane/pkg/auth"
	"github.com/tracklane/tracklane/pkg/httputil"
	"github.com/tracklane/tracklane/pkg/users"
)

// TokenIssuer is the slice of the token manager the auth handlers need.
type TokenIssuer interface {
	CreateToken(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*auth.APIToken, string, error)
	RevokeToken(ctx context.Context, tokenID, userID int64) error
}

// AuthHandlers handles registration and API token HTTP requests.
type AuthHandlers struct {
	userStore users.Store
	tokens    TokenIssuer
}

// NewAuthHandlers creates a new AuthHandlers.
func NewAuthHandlers(userStore users.Store, tokens TokenIssuer) *AuthHandlers {
	return &AuthHandlers{
		userStore: userStore,
		tokens:    tokens,
	}
}

// RegisterRoutes registers authentication routes. The register route is the
// only one that works without a token.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/register", h.Register).Methods("POST")
	router.HandleFunc("/auth/me", h.Me).Methods("GET")
	router.HandleFunc("/auth/tokens", h.CreateToken).Methods("POST")
	router.HandleFunc("/auth/tokens/{id}", h.RevokeToken).Methods("DELETE")
}

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

type registerResponse struct {
	User  *auth.User `json:"user"`
	Token string     `json:"token"`
}

// Register creates a user account and issues its first API token. The
// plaintext token appears only in this response.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.DisplayName, "display_name") {
		return
	}

	user := &auth.User{
		Email:       req.Email,
		DisplayName: req.DisplayName,
	}
	if err := h.userStore.Create(r.Context(), user); err != nil {
		httputil.WriteACLError(w, err)
		return
	}

	_, plaintext, err := h.tokens.CreateToken(r.Context(), user.ID, "initial token", nil)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, &registerResponse{User: user, Token: plaintext})
}

// Me returns the authenticated user.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	httputil.WriteSuccess(w, authCtx.User)
}

type createTokenRequest struct {
	Name          string `json:"name"`
	ExpiresInDays int    `json:"expires_in_days,omitempty"`
}

type createTokenResponse struct {
	Token    *auth.APIToken `json:"token"`
	Plaintext string        `json:"plaintext"`
}

// CreateToken issues an additional API token for the caller.
func (h *AuthHandlers) CreateToken(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req createTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}

	var expiresAt *time.Time
	if req.ExpiresInDays > 0 {
		expiry := time.Now().AddDate(0, 0, req.ExpiresInDays)
		expiresAt = &expiry
	}

	apiToken, plaintext, err := h.tokens.CreateToken(r.Context(), authCtx.User.ID, req.Name, expiresAt)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteCreated(w, &createTokenResponse{Token: apiToken, Plaintext: plaintext})
}

// RevokeToken revokes one of the caller's tokens.
func (h *AuthHandlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.FromContext(r.Context())
	if authCtx == nil || authCtx.User == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.tokens.RevokeToken(r.Context(), id, authCtx.User.ID); err != nil {
		httputil.WriteNotFoundError(w, "token not found")
		return
	}

	httputil.WriteNoContent(w)
}
