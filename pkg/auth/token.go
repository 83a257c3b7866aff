package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

const (
	// TokenPrefix identifies tracklane API tokens.
	TokenPrefix = "trk_"
	// TokenLength is the number of random bytes per token.
	TokenLength = 32
)

// APIToken is the stored record of an issued token. The plaintext token is
// returned once at creation and only its hash is kept.
type APIToken struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	TokenHash   string     `json:"-"`
	TokenPrefix string     `json:"token_prefix"`
	Name        string     `json:"name"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// TokenGenerator generates and validates API token strings.
type TokenGenerator struct{}

// NewTokenGenerator creates a new token generator.
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{}
}

// GenerateToken creates a token of the form trk_<base64url(32 random
// bytes)> and returns it with its SHA256 hash and display prefix.
func (tg *TokenGenerator) GenerateToken() (token string, tokenHash string, tokenPrefix string, err error) {
	randomBytes := make([]byte, TokenLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(randomBytes)
	fullToken := TokenPrefix + encoded

	hash := sha256.Sum256([]byte(fullToken))
	prefix := TokenPrefix
	if len(encoded) >= 8 {
		prefix = TokenPrefix + encoded[:8]
	}

	return fullToken, hex.EncodeToString(hash[:]), prefix, nil
}

// HashToken computes the SHA256 hash of a token for lookup.
func (tg *TokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks prefix and encoding without touching storage.
func (tg *TokenGenerator) ValidateTokenFormat(token string) error {
	if !strings.HasPrefix(token, TokenPrefix) {
		return fmt.Errorf("token must start with %q", TokenPrefix)
	}
	encoded := strings.TrimPrefix(token, TokenPrefix)
	if len(encoded) == 0 {
		return fmt.Errorf("token is too short")
	}
	if _, err := base64.RawURLEncoding.DecodeString(encoded); err != nil {
		return fmt.Errorf("invalid token encoding: %w", err)
	}
	return nil
}

// TokenManager issues and validates API tokens against PostgreSQL.
type TokenManager struct {
	db        *sql.DB
	generator *TokenGenerator
}

// NewTokenManager creates a new token manager.
func NewTokenManager(db *sql.DB) *TokenManager {
	return &TokenManager{db: db, generator: NewTokenGenerator()}
}

// CreateToken issues a token for a user. The plaintext is returned exactly
// once.
func (tm *TokenManager) CreateToken(ctx context.Context, userID int64, name string, expiresAt *time.Time) (*APIToken, string, error) {
	token, tokenHash, tokenPrefix, err := tm.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	apiToken := &APIToken{
		UserID:      userID,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Name:        name,
		ExpiresAt:   expiresAt,
	}
	err = tm.db.QueryRowContext(ctx, `
		INSERT INTO api_tokens (user_id, token_hash, token_prefix, name, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, apiToken.UserID, apiToken.TokenHash, apiToken.TokenPrefix, apiToken.Name, apiToken.ExpiresAt).
		Scan(&apiToken.ID, &apiToken.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("failed to store token: %w", err)
	}

	return apiToken, token, nil
}

// ValidateToken resolves a plaintext token to its active user. Revoked and
// expired tokens, and tokens of deactivated users, are rejected.
func (tm *TokenManager) ValidateToken(ctx context.Context, token string) (*User, error) {
	if err := tm.generator.ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}

	tokenHash := tm.generator.HashToken(token)

	user := &User{}
	var tokenID int64
	err := tm.db.QueryRowContext(ctx, `
		SELECT t.id, u.id, u.email, u.display_name, u.global_role, u.is_active, u.created_at, u.updated_at
		FROM api_tokens t
		JOIN users u ON t.user_id = u.id
		WHERE t.token_hash = $1
			AND t.revoked_at IS NULL
			AND (t.expires_at IS NULL OR t.expires_at > NOW())
	`, tokenHash).Scan(&tokenID, &user.ID, &user.Email, &user.DisplayName, &user.GlobalRole, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invalid or expired token")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}
	if !user.IsActive {
		return nil, fmt.Errorf("user is deactivated")
	}

	if _, err := tm.db.ExecContext(ctx, `
		UPDATE api_tokens SET last_used_at = NOW() WHERE id = $1
	`, tokenID); err != nil {
		return nil, fmt.Errorf("failed to update token usage: %w", err)
	}

	return user, nil
}

// RevokeToken marks a token revoked. Revoking an already-revoked or unknown
// token reports no rows.
func (tm *TokenManager) RevokeToken(ctx context.Context, tokenID, userID int64) error {
	result, err := tm.db.ExecContext(ctx, `
		UPDATE api_tokens SET revoked_at = NOW()
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL
	`, tokenID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("token %d not found or already revoked", tokenID)
	}

	return nil
}

// CleanupExpiredTokens deletes tokens past their expiry.
func (tm *TokenManager) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	result, err := tm.db.ExecContext(ctx, `
		DELETE FROM api_tokens WHERE expires_at IS NOT NULL AND expires_at < NOW()
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup tokens: %w", err)
	}
	return result.RowsAffected()
}
