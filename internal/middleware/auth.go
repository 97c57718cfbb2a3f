package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platecraft/platecraft/internal/domain"
)

type contextKey string

const (
	// ProfileContextKey is the context key for the authenticated profile ID.
	ProfileContextKey contextKey = "profile_id"

	// TokenScopeContextKey is the context key for the authenticated token's scope.
	TokenScopeContextKey contextKey = "token_scope"
)

// RequireToken authenticates requests with a bearer API token.
// Tokens are looked up by SHA-256 digest; the raw value is never stored.
func RequireToken(tokens domain.TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				respondUnauthorized(w, r)
				return
			}

			digest := sha256.Sum256([]byte(raw))
			token, err := tokens.GetTokenByDigest(r.Context(), hex.EncodeToString(digest[:]))
			if err != nil {
				respondWithError(w, r, err)
				return
			}
			if token.Expired(time.Now()) {
				respondUnauthorized(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), ProfileContextKey, token.ProfileID)
			ctx = context.WithValue(ctx, TokenScopeContextKey, token.Scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope gates a route on the authenticated token's scope.
// Must run after RequireToken.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if GetTokenScope(r.Context()) != scope {
				respondForbidden(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}

// GetProfileID retrieves the authenticated profile ID from the request
// context. Returns uuid.Nil when the request is unauthenticated.
func GetProfileID(ctx context.Context) uuid.UUID {
	id, ok := ctx.Value(ProfileContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

// GetTokenScope retrieves the authenticated token's scope from the request
// context.
func GetTokenScope(ctx context.Context) string {
	scope, ok := ctx.Value(TokenScopeContextKey).(string)
	if !ok {
		return ""
	}
	return scope
}
