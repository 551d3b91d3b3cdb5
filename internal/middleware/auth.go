package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/halogen-labs/halogen/internal/app/domain/user"
	apperrors "github.com/halogen-labs/halogen/internal/errors"
	"github.com/halogen-labs/halogen/internal/logging"
	"github.com/halogen-labs/halogen/pkg/logger"
)

// Authenticator resolves a session token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (user.User, error)
}

// AuthMiddleware authenticates requests by session cookie.
type AuthMiddleware struct {
	auth         Authenticator
	cookieName   string
	skipPaths    map[string]bool
	skipPrefixes []string
	log          *logger.Logger
}

// NewAuthMiddleware creates the middleware. Paths in skipPaths pass through
// unauthenticated; a trailing "/" marks a prefix skip.
func NewAuthMiddleware(auth Authenticator, cookieName string, skipPaths []string, log *logger.Logger) *AuthMiddleware {
	skip := make(map[string]bool, len(skipPaths))
	var prefixes []string
	for _, path := range skipPaths {
		if strings.HasSuffix(path, "/") {
			prefixes = append(prefixes, path)
			continue
		}
		skip[path] = true
	}
	return &AuthMiddleware{auth: auth, cookieName: cookieName, skipPaths: skip, skipPrefixes: prefixes, log: log}
}

func (m *AuthMiddleware) skip(path string) bool {
	if m.skipPaths[path] {
		return true
	}
	for _, prefix := range m.skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skip(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(m.cookieName)
		if err != nil || cookie.Value == "" {
			WriteError(w, apperrors.Unauthorized("missing session cookie"))
			return
		}

		u, err := m.auth.Authenticate(r.Context(), cookie.Value)
		if err != nil {
			m.log.WithError(err).Warnf("session authentication failed")
			WriteError(w, apperrors.Unauthorized("invalid or expired session"))
			return
		}

		ctx := logging.WithUserID(r.Context(), u.ID)
		ctx = logging.WithSessionToken(ctx, cookie.Value)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserID extracts the authenticated user id from the context.
func UserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// SessionToken extracts the session token from the context.
func SessionToken(ctx context.Context) string {
	return logging.GetSessionToken(ctx)
}
