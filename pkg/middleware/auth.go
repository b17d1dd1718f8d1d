package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/platinummonkey/fuelops/pkg/auth"
	"github.com/platinummonkey/fuelops/pkg/contextkeys"
	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/platinummonkey/fuelops/pkg/httputil"
	"github.com/platinummonkey/fuelops/pkg/identity"
	"github.com/platinummonkey/fuelops/pkg/lifecycle"
	"github.com/platinummonkey/fuelops/pkg/observability"
)

// SessionCookie is the cookie the web client keeps its access token in
const SessionCookie = "sb-access-token"

// CallerResolver loads the directory row behind a verified session.
// *lifecycle.Service implements it.
type CallerResolver interface {
	ResolveCaller(ctx context.Context, id string) (*directory.User, error)
}

// AuthMiddleware authenticates requests with an identity provider session
type AuthMiddleware struct {
	verifier identity.SessionVerifier
	resolver CallerResolver
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier identity.SessionVerifier, resolver CallerResolver) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		resolver: resolver,
	}
}

// Handler wraps an HTTP handler with authentication. The wrapped handler
// always finds an *auth.AuthContext in the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			httputil.WriteUnauthorized(w, lifecycle.MsgUnauthorized)
			return
		}

		claims, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Debug("session rejected")
			httputil.WriteUnauthorized(w, lifecycle.MsgUnauthorized)
			return
		}

		user, err := m.resolver.ResolveCaller(r.Context(), claims.Subject)
		if err != nil {
			if lifecycle.IsNotFound(err) {
				httputil.WriteNotFoundError(w, lifecycle.MsgUserNotFound)
				return
			}
			observability.FromContext(r.Context()).WithError(err).Error("failed to resolve caller")
			httputil.WriteInternalError(w, "Failed to load user")
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), auth.NewAuthContext(user, token))
		ctx = contextkeys.WithUserID(ctx, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionToken reads a Bearer token, falling back to the session cookie
func sessionToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}
	return ""
}
