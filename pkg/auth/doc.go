// Package auth holds the request-scoped caller context and the login flow.
//
// # Authorization Context
//
// middleware.AuthMiddleware verifies the session token, resolves the caller's
// directory row and stores an *AuthContext in the request context:
//
//	authCtx := auth.GetAuthContext(r.Context())
//	if authCtx == nil {
//		httputil.WriteError(w, http.StatusUnauthorized, "Unauthorized")
//		return
//	}
//
// # Login
//
// LoginService checks credentials with the identity provider, looks the
// account up in the directory exactly once and picks the landing route for
// its role. A role without a landing route is terminal:
//
//	result, err := logins.Login(ctx, email, password)
//	if errors.Is(err, auth.ErrUnknownRole) {
//		// 400 {"error": "Unknown role"}
//	}
//
// # Related Packages
//
//   - pkg/rbac: the rule table a caller is authorized against
//   - pkg/identity: the identity provider and session verifiers
//   - pkg/middleware: HTTP authentication and rate limiting
package auth
