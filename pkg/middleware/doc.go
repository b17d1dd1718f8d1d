// Package middleware provides HTTP middleware for session authentication
// and rate limiting.
//
// # Authentication
//
// AuthMiddleware verifies the identity provider session carried in an
// "Authorization: Bearer" header or the sb-access-token cookie, loads the
// caller's directory row and stores an *auth.AuthContext in the request
// context:
//
//	authn := middleware.NewAuthMiddleware(verifier, lifecycleService)
//	api.Use(authn.Handler)
//
// Missing or invalid sessions get 401; a session whose directory row is
// gone gets 404 "User not found".
//
// # Rate Limiting
//
// RateLimiter keeps per-key token buckets in an expiring LRU cache.
// DistributedRateLimiter counts fixed windows in Redis so the login limit
// holds across replicas, and degrades to an in-memory limiter when Redis
// is unreachable. Both plug into RateLimit:
//
//	login := middleware.NewDistributedRateLimiter(rdb, middleware.LoginRateLimitConfig(), "ratelimit:login", logger)
//	router.Handle("/api/auth/login", middleware.RateLimit("login", login, middleware.LoginKey, metrics)(loginHandler))
//
// Rejected requests get 429 with Retry-After and X-RateLimit-* headers.
package middleware
