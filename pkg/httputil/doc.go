// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
// Every error body has the shape {"error": message} with an optional
// "details" string:
//
//	httputil.WriteJSON(w, http.StatusOK, users)
//	httputil.WriteCreated(w, user)
//	httputil.WriteForbidden(w, "Unauthorized")
//	httputil.WriteErrorDetails(w, http.StatusInternalServerError, "Failed to create user", err.Error())
//
// # Request Parsing
//
//	var in lifecycle.CreateUserInput
//	if !httputil.ParseJSONOrError(w, r, &in) {
//		return // Error response already written
//	}
//	id, ok := httputil.ParsePathStringOrError(w, r, "id")
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.CORSMiddleware(cfg.Server.CORSOrigins),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
//
// MetricsMiddleware is installed on the mux router itself with router.Use so
// that the matched route template is available for labelling.
//
// # Related Packages
//
//   - pkg/middleware: Authentication and rate limiting middleware
package httputil
