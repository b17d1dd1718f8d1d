package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/fuelops/pkg/httputil"
	"github.com/platinummonkey/fuelops/pkg/lifecycle"
	"github.com/platinummonkey/fuelops/pkg/observability"
)

// statusFor maps a lifecycle error kind to its HTTP status
func statusFor(kind lifecycle.ErrorKind) int {
	switch kind {
	case lifecycle.KindUnauthenticated:
		return http.StatusUnauthorized
	case lifecycle.KindForbidden:
		return http.StatusForbidden
	case lifecycle.KindNotFound:
		return http.StatusNotFound
	case lifecycle.KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeLifecycleError converts a service error into the JSON error body.
// Upstream messages are relayed; anything untyped is a bare 500.
func writeLifecycleError(w http.ResponseWriter, r *http.Request, err error) {
	var lerr *lifecycle.Error
	if !errors.As(err, &lerr) {
		observability.FromContext(r.Context()).WithError(err).Error("unhandled service error")
		httputil.WriteInternalError(w, "Internal server error")
		return
	}

	status := statusFor(lerr.Kind)
	if status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).
			WithField("kind", lerr.Kind.String()).
			Error("request failed")
	}
	httputil.WriteErrorDetails(w, status, lerr.Message, lerr.Details)
}
