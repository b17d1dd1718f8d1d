// Package audit records security-relevant FuelOps events.
//
// # Event Types
//
// Authentication: auth.login, auth.login_failed
// Authorization: authz.access_denied
// Directory: user.create, user.update, user.delete
// Stations: station.create, station.update, station.delete
// Saga: saga.compensation_failed (an identity account was left orphaned)
//
// # Usage Example
//
// Record a mutation with before/after values:
//
//	logger.LogDataMutation(ctx, audit.EventTypeUserUpdate, audit.ResourceTypeUser, user.ID,
//		&audit.ChangeDetails{Before: before, After: after}, "manager updated")
//
// Handlers that do not hold a logger can pull one from the request context,
// placed there by Middleware:
//
//	audit.LogDenied(ctx, audit.ResourceTypeUser, id, "SCOPE_MISMATCH")
//
// FileLogger writes newline-delimited JSON, either to a rotating file under a
// directory or to any io.Writer such as stdout.
package audit
