// Package api provides the FuelOps HTTP surface.
//
// Every user family (managers, owners, station-users, customers) and the
// station table share one route shape under /api:
//
//	GET    /api/{entity}       list rows visible to the caller
//	POST   /api/{entity}       create, 201 with the row
//	PUT    /api/{entity}/{id}  update, 200 with the row
//	DELETE /api/{entity}/{id}  delete, 200 with {"success":true}
//
// Stations are also served under /api/servicestations.
//
// # Authentication
//
// POST /api/auth/login signs in against the identity provider and returns
// the session with the caller's landing route. Every other /api route
// requires a session, given as a Bearer token or the sb-access-token cookie.
// GET /api/auth/me describes the current caller.
//
// # Errors
//
// Failures are written as {"error": "..."} with an optional "details".
// Service errors map to 401, 403, 404, 400 or 500 by kind.
//
// # Usage
//
//	server := api.NewServer(api.Options{
//		Service:  service,
//		Login:    auth.NewLoginService(provider, store, metrics),
//		Verifier: verifier,
//		Logger:   logger,
//	})
//	http.ListenAndServe(":8080", server)
package api
