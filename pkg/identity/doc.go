// Package identity wraps the hosted identity provider that owns FuelOps
// credentials and sessions.
//
// The provider is an external collaborator: it stores password hashes,
// issues sessions, sends confirmation and reset emails, and assigns the
// stable user ID that the directory row is keyed by. FuelOps only calls it.
//
// GoTrueClient talks to a GoTrue (Supabase Auth) deployment over REST.
// Administrative calls authenticate with the service-role key through an
// oauth2 static token source; public calls use the anon key.
//
// MemoryProvider is an in-process implementation for tests and local
// development. It also verifies the opaque access tokens it issues.
//
// Session tokens issued by GoTrue are JWTs. HMACVerifier checks them against
// the project's shared JWT secret; JWKSVerifier checks them against the
// project's published signing keys.
package identity
