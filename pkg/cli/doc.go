// Package cli provides the fuelops-seed command-line interface.
//
// # Commands
//
// seed: create or update stations and users from a YAML file. Existing
// emails have their directory row updated; new ones get a confirmed
// identity account and a row.
//
//	fuelops-seed seed -file examples/seed.yaml
//	fuelops-seed seed -file examples/seed.yaml -dry-run
//
// migrate: create or upgrade the directory schema
//
//	fuelops-seed migrate
//
// check-login: sign in and print the role and landing route
//
//	fuelops-seed check-login -email owner@fuelops.com -password angel123
//
// Connection settings come from the same environment variables as the
// server (DATABASE_URL, SUPABASE_URL, SUPABASE_SERVICE_ROLE_KEY, ...).
// Any failed entry makes the command exit non-zero.
package cli
