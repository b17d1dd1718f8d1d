// Package config provides application configuration management from environment variables.
//
// # Configuration Structure
//
// Server settings:
//
//	HOST="0.0.0.0"
//	PORT="8080"
//	SITE_URL="https://fuel.example.com"      # alias NEXT_PUBLIC_SITE_URL
//	CORS_ORIGINS="https://fuel.example.com"
//
// Storage settings:
//
//	DATABASE_URL="postgres://localhost/fuelops?sslmode=disable"
//	REDIS_URL="redis://localhost:6379/0"     # optional, enables shared login throttling
//
// Identity provider settings:
//
//	IDENTITY_DRIVER="gotrue"                 # gotrue or memory
//	SUPABASE_URL="https://xyz.supabase.co"   # alias NEXT_PUBLIC_SUPABASE_URL
//	SUPABASE_ANON_KEY="..."                  # alias NEXT_PUBLIC_SUPABASE_ANON_KEY
//	SUPABASE_SERVICE_ROLE_KEY="..."          # required with the gotrue driver
//	SUPABASE_JWT_SECRET="..."                # HS256 sessions; unset selects JWKS
//	DEFAULT_PASSWORD="angel123"
//
// Observability settings:
//
//	LOG_LEVEL="info"
//	OTEL_ENABLED="true"
//	OTEL_EXPORTER_OTLP_ENDPOINT="otel-collector:4317"
//	SENTRY_DSN="https://...@sentry.io/1"
//	AUDIT_LOG_PATH="/var/log/fuelops/audit"  # unset writes audit events to stdout
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if errors.Is(err, config.ErrMissingServiceRoleKey) {
//		// refuse to start
//	}
package config
