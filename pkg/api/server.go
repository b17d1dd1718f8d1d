package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/fuelops/pkg/audit"
	"github.com/platinummonkey/fuelops/pkg/auth"
	"github.com/platinummonkey/fuelops/pkg/httputil"
	"github.com/platinummonkey/fuelops/pkg/identity"
	"github.com/platinummonkey/fuelops/pkg/lifecycle"
	"github.com/platinummonkey/fuelops/pkg/middleware"
	"github.com/platinummonkey/fuelops/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// maxBodyBytes bounds request bodies on the API routes
const maxBodyBytes = 1 << 20

// StationAliases are the path segments the station routes are mounted at
var StationAliases = []string{"stations", "servicestations"}

// Options wires the server's collaborators. Service, Login and Verifier
// are required; the rest fall back to no-ops.
type Options struct {
	Service  *lifecycle.Service
	Login    *auth.LoginService
	Verifier identity.SessionVerifier

	Logger   *observability.Logger
	Metrics  *observability.Metrics
	Gatherer prometheus.Gatherer
	Health   *observability.HealthChecker
	Audit    audit.Logger

	// LoginLimiter throttles /api/auth/login; APILimiter throttles the
	// authenticated routes. Nil disables the limit.
	LoginLimiter middleware.Limiter
	APILimiter   middleware.Limiter

	CORSOrigins []string
	// TrustedProxies may set the client address through X-Forwarded-For.
	// Without any, the connection peer is the client.
	TrustedProxies httputil.TrustedProxies
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
	opts    Options
}

// NewServer creates a new API server
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.Audit == nil {
		opts.Audit = audit.NoOpLogger()
	}

	s := &Server{
		router: mux.NewRouter(),
		opts:   opts,
	}
	s.setupRoutes()

	s.handler = httputil.Chain(
		httputil.RealIPMiddleware(opts.TrustedProxies),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(opts.Logger),
		httputil.RecoveryMiddleware(opts.Logger),
		httputil.CORSMiddleware(opts.CORSOrigins),
		audit.NewMiddleware(opts.Audit).Handler,
	)(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "Not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	if s.opts.Metrics != nil {
		s.router.Use(httputil.MetricsMiddleware(s.opts.Metrics))
	}
	if s.opts.Health != nil {
		s.router.HandleFunc("/health/live", s.opts.Health.Liveness).Methods("GET")
		s.router.HandleFunc("/health/ready", s.opts.Health.Readiness).Methods("GET")
	}
	if s.opts.Gatherer != nil {
		s.router.Handle("/metrics", observability.Handler(s.opts.Gatherer)).Methods("GET")
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(httputil.MaxBytesMiddleware(maxBodyBytes))

	authHandlers := NewAuthHandlers(s.opts.Login, s.opts.Service.Engine())

	// login is the only unauthenticated API route
	public := api.NewRoute().Subrouter()
	if s.opts.LoginLimiter != nil {
		public.Use(middleware.RateLimit("login", s.opts.LoginLimiter, middleware.LoginKey, s.recorder()))
	}
	authHandlers.RegisterRoutes(public)

	private := api.NewRoute().Subrouter()
	private.Use(middleware.NewAuthMiddleware(s.opts.Verifier, s.opts.Service).Handler)
	if s.opts.APILimiter != nil {
		private.Use(middleware.RateLimit("api", s.opts.APILimiter, middleware.CallerKey, s.recorder()))
	}
	authHandlers.RegisterSessionRoutes(private)

	for _, kind := range lifecycle.Kinds {
		NewUserHandlers(s.opts.Service, kind).RegisterRoutes(private)
	}
	for _, segment := range StationAliases {
		NewStationHandlers(s.opts.Service, segment).RegisterRoutes(private)
	}
}

func (s *Server) recorder() middleware.RateLimitRecorder {
	if s.opts.Metrics == nil {
		return nil
	}
	return s.opts.Metrics
}

// Router exposes the route table, mostly for tests and route listing
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
