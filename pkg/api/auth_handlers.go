package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/fuelops/pkg/auth"
	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/platinummonkey/fuelops/pkg/httputil"
	"github.com/platinummonkey/fuelops/pkg/identity"
	"github.com/platinummonkey/fuelops/pkg/middleware"
	"github.com/platinummonkey/fuelops/pkg/observability"
	"github.com/platinummonkey/fuelops/pkg/rbac"
)

// msgInvalidCredentials matches the identity provider's wording
const msgInvalidCredentials = "Invalid login credentials"

// AuthHandlers handles login and session introspection
type AuthHandlers struct {
	login  *auth.LoginService
	engine *rbac.Engine
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(login *auth.LoginService, engine *rbac.Engine) *AuthHandlers {
	return &AuthHandlers{login: login, engine: engine}
}

// RegisterRoutes registers the unauthenticated auth routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.handleLogin).Methods("POST")
}

// RegisterSessionRoutes registers routes that need an authenticated caller
func (h *AuthHandlers) RegisterSessionRoutes(router *mux.Router) {
	router.HandleFunc("/auth/me", h.handleMe).Methods("GET")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    int             `json:"expires_in"`
	User         *directory.User `json:"user"`
	RedirectTo   string          `json:"redirectTo"`
}

// handleLogin handles POST /api/auth/login
func (h *AuthHandlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := h.login.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeLoginError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    result.Session.AccessToken,
		Path:     "/",
		Expires:  time.Now().Add(time.Duration(result.Session.ExpiresIn) * time.Second),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	httputil.WriteSuccess(w, loginResponse{
		AccessToken:  result.Session.AccessToken,
		RefreshToken: result.Session.RefreshToken,
		ExpiresIn:    result.Session.ExpiresIn,
		User:         result.User,
		RedirectTo:   result.RedirectTo,
	})
}

func writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *identity.APIError
	switch {
	case errors.Is(err, auth.ErrMissingCredentials), errors.Is(err, auth.ErrUnknownRole):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, identity.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, msgInvalidCredentials)
	case errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError:
		message := apiErr.Message
		if message == "" {
			message = msgInvalidCredentials
		}
		httputil.WriteErrorMessage(w, apiErr.StatusCode, message)
	default:
		observability.FromContext(r.Context()).WithError(err).Error("login failed")
		httputil.WriteInternalError(w, "Login failed")
	}
}

type meResponse struct {
	User         *directory.User `json:"user"`
	LandingRoute string          `json:"landingRoute"`
	Manages      []rbac.Entity   `json:"manages"`
}

// handleMe handles GET /api/auth/me
func (h *AuthHandlers) handleMe(w http.ResponseWriter, r *http.Request) {
	authCtx := auth.GetAuthContext(r.Context())
	if authCtx == nil {
		httputil.WriteUnauthorized(w, "Unauthorized")
		return
	}

	route, _ := auth.LandingRoute(authCtx.User.Role)
	manages := h.engine.Entities(authCtx.User.Role)
	if manages == nil {
		manages = []rbac.Entity{}
	}

	httputil.WriteSuccess(w, meResponse{
		User:         authCtx.User,
		LandingRoute: route,
		Manages:      manages,
	})
}
