package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/fuelops/pkg/audit"
	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/platinummonkey/fuelops/pkg/identity"
	"github.com/platinummonkey/fuelops/pkg/validation"
)

var (
	// ErrMissingCredentials is returned when email or password is empty
	ErrMissingCredentials = errors.New("Email and password are required")

	// ErrUnknownRole is returned when the account has no directory row or
	// its role has no landing route
	ErrUnknownRole = errors.New("Unknown role")
)

// Login outcomes recorded by LoginRecorder
const (
	LoginSuccess            = "success"
	LoginInvalidCredentials = "invalid_credentials"
	LoginUnknownRole        = "unknown_role"
	LoginError              = "error"
)

// LoginRecorder counts login outcomes. *observability.Metrics implements it.
type LoginRecorder interface {
	RecordLogin(result string)
}

// LoginResult is a successful login
type LoginResult struct {
	Session    *identity.Session
	User       *directory.User
	RedirectTo string
}

// LoginService signs users in and routes them by role
type LoginService struct {
	provider identity.Provider
	store    directory.Store
	recorder LoginRecorder
}

// NewLoginService creates a login service. recorder may be nil.
func NewLoginService(provider identity.Provider, store directory.Store, recorder LoginRecorder) *LoginService {
	return &LoginService{provider: provider, store: store, recorder: recorder}
}

// Login checks credentials and resolves the landing route
func (s *LoginService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = validation.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	session, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		s.failed(ctx, email, LoginInvalidCredentials, err)
		return nil, err
	}

	user, err := s.store.GetUser(ctx, session.User.ID)
	if errors.Is(err, directory.ErrNotFound) {
		s.failed(ctx, email, LoginUnknownRole, ErrUnknownRole)
		return nil, ErrUnknownRole
	}
	if err != nil {
		s.failed(ctx, email, LoginError, err)
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	route, ok := LandingRoute(user.Role)
	if !ok {
		s.failed(ctx, email, LoginUnknownRole, ErrUnknownRole)
		return nil, ErrUnknownRole
	}

	s.record(LoginSuccess)
	event := audit.NewEvent(ctx, audit.EventTypeAuthLogin, audit.EventStatusSuccess)
	event.ActorID = user.ID
	event.ActorRole = string(user.Role)
	if user.StationID != nil {
		event.StationID = *user.StationID
	}
	event.Message = "login succeeded"
	_ = audit.FromContext(ctx).Log(ctx, event)

	return &LoginResult{Session: session, User: user, RedirectTo: route}, nil
}

func (s *LoginService) failed(ctx context.Context, email, result string, err error) {
	if result == LoginInvalidCredentials && !errors.Is(err, identity.ErrInvalidCredentials) {
		var apiErr *identity.APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode >= 500 {
			result = LoginError
		}
	}
	s.record(result)

	event := audit.NewEvent(ctx, audit.EventTypeAuthLoginFailed, audit.EventStatusFailure)
	event.Message = "login failed: " + result
	event.ErrorMessage = err.Error()
	event.Metadata["email"] = email
	_ = audit.FromContext(ctx).Log(ctx, event)
}

func (s *LoginService) record(result string) {
	if s.recorder != nil {
		s.recorder.RecordLogin(result)
	}
}
