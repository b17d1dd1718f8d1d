package identity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAccountNotFound is returned when the provider has no such account
	ErrAccountNotFound = errors.New("account not found")

	// ErrInvalidCredentials is returned when a password sign-in is rejected
	ErrInvalidCredentials = errors.New("invalid login credentials")

	// ErrInvalidSession is returned when a session token fails verification
	ErrInvalidSession = errors.New("invalid or expired session")
)

// APIError is a non-2xx response from the identity provider
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity provider error (status %d): %s", e.StatusCode, e.Message)
}

// Account is an identity provider user
type Account struct {
	ID           string                 `json:"id"`
	Email        string                 `json:"email"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
	ConfirmedAt  *time.Time             `json:"confirmed_at,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// AccountRequest describes an account to provision
type AccountRequest struct {
	Email    string
	Password string
	Metadata map[string]interface{}
}

// Session is the result of a successful sign-in
type Session struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	TokenType    string  `json:"token_type"`
	ExpiresIn    int     `json:"expires_in"`
	User         Account `json:"user"`
}

// Claims are the verified contents of a session token
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// Provider is the identity provider collaborator
type Provider interface {
	// CreateAccount provisions a pre-confirmed account with administrative privilege
	CreateAccount(ctx context.Context, req AccountRequest) (*Account, error)
	// SignUp registers an unconfirmed account; the provider sends the confirmation email
	SignUp(ctx context.Context, req AccountRequest) (*Account, error)
	// DeleteAccount removes an account, returning ErrAccountNotFound if it does not exist
	DeleteAccount(ctx context.Context, id string) error
	// SignIn verifies a password and opens a session
	SignIn(ctx context.Context, email, password string) (*Session, error)
	// SendPasswordReset emails a reset link that lands on redirectTo
	SendPasswordReset(ctx context.Context, email, redirectTo string) error
}

// SessionVerifier validates session tokens presented by API callers
type SessionVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// Observer is notified of every provider call, typically for metrics
type Observer interface {
	ObserveIdentityCall(operation string, err error, duration time.Duration)
}

// IsNotFound reports whether err means the account does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}
