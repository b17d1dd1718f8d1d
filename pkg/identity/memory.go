package identity

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation names accepted by MemoryProvider.FailNext
const (
	OpCreateAccount = "create_account"
	OpSignUp        = "sign_up"
	OpDeleteAccount = "delete_account"
	OpSignIn        = "sign_in"
	OpPasswordReset = "password_reset"
)

type memoryAccount struct {
	account  Account
	password string
}

// PasswordReset records a reset email the memory provider would have sent
type PasswordReset struct {
	Email      string
	RedirectTo string
	SentAt     time.Time
}

// MemoryProvider is an in-process Provider and SessionVerifier
type MemoryProvider struct {
	mu          sync.Mutex
	accounts    map[string]*memoryAccount
	byEmail     map[string]string
	sessions    map[string]string
	resets      []PasswordReset
	failures    map[string]error
	autoConfirm bool
	sessionTTL  time.Duration
	now         func() time.Time
}

// NewMemoryProvider creates an empty provider. With autoConfirm, signups can
// sign in immediately.
func NewMemoryProvider(autoConfirm bool) *MemoryProvider {
	return &MemoryProvider{
		accounts:    make(map[string]*memoryAccount),
		byEmail:     make(map[string]string),
		sessions:    make(map[string]string),
		failures:    make(map[string]error),
		autoConfirm: autoConfirm,
		sessionTTL:  time.Hour,
		now:         time.Now,
	}
}

// FailNext makes the next call of the named operation return err
func (m *MemoryProvider) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

func (m *MemoryProvider) injected(op string) error {
	err, ok := m.failures[op]
	if ok {
		delete(m.failures, op)
	}
	return err
}

func (m *MemoryProvider) register(op string, req AccountRequest, confirmed bool) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(op); err != nil {
		return nil, err
	}

	email := strings.ToLower(req.Email)
	if _, exists := m.byEmail[email]; exists {
		return nil, &APIError{
			StatusCode: http.StatusUnprocessableEntity,
			Code:       "email_exists",
			Message:    "A user with this email address has already been registered",
		}
	}

	now := m.now()
	account := Account{
		ID:           uuid.New().String(),
		Email:        req.Email,
		UserMetadata: copyMetadata(req.Metadata),
		CreatedAt:    now,
	}
	if confirmed {
		account.ConfirmedAt = &now
	}

	m.accounts[account.ID] = &memoryAccount{account: account, password: req.Password}
	m.byEmail[email] = account.ID

	out := account
	return &out, nil
}

// CreateAccount provisions a confirmed account
func (m *MemoryProvider) CreateAccount(_ context.Context, req AccountRequest) (*Account, error) {
	return m.register(OpCreateAccount, req, true)
}

// SignUp registers an account that stays unconfirmed unless autoConfirm is set
func (m *MemoryProvider) SignUp(_ context.Context, req AccountRequest) (*Account, error) {
	return m.register(OpSignUp, req, m.autoConfirm)
}

// DeleteAccount removes an account and any sessions it holds
func (m *MemoryProvider) DeleteAccount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(OpDeleteAccount); err != nil {
		return err
	}

	acct, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	delete(m.byEmail, strings.ToLower(acct.account.Email))
	delete(m.accounts, id)
	for token, owner := range m.sessions {
		if owner == id {
			delete(m.sessions, token)
		}
	}
	return nil
}

// SignIn checks the password and issues an opaque access token
func (m *MemoryProvider) SignIn(_ context.Context, email, password string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(OpSignIn); err != nil {
		return nil, err
	}

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	acct := m.accounts[id]
	if acct.password != password {
		return nil, ErrInvalidCredentials
	}
	if acct.account.ConfirmedAt == nil {
		return nil, &APIError{StatusCode: http.StatusBadRequest, Code: "email_not_confirmed", Message: "Email not confirmed"}
	}

	token := uuid.New().String()
	m.sessions[token] = id
	return &Session{
		AccessToken:  token,
		RefreshToken: uuid.New().String(),
		TokenType:    "bearer",
		ExpiresIn:    int(m.sessionTTL.Seconds()),
		User:         acct.account,
	}, nil
}

// SendPasswordReset records the reset request
func (m *MemoryProvider) SendPasswordReset(_ context.Context, email, redirectTo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.injected(OpPasswordReset); err != nil {
		return err
	}
	m.resets = append(m.resets, PasswordReset{Email: email, RedirectTo: redirectTo, SentAt: m.now()})
	return nil
}

// Verify resolves an access token issued by SignIn
func (m *MemoryProvider) Verify(_ context.Context, token string) (*Claims, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.sessions[token]
	if !ok {
		return nil, ErrInvalidSession
	}
	acct := m.accounts[id]
	return &Claims{
		Subject:   id,
		Email:     acct.account.Email,
		ExpiresAt: m.now().Add(m.sessionTTL),
	}, nil
}

// Confirm marks an account as confirmed, as clicking the emailed link would
func (m *MemoryProvider) Confirm(email string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return false
	}
	now := m.now()
	m.accounts[id].account.ConfirmedAt = &now
	return true
}

// Account returns a copy of the account with the given ID
func (m *MemoryProvider) Account(id string) (*Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return nil, false
	}
	out := acct.account
	return &out, true
}

// AccountCount returns the number of live accounts
func (m *MemoryProvider) AccountCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

// PasswordResets returns the recorded reset requests
func (m *MemoryProvider) PasswordResets() []PasswordReset {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PasswordReset, len(m.resets))
	copy(out, m.resets)
	return out
}

func copyMetadata(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
