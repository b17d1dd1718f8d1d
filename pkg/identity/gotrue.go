package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
)

// GoTrueConfig configures a GoTrueClient
type GoTrueConfig struct {
	// URL is the project URL; the auth API is served under /auth/v1
	URL            string
	AnonKey        string
	ServiceRoleKey string
	Timeout        time.Duration
	// Transport overrides the base round tripper, mostly for tests
	Transport http.RoundTripper
}

// GoTrueClient implements Provider against the GoTrue REST API
type GoTrueClient struct {
	baseURL    string
	anonKey    string
	serviceKey string
	public     *http.Client
	admin      *http.Client
	logger     *logrus.Logger
	observer   Observer
}

// NewGoTrueClient creates a client for the auth API of the given project
func NewGoTrueClient(cfg GoTrueConfig, logger *logrus.Logger) (*GoTrueClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("identity provider URL is required")
	}
	if cfg.ServiceRoleKey == "" {
		return nil, errors.New("service role key is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid identity provider URL: %w", err)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	public := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(base),
	}

	// oauth2 picks the base transport up from the context client
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, public)
	admin := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cfg.ServiceRoleKey,
		TokenType:   "Bearer",
	}))
	admin.Timeout = cfg.Timeout

	return &GoTrueClient{
		baseURL:    strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey:    cfg.AnonKey,
		serviceKey: cfg.ServiceRoleKey,
		public:     public,
		admin:      admin,
		logger:     logger,
	}, nil
}

// SetObserver registers an observer for provider call timings
func (c *GoTrueClient) SetObserver(o Observer) {
	c.observer = o
}

// BaseURL returns the auth API root
func (c *GoTrueClient) BaseURL() string {
	return c.baseURL
}

type adminCreateRequest struct {
	Email        string                 `json:"email"`
	Password     string                 `json:"password"`
	EmailConfirm bool                   `json:"email_confirm"`
	UserMetadata map[string]interface{} `json:"user_metadata,omitempty"`
}

// CreateAccount provisions a pre-confirmed account via the admin API
func (c *GoTrueClient) CreateAccount(ctx context.Context, req AccountRequest) (*Account, error) {
	body := adminCreateRequest{
		Email:        req.Email,
		Password:     req.Password,
		EmailConfirm: true,
		UserMetadata: req.Metadata,
	}

	var account Account
	err := c.call(ctx, "create_account", c.admin, c.serviceKey, http.MethodPost, "/admin/users", body, &account)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

type signUpRequest struct {
	Email    string                 `json:"email"`
	Password string                 `json:"password"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// signUpResponse covers both shapes GoTrue returns: a bare user when
// confirmation is pending, or a session wrapping the user when autoconfirm is on.
type signUpResponse struct {
	Account
	User *Account `json:"user,omitempty"`
}

// SignUp registers an account through the public signup endpoint
func (c *GoTrueClient) SignUp(ctx context.Context, req AccountRequest) (*Account, error) {
	body := signUpRequest{
		Email:    req.Email,
		Password: req.Password,
		Data:     req.Metadata,
	}

	var resp signUpResponse
	if err := c.call(ctx, "sign_up", c.public, c.anonKey, http.MethodPost, "/signup", body, &resp); err != nil {
		return nil, err
	}
	if resp.User != nil && resp.User.ID != "" {
		return resp.User, nil
	}
	if resp.ID == "" {
		return nil, errors.New("identity provider returned no user id on signup")
	}
	return &resp.Account, nil
}

// DeleteAccount removes an account via the admin API
func (c *GoTrueClient) DeleteAccount(ctx context.Context, id string) error {
	err := c.call(ctx, "delete_account", c.admin, c.serviceKey, http.MethodDelete, "/admin/users/"+url.PathEscape(id), nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return ErrAccountNotFound
	}
	return err
}

type passwordGrantRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignIn exchanges email and password for a session
func (c *GoTrueClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := c.call(ctx, "sign_in", c.public, c.anonKey, http.MethodPost, "/token?grant_type=password",
		passwordGrantRequest{Email: email, Password: password}, &session)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusBadRequest || apiErr.StatusCode == http.StatusUnauthorized) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// SendPasswordReset asks the provider to email a recovery link
func (c *GoTrueClient) SendPasswordReset(ctx context.Context, email, redirectTo string) error {
	path := "/recover"
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return c.call(ctx, "password_reset", c.public, c.anonKey, http.MethodPost, path,
		map[string]string{"email": email}, nil)
}

// Ping checks the provider health endpoint
func (c *GoTrueClient) Ping(ctx context.Context) error {
	return c.call(ctx, "health", c.public, c.anonKey, http.MethodGet, "/health", nil, nil)
}

func (c *GoTrueClient) call(ctx context.Context, op string, client *http.Client, apiKey, method, path string, body, out interface{}) error {
	start := time.Now()
	err := c.do(ctx, client, apiKey, method, path, body, out)
	if c.observer != nil {
		c.observer.ObserveIdentityCall(op, err, time.Since(start))
	}

	entry := c.logger.WithFields(logrus.Fields{
		"operation": op,
		"method":    method,
		"duration":  time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Warn("identity provider call failed")
	} else {
		entry.Debug("identity provider call")
	}
	return err
}

func (c *GoTrueClient) do(ctx context.Context, client *http.Client, apiKey, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if apiKey != "" {
		req.Header.Set("apikey", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode identity provider response: %w", err)
	}
	return nil
}

// GoTrue has used several error shapes across versions
type errorBody struct {
	Code             interface{} `json:"code"`
	ErrorCode        string      `json:"error_code"`
	Msg              string      `json:"msg"`
	Message          string      `json:"message"`
	Error            string      `json:"error"`
	ErrorDescription string      `json:"error_description"`
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil {
		apiErr.Code = body.ErrorCode
		if apiErr.Code == "" {
			apiErr.Code = body.Error
		}
		for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
			if m != "" {
				apiErr.Message = m
				break
			}
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
