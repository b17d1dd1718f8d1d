package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/platinummonkey/fuelops/pkg/audit"
	"github.com/platinummonkey/fuelops/pkg/contextkeys"
	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/platinummonkey/fuelops/pkg/identity"
	"github.com/platinummonkey/fuelops/pkg/observability"
	"github.com/platinummonkey/fuelops/pkg/rbac"
	"github.com/platinummonkey/fuelops/pkg/validation"
)

// Messages shown to callers
const (
	MsgUnauthorized    = "Unauthorized"
	MsgUserNotFound    = "User not found"
	MsgStationNotFound = "Station not found"
	MsgDuplicateEmail  = "A user with this email already exists"
	MsgStationInUse    = "Station still has users assigned"
)

// Saga step names used in metrics
const (
	StepProvisionAccount = "provision_account"
	StepInsertRow        = "insert_row"
)

// ResetPasswordPath is appended to the site URL for password reset links
const ResetPasswordPath = "/auth/reset-password"

// Metrics receives lifecycle counters. *observability.Metrics implements it.
type Metrics interface {
	RecordSagaStep(step string, ok bool)
	RecordCompensation(ok bool)
	RecordPasswordResetFailure()
}

type noopMetrics struct{}

func (noopMetrics) RecordSagaStep(string, bool) {}
func (noopMetrics) RecordCompensation(bool)     {}
func (noopMetrics) RecordPasswordResetFailure() {}

// Config holds the service settings taken from the process config
type Config struct {
	DefaultPassword string
	SiteURL         string
}

// Service runs lifecycle operations on behalf of an authenticated caller
type Service struct {
	store    directory.Store
	provider identity.Provider
	engine   *rbac.Engine
	cfg      Config

	audit       audit.Logger
	metrics     Metrics
	logger      *observability.Logger
	reportError func(error)
	newID       func() string
}

// Option configures a Service
type Option func(*Service)

// WithAudit records events to logger instead of the request's audit logger
func WithAudit(logger audit.Logger) Option {
	return func(s *Service) {
		s.audit = logger
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger used when the request context carries none
func WithLogger(logger *observability.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithErrorReporter sets the sink for failures that need a human, such as
// orphaned identity accounts. The default reports to Sentry.
func WithErrorReporter(fn func(error)) Option {
	return func(s *Service) {
		if fn != nil {
			s.reportError = fn
		}
	}
}

// NewService creates a lifecycle service
func NewService(store directory.Store, provider identity.Provider, engine *rbac.Engine, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:    store,
		provider: provider,
		engine:   engine,
		cfg:      cfg,
		metrics:  noopMetrics{},
		logger:   observability.NewLogger(observability.InfoLevel, io.Discard),
		reportError: func(err error) {
			sentry.CaptureException(err)
		},
		newID: func() string {
			return uuid.New().String()
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engine exposes the rule engine the service authorizes against
func (s *Service) Engine() *rbac.Engine {
	return s.engine
}

// ResolveCaller loads the directory row of an authenticated principal
func (s *Service) ResolveCaller(ctx context.Context, id string) (*directory.User, error) {
	user, err := s.store.GetUser(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, NotFound(MsgUserNotFound)
	}
	if err != nil {
		return nil, Upstream("Failed to load user", err)
	}
	return user, nil
}

// CreateUserInput is the body of a create request
type CreateUserInput struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Role      string `json:"role,omitempty"`
	StationID string `json:"stationId,omitempty"`
	Password  string `json:"password,omitempty"`
}

// UpdateUserInput is the body of an update request. Every field is
// optional; a nil field leaves the stored value unchanged.
type UpdateUserInput struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`
	Role  *string `json:"role,omitempty"`
	// StationID moves the row to another station. Only kinds with
	// AllowStationChange honour it.
	StationID *string `json:"stationId,omitempty"`
}

// ListUsers returns the rows of kind the caller may see, ordered by name
func (s *Service) ListUsers(ctx context.Context, caller *rbac.Caller, kind Kind) ([]*directory.User, error) {
	var scope *string
	for _, role := range kind.Roles {
		entity := rbac.EntityForRole(role)
		decision := s.engine.Authorize(caller, entity, rbac.ActionList, nil)
		if !decision.Allowed {
			return nil, s.deny(ctx, caller, rbac.ActionList, decision, audit.ResourceTypeUser, "", kind.notFoundMessage())
		}
		if decision.MatchNone {
			return []*directory.User{}, nil
		}
		scope = decision.Scope
	}

	users, err := s.store.ListUsers(ctx, directory.UserFilter{Roles: kind.Roles, StationID: scope})
	if err != nil {
		return nil, Upstream("Failed to list users", err)
	}
	if users == nil {
		users = []*directory.User{}
	}
	return users, nil
}

// CreateUser authorizes, validates and provisions a new row of kind
func (s *Service) CreateUser(ctx context.Context, caller *rbac.Caller, kind Kind, in CreateUserInput) (*directory.User, error) {
	email := validation.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	phone := strings.TrimSpace(in.Phone)

	// authorize against the first role of the kind when the input role is
	// unusable, so that a forbidden caller never learns about validation
	role := kind.Roles[0]
	if kind.RequireRoleInput && kind.Includes(directory.Role(in.Role)) {
		role = directory.Role(in.Role)
	}

	var stationID *string
	switch kind.StationSource {
	case StationFromCaller:
		if caller != nil {
			stationID = caller.StationID
		}
	case StationFromInput:
		if id := strings.TrimSpace(in.StationID); id != "" {
			stationID = &id
		}
	}

	decision := s.engine.Authorize(caller, rbac.EntityForRole(role), rbac.ActionCreate, &rbac.Target{StationID: stationID})
	if !decision.Allowed {
		return nil, s.deny(ctx, caller, rbac.ActionCreate, decision, audit.ResourceTypeUser, "", kind.notFoundMessage())
	}

	v := validation.NewValidator().
		Required("email", email).
		Required("name", name).
		Required("phone", phone)
	if kind.StationSource == StationFromInput {
		v.Required("stationId", in.StationID)
	}
	if kind.RequireRoleInput {
		v.Required("role", in.Role)
	}
	v.Email("email", email)
	if kind.RequireRoleInput && in.Role != "" {
		v.OneOf("role", in.Role, kind.roleNames(), validation.MsgInvalidRole)
	}
	if err := v.Err(); err != nil {
		var ve *validation.ValidationError
		errors.As(err, &ve)
		return nil, Validation(ve.Message)
	}

	if kind.StationSource == StationFromInput {
		if _, err := s.store.GetStation(ctx, *stationID); err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				return nil, Validation(MsgStationNotFound)
			}
			return nil, Upstream("Failed to load station", err)
		}
	}

	taken, err := s.store.EmailTaken(ctx, email, "")
	if err != nil {
		return nil, Upstream("Failed to check email", err)
	}
	if taken {
		return nil, Validation(MsgDuplicateEmail)
	}

	user := &directory.User{
		Email:     email,
		Name:      name,
		Phone:     phone,
		Role:      role,
		StationID: stationID,
	}
	if err := s.provisionAndInsert(ctx, kind, user, in.Password); err != nil {
		return nil, err
	}

	s.record(ctx, caller, audit.EventTypeUserCreate, audit.ResourceTypeUser, user.ID,
		&audit.ChangeDetails{After: userFields(user)}, fmt.Sprintf("%s created", strings.ToLower(kind.Label)))
	return user, nil
}

// provisionAndInsert runs the two step saga. On return without error
// user.ID is set and both the account and the row exist.
func (s *Service) provisionAndInsert(ctx context.Context, kind Kind, user *directory.User, password string) error {
	if !kind.HasAccounts() {
		user.ID = s.newID()
		return s.insert(ctx, user)
	}

	if password == "" || !kind.AllowPassword {
		password = s.cfg.DefaultPassword
	}
	req := identity.AccountRequest{
		Email:    user.Email,
		Password: password,
		Metadata: accountMetadata(user),
	}

	var (
		account *identity.Account
		err     error
	)
	if kind.Provisioning == ProvisionSignUp {
		account, err = s.provider.SignUp(ctx, req)
	} else {
		account, err = s.provider.CreateAccount(ctx, req)
	}
	s.metrics.RecordSagaStep(StepProvisionAccount, err == nil)
	if err != nil {
		return accountError(err)
	}

	user.ID = account.ID
	if err := s.insert(ctx, user); err != nil {
		s.compensate(ctx, user, err)
		return err
	}
	return nil
}

func (s *Service) insert(ctx context.Context, user *directory.User) error {
	err := s.store.CreateUser(ctx, user)
	s.metrics.RecordSagaStep(StepInsertRow, err == nil)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, directory.ErrDuplicateEmail):
		return Validation(MsgDuplicateEmail)
	case errors.Is(err, directory.ErrStationNotFound):
		return Validation(MsgStationNotFound)
	default:
		return Upstream("Failed to create user", err)
	}
}

// compensate deletes the account provisioned for user after the row insert
// failed. It runs even if the request was cancelled.
func (s *Service) compensate(ctx context.Context, user *directory.User, cause error) {
	cctx := context.WithoutCancel(ctx)
	logger := s.log(ctx).WithFields(map[string]interface{}{
		"account_id": user.ID,
		"email":      user.Email,
	})

	err := s.provider.DeleteAccount(cctx, user.ID)
	if err == nil || errors.Is(err, identity.ErrAccountNotFound) {
		s.metrics.RecordCompensation(true)
		logger.WithError(cause).Info("rolled back identity account after failed insert")
		return
	}

	s.metrics.RecordCompensation(false)
	partial := PartialFailure(fmt.Sprintf("identity account %s orphaned", user.ID), err)
	logger.WithError(err).WithField("insert_error", cause.Error()).Error("failed to roll back identity account")
	s.reportError(partial)

	event := audit.NewEvent(cctx, audit.EventTypeSagaCompensationFailed, audit.EventStatusFailure)
	event.ResourceType = audit.ResourceTypeAccount
	event.ResourceID = user.ID
	event.Message = "identity account left without a directory row"
	event.ErrorMessage = err.Error()
	event.Metadata["email"] = user.Email
	event.Metadata["insert_error"] = cause.Error()
	s.writeAudit(cctx, event)
}

// UpdateUser applies a partial update to a row of kind
func (s *Service) UpdateUser(ctx context.Context, caller *rbac.Caller, kind Kind, id string, in UpdateUserInput) (*directory.User, error) {
	target, err := s.loadTarget(ctx, caller, kind, id, rbac.ActionUpdate)
	if err != nil {
		return nil, err
	}

	update := directory.UserUpdate{}
	if in.Role != nil && *in.Role != "" && directory.Role(*in.Role) != target.Role {
		newRole := directory.Role(*in.Role)
		if !kind.Includes(newRole) {
			return nil, Validation(validation.MsgInvalidRole)
		}
		decision := s.engine.Authorize(caller, rbac.EntityForRole(newRole), rbac.ActionUpdate, &rbac.Target{StationID: target.StationID})
		if !decision.Allowed {
			return nil, s.deny(ctx, caller, rbac.ActionUpdate, decision, audit.ResourceTypeUser, id, kind.notFoundMessage())
		}
		update.Role = &newRole
	}

	v := validation.NewValidator()
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		v.Required("name", name)
		update.Name = &name
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		v.Required("phone", phone)
		update.Phone = &phone
	}
	var email string
	if in.Email != nil {
		email = validation.NormalizeEmail(*in.Email)
		v.Email("email", email)
	}
	var stationID string
	if in.StationID != nil && kind.AllowStationChange {
		stationID = strings.TrimSpace(*in.StationID)
		v.Required("stationId", stationID)
	}
	if err := v.Err(); err != nil {
		var ve *validation.ValidationError
		errors.As(err, &ve)
		return nil, Validation(ve.Message)
	}

	if stationID != "" && (target.StationID == nil || *target.StationID != stationID) {
		if _, err := s.store.GetStation(ctx, stationID); err != nil {
			if errors.Is(err, directory.ErrNotFound) {
				return nil, Validation(MsgStationNotFound)
			}
			return nil, Upstream("Failed to load station", err)
		}
		role := target.Role
		if update.Role != nil {
			role = *update.Role
		}
		decision := s.engine.Authorize(caller, rbac.EntityForRole(role), rbac.ActionUpdate, &rbac.Target{StationID: &stationID})
		if !decision.Allowed {
			return nil, s.deny(ctx, caller, rbac.ActionUpdate, decision, audit.ResourceTypeUser, id, kind.notFoundMessage())
		}
		update.SetStation = true
		update.StationID = &stationID
	}

	emailChanged := email != "" && email != target.Email
	if emailChanged {
		taken, err := s.store.EmailTaken(ctx, email, id)
		if err != nil {
			return nil, Upstream("Failed to check email", err)
		}
		if taken {
			return nil, Validation(MsgDuplicateEmail)
		}
		update.Email = &email
	}

	updated, err := s.store.UpdateUser(ctx, id, update)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return nil, NotFound(kind.notFoundMessage())
	case errors.Is(err, directory.ErrDuplicateEmail):
		return nil, Validation(MsgDuplicateEmail)
	case errors.Is(err, directory.ErrStationNotFound):
		return nil, Validation(MsgStationNotFound)
	case err != nil:
		return nil, Upstream("Failed to update user", err)
	}

	if emailChanged && kind.HasAccounts() {
		s.sendPasswordReset(ctx, email)
	}

	s.record(ctx, caller, audit.EventTypeUserUpdate, audit.ResourceTypeUser, id,
		&audit.ChangeDetails{Before: userFields(target), After: userFields(updated)},
		fmt.Sprintf("%s updated", strings.ToLower(kind.Label)))
	return updated, nil
}

// sendPasswordReset is best effort; failures are logged and counted only
func (s *Service) sendPasswordReset(ctx context.Context, email string) {
	redirect := strings.TrimRight(s.cfg.SiteURL, "/") + ResetPasswordPath
	if err := s.provider.SendPasswordReset(ctx, email, redirect); err != nil {
		s.metrics.RecordPasswordResetFailure()
		s.log(ctx).WithError(err).WithField("email", email).Warn("failed to send password reset after email change")
	}
}

// DeleteUser removes a row of kind and, for kinds with accounts, its
// identity account. The account goes first so a failure leaves the row.
func (s *Service) DeleteUser(ctx context.Context, caller *rbac.Caller, kind Kind, id string) error {
	target, err := s.loadTarget(ctx, caller, kind, id, rbac.ActionDelete)
	if err != nil {
		return err
	}

	if kind.HasAccounts() {
		err := s.provider.DeleteAccount(ctx, id)
		if err != nil && !errors.Is(err, identity.ErrAccountNotFound) {
			return Upstream(upstreamMessage(err, "Failed to delete account"), err)
		}
	}

	err = s.store.DeleteUser(ctx, id)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		return NotFound(kind.notFoundMessage())
	case err != nil:
		return Upstream("Failed to delete user", err)
	}

	s.record(ctx, caller, audit.EventTypeUserDelete, audit.ResourceTypeUser, id,
		&audit.ChangeDetails{Before: userFields(target)}, fmt.Sprintf("%s deleted", strings.ToLower(kind.Label)))
	return nil
}

// loadTarget fetches a row of kind and authorizes action on it. A caller
// whose role may not act on the kind at all is refused before the lookup.
// Rows of another kind are reported as missing.
func (s *Service) loadTarget(ctx context.Context, caller *rbac.Caller, kind Kind, id string, action rbac.Action) (*directory.User, error) {
	if caller == nil {
		return nil, s.deny(ctx, caller, action, rbac.Decision{Reason: rbac.ReasonUnauthenticated}, audit.ResourceTypeUser, id, "")
	}
	if !s.canActOn(caller.Role, kind, action) {
		return nil, s.deny(ctx, caller, action, rbac.Decision{Reason: rbac.ReasonRoleForbidden}, audit.ResourceTypeUser, id, "")
	}

	target, err := s.store.GetUser(ctx, id)
	if errors.Is(err, directory.ErrNotFound) {
		return nil, NotFound(kind.notFoundMessage())
	}
	if err != nil {
		return nil, Upstream("Failed to load user", err)
	}
	if !kind.Includes(target.Role) {
		return nil, NotFound(kind.notFoundMessage())
	}

	decision := s.engine.Authorize(caller, rbac.EntityForRole(target.Role), action, &rbac.Target{StationID: target.StationID})
	if !decision.Allowed {
		return nil, s.deny(ctx, caller, action, decision, audit.ResourceTypeUser, id, kind.notFoundMessage())
	}
	return target, nil
}

// canActOn reports whether role may perform action on any role of kind
func (s *Service) canActOn(role directory.Role, kind Kind, action rbac.Action) bool {
	for _, r := range kind.Roles {
		if s.engine.Can(role, rbac.EntityForRole(r), action) {
			return true
		}
	}
	return false
}

// deny audits a refused decision and converts it to a caller-facing error.
// Scope failures on existing rows read as not found.
func (s *Service) deny(ctx context.Context, caller *rbac.Caller, action rbac.Action, decision rbac.Decision, resource audit.ResourceType, resourceID, notFoundMsg string) error {
	event := audit.NewEvent(ctx, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied)
	event.ResourceType = resource
	event.ResourceID = resourceID
	event.Message = fmt.Sprintf("Access denied: %s", decision.Reason)
	event.Metadata["action"] = string(action)
	if caller != nil {
		event.ActorID = caller.ID
		event.ActorRole = string(caller.Role)
		if caller.StationID != nil {
			event.StationID = *caller.StationID
		}
	}
	s.writeAudit(ctx, event)

	switch decision.Reason {
	case rbac.ReasonUnauthenticated:
		return Unauthenticated(MsgUnauthorized)
	case rbac.ReasonRoleForbidden:
		return Forbidden(MsgUnauthorized)
	}
	if action == rbac.ActionUpdate || action == rbac.ActionDelete {
		return NotFound(notFoundMsg)
	}
	return Forbidden(MsgUnauthorized)
}

func (s *Service) record(ctx context.Context, caller *rbac.Caller, eventType audit.EventType, resource audit.ResourceType, id string, changes *audit.ChangeDetails, message string) {
	event := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess)
	event.ResourceType = resource
	event.ResourceID = id
	event.Changes = changes
	event.Message = message
	if caller != nil {
		event.ActorID = caller.ID
		event.ActorRole = string(caller.Role)
		if caller.StationID != nil {
			event.StationID = *caller.StationID
		}
	}
	s.writeAudit(ctx, event)
}

func (s *Service) writeAudit(ctx context.Context, event *audit.AuditEvent) {
	logger := s.audit
	if logger == nil {
		logger = audit.FromContext(ctx)
	}
	if err := logger.Log(ctx, event); err != nil {
		s.log(ctx).WithError(err).WithField("event_type", string(event.EventType)).Warn("failed to write audit event")
	}
}

func (s *Service) log(ctx context.Context) *observability.Logger {
	if logger, ok := ctx.Value(contextkeys.LoggerKey).(*observability.Logger); ok {
		return logger.WithContext(ctx)
	}
	return s.logger.WithContext(ctx)
}

// accountError maps a provisioning failure. An account that already exists
// upstream is the same conflict as a duplicate directory email.
func accountError(err error) error {
	var apiErr *identity.APIError
	if errors.As(err, &apiErr) && (apiErr.Code == "email_exists" || apiErr.Code == "user_already_exists") {
		return Validation(MsgDuplicateEmail)
	}
	return Upstream(upstreamMessage(err, "Failed to create account"), err)
}

func upstreamMessage(err error, fallback string) string {
	var apiErr *identity.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

func accountMetadata(user *directory.User) map[string]interface{} {
	md := map[string]interface{}{
		"name":  user.Name,
		"phone": user.Phone,
		"role":  string(user.Role),
	}
	if user.StationID != nil {
		md["stationId"] = *user.StationID
	}
	return md
}

func userFields(user *directory.User) map[string]interface{} {
	if user == nil {
		return nil
	}
	fields := map[string]interface{}{
		"email": user.Email,
		"name":  user.Name,
		"phone": user.Phone,
		"role":  string(user.Role),
	}
	if user.StationID != nil {
		fields["stationId"] = *user.StationID
	}
	return fields
}
