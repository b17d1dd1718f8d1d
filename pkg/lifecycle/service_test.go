package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/platinummonkey/fuelops/pkg/audit"
	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/platinummonkey/fuelops/pkg/identity"
	"github.com/platinummonkey/fuelops/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

type fakeMetrics struct {
	steps         map[string][]bool
	compensations []bool
	resetFailures int
}

func (m *fakeMetrics) RecordSagaStep(step string, ok bool) {
	if m.steps == nil {
		m.steps = make(map[string][]bool)
	}
	m.steps[step] = append(m.steps[step], ok)
}

func (m *fakeMetrics) RecordCompensation(ok bool) {
	m.compensations = append(m.compensations, ok)
}

func (m *fakeMetrics) RecordPasswordResetFailure() {
	m.resetFailures++
}

type recordingAudit struct {
	mu     sync.Mutex
	events []*audit.AuditEvent
}

func (r *recordingAudit) Log(_ context.Context, event *audit.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) LogDataMutation(ctx context.Context, eventType audit.EventType, resourceType audit.ResourceType, resourceID string, changes *audit.ChangeDetails, message string) error {
	event := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess)
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	event.Message = message
	return r.Log(ctx, event)
}

func (r *recordingAudit) Close() error { return nil }

func (r *recordingAudit) ofType(t audit.EventType) []*audit.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*audit.AuditEvent
	for _, e := range r.events {
		if e.EventType == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store    *directory.MemoryStore
	provider *identity.MemoryProvider
	metrics  *fakeMetrics
	audit    *recordingAudit
	reported []error
	svc      *Service
}

var (
	serviceProvider = &rbac.Caller{ID: "sp-1", Role: directory.RoleServiceProvider}
	ownerNorth      = &rbac.Caller{ID: "owner-1", Role: directory.RoleOwner, StationID: ptr("st-1")}
	managerNorth    = &rbac.Caller{ID: "mgr-1", Role: directory.RoleManager, StationID: ptr("st-1")}
	managerSouth    = &rbac.Caller{ID: "mgr-2", Role: directory.RoleManager, StationID: ptr("st-2")}
	managerNowhere  = &rbac.Caller{ID: "mgr-3", Role: directory.RoleManager}
	employeeNorth   = &rbac.Caller{ID: "emp-1", Role: directory.RoleEmployee, StationID: ptr("st-1")}
	admin           = &rbac.Caller{ID: "admin-1", Role: directory.RoleAdmin}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:    directory.NewMemoryStore(),
		provider: identity.NewMemoryProvider(true),
		metrics:  &fakeMetrics{},
		audit:    &recordingAudit{},
	}

	require.NoError(t, f.store.CreateStation(ctx, &directory.Station{ID: "st-1", Name: "North", Location: "Kigali"}))
	require.NoError(t, f.store.CreateStation(ctx, &directory.Station{ID: "st-2", Name: "South", Location: "Huye"}))

	seed := []*directory.User{
		{ID: "sp-1", Email: "sp@fuelops.test", Name: "Provider", Phone: "100", Role: directory.RoleServiceProvider},
		{ID: "owner-1", Email: "owner@fuelops.test", Name: "Olive", Phone: "101", Role: directory.RoleOwner, StationID: ptr("st-1")},
		{ID: "mgr-1", Email: "mgr1@fuelops.test", Name: "Mona", Phone: "102", Role: directory.RoleManager, StationID: ptr("st-1")},
		{ID: "mgr-2", Email: "mgr2@fuelops.test", Name: "Mark", Phone: "103", Role: directory.RoleManager, StationID: ptr("st-2")},
		{ID: "emp-1", Email: "emp@fuelops.test", Name: "Eve", Phone: "104", Role: directory.RoleEmployee, StationID: ptr("st-1")},
		{ID: "cust-1", Email: "cust@fuelops.test", Name: "Carl", Phone: "105", Role: directory.RoleCustomer, StationID: ptr("st-1")},
	}
	for _, u := range seed {
		require.NoError(t, f.store.CreateUser(ctx, u))
	}

	f.svc = NewService(f.store, f.provider, rbac.NewEngine(rbac.DefaultRules()),
		Config{DefaultPassword: "angel123", SiteURL: "http://localhost:3000/"},
		WithMetrics(f.metrics),
		WithAudit(f.audit),
		WithErrorReporter(func(err error) { f.reported = append(f.reported, err) }),
	)
	return f
}

func assertKind(t *testing.T, err error, kind ErrorKind, msg string) {
	t.Helper()
	require.Error(t, err)
	var lerr *Error
	require.True(t, errors.As(err, &lerr), "expected *lifecycle.Error, got %T", err)
	assert.Equal(t, kind, lerr.Kind)
	if msg != "" {
		assert.Equal(t, msg, lerr.Message)
	}
}

func TestResolveCaller(t *testing.T) {
	f := newFixture(t)

	user, err := f.svc.ResolveCaller(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, directory.RoleOwner, user.Role)

	_, err = f.svc.ResolveCaller(context.Background(), "ghost")
	assertKind(t, err, KindNotFound, "User not found")
}

func TestCreateUser_ManagerByOwner(t *testing.T) {
	f := newFixture(t)

	user, err := f.svc.CreateUser(context.Background(), ownerNorth, Managers, CreateUserInput{
		Email: "  New.Manager@FuelOps.test ",
		Name:  "Nina",
		Phone: "200",
	})
	require.NoError(t, err)

	assert.Equal(t, "new.manager@fuelops.test", user.Email)
	assert.Equal(t, directory.RoleManager, user.Role)
	require.NotNil(t, user.StationID)
	assert.Equal(t, "st-1", *user.StationID)

	account, ok := f.provider.Account(user.ID)
	require.True(t, ok)
	assert.NotNil(t, account.ConfirmedAt)
	assert.Equal(t, "MANAGER", account.UserMetadata["role"])
	assert.Equal(t, "st-1", account.UserMetadata["stationId"])

	stored, err := f.store.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nina", stored.Name)

	session, err := f.provider.SignIn(context.Background(), "new.manager@fuelops.test", "angel123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)

	assert.Equal(t, []bool{true}, f.metrics.steps[StepProvisionAccount])
	assert.Equal(t, []bool{true}, f.metrics.steps[StepInsertRow])

	created := f.audit.ofType(audit.EventTypeUserCreate)
	require.Len(t, created, 1)
	assert.Equal(t, "owner-1", created[0].ActorID)
	assert.Equal(t, user.ID, created[0].ResourceID)
}

func TestCreateUser_OwnerPasswordOverride(t *testing.T) {
	f := newFixture(t)

	user, err := f.svc.CreateUser(context.Background(), serviceProvider, Owners, CreateUserInput{
		Email:     "owner2@fuelops.test",
		Name:      "Otto",
		Phone:     "201",
		StationID: "st-2",
		Password:  "s3cret!",
	})
	require.NoError(t, err)
	assert.Equal(t, "st-2", *user.StationID)

	_, err = f.provider.SignIn(context.Background(), "owner2@fuelops.test", "s3cret!")
	assert.NoError(t, err)
}

func TestCreateUser_CreatedRowIsListed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	user, err := f.svc.CreateUser(ctx, managerNorth, StationUsers, CreateUserInput{
		Email: "acc@fuelops.test",
		Name:  "Abe",
		Phone: "202",
		Role:  "ACCOUNTANT",
	})
	require.NoError(t, err)
	assert.Equal(t, directory.RoleAccountant, user.Role)

	users, err := f.svc.ListUsers(ctx, managerNorth, StationUsers)
	require.NoError(t, err)

	var ids []string
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	assert.Contains(t, ids, user.ID)
}

func TestCreateUser_CustomerHasNoAccount(t *testing.T) {
	f := newFixture(t)

	user, err := f.svc.CreateUser(context.Background(), managerNorth, Customers, CreateUserInput{
		Email: "walkin@fuelops.test",
		Name:  "Walter",
		Phone: "203",
	})
	require.NoError(t, err)
	assert.Len(t, user.ID, 36)
	assert.Equal(t, 0, f.provider.AccountCount())
	assert.Empty(t, f.metrics.steps[StepProvisionAccount])
}

func TestCreateUser_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		caller *rbac.Caller
		kind   Kind
		input  CreateUserInput
		kindOf ErrorKind
		msg    string
	}{
		{
			name:   "unauthenticated",
			caller: nil,
			kind:   Managers,
			input:  CreateUserInput{Email: "x@fuelops.test", Name: "X", Phone: "1"},
			kindOf: KindUnauthenticated,
			msg:    "Unauthorized",
		},
		{
			name:   "manager cannot create managers",
			caller: managerNorth,
			kind:   Managers,
			input:  CreateUserInput{Email: "x@fuelops.test", Name: "X", Phone: "1"},
			kindOf: KindForbidden,
		},
		{
			name:   "owner cannot create station users",
			caller: ownerNorth,
			kind:   StationUsers,
			input:  CreateUserInput{Email: "x@fuelops.test", Name: "X", Phone: "1", Role: "EMPLOYEE"},
			kindOf: KindForbidden,
		},
		{
			name:   "forbidden caller with invalid input still gets forbidden",
			caller: employeeNorth,
			kind:   StationUsers,
			input:  CreateUserInput{Role: "WIZARD"},
			kindOf: KindForbidden,
		},
		{
			name:   "manager without station",
			caller: managerNowhere,
			kind:   Customers,
			input:  CreateUserInput{Email: "x@fuelops.test", Name: "X", Phone: "1"},
			kindOf: KindForbidden,
		},
		{
			name:   "missing phone",
			caller: ownerNorth,
			kind:   Managers,
			input:  CreateUserInput{Email: "x@fuelops.test", Name: "X"},
			kindOf: KindValidation,
			msg:    "All fields are required",
		},
		{
			name:   "missing role",
			caller: managerNorth,
			kind:   StationUsers,
			input:  CreateUserInput{Email: "x@fuelops.test", Name: "X", Phone: "1"},
			kindOf: KindValidation,
			msg:    "All fields are required",
		},
		{
			name:   "bad email",
			caller: ownerNorth,
			kind:   Managers,
			input:  CreateUserInput{Email: "not-an-email", Name: "X", Phone: "1"},
			kindOf: KindValidation,
			msg:    "Please enter a valid email address",
		},
		{
			name:   "role outside kind",
			caller: managerNorth,
			kind:   StationUsers,
			input:  CreateUserInput{Email: "x@fuelops.test", Name: "X", Phone: "1", Role: "MANAGER"},
			kindOf: KindValidation,
			msg:    "Invalid role",
		},
		{
			name:   "owner station missing",
			caller: serviceProvider,
			kind:   Owners,
			input:  CreateUserInput{Email: "x@fuelops.test", Name: "X", Phone: "1", StationID: "st-9"},
			kindOf: KindValidation,
			msg:    "Station not found",
		},
		{
			name:   "duplicate email in another station",
			caller: ownerNorth,
			kind:   Managers,
			input:  CreateUserInput{Email: "MGR2@fuelops.test", Name: "X", Phone: "1"},
			kindOf: KindValidation,
			msg:    "A user with this email already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			before, err := f.store.ListUsers(context.Background(), directory.UserFilter{})
			require.NoError(t, err)

			_, err = f.svc.CreateUser(context.Background(), tt.caller, tt.kind, tt.input)
			assertKind(t, err, tt.kindOf, tt.msg)

			after, err := f.store.ListUsers(context.Background(), directory.UserFilter{})
			require.NoError(t, err)
			assert.Len(t, after, len(before))
			assert.Equal(t, 0, f.provider.AccountCount())
		})
	}
}

func TestCreateUser_DeniedIsAudited(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateUser(context.Background(), managerNorth, Owners, CreateUserInput{})
	assertKind(t, err, KindForbidden, "Unauthorized")

	denied := f.audit.ofType(audit.EventTypeAuthzAccessDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "mgr-1", denied[0].ActorID)
	assert.Equal(t, "Access denied: ROLE_FORBIDDEN", denied[0].Message)
}

func TestCreateUser_ProviderDuplicateMapsToValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.provider.CreateAccount(context.Background(), identity.AccountRequest{Email: "ghost@fuelops.test", Password: "x"})
	require.NoError(t, err)

	_, err = f.svc.CreateUser(context.Background(), ownerNorth, Managers, CreateUserInput{
		Email: "ghost@fuelops.test", Name: "G", Phone: "1",
	})
	assertKind(t, err, KindValidation, "A user with this email already exists")
}

func TestCreateUser_ProviderFailure(t *testing.T) {
	f := newFixture(t)
	f.provider.FailNext(identity.OpCreateAccount, &identity.APIError{StatusCode: 500, Message: "Database error creating new user"})

	_, err := f.svc.CreateUser(context.Background(), ownerNorth, Managers, CreateUserInput{
		Email: "x@fuelops.test", Name: "X", Phone: "1",
	})
	assertKind(t, err, KindUpstream, "Database error creating new user")
	assert.Equal(t, []bool{false}, f.metrics.steps[StepProvisionAccount])
	assert.Empty(t, f.metrics.steps[StepInsertRow])
}

func TestCreateUser_CompensatesFailedInsert(t *testing.T) {
	f := newFixture(t)
	f.store.FailNext("CreateUser", errors.New("connection reset"))

	_, err := f.svc.CreateUser(context.Background(), ownerNorth, Managers, CreateUserInput{
		Email: "x@fuelops.test", Name: "X", Phone: "1",
	})
	assertKind(t, err, KindUpstream, "Failed to create user")

	assert.Equal(t, 0, f.provider.AccountCount())
	assert.Equal(t, []bool{true}, f.metrics.compensations)
	assert.Empty(t, f.reported)
	assert.Empty(t, f.audit.ofType(audit.EventTypeSagaCompensationFailed))
}

func TestCreateUser_CompensationFailureIsReported(t *testing.T) {
	f := newFixture(t)
	f.store.FailNext("CreateUser", errors.New("connection reset"))
	f.provider.FailNext(identity.OpDeleteAccount, errors.New("provider unavailable"))

	_, err := f.svc.CreateUser(context.Background(), ownerNorth, Managers, CreateUserInput{
		Email: "x@fuelops.test", Name: "X", Phone: "1",
	})
	// the caller sees the insert failure, not the rollback failure
	assertKind(t, err, KindUpstream, "Failed to create user")

	assert.Equal(t, 1, f.provider.AccountCount())
	assert.Equal(t, []bool{false}, f.metrics.compensations)

	require.Len(t, f.reported, 1)
	assert.Equal(t, KindPartialFailure, KindOf(f.reported[0]))

	failed := f.audit.ofType(audit.EventTypeSagaCompensationFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, audit.ResourceTypeAccount, failed[0].ResourceType)
	assert.Equal(t, "x@fuelops.test", failed[0].Metadata["email"])
}

// cancellingStore cancels the request while the row insert is in flight
type cancellingStore struct {
	*directory.MemoryStore
	cancel context.CancelFunc
}

func (s *cancellingStore) CreateUser(ctx context.Context, user *directory.User) error {
	s.cancel()
	return ctx.Err()
}

// ctxProvider refuses calls on a cancelled context like a real HTTP client
type ctxProvider struct {
	*identity.MemoryProvider
}

func (p *ctxProvider) DeleteAccount(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.MemoryProvider.DeleteAccount(ctx, id)
}

func TestCreateUser_CompensationSurvivesCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc := NewService(&cancellingStore{MemoryStore: f.store, cancel: cancel}, &ctxProvider{f.provider},
		rbac.NewEngine(rbac.DefaultRules()), Config{DefaultPassword: "angel123"}, WithMetrics(f.metrics))

	_, err := svc.CreateUser(ctx, ownerNorth, Managers, CreateUserInput{
		Email: "x@fuelops.test", Name: "X", Phone: "1",
	})
	assertKind(t, err, KindUpstream, "")

	assert.Equal(t, 0, f.provider.AccountCount())
	assert.Equal(t, []bool{true}, f.metrics.compensations)
}

func TestListUsers(t *testing.T) {
	tests := []struct {
		name    string
		caller  *rbac.Caller
		kind    Kind
		wantIDs []string
		errKind *ErrorKind
	}{
		{name: "owner sees own station managers", caller: ownerNorth, kind: Managers, wantIDs: []string{"mgr-1"}},
		{name: "service provider sees all owners", caller: serviceProvider, kind: Owners, wantIDs: []string{"owner-1"}},
		{name: "manager sees station users", caller: managerNorth, kind: StationUsers, wantIDs: []string{"cust-1", "emp-1"}},
		{name: "manager elsewhere sees none", caller: managerSouth, kind: StationUsers, wantIDs: []string{}},
		{name: "manager without station matches none", caller: managerNowhere, kind: Customers, wantIDs: []string{}},
		{name: "employee forbidden", caller: employeeNorth, kind: Managers, errKind: kindPtr(KindForbidden)},
		{name: "unauthenticated", caller: nil, kind: Customers, errKind: kindPtr(KindUnauthenticated)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			users, err := f.svc.ListUsers(context.Background(), tt.caller, tt.kind)
			if tt.errKind != nil {
				assertKind(t, err, *tt.errKind, "")
				return
			}
			require.NoError(t, err)
			require.NotNil(t, users)

			ids := []string{}
			for _, u := range users {
				ids = append(ids, u.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func kindPtr(k ErrorKind) *ErrorKind { return &k }

func TestUpdateUser(t *testing.T) {
	t.Run("changes fields and resets password on email change", func(t *testing.T) {
		f := newFixture(t)
		updated, err := f.svc.UpdateUser(context.Background(), ownerNorth, Managers, "mgr-1", UpdateUserInput{
			Name:  ptr("Mona Lisa"),
			Phone: ptr("999"),
			Email: ptr("Mona@FuelOps.test"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Mona Lisa", updated.Name)
		assert.Equal(t, "mona@fuelops.test", updated.Email)

		resets := f.provider.PasswordResets()
		require.Len(t, resets, 1)
		assert.Equal(t, "mona@fuelops.test", resets[0].Email)
		assert.Equal(t, "http://localhost:3000/auth/reset-password", resets[0].RedirectTo)

		events := f.audit.ofType(audit.EventTypeUserUpdate)
		require.Len(t, events, 1)
		assert.Equal(t, "Mona", events[0].Changes.Before["name"])
		assert.Equal(t, "Mona Lisa", events[0].Changes.After["name"])
	})

	t.Run("unchanged email sends no reset", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateUser(context.Background(), ownerNorth, Managers, "mgr-1", UpdateUserInput{
			Name: ptr("Mona"), Phone: ptr("1"), Email: ptr("mgr1@fuelops.test"),
		})
		require.NoError(t, err)
		assert.Empty(t, f.provider.PasswordResets())
	})

	t.Run("reset failure does not fail the update", func(t *testing.T) {
		f := newFixture(t)
		f.provider.FailNext(identity.OpPasswordReset, errors.New("smtp down"))
		updated, err := f.svc.UpdateUser(context.Background(), ownerNorth, Managers, "mgr-1", UpdateUserInput{
			Name: ptr("Mona"), Phone: ptr("1"), Email: ptr("new@fuelops.test"),
		})
		require.NoError(t, err)
		assert.Equal(t, "new@fuelops.test", updated.Email)
		assert.Equal(t, 1, f.metrics.resetFailures)
	})

	t.Run("customers get no reset", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateUser(context.Background(), managerNorth, Customers, "cust-1", UpdateUserInput{
			Name: ptr("Carl"), Phone: ptr("1"), Email: ptr("carl2@fuelops.test"),
		})
		require.NoError(t, err)
		assert.Empty(t, f.provider.PasswordResets())
	})

	t.Run("other station reads as not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateUser(context.Background(), ownerNorth, Managers, "mgr-2", UpdateUserInput{Name: ptr("X"), Phone: ptr("1")})
		assertKind(t, err, KindNotFound, "Manager not found or unauthorized")

		stored, err := f.store.GetUser(context.Background(), "mgr-2")
		require.NoError(t, err)
		assert.Equal(t, "Mark", stored.Name)
	})

	t.Run("row of another kind reads as not found", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateUser(context.Background(), managerNorth, Customers, "emp-1", UpdateUserInput{Name: ptr("X"), Phone: ptr("1")})
		assertKind(t, err, KindNotFound, "Customer not found or unauthorized")
	})

	t.Run("wrong role is forbidden", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateUser(context.Background(), employeeNorth, Managers, "mgr-1", UpdateUserInput{Name: ptr("X"), Phone: ptr("1")})
		assertKind(t, err, KindForbidden, "")
	})

	t.Run("duplicate email excludes self", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateUser(context.Background(), ownerNorth, Managers, "mgr-1", UpdateUserInput{
			Name: ptr("Mona"), Phone: ptr("1"), Email: ptr("emp@fuelops.test"),
		})
		assertKind(t, err, KindValidation, "A user with this email already exists")
	})

	t.Run("blank name is rejected", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateUser(context.Background(), ownerNorth, Managers, "mgr-1", UpdateUserInput{Name: ptr("  ")})
		assertKind(t, err, KindValidation, "All fields are required")
	})

	t.Run("omitted fields are kept", func(t *testing.T) {
		f := newFixture(t)
		updated, err := f.svc.UpdateUser(context.Background(), ownerNorth, Managers, "mgr-1", UpdateUserInput{Phone: ptr("555")})
		require.NoError(t, err)
		assert.Equal(t, "Mona", updated.Name)
		assert.Equal(t, "555", updated.Phone)
		assert.Equal(t, "mgr1@fuelops.test", updated.Email)
	})

	t.Run("owner moves to another station", func(t *testing.T) {
		f := newFixture(t)
		updated, err := f.svc.UpdateUser(context.Background(), serviceProvider, Owners, "owner-1", UpdateUserInput{
			Name: ptr("Olive B"), StationID: ptr("st-2"),
		})
		require.NoError(t, err)
		assert.Equal(t, "Olive B", updated.Name)
		assert.Equal(t, "101", updated.Phone)
		require.NotNil(t, updated.StationID)
		assert.Equal(t, "st-2", *updated.StationID)
	})

	t.Run("owner move to unknown station", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateUser(context.Background(), serviceProvider, Owners, "owner-1", UpdateUserInput{StationID: ptr("st-9")})
		assertKind(t, err, KindValidation, "Station not found")

		stored, err := f.store.GetUser(context.Background(), "owner-1")
		require.NoError(t, err)
		assert.Equal(t, "st-1", *stored.StationID)
	})

	t.Run("station scoped provider cannot move owner out of its station", func(t *testing.T) {
		f := newFixture(t)
		scoped := &rbac.Caller{ID: "sp-2", Role: directory.RoleServiceProvider, StationID: ptr("st-1")}
		_, err := f.svc.UpdateUser(context.Background(), scoped, Owners, "owner-1", UpdateUserInput{StationID: ptr("st-2")})
		assertKind(t, err, KindNotFound, "Owner not found or unauthorized")
	})

	t.Run("station change ignored for managers", func(t *testing.T) {
		f := newFixture(t)
		updated, err := f.svc.UpdateUser(context.Background(), ownerNorth, Managers, "mgr-1", UpdateUserInput{StationID: ptr("st-2")})
		require.NoError(t, err)
		assert.Equal(t, "st-1", *updated.StationID)
	})

	t.Run("forbidden role is refused before lookup", func(t *testing.T) {
		tests := []struct {
			name   string
			caller *rbac.Caller
			kind   Kind
			id     string
		}{
			{name: "missing id", caller: employeeNorth, kind: Owners, id: "nope"},
			{name: "row of another kind", caller: managerNorth, kind: Managers, id: "cust-1"},
			{name: "existing row", caller: employeeNorth, kind: Managers, id: "mgr-1"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)
				_, err := f.svc.UpdateUser(context.Background(), tt.caller, tt.kind, tt.id, UpdateUserInput{Name: ptr("X")})
				assertKind(t, err, KindForbidden, "Unauthorized")
			})
		}
	})

	t.Run("role change within kind", func(t *testing.T) {
		f := newFixture(t)
		updated, err := f.svc.UpdateUser(context.Background(), managerNorth, StationUsers, "emp-1", UpdateUserInput{
			Name: ptr("Eve"), Phone: ptr("1"), Role: ptr("ACCOUNTANT"),
		})
		require.NoError(t, err)
		assert.Equal(t, directory.RoleAccountant, updated.Role)
	})

	t.Run("role change outside kind", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.UpdateUser(context.Background(), managerNorth, StationUsers, "emp-1", UpdateUserInput{
			Name: ptr("Eve"), Phone: ptr("1"), Role: ptr("OWNER"),
		})
		assertKind(t, err, KindValidation, "Invalid role")
	})
}

func TestDeleteUser(t *testing.T) {
	t.Run("deletes account then row and is not idempotent", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		user, err := f.svc.CreateUser(ctx, ownerNorth, Managers, CreateUserInput{Email: "d@fuelops.test", Name: "D", Phone: "1"})
		require.NoError(t, err)

		require.NoError(t, f.svc.DeleteUser(ctx, ownerNorth, Managers, user.ID))
		_, ok := f.provider.Account(user.ID)
		assert.False(t, ok)
		_, err = f.store.GetUser(ctx, user.ID)
		assert.ErrorIs(t, err, directory.ErrNotFound)

		err = f.svc.DeleteUser(ctx, ownerNorth, Managers, user.ID)
		assertKind(t, err, KindNotFound, "Manager not found or unauthorized")

		assert.Len(t, f.audit.ofType(audit.EventTypeUserDelete), 1)
	})

	t.Run("missing account is tolerated", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.svc.DeleteUser(context.Background(), ownerNorth, Managers, "mgr-1"))
	})

	t.Run("provider failure leaves the row", func(t *testing.T) {
		f := newFixture(t)
		f.provider.FailNext(identity.OpDeleteAccount, &identity.APIError{StatusCode: 500, Message: "upstream exploded"})

		err := f.svc.DeleteUser(context.Background(), ownerNorth, Managers, "mgr-1")
		assertKind(t, err, KindUpstream, "upstream exploded")

		_, err = f.store.GetUser(context.Background(), "mgr-1")
		assert.NoError(t, err)
	})

	t.Run("customers skip the provider", func(t *testing.T) {
		f := newFixture(t)
		f.provider.FailNext(identity.OpDeleteAccount, errors.New("must not be called"))
		require.NoError(t, f.svc.DeleteUser(context.Background(), managerNorth, Customers, "cust-1"))
	})

	t.Run("other station reads as not found", func(t *testing.T) {
		f := newFixture(t)
		err := f.svc.DeleteUser(context.Background(), managerSouth, Customers, "cust-1")
		assertKind(t, err, KindNotFound, "Customer not found or unauthorized")
	})

	t.Run("forbidden role is refused before lookup", func(t *testing.T) {
		tests := []struct {
			name   string
			caller *rbac.Caller
			kind   Kind
			id     string
		}{
			{name: "missing id", caller: employeeNorth, kind: Managers, id: "does-not-exist"},
			{name: "row of another kind", caller: managerNorth, kind: Managers, id: "cust-1"},
			{name: "existing row", caller: employeeNorth, kind: Managers, id: "mgr-1"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)
				err := f.svc.DeleteUser(context.Background(), tt.caller, tt.kind, tt.id)
				assertKind(t, err, KindForbidden, "Unauthorized")

				_, err = f.store.GetUser(context.Background(), "mgr-1")
				assert.NoError(t, err)
				denied := f.audit.ofType(audit.EventTypeAuthzAccessDenied)
				require.Len(t, denied, 1)
				assert.Equal(t, tt.id, denied[0].ResourceID)
			})
		}
	})
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("x")))
	assert.Equal(t, KindValidation, KindOf(Validation("x")))
	assert.Equal(t, KindUpstream, KindOf(errors.New("plain")))

	wrapped := PartialFailure("orphaned", errors.New("boom"))
	assert.Equal(t, "orphaned: boom", wrapped.Error())
	assert.True(t, IsNotFound(NotFound("gone")))
	assert.False(t, IsNotFound(Forbidden("no")))
}

func TestKindByName(t *testing.T) {
	k, ok := KindByName("station-users")
	require.True(t, ok)
	assert.True(t, k.RequireRoleInput)
	assert.True(t, k.HasAccounts())

	k, ok = KindByName("customers")
	require.True(t, ok)
	assert.False(t, k.HasAccounts())
	assert.Equal(t, "Customer deleted successfully", k.DeleteMessage)

	_, ok = KindByName("wizards")
	assert.False(t, ok)
}
