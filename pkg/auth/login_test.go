package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/platinummonkey/fuelops/pkg/contextkeys"
	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/platinummonkey/fuelops/pkg/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	results []string
}

func (c *countingRecorder) RecordLogin(result string) {
	c.results = append(c.results, result)
}

func setupLogin(t *testing.T, role directory.Role, withRow bool) (*LoginService, *countingRecorder) {
	t.Helper()
	ctx := context.Background()

	provider := identity.NewMemoryProvider(true)
	store := directory.NewMemoryStore()
	require.NoError(t, store.CreateStation(ctx, &directory.Station{ID: "st-1", Name: "North"}))

	account, err := provider.CreateAccount(ctx, identity.AccountRequest{Email: "user@fuelops.test", Password: "angel123"})
	require.NoError(t, err)

	if withRow {
		station := "st-1"
		row := &directory.User{ID: account.ID, Email: "user@fuelops.test", Name: "U", Phone: "1", Role: role}
		if role.StationScoped() {
			row.StationID = &station
		}
		require.NoError(t, store.CreateUser(ctx, row))
	}

	recorder := &countingRecorder{}
	return NewLoginService(provider, store, recorder), recorder
}

func TestLogin_RoutesEveryRole(t *testing.T) {
	for role, want := range LandingRoutes {
		t.Run(string(role), func(t *testing.T) {
			svc, recorder := setupLogin(t, role, true)

			result, err := svc.Login(context.Background(), "USER@fuelops.test", "angel123")
			require.NoError(t, err)
			assert.Equal(t, want, result.RedirectTo)
			assert.Equal(t, role, result.User.Role)
			assert.NotEmpty(t, result.Session.AccessToken)
			assert.Equal(t, []string{LoginSuccess}, recorder.results)
		})
	}
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name     string
		role     directory.Role
		withRow  bool
		email    string
		password string
		wantErr  error
		recorded []string
	}{
		{
			name:     "missing password",
			role:     directory.RoleOwner,
			withRow:  true,
			email:    "user@fuelops.test",
			wantErr:  ErrMissingCredentials,
			recorded: nil,
		},
		{
			name:     "wrong password",
			role:     directory.RoleOwner,
			withRow:  true,
			email:    "user@fuelops.test",
			password: "nope",
			wantErr:  identity.ErrInvalidCredentials,
			recorded: []string{LoginInvalidCredentials},
		},
		{
			name:     "no directory row",
			role:     directory.RoleOwner,
			withRow:  false,
			email:    "user@fuelops.test",
			password: "angel123",
			wantErr:  ErrUnknownRole,
			recorded: []string{LoginUnknownRole},
		},
		{
			name:     "role without landing route",
			role:     directory.Role("AUDITOR"),
			withRow:  true,
			email:    "user@fuelops.test",
			password: "angel123",
			wantErr:  ErrUnknownRole,
			recorded: []string{LoginUnknownRole},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, recorder := setupLogin(t, tt.role, tt.withRow)

			_, err := svc.Login(context.Background(), tt.email, tt.password)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			assert.Equal(t, tt.recorded, recorder.results)
		})
	}
}

func TestLandingRoute(t *testing.T) {
	route, ok := LandingRoute(directory.RoleServiceProvider)
	assert.True(t, ok)
	assert.Equal(t, "/service/dashboard", route)

	_, ok = LandingRoute(directory.Role(""))
	assert.False(t, ok)

	for _, role := range directory.AllRoles {
		_, ok := LandingRoute(role)
		assert.True(t, ok, "role %s has no landing route", role)
	}
}

func TestGetAuthContext(t *testing.T) {
	assert.Nil(t, GetAuthContext(context.Background()))
	assert.Nil(t, CallerFrom(context.Background()))

	station := "st-1"
	user := &directory.User{ID: "u-1", Role: directory.RoleManager, StationID: &station}
	ctx := contextkeys.WithAuth(context.Background(), NewAuthContext(user, "tok"))

	authCtx := GetAuthContext(ctx)
	require.NotNil(t, authCtx)
	assert.Equal(t, "tok", authCtx.AccessToken)
	assert.Equal(t, "u-1", CallerFrom(ctx).ID)
	assert.Equal(t, &station, CallerFrom(ctx).StationID)
}
