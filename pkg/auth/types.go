package auth

import (
	"context"

	"github.com/platinummonkey/fuelops/pkg/contextkeys"
	"github.com/platinummonkey/fuelops/pkg/directory"
	"github.com/platinummonkey/fuelops/pkg/rbac"
)

// AuthContext holds authenticated caller information
type AuthContext struct {
	Caller      *rbac.Caller
	User        *directory.User
	AccessToken string
}

// NewAuthContext builds the context for a resolved directory row
func NewAuthContext(user *directory.User, accessToken string) *AuthContext {
	return &AuthContext{
		Caller:      rbac.CallerFromUser(user),
		User:        user,
		AccessToken: accessToken,
	}
}

// GetAuthContext returns the caller context stored by the auth middleware
func GetAuthContext(ctx context.Context) *AuthContext {
	authCtx, _ := ctx.Value(contextkeys.AuthKey).(*AuthContext)
	return authCtx
}

// CallerFrom returns the caller stored in ctx, or nil
func CallerFrom(ctx context.Context) *rbac.Caller {
	if authCtx := GetAuthContext(ctx); authCtx != nil {
		return authCtx.Caller
	}
	return nil
}

// LandingRoutes maps each role to the page it lands on after login
var LandingRoutes = map[directory.Role]string{
	directory.RoleOwner:           "/owner/dashboard",
	directory.RoleManager:         "/manager/dashboard",
	directory.RoleAccountant:      "/accountant/dashboard",
	directory.RoleEmployee:        "/employee/dashboard",
	directory.RoleCustomer:        "/customer/dashboard",
	directory.RoleServiceProvider: "/service/dashboard",
	directory.RoleAdmin:           "/admin/dashboard",
	directory.RoleSuperAdmin:      "/superadmin/dashboard",
}

// LandingRoute returns the landing page for role
func LandingRoute(role directory.Role) (string, bool) {
	route, ok := LandingRoutes[role]
	return route, ok
}
