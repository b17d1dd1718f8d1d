// Package directory is the user directory and station registry for FuelOps.
//
// Every principal is a row in the "User" table distinguished by role and
// scoped by stationId. The directory is the source of truth for
// authorization decisions; the identity provider only knows credentials.
//
// # Tables
//
//	"Station" (id, name, location, "createdAt", "updatedAt")
//	"User"    (id, email, name, phone, role, "stationId", "createdAt", "updatedAt")
//
// Email addresses are unique across the whole directory regardless of role.
// A station-scoped role (OWNER, MANAGER, ACCOUNTANT, EMPLOYEE, CUSTOMER)
// references an existing station through "stationId"; a station with users
// assigned cannot be deleted.
//
// # Usage
//
//	db, err := directory.Open(ctx, directory.ConnectionConfig{URL: dsn})
//	if err != nil {
//		return err
//	}
//	if err := directory.Migrate(ctx, db); err != nil {
//		return err
//	}
//	store := directory.NewPostgresStore(db)
//	managers, err := store.ListUsers(ctx, directory.UserFilter{
//		Roles:     []directory.Role{directory.RoleManager},
//		StationID: &stationID,
//	})
package directory
