package directory

import "time"

// Role is the closed set of directory roles
type Role string

const (
	RoleServiceProvider Role = "SERVICE_PROVIDER"
	RoleOwner           Role = "OWNER"
	RoleManager         Role = "MANAGER"
	RoleAccountant      Role = "ACCOUNTANT"
	RoleEmployee        Role = "EMPLOYEE"
	RoleCustomer        Role = "CUSTOMER"
	RoleAdmin           Role = "ADMIN"
	RoleSuperAdmin      Role = "SUPERADMIN"
)

// AllRoles lists every recognized role
var AllRoles = []Role{
	RoleServiceProvider,
	RoleOwner,
	RoleManager,
	RoleAccountant,
	RoleEmployee,
	RoleCustomer,
	RoleAdmin,
	RoleSuperAdmin,
}

// Valid reports whether r is a recognized role
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// StationScoped reports whether rows with this role must reference a station
func (r Role) StationScoped() bool {
	switch r {
	case RoleOwner, RoleManager, RoleAccountant, RoleEmployee, RoleCustomer:
		return true
	default:
		return false
	}
}

func (r Role) String() string {
	return string(r)
}

// User is a directory row
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Role      Role      `json:"role"`
	StationID *string   `json:"stationId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// InStation reports whether the user belongs to the given station
func (u *User) InStation(stationID string) bool {
	return u.StationID != nil && *u.StationID == stationID
}

// Station is a fuel station
type Station struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserFilter narrows ListUsers. Empty fields do not filter.
type UserFilter struct {
	Roles     []Role
	StationID *string
}

// UserUpdate is a partial update; nil fields are left unchanged
type UserUpdate struct {
	Name  *string
	Phone *string
	Email *string
	Role  *Role

	// SetStation writes StationID, which may be nil to clear it
	SetStation bool
	StationID  *string
}

// IsEmpty reports whether the update writes nothing
func (u UserUpdate) IsEmpty() bool {
	return u.Name == nil && u.Phone == nil && u.Email == nil && u.Role == nil && !u.SetStation
}

// StationFilter narrows ListStations
type StationFilter struct {
	ID *string
}

// StationUpdate is a partial update; nil fields are left unchanged
type StationUpdate struct {
	Name     *string
	Location *string
}

// IsEmpty reports whether the update writes nothing
func (u StationUpdate) IsEmpty() bool {
	return u.Name == nil && u.Location == nil
}
