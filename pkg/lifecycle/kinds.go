package lifecycle

import (
	"github.com/platinummonkey/fuelops/pkg/directory"
)

// Provisioning is how a kind obtains identity accounts
type Provisioning int

const (
	// ProvisionNone creates directory rows only
	ProvisionNone Provisioning = iota
	// ProvisionAdmin uses the admin API; accounts are pre-confirmed
	ProvisionAdmin
	// ProvisionSignUp uses self-service sign-up; the user confirms by email
	ProvisionSignUp
)

// StationSource is where a new row's station comes from
type StationSource int

const (
	StationFromCaller StationSource = iota
	StationFromInput
)

// Kind describes one family of directory users
type Kind struct {
	// Name is the path segment, e.g. "managers"
	Name  string
	Label string
	Roles []directory.Role

	Provisioning  Provisioning
	StationSource StationSource

	// RequireRoleInput means the role is taken from the request body
	RequireRoleInput bool
	// AllowPassword lets the request override the default password
	AllowPassword bool
	// AllowStationChange lets an update move the row to another station
	AllowStationChange bool

	// DeleteMessage, when set, is returned as {"message": ...} on delete
	DeleteMessage string
}

var (
	Managers = Kind{
		Name:          "managers",
		Label:         "Manager",
		Roles:         []directory.Role{directory.RoleManager},
		Provisioning:  ProvisionAdmin,
		StationSource: StationFromCaller,
	}

	Owners = Kind{
		Name:          "owners",
		Label:         "Owner",
		Roles:         []directory.Role{directory.RoleOwner},
		Provisioning:  ProvisionAdmin,
		StationSource:      StationFromInput,
		AllowPassword:      true,
		AllowStationChange: true,
	}

	StationUsers = Kind{
		Name:             "station-users",
		Label:            "User",
		Roles:            []directory.Role{directory.RoleAccountant, directory.RoleEmployee, directory.RoleCustomer},
		Provisioning:     ProvisionSignUp,
		StationSource:    StationFromCaller,
		RequireRoleInput: true,
	}

	Customers = Kind{
		Name:          "customers",
		Label:         "Customer",
		Roles:         []directory.Role{directory.RoleCustomer},
		Provisioning:  ProvisionNone,
		StationSource: StationFromCaller,
		DeleteMessage: "Customer deleted successfully",
	}
)

// Kinds lists every user family in registration order
var Kinds = []Kind{Managers, Owners, StationUsers, Customers}

// KindByName finds a kind by its path segment
func KindByName(name string) (Kind, bool) {
	for _, k := range Kinds {
		if k.Name == name {
			return k, true
		}
	}
	return Kind{}, false
}

// HasAccounts reports whether rows of this kind own an identity account
func (k Kind) HasAccounts() bool {
	return k.Provisioning != ProvisionNone
}

// Includes reports whether role belongs to the kind
func (k Kind) Includes(role directory.Role) bool {
	for _, r := range k.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (k Kind) roleNames() []string {
	names := make([]string, len(k.Roles))
	for i, r := range k.Roles {
		names[i] = string(r)
	}
	return names
}

func (k Kind) notFoundMessage() string {
	return k.Label + " not found or unauthorized"
}
