package rbac

import (
	"time"

	"github.com/platinummonkey/fuelops/pkg/directory"
)

// Entity is a kind of row the rule table governs
type Entity string

const (
	EntityOwner      Entity = "OWNER"
	EntityManager    Entity = "MANAGER"
	EntityAccountant Entity = "ACCOUNTANT"
	EntityEmployee   Entity = "EMPLOYEE"
	EntityCustomer   Entity = "CUSTOMER"
	EntityStation    Entity = "STATION"
)

// EntityForRole maps a directory role to the entity governing rows with that role
func EntityForRole(role directory.Role) Entity {
	return Entity(role)
}

// Action is a lifecycle operation
type Action string

const (
	ActionList   Action = "list"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// AllActions lists every lifecycle action
var AllActions = []Action{ActionList, ActionCreate, ActionUpdate, ActionDelete}

// Scope is how a rule constrains the station of the target
type Scope string

const (
	// ScopeGlobalOrOwn applies no constraint unless the caller has a station,
	// in which case the target must be in it
	ScopeGlobalOrOwn Scope = "global_or_own"
	// ScopeStation requires the caller to have a station and the target to share it
	ScopeStation Scope = "station"
)

// Reason tags a denied decision
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnauthenticated Reason = "UNAUTHENTICATED"
	ReasonRoleForbidden   Reason = "ROLE_FORBIDDEN"
	ReasonScopeMismatch   Reason = "SCOPE_MISMATCH"
	ReasonTargetNotFound  Reason = "TARGET_NOT_FOUND"
)

// Caller is the resolved identity of the principal making a request
type Caller struct {
	ID        string         `json:"id"`
	Role      directory.Role `json:"role"`
	StationID *string        `json:"stationId,omitempty"`
}

// CallerFromUser builds a Caller from the caller's own directory row
func CallerFromUser(user *directory.User) *Caller {
	if user == nil {
		return nil
	}
	return &Caller{ID: user.ID, Role: user.Role, StationID: user.StationID}
}

// Target is the row an update or delete acts on, or the row a create would produce
type Target struct {
	StationID *string
}

// Rule grants a caller role a set of actions on one entity
type Rule struct {
	CallerRole directory.Role
	Entity     Entity
	Actions    []Action
	Scope      Scope
}

func (r Rule) allows(action Action) bool {
	for _, a := range r.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
	// Scope is the station a list must be filtered to; nil means unrestricted.
	Scope *string `json:"scope,omitempty"`
	// MatchNone is set when a station-scoped caller has no station, so a
	// list can match nothing.
	MatchNone bool      `json:"match_none,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Recorder observes decisions, typically for metrics
type Recorder interface {
	RecordDecision(entity Entity, action Action, decision Decision)
}
