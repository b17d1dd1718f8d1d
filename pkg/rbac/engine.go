package rbac

import (
	"time"

	"github.com/platinummonkey/fuelops/pkg/directory"
)

// DefaultRules returns the FuelOps rule table
func DefaultRules() []Rule {
	return []Rule{
		{CallerRole: directory.RoleServiceProvider, Entity: EntityOwner, Actions: AllActions, Scope: ScopeGlobalOrOwn},
		{CallerRole: directory.RoleServiceProvider, Entity: EntityStation, Actions: AllActions, Scope: ScopeGlobalOrOwn},
		{CallerRole: directory.RoleAdmin, Entity: EntityStation, Actions: []Action{ActionList, ActionCreate}, Scope: ScopeGlobalOrOwn},
		{CallerRole: directory.RoleOwner, Entity: EntityManager, Actions: AllActions, Scope: ScopeStation},
		{CallerRole: directory.RoleManager, Entity: EntityAccountant, Actions: AllActions, Scope: ScopeStation},
		{CallerRole: directory.RoleManager, Entity: EntityEmployee, Actions: AllActions, Scope: ScopeStation},
		{CallerRole: directory.RoleManager, Entity: EntityCustomer, Actions: AllActions, Scope: ScopeStation},
	}
}

// Engine evaluates the static rule table
type Engine struct {
	rules    map[directory.Role]map[Entity]Rule
	order    map[directory.Role][]Entity
	recorder Recorder
	now      func() time.Time
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithRecorder reports every decision to r
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// NewEngine builds an engine from rules. A later rule for the same
// role and entity replaces an earlier one.
func NewEngine(rules []Rule, opts ...EngineOption) *Engine {
	e := &Engine{
		rules: make(map[directory.Role]map[Entity]Rule),
		order: make(map[directory.Role][]Entity),
		now:   time.Now,
	}
	for _, rule := range rules {
		byEntity, ok := e.rules[rule.CallerRole]
		if !ok {
			byEntity = make(map[Entity]Rule)
			e.rules[rule.CallerRole] = byEntity
		}
		if _, seen := byEntity[rule.Entity]; !seen {
			e.order[rule.CallerRole] = append(e.order[rule.CallerRole], rule.Entity)
		}
		byEntity[rule.Entity] = rule
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Authorize decides whether caller may perform action on entity.
// target is required for update and delete and ignored for list.
func (e *Engine) Authorize(caller *Caller, entity Entity, action Action, target *Target) Decision {
	decision := e.evaluate(caller, entity, action, target)
	decision.CheckedAt = e.now()
	if e.recorder != nil {
		e.recorder.RecordDecision(entity, action, decision)
	}
	return decision
}

func (e *Engine) evaluate(caller *Caller, entity Entity, action Action, target *Target) Decision {
	if caller == nil {
		return deny(ReasonUnauthenticated)
	}

	rule, ok := e.rules[caller.Role][entity]
	if !ok || !rule.allows(action) {
		return deny(ReasonRoleForbidden)
	}

	if action == ActionList {
		return listDecision(rule, caller)
	}

	if target == nil {
		if action == ActionUpdate || action == ActionDelete {
			return deny(ReasonTargetNotFound)
		}
		target = &Target{}
	}

	if !scopeMatches(rule.Scope, caller.StationID, target.StationID) {
		return deny(ReasonScopeMismatch)
	}

	return Decision{Allowed: true}
}

func listDecision(rule Rule, caller *Caller) Decision {
	switch rule.Scope {
	case ScopeStation:
		if caller.StationID == nil {
			return Decision{Allowed: true, MatchNone: true}
		}
		return Decision{Allowed: true, Scope: caller.StationID}
	default:
		return Decision{Allowed: true, Scope: caller.StationID}
	}
}

func scopeMatches(scope Scope, callerStation, targetStation *string) bool {
	switch scope {
	case ScopeStation:
		return callerStation != nil && targetStation != nil && *callerStation == *targetStation
	case ScopeGlobalOrOwn:
		if callerStation == nil {
			return true
		}
		return targetStation != nil && *callerStation == *targetStation
	default:
		return false
	}
}

func deny(reason Reason) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Can reports whether role may perform action on entity at all, ignoring scope
func (e *Engine) Can(role directory.Role, entity Entity, action Action) bool {
	rule, ok := e.rules[role][entity]
	return ok && rule.allows(action)
}

// Entities lists the entities role may manage, in rule table order
func (e *Engine) Entities(role directory.Role) []Entity {
	entities := make([]Entity, len(e.order[role]))
	copy(entities, e.order[role])
	return entities
}
