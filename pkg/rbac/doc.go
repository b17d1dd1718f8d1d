// Package rbac is the FuelOps authorization rule engine.
//
// # Overview
//
// Every lifecycle operation is an (entity, action) pair performed by a caller
// whose role and station come from the caller's own directory row. A single
// static rule table decides which caller roles may act on which entities and
// how the station scope is applied:
//
//	SERVICE_PROVIDER  OWNER, STATION                 global, or own station if set
//	ADMIN             STATION (list, create)         global, or own station if set
//	OWNER             MANAGER                        target station == caller station
//	MANAGER           ACCOUNTANT, EMPLOYEE, CUSTOMER target station == caller station
//
// # Evaluation order
//
//  1. No caller: DENY(UNAUTHENTICATED)
//  2. Role not in the table for entity/action: DENY(ROLE_FORBIDDEN)
//  3. Update/delete without a loaded target: DENY(TARGET_NOT_FOUND)
//  4. Station scope mismatch: DENY(SCOPE_MISMATCH)
//
// Role membership is always checked before scope, so a manager deleting a
// manager is told ROLE_FORBIDDEN even when the stations match.
//
// For list actions the scope is a filter rather than a gate; the allowed
// decision carries the station the listing must be restricted to.
//
// # Usage
//
//	engine := rbac.NewEngine(rbac.DefaultRules())
//	decision := engine.Authorize(caller, rbac.EntityManager, rbac.ActionDelete, &rbac.Target{StationID: row.StationID})
//	if !decision.Allowed {
//		return decision.Reason
//	}
package rbac
