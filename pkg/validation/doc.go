// Package validation checks user-supplied fields before they reach the
// directory or the identity provider.
//
// # Rules
//
//   - Required: the value must be non-empty after trimming whitespace
//   - Email: the value must look like local@domain.tld
//   - OneOf: the value must belong to a closed set, such as the roles a
//     lifecycle kind accepts
//
// # Usage Example
//
//	v := validation.NewValidator()
//	v.Required("email", in.Email).
//		Required("name", in.Name).
//		Email("email", in.Email)
//	if err := v.Err(); err != nil {
//		// err is a *validation.ValidationError carrying the first failure
//	}
//
// Each rule carries the message shown to the caller, so the first failing
// rule decides what the user sees. Rules are evaluated in call order.
package validation
