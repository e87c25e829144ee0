// Package validator provides rule-based validation of request input.
//
// A Rule pairs a check with the error reported when the check fails. Apply
// runs rules in order and collects every failure into ValidationErrors:
//
//	err := validator.Apply(
//		validator.RequiredString("userId", req.UserID),
//		validator.ValidEmail("email", req.Email),
//	)
//
// Format rules such as ValidEmail accept the empty string so they can be
// combined with RequiredString without reporting a field twice.
package validator
