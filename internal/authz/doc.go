// Package authz decides whether an authenticated caller may use a route.
//
// Policies are CEL expressions over three variables:
//
//	identity  map  {"id", "role", "name", "email"} of the caller
//	params    map  path parameters of the matched route
//	method    string  HTTP method
//
// An expression must evaluate to a bool. Require turns a policy into a
// router middleware answering 403 when it evaluates to false or fails.
package authz
