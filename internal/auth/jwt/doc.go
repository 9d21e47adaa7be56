// Package jwt issues and verifies the bearer tokens handed out at login.
//
// Tokens are HS256-signed JWTs carrying the user's ID in a "userId" claim
// plus the standard iss, iat and exp claims. The signing key comes from a
// KeySource so it can be held in Vault instead of the environment.
package jwt
