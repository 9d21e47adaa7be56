// Package users manages accounts in the key-value store.
//
// A user record lives under ("users", id) and a uniqueness index under
// ("users_by_email", email). The index is claimed first with a
// create-only compare-and-swap, so two concurrent sign-ups with the same
// email cannot both succeed even across processes. Password hashes are
// bcrypt and never leave the package: handlers only see PublicUser.
package users
