// Package apikeys issues one API key per user.
//
// Three store entries describe a key and are kept consistent:
//
//	("keys_by_user", userID) -> key ID
//	("keys", keyID)          -> APIKey record
//	("keys_by_key", key)     -> user ID
//
// The user pointer is the source of truth. Issuing a key writes the record
// and reverse index first, then swaps the pointer with compare-and-swap;
// the previous key's entries are removed afterwards.
package apikeys
