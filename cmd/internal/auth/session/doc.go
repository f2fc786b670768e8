// Package session issues and verifies the bearer access tokens that identify
// the acting user on every authenticated request.
//
// Tokens are HS256 JWTs. The "sub" claim carries the canonical username,
// which is what message rows reference; "uid" carries the ULID user id.
package session
