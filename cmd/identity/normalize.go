package identity

import (
	"regexp"
	"strings"
)

const (
	usernameMinLen = 3
	usernameMaxLen = 32
)

var usernameRE = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// NormalizeUsername performs case-insensitive canonicalization used for uniqueness and lookups.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateUsername checks the registration rules for a username.
// The username is used verbatim as the message sender/receiver key.
func ValidateUsername(s string) error {
	const op = "identity.ValidateUsername"

	if s != strings.TrimSpace(s) {
		return invalid(op, "username must not have surrounding spaces")
	}
	if len(s) < usernameMinLen {
		return invalid(op, "username too short")
	}
	if len(s) > usernameMaxLen {
		return invalid(op, "username too long")
	}
	if !usernameRE.MatchString(s) {
		return invalid(op, "username has invalid characters")
	}
	return nil
}

// escapeLike escapes LIKE wildcards so a search prefix is matched literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
