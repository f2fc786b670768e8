// Package identity is the user directory behind the messaging core and the auth API.
//
// It owns usernames and argon2id password hashes. Messages reference users by their
// canonical username, so this package is the authority on whether a conversation
// partner exists.
package identity
