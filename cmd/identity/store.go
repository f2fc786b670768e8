package identity

import (
	"context"
	"time"
)

// User is a registered account. Username is the canonical, case-preserving handle
// that messages are keyed by.
type User struct {
	ID        string
	Username  string
	CreatedAt time.Time
}

// UserAuth pairs a user with its stored password hash (login path only).
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a registration. PasswordHash is an already-encoded argon2id hash.
type CreateUserInput struct {
	Username     string
	PasswordHash string
	Now          time.Time
}

// Store is the identity persistence boundary.
//
// Lookups by username for login are case-insensitive. ExistsByUsername matches the
// canonical username exactly, because message rows carry it verbatim.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	SearchByPrefix(ctx context.Context, prefix string, limit int) ([]User, error)
}

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

func clampSearchLimit(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	if limit > maxSearchLimit {
		return maxSearchLimit
	}
	return limit
}
