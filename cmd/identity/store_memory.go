package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// InMemoryStore is the dev/test Store used when no database is configured.
type InMemoryStore struct {
	mu     sync.RWMutex
	byNorm map[string]UserAuth
}

// NewInMemoryStore constructs an empty in-memory directory.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byNorm: make(map[string]UserAuth)}
}

// CreateUser registers a user, rejecting case-insensitive duplicates.
func (s *InMemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if err := ValidateUsername(in.Username); err != nil {
		return User{}, err
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, invalid(op, "password hash is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := NewUserID(now)
	if err != nil {
		return User{}, err
	}

	norm := NormalizeUsername(in.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byNorm[norm]; ok {
		return User{}, ConflictError{Op: op, Field: "username"}
	}

	u := User{ID: id, Username: in.Username, CreatedAt: now}
	s.byNorm[norm] = UserAuth{User: u, PasswordHash: in.PasswordHash}
	return u, nil
}

// GetUserAuthByUsername returns the user and password hash for login.
func (s *InMemoryStore) GetUserAuthByUsername(ctx context.Context, username string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.RLock()
	ua, ok := s.byNorm[NormalizeUsername(username)]
	s.mu.RUnlock()

	if !ok {
		return UserAuth{}, notFound("identity.GetUserAuthByUsername")
	}
	return ua, nil
}

// ExistsByUsername reports whether username is a registered canonical username.
func (s *InMemoryStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	ua, ok := s.byNorm[NormalizeUsername(username)]
	s.mu.RUnlock()

	return ok && ua.User.Username == username, nil
}

// SearchByPrefix returns users whose username starts with prefix (case-insensitive), sorted by username.
func (s *InMemoryStore) SearchByPrefix(ctx context.Context, prefix string, limit int) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampSearchLimit(limit)
	p := NormalizeUsername(prefix)

	s.mu.RLock()
	out := make([]User, 0, limit)
	for norm, ua := range s.byNorm {
		if strings.HasPrefix(norm, p) {
			out = append(out, ua.User)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return NormalizeUsername(out[i].Username) < NormalizeUsername(out[j].Username)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
