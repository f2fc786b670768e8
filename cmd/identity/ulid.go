package identity

import (
	"time"

	"github.com/karlocehulic19/messaging-app-sub000/cmd/identity/ids"
)

// NewUserID returns a new ULID user id (26-char string).
func NewUserID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
