package authapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/karlocehulic19/messaging-app-sub000/cmd/identity"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/ratelimit"
)

// checkLoginThrottle counts every login attempt against the normalized username.
// Limiter errors fail open.
func (h *Handler) checkLoginThrottle(ctx context.Context, username string, now time.Time) (bool, time.Duration) {
	if h.loginLimiter == nil {
		return false, 0
	}
	d, err := h.loginLimiter.Allow(ctx, "login:"+identity.NormalizeUsername(username), now)
	if err != nil {
		h.log.Warn("auth.login.throttle.fail", "err", err)
		return false, 0
	}
	if d.Allowed {
		return false, 0
	}
	return true, d.RetryAfter
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(ratelimit.Decision{RetryAfter: retryAfter}.RetryAfterSeconds()))
	writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
