package authapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/karlocehulic19/messaging-app-sub000/cmd/identity"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/auth/session"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/ratelimit"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/security/password"
)

// Handler wires HTTP auth endpoints to the identity directory and token manager.
type Handler struct {
	log *slog.Logger
	cfg Config

	users     identity.Store
	tokens    session.AccessTokenManager
	passwords password.Config

	loginLimiter ratelimit.Limiter
	now          func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithLoginLimiter throttles login attempts per username.
func WithLoginLimiter(l ratelimit.Limiter) HandlerOption {
	return func(h *Handler) {
		if h == nil || l == nil {
			return
		}
		h.loginLimiter = l
	}
}

// WithClock overrides the wall clock used for token issuance.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, users identity.Store, tokens session.AccessTokenManager, pw password.Config, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil {
		return nil, errors.New("auth: nil identity store")
	}
	if tokens == nil {
		return nil, errors.New("auth: nil token manager")
	}

	h := &Handler{
		log:       log,
		cfg:       cfg.normalized(),
		users:     users,
		tokens:    tokens,
		passwords: pw,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/users", h.handleUsers)
	mux.HandleFunc("/auth/login", h.handleLogin)
	mux.HandleFunc("/me", h.handleMe)
}

// ---- handlers ----

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleRegister(w, r)
	case http.MethodGet:
		h.handleSearch(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	if err := identity.ValidateUsername(req.Username); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_username", "username must be 3-32 characters of letters, digits, '_', '.' or '-'")
		return
	}

	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort):
			writeError(w, http.StatusBadRequest, "password_too_short", "password is too short")
		case errors.Is(err, password.ErrPasswordTooLong):
			writeError(w, http.StatusBadRequest, "password_too_long", "password is too long")
		case errors.Is(err, password.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "password_too_weak", "password is too weak")
		default:
			h.log.Error("auth.register.hash.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	ctx := r.Context()
	now := h.now()

	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Username:     req.Username,
		PasswordHash: hash,
		Now:          now,
	})
	if err != nil {
		switch {
		case identity.IsConflict(err):
			writeError(w, http.StatusConflict, "username_taken", "username is already taken")
		case identity.IsInvalidInput(err):
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid registration")
		default:
			h.log.Error("auth.register.create.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	tok, exp, err := h.tokens.Issue(u.ID, u.Username, now)
	if err != nil {
		h.log.Error("auth.register.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("auth.register.ok", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, loginResponse{
		User:    toUserResponse(u),
		Session: sessionResponse{AccessToken: tok, AccessExpiresAt: exp},
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	ctx := r.Context()
	now := h.now()

	if blocked, retryAfter := h.checkLoginThrottle(ctx, username, now); blocked {
		writeRateLimited(w, retryAfter)
		return
	}

	ua, err := h.users.GetUserAuthByUsername(ctx, username)
	if err != nil {
		if !identity.IsNotFound(err) {
			h.log.Error("auth.login.lookup.fail", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		// Timing resistance: spend a verify worth of work for unknown users.
		h.passwords.Burn(req.Password)
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}

	ok, err := h.passwords.Verify(ua.PasswordHash, req.Password)
	if err != nil {
		h.log.Error("auth.login.verify.fail", "err", err, "user_id", ua.User.ID)
	}
	if err != nil || !ok {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
		return
	}
	if h.passwords.NeedsRehash(ua.PasswordHash) {
		h.log.Info("auth.login.rehash_needed", "user_id", ua.User.ID)
	}

	tok, exp, err := h.tokens.Issue(ua.User.ID, ua.User.Username, now)
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		User:    toUserResponse(ua.User),
		Session: sessionResponse{AccessToken: tok, AccessExpiresAt: exp},
	})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	prefix := strings.TrimSpace(r.URL.Query().Get("prefix"))
	if prefix == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "prefix is required")
		return
	}

	// One extra row so the caller's own entry can be dropped without shrinking the page.
	found, err := h.users.SearchByPrefix(r.Context(), prefix, h.cfg.SearchLimit+1)
	if err != nil {
		h.log.Error("auth.users.search.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	out := make([]userResponse, 0, len(found))
	for _, u := range found {
		if u.Username == claims.Username {
			continue
		}
		if len(out) == h.cfg.SearchLimit {
			break
		}
		out = append(out, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, searchResponse{Users: out})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: userResponse{ID: claims.UserID, Username: claims.Username}})
}

// ---- helpers ----

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.Claims, bool) {
	claims, err := session.Authenticate(h.tokens, r, h.now())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid access token")
		return session.Claims{}, false
	}
	return claims, true
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{ID: u.ID, Username: u.Username, CreatedAt: u.CreatedAt}
}
