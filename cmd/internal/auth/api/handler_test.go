package authapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/karlocehulic19/messaging-app-sub000/cmd/identity"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/auth/session"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/ratelimit"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/security/password"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const testPassword = "correct horse battery"

func cheapPasswords() password.Config {
	pw := password.DefaultConfig()
	pw.Params.MemoryKiB = 64
	pw.Params.Iterations = 1
	return pw
}

func newTestServer(t *testing.T, opts ...HandlerOption) *httptest.Server {
	t.Helper()

	scfg := session.DefaultConfig()
	scfg.Secret = []byte("0123456789abcdef0123456789abcdef")
	tm, err := session.NewJWTManager(scfg)
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	opts = append([]HandlerOption{WithClock(func() time.Time { return testNow })}, opts...)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	h, err := NewHandler(log, Config{}, identity.NewInMemoryStore(), tm, cheapPasswords(), opts...)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path, tok string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			rdr = strings.NewReader(s)
		} else {
			raw, err := json.Marshal(body)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			rdr = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectCode(t *testing.T, resp *http.Response, status int, code string) {
	t.Helper()
	if resp.StatusCode != status {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status=%d want %d body=%s", resp.StatusCode, status, b)
	}
	if code == "" {
		return
	}
	got := decode[errorResponse](t, resp)
	if got.Error.Code != code {
		t.Fatalf("code=%q want %q", got.Error.Code, code)
	}
}

func mustRegister(t *testing.T, srv *httptest.Server, username string) loginResponse {
	t.Helper()
	resp := doJSON(t, srv, http.MethodPost, "/users", "", registerRequest{Username: username, Password: testPassword})
	expectCode(t, resp, http.StatusCreated, "")
	return decode[loginResponse](t, resp)
}

func TestRegisterAndLogin(t *testing.T) {
	srv := newTestServer(t)

	reg := mustRegister(t, srv, "Alice")
	if reg.User.ID == "" || reg.User.Username != "Alice" || reg.Session.AccessToken == "" {
		t.Fatalf("register response=%+v", reg)
	}

	// Login is case-insensitive and returns the canonical username.
	resp := doJSON(t, srv, http.MethodPost, "/auth/login", "", loginRequest{Username: "alice", Password: testPassword})
	expectCode(t, resp, http.StatusOK, "")
	lr := decode[loginResponse](t, resp)
	if lr.User.Username != "Alice" || lr.User.ID != reg.User.ID {
		t.Fatalf("login user=%+v", lr.User)
	}
	if !lr.Session.AccessExpiresAt.Equal(testNow.Add(24 * time.Hour)) {
		t.Fatalf("expires=%v", lr.Session.AccessExpiresAt)
	}

	resp = doJSON(t, srv, http.MethodGet, "/me", lr.Session.AccessToken, nil)
	expectCode(t, resp, http.StatusOK, "")
	if me := decode[meResponse](t, resp); me.User.Username != "Alice" || me.User.ID != reg.User.ID {
		t.Fatalf("me=%+v", me)
	}
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)
	mustRegister(t, srv, "bob")

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"bad json", "{", http.StatusBadRequest, "invalid_json"},
		{"unknown field", `{"username":"x","password":"y","admin":true}`, http.StatusBadRequest, "invalid_json"},
		{"short username", registerRequest{Username: "ab", Password: testPassword}, http.StatusBadRequest, "invalid_username"},
		{"bad chars", registerRequest{Username: "a b c", Password: testPassword}, http.StatusBadRequest, "invalid_username"},
		{"short password", registerRequest{Username: "carol", Password: "short"}, http.StatusBadRequest, "password_too_short"},
		{"weak password", registerRequest{Username: "carol", Password: "password123"}, http.StatusBadRequest, "password_too_weak"},
		{"duplicate", registerRequest{Username: "BOB", Password: testPassword}, http.StatusConflict, "username_taken"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, srv, http.MethodPost, "/users", "", tc.body)
			expectCode(t, resp, tc.status, tc.code)
		})
	}
}

func TestLoginUniformFailure(t *testing.T) {
	srv := newTestServer(t)
	mustRegister(t, srv, "alice")

	resp := doJSON(t, srv, http.MethodPost, "/auth/login", "", loginRequest{Username: "alice", Password: "wrong password!"})
	expectCode(t, resp, http.StatusUnauthorized, "invalid_credentials")

	resp = doJSON(t, srv, http.MethodPost, "/auth/login", "", loginRequest{Username: "nobody", Password: testPassword})
	expectCode(t, resp, http.StatusUnauthorized, "invalid_credentials")

	resp = doJSON(t, srv, http.MethodPost, "/auth/login", "", loginRequest{Username: "alice"})
	expectCode(t, resp, http.StatusBadRequest, "invalid_request")

	resp = doJSON(t, srv, http.MethodGet, "/auth/login", "", nil)
	expectCode(t, resp, http.StatusMethodNotAllowed, "")
}

func TestLoginThrottled(t *testing.T) {
	lim := ratelimit.NewMemoryLimiter(ratelimit.Config{Events: 2, Window: time.Minute})
	srv := newTestServer(t, WithLoginLimiter(lim))

	for i := 0; i < 2; i++ {
		resp := doJSON(t, srv, http.MethodPost, "/auth/login", "", loginRequest{Username: "ghost", Password: testPassword})
		expectCode(t, resp, http.StatusUnauthorized, "invalid_credentials")
	}
	// Throttle key is case-insensitive.
	resp := doJSON(t, srv, http.MethodPost, "/auth/login", "", loginRequest{Username: "GHOST", Password: testPassword})
	expectCode(t, resp, http.StatusTooManyRequests, "rate_limited")
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}

func TestSearchExcludesCaller(t *testing.T) {
	srv := newTestServer(t)
	alice := mustRegister(t, srv, "alice")
	mustRegister(t, srv, "alina")
	mustRegister(t, srv, "albert")
	mustRegister(t, srv, "bob")

	resp := doJSON(t, srv, http.MethodGet, "/users?prefix=AL", alice.Session.AccessToken, nil)
	expectCode(t, resp, http.StatusOK, "")
	got := decode[searchResponse](t, resp)

	var names []string
	for _, u := range got.Users {
		names = append(names, u.Username)
	}
	if strings.Join(names, ",") != "albert,alina" {
		t.Fatalf("users=%v", names)
	}
}

func TestSearchRequiresAuthAndPrefix(t *testing.T) {
	srv := newTestServer(t)
	alice := mustRegister(t, srv, "alice")

	resp := doJSON(t, srv, http.MethodGet, "/users?prefix=a", "", nil)
	expectCode(t, resp, http.StatusUnauthorized, "unauthorized")

	resp = doJSON(t, srv, http.MethodGet, "/users", alice.Session.AccessToken, nil)
	expectCode(t, resp, http.StatusBadRequest, "invalid_request")

	resp = doJSON(t, srv, http.MethodDelete, "/users", alice.Session.AccessToken, nil)
	expectCode(t, resp, http.StatusMethodNotAllowed, "")
}

func TestMeRejectsBadToken(t *testing.T) {
	srv := newTestServer(t)

	resp := doJSON(t, srv, http.MethodGet, "/me", "not-a-token", nil)
	expectCode(t, resp, http.StatusUnauthorized, "unauthorized")
}
