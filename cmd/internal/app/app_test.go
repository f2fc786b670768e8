package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestApp(t *testing.T) *httptest.Server {
	t.Helper()

	for k, v := range map[string]string{
		"MSG_DATABASE_URL":            "",
		"MSG_REDIS_ADDR":              "",
		"MSG_KAFKA_BROKERS":           "",
		"MSG_AUTH_JWT_SECRET":         "",
		"MSG_REQUIRE_JWT_SECRET":      "",
		"MSG_ARGON2_MEMORY_KIB":       "8192",
		"MSG_ARGON2_ITERATIONS":       "1",
		"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	} {
		t.Setenv(k, v)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), LoadConfig(), log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { a.closeAll(context.Background()) })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, tok string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
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
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, b
}

func registerUser(t *testing.T, srv *httptest.Server, name string) string {
	t.Helper()
	resp, body := call(t, srv, http.MethodPost, "/users", "", map[string]string{
		"username": name,
		"password": "a perfectly fine passphrase",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status=%d body=%s", name, resp.StatusCode, body)
	}
	var out struct {
		Session struct {
			AccessToken string `json:"access_token"`
		} `json:"session"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode register: %v", err)
	}
	return out.Session.AccessToken
}

func TestApp_EndToEndInMemory(t *testing.T) {
	srv := newTestApp(t)

	alice := registerUser(t, srv, "alice")
	bob := registerUser(t, srv, "bob")

	now := time.Now().UTC().Format(time.RFC3339Nano)
	resp, body := call(t, srv, http.MethodPost, "/messages", alice, map[string]any{
		"sender": "alice", "receiver": "bob", "message": "hi bob", "clientTimestamp": now,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send: status=%d body=%s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("security headers missing")
	}

	resp, body = call(t, srv, http.MethodPost, "/messages", alice, map[string]any{
		"sender": "alice", "receiver": "nobody", "message": "hello?", "clientTimestamp": now,
	})
	if resp.StatusCode != http.StatusNotFound || !strings.Contains(string(body), "Receiver not found") {
		t.Fatalf("unknown receiver: status=%d body=%s", resp.StatusCode, body)
	}

	resp, body = call(t, srv, http.MethodGet, "/messages?sender=alice&receiver=bob", bob, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "hi bob") {
		t.Fatalf("poll: status=%d body=%s", resp.StatusCode, body)
	}

	resp, body = call(t, srv, http.MethodGet, "/messages/old?user=bob&partner=alice", bob, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"sender":"alice"`) {
		t.Fatalf("history: status=%d body=%s", resp.StatusCode, body)
	}

	resp, body = call(t, srv, http.MethodGet, "/users?prefix=b", alice, nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"username":"bob"`) {
		t.Fatalf("search: status=%d body=%s", resp.StatusCode, body)
	}

	resp, body = call(t, srv, http.MethodGet, "/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: status=%d", resp.StatusCode)
	}
	for _, want := range []string{
		"messenger_messages_sent_total 1",
		`messenger_messages_rejected_total{reason="recipient_not_found"} 1`,
		`messenger_http_requests_total{class="2xx",method="POST",route="/messages"}`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestApp_Health(t *testing.T) {
	srv := newTestApp(t)

	resp, body := call(t, srv, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK || string(body) != "ok\n" {
		t.Fatalf("healthz: status=%d body=%q", resp.StatusCode, body)
	}
	resp, _ = call(t, srv, http.MethodGet, "/readyz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz without db: status=%d", resp.StatusCode)
	}
}

func TestApp_RequireJWTSecret(t *testing.T) {
	t.Setenv("MSG_DATABASE_URL", "")
	t.Setenv("MSG_AUTH_JWT_SECRET", "")
	t.Setenv("MSG_REQUIRE_JWT_SECRET", "true")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(context.Background(), LoadConfig(), log); err == nil {
		t.Fatalf("expected startup failure without JWT secret")
	}

	t.Setenv("MSG_AUTH_JWT_SECRET", "too-short")
	if _, err := New(context.Background(), LoadConfig(), log); err == nil {
		t.Fatalf("expected startup failure with short JWT secret")
	}
}
