// Package main provides a CI-friendly HTTP smoke test for a running messenger.
//
// It validates:
//   - register (or login) of two fresh users
//   - send -> empty newMessagesFromReceiver
//   - poll delivers once, then 204
//   - reply returns nothing new, partner's unread is drained by the reply path
//   - history page 1 contains both messages in order
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type smokeClient struct {
	base     string
	http     *http.Client
	username string
	token    string
}

type historyItem struct {
	Date     time.Time `json:"date"`
	Message  string    `json:"message"`
	Sender   string    `json:"sender"`
	Receiver string    `json:"receiver"`
}

func main() {
	var (
		baseURL = flag.String("url", "http://127.0.0.1:8080", "Server base URL")
		pass    = flag.String("password", "smoke-test-passphrase", "Password for the generated users")
		text    = flag.String("text", "hello from smoke", "Message text to send")
		timeout = flag.Duration("timeout", 7*time.Second, "Per-request timeout")
		verbose = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}

	hc := &http.Client{Timeout: *timeout}
	suffix := time.Now().UTC().Format("150405")
	a := mustRegister(hc, *baseURL, "smoke_a_"+suffix, *pass)
	b := mustRegister(hc, *baseURL, "smoke_b_"+suffix, *pass)
	if *verbose {
		fmt.Printf("registered: A=%s B=%s\n", a.username, b.username)
	}

	fresh := mustSend(a, b.username, *text)
	if len(fresh) != 0 {
		fatalf("send A->B: expected no unread from B, got %d", len(fresh))
	}

	got := mustPoll(b, a.username)
	if len(got) != 1 || got[0] != *text {
		fatalf("poll B<-A: got %v", got)
	}
	if again := mustPoll(b, a.username); len(again) != 0 {
		fatalf("poll B<-A: delivered twice: %v", again)
	}

	reply := "re: " + *text
	if fresh := mustSend(b, a.username, reply); len(fresh) != 0 {
		fatalf("send B->A: expected nothing unread from A, got %v", fresh)
	}
	if fresh := mustSend(a, b.username, "ok"); len(fresh) != 1 || fresh[0] != reply {
		fatalf("send A->B: expected B's reply in newMessagesFromReceiver, got %v", fresh)
	}

	hist := mustHistory(a, b.username, 1)
	if len(hist) < 2 || hist[0].Message != *text || hist[1].Message != reply {
		fatalf("history: unexpected page %+v", hist)
	}

	fmt.Printf("OK: A=%s B=%s history=%d\n", a.username, b.username, len(hist))
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func mustRegister(hc *http.Client, base, username, password string) *smokeClient {
	c := &smokeClient{base: strings.TrimRight(base, "/"), http: hc, username: username}

	var out struct {
		Session struct {
			AccessToken string `json:"access_token"`
		} `json:"session"`
	}
	body := map[string]string{"username": username, "password": password}
	status := c.do(http.MethodPost, "/users", body, &out)
	if status == http.StatusConflict {
		status = c.do(http.MethodPost, "/auth/login", body, &out)
	}
	if status != http.StatusCreated && status != http.StatusOK {
		fatalf("register %s: status %d", username, status)
	}
	if out.Session.AccessToken == "" {
		fatalf("register %s: empty access token", username)
	}
	c.token = out.Session.AccessToken
	return c
}

func mustSend(c *smokeClient, to, text string) []string {
	var out struct {
		New []struct {
			Message string `json:"message"`
		} `json:"newMessagesFromReceiver"`
	}
	status := c.do(http.MethodPost, "/messages", map[string]any{
		"sender":          c.username,
		"receiver":        to,
		"message":         text,
		"clientTimestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}, &out)
	if status != http.StatusOK {
		fatalf("send %s->%s: status %d", c.username, to, status)
	}
	texts := make([]string, len(out.New))
	for i, m := range out.New {
		texts[i] = m.Message
	}
	return texts
}

func mustPoll(c *smokeClient, from string) []string {
	var out []struct {
		Message string `json:"message"`
	}
	q := url.Values{"sender": {from}, "receiver": {c.username}}
	status := c.do(http.MethodGet, "/messages?"+q.Encode(), nil, &out)
	switch status {
	case http.StatusNoContent:
		return nil
	case http.StatusOK:
	default:
		fatalf("poll %s<-%s: status %d", c.username, from, status)
	}
	texts := make([]string, len(out))
	for i, m := range out {
		texts[i] = m.Message
	}
	return texts
}

func mustHistory(c *smokeClient, partner string, pos int) []historyItem {
	var out []historyItem
	q := url.Values{"user": {c.username}, "partner": {partner}, "pos": {fmt.Sprint(pos)}}
	if status := c.do(http.MethodGet, "/messages/old?"+q.Encode(), nil, &out); status != http.StatusOK {
		fatalf("history %s/%s: status %d", c.username, partner, status)
	}
	return out
}

// do sends one JSON request and decodes a 2xx body into out when present.
func (c *smokeClient) do(method, path string, body, out any) int {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, c.base+path, rdr)
	if err != nil {
		fatalf("request %s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode/100 == 2 && out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return resp.StatusCode
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
