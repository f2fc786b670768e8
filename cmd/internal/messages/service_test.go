package messages

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type setDirectory map[string]bool

func (d setDirectory) ExistsByUsername(_ context.Context, name string) (bool, error) {
	return d[name], nil
}

type recordingSink struct {
	mu   sync.Mutex
	got  []Message
	fail error
}

func (r *recordingSink) MessageCreated(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, m)
	return r.fail
}

type failingStore struct{ Store }

func (failingStore) Insert(context.Context, InsertInput) (Message, error) {
	return Message{}, errors.New("connection reset")
}

func newTestService(t *testing.T, opts ...Option) (*Service, *fakeClock) {
	t.Helper()
	clk := &fakeClock{now: t0}
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return NewService(NewInMemoryStore(), DefaultConfig(), opts...), clk
}

func mustSend(t *testing.T, s *Service, clk *fakeClock, from, to, text string) SendResult {
	t.Helper()
	res, err := s.Send(context.Background(), SendInput{
		Sender: from, Receiver: to, Text: text, ClientTimestamp: clk.Now(), Caller: from,
	})
	if err != nil {
		t.Fatalf("send %s->%s %q: %v", from, to, text, err)
	}
	return res
}

func texts(ms []Message) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Text
	}
	return out
}

func TestSend_ThenFetchNewOnce(t *testing.T) {
	s, clk := newTestService(t)
	ctx := context.Background()

	res := mustSend(t, s, clk, "alice", "bob", "hi")
	if len(res.NewFromReceiver) != 0 {
		t.Fatalf("expected no messages from bob, got %v", texts(res.NewFromReceiver))
	}
	if res.Stored.ID == 0 || res.Stored.Opened || !res.Stored.Date.Equal(t0) {
		t.Fatalf("unexpected stored message: %+v", res.Stored)
	}

	got, err := s.FetchNew(ctx, FetchNewInput{Sender: "alice", Receiver: "bob", Caller: "bob"})
	if err != nil {
		t.Fatalf("fetch new: %v", err)
	}
	if len(got) != 1 || got[0].Text != "hi" || !got[0].Opened {
		t.Fatalf("unexpected first poll: %+v", got)
	}

	got, err = s.FetchNew(ctx, FetchNewInput{Sender: "alice", Receiver: "bob", Caller: "bob"})
	if err != nil {
		t.Fatalf("fetch new: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("second poll must be empty non-nil, got %#v", got)
	}
}

func TestSend_StaleTimestampWritesNothing(t *testing.T) {
	s, clk := newTestService(t)
	ctx := context.Background()

	_, err := s.Send(ctx, SendInput{
		Sender: "alice", Receiver: "bob", Text: "late",
		ClientTimestamp: clk.Now().Add(-20 * time.Second), Caller: "alice",
	})
	if !errors.Is(err, ErrStaleTimestamp) {
		t.Fatalf("expected ErrStaleTimestamp, got %v", err)
	}

	page, err := s.FetchPage(ctx, FetchPageInput{User: "alice", Partner: "bob", Caller: "alice"})
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if len(page) != 0 {
		t.Fatalf("stale message must not be stored, got %v", texts(page))
	}
}

func TestSend_TimestampWindow(t *testing.T) {
	s, clk := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"exactly max delay", -10 * time.Second, true},
		{"just past max delay", -10*time.Second - time.Millisecond, false},
		{"small lead", 5 * time.Second, true},
		{"too far ahead", 11 * time.Second, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Send(ctx, SendInput{
				Sender: "alice", Receiver: "bob", Text: tc.name,
				ClientTimestamp: clk.Now().Add(tc.offset), Caller: "alice",
			})
			if tc.ok && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrStaleTimestamp) {
				t.Fatalf("expected ErrStaleTimestamp, got %v", err)
			}
		})
	}
}

func TestFetchPage_UnopenedPartnerMessagesHidden(t *testing.T) {
	s, clk := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		mustSend(t, s, clk, "alice", "bob", fmt.Sprintf("m%d", i))
		clk.Advance(time.Second)
	}

	bobView, err := s.FetchPage(ctx, FetchPageInput{User: "bob", Partner: "alice", Caller: "bob"})
	if err != nil {
		t.Fatalf("fetch page bob: %v", err)
	}
	if len(bobView) != 0 {
		t.Fatalf("bob must not see unopened messages, got %v", texts(bobView))
	}

	aliceView, err := s.FetchPage(ctx, FetchPageInput{User: "alice", Partner: "bob", Caller: "alice"})
	if err != nil {
		t.Fatalf("fetch page alice: %v", err)
	}
	if got := fmt.Sprint(texts(aliceView)); got != "[m0 m1 m2]" {
		t.Fatalf("alice view = %s", got)
	}

	if _, err := s.FetchNew(ctx, FetchNewInput{Sender: "alice", Receiver: "bob", Caller: "bob"}); err != nil {
		t.Fatalf("fetch new: %v", err)
	}
	bobView, _ = s.FetchPage(ctx, FetchPageInput{User: "bob", Partner: "alice", Caller: "bob"})
	if got := fmt.Sprint(texts(bobView)); got != "[m0 m1 m2]" {
		t.Fatalf("bob view after poll = %s", got)
	}
}

func TestFetchPage_OffsetFormula(t *testing.T) {
	s, clk := newTestService(t)
	ctx := context.Background()

	const n = 10
	for i := 0; i < n+4; i++ {
		mustSend(t, s, clk, "alice", "bob", fmt.Sprintf("m%02d", i))
		clk.Advance(time.Millisecond)
	}

	page := func(pos string) []string {
		t.Helper()
		got, err := s.FetchPage(ctx, FetchPageInput{User: "alice", Partner: "bob", Position: pos, Caller: "alice"})
		if err != nil {
			t.Fatalf("fetch page %q: %v", pos, err)
		}
		return texts(got)
	}

	first := page("")
	if len(first) != n || first[0] != "m00" || first[9] != "m09" {
		t.Fatalf("page 1 must hold the oldest %d, got %v", n, first)
	}
	if fmt.Sprint(page("1")) != fmt.Sprint(first) {
		t.Fatalf("explicit pos=1 differs from default")
	}
	if fmt.Sprint(page("0")) != fmt.Sprint(first) {
		t.Fatalf("pos=0 should clamp to page 1")
	}

	second := page("2")
	if fmt.Sprint(second) != "[m10 m11 m12 m13]" {
		t.Fatalf("pos=2 (skip 10) = %v", second)
	}

	// skip = (10-1)*10 = 90, past the end.
	if got := page("10"); len(got) != 0 {
		t.Fatalf("pos=10 must be empty, got %v", got)
	}
	if got := page("2147483647"); len(got) != 0 {
		t.Fatalf("huge pos must be empty, got %v", got)
	}

	// Determinism.
	if fmt.Sprint(page("1")) != fmt.Sprint(first) {
		t.Fatalf("page 1 changed between calls")
	}
}

func TestFetchPage_OrdersByDateThenID(t *testing.T) {
	s, clk := newTestService(t)
	ctx := context.Background()

	send := func(from, to, text string, at time.Time) {
		t.Helper()
		if _, err := s.Send(ctx, SendInput{Sender: from, Receiver: to, Text: text, ClientTimestamp: at, Caller: from}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	base := clk.Now()
	send("alice", "bob", "a-late", base)
	send("bob", "alice", "b-early", base.Add(-2*time.Second))
	send("alice", "bob", "a-tie-1", base.Add(-time.Second))
	send("alice", "bob", "a-tie-2", base.Add(-time.Second))

	got, err := s.FetchPage(ctx, FetchPageInput{User: "alice", Partner: "bob", Caller: "alice"})
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if fmt.Sprint(texts(got)) != "[b-early a-tie-1 a-tie-2 a-late]" {
		t.Fatalf("unexpected order: %v", texts(got))
	}
}

func TestSend_DrainsOppositeMailbox(t *testing.T) {
	s, clk := newTestService(t)
	ctx := context.Background()

	mustSend(t, s, clk, "bob", "alice", "b1")
	mustSend(t, s, clk, "bob", "alice", "b2")
	mustSend(t, s, clk, "carol", "alice", "c1")

	res := mustSend(t, s, clk, "alice", "bob", "a1")
	if fmt.Sprint(texts(res.NewFromReceiver)) != "[b1 b2]" {
		t.Fatalf("side drain = %v", texts(res.NewFromReceiver))
	}

	got, err := s.FetchNew(ctx, FetchNewInput{Sender: "bob", Receiver: "alice", Caller: "alice"})
	if err != nil || len(got) != 0 {
		t.Fatalf("bob's messages must already be opened: %v %v", texts(got), err)
	}
	got, _ = s.FetchNew(ctx, FetchNewInput{Sender: "carol", Receiver: "alice", Caller: "alice"})
	if fmt.Sprint(texts(got)) != "[c1]" {
		t.Fatalf("carol's mailbox must be untouched by the side drain, got %v", texts(got))
	}
}

func TestFetchNew_ConcurrentPollsDeliverOnce(t *testing.T) {
	s, clk := newTestService(t)
	ctx := context.Background()

	const total = 200
	for i := 0; i < total; i++ {
		mustSend(t, s, clk, "alice", "bob", fmt.Sprintf("m%d", i))
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]int)
	)
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				got, err := s.FetchNew(ctx, FetchNewInput{Sender: "alice", Receiver: "bob", Caller: "bob"})
				if err != nil {
					t.Errorf("fetch new: %v", err)
					return
				}
				mu.Lock()
				for _, m := range got {
					seen[m.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("expected %d distinct messages, got %d", total, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("message %d delivered %d times", id, n)
		}
	}
}

func TestAuthorization(t *testing.T) {
	s, clk := newTestService(t)
	ctx := context.Background()

	_, err := s.Send(ctx, SendInput{Sender: "alice", Receiver: "bob", Text: "x", ClientTimestamp: clk.Now(), Caller: "mallory"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("send: expected ErrUnauthorized, got %v", err)
	}
	_, err = s.FetchNew(ctx, FetchNewInput{Sender: "alice", Receiver: "bob", Caller: "alice"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("fetch new: expected ErrUnauthorized, got %v", err)
	}
	_, err = s.FetchPage(ctx, FetchPageInput{User: "alice", Partner: "ghost", Caller: "bob"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("fetch page: expected ErrUnauthorized, got %v", err)
	}

	page, _ := s.FetchPage(ctx, FetchPageInput{User: "alice", Partner: "bob", Caller: "alice"})
	if len(page) != 0 {
		t.Fatalf("unauthorized send must not write, got %v", texts(page))
	}
}

func TestValidationOrder(t *testing.T) {
	s, clk := newTestService(t)
	ctx := context.Background()

	// Missing fields win over a caller mismatch and a stale timestamp.
	_, err := s.Send(ctx, SendInput{Sender: "alice", Receiver: "bob", ClientTimestamp: clk.Now().Add(-time.Hour), Caller: "mallory"})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	_, err = s.Send(ctx, SendInput{Sender: "alice", Receiver: "bob", Text: "x", Caller: "alice"})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("zero timestamp: expected ErrMissingField, got %v", err)
	}
	// Caller mismatch wins over a stale timestamp.
	_, err = s.Send(ctx, SendInput{Sender: "alice", Receiver: "bob", Text: "x", ClientTimestamp: clk.Now().Add(-time.Hour), Caller: "bob"})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	_, err = s.FetchNew(ctx, FetchNewInput{Receiver: "bob", Caller: "mallory"})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("fetch new: expected ErrMissingField, got %v", err)
	}
	_, err = s.FetchPage(ctx, FetchPageInput{User: "alice", Position: "x", Caller: "alice"})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("fetch page: expected ErrMissingField, got %v", err)
	}
	_, err = s.FetchPage(ctx, FetchPageInput{User: "alice", Partner: "bob", Position: "abc", Caller: "alice"})
	if !errors.Is(err, ErrInvalidPage) {
		t.Fatalf("fetch page: expected ErrInvalidPage, got %v", err)
	}
}

func TestSend_RecipientDirectory(t *testing.T) {
	s, clk := newTestService(t, WithDirectory(setDirectory{"alice": true, "bob": true}))
	ctx := context.Background()

	_, err := s.Send(ctx, SendInput{Sender: "alice", Receiver: "ghost", Text: "x", ClientTimestamp: clk.Now(), Caller: "alice"})
	if !errors.Is(err, ErrRecipientNotFound) {
		t.Fatalf("expected ErrRecipientNotFound, got %v", err)
	}
	mustSend(t, s, clk, "alice", "bob", "ok")
}

func TestSend_EventSinkFailureDoesNotFailSend(t *testing.T) {
	sink := &recordingSink{fail: errors.New("broker down")}
	s, clk := newTestService(t, WithEventSink(sink))

	res := mustSend(t, s, clk, "alice", "bob", "hello")
	if len(sink.got) != 1 || sink.got[0].ID != res.Stored.ID {
		t.Fatalf("sink did not receive the stored message: %+v", sink.got)
	}
}

func TestSend_StoreFailureIsOpaque(t *testing.T) {
	clk := &fakeClock{now: t0}
	s := NewService(failingStore{NewInMemoryStore()}, DefaultConfig(), WithClock(clk.Now))

	_, err := s.Send(context.Background(), SendInput{Sender: "alice", Receiver: "bob", Text: "x", ClientTimestamp: t0, Caller: "alice"})
	if !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
	if IsClientError(err) {
		t.Fatalf("store failure must not be a client error")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s, clk := newTestService(t, WithMetrics(m))
	ctx := context.Background()

	mustSend(t, s, clk, "alice", "bob", "1")
	mustSend(t, s, clk, "alice", "bob", "2")
	_, _ = s.FetchNew(ctx, FetchNewInput{Sender: "alice", Receiver: "bob", Caller: "bob"})
	_, _ = s.FetchNew(ctx, FetchNewInput{Sender: "alice", Receiver: "bob", Caller: "eve"})

	rec := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"messenger_messages_sent_total 2",
		"messenger_messages_delivered_total 2",
		`messenger_messages_rejected_total{reason="unauthorized"} 1`,
		"messenger_messages_drain_batch_size_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}

func TestParsePosition(t *testing.T) {
	cases := []struct {
		in   string
		want int
		err  bool
	}{
		{"", 1, false},
		{"0", 1, false},
		{"1", 1, false},
		{" 7 ", 7, false},
		{"-1", 0, true},
		{"1.5", 0, true},
		{"two", 0, true},
	}
	for _, tc := range cases {
		got, err := ParsePosition(tc.in)
		if (err != nil) != tc.err || got != tc.want {
			t.Fatalf("ParsePosition(%q) = %d, %v", tc.in, got, err)
		}
	}
}
