package messages

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Directory answers whether a username is registered.
type Directory interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
}

// EventSink receives accepted messages. Errors are logged and never fail a send.
type EventSink interface {
	MessageCreated(ctx context.Context, m Message) error
}

// Service implements ingress, the mailbox drain and history paging over a Store.
type Service struct {
	store   Store
	cfg     Config
	dir     Directory
	events  EventSink
	metrics *Metrics
	log     *slog.Logger
	now     func() time.Time
	tracer  trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithDirectory enables the recipient existence check on send.
func WithDirectory(d Directory) Option { return func(s *Service) { s.dir = d } }

// WithEventSink publishes every accepted message to sink.
func WithEventSink(sink EventSink) Option { return func(s *Service) { s.events = sink } }

// WithMetrics records core counters on m.
func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the service logger.
func WithLogger(log *slog.Logger) Option { return func(s *Service) { s.log = log } }

// WithClock overrides the server clock used by the staleness check.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService constructs a Service around store.
func NewService(store Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cfg:    cfg.normalized(),
		log:    slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		tracer: otel.Tracer("messenger/messages"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// SendInput is an outgoing message. Caller is the authenticated username.
type SendInput struct {
	Sender          string
	Receiver        string
	Text            string
	ClientTimestamp time.Time
	Caller          string
}

// SendResult carries the stored message and the receiver's messages drained as a side effect.
type SendResult struct {
	Stored          Message
	NewFromReceiver []Message
}

// Send validates and stores a message, then drains the receiver->sender mailbox.
//
// Checks run in order: missing fields, caller identity, timestamp window,
// recipient existence. Nothing is written when any of them fails. The insert
// and the drain are separate atomic store operations.
func (s *Service) Send(ctx context.Context, in SendInput) (out SendResult, err error) {
	const op = "messages.Send"

	ctx, span := s.tracer.Start(ctx, op)
	defer func() { s.finish(span, err) }()

	if in.Sender == "" || in.Receiver == "" || in.Text == "" || in.ClientTimestamp.IsZero() {
		return SendResult{}, missing(op, "sender, receiver, message and clientTimestamp are required")
	}
	if in.Caller != in.Sender {
		return SendResult{}, unauthorized(op)
	}

	now := s.now()
	if age := now.Sub(in.ClientTimestamp); age > s.cfg.MaxClientDelay {
		return SendResult{}, OpError{Op: op, Kind: ErrStaleTimestamp, Msg: "client timestamp is " + age.Round(time.Millisecond).String() + " old"}
	}
	if lead := in.ClientTimestamp.Sub(now); lead > s.cfg.MaxClientLead {
		return SendResult{}, OpError{Op: op, Kind: ErrStaleTimestamp, Msg: "client timestamp is " + lead.Round(time.Millisecond).String() + " ahead"}
	}

	if s.dir != nil {
		ok, err := s.dir.ExistsByUsername(ctx, in.Receiver)
		if err != nil {
			return SendResult{}, storeFailure(op, err)
		}
		if !ok {
			return SendResult{}, OpError{Op: op, Kind: ErrRecipientNotFound}
		}
	}

	stored, err := s.store.Insert(ctx, InsertInput{
		Sender:   in.Sender,
		Receiver: in.Receiver,
		Text:     in.Text,
		Date:     in.ClientTimestamp,
	})
	if err != nil {
		return SendResult{}, storeFailure(op, err)
	}
	s.metrics.messageSent()
	s.publish(ctx, stored)

	drained, err := s.store.DrainUnopened(ctx, in.Receiver, in.Sender)
	if err != nil {
		return SendResult{}, storeFailure(op, err)
	}
	s.metrics.drained(len(drained))

	return SendResult{Stored: stored, NewFromReceiver: drained}, nil
}

// FetchNewInput asks for unopened messages from Sender (the partner) to Receiver (the caller).
type FetchNewInput struct {
	Sender   string
	Receiver string
	Caller   string
}

// FetchNew drains the Sender->Receiver mailbox. An empty, non-nil slice means nothing new.
func (s *Service) FetchNew(ctx context.Context, in FetchNewInput) (out []Message, err error) {
	const op = "messages.FetchNew"

	ctx, span := s.tracer.Start(ctx, op)
	defer func() { s.finish(span, err) }()

	if in.Sender == "" || in.Receiver == "" {
		return nil, missing(op, "sender and receiver are required")
	}
	if in.Caller != in.Receiver {
		return nil, unauthorized(op)
	}

	drained, err := s.store.DrainUnopened(ctx, in.Sender, in.Receiver)
	if err != nil {
		return nil, storeFailure(op, err)
	}
	s.metrics.drained(len(drained))
	span.SetAttributes(attribute.Int("messages.drained", len(drained)))

	if drained == nil {
		drained = []Message{}
	}
	return drained, nil
}

// FetchPageInput asks for one history page. Position is the raw client value;
// empty means page 1.
type FetchPageInput struct {
	User     string
	Partner  string
	Position string
	Caller   string
}

// FetchPage returns history page Position (1 = oldest) of the User/Partner conversation.
func (s *Service) FetchPage(ctx context.Context, in FetchPageInput) (out []Message, err error) {
	const op = "messages.FetchPage"

	ctx, span := s.tracer.Start(ctx, op)
	defer func() { s.finish(span, err) }()

	if in.User == "" || in.Partner == "" {
		return nil, missing(op, "user and partner are required")
	}
	if in.Caller != in.User {
		return nil, unauthorized(op)
	}

	pos, err := ParsePosition(in.Position)
	if err != nil {
		return nil, OpError{Op: op, Kind: ErrInvalidPage, Msg: err.Error()}
	}
	span.SetAttributes(attribute.Int("messages.position", pos))

	n := s.cfg.PageSize
	if pos-1 > (math.MaxInt32-n)/n {
		return []Message{}, nil
	}

	page, err := s.store.FetchConversation(ctx, ConversationQuery{
		User:    in.User,
		Partner: in.Partner,
		Skip:    (pos - 1) * n,
		Take:    n,
	})
	if err != nil {
		return nil, storeFailure(op, err)
	}
	if page == nil {
		page = []Message{}
	}
	return page, nil
}

// ParsePosition parses a 1-based page position. Empty and "0" mean page 1;
// negative or non-integer values are rejected.
func ParsePosition(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, strconv.ErrSyntax
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	if n == 0 {
		return 1, nil
	}
	return n, nil
}

func (s *Service) publish(ctx context.Context, m Message) {
	if s.events == nil {
		return
	}
	if err := s.events.MessageCreated(ctx, m); err != nil {
		s.log.Warn("messages.event.publish.fail", "err", err, "message_id", m.ID)
	}
}

func (s *Service) finish(span trace.Span, err error) {
	defer span.End()
	if err == nil {
		return
	}
	s.metrics.reject(err)
	if IsClientError(err) {
		span.SetAttributes(attribute.String("messages.rejected", err.Error()))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "store failure")
}
