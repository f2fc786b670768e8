package msgapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/auth/session"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/messages"
	"github.com/karlocehulic19/messaging-app-sub000/cmd/internal/ratelimit"
)

// Handler maps the messages core onto HTTP.
type Handler struct {
	log     *slog.Logger
	cfg     Config
	svc     *messages.Service
	tokens  session.AccessTokenManager
	limiter ratelimit.Limiter
	now     func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithLimiter enables per-caller rate limiting.
func WithLimiter(l ratelimit.Limiter) HandlerOption {
	return func(h *Handler) { h.limiter = l }
}

// NewHandler constructs a messages Handler.
func NewHandler(log *slog.Logger, cfg Config, svc *messages.Service, tokens session.AccessTokenManager, opts ...HandlerOption) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	h := &Handler{
		log:    log,
		cfg:    cfg,
		svc:    svc,
		tokens: tokens,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Register wires message routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/messages", h.handleMessages)
	mux.HandleFunc("/messages/old", h.handleHistory)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSend(w, r)
	case http.MethodGet:
		h.handleFetchNew(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req sendRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := h.svc.Send(r.Context(), messages.SendInput{
		Sender:          req.Sender,
		Receiver:        req.Receiver,
		Text:            req.Message,
		ClientTimestamp: req.ClientTimestamp.Time,
		Caller:          claims.Username,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{NewMessagesFromReceiver: toMessageViews(res.NewFromReceiver)})
}

func (h *Handler) handleFetchNew(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.authorize(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	got, err := h.svc.FetchNew(r.Context(), messages.FetchNewInput{
		Sender:   q.Get("sender"),
		Receiver: q.Get("receiver"),
		Caller:   claims.Username,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if len(got) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toMessageViews(got))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := h.authorize(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	page, err := h.svc.FetchPage(r.Context(), messages.FetchPageInput{
		User:     q.Get("user"),
		Partner:  q.Get("partner"),
		Position: q.Get("pos"),
		Caller:   claims.Username,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toHistoryViews(page))
}

// authorize verifies the bearer token and applies the caller's rate limit.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (session.Claims, bool) {
	now := h.now()

	claims, err := session.Authenticate(h.tokens, r, now)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return session.Claims{}, false
	}

	if h.limiter != nil {
		d, err := h.limiter.Allow(r.Context(), "messages:"+claims.Username, now)
		switch {
		case err != nil:
			// Fail open: a limiter outage must not take messaging down.
			h.log.Warn("messages.ratelimit.fail", "err", err)
		case !d.Allowed:
			w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return session.Claims{}, false
		}
	}
	return claims, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var oe messages.OpError
	switch {
	case errors.Is(err, messages.ErrMissingField):
		msg := "Missing required fields"
		if errors.As(err, &oe) && oe.Msg != "" {
			msg = oe.Msg
		}
		writeError(w, http.StatusBadRequest, msg)
	case errors.Is(err, messages.ErrInvalidPage):
		writeError(w, http.StatusBadRequest, "Invalid page position")
	case errors.Is(err, messages.ErrStaleTimestamp):
		writeError(w, http.StatusBadRequest, "Client timestamp delay is too big")
	case errors.Is(err, messages.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, messages.ErrRecipientNotFound):
		writeError(w, http.StatusNotFound, "Receiver not found")
	default:
		h.log.Error("messages.request.fail", "err", err, "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
