package messages

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, stable for errors.Is and for HTTP status mapping.
var (
	ErrMissingField      = errors.New("missing_field")
	ErrInvalidPage       = errors.New("invalid_page")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrStaleTimestamp    = errors.New("stale_timestamp")
	ErrRecipientNotFound = errors.New("recipient_not_found")
	ErrStore             = errors.New("store_failure")
)

// OpError is a typed operation error. Err carries the underlying cause for
// store failures and is never shown to clients.
type OpError struct {
	Op   string
	Kind error
	Msg  string
	Err  error
}

func (e OpError) Error() string {
	s := e.Op + ": " + e.Kind.Error()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s = fmt.Sprintf("%s: %v", s, e.Err)
	}
	return s
}

func (e OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func missing(op, msg string) error { return OpError{Op: op, Kind: ErrMissingField, Msg: msg} }

func unauthorized(op string) error { return OpError{Op: op, Kind: ErrUnauthorized} }

func storeFailure(op string, err error) error {
	var oe OpError
	if errors.As(err, &oe) && errors.Is(oe.Kind, ErrRecipientNotFound) {
		return OpError{Op: op, Kind: ErrRecipientNotFound, Err: err}
	}
	return OpError{Op: op, Kind: ErrStore, Err: err}
}

// IsClientError reports whether err is caused by the request rather than the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInvalidPage) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrStaleTimestamp) ||
		errors.Is(err, ErrRecipientNotFound)
}
