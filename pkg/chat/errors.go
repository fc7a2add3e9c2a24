package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrStatus marks a non-2xx reply from the endpoint.
	ErrStatus = errors.New("unexpected status")
	// ErrEmptyReply marks a reply without a first choice message content.
	ErrEmptyReply = errors.New("reply missing completion content")
)

// TransportError reports a failed chat round trip.
type TransportError struct {
	Op         string // "request", "status" or "decode"
	Endpoint   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("chat %s %s (%d): %s", e.Op, e.Endpoint, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("chat %s %s (%d): %v", e.Op, e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("chat %s %s: %v", e.Op, e.Endpoint, e.Err)
}

// Unwrap returns the underlying error for errors.Is and errors.As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is or wraps a *TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
