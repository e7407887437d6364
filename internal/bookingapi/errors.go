package bookingapi

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable covers transport failures, 5xx and 429: the call may succeed if retried.
	ErrUnavailable = errors.New("booking service unavailable")

	// ErrNotFound is returned for 404 and for lookups that match nothing.
	ErrNotFound = errors.New("booking service: not found")

	// ErrRejected is returned when the service refuses the request (4xx other than 404/429).
	ErrRejected = errors.New("booking service: request rejected")

	// ErrDecode is returned when a 2xx response cannot be decoded.
	ErrDecode = errors.New("booking service: invalid response")
)

// StatusError carries the HTTP status of a failed call.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: http %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// IsRetryable reports whether err is worth retrying as is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
