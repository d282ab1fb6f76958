package fetch

import (
	"fmt"
	"net/http"
)

// Error is a classified fetch failure. Transient failures (timeouts,
// connection errors, 5xx, 408, 429) are retried; permanent ones (404,
// malformed URL) are reported without retrying.
type Error struct {
	URL       string
	Status    int
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Status > 0 {
		return fmt.Sprintf("fetch %s: http %d (%s)", e.URL, e.Status, kind)
	}
	return fmt.Sprintf("fetch %s: %v (%s)", e.URL, e.Err, kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func transientStatus(code int) bool {
	switch {
	case code >= 500:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}
