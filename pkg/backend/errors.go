package backend

import (
	"fmt"
	"net/http"
	"strings"
)

// APIError is a failed call to the backend or the mapping provider.
// Its code follows the backend's vocabulary ("permission-denied",
// "unavailable", ...); mapping failures are prefixed with "maps/".
type APIError struct {
	Op      string
	Status  int
	ErrCode string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.ErrCode, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.ErrCode, msg)
}

// Code returns the backend error code.
func (e *APIError) Code() string { return e.ErrCode }

// Unwrap returns the transport error, if any.
func (e *APIError) Unwrap() error { return e.Err }

// codeForStatus maps an HTTP status to a backend error code.
func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return "permission-denied"
	case http.StatusNotFound:
		return "not-found"
	case http.StatusConflict:
		return "already-exists"
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return "deadline-exceeded"
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable:
		return "unavailable"
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "invalid-argument"
	default:
		if status >= 500 {
			return "internal"
		}
		return "unknown"
	}
}

// mapsCode turns a provider status ("ZERO_RESULTS", "OVER_QUERY_LIMIT")
// or a backend code into a "maps/..." code.
func mapsCode(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	if s == "" {
		s = "unknown"
	}
	return "maps/" + s
}
