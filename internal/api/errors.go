package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionExpired means renewal failed and the session was ended;
	// the caller should send the user back to login.
	ErrSessionExpired = errors.New("session expired")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrNetwork        = errors.New("network error")
	ErrNoTokenSource  = errors.New("no token source configured")
)

// APIError is a non-2xx response from the platform.
// FUNCTIONAL DISCOVERY: Services answer errors as {"msg": "..."}; Message holds
// that text verbatim so views can show it without translation
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api error %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets callers match status classes with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// DisplayMessage returns the backend message when there is one, else fallback.
func DisplayMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}
