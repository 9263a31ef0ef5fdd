package session

import "errors"

var (
	// ErrRenewalFailed is terminal: the session has been logged out.
	ErrRenewalFailed    = errors.New("access token renewal failed")
	ErrNoRefreshToken   = errors.New("no refresh token")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNilUser          = errors.New("user cannot be nil")
	ErrMalformedLogin   = errors.New("login response is missing tokens or user")
)
