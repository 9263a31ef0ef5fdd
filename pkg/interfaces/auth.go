package interfaces

import (
	"context"

	"practicum/pkg/types"
)

// AuthBackend is the subset of the auth service used by the session manager.
// None of these calls carry an access token or trigger renewal.
type AuthBackend interface {
	Login(ctx context.Context, creds types.Credentials) (*types.LoginResponse, error)
	Register(ctx context.Context, reg types.Registration) (*types.RegisterResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*types.RefreshResponse, error)
}

// TokenSource supplies the bearer token for authorized requests.
// FUNCTIONAL DISCOVERY: RenewAccessToken is only invoked after a 401 and
// must end the session itself when renewal fails
type TokenSource interface {
	AccessToken() string
	RenewAccessToken(ctx context.Context) (string, error)
}

// UserSource publishes "who is logged in"; observers get nil on logout.
type UserSource interface {
	CurrentUser() *types.User
	Subscribe(fn func(*types.User)) (cancel func())
}
