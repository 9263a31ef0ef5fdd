package api

import (
	"context"
	"net/http"

	"practicum/pkg/types"
)

// Login exchanges credentials for a token pair and the user record.
func (c *Client) Login(ctx context.Context, creds types.Credentials) (*types.LoginResponse, error) {
	var resp types.LoginResponse
	err := c.do(ctx, request{method: http.MethodPost, base: c.authURL, path: "/login", body: creds}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account; it does not log the user in.
func (c *Client) Register(ctx context.Context, reg types.Registration) (*types.RegisterResponse, error) {
	var resp types.RegisterResponse
	err := c.do(ctx, request{method: http.MethodPost, base: c.authURL, path: "/register", body: reg}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh obtains a new access token, authenticating with the refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*types.RefreshResponse, error) {
	var resp types.RefreshResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		base:   c.authURL,
		path:   "/refresh",
		body:   struct{}{},
		bearer: refreshToken,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateProfile changes the current user's name and/or password.
func (c *Client) UpdateProfile(ctx context.Context, update types.ProfileUpdate) (*types.ProfileUpdateResponse, error) {
	var resp types.ProfileUpdateResponse
	err := c.do(ctx, request{method: http.MethodPut, base: c.authURL, path: "/profile", body: update, authorized: true}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}
