package platformtest

import (
	"context"
	"errors"

	"practicum/internal/api"
	"practicum/pkg/types"
)

// ErrNoRenewal is returned by StaticTokens when asked to renew.
var ErrNoRenewal = errors.New("static token source cannot renew")

// StaticTokens is a TokenSource with a fixed access token.
type StaticTokens struct {
	Token string
}

func (s StaticTokens) AccessToken() string { return s.Token }

func (s StaticTokens) RenewAccessToken(context.Context) (string, error) {
	return "", ErrNoRenewal
}

// StaticUser is a UserSource that never changes.
type StaticUser struct {
	User *types.User
}

func (s StaticUser) CurrentUser() *types.User {
	if s.User == nil {
		return nil
	}
	u := *s.User
	return &u
}

func (s StaticUser) Subscribe(func(*types.User)) func() { return func() {} }

// ClientFor returns a REST client authorized as userID without going
// through login.
func (p *Platform) ClientFor(userID int64) *api.Client {
	client := api.NewClient(api.Options{AuthURL: p.AuthURL(), MainURL: p.MainURL()})
	client.SetTokenSource(StaticTokens{Token: p.AccessTokenFor(userID)})
	return client
}

// User returns the seeded account record for id.
func (p *Platform) User(id int64) *types.User {
	p.mu.Lock()
	defer p.mu.Unlock()
	acc, ok := p.accounts[id]
	if !ok {
		return nil
	}
	u := acc.user
	return &u
}
