// Package profile is the statistics page of the current user and the form
// that edits their name and password.
package profile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"practicum/pkg/interfaces"
	"practicum/pkg/types"
)

var ErrNotAuthenticated = errors.New("not logged in")

// Backend is the part of the REST client the profile page needs.
type Backend interface {
	Profile(ctx context.Context, userID int64) (*types.Profile, error)
	UpdateProfile(ctx context.Context, update types.ProfileUpdate) (*types.ProfileUpdateResponse, error)
}

// Session is the user source that also accepts an updated user record.
type Session interface {
	interfaces.UserSource
	UpdateUser(ctx context.Context, user *types.User) error
}

// Edit is the raw form input. Blank fields mean "keep".
type Edit struct {
	CurrentPassword string
	Name            string
	NewPassword     string
}

// Page holds the last loaded statistics.
type Page struct {
	backend Backend
	session Session
	logger  *slog.Logger

	mu      sync.RWMutex
	profile *types.Profile
}

func New(backend Backend, session Session, logger *slog.Logger) *Page {
	if logger == nil {
		logger = slog.Default()
	}
	return &Page{backend: backend, session: session, logger: logger}
}

// Load fetches the statistics of the current user.
func (p *Page) Load(ctx context.Context) (*types.Profile, error) {
	user := p.session.CurrentUser()
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	profile, err := p.backend.Profile(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.profile = profile
	p.mu.Unlock()
	return profile, nil
}

// ThemeStats returns the per-theme counts of the last load; themeID 0
// returns every theme.
func (p *Page) ThemeStats(themeID int64) []types.ThemeStat {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.profile == nil {
		return nil
	}
	var out []types.ThemeStat
	for _, st := range p.profile.Statistics.ByTheme {
		if themeID == 0 || st.ThemeID == themeID {
			out = append(out, st)
		}
	}
	return out
}

// BuildUpdate turns form input into a request carrying only changed fields.
// FUNCTIONAL DISCOVERY: A name equal to the current one is not a change, so
// submitting the form untouched fails validation instead of hitting the server
func BuildUpdate(current *types.User, edit Edit) (types.ProfileUpdate, error) {
	update := types.ProfileUpdate{CurrentPassword: edit.CurrentPassword}
	if name := strings.TrimSpace(edit.Name); name != "" && (current == nil || name != current.Name) {
		update.NewName = &name
	}
	if edit.NewPassword != "" {
		pw := edit.NewPassword
		update.NewPassword = &pw
	}
	if err := update.Validate(); err != nil {
		return types.ProfileUpdate{}, err
	}
	return update, nil
}

// Save sends the changed fields and, on success, replaces the session's
// user record. It returns the backend's confirmation message.
func (p *Page) Save(ctx context.Context, edit Edit) (string, error) {
	user := p.session.CurrentUser()
	if user == nil {
		return "", ErrNotAuthenticated
	}
	update, err := BuildUpdate(user, edit)
	if err != nil {
		return "", err
	}

	resp, err := p.backend.UpdateProfile(ctx, update)
	if err != nil {
		return "", err
	}
	if resp.User != nil {
		if err := p.session.UpdateUser(ctx, resp.User); err != nil {
			p.logger.Error("failed to store updated user", "user_id", resp.User.ID, "error", err)
			return resp.Message, err
		}
	}
	p.logger.Info("profile updated", "user_id", user.ID, "name_changed", update.NewName != nil, "password_changed", update.NewPassword != nil)
	return resp.Message, nil
}
