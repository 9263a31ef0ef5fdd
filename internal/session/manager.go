package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"practicum/internal/api"
	"practicum/pkg/interfaces"
	"practicum/pkg/types"
)

const (
	fallbackLoginMessage    = "Login failed"
	fallbackRegisterMessage = "Registration failed"
	storeTimeout            = 5 * time.Second
)

// Result is the outcome of a login or registration attempt.
// FUNCTIONAL DISCOVERY: Failures are values, not errors to propagate; Message
// is always safe to show and Err is kept for logging and errors.Is checks
type Result struct {
	User    *types.User
	Message string
	Err     error
}

// OK reports whether the attempt succeeded.
func (r Result) OK() bool { return r.Err == nil }

// Manager is the single source of truth for who is logged in.
// ARCHITECTURAL DISCOVERY: State is Anonymous or Authenticated; renewing is
// an internal detail of the REST client's retry and is never published
type Manager struct {
	store  interfaces.KeyValueStore
	auth   interfaces.AuthBackend
	logger *slog.Logger

	mu      sync.RWMutex
	user    *types.User
	access  string
	refresh string

	// transitions are serialized so observers see them in order
	transitionMu sync.Mutex
	observers    map[uint64]func(*types.User)
	observersMu  sync.Mutex
	nextObserver uint64

	renewals singleflight.Group
}

var (
	_ interfaces.TokenSource = (*Manager)(nil)
	_ interfaces.UserSource  = (*Manager)(nil)
)

// NewManager creates an anonymous session manager; call Restore to load a
// previously persisted session.
func NewManager(store interfaces.KeyValueStore, auth interfaces.AuthBackend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:     store,
		auth:      auth,
		logger:    logger,
		observers: make(map[uint64]func(*types.User)),
	}
}

// Login authenticates and persists the token pair and user in one write.
func (m *Manager) Login(ctx context.Context, identifier, password string) Result {
	creds := types.Credentials{Login: identifier, Password: password}
	if err := creds.Validate(); err != nil {
		return Result{Message: err.Error(), Err: err}
	}

	resp, err := m.auth.Login(ctx, creds)
	if err != nil {
		m.logger.Info("login rejected", "login", identifier, "error", err)
		return Result{Message: api.DisplayMessage(err, fallbackLoginMessage), Err: err}
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.User == nil {
		return Result{Message: fallbackLoginMessage, Err: ErrMalformedLogin}
	}

	userJSON, err := json.Marshal(resp.User)
	if err != nil {
		return Result{Message: fallbackLoginMessage, Err: fmt.Errorf("failed to encode user: %w", err)}
	}

	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	// FUNCTIONAL DISCOVERY: One atomic write; a failure leaves the store untouched
	err = m.store.SetMany(ctx, map[string]string{
		types.KeyAccessToken:  resp.AccessToken,
		types.KeyRefreshToken: resp.RefreshToken,
		types.KeyUserData:     string(userJSON),
	})
	if err != nil {
		m.logger.Error("failed to persist session", "error", err)
		return Result{Message: fallbackLoginMessage, Err: fmt.Errorf("failed to persist session: %w", err)}
	}

	user := *resp.User
	m.mu.Lock()
	m.user = &user
	m.access = resp.AccessToken
	m.refresh = resp.RefreshToken
	m.mu.Unlock()

	m.logger.Info("logged in", "user_id", user.ID, "login", user.Login)
	m.notify(&user)
	return Result{User: copyUser(&user)}
}

// Register creates an account. It never authenticates; login is still required.
func (m *Manager) Register(ctx context.Context, name, identifier, email, password string) Result {
	reg := types.Registration{Name: name, Login: identifier, Email: email, Password: password}
	if err := reg.Validate(); err != nil {
		return Result{Message: err.Error(), Err: err}
	}

	resp, err := m.auth.Register(ctx, reg)
	if err != nil {
		m.logger.Info("registration rejected", "login", identifier, "error", err)
		return Result{Message: api.DisplayMessage(err, fallbackRegisterMessage), Err: err}
	}

	msg := resp.Message
	if msg == "" {
		msg = "Registration successful"
	}
	return Result{Message: msg}
}

// Logout clears every persisted key and the in-memory session.
// It is safe to call when nobody is logged in.
func (m *Manager) Logout() error {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()
	return m.logoutLocked()
}

func (m *Manager) logoutLocked() error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	// FUNCTIONAL DISCOVERY: Memory is cleared even if the store fails so the
	// process never keeps acting as a user the caller asked to forget
	err := m.store.Delete(ctx, types.SessionKeys...)
	if err != nil {
		m.logger.Error("failed to clear persisted session", "error", err)
		err = fmt.Errorf("failed to clear persisted session: %w", err)
	}

	m.mu.Lock()
	wasAuthenticated := m.user != nil
	m.user = nil
	m.access = ""
	m.refresh = ""
	m.mu.Unlock()

	if wasAuthenticated {
		m.logger.Info("logged out")
		m.notify(nil)
	}
	return err
}

// RenewAccessToken exchanges the refresh token for a new access token.
// Concurrent callers share a single backend request. On any failure the
// session that was renewed is logged out and ErrRenewalFailed is returned;
// there is no retry. A session replaced during the refresh is left alone.
func (m *Manager) RenewAccessToken(ctx context.Context) (string, error) {
	v, err, shared := m.renewals.Do("renew", func() (any, error) {
		return m.renew(ctx)
	})
	if shared {
		m.logger.Debug("joined in-flight token renewal")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) renew(ctx context.Context) (string, error) {
	m.mu.RLock()
	refresh := m.refresh
	m.mu.RUnlock()

	if refresh == "" {
		m.transitionMu.Lock()
		m.mu.RLock()
		loggedIn := m.refresh != ""
		m.mu.RUnlock()
		if !loggedIn {
			_ = m.logoutLocked()
		}
		m.transitionMu.Unlock()
		return "", fmt.Errorf("%w: %w", ErrRenewalFailed, ErrNoRefreshToken)
	}

	resp, err := m.auth.Refresh(ctx, refresh)
	if err == nil && resp.AccessToken == "" {
		err = errors.New("empty access token in refresh response")
	}

	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	// A logout or re-login during the refresh wins; the outcome of this
	// refresh must neither resurrect nor end the session that replaced it.
	m.mu.RLock()
	current := m.refresh
	m.mu.RUnlock()
	if current != refresh {
		if err != nil {
			m.logger.Debug("stale token refresh failed", "error", err)
		}
		return "", fmt.Errorf("%w: session changed during renewal", ErrRenewalFailed)
	}

	if err != nil {
		m.logger.Warn("token refresh rejected", "error", err)
		_ = m.logoutLocked()
		return "", fmt.Errorf("%w: %v", ErrRenewalFailed, err)
	}

	// FUNCTIONAL DISCOVERY: Only the access token is replaced; the refresh
	// token and user record are left exactly as they were
	if err := m.store.Set(ctx, types.KeyAccessToken, resp.AccessToken); err != nil {
		m.logger.Error("failed to persist renewed token", "error", err)
		_ = m.logoutLocked()
		return "", fmt.Errorf("%w: %v", ErrRenewalFailed, err)
	}

	m.mu.Lock()
	m.access = resp.AccessToken
	m.mu.Unlock()

	m.logger.Debug("access token renewed")
	return resp.AccessToken, nil
}

// UpdateUser replaces the persisted and in-memory user, then notifies observers.
func (m *Manager) UpdateUser(ctx context.Context, user *types.User) error {
	if user == nil {
		return ErrNilUser
	}

	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	if !m.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if err := m.store.Set(ctx, types.KeyUserData, string(userJSON)); err != nil {
		return fmt.Errorf("failed to persist user: %w", err)
	}

	updated := *user
	m.mu.Lock()
	m.user = &updated
	m.mu.Unlock()

	m.notify(&updated)
	return nil
}

// Restore loads a persisted session. The session is authenticated only when
// both the access token and the user record are present and readable.
func (m *Manager) Restore(ctx context.Context) error {
	m.transitionMu.Lock()
	defer m.transitionMu.Unlock()

	access, hasAccess, err := m.store.Get(ctx, types.KeyAccessToken)
	if err != nil {
		return fmt.Errorf("failed to read access token: %w", err)
	}
	userData, hasUser, err := m.store.Get(ctx, types.KeyUserData)
	if err != nil {
		return fmt.Errorf("failed to read user record: %w", err)
	}
	refresh, _, err := m.store.Get(ctx, types.KeyRefreshToken)
	if err != nil {
		return fmt.Errorf("failed to read refresh token: %w", err)
	}

	if !hasAccess || !hasUser || access == "" {
		m.logger.Debug("no persisted session")
		return nil
	}

	var user types.User
	if err := json.Unmarshal([]byte(userData), &user); err != nil {
		m.logger.Warn("ignoring unreadable persisted user", "error", err)
		return nil
	}

	m.mu.Lock()
	m.user = &user
	m.access = access
	m.refresh = refresh
	m.mu.Unlock()

	m.logger.Info("session restored", "user_id", user.ID)
	m.notify(copyUser(&user))
	return nil
}

// CurrentUser returns a copy of the logged-in user, or nil when anonymous.
func (m *Manager) CurrentUser() *types.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyUser(m.user)
}

func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user != nil
}

// AccessToken returns the current bearer token ("" when anonymous).
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.access
}

// Subscribe registers fn to receive the user after every transition
// (nil on logout). Observers must not call Login, Logout, UpdateUser or Restore.
func (m *Manager) Subscribe(fn func(*types.User)) (cancel func()) {
	m.observersMu.Lock()
	id := m.nextObserver
	m.nextObserver++
	m.observers[id] = fn
	m.observersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.observersMu.Lock()
			delete(m.observers, id)
			m.observersMu.Unlock()
		})
	}
}

// notify must be called with transitionMu held.
func (m *Manager) notify(user *types.User) {
	m.observersMu.Lock()
	fns := make([]func(*types.User), 0, len(m.observers))
	for _, fn := range m.observers {
		fns = append(fns, fn)
	}
	m.observersMu.Unlock()

	for _, fn := range fns {
		fn(copyUser(user))
	}
}

// TokenInfo describes the current access token for display.
type TokenInfo struct {
	Subject   string
	ExpiresAt time.Time
}

// Expired reports whether the token's exp claim is in the past.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// TokenInfo decodes the sub and exp claims without verifying the signature.
func (m *Manager) TokenInfo() (TokenInfo, error) {
	token := m.AccessToken()
	if token == "" {
		return TokenInfo{}, ErrNotAuthenticated
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return TokenInfo{}, fmt.Errorf("failed to decode access token: %w", err)
	}

	var info TokenInfo
	if sub, err := claims.GetSubject(); err == nil {
		info.Subject = sub
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, nil
}

func copyUser(u *types.User) *types.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}
