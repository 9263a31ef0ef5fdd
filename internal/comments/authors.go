package comments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"practicum/internal/api"
	"practicum/pkg/types"
)

// UserLookup resolves a user id to its public profile.
type UserLookup interface {
	UserInfo(ctx context.Context, userID int64) (*types.UserInfo, error)
}

// FallbackName labels an author whose profile cannot be found.
func FallbackName(userID int64) string {
	return fmt.Sprintf("User %d", userID)
}

// Authors caches author names so each user id is looked up at most once.
// TECHNICAL DISCOVERY: Only answers are cached, including "not found";
// transport failures fall back to the placeholder and are retried next load
type Authors struct {
	lookup UserLookup
	logger *slog.Logger

	mu    sync.RWMutex
	names map[int64]string
	group singleflight.Group
}

func NewAuthors(lookup UserLookup, logger *slog.Logger) *Authors {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authors{lookup: lookup, logger: logger, names: make(map[int64]string)}
}

// Name returns the display name of userID.
func (a *Authors) Name(ctx context.Context, userID int64) string {
	a.mu.RLock()
	name, ok := a.names[userID]
	a.mu.RUnlock()
	if ok {
		return name
	}

	v, _, _ := a.group.Do(fmt.Sprint(userID), func() (any, error) {
		info, err := a.lookup.UserInfo(ctx, userID)
		switch {
		case err == nil && info.Name != "":
			a.remember(userID, info.Name)
			return info.Name, nil
		case err == nil || errors.Is(err, api.ErrNotFound):
			a.remember(userID, FallbackName(userID))
		default:
			a.logger.Warn("author lookup failed", "user_id", userID, "error", err)
		}
		return FallbackName(userID), nil
	})
	return v.(string)
}

// Remember seeds the cache, e.g. with the current user's own name.
func (a *Authors) Remember(userID int64, name string) {
	if name == "" {
		return
	}
	a.remember(userID, name)
}

func (a *Authors) remember(userID int64, name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.names[userID] = name
}

// Cached reports how many ids have a settled name.
func (a *Authors) Cached() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.names)
}
