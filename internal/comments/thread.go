// Package comments is the discussion thread under a task or theory item.
package comments

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"practicum/internal/api"
	"practicum/pkg/interfaces"
	"practicum/pkg/types"
)

// maxLookups bounds concurrent author lookups during a load.
const maxLookups = 4

// Backend is the part of the REST client a thread needs.
type Backend interface {
	UserLookup
	Comments(ctx context.Context, target api.Target, id int64) ([]types.Comment, error)
	AddComment(ctx context.Context, target api.Target, id int64, text string) (*types.CommentCreated, error)
	DeleteComment(ctx context.Context, commentID int64) error
}

// Item is a comment with its resolved author.
type Item struct {
	types.Comment
	Author string
	Own    bool
}

// Thread holds the comments of one item, newest first.
type Thread struct {
	backend Backend
	users   interfaces.UserSource
	authors *Authors
	logger  *slog.Logger
	target  api.Target
	itemID  int64

	mu    sync.RWMutex
	items []Item
}

// NewThread creates a thread; authors may be shared between threads.
func NewThread(backend Backend, users interfaces.UserSource, authors *Authors, target api.Target, itemID int64, logger *slog.Logger) *Thread {
	if logger == nil {
		logger = slog.Default()
	}
	if authors == nil {
		authors = NewAuthors(backend, logger)
	}
	return &Thread{
		backend: backend,
		users:   users,
		authors: authors,
		logger:  logger,
		target:  target,
		itemID:  itemID,
	}
}

// Load fetches the thread and resolves each distinct author once.
func (t *Thread) Load(ctx context.Context) ([]Item, error) {
	if t.itemID <= 0 {
		return nil, ErrInvalidItem
	}
	list, err := t.backend.Comments(ctx, t.target, t.itemID)
	if err != nil {
		return nil, err
	}

	user := t.users.CurrentUser()
	if user != nil {
		t.authors.Remember(user.ID, user.Name)
	}

	var (
		namesMu sync.Mutex
		names   = make(map[int64]string)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxLookups)
	for _, c := range list {
		namesMu.Lock()
		_, seen := names[c.UserID]
		names[c.UserID] = ""
		namesMu.Unlock()
		if seen {
			continue
		}
		userID := c.UserID
		g.Go(func() error {
			name := t.authors.Name(gctx, userID)
			namesMu.Lock()
			names[userID] = name
			namesMu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	items := make([]Item, 0, len(list))
	for _, c := range list {
		items = append(items, Item{
			Comment: c,
			Author:  names[c.UserID],
			Own:     user != nil && c.UserID == user.ID,
		})
	}

	// ISO dates order lexically; equal dates keep the backend's order.
	sort.SliceStable(items, func(i, j int) bool { return items[i].Date > items[j].Date })

	t.mu.Lock()
	t.items = items
	t.mu.Unlock()
	return copyItems(items), nil
}

// Items returns the last loaded thread.
func (t *Thread) Items() []Item {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return copyItems(t.items)
}

// Post adds a comment and reloads the thread.
func (t *Thread) Post(ctx context.Context, text string) (int64, error) {
	body := types.NewComment{Description: text}
	if err := body.Validate(); err != nil {
		return 0, err
	}
	if t.users.CurrentUser() == nil {
		return 0, ErrNotAuthenticated
	}
	created, err := t.backend.AddComment(ctx, t.target, t.itemID, text)
	if err != nil {
		return 0, err
	}
	if _, err := t.Load(ctx); err != nil {
		t.logger.Warn("thread reload after post failed", "target", t.target, "id", t.itemID, "error", err)
	}
	return created.CommentID, nil
}

// Delete removes one of the current user's comments. Other users' comments
// are refused locally; a 403 from the backend is returned as is.
func (t *Thread) Delete(ctx context.Context, commentID int64) error {
	user := t.users.CurrentUser()
	if user == nil {
		return ErrNotAuthenticated
	}

	t.mu.RLock()
	var (
		found bool
		owner int64
	)
	for _, it := range t.items {
		if it.ID == commentID {
			found, owner = true, it.UserID
			break
		}
	}
	t.mu.RUnlock()

	if !found {
		return ErrCommentNotFound
	}
	if owner != user.ID {
		return ErrNotOwner
	}
	if err := t.backend.DeleteComment(ctx, commentID); err != nil {
		return err
	}

	t.mu.Lock()
	for i, it := range t.items {
		if it.ID == commentID {
			t.items = append(t.items[:i:i], t.items[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
	return nil
}

func copyItems(items []Item) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	return out
}
