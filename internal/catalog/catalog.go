// Package catalog is the task list screen: tasks decorated with their theme
// title and the current user's solved flag, plus per-theme theory.
package catalog

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"practicum/internal/api"
	"practicum/pkg/interfaces"
	"practicum/pkg/types"
)

// UnknownTheme is shown for tasks whose theme is not in the theme list.
const UnknownTheme = "Unknown"

// Backend is the part of the REST client the catalog needs.
type Backend interface {
	Tasks(ctx context.Context) ([]types.TaskSummary, error)
	FilterTasks(ctx context.Context, themeID int64, difficulty types.Difficulty) ([]types.TaskSummary, error)
	Themes(ctx context.Context) ([]types.Theme, error)
	SolvedTaskIDs(ctx context.Context, userID int64) ([]int64, error)
	Theory(ctx context.Context, themeID int64) (*types.Theory, error)
	MarkSolved(ctx context.Context, userID, taskID int64) error
}

// Filter narrows the list; zero fields match everything.
type Filter struct {
	ThemeID    int64
	Difficulty types.Difficulty
}

func (f Filter) IsZero() bool { return f.ThemeID == 0 && f.Difficulty == "" }

// Validate rejects negative theme ids and unknown difficulties.
func (f Filter) Validate() error {
	if f.ThemeID < 0 {
		return ErrInvalidTheme
	}
	if f.Difficulty != "" {
		if d, err := types.ParseDifficulty(string(f.Difficulty)); err != nil || d != f.Difficulty {
			return types.ErrInvalidDifficulty
		}
	}
	return nil
}

// Entry is one row of the task list.
type Entry struct {
	types.TaskSummary
	Solved bool
}

// Catalog caches the last loaded list together with themes and solved ids.
type Catalog struct {
	backend Backend
	users   interfaces.UserSource
	logger  *slog.Logger

	mu      sync.RWMutex
	themes  []types.Theme
	titles  map[int64]string
	solved  map[int64]bool
	entries []Entry
}

func New(backend Backend, users interfaces.UserSource, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		backend: backend,
		users:   users,
		logger:  logger,
		titles:  make(map[int64]string),
		solved:  make(map[int64]bool),
	}
}

// Load fetches tasks, themes and solved ids concurrently and returns the
// decorated list sorted by task id.
// TECHNICAL DISCOVERY: A failed solved-ids call only loses the checkmarks;
// the list is still usable, so it is logged instead of failing the group
func (c *Catalog) Load(ctx context.Context, filter Filter) ([]Entry, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	var (
		tasks  []types.TaskSummary
		themes []types.Theme
		solved []int64
	)
	user := c.users.CurrentUser()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if filter.IsZero() {
			tasks, err = c.backend.Tasks(gctx)
		} else {
			tasks, err = c.backend.FilterTasks(gctx, filter.ThemeID, filter.Difficulty)
		}
		if err != nil {
			return &LoadError{Part: "tasks", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		themes, err = c.backend.Themes(gctx)
		if err != nil {
			return &LoadError{Part: "themes", Err: err}
		}
		return nil
	})
	if user != nil {
		g.Go(func() error {
			ids, err := c.backend.SolvedTaskIDs(gctx, user.ID)
			if err != nil {
				if errors.Is(err, api.ErrSessionExpired) {
					return &LoadError{Part: "solved tasks", Err: err}
				}
				c.logger.Warn("solved tasks unavailable", "user_id", user.ID, "error", err)
				return nil
			}
			solved = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	titles := make(map[int64]string, len(themes))
	for _, th := range themes {
		titles[th.ID] = th.Title
	}
	solvedSet := make(map[int64]bool, len(solved))
	for _, id := range solved {
		solvedSet[id] = true
	}

	entries := make([]Entry, 0, len(tasks))
	for _, t := range tasks {
		t.ThemeTitle = themeTitle(titles, t)
		entries = append(entries, Entry{TaskSummary: t, Solved: solvedSet[t.ID]})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	c.mu.Lock()
	c.themes = themes
	c.titles = titles
	c.solved = solvedSet
	c.entries = entries
	c.mu.Unlock()

	c.logger.Debug("catalog loaded", "tasks", len(entries), "themes", len(themes), "solved", len(solvedSet))
	return copyEntries(entries), nil
}

func themeTitle(titles map[int64]string, t types.TaskSummary) string {
	if title, ok := titles[t.ThemeID]; ok {
		return title
	}
	return UnknownTheme
}

// Entries returns the last loaded list.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return copyEntries(c.entries)
}

// Themes returns the last loaded theme list in backend order.
func (c *Catalog) Themes() []types.Theme {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]types.Theme(nil), c.themes...)
}

// ThemeTitle resolves a theme id against the last loaded themes.
func (c *Catalog) ThemeTitle(themeID int64) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if title, ok := c.titles[themeID]; ok {
		return title
	}
	return UnknownTheme
}

func (c *Catalog) IsSolved(taskID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.solved[taskID]
}

// Theory returns the theory article of a theme.
func (c *Catalog) Theory(ctx context.Context, themeID int64) (*types.Theory, error) {
	if themeID <= 0 {
		return nil, ErrInvalidTheme
	}
	theory, err := c.backend.Theory(ctx, themeID)
	if errors.Is(err, api.ErrNotFound) {
		return nil, ErrTheoryNotFound
	}
	return theory, err
}

// MarkSolved records a solved task for the current user and updates the
// cached list.
func (c *Catalog) MarkSolved(ctx context.Context, taskID int64) error {
	if taskID <= 0 {
		return types.ErrInvalidTaskID
	}
	user := c.users.CurrentUser()
	if user == nil {
		return ErrNotAuthenticated
	}
	if err := c.backend.MarkSolved(ctx, user.ID, taskID); err != nil {
		return err
	}

	c.mu.Lock()
	c.solved[taskID] = true
	for i := range c.entries {
		if c.entries[i].ID == taskID {
			c.entries[i].Solved = true
		}
	}
	c.mu.Unlock()
	return nil
}

func copyEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
