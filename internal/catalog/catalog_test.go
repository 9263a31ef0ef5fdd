package catalog

import (
	"context"
	"errors"
	"testing"

	"practicum/internal/api"
	"practicum/internal/platformtest"
	"practicum/pkg/types"
)

func newPlatformCatalog(t *testing.T, userID int64) (*Catalog, *platformtest.Platform) {
	t.Helper()
	p := platformtest.Start(t)
	users := platformtest.StaticUser{User: p.User(userID)}
	return New(p.ClientFor(userID), users, nil), p
}

func TestCatalog_LoadDecoratesEntries(t *testing.T) {
	c, _ := newPlatformCatalog(t, platformtest.BobID)
	ctx := context.Background()

	if err := c.MarkSolved(ctx, 7); err != nil {
		t.Fatalf("MarkSolved failed: %v", err)
	}
	if err := c.MarkSolved(ctx, 7); err != nil {
		t.Fatalf("Second MarkSolved failed: %v", err)
	}

	entries, err := c.Load(ctx, Filter{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	expected := []struct {
		id     int64
		theme  string
		solved bool
	}{
		{7, "Basics", true},
		{8, "Strings", false},
		{9, UnknownTheme, false},
	}
	if len(entries) != len(expected) {
		t.Fatalf("Expected %d entries, got %d", len(expected), len(entries))
	}
	for i, want := range expected {
		got := entries[i]
		if got.ID != want.id || got.ThemeTitle != want.theme || got.Solved != want.solved {
			t.Errorf("Entry %d: expected {%d %s %v}, got {%d %s %v}",
				i, want.id, want.theme, want.solved, got.ID, got.ThemeTitle, got.Solved)
		}
	}
	if title := c.ThemeTitle(2); title != "Strings" {
		t.Errorf("Expected Strings, got %s", title)
	}
	if !c.IsSolved(7) || c.IsSolved(8) {
		t.Error("Expected only task 7 to be solved")
	}
}

func TestCatalog_Filters(t *testing.T) {
	c, _ := newPlatformCatalog(t, platformtest.BobID)

	tests := []struct {
		name     string
		filter   Filter
		expected []int64
	}{
		{"by theme", Filter{ThemeID: 2}, []int64{8}},
		{"by difficulty", Filter{Difficulty: types.DifficultyHard}, []int64{9}},
		{"both", Filter{ThemeID: 1, Difficulty: types.DifficultyEasy}, []int64{7}},
		{"no match", Filter{ThemeID: 1, Difficulty: types.DifficultyHard}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := c.Load(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if len(entries) != len(tt.expected) {
				t.Fatalf("Expected %d entries, got %d", len(tt.expected), len(entries))
			}
			for i, id := range tt.expected {
				if entries[i].ID != id {
					t.Errorf("Expected task %d at %d, got %d", id, i, entries[i].ID)
				}
			}
		})
	}
}

func TestCatalog_FilterValidation(t *testing.T) {
	c := New(&mockBackend{}, platformtest.StaticUser{}, nil)

	tests := []struct {
		name   string
		filter Filter
		err    error
	}{
		{"negative theme", Filter{ThemeID: -1}, ErrInvalidTheme},
		{"unknown difficulty", Filter{Difficulty: "TRIVIAL"}, types.ErrInvalidDifficulty},
		{"lowercase difficulty", Filter{Difficulty: "easy"}, types.ErrInvalidDifficulty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Load(context.Background(), tt.filter); !errors.Is(err, tt.err) {
				t.Errorf("Expected %v, got %v", tt.err, err)
			}
		})
	}
}

func TestCatalog_EmptyCatalog(t *testing.T) {
	c, p := newPlatformCatalog(t, platformtest.BobID)
	p.ClearTasks()

	entries, err := c.Load(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Expected an empty list, got error %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entries, got %d", len(entries))
	}
}

func TestCatalog_Theory(t *testing.T) {
	c, _ := newPlatformCatalog(t, platformtest.BobID)

	theory, err := c.Theory(context.Background(), 1)
	if err != nil {
		t.Fatalf("Theory failed: %v", err)
	}
	if theory.ThemeID != 1 || theory.Description == "" {
		t.Errorf("Unexpected theory %+v", theory)
	}

	if _, err := c.Theory(context.Background(), 2); !errors.Is(err, ErrTheoryNotFound) {
		t.Errorf("Expected ErrTheoryNotFound, got %v", err)
	}
	if _, err := c.Theory(context.Background(), 0); !errors.Is(err, ErrInvalidTheme) {
		t.Errorf("Expected ErrInvalidTheme, got %v", err)
	}
}

// mockBackend is a hand-written Backend for failure paths.
type mockBackend struct {
	tasks     []types.TaskSummary
	themes    []types.Theme
	solved    []int64
	tasksErr  error
	solvedErr error
	marked    []int64
}

func (m *mockBackend) Tasks(context.Context) ([]types.TaskSummary, error) {
	return m.tasks, m.tasksErr
}

func (m *mockBackend) FilterTasks(context.Context, int64, types.Difficulty) ([]types.TaskSummary, error) {
	return m.tasks, m.tasksErr
}

func (m *mockBackend) Themes(context.Context) ([]types.Theme, error) { return m.themes, nil }

func (m *mockBackend) SolvedTaskIDs(context.Context, int64) ([]int64, error) {
	return m.solved, m.solvedErr
}

func (m *mockBackend) Theory(context.Context, int64) (*types.Theory, error) {
	return nil, &api.APIError{StatusCode: 404, Message: "Theory not found"}
}

func (m *mockBackend) MarkSolved(_ context.Context, _, taskID int64) error {
	m.marked = append(m.marked, taskID)
	return nil
}

func TestCatalog_SolvedFailureKeepsList(t *testing.T) {
	backend := &mockBackend{
		tasks:     []types.TaskSummary{{ID: 2, ThemeID: 1}, {ID: 1, ThemeID: 1}},
		themes:    []types.Theme{{ID: 1, Title: "Basics"}},
		solvedErr: &api.APIError{StatusCode: 500, Message: "boom"},
	}
	c := New(backend, platformtest.StaticUser{User: &types.User{ID: 1}}, nil)

	entries, err := c.Load(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Expected the list despite solved failure, got %v", err)
	}
	if len(entries) != 2 || entries[0].ID != 1 || entries[1].ID != 2 {
		t.Fatalf("Expected entries sorted by id, got %+v", entries)
	}
	for _, e := range entries {
		if e.Solved {
			t.Errorf("Expected task %d unsolved", e.ID)
		}
	}
}

func TestCatalog_SessionExpiredFailsLoad(t *testing.T) {
	backend := &mockBackend{solvedErr: api.ErrSessionExpired}
	c := New(backend, platformtest.StaticUser{User: &types.User{ID: 1}}, nil)

	_, err := c.Load(context.Background(), Filter{})
	if !errors.Is(err, api.ErrSessionExpired) {
		t.Fatalf("Expected ErrSessionExpired, got %v", err)
	}
	var loadErr *LoadError
	if !errors.As(err, &loadErr) || loadErr.Part != "solved tasks" {
		t.Errorf("Expected a solved tasks LoadError, got %v", err)
	}
}

func TestCatalog_TasksFailure(t *testing.T) {
	backend := &mockBackend{tasksErr: &api.APIError{StatusCode: 500, Message: "Database error"}}
	c := New(backend, platformtest.StaticUser{}, nil)

	_, err := c.Load(context.Background(), Filter{})
	if msg := api.DisplayMessage(err, "fallback"); msg != "Database error" {
		t.Errorf("Expected backend message, got %q", msg)
	}
}

func TestCatalog_AnonymousSkipsSolved(t *testing.T) {
	backend := &mockBackend{
		tasks:     []types.TaskSummary{{ID: 1, ThemeID: 1}},
		solvedErr: api.ErrSessionExpired,
	}
	c := New(backend, platformtest.StaticUser{}, nil)

	if _, err := c.Load(context.Background(), Filter{}); err != nil {
		t.Fatalf("Anonymous load should not ask for solved ids, got %v", err)
	}
	if err := c.MarkSolved(context.Background(), 1); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Expected ErrNotAuthenticated, got %v", err)
	}
	if len(backend.marked) != 0 {
		t.Errorf("Expected no backend call, got %v", backend.marked)
	}
}

func TestCatalog_MarkSolvedUpdatesCache(t *testing.T) {
	backend := &mockBackend{tasks: []types.TaskSummary{{ID: 1, ThemeID: 5}}}
	c := New(backend, platformtest.StaticUser{User: &types.User{ID: 1}}, nil)

	if _, err := c.Load(context.Background(), Filter{}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := c.MarkSolved(context.Background(), 1); err != nil {
		t.Fatalf("MarkSolved failed: %v", err)
	}
	entries := c.Entries()
	if len(entries) != 1 || !entries[0].Solved {
		t.Errorf("Expected the cached entry to be solved, got %+v", entries)
	}
	if entries[0].ThemeTitle != UnknownTheme {
		t.Errorf("Expected Unknown theme, got %s", entries[0].ThemeTitle)
	}
	if err := c.MarkSolved(context.Background(), 0); !errors.Is(err, types.ErrInvalidTaskID) {
		t.Errorf("Expected ErrInvalidTaskID, got %v", err)
	}
}
