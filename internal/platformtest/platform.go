// Package platformtest runs an in-process copy of the platform's auth, main
// and notifier services for package and integration tests.
package platformtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"practicum/pkg/types"
)

// Seeded accounts.
const (
	BobID       int64 = 1
	BobLogin          = "bob"
	BobPassword       = "secret"

	AliceID       int64 = 2
	AliceLogin          = "alice"
	AlicePassword       = "secret"
)

// Judge decides the verdict for a submission. Returning nil leaves the
// submission pending; the test can Push a verdict later.
type Judge func(sub Submission) *types.SubmissionResult

// Submission is a received POST /submit_code.
type Submission struct {
	ID     int64
	UserID int64
	types.SubmissionRequest
}

// RecordedRequest is one call seen by the auth or main service.
type RecordedRequest struct {
	Method    string
	Path      string
	Token     string
	RequestID string
	Status    int
}

type account struct {
	user     types.User
	password string
}

type taskRecord struct {
	task    types.Task
	themeID int64
}

type commentKey struct {
	target string
	id     int64
}

// Platform is a fake deployment: three HTTP servers sharing one state.
// ARCHITECTURAL DISCOVERY: The servers are real httptest listeners so the
// client under test exercises its own transport, headers and websocket dialer
type Platform struct {
	auth     *httptest.Server
	main     *httptest.Server
	notifier *Notifier
	tokens   *tokenIssuer

	mu            sync.Mutex
	accounts      map[int64]*account
	nextUserID    int64
	tasks         map[int64]*taskRecord
	themes        []types.Theme
	theory        map[int64]types.Theory
	solved        map[int64][]int64
	comments      map[commentKey][]types.Comment
	nextComment   int64
	submissions   map[int64][]types.SubmissionRecord // keyed by user id
	submitted     []Submission
	nextSubmit    int64
	judge         Judge
	judgeDelay    time.Duration
	force401      int
	failRefresh   bool
	submitFailure string
	reqMu         sync.Mutex
	requests      []RecordedRequest
	loginCalls    int
	refreshCalls  int
}

// Start launches the platform with seed data and closes it when t ends.
func Start(t testing.TB) *Platform {
	t.Helper()
	p := New()
	t.Cleanup(p.Close)
	return p
}

// New launches the platform with seed data. Close must be called.
func New() *Platform {
	p := &Platform{
		tokens:      newTokenIssuer(),
		accounts:    make(map[int64]*account),
		tasks:       make(map[int64]*taskRecord),
		theory:      make(map[int64]types.Theory),
		solved:      make(map[int64][]int64),
		comments:    make(map[commentKey][]types.Comment),
		submissions: make(map[int64][]types.SubmissionRecord),
		judge:       DefaultJudge,
		judgeDelay:  20 * time.Millisecond,
	}
	p.seed()

	authRouter := chi.NewRouter()
	authRouter.Use(jsonMiddleware, p.recordMiddleware)
	authRouter.Route("/api/auth", p.authRoutes)

	mainRouter := chi.NewRouter()
	mainRouter.Use(jsonMiddleware, p.recordMiddleware, p.authMiddleware)
	mainRouter.Route("/api/main", p.mainRoutes)

	p.auth = httptest.NewServer(authRouter)
	p.main = httptest.NewServer(mainRouter)
	p.notifier = NewNotifier()
	return p
}

func (p *Platform) seed() {
	p.addAccount(types.User{ID: BobID, Name: "Bob", Login: BobLogin, Email: "bob@example.com", Role: "student"}, BobPassword)
	p.addAccount(types.User{ID: AliceID, Name: "Alice", Login: AliceLogin, Email: "alice@example.com", Role: "student"}, AlicePassword)
	p.nextUserID = 3

	p.themes = []types.Theme{
		{ID: 1, Title: "Basics"},
		{ID: 2, Title: "Strings", ParentThemeID: ptr(int64(1))},
	}
	p.theory[1] = types.Theory{ID: 1, ThemeID: 1, Description: "Read input.\\nPrint output."}

	p.addTask(types.Task{ID: 7, Title: "Print one", Description: "Print the number 1.", Difficulty: types.DifficultyEasy,
		TimeLimitMS: 1000, MemoryLimitMB: 64, ExampleTests: []types.ExampleTest{{Input: "", Output: "1\\n"}}}, 1)
	p.addTask(types.Task{ID: 8, Title: "Reverse", Description: "Reverse a string.", Difficulty: types.DifficultyMedium,
		TimeLimitMS: 1000, MemoryLimitMB: 64, ExampleTests: []types.ExampleTest{{Input: "abc", Output: "cba"}}}, 2)
	p.addTask(types.Task{ID: 9, Title: "Orphan", Description: "A task whose theme was removed.", Difficulty: types.DifficultyHard,
		TimeLimitMS: 2000, MemoryLimitMB: 128}, 99)

	p.comments[commentKey{"tasks", 7}] = []types.Comment{
		{ID: 1, UserID: AliceID, Date: "2025-01-02T10:00:00", Description: "Nice warm-up"},
		{ID: 2, UserID: 42, Date: "2025-01-01T10:00:00", Description: "First!"},
	}
	p.nextComment = 3
}

func (p *Platform) addAccount(u types.User, password string) {
	p.accounts[u.ID] = &account{user: u, password: password}
}

func (p *Platform) addTask(t types.Task, themeID int64) {
	p.tasks[t.ID] = &taskRecord{task: t, themeID: themeID}
}

// AddTask registers an extra task.
func (p *Platform) AddTask(t types.Task, themeID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.addTask(t, themeID)
}

// ClearTasks empties the catalog; the main service then answers 404 for the list.
func (p *Platform) ClearTasks() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = make(map[int64]*taskRecord)
}

// Close shuts every server down.
func (p *Platform) Close() {
	p.notifier.Close()
	p.main.Close()
	p.auth.Close()
}

func (p *Platform) AuthURL() string     { return p.auth.URL + "/api/auth" }
func (p *Platform) MainURL() string     { return p.main.URL + "/api/main" }
func (p *Platform) NotifierURL() string { return p.notifier.URL() }
func (p *Platform) Notifier() *Notifier { return p.notifier }

// SetJudge replaces the verdict function; nil keeps submissions pending.
func (p *Platform) SetJudge(j Judge) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.judge = j
}

// SetJudgeDelay sets how long after the 202 the verdict is pushed.
func (p *Platform) SetJudgeDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.judgeDelay = d
}

// ExpireAccessTokens invalidates every access token issued so far.
func (p *Platform) ExpireAccessTokens() { p.tokens.expireAccess() }

// RevokeRefreshTokens invalidates every refresh token issued so far.
func (p *Platform) RevokeRefreshTokens() { p.tokens.revokeRefresh() }

// ForceUnauthorized makes the next n authorized main-service calls answer 401
// whatever token they carry.
func (p *Platform) ForceUnauthorized(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.force401 = n
}

// FailRefresh makes /refresh answer 401.
func (p *Platform) FailRefresh(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failRefresh = fail
}

// FailSubmissions makes /submit_code answer 500 with msg; "" restores it.
func (p *Platform) FailSubmissions(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitFailure = msg
}

// Requests returns every recorded call in arrival order.
func (p *Platform) Requests() []RecordedRequest {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	out := make([]RecordedRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

// RequestsTo returns recorded calls whose path ends with suffix.
func (p *Platform) RequestsTo(suffix string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range p.Requests() {
		if strings.HasSuffix(r.Path, suffix) {
			out = append(out, r)
		}
	}
	return out
}

func (p *Platform) LoginCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loginCalls
}

func (p *Platform) RefreshCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCalls
}

// Submissions returns every received submission.
func (p *Platform) Submissions() []Submission {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Submission, len(p.submitted))
	copy(out, p.submitted)
	return out
}

// UserName returns the stored name of an account.
func (p *Platform) UserName(id int64) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if acc, ok := p.accounts[id]; ok {
		return acc.user.Name
	}
	return ""
}

// AccessTokenFor issues a valid access token without a login call.
func (p *Platform) AccessTokenFor(userID int64) string {
	token, _ := p.tokens.issue(userID, tokenAccess)
	return token
}

// DefaultJudge accepts code containing "print(1)" and points at the next task id.
func DefaultJudge(sub Submission) *types.SubmissionResult {
	total := 3
	if strings.Contains(sub.Code, "print(1)") {
		next := sub.TaskID + 1
		return &types.SubmissionResult{
			Status:       types.StatusAccepted,
			PassedTests:  &total,
			TotalTests:   &total,
			RunTime:      12,
			MemoryUsedKB: 2048,
			NextTaskID:   &next,
		}
	}
	passed := 1
	return &types.SubmissionResult{
		Status:          types.StatusWrongAnswer,
		PassedTests:     &passed,
		TotalTests:      &total,
		RunTime:         10,
		MemoryUsedKB:    900,
		FailedTestInput: "2",
		ExpectedOutput:  "1",
		ActualOutput:    "0",
	}
}

// settle records a verdict, marks the task solved on ACCEPTED and pushes it.
func (p *Platform) settle(sub Submission, result *types.SubmissionResult) {
	result.SubmissionID = ptr(sub.ID)
	result.UserID = ptr(sub.UserID)
	result.TaskID = ptr(sub.TaskID)

	p.mu.Lock()
	records := p.submissions[sub.UserID]
	for i := range records {
		if records[i].ID == sub.ID {
			records[i].Status = result.Status
			records[i].IsComplete = true
			records[i].RunTime = ptr(result.RunTime)
		}
	}
	if result.Accepted() {
		p.solved[sub.UserID] = append(p.solved[sub.UserID], sub.TaskID)
	}
	p.mu.Unlock()

	_ = p.notifier.Push(sub.UserID, types.EventSubmissionResult, result)
}

func (p *Platform) statistics(userID int64) types.Statistics {
	seen := make(map[int64]bool)
	var stats types.Statistics
	byTheme := make(map[int64]int)
	for _, id := range p.solved[userID] {
		if seen[id] {
			continue
		}
		seen[id] = true
		rec, ok := p.tasks[id]
		if !ok {
			continue
		}
		stats.TotalSolved++
		switch rec.task.Difficulty {
		case types.DifficultyEasy:
			stats.EasySolved++
		case types.DifficultyMedium:
			stats.MediumSolved++
		case types.DifficultyHard:
			stats.HardSolved++
		}
		byTheme[rec.themeID]++
	}
	for _, theme := range p.themes {
		stats.ByTheme = append(stats.ByTheme, types.ThemeStat{ThemeID: theme.ID, Title: theme.Title, SolvedCount: byTheme[theme.ID]})
	}
	return stats
}

func (p *Platform) summaries(filter func(*taskRecord) bool) []types.TaskSummary {
	out := make([]types.TaskSummary, 0, len(p.tasks))
	for _, rec := range p.tasks {
		if filter != nil && !filter(rec) {
			continue
		}
		out = append(out, types.TaskSummary{
			ID:         rec.task.ID,
			Title:      rec.task.Title,
			Difficulty: rec.task.Difficulty,
			ThemeID:    rec.themeID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type errorResponse struct {
	Msg string `json:"msg"`
}

func sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Msg: message})
}

func sendJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder stores the status into the request log before the response
// leaves, so a client never observes a reply whose request is unrecorded.
type statusRecorder struct {
	http.ResponseWriter
	p   *Platform
	idx int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.p.reqMu.Lock()
	s.p.requests[s.idx].Status = code
	s.p.reqMu.Unlock()
	s.ResponseWriter.WriteHeader(code)
}

func (p *Platform) recordMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.reqMu.Lock()
		p.requests = append(p.requests, RecordedRequest{
			Method:    r.Method,
			Path:      r.URL.Path,
			Token:     bearer(r),
			RequestID: r.Header.Get("X-Request-ID"),
			Status:    http.StatusOK,
		})
		idx := len(p.requests) - 1
		p.reqMu.Unlock()

		next.ServeHTTP(&statusRecorder{ResponseWriter: w, p: p, idx: idx}, r)
	})
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

func ptr[T any](v T) *T { return &v }

func pathID(r *http.Request, name string) (int64, error) {
	var id int64
	_, err := fmt.Sscan(chi.URLParam(r, name), &id)
	return id, err
}
