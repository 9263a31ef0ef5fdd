package types

import "encoding/json"

// ARCHITECTURAL DISCOVERY: Wire names match the platform's JSON contract exactly
// so the same structs serve the REST client, the live channel and the local store
const (
	EventJoinSubmissionRoom  = "join_submission_room"
	EventLeaveSubmissionRoom = "leave_submission_room"
	EventSubmissionResult    = "submission_result"
)

// Persisted session keys in the local key-value store.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUserData     = "user_data"
)

// SessionKeys lists every persisted session key; logout clears all of them.
var SessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUserData}

// User is the authenticated account as returned by the auth service.
type User struct {
	ID    int64  `json:"user_id"`
	Name  string `json:"name"`
	Login string `json:"login"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// Credentials is the login request body.
type Credentials struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
}

// Registration is the register request body; all fields are required.
type Registration struct {
	Name     string `json:"name"`
	Login    string `json:"login"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Message string `json:"msg"`
	UserID  int64  `json:"user_id"`
}

// ProfileUpdate carries only the fields that changed; the current password
// is always required by the auth service.
type ProfileUpdate struct {
	CurrentPassword string  `json:"current_password"`
	NewName         *string `json:"new_name,omitempty"`
	NewPassword     *string `json:"new_password,omitempty"`
}

type ProfileUpdateResponse struct {
	Message string `json:"msg"`
	User    *User  `json:"user"`
}

// Difficulty levels used by tasks and the task filter.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// TaskSummary is one row of the task list.
type TaskSummary struct {
	ID         int64      `json:"task_id"`
	Title      string     `json:"title"`
	Difficulty Difficulty `json:"difficulty_level"`
	ThemeID    int64      `json:"theme_id"`
	ThemeTitle string     `json:"theme_title,omitempty"`
}

type ExampleTest struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Task is the full task statement with its public example tests.
type Task struct {
	ID            int64         `json:"task_id"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Difficulty    Difficulty    `json:"difficulty_level"`
	TimeLimitMS   int64         `json:"time_limit_ms"`
	MemoryLimitMB int64         `json:"memory_limit_mb"`
	ExampleTests  []ExampleTest `json:"example_tests"`
}

type Theme struct {
	ID            int64  `json:"theme_id"`
	Title         string `json:"title"`
	ParentThemeID *int64 `json:"parent_theme_id"`
}

type Theory struct {
	ID          int64  `json:"theory_id"`
	ThemeID     int64  `json:"theme_id"`
	Description string `json:"description"`
}

type SolvedTasks struct {
	TaskIDs []int64 `json:"solved_task_ids"`
}

type MarkSolvedRequest struct {
	UserID int64 `json:"user_id"`
	TaskID int64 `json:"task_id"`
}

// Comment dates are kept as the backend's ISO-8601 text.
type Comment struct {
	ID          int64  `json:"comment_id"`
	UserID      int64  `json:"user_id"`
	Date        string `json:"date"`
	Description string `json:"description"`
}

type NewComment struct {
	Description string `json:"description"`
}

type CommentCreated struct {
	Message   string `json:"msg"`
	CommentID int64  `json:"comment_id"`
}

// UserInfo is the public view of another user, used to label comments.
type UserInfo struct {
	ID    int64  `json:"user_id"`
	Name  string `json:"name"`
	Login string `json:"login,omitempty"`
	Email string `json:"email,omitempty"`
}

// Language tags accepted by the judge.
type Language string

const (
	LanguagePython     Language = "python"
	LanguageJavaScript Language = "javascript"
	LanguageCPP        Language = "cpp"
)

// Languages is the ordered list offered to the user.
var Languages = []Language{LanguagePython, LanguageJavaScript, LanguageCPP}

// SubmissionRequest is the body of POST /submit_code.
type SubmissionRequest struct {
	TaskID   int64    `json:"task_id"`
	Code     string   `json:"code"`
	Language Language `json:"language"`
}

// SubmissionAck is the synchronous 202 reply: accepted for judging, not a verdict.
type SubmissionAck struct {
	Message      string `json:"msg"`
	SubmissionID int64  `json:"submission_id"`
	UserID       int64  `json:"user_id"`
}

// SubmissionRecord is one entry of a user's history for a task.
type SubmissionRecord struct {
	ID         int64    `json:"submission_id"`
	Date       string   `json:"date"`
	Code       string   `json:"code"`
	Language   Language `json:"language"`
	Status     Status   `json:"status"`
	IsComplete bool     `json:"is_complete"`
	RunTime    *float64 `json:"run_time"`
}

// Status is a judge verdict category.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusAccepted          Status = "ACCEPTED"
	StatusWrongAnswer       Status = "WRONG_ANSWER"
	StatusTimeLimitExceeded Status = "TIME_LIMIT_EXCEEDED"
	StatusRuntimeError      Status = "RUNTIME_ERROR"
	StatusCompilationError  Status = "COMPILATION_ERROR"
	StatusInternalError     Status = "INTERNAL_ERROR"
	// StatusError is client-only: the submission never reached the judge.
	StatusError Status = "ERROR"
)

// SubmissionResult is the verdict pushed over the live channel.
// FUNCTIONAL DISCOVERY: Correlation fields are optional; older notifiers
// send only the verdict body, so consumers must tolerate their absence
type SubmissionResult struct {
	Status          Status  `json:"status"`
	PassedTests     *int    `json:"passed_tests,omitempty"`
	TotalTests      *int    `json:"total_tests,omitempty"`
	RunTime         float64 `json:"run_time"`
	MemoryUsedKB    float64 `json:"memory_used_kb"`
	Message         string  `json:"message,omitempty"`
	Error           string  `json:"error,omitempty"`
	NextTaskID      *int64  `json:"next_task_id,omitempty"`
	FailedTestInput string  `json:"failed_test_input,omitempty"`
	ExpectedOutput  string  `json:"expected_output,omitempty"`
	ActualOutput    string  `json:"actual_output,omitempty"`

	SubmissionID *int64 `json:"submission_id,omitempty"`
	UserID       *int64 `json:"user_id,omitempty"`
	TaskID       *int64 `json:"task_id,omitempty"`
}

// Accepted reports whether the verdict is a pass.
func (r *SubmissionResult) Accepted() bool {
	return r != nil && r.Status == StatusAccepted
}

// ThemeStat is the solved count for a single theme.
type ThemeStat struct {
	ThemeID     int64  `json:"theme_id"`
	Title       string `json:"title"`
	SolvedCount int    `json:"solved_count"`
}

type Statistics struct {
	TotalSolved  int         `json:"total_solved"`
	EasySolved   int         `json:"easy_solved"`
	MediumSolved int         `json:"medium_solved"`
	HardSolved   int         `json:"hard_solved"`
	ByTheme      []ThemeStat `json:"by_theme"`
}

// Profile is the aggregated statistics page for the current user.
type Profile struct {
	UserID     int64      `json:"user_id"`
	Statistics Statistics `json:"statistics"`
}

// Envelope is the live channel frame: an event name and its JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomRequest is the payload of join/leave room events.
type RoomRequest struct {
	UserID int64 `json:"user_id"`
}
