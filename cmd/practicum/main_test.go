package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"practicum/internal/platformtest"
)

type invocation struct {
	code   int
	stdout string
	stderr string
}

// withPlatform points the CLI at a fake platform and a per-test session file.
func withPlatform(t *testing.T) *platformtest.Platform {
	t.Helper()
	p := platformtest.Start(t)
	t.Setenv("PRACTICUM_CONFIG_FILE", "")
	t.Setenv("PRACTICUM_AUTH_URL", p.AuthURL())
	t.Setenv("PRACTICUM_MAIN_URL", p.MainURL())
	t.Setenv("PRACTICUM_NOTIFIER_URL", p.NotifierURL())
	t.Setenv("PRACTICUM_NOTIFIER_READ_TIMEOUT", "2s")
	t.Setenv("PRACTICUM_NOTIFIER_PING_INTERVAL", "500ms")
	t.Setenv("PRACTICUM_RECONNECT_INITIAL_DELAY", "10ms")
	t.Setenv("PRACTICUM_RECONNECT_MAX_DELAY", "50ms")
	t.Setenv("PRACTICUM_STORAGE_PATH", filepath.Join(t.TempDir(), "session.db"))
	t.Setenv("PRACTICUM_STORAGE_EPHEMERAL", "")
	return p
}

func invoke(t *testing.T, stdin string, args ...string) invocation {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return invocation{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func login(t *testing.T) {
	t.Helper()
	res := invoke(t, platformtest.BobLogin+"\n"+platformtest.BobPassword+"\n", "login")
	if res.code != 0 {
		t.Fatalf("Login failed with %d: %s", res.code, res.stderr)
	}
}

func TestRun_Usage(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no command", nil},
		{"unknown command", []string{"dance"}},
		{"bad global flag", []string{"-nope", "whoami"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := invoke(t, "", tt.args...)
			if res.code != 2 {
				t.Errorf("Expected exit code 2, got %d", res.code)
			}
			if !strings.Contains(res.stderr, "usage: practicum") {
				t.Errorf("Expected usage text, got %q", res.stderr)
			}
		})
	}
}

func TestRun_LoginWhoamiLogout(t *testing.T) {
	withPlatform(t)

	login(t)

	res := invoke(t, "", "whoami")
	if res.code != 0 || !strings.Contains(res.stdout, "Bob (bob)") {
		t.Errorf("Expected whoami to show Bob, got %d %q", res.code, res.stdout)
	}
	if !strings.Contains(res.stdout, "Access token valid") {
		t.Errorf("Expected token expiry line, got %q", res.stdout)
	}

	if res := invoke(t, "", "logout"); res.code != 0 {
		t.Fatalf("Logout failed: %s", res.stderr)
	}
	res = invoke(t, "", "whoami")
	if !strings.Contains(res.stdout, "Not logged in") {
		t.Errorf("Expected anonymous after logout, got %q", res.stdout)
	}
}

func TestRun_LoginFailureShowsBackendMessage(t *testing.T) {
	withPlatform(t)

	res := invoke(t, "bob\nwrong\n", "login")
	if res.code != 1 {
		t.Errorf("Expected exit code 1, got %d", res.code)
	}
	if !strings.Contains(res.stderr, "Invalid login or password") {
		t.Errorf("Expected backend message, got %q", res.stderr)
	}
}

func TestRun_CommandsRequireLogin(t *testing.T) {
	withPlatform(t)

	for _, args := range [][]string{{"tasks"}, {"task", "7"}, {"profile"}, {"comments", "task", "7"}} {
		res := invoke(t, "", args...)
		if res.code != 1 || !strings.Contains(res.stderr, "not logged in") {
			t.Errorf("%v: expected a login hint, got %d %q", args, res.code, res.stderr)
		}
	}
}

func TestRun_TasksAndTask(t *testing.T) {
	withPlatform(t)
	login(t)

	res := invoke(t, "", "tasks", "-difficulty", "hard")
	if res.code != 0 {
		t.Fatalf("tasks failed: %s", res.stderr)
	}
	if !strings.Contains(res.stdout, "Orphan") || !strings.Contains(res.stdout, "Unknown") {
		t.Errorf("Expected the orphan task with Unknown theme, got %q", res.stdout)
	}
	if strings.Contains(res.stdout, "Print one") {
		t.Errorf("Expected the difficulty filter to apply, got %q", res.stdout)
	}

	res = invoke(t, "", "task", "7")
	if res.code != 0 || !strings.Contains(res.stdout, "#7 Print one") {
		t.Errorf("Expected task 7, got %d %q %q", res.code, res.stdout, res.stderr)
	}
	if !strings.Contains(res.stdout, "Output:\n1\n") {
		t.Errorf("Expected expanded example output, got %q", res.stdout)
	}

	res = invoke(t, "", "task", "404")
	if res.code != 1 || !strings.Contains(res.stderr, "task not found") {
		t.Errorf("Expected task not found, got %d %q", res.code, res.stderr)
	}
}

func TestRun_SubmitWaitsForVerdict(t *testing.T) {
	p := withPlatform(t)
	login(t)

	source := filepath.Join(t.TempDir(), "solution.py")
	if err := os.WriteFile(source, []byte("print(1)\n"), 0o600); err != nil {
		t.Fatalf("Failed to write source: %v", err)
	}

	res := invoke(t, "", "submit", "-task", "7", "-lang", "python", "-file", source, "-timeout", "10s")
	if res.code != 0 {
		t.Fatalf("submit failed with %d: %s", res.code, res.stderr)
	}
	for _, want := range []string{"Submitted #", "Verdict: Accepted", "Tests passed: 3/3", "Next task: 8"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("Expected %q in output, got %q", want, res.stdout)
		}
	}
	if subs := p.Submissions(); len(subs) != 1 || subs[0].Code != "print(1)\n" {
		t.Errorf("Expected one submission with the file contents, got %+v", subs)
	}
}

func TestRun_SubmitRejectedExitsNonZero(t *testing.T) {
	withPlatform(t)
	login(t)

	res := invoke(t, "print(2)\n", "submit", "-task", "7", "-file", "-", "-timeout", "10s")
	if res.code != 1 {
		t.Errorf("Expected exit code 1 for a rejected solution, got %d", res.code)
	}
	if !strings.Contains(res.stdout, "Verdict: Wrong answer") {
		t.Errorf("Expected the wrong answer verdict, got %q", res.stdout)
	}
	if strings.Contains(res.stdout, "Next task") {
		t.Errorf("Expected no next task for a rejected solution, got %q", res.stdout)
	}
}

func TestRun_SessionExpired(t *testing.T) {
	p := withPlatform(t)
	login(t)

	p.ExpireAccessTokens()
	p.RevokeRefreshTokens()

	res := invoke(t, "", "tasks")
	if res.code != 1 {
		t.Errorf("Expected exit code 1, got %d", res.code)
	}
	if !strings.Contains(res.stderr, "session expired, please log in again") {
		t.Errorf("Expected the session expired message, got %q", res.stderr)
	}
	if res := invoke(t, "", "whoami"); !strings.Contains(res.stdout, "Not logged in") {
		t.Errorf("Expected the session cleared, got %q", res.stdout)
	}
}

func TestRun_CommentFlow(t *testing.T) {
	withPlatform(t)
	login(t)

	res := invoke(t, "", "comments", "task", "7")
	if res.code != 0 || !strings.Contains(res.stdout, "Alice") || !strings.Contains(res.stdout, "User 42") {
		t.Errorf("Expected resolved authors, got %d %q", res.code, res.stdout)
	}

	res = invoke(t, "", "uncomment", "task", "7", "1")
	if res.code != 1 || !strings.Contains(res.stderr, "only your own comments") {
		t.Errorf("Expected ownership refusal, got %d %q", res.code, res.stderr)
	}

	res = invoke(t, "", "comment", "task", "7", "Solved", "it")
	if res.code != 0 || !strings.Contains(res.stdout, "Comment #3 added") {
		t.Fatalf("Expected comment 3 added, got %d %q %q", res.code, res.stdout, res.stderr)
	}
	res = invoke(t, "", "uncomment", "task", "7", "3")
	if res.code != 0 {
		t.Errorf("Expected own comment deleted, got %d %q", res.code, res.stderr)
	}
}

func TestRun_ProfileEdit(t *testing.T) {
	p := withPlatform(t)
	login(t)

	res := invoke(t, platformtest.BobPassword+"\n", "profile-edit", "-name", "X")
	if res.code != 0 {
		t.Fatalf("profile-edit failed: %s", res.stderr)
	}
	if name := p.UserName(platformtest.BobID); name != "X" {
		t.Errorf("Expected backend name X, got %s", name)
	}
	if res := invoke(t, "", "whoami"); !strings.Contains(res.stdout, "X (bob)") {
		t.Errorf("Expected the stored user renamed, got %q", res.stdout)
	}

	res = invoke(t, platformtest.BobPassword+"\n", "profile-edit")
	if res.code != 1 || !strings.Contains(res.stderr, "no profile changes") {
		t.Errorf("Expected nothing-to-update refusal, got %d %q", res.code, res.stderr)
	}
}
