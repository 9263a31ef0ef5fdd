package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"practicum/internal/api"
	"practicum/internal/catalog"
	"practicum/internal/profile"
	"practicum/internal/taskview"
	"practicum/pkg/types"
)

var errNotLoggedIn = errors.New("not logged in; run: practicum login")

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) requireLogin() error {
	if !c.app.Session().IsAuthenticated() {
		return errNotLoggedIn
	}
	return nil
}

func parseID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%s must be a positive number, got %q", what, raw)
	}
	return id, nil
}

func expectArgs(args []string, n int, usage string) error {
	if len(args) != n {
		return fmt.Errorf("usage: practicum %s", usage)
	}
	return nil
}

func cmdLogin(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("login")
	login := fs.String("login", "", "login or email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	identifier := *login
	if identifier == "" {
		var err error
		if identifier, err = c.readLine("Login: "); err != nil {
			return err
		}
	}
	password, err := c.readSecret("Password: ")
	if err != nil {
		return err
	}

	res := c.app.Session().Login(ctx, identifier, password)
	if !res.OK() {
		fmt.Fprintln(c.stderr, res.Message)
		return errSilent
	}
	fmt.Fprintf(c.stdout, "Logged in as %s\n", res.User.Name)
	return nil
}

func cmdRegister(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("register")
	name := fs.String("name", "", "display name")
	login := fs.String("login", "", "login")
	email := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := c.readSecret("Password: ")
	if err != nil {
		return err
	}
	res := c.app.Session().Register(ctx, *name, *login, *email, password)
	if !res.OK() {
		fmt.Fprintln(c.stderr, res.Message)
		return errSilent
	}
	fmt.Fprintln(c.stdout, "Registered; you can now log in")
	return nil
}

func cmdLogout(_ context.Context, c *cli, _ []string) error {
	if err := c.app.Session().Logout(); err != nil {
		c.logger.Warn("session store not fully cleared", "error", err)
	}
	fmt.Fprintln(c.stdout, "Logged out")
	return nil
}

func cmdWhoami(_ context.Context, c *cli, _ []string) error {
	user := c.app.Session().CurrentUser()
	if user == nil {
		fmt.Fprintln(c.stdout, "Not logged in")
		return nil
	}
	fmt.Fprintf(c.stdout, "%s (%s) <%s> id=%d\n", user.Name, user.Login, user.Email, user.ID)
	if info, err := c.app.Session().TokenInfo(); err == nil && !info.ExpiresAt.IsZero() {
		state := "valid"
		if info.Expired(time.Now()) {
			state = "expired, renewed on next request"
		}
		fmt.Fprintf(c.stdout, "Access token %s until %s\n", state, info.ExpiresAt.Local().Format(time.RFC3339))
	}
	return nil
}

func cmdTasks(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("tasks")
	theme := fs.Int64("theme", 0, "theme id")
	difficulty := fs.String("difficulty", "", "EASY, MEDIUM or HARD")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.requireLogin(); err != nil {
		return err
	}

	filter := catalog.Filter{ThemeID: *theme}
	if *difficulty != "" {
		d, err := types.ParseDifficulty(*difficulty)
		if err != nil {
			return err
		}
		filter.Difficulty = d
	}

	entries, err := c.app.NewCatalog().Load(ctx, filter)
	if err != nil {
		return err
	}
	printTasks(c.stdout, entries)
	return nil
}

func cmdTask(ctx context.Context, c *cli, args []string) error {
	if err := expectArgs(args, 1, commands["task"].usage); err != nil {
		return err
	}
	id, err := parseID(args[0], "task id")
	if err != nil {
		return err
	}
	if err := c.requireLogin(); err != nil {
		return err
	}

	view := c.app.NewTaskView()
	defer view.Close()
	if err := view.Enter(ctx, id); err != nil {
		return err
	}
	printTask(c.stdout, view.State().Task)
	return nil
}

func cmdThemes(ctx context.Context, c *cli, _ []string) error {
	if err := c.requireLogin(); err != nil {
		return err
	}
	cat := c.app.NewCatalog()
	if _, err := cat.Load(ctx, catalog.Filter{}); err != nil {
		return err
	}
	printThemes(c.stdout, cat.Themes())
	return nil
}

func cmdTheory(ctx context.Context, c *cli, args []string) error {
	if err := expectArgs(args, 1, commands["theory"].usage); err != nil {
		return err
	}
	id, err := parseID(args[0], "theme id")
	if err != nil {
		return err
	}
	if err := c.requireLogin(); err != nil {
		return err
	}
	theory, err := c.app.NewCatalog().Theory(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, types.ExpandEscapes(theory.Description))
	return nil
}

func cmdSubmit(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("submit")
	taskID := fs.Int64("task", 0, "task id")
	lang := fs.String("lang", string(types.LanguagePython), "python, javascript or cpp")
	file := fs.String("file", "", "source file, - for stdin")
	timeout := fs.Duration("timeout", 2*time.Minute, "how long to wait for the verdict")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return fmt.Errorf("usage: practicum %s", commands["submit"].usage)
	}
	if err := c.requireLogin(); err != nil {
		return err
	}
	code, err := c.readSource(*file)
	if err != nil {
		return err
	}

	view := c.app.NewTaskView()
	defer view.Close()
	if err := view.Enter(ctx, *taskID); err != nil {
		return err
	}
	if err := view.SetLanguage(types.Language(*lang)); err != nil {
		return err
	}
	view.SetCode(code)

	waitCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	if err := waitConnected(waitCtx, view); err != nil {
		return err
	}

	ack, err := view.Submit(waitCtx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Submitted #%d, waiting for the verdict...\n", ack.SubmissionID)

	result, err := view.WaitVerdict(waitCtx)
	switch {
	case errors.Is(err, taskview.ErrVerdictLost):
		fmt.Fprintln(c.stdout, "Connection lost before the verdict arrived; check: practicum history", *taskID)
		return errSilent
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("no verdict within %s; check: practicum history %d", *timeout, *taskID)
	case err != nil:
		return err
	}

	printResult(c.stdout, result)
	if next, ok := view.NextTask(); ok {
		fmt.Fprintf(c.stdout, "Next task: %d\n", next)
	}
	if !result.Accepted() {
		return errSilent
	}
	return nil
}

func (c *cli) readSource(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(c.in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read source: %w", err)
	}
	return string(data), nil
}

// waitConnected blocks until the view reports a live channel.
func waitConnected(ctx context.Context, view *taskview.View) error {
	ready := make(chan struct{}, 1)
	cancel := view.OnChange(func(s taskview.State) {
		if s.Connected {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	defer cancel()

	if view.State().Connected {
		return nil
	}
	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return taskview.ErrNotConnected
	}
}

func cmdHistory(ctx context.Context, c *cli, args []string) error {
	if err := expectArgs(args, 1, commands["history"].usage); err != nil {
		return err
	}
	id, err := parseID(args[0], "task id")
	if err != nil {
		return err
	}
	if err := c.requireLogin(); err != nil {
		return err
	}

	view := c.app.NewTaskView()
	defer view.Close()
	if err := view.Enter(ctx, id); err != nil {
		return err
	}
	if err := view.ShowHistory(ctx); err != nil {
		return err
	}
	printHistory(c.stdout, view.State().History)
	return nil
}

func threadArgs(args []string, n int, usage string) (api.Target, int64, error) {
	if len(args) < n {
		return "", 0, fmt.Errorf("usage: practicum %s", usage)
	}
	target, err := api.ParseTarget(args[0])
	if err != nil {
		return "", 0, err
	}
	id, err := parseID(args[1], "item id")
	if err != nil {
		return "", 0, err
	}
	return target, id, nil
}

func cmdComments(ctx context.Context, c *cli, args []string) error {
	if err := expectArgs(args, 2, commands["comments"].usage); err != nil {
		return err
	}
	target, id, err := threadArgs(args, 2, commands["comments"].usage)
	if err != nil {
		return err
	}
	if err := c.requireLogin(); err != nil {
		return err
	}
	items, err := c.app.NewThread(target, id).Load(ctx)
	if err != nil {
		return err
	}
	printComments(c.stdout, items)
	return nil
}

func cmdComment(ctx context.Context, c *cli, args []string) error {
	target, id, err := threadArgs(args, 3, commands["comment"].usage)
	if err != nil {
		return err
	}
	if err := c.requireLogin(); err != nil {
		return err
	}
	commentID, err := c.app.NewThread(target, id).Post(ctx, strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Comment #%d added\n", commentID)
	return nil
}

func cmdUncomment(ctx context.Context, c *cli, args []string) error {
	if err := expectArgs(args, 3, commands["uncomment"].usage); err != nil {
		return err
	}
	target, id, err := threadArgs(args, 3, commands["uncomment"].usage)
	if err != nil {
		return err
	}
	commentID, err := parseID(args[2], "comment id")
	if err != nil {
		return err
	}
	if err := c.requireLogin(); err != nil {
		return err
	}

	thread := c.app.NewThread(target, id)
	if _, err := thread.Load(ctx); err != nil {
		return err
	}
	if err := thread.Delete(ctx, commentID); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Comment #%d deleted\n", commentID)
	return nil
}

func cmdProfile(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("profile")
	theme := fs.Int64("theme", 0, "only this theme")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.requireLogin(); err != nil {
		return err
	}

	page := c.app.NewProfile()
	p, err := page.Load(ctx)
	if err != nil {
		return err
	}
	printProfile(c.stdout, c.app.Session().CurrentUser(), p.Statistics, page.ThemeStats(*theme))
	return nil
}

func cmdProfileEdit(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("profile-edit")
	name := fs.String("name", "", "new display name")
	changePassword := fs.Bool("new-password", false, "prompt for a new password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.requireLogin(); err != nil {
		return err
	}

	edit := profile.Edit{Name: *name}
	var err error
	if edit.CurrentPassword, err = c.readSecret("Current password: "); err != nil {
		return err
	}
	if *changePassword {
		if edit.NewPassword, err = c.readSecret("New password: "); err != nil {
			return err
		}
	}

	msg, err := c.app.NewProfile().Save(ctx, edit)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, msg)
	return nil
}
