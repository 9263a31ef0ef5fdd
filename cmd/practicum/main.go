package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"practicum/internal/api"
	"practicum/internal/app"
	"practicum/internal/config"
	"practicum/internal/session"
)

const shutdownTimeout = 10 * time.Second

// errSilent fails the command after its output already explained why.
var errSilent = errors.New("command failed")

type command struct {
	usage string
	run   func(ctx context.Context, c *cli, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"login":        {"login [-login NAME]", cmdLogin},
		"register":     {"register -name NAME -login LOGIN -email EMAIL", cmdRegister},
		"logout":       {"logout", cmdLogout},
		"whoami":       {"whoami", cmdWhoami},
		"tasks":        {"tasks [-theme N] [-difficulty EASY|MEDIUM|HARD]", cmdTasks},
		"task":         {"task ID", cmdTask},
		"themes":       {"themes", cmdThemes},
		"theory":       {"theory THEME_ID", cmdTheory},
		"submit":       {"submit -task ID [-lang python|javascript|cpp] -file PATH", cmdSubmit},
		"history":      {"history TASK_ID", cmdHistory},
		"comments":     {"comments task|theory ID", cmdComments},
		"comment":      {"comment task|theory ID TEXT...", cmdComment},
		"uncomment":    {"uncomment task|theory ID COMMENT_ID", cmdUncomment},
		"profile":      {"profile [-theme N]", cmdProfile},
		"profile-edit": {"profile-edit [-name NAME] [-new-password]", cmdProfileEdit},
	}
}

// cli carries the streams and the application for one invocation.
type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	in     *bufio.Reader
	logger *slog.Logger
	app    *app.Application
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run parses global flags, builds the application and executes one
// subcommand. It returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("practicum", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", os.Getenv("PRACTICUM_CONFIG_FILE"), "path to a JSON config file")
	verbose := global.Bool("v", false, "debug logging")
	ephemeral := global.Bool("ephemeral", false, "keep the session in memory only")
	global.Usage = func() { printUsage(stderr) }
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		printUsage(stderr)
		return 2
	}

	name, rest := global.Arg(0), global.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		printUsage(stderr)
		return 2
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cfg := config.LoadConfigWithPrecedence(*configPath, logger)
	if *ephemeral {
		cfg.Storage.Ephemeral = true
	}

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr, in: bufio.NewReader(stdin), logger: logger, app: application}
	code := c.execute(ctx, cmd, rest)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	return code
}

func (c *cli) execute(ctx context.Context, cmd command, args []string) int {
	if err := c.app.Start(ctx); err != nil {
		fmt.Fprintf(c.stderr, "error: %v\n", err)
		return 1
	}
	err := cmd.run(ctx, c, args)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errSilent):
		return 1
	case errors.Is(err, flag.ErrHelp):
		return 2
	case errors.Is(err, api.ErrSessionExpired), errors.Is(err, session.ErrRenewalFailed):
		fmt.Fprintln(c.stderr, "session expired, please log in again")
		return 1
	}
	fmt.Fprintf(c.stderr, "error: %s\n", describe(err))
	return 1
}

// describe prefers the backend's own message.
func describe(err error) string {
	return api.DisplayMessage(err, err.Error())
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "usage: practicum [-config FILE] [-v] [-ephemeral] COMMAND [ARGS]")
	fmt.Fprintln(w, "commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s\n", commands[name].usage)
	}
}

func (c *cli) readLine(prompt string) (string, error) {
	fmt.Fprint(c.stderr, prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
