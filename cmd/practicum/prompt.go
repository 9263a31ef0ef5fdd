package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// readSecret reads a password without echo when stdin is a terminal and
// falls back to a plain line otherwise (pipes, tests).
func (c *cli) readSecret(prompt string) (string, error) {
	f, ok := c.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return c.readLine(prompt)
	}

	fmt.Fprint(c.stderr, prompt)
	secret, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(c.stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(secret), nil
}
