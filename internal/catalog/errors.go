package catalog

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTheme     = errors.New("theme ID must be positive")
	ErrTheoryNotFound   = errors.New("no theory for this theme")
	ErrNotAuthenticated = errors.New("not logged in")
)

// LoadError names which part of the catalog failed to load.
type LoadError struct {
	Part string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Part, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
