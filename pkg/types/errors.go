package types

import "errors"

// ARCHITECTURAL DISCOVERY: Validation failures are local and non-terminal;
// callers surface them inline and let the user correct the input
var (
	ErrEmptyLogin        = errors.New("login is required")
	ErrEmptyPassword     = errors.New("password is required")
	ErrEmptyName         = errors.New("name is required")
	ErrEmptyEmail        = errors.New("email is required")
	ErrInvalidEmail      = errors.New("email address is not valid")
	ErrPasswordTooShort  = errors.New("password must be at least 6 characters")
	ErrNothingToUpdate   = errors.New("no profile changes to save")
	ErrInvalidTaskID     = errors.New("task ID must be positive")
	ErrInvalidLanguage   = errors.New("language must be python, javascript or cpp")
	ErrEmptyCode         = errors.New("code cannot be empty")
	ErrInvalidDifficulty = errors.New("difficulty must be EASY, MEDIUM or HARD")
	ErrEmptyComment      = errors.New("comment cannot be empty")
)
