package comments

import (
	"errors"

	"practicum/pkg/types"
)

var (
	ErrEmptyComment     = types.ErrEmptyComment
	ErrNotOwner         = errors.New("only your own comments can be deleted")
	ErrCommentNotFound  = errors.New("comment is not in this thread")
	ErrNotAuthenticated = errors.New("not logged in")
	ErrInvalidItem      = errors.New("item ID must be positive")
)
