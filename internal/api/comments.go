package api

import (
	"context"
	"fmt"
	"net/http"

	"practicum/pkg/types"
)

// Target is the kind of item a comment thread belongs to.
type Target string

const (
	TargetTask   Target = "tasks"
	TargetTheory Target = "theory"
)

// ParseTarget accepts "task" or "theory" (plural forms too).
func ParseTarget(s string) (Target, error) {
	switch s {
	case "task", "tasks":
		return TargetTask, nil
	case "theory":
		return TargetTheory, nil
	}
	return "", fmt.Errorf("unknown comment target %q: want task or theory", s)
}

// Comments lists the thread of a task or theory item, newest first.
func (c *Client) Comments(ctx context.Context, target Target, id int64) ([]types.Comment, error) {
	var comments []types.Comment
	err := c.do(ctx, request{
		method:     http.MethodGet,
		base:       c.mainURL,
		path:       fmt.Sprintf("/%s/%d/comments", target, id),
		authorized: true,
	}, &comments)
	return comments, err
}

func (c *Client) AddComment(ctx context.Context, target Target, id int64, text string) (*types.CommentCreated, error) {
	var created types.CommentCreated
	err := c.do(ctx, request{
		method:     http.MethodPost,
		base:       c.mainURL,
		path:       fmt.Sprintf("/%s/%d/comments", target, id),
		body:       types.NewComment{Description: text},
		authorized: true,
	}, &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// DeleteComment removes a comment; the backend answers 403 for someone else's.
func (c *Client) DeleteComment(ctx context.Context, commentID int64) error {
	return c.do(ctx, request{
		method:     http.MethodDelete,
		base:       c.mainURL,
		path:       fmt.Sprintf("/comments/%d", commentID),
		authorized: true,
	}, nil)
}

// UserInfo returns the public profile of a user.
func (c *Client) UserInfo(ctx context.Context, userID int64) (*types.UserInfo, error) {
	var info types.UserInfo
	err := c.do(ctx, request{method: http.MethodGet, base: c.mainURL, path: fmt.Sprintf("/user_info/%d", userID), authorized: true}, &info)
	if err != nil {
		return nil, err
	}
	return &info, nil
}
