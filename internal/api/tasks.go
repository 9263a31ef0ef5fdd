package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"practicum/pkg/types"
)

// Tasks lists every task.
// FUNCTIONAL DISCOVERY: The main service answers 404 for an empty catalog;
// that is reported as an empty list rather than an error
func (c *Client) Tasks(ctx context.Context) ([]types.TaskSummary, error) {
	var tasks []types.TaskSummary
	err := c.do(ctx, request{method: http.MethodGet, base: c.mainURL, path: "/tasks/", authorized: true}, &tasks)
	if errors.Is(err, ErrNotFound) {
		return []types.TaskSummary{}, nil
	}
	return tasks, err
}

func (c *Client) Task(ctx context.Context, id int64) (*types.Task, error) {
	var task types.Task
	err := c.do(ctx, request{method: http.MethodGet, base: c.mainURL, path: fmt.Sprintf("/tasks/%d", id), authorized: true}, &task)
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// FilterTasks narrows by theme and/or difficulty; zero values are not sent.
func (c *Client) FilterTasks(ctx context.Context, themeID int64, difficulty types.Difficulty) ([]types.TaskSummary, error) {
	q := url.Values{}
	if themeID > 0 {
		q.Set("theme_id", strconv.FormatInt(themeID, 10))
	}
	if difficulty != "" {
		q.Set("difficulty", string(difficulty))
	}
	var tasks []types.TaskSummary
	err := c.do(ctx, request{method: http.MethodGet, base: c.mainURL, path: "/tasks/filter", query: q, authorized: true}, &tasks)
	return tasks, err
}

func (c *Client) Themes(ctx context.Context) ([]types.Theme, error) {
	var themes []types.Theme
	err := c.do(ctx, request{method: http.MethodGet, base: c.mainURL, path: "/themes/", authorized: true}, &themes)
	return themes, err
}

// Theory returns the theory article of a theme.
func (c *Client) Theory(ctx context.Context, themeID int64) (*types.Theory, error) {
	var theory types.Theory
	err := c.do(ctx, request{method: http.MethodGet, base: c.mainURL, path: fmt.Sprintf("/theory/%d", themeID), authorized: true}, &theory)
	if err != nil {
		return nil, err
	}
	return &theory, nil
}

// SolvedTaskIDs lists the tasks a user has solved; duplicates are possible.
func (c *Client) SolvedTaskIDs(ctx context.Context, userID int64) ([]int64, error) {
	var solved types.SolvedTasks
	err := c.do(ctx, request{method: http.MethodGet, base: c.mainURL, path: fmt.Sprintf("/user_solved/%d", userID), authorized: true}, &solved)
	return solved.TaskIDs, err
}

func (c *Client) MarkSolved(ctx context.Context, userID, taskID int64) error {
	body := types.MarkSolvedRequest{UserID: userID, TaskID: taskID}
	return c.do(ctx, request{method: http.MethodPost, base: c.mainURL, path: "/mark_solved", body: body, authorized: true}, nil)
}

// SubmitCode posts a solution. The acknowledgement means "queued for
// judging"; the verdict arrives later on the live channel.
func (c *Client) SubmitCode(ctx context.Context, sub types.SubmissionRequest) (*types.SubmissionAck, error) {
	var ack types.SubmissionAck
	err := c.do(ctx, request{method: http.MethodPost, base: c.mainURL, path: "/submit_code", body: sub, authorized: true}, &ack)
	if err != nil {
		return nil, err
	}
	return &ack, nil
}

// Submissions returns a user's history for one task, newest first.
func (c *Client) Submissions(ctx context.Context, userID, taskID int64) ([]types.SubmissionRecord, error) {
	var records []types.SubmissionRecord
	err := c.do(ctx, request{
		method:     http.MethodGet,
		base:       c.mainURL,
		path:       fmt.Sprintf("/user_submissions/%d/%d", userID, taskID),
		authorized: true,
	}, &records)
	return records, err
}

// Profile returns the aggregated statistics of the current user.
func (c *Client) Profile(ctx context.Context, userID int64) (*types.Profile, error) {
	var profile types.Profile
	err := c.do(ctx, request{method: http.MethodGet, base: c.mainURL, path: fmt.Sprintf("/profile/%d", userID), authorized: true}, &profile)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
