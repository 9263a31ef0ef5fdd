package taskview

import (
	"errors"

	"practicum/pkg/types"
)

var (
	ErrEmptyCode          = types.ErrEmptyCode
	ErrSubmissionInFlight = errors.New("a submission is already being judged")
	ErrNotConnected       = errors.New("live channel is disconnected")
	ErrTaskNotFound       = errors.New("task not found")
	ErrNotAuthenticated   = errors.New("not logged in")
	ErrNoTask             = errors.New("no task is loaded")
	ErrNoSubmission       = errors.New("nothing has been submitted")
)

// Errors returned to a caller whose work was overtaken by navigation.
var (
	ErrSuperseded  = errors.New("task view moved to another task")
	ErrVerdictLost = errors.New("connection lost before the verdict arrived")
)
