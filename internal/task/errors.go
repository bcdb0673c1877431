package task

import "errors"

var (
	// ErrTaskNotFound indicates the task does not exist or belongs to someone else.
	ErrTaskNotFound = errors.New("task not found")
)
