package service

import "errors"

// Store operation failures. Each wraps the collaborator error, so both
// errors.Is(err, ErrAdd) and errors.Is(err, <cause>) hold.
var (
	ErrLoad   = errors.New("load tasks")
	ErrAdd    = errors.New("add task")
	ErrUpdate = errors.New("update task")
	ErrDelete = errors.New("delete task")

	ErrTaskNotFound = errors.New("task not found")
)
