package models

import "errors"

var (
	// ErrConflict is returned when a pending submission already exists for a habit.
	ErrConflict = errors.New("conflict")
	// ErrNotFound is returned when a habit, submission or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when a decision targets a submission that is not pending.
	ErrInvalidState = errors.New("invalid state")
	// ErrTransientStore marks timeouts and connection failures that may succeed on retry.
	ErrTransientStore = errors.New("transient store error")
	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
)
