package app

import "errors"

// ErrNotFound and related errors describe validation and runtime failures.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidDeleteMode = errors.New("invalid delete mode")
	// ErrConflict reports a stale container version; callers may retry.
	ErrConflict    = errors.New("concurrent modification conflict")
	ErrInvalidMove = errors.New("invalid move")
)
