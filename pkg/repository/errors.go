package repository

import "errors"

var (
	// ErrNotConfigured is returned by every operation before a successful Configure.
	ErrNotConfigured = errors.New("repository: not configured")
	// ErrInvalidConfiguration wraps the reason a Config was rejected.
	ErrInvalidConfiguration = errors.New("repository: invalid configuration")
	// ErrNullEntity is returned when a write is given a nil entity.
	ErrNullEntity = errors.New("repository: entity is nil")
	// ErrEntityNotFound is returned by Update when no document has the entity's id.
	ErrEntityNotFound = errors.New("repository: entity not found")
	// ErrClosed is returned by a Configure that lost a race with Close.
	ErrClosed = errors.New("repository: closed while configuring")
)
