package types

import "errors"

// Field-level validation errors shared by every component that builds or
// mutates session records.
var (
	ErrInvalidSessionID    = errors.New("session ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidClassID      = errors.New("class ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidClassName    = errors.New("class name must be 1-200 characters")
	ErrInvalidLeaderID     = errors.New("leader ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidFollowerID   = errors.New("follower ID must be 1-50 characters, alphanumeric + underscore/hyphen only")
	ErrInvalidFollowerName = errors.New("follower name must be 1-200 characters")
	ErrInvalidDocumentPath = errors.New("document path must be 1-500 characters and start with '/'")
)
