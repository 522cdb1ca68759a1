package leader

import "errors"

// Leader session manager error types
var (
	ErrNoActiveSession = errors.New("no active session owned by this leader instance")
	ErrInvalidClass    = errors.New("class ID and name are required to start a session")
	ErrInvalidDocument = errors.New("document path must be a rooted path")
	ErrManagerClosed   = errors.New("leader session manager is closed")
)
