package presence

import "errors"

// Presence tracking error types
var (
	ErrFollowerNotRegistered = errors.New("follower is not registered on this session")
	ErrTrackerNotWatching    = errors.New("presence tracker is not watching a session")
)
