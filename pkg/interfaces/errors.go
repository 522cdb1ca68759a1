package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionInactive    = errors.New("session is not active")
	ErrStoreClosed        = errors.New("session store is closed")
	ErrChannelUnavailable = errors.New("notification channel unavailable")
)
