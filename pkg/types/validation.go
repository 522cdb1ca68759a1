package types

import (
	"regexp"
	"strings"
)

// Compiled once at package initialization; validation runs on every
// registration and session mutation.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// IsValidID checks class, leader and follower identifiers. 1-50 characters,
// alphanumeric plus underscore/hyphen, matching the roster identifier format.
func IsValidID(id string) bool {
	if len(id) < 1 || len(id) > 50 {
		return false
	}
	return identifierRegex.MatchString(id)
}

// IsValidDocumentPath checks a followable document reference. Paths are
// opaque to the core but must be non-empty, rooted and of bounded length so
// they stay renderable in follower UIs.
func IsValidDocumentPath(path string) bool {
	if len(path) < 1 || len(path) > 500 {
		return false
	}
	return strings.HasPrefix(path, "/")
}

// Validate ensures a session record meets all field requirements before it
// is written to the shared store.
func (s *Session) Validate() error {
	if !IsValidID(s.ID) {
		return ErrInvalidSessionID
	}
	if !IsValidID(s.ClassID) {
		return ErrInvalidClassID
	}
	if len(s.ClassName) < 1 || len(s.ClassName) > 200 {
		return ErrInvalidClassName
	}
	if !IsValidID(s.LeaderID) {
		return ErrInvalidLeaderID
	}
	if !IsValidDocumentPath(s.DocumentPath) {
		return ErrInvalidDocumentPath
	}
	return nil
}

// Validate ensures a presence record identifies a real follower.
func (p *FollowerPresence) Validate() error {
	if !IsValidID(p.ID) {
		return ErrInvalidFollowerID
	}
	if len(p.Name) < 1 || len(p.Name) > 200 {
		return ErrInvalidFollowerName
	}
	return nil
}
