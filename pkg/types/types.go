package types

import (
	"time"
)

// Session is one leader's live broadcast of document/position state to a
// class. Leader-owned fields (document, scroll, section, heartbeat, active
// flag) are mutated only by the owning leader process; followers mutate only
// their own presence entry. The store does not enforce this — it is the
// contract between components.
type Session struct {
	ID             string    `json:"id"`
	ClassID        string    `json:"class_id"`
	ClassName      string    `json:"class_name"`
	LeaderID       string    `json:"leader_id"`
	LeaderName     string    `json:"leader_name"`
	IsActive       bool      `json:"is_active"`
	StartedAt      time.Time `json:"started_at"`
	DocumentPath   string    `json:"document_path"`
	DocumentTitle  string    `json:"document_title"`
	ScrollPosition float64   `json:"scroll_position"`
	// CurrentSection is a logical anchor inside the current document.
	// Nil means the leader has not published one.
	CurrentSection *string   `json:"current_section,omitempty"`
	LastHeartbeat  time.Time `json:"last_heartbeat"`
	// ConnectedFollowers is ordered by join time. Entries are unique by
	// follower ID and are never removed individually; the whole session is
	// pruned by retention instead.
	ConnectedFollowers []FollowerPresence `json:"connected_followers"`
}

// FollowerPresence records one follower's join time, last-seen time and
// attention flag inside a session.
type FollowerPresence struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
	LastSeen time.Time `json:"last_seen"`
	IsActive bool      `json:"is_active"`
}

// PresenceNotice is a transient "follower went inactive" event raised by the
// presence tracker. Consumers drop it once ExpiresAt has passed.
type PresenceNotice struct {
	SessionID    string    `json:"session_id"`
	FollowerID   string    `json:"follower_id"`
	FollowerName string    `json:"follower_name"`
	OccurredAt   time.Time `json:"occurred_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// LeaderView is the read-only reactive view exposed to leader-side UIs.
type LeaderView struct {
	IsSharing          bool               `json:"is_sharing"`
	CurrentSession     *Session           `json:"current_session,omitempty"`
	ConnectedFollowers []FollowerPresence `json:"connected_followers"`
}

// FollowerView is the read-only reactive view exposed to follower-side UIs.
// IsLocked means the host application should restrict navigation away from
// the followed document; that policy itself lives outside the core.
type FollowerView struct {
	IsLocked      bool     `json:"is_locked"`
	ActiveSession *Session `json:"active_session,omitempty"`
}

// Clone returns a deep copy. Snapshots cross goroutine boundaries, so
// consumers always work on copies rather than aliasing store state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.CurrentSection != nil {
		section := *s.CurrentSection
		out.CurrentSection = &section
	}
	out.ConnectedFollowers = make([]FollowerPresence, len(s.ConnectedFollowers))
	copy(out.ConnectedFollowers, s.ConnectedFollowers)
	return &out
}

// FindFollower returns the presence entry for the given follower ID.
func (s *Session) FindFollower(followerID string) (*FollowerPresence, bool) {
	for i := range s.ConnectedFollowers {
		if s.ConnectedFollowers[i].ID == followerID {
			return &s.ConnectedFollowers[i], true
		}
	}
	return nil, false
}

// UpsertFollower registers a follower on the session. First registration
// appends a new entry with JoinedAt = LastSeen = now; re-registration
// refreshes LastSeen and forces the entry active, never duplicating.
func (s *Session) UpsertFollower(followerID, name string, now time.Time) {
	if existing, ok := s.FindFollower(followerID); ok {
		existing.Name = name
		existing.LastSeen = now
		existing.IsActive = true
		return
	}
	s.ConnectedFollowers = append(s.ConnectedFollowers, FollowerPresence{
		ID:       followerID,
		Name:     name,
		JoinedAt: now,
		LastSeen: now,
		IsActive: true,
	})
}

// IsExpired reports whether retention allows this session to be pruned.
// Active sessions are retained indefinitely; inactive ones at least for the
// retention window past creation so late joiners can still see "just ended".
func (s *Session) IsExpired(now time.Time, retention time.Duration) bool {
	if s.IsActive {
		return false
	}
	return now.Sub(s.StartedAt) > retention
}

// ActiveSessionForClass resolves the session a follower of the given class
// should attach to. When two leader instances broadcast to the same class at
// once (co-teaching is not ruled out), the most recently started active
// session wins so all followers converge on the same one.
func ActiveSessionForClass(sessions []*Session, classID string) *Session {
	var best *Session
	for _, session := range sessions {
		if !session.IsActive || session.ClassID != classID {
			continue
		}
		if best == nil || session.StartedAt.After(best.StartedAt) {
			best = session
		}
	}
	return best
}

// SessionByID returns the session with the given ID from a snapshot.
func SessionByID(sessions []*Session, sessionID string) (*Session, bool) {
	for _, session := range sessions {
		if session.ID == sessionID {
			return session, true
		}
	}
	return nil, false
}
