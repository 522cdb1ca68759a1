// Package presence tracks which followers of a session are attending.
// Followers report activity by writing their own presence entries into the
// shared store; the leader-side tracker periodically recomputes attention
// flags from last-seen times and raises transient notices when a follower
// goes inactive.
package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livefollow/pkg/interfaces"
	"livefollow/pkg/types"
)

// Config carries the tracker cadences.
type Config struct {
	// Interval is the recompute cadence.
	Interval time.Duration
	// InactiveThreshold is how long a follower may stay silent before it is
	// judged to have looked away.
	InactiveThreshold time.Duration
	// NoticeTTL is how long a "went inactive" notice stays visible.
	NoticeTTL time.Duration
}

// Tracker runs only while a local session is active and owned by this
// process. It never mutates anything except the recomputed activity flags.
type Tracker struct {
	store  interfaces.SessionStore
	config Config
	logger zerolog.Logger

	mu          sync.Mutex
	sessionID   string
	prevActive  map[string]bool
	notices     []types.PresenceNotice
	subscribers []chan types.PresenceNotice
}

// NewTracker creates a presence tracker bound to the shared store.
func NewTracker(store interfaces.SessionStore, cfg Config, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:      store,
		config:     cfg,
		logger:     logger.With().Str("component", "presence").Logger(),
		prevActive: make(map[string]bool),
	}
}

// Watch points the tracker at the leader's current session.
func (t *Tracker) Watch(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = sessionID
	t.prevActive = make(map[string]bool)
}

// Unwatch detaches the tracker, e.g. after the session stops.
func (t *Tracker) Unwatch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessionID = ""
	t.prevActive = make(map[string]bool)
}

// Run recomputes presence on the configured cadence until the context ends.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.Tick(ctx, time.Now()); err != nil && err != ErrTrackerNotWatching {
				// Store trouble degrades to a stale presence view, corrected
				// on a later tick.
				t.logger.Warn().Err(err).Msg("presence recompute failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// Tick recomputes every follower's attention flag from the latest store
// snapshot, persists changed flags, and raises a transient notice for each
// follower that transitioned active to inactive since the previous tick.
// Recomputed flags are observed by other participants through the
// reconciliation poll; no notification is fired.
func (t *Tracker) Tick(ctx context.Context, now time.Time) error {
	t.mu.Lock()
	sessionID := t.sessionID
	t.mu.Unlock()

	if sessionID == "" {
		return ErrTrackerNotWatching
	}

	sessions, err := t.store.ReadAll(ctx)
	if err != nil {
		return err
	}

	session, ok := types.SessionByID(sessions, sessionID)
	if !ok {
		return interfaces.ErrSessionNotFound
	}
	if !session.IsActive {
		// Ended sessions are immutable until retention prunes them. The
		// watch is stale, drop it.
		t.Unwatch()
		return ErrTrackerNotWatching
	}

	currActive := make(map[string]bool, len(session.ConnectedFollowers))
	changed := false
	var wentInactive []types.FollowerPresence

	for i := range session.ConnectedFollowers {
		follower := &session.ConnectedFollowers[i]
		recomputed := follower.IsActive && now.Sub(follower.LastSeen) < t.config.InactiveThreshold
		if recomputed != follower.IsActive {
			follower.IsActive = recomputed
			changed = true
		}
		currActive[follower.ID] = recomputed
	}

	t.mu.Lock()
	for i := range session.ConnectedFollowers {
		follower := session.ConnectedFollowers[i]
		if t.prevActive[follower.ID] && !currActive[follower.ID] {
			wentInactive = append(wentInactive, follower)
		}
	}
	t.prevActive = currActive
	t.mu.Unlock()

	if changed {
		if err := t.store.WriteAll(ctx, sessions); err != nil {
			return err
		}
	}

	for _, follower := range wentInactive {
		t.raiseNotice(sessionID, follower, now)
	}

	return nil
}

// raiseNotice records a transient "went inactive" notice and fans it out to
// subscribers without blocking.
func (t *Tracker) raiseNotice(sessionID string, follower types.FollowerPresence, now time.Time) {
	notice := types.PresenceNotice{
		SessionID:    sessionID,
		FollowerID:   follower.ID,
		FollowerName: follower.Name,
		OccurredAt:   now,
		ExpiresAt:    now.Add(t.config.NoticeTTL),
	}

	t.mu.Lock()
	t.notices = append(t.notices, notice)
	subscribers := t.subscribers
	t.mu.Unlock()

	t.logger.Info().
		Str("session_id", sessionID).
		Str("follower_id", follower.ID).
		Str("follower", follower.Name).
		Msg("follower went inactive")

	for _, ch := range subscribers {
		select {
		case ch <- notice:
		default:
			// Subscriber is not draining; it still sees the notice via
			// ActiveNotices until expiry.
		}
	}
}

// ActiveNotices returns the notices that have not yet expired, dropping
// expired ones from the internal list.
func (t *Tracker) ActiveNotices(now time.Time) []types.PresenceNotice {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.notices[:0]
	for _, notice := range t.notices {
		if now.Before(notice.ExpiresAt) {
			kept = append(kept, notice)
		}
	}
	t.notices = kept

	out := make([]types.PresenceNotice, len(kept))
	copy(out, kept)
	return out
}

// Subscribe returns a feed of presence notices for UIs.
func (t *Tracker) Subscribe() <-chan types.PresenceNotice {
	ch := make(chan types.PresenceNotice, 16)
	t.mu.Lock()
	t.subscribers = append(t.subscribers, ch)
	t.mu.Unlock()
	return ch
}
