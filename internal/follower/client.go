// Package follower mirrors a leader's published document and position state
// and reports this process's own attendance back into the shared store.
package follower

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livefollow/internal/presence"
	"livefollow/pkg/interfaces"
	"livefollow/pkg/types"
)

// Config carries the client's identity and reporting cadence.
type Config struct {
	FollowerID   string
	FollowerName string

	// ActivityInterval is how often the client refreshes its last-seen time
	// while following and attending.
	ActivityInterval time.Duration
}

// Client is the follower session client. It holds a mirrored copy of the
// followed session, kept current by reconciliation snapshots, and exposes the
// follower-side read-only view to the host UI.
type Client struct {
	store    interfaces.SessionStore
	notifier interfaces.NotificationChannel
	config   Config
	logger   zerolog.Logger

	mu       sync.Mutex
	session  *types.Session
	active   bool
	watchers []chan types.FollowerView
}

// NewClient creates a follower session client.
func NewClient(store interfaces.SessionStore, notifier interfaces.NotificationChannel, cfg Config, logger zerolog.Logger) *Client {
	return &Client{
		store:    store,
		notifier: notifier,
		config:   cfg,
		logger:   logger.With().Str("component", "follower").Str("follower_id", cfg.FollowerID).Logger(),
		active:   true,
	}
}

// JoinSession attaches to the given session. It succeeds only when the
// session exists in the store and is active; a missing or ended session
// reports plain failure — "nothing to follow", not an error condition.
func (c *Client) JoinSession(ctx context.Context, sessionID string) bool {
	sessions, err := c.store.ReadAll(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("join failed, store unreadable")
		return false
	}

	session, ok := types.SessionByID(sessions, sessionID)
	if !ok || !session.IsActive {
		return false
	}

	c.mu.Lock()
	c.session = session.Clone()
	c.mu.Unlock()

	if err := presence.RegisterFollower(ctx, c.store, c.notifier, sessionID, c.config.FollowerID, c.config.FollowerName); err != nil {
		if errors.Is(err, types.ErrInvalidFollowerID) {
			// A broken identity can never register; retrying through the
			// activity ticker would fail the same way, so refuse the join.
			c.mu.Lock()
			c.session = nil
			c.mu.Unlock()
			c.logger.Error().Err(err).Str("session_id", sessionID).Msg("join rejected, invalid follower identity")
			return false
		}
		// Transient registration failure degrades to "following but invisible
		// on the leader's roster"; the activity ticker retries.
		c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("presence registration failed")
	}

	c.logger.Info().Str("session_id", sessionID).Msg("joined session")
	c.notifyWatchers()
	return true
}

// JoinClass attaches to the class's current active session, if any.
func (c *Client) JoinClass(ctx context.Context, classID string) bool {
	session, err := ActiveSessionForClass(ctx, c.store, classID)
	if err != nil || session == nil {
		return false
	}
	return c.JoinSession(ctx, session.ID)
}

// LeaveSession clears the locally-followed session. In the normal flow the
// UI invokes this only after reconciliation shows the leader stopped.
func (c *Client) LeaveSession() {
	c.mu.Lock()
	cleared := c.session != nil
	c.session = nil
	c.mu.Unlock()

	if cleared {
		c.logger.Info().Msg("left session")
		c.notifyWatchers()
	}
}

// ReportActivity is the host's explicit focus/blur signal. It updates the
// follower's own presence entry immediately.
func (c *Client) ReportActivity(ctx context.Context, isActive bool) {
	c.mu.Lock()
	c.active = isActive
	sessionID := ""
	if c.session != nil {
		sessionID = c.session.ID
	}
	c.mu.Unlock()

	if sessionID == "" {
		return
	}

	err := presence.UpdateFollowerActivity(ctx, c.store, c.notifier, sessionID, c.config.FollowerID, isActive)
	if err != nil {
		c.logger.Warn().Err(err).Bool("active", isActive).Msg("activity report failed")
	}
}

// RunActivityReporter refreshes this follower's last-seen time on a fixed
// cadence while following and attending, until the context ends.
func (c *Client) RunActivityReporter(ctx context.Context) {
	ticker := time.NewTicker(c.config.ActivityInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.refreshPresence(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) refreshPresence(ctx context.Context) {
	c.mu.Lock()
	sessionID := ""
	if c.session != nil && c.active {
		sessionID = c.session.ID
	}
	c.mu.Unlock()

	if sessionID == "" {
		return
	}

	// Re-registration refreshes last-seen and keeps the entry active.
	err := presence.RegisterFollower(ctx, c.store, c.notifier, sessionID, c.config.FollowerID, c.config.FollowerName)
	if err != nil {
		c.logger.Debug().Err(err).Msg("presence refresh failed")
	}
}

// Apply is the reconciliation entry point: it re-derives the mirrored state
// from the latest store snapshot. A followed session that disappeared or
// went inactive clears the follow; any change to the mirrored document,
// scroll position or section re-renders subscribers.
func (c *Client) Apply(sessions []*types.Session) {
	c.mu.Lock()

	if c.session == nil {
		c.mu.Unlock()
		return
	}

	stored, ok := types.SessionByID(sessions, c.session.ID)
	if !ok || !stored.IsActive {
		c.session = nil
		c.mu.Unlock()
		c.logger.Info().Msg("followed session ended")
		c.notifyWatchers()
		return
	}

	changed := c.session.DocumentPath != stored.DocumentPath ||
		c.session.DocumentTitle != stored.DocumentTitle ||
		c.session.ScrollPosition != stored.ScrollPosition ||
		!sectionEqual(c.session.CurrentSection, stored.CurrentSection)

	c.session = stored.Clone()
	c.mu.Unlock()

	if changed {
		c.notifyWatchers()
	}
}

// IsLocked reports whether this follower is attached to a live broadcast.
// The host application is expected to restrict navigation while locked.
func (c *Client) IsLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.IsActive
}

// ActiveSession returns a copy of the followed session, or nil.
func (c *Client) ActiveSession() *types.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// View returns the follower-side read-only view for UIs.
func (c *Client) View() types.FollowerView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Client) viewLocked() types.FollowerView {
	view := types.FollowerView{}
	if c.session != nil && c.session.IsActive {
		view.IsLocked = true
		view.ActiveSession = c.session.Clone()
	}
	return view
}

// Subscribe returns a coalescing feed of follower view snapshots.
func (c *Client) Subscribe() <-chan types.FollowerView {
	ch := make(chan types.FollowerView, 1)
	c.mu.Lock()
	c.watchers = append(c.watchers, ch)
	ch <- c.viewLocked()
	c.mu.Unlock()
	return ch
}

func (c *Client) notifyWatchers() {
	c.mu.Lock()
	view := c.viewLocked()
	watchers := c.watchers
	c.mu.Unlock()

	for _, ch := range watchers {
		select {
		case ch <- view:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- view:
			default:
			}
		}
	}
}

// ActiveSessionForClass resolves the class's current active session from a
// fresh store read. Nil without error means no active broadcast.
func ActiveSessionForClass(ctx context.Context, store interfaces.SessionStore, classID string) (*types.Session, error) {
	sessions, err := store.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	return types.ActiveSessionForClass(sessions, classID).Clone(), nil
}

func sectionEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
