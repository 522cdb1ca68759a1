// Package leader owns the publishing side of a live-follow session: creation,
// document and position updates, heartbeat emission, and teardown. One
// manager instance drives at most one session at a time.
package leader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"livefollow/pkg/interfaces"
	"livefollow/pkg/types"
)

// Config carries the manager's identity and cadences.
type Config struct {
	LeaderID   string
	LeaderName string

	HeartbeatInterval time.Duration
	ScrollDebounce    time.Duration
}

// Manager implements the leader session lifecycle. All store mutations are
// read-modify-write against the full snapshot; the local copy of the owned
// session exists only to answer views and detect no-op updates.
type Manager struct {
	store    interfaces.SessionStore
	notifier interfaces.NotificationChannel
	config   Config
	logger   zerolog.Logger

	mu      sync.Mutex
	current *types.Session
	closed  bool
	// docGen counts document switches; scroll values are tagged with the
	// generation they were read under so a debounce flush racing a switch
	// cannot land an old document's position on the new one.
	docGen uint64

	heartbeatStop chan struct{}
	heartbeatDone chan struct{}

	debounce *scrollDebouncer

	watchers []chan types.LeaderView
}

// NewManager creates a leader session manager.
func NewManager(store interfaces.SessionStore, notifier interfaces.NotificationChannel, cfg Config, logger zerolog.Logger) *Manager {
	m := &Manager{
		store:    store,
		notifier: notifier,
		config:   cfg,
		logger:   logger.With().Str("component", "leader").Str("leader_id", cfg.LeaderID).Logger(),
	}
	m.debounce = newScrollDebouncer(cfg.ScrollDebounce, m.commitScroll)
	return m
}

// StartSession creates a new active session for the given class and document
// and publishes it. When this instance already drives an active session the
// call is a no-op returning the existing session: one leader instance, one
// session at a time. The store does not enforce exclusivity across different
// leader instances.
func (m *Manager) StartSession(ctx context.Context, classID, className, documentPath, documentTitle string) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if m.current != nil && m.current.IsActive {
		m.logger.Debug().Str("session_id", m.current.ID).Msg("start ignored, session already active")
		return m.current.Clone(), nil
	}

	if !types.IsValidID(classID) || className == "" {
		return nil, ErrInvalidClass
	}
	if !types.IsValidDocumentPath(documentPath) {
		return nil, ErrInvalidDocument
	}

	now := time.Now()
	session := &types.Session{
		ID:                 uuid.New().String(),
		ClassID:            classID,
		ClassName:          className,
		LeaderID:           m.config.LeaderID,
		LeaderName:         m.config.LeaderName,
		IsActive:           true,
		StartedAt:          now,
		DocumentPath:       documentPath,
		DocumentTitle:      documentTitle,
		ScrollPosition:     0,
		LastHeartbeat:      now,
		ConnectedFollowers: []types.FollowerPresence{},
	}

	if err := m.publishLocked(ctx, session, true); err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	m.current = session
	m.docGen++
	m.startHeartbeatLocked()
	m.notifyWatchersLocked()

	m.logger.Info().
		Str("session_id", session.ID).
		Str("class_id", classID).
		Str("document", documentPath).
		Msg("session started")

	return session.Clone(), nil
}

// StopSession marks the current session inactive, publishes the change and
// clears local leader state. Idempotent: with no active session it does
// nothing.
func (m *Manager) StopSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopSessionLocked(ctx)
}

func (m *Manager) stopSessionLocked(ctx context.Context) error {
	if m.current == nil {
		return nil
	}

	m.stopHeartbeatLocked()
	m.debounce.cancel()

	sessionID := m.current.ID
	m.current.IsActive = false

	err := m.mutateStoreLocked(ctx, func(stored *types.Session) {
		stored.IsActive = false
	}, true)

	m.current = nil
	m.notifyWatchersLocked()

	if err != nil {
		// The local state is cleared regardless: the session is already
		// unfollowable from this process and the store converges on the
		// next successful write.
		m.logger.Error().Err(err).Str("session_id", sessionID).Msg("failed to publish session stop")
		return err
	}

	m.logger.Info().Str("session_id", sessionID).Msg("session stopped")
	return nil
}

// UpdateDocument switches the session to a new document. Same-path calls are
// no-ops; a real switch resets the scroll position to zero because positions
// are document-relative.
func (m *Manager) UpdateDocument(ctx context.Context, path, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || !m.current.IsActive {
		return ErrNoActiveSession
	}
	if m.current.DocumentPath == path {
		return nil
	}
	if !types.IsValidDocumentPath(path) {
		return ErrInvalidDocument
	}

	m.debounce.cancel()
	m.docGen++

	m.current.DocumentPath = path
	m.current.DocumentTitle = title
	m.current.ScrollPosition = 0
	m.current.CurrentSection = nil

	err := m.mutateStoreLocked(ctx, func(stored *types.Session) {
		stored.DocumentPath = path
		stored.DocumentTitle = title
		stored.ScrollPosition = 0
		stored.CurrentSection = nil
	}, true)
	if err != nil {
		m.logger.Error().Err(err).Str("path", path).Msg("failed to publish document update")
		return err
	}

	m.notifyWatchersLocked()
	m.logger.Debug().Str("path", path).Str("title", title).Msg("document updated")
	return nil
}

// UpdateScrollPosition publishes the leader's scroll offset. Calls are
// debounced: rapid updates inside one window coalesce into a single store
// write carrying the last value. Fire-and-forget.
func (m *Manager) UpdateScrollPosition(y float64) {
	m.mu.Lock()
	sharing := m.current != nil && m.current.IsActive
	gen := m.docGen
	m.mu.Unlock()

	if !sharing {
		return
	}
	m.debounce.update(y, gen)
}

// UpdateSection publishes a logical anchor within the current document.
// Sections change rarely, so the write is immediate, no debounce.
func (m *Manager) UpdateSection(ctx context.Context, sectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || !m.current.IsActive {
		return ErrNoActiveSession
	}

	section := sectionID
	m.current.CurrentSection = &section

	err := m.mutateStoreLocked(ctx, func(stored *types.Session) {
		s := section
		stored.CurrentSection = &s
	}, true)
	if err != nil {
		m.logger.Error().Err(err).Str("section", sectionID).Msg("failed to publish section update")
		return err
	}

	m.notifyWatchersLocked()
	return nil
}

// commitScroll is the debouncer's flush target.
func (m *Manager) commitScroll(y float64, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A flush landing after stop is harmless but pointless; consumers check
	// IsActive anyway.
	if m.current == nil || !m.current.IsActive {
		return
	}
	// A flush armed before a document switch carries the old document's
	// position. Positions are document-relative, so drop it.
	if gen != m.docGen {
		return
	}

	m.current.ScrollPosition = y

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.mutateStoreLocked(ctx, func(stored *types.Session) {
		stored.ScrollPosition = y
	}, true)
	if err != nil {
		m.logger.Warn().Err(err).Float64("y", y).Msg("failed to publish scroll position")
		return
	}

	m.notifyWatchersLocked()
}

// IsSharing reports whether this instance currently drives an active session.
func (m *Manager) IsSharing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.IsActive
}

// CurrentSession returns a copy of the owned session, or nil.
func (m *Manager) CurrentSession() *types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

// ConnectedFollowers returns the presence list of the owned session.
func (m *Manager) ConnectedFollowers() []types.FollowerPresence {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil
	}
	followers := make([]types.FollowerPresence, len(m.current.ConnectedFollowers))
	copy(followers, m.current.ConnectedFollowers)
	return followers
}

// View returns the leader-side read-only view for UIs.
func (m *Manager) View() types.LeaderView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

func (m *Manager) viewLocked() types.LeaderView {
	view := types.LeaderView{}
	if m.current != nil && m.current.IsActive {
		view.IsSharing = true
		view.CurrentSession = m.current.Clone()
		view.ConnectedFollowers = view.CurrentSession.ConnectedFollowers
	}
	return view
}

// Subscribe returns a coalescing feed of leader view snapshots. UIs re-render
// from the latest value; intermediate states may be skipped.
func (m *Manager) Subscribe() <-chan types.LeaderView {
	ch := make(chan types.LeaderView, 1)
	m.mu.Lock()
	m.watchers = append(m.watchers, ch)
	ch <- m.viewLocked()
	m.mu.Unlock()
	return ch
}

// ApplySnapshot is the reconciliation entry point. Followers mutate their
// own presence entries in the store, so the snapshot is authoritative for
// the follower list; leader-owned fields keep their local values.
func (m *Manager) ApplySnapshot(sessions []*types.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}

	stored, ok := types.SessionByID(sessions, m.current.ID)
	if !ok {
		return
	}

	if followersEqual(m.current.ConnectedFollowers, stored.ConnectedFollowers) {
		return
	}

	m.current.ConnectedFollowers = make([]types.FollowerPresence, len(stored.ConnectedFollowers))
	copy(m.current.ConnectedFollowers, stored.ConnectedFollowers)
	m.notifyWatchersLocked()
}

// Close is the teardown hook for process-exit signals: it synchronously
// stops any active session, best-effort. A hard crash skips this path and
// leaves the session marked active in the store — an accepted gap.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	err := m.stopSessionLocked(ctx)

	for _, ch := range m.watchers {
		close(ch)
	}
	m.watchers = nil

	return err
}

// publishLocked appends a brand-new session to the store snapshot.
func (m *Manager) publishLocked(ctx context.Context, session *types.Session, notify bool) error {
	sessions, err := m.store.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store: %w", err)
	}
	sessions = append(sessions, session.Clone())
	if err := m.store.WriteAll(ctx, sessions); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if notify {
		m.notifier.Notify()
	}
	return nil
}

// mutateStoreLocked applies a mutation to the stored copy of the owned
// session via read-modify-write. If the session disappeared from the store
// (pruned or lost to a racing whole-collection write) the local copy is
// re-inserted: the leader is authoritative for its own session while active.
func (m *Manager) mutateStoreLocked(ctx context.Context, mutate func(*types.Session), notify bool) error {
	sessions, err := m.store.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store: %w", err)
	}

	stored, ok := types.SessionByID(sessions, m.current.ID)
	if !ok {
		stored = m.current.Clone()
		sessions = append(sessions, stored)
	}
	mutate(stored)

	if err := m.store.WriteAll(ctx, sessions); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if notify {
		m.notifier.Notify()
	}
	return nil
}

func (m *Manager) notifyWatchersLocked() {
	view := m.viewLocked()
	for _, ch := range m.watchers {
		select {
		case ch <- view:
		default:
			// Watcher still holds an older view; drain and replace so it
			// always observes the latest state.
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

// startHeartbeatLocked launches the heartbeat goroutine. Heartbeats rewrite
// LastHeartbeat on a fixed cadence without firing the notification channel:
// they are observed through the reconciliation poll, not pushed.
func (m *Manager) startHeartbeatLocked() {
	stop := make(chan struct{})
	done := make(chan struct{})
	m.heartbeatStop = stop
	m.heartbeatDone = done

	go func() {
		defer close(done)

		ticker := time.NewTicker(m.config.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.beat()
			case <-stop:
				return
			}
		}
	}()
}

func (m *Manager) stopHeartbeatLocked() {
	if m.heartbeatStop == nil {
		return
	}
	close(m.heartbeatStop)
	m.heartbeatStop = nil
	// The goroutine may be inside beat() waiting on m.mu, so waiting for
	// done here would deadlock; it exits on its next select.
	m.heartbeatDone = nil
}

func (m *Manager) beat() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil || !m.current.IsActive {
		return
	}

	now := time.Now()
	m.current.LastHeartbeat = now

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.mutateStoreLocked(ctx, func(stored *types.Session) {
		stored.LastHeartbeat = now
	}, false)
	if err != nil {
		m.logger.Warn().Err(err).Msg("heartbeat write failed")
	}
}

func followersEqual(a, b []types.FollowerPresence) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
