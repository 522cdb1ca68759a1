package follower

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"livefollow/pkg/types"
)

// Mock SessionStore for testing
type mockStore struct {
	mu       sync.Mutex
	sessions []*types.Session
}

func (m *mockStore) ReadAll(ctx context.Context) ([]*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.Session, len(m.sessions))
	for i, s := range m.sessions {
		out[i] = s.Clone()
	}
	return out, nil
}

func (m *mockStore) WriteAll(ctx context.Context, sessions []*types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions = make([]*types.Session, len(sessions))
	for i, s := range sessions {
		m.sessions[i] = s.Clone()
	}
	return nil
}

func (m *mockStore) Prune(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	return 0, nil
}
func (m *mockStore) HealthCheck(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                          { return nil }

func (m *mockStore) session(id string) *types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.ID == id {
			return s.Clone()
		}
	}
	return nil
}

func (m *mockStore) mutate(id string, fn func(*types.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if s.ID == id {
			fn(s)
			return
		}
	}
}

type mockNotifier struct{}

func (mockNotifier) Notify()                    {}
func (mockNotifier) Subscribe() <-chan struct{} { return nil }
func (mockNotifier) Close() error               { return nil }

func newSession(id, classID string, active bool, startedAt time.Time) *types.Session {
	return &types.Session{
		ID:            id,
		ClassID:       classID,
		ClassName:     "6.A",
		LeaderID:      "teacher-1",
		LeaderName:    "Ms. Novak",
		IsActive:      active,
		StartedAt:     startedAt,
		DocumentPath:  "/doc/1",
		DocumentTitle: "Lesson 1",
		LastHeartbeat: startedAt,
	}
}

func newTestClient(store *mockStore) *Client {
	return NewClient(store, mockNotifier{}, Config{
		FollowerID:       "f1",
		FollowerName:     "Petr",
		ActivityInterval: 2 * time.Second,
	}, zerolog.Nop())
}

func TestClient_JoinRequiresActiveSession(t *testing.T) {
	store := &mockStore{sessions: []*types.Session{
		newSession("live", "c1", true, time.Now()),
		newSession("ended", "c1", false, time.Now()),
	}}
	c := newTestClient(store)
	ctx := context.Background()

	if c.JoinSession(ctx, "ended") {
		t.Error("joining an inactive session must fail, however recently it ended")
	}
	if c.JoinSession(ctx, "missing") {
		t.Error("joining a missing session must fail")
	}
	if !c.JoinSession(ctx, "live") {
		t.Error("joining an active session must succeed")
	}
	if !c.IsLocked() {
		t.Error("client must be locked while following a live session")
	}
}

func TestClient_JoinFailsOnInvalidIdentity(t *testing.T) {
	store := &mockStore{sessions: []*types.Session{newSession("s1", "c1", true, time.Now())}}
	c := NewClient(store, mockNotifier{}, Config{
		FollowerID:       "not a valid id!",
		FollowerName:     "Petr",
		ActivityInterval: 2 * time.Second,
	}, zerolog.Nop())

	if c.JoinSession(context.Background(), "s1") {
		t.Error("a follower with an unregistrable identity must not join")
	}
	if c.IsLocked() {
		t.Error("a rejected join must leave the client unlocked")
	}
	if got := store.session("s1").ConnectedFollowers; len(got) != 0 {
		t.Errorf("no presence entry may be written for an invalid identity: %+v", got)
	}
}

func TestClient_JoinRegistersPresence(t *testing.T) {
	store := &mockStore{sessions: []*types.Session{newSession("s1", "c1", true, time.Now())}}
	c := newTestClient(store)

	if !c.JoinSession(context.Background(), "s1") {
		t.Fatal("join failed")
	}

	session := store.session("s1")
	if len(session.ConnectedFollowers) != 1 || session.ConnectedFollowers[0].ID != "f1" {
		t.Fatalf("presence entry not written on join: %+v", session.ConnectedFollowers)
	}
}

func TestClient_ApplyMirrorsLeaderUpdates(t *testing.T) {
	store := &mockStore{sessions: []*types.Session{newSession("s1", "c1", true, time.Now())}}
	c := newTestClient(store)
	ctx := context.Background()

	if !c.JoinSession(ctx, "s1") {
		t.Fatal("join failed")
	}

	// Leader switches documents; the position resets with it.
	store.mutate("s1", func(s *types.Session) {
		s.DocumentPath = "/doc/2"
		s.DocumentTitle = "Lesson 2"
		s.ScrollPosition = 0
	})

	snapshot, _ := store.ReadAll(ctx)
	c.Apply(snapshot)

	mirrored := c.ActiveSession()
	if mirrored.DocumentTitle != "Lesson 2" || mirrored.DocumentPath != "/doc/2" {
		t.Errorf("document not mirrored: %s %s", mirrored.DocumentPath, mirrored.DocumentTitle)
	}
	if mirrored.ScrollPosition != 0 {
		t.Errorf("scroll must mirror the reset, got %v", mirrored.ScrollPosition)
	}
}

func TestClient_ApplyClearsStateWhenSessionStops(t *testing.T) {
	store := &mockStore{sessions: []*types.Session{newSession("s1", "c1", true, time.Now())}}
	c := newTestClient(store)
	ctx := context.Background()

	if !c.JoinSession(ctx, "s1") {
		t.Fatal("join failed")
	}

	store.mutate("s1", func(s *types.Session) { s.IsActive = false })

	snapshot, _ := store.ReadAll(ctx)
	c.Apply(snapshot)

	if c.IsLocked() {
		t.Error("client must unlock once the followed session goes inactive")
	}
	if c.ActiveSession() != nil {
		t.Error("followed session state must clear on stop")
	}
}

func TestClient_ApplyClearsStateWhenSessionPruned(t *testing.T) {
	store := &mockStore{sessions: []*types.Session{newSession("s1", "c1", true, time.Now())}}
	c := newTestClient(store)

	if !c.JoinSession(context.Background(), "s1") {
		t.Fatal("join failed")
	}

	c.Apply(nil) // empty snapshot: the session is gone from the store

	if c.IsLocked() || c.ActiveSession() != nil {
		t.Error("client must clear state when the session disappears")
	}
}

func TestClient_SubscribeSeesMirrorChanges(t *testing.T) {
	store := &mockStore{sessions: []*types.Session{newSession("s1", "c1", true, time.Now())}}
	c := newTestClient(store)
	ctx := context.Background()

	views := c.Subscribe()
	if view := <-views; view.IsLocked {
		t.Error("initial view must not be locked")
	}

	if !c.JoinSession(ctx, "s1") {
		t.Fatal("join failed")
	}

	select {
	case view := <-views:
		if !view.IsLocked || view.ActiveSession == nil {
			t.Errorf("expected locked view after join, got %+v", view)
		}
	case <-time.After(time.Second):
		t.Fatal("no view delivered after join")
	}
}

func TestClient_ReportActivity(t *testing.T) {
	store := &mockStore{sessions: []*types.Session{newSession("s1", "c1", true, time.Now())}}
	c := newTestClient(store)
	ctx := context.Background()

	if !c.JoinSession(ctx, "s1") {
		t.Fatal("join failed")
	}

	c.ReportActivity(ctx, false)

	session := store.session("s1")
	if session.ConnectedFollowers[0].IsActive {
		t.Error("explicit inactive report must reach the store immediately")
	}
}

func TestClient_JoinClass(t *testing.T) {
	now := time.Now()
	store := &mockStore{sessions: []*types.Session{
		newSession("older", "c1", true, now.Add(-time.Hour)),
		newSession("newer", "c1", true, now),
	}}
	c := newTestClient(store)

	if !c.JoinClass(context.Background(), "c1") {
		t.Fatal("JoinClass failed with an active session present")
	}
	if c.ActiveSession().ID != "newer" {
		t.Errorf("JoinClass must pick the most recent active session, got %s", c.ActiveSession().ID)
	}

	if c2 := newTestClient(store); c2.JoinClass(context.Background(), "empty-class") {
		t.Error("JoinClass must fail for a class with no active session")
	}
}

func TestActiveSessionForClass_NilWithoutError(t *testing.T) {
	store := &mockStore{}

	session, err := ActiveSessionForClass(context.Background(), store, "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session != nil {
		t.Errorf("expected nil session for empty store, got %+v", session)
	}
}
