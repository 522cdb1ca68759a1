package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"livefollow/pkg/types"
)

// Mock SessionStore for testing
type mockStore struct {
	mu         sync.Mutex
	sessions   []*types.Session
	readCount  int
	pruneCount int
	failReads  bool
}

func (m *mockStore) ReadAll(ctx context.Context) ([]*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCount++
	if m.failReads {
		return nil, errors.New("store read failed")
	}
	out := make([]*types.Session, len(m.sessions))
	copy(out, m.sessions)
	return out, nil
}

func (m *mockStore) WriteAll(ctx context.Context, sessions []*types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = sessions
	return nil
}

func (m *mockStore) Prune(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneCount++
	return 0, nil
}

func (m *mockStore) HealthCheck(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                          { return nil }

func (m *mockStore) reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readCount
}

func (m *mockStore) prunes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pruneCount
}

// Mock NotificationChannel with an injectable tick stream
type mockNotifier struct {
	ticks chan struct{}
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{ticks: make(chan struct{}, 1)}
}

func (n *mockNotifier) Notify() {
	select {
	case n.ticks <- struct{}{}:
	default:
	}
}

func (n *mockNotifier) Subscribe() <-chan struct{} { return n.ticks }
func (n *mockNotifier) Close() error               { return nil }

func TestLoop_SyncFeedsHandlers(t *testing.T) {
	store := &mockStore{sessions: []*types.Session{{ID: "s1"}}}
	loop := New(store, newMockNotifier(), Config{
		Interval:      time.Second,
		PruneInterval: time.Minute,
		Retention:     time.Hour,
	}, zerolog.Nop())

	var got []*types.Session
	loop.AddHandler(func(sessions []*types.Session) { got = sessions })

	loop.Sync(context.Background())

	if len(got) != 1 || got[0].ID != "s1" {
		t.Fatalf("handler did not receive the snapshot: %+v", got)
	}
}

func TestLoop_PollsOnInterval(t *testing.T) {
	store := &mockStore{}
	loop := New(store, newMockNotifier(), Config{
		Interval:      20 * time.Millisecond,
		PruneInterval: time.Minute,
		Retention:     time.Hour,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()
	<-done

	// Immediate first sync plus several interval polls.
	if store.reads() < 3 {
		t.Errorf("expected several polls in 150ms at a 20ms interval, got %d", store.reads())
	}
}

func TestLoop_NotificationTriggersImmediateSync(t *testing.T) {
	store := &mockStore{}
	notifier := newMockNotifier()
	loop := New(store, notifier, Config{
		// Slow poll so the extra sync is attributable to the notification.
		Interval:      time.Hour,
		PruneInterval: time.Hour,
		Retention:     time.Hour,
	}, zerolog.Nop())

	synced := make(chan struct{}, 8)
	loop.AddHandler(func([]*types.Session) { synced <- struct{}{} })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)

	// Drain the immediate startup sync.
	select {
	case <-synced:
	case <-time.After(time.Second):
		t.Fatal("no startup sync")
	}

	notifier.Notify()

	select {
	case <-synced:
	case <-time.After(time.Second):
		t.Fatal("notification did not trigger a sync")
	}
}

func TestLoop_PrunesOnSlowCadence(t *testing.T) {
	store := &mockStore{}
	loop := New(store, newMockNotifier(), Config{
		Interval:      time.Hour,
		PruneInterval: 20 * time.Millisecond,
		Retention:     time.Hour,
	}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	time.Sleep(120 * time.Millisecond)
	cancel()
	<-done

	if store.prunes() < 2 {
		t.Errorf("expected periodic prunes, got %d", store.prunes())
	}
}

func TestLoop_ReadFailureDegradesQuietly(t *testing.T) {
	store := &mockStore{failReads: true}
	loop := New(store, newMockNotifier(), Config{
		Interval:      time.Second,
		PruneInterval: time.Minute,
		Retention:     time.Hour,
	}, zerolog.Nop())

	called := false
	loop.AddHandler(func([]*types.Session) { called = true })

	loop.Sync(context.Background())

	if called {
		t.Error("handlers must not run on a failed read")
	}
}
