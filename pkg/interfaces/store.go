package interfaces

import (
	"context"
	"time"

	"livefollow/pkg/types"
)

// SessionStore is the device-local shared record of all known sessions.
// Every process on the device (leader, followers, panels) holds its own
// store handle against the same underlying file; all cross-process effects
// flow through it.
//
// WriteAll replaces the whole collection: last-writer-wins at collection
// granularity. Callers must read-modify-write the full snapshot, so a write
// racing another process's write can silently drop one change. That is an
// accepted trade-off — everything stored here is ephemeral presentation
// state, re-derivable from the leader's next heartbeat or update.
type SessionStore interface {
	// ReadAll returns a snapshot of every retained session. Callers own the
	// returned values and may mutate them freely.
	ReadAll(ctx context.Context) ([]*types.Session, error)

	// WriteAll replaces the stored collection with the given snapshot.
	WriteAll(ctx context.Context, sessions []*types.Session) error

	// Prune deletes sessions whose retention window has lapsed and returns
	// how many were removed. Active sessions are never pruned.
	Prune(ctx context.Context, now time.Time, retention time.Duration) (int, error)

	// HealthCheck verifies the store is readable.
	HealthCheck(ctx context.Context) error

	// Close releases the store handle. Pending writes complete first.
	Close() error
}

// NotificationChannel is the best-effort, low-latency wake-up signal fired
// after store writes. Delivery is not guaranteed — some execution contexts
// cannot watch for it at all — so every consumer also runs the
// reconciliation poll. Correctness never depends on a notification arriving.
type NotificationChannel interface {
	// Notify signals other processes that the store changed. Fire-and-forget;
	// failures are logged by implementations and never surfaced to callers.
	Notify()

	// Subscribe returns a channel that receives a tick for each observed
	// change signal. Bursts may coalesce into a single tick.
	Subscribe() <-chan struct{}

	// Close stops delivery and releases watch resources.
	Close() error
}
