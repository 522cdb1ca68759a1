// Package reconcile drives the level-triggered half of the protocol: a
// fixed-interval poll of the shared store that every participant runs in
// addition to subscribing to the notification channel. Handlers re-derive
// their views purely from the latest snapshot, so correctness depends only on
// eventually reading fresh state, never on catching a notification.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"livefollow/pkg/interfaces"
	"livefollow/pkg/types"
)

// Handler consumes a store snapshot. The snapshot is shared between
// handlers and must be treated as read-only; handlers clone what they keep.
type Handler func(sessions []*types.Session)

// Config carries the loop cadences.
type Config struct {
	// Interval is the poll cadence, the correctness backstop.
	Interval time.Duration
	// PruneInterval is how often retention housekeeping runs.
	PruneInterval time.Duration
	// Retention is how long inactive sessions stay readable.
	Retention time.Duration
}

// Loop polls the store and fans snapshots out to handlers. A notification
// tick triggers an immediate extra poll for latency; the ticker guarantees
// progress when notifications are missed or unsupported.
type Loop struct {
	store    interfaces.SessionStore
	notifier interfaces.NotificationChannel
	config   Config
	logger   zerolog.Logger

	mu       sync.Mutex
	handlers []Handler
}

// New creates a reconciliation loop over the given store and channel.
func New(store interfaces.SessionStore, notifier interfaces.NotificationChannel, cfg Config, logger zerolog.Logger) *Loop {
	return &Loop{
		store:    store,
		notifier: notifier,
		config:   cfg,
		logger:   logger.With().Str("component", "reconcile").Logger(),
	}
}

// AddHandler registers a snapshot consumer. Handlers added after Run starts
// receive snapshots from the next sync onward.
func (l *Loop) AddHandler(handler Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, handler)
}

// Run polls until the context ends. The first sync happens immediately so
// participants start from a fresh snapshot rather than waiting one interval.
func (l *Loop) Run(ctx context.Context) {
	ticks := l.notifier.Subscribe()

	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	pruneTicker := time.NewTicker(l.config.PruneInterval)
	defer pruneTicker.Stop()

	l.Sync(ctx)

	for {
		select {
		case <-ticker.C:
			l.Sync(ctx)

		case _, ok := <-ticks:
			if !ok {
				// Channel closed; keep polling, which is sufficient alone.
				ticks = nil
				continue
			}
			l.Sync(ctx)

		case <-pruneTicker.C:
			if _, err := l.store.Prune(ctx, time.Now(), l.config.Retention); err != nil {
				l.logger.Warn().Err(err).Msg("retention prune failed")
			}

		case <-ctx.Done():
			return
		}
	}
}

// Sync reads the store once and feeds every handler. Read failures degrade
// to a stale view, corrected on a later poll.
func (l *Loop) Sync(ctx context.Context) {
	sessions, err := l.store.ReadAll(ctx)
	if err != nil {
		l.logger.Warn().Err(err).Msg("reconciliation read failed")
		return
	}

	l.mu.Lock()
	handlers := make([]Handler, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.Unlock()

	for _, handler := range handlers {
		handler(sessions)
	}
}
