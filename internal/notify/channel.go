// Package notify implements the best-effort cross-process wake-up signal.
// A store write is announced by rewriting a marker file next to the store;
// other processes watch the directory and tick their subscribers. Delivery
// is not guaranteed — the reconciliation poll remains the correctness
// backstop for every consumer.
package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"livefollow/pkg/interfaces"
)

// MarkerSuffix is appended to the store path to form the marker file name.
const MarkerSuffix = ".notify"

// Channel is the fsnotify-backed NotificationChannel.
type Channel struct {
	markerPath string
	watcher    *fsnotify.Watcher
	logger     zerolog.Logger

	mu          sync.Mutex
	subscribers []chan struct{}
	closed      bool
	done        chan struct{}
}

// New builds a channel keyed on the store path. When the platform cannot
// provide a file watcher the error wraps ErrChannelUnavailable and callers
// degrade to polling-only via Nop.
func New(storePath string, logger zerolog.Logger) (*Channel, error) {
	markerPath := storePath + MarkerSuffix
	dir := filepath.Dir(markerPath)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrChannelUnavailable, err)
	}

	// Watch the directory, not the marker file: the marker may not exist yet
	// and directory watches survive file replacement.
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("%w: %v", interfaces.ErrChannelUnavailable, err)
	}

	c := &Channel{
		markerPath: markerPath,
		watcher:    watcher,
		logger:     logger.With().Str("component", "notify").Logger(),
		done:       make(chan struct{}),
	}

	go c.watchLoop()

	return c, nil
}

// Notify signals other processes that the store changed. Fire-and-forget:
// a failed marker write is logged and swallowed, since the poll corrects
// any missed signal.
func (c *Channel) Notify() {
	payload := strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.WriteFile(c.markerPath, []byte(payload), 0o644); err != nil {
		c.logger.Warn().Err(err).Msg("failed to write notify marker")
	}
}

// Subscribe returns a channel receiving one tick per observed change signal.
// Bursts coalesce: a subscriber that has not drained its pending tick does
// not accumulate more.
func (c *Channel) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch
	}
	c.subscribers = append(c.subscribers, ch)
	return ch
}

// Close stops the watcher and closes all subscriber channels.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	err := c.watcher.Close()

	c.mu.Lock()
	for _, ch := range c.subscribers {
		close(ch)
	}
	c.subscribers = nil
	c.mu.Unlock()

	return err
}

// watchLoop forwards marker-file events to subscribers.
func (c *Channel) watchLoop() {
	for {
		select {
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(c.markerPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			c.broadcast()

		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			// Watcher trouble is not fatal: consumers keep polling.
			c.logger.Warn().Err(err).Msg("notification watcher error")

		case <-c.done:
			return
		}
	}
}

func (c *Channel) broadcast() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for _, ch := range c.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// Subscriber already has a pending tick.
		}
	}
}
