// Package app wires the engine together: store, notification channel,
// reconciliation loop, and the role-specific components on top of them.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"livefollow/internal/config"
	"livefollow/internal/follower"
	"livefollow/internal/leader"
	"livefollow/internal/notify"
	"livefollow/internal/panel"
	"livefollow/internal/presence"
	"livefollow/internal/reconcile"
	"livefollow/internal/store"
	"livefollow/pkg/interfaces"
)

// Role selects which side of the protocol this process runs.
type Role string

const (
	RoleLeader   Role = "leader"
	RoleFollower Role = "follower"
	RolePanel    Role = "panel"
)

// Options carries the per-process identity and role selection that does not
// belong in the shared config.
type Options struct {
	Role Role

	// Leader identity, used when Role is RoleLeader.
	LeaderID   string
	LeaderName string

	// Follower identity, used when Role is RoleFollower.
	FollowerID   string
	FollowerName string

	// EnablePanel serves the read-only panel endpoint alongside any role.
	// RolePanel implies it.
	EnablePanel bool
}

// Application coordinates all engine components with a fixed initialization
// order: store, notification channel, reconciliation loop, role components.
type Application struct {
	config   *config.Config
	options  Options
	logger   zerolog.Logger
	store    *store.Store
	notifier interfaces.NotificationChannel
	loop     *reconcile.Loop

	leaderManager  *leader.Manager
	tracker        *presence.Tracker
	followerClient *follower.Client
	panelServer    *panel.Server

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewApplication builds an application for the given role. Components are
// constructed but nothing runs until Start.
func NewApplication(cfg *config.Config, opts Options, logger zerolog.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	switch opts.Role {
	case RoleLeader, RoleFollower, RolePanel:
	default:
		return nil, fmt.Errorf("unknown role %q", opts.Role)
	}

	sessionStore, err := store.New(store.Config{
		Path:    cfg.Store.Path,
		Timeout: cfg.Store.Timeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	// The notification channel is latency-only. When the filesystem cannot
	// be watched the engine degrades to pure polling.
	var notifier interfaces.NotificationChannel
	notifier, err = notify.New(cfg.Store.Path, logger)
	if err != nil {
		if !errors.Is(err, interfaces.ErrChannelUnavailable) {
			_ = sessionStore.Close()
			return nil, fmt.Errorf("failed to open notification channel: %w", err)
		}
		logger.Warn().Err(err).Msg("notification channel unavailable, relying on polling alone")
		notifier = notify.NewNop()
	}

	loop := reconcile.New(sessionStore, notifier, reconcile.Config{
		Interval:      cfg.Timing.ReconcileInterval,
		PruneInterval: cfg.Timing.PruneInterval,
		Retention:     cfg.Timing.Retention,
	}, logger)

	a := &Application{
		config:   cfg,
		options:  opts,
		logger:   logger.With().Str("component", "app").Str("role", string(opts.Role)).Logger(),
		store:    sessionStore,
		notifier: notifier,
		loop:     loop,
	}

	switch opts.Role {
	case RoleLeader:
		a.leaderManager = leader.NewManager(sessionStore, notifier, leader.Config{
			LeaderID:          opts.LeaderID,
			LeaderName:        opts.LeaderName,
			HeartbeatInterval: cfg.Timing.HeartbeatInterval,
			ScrollDebounce:    cfg.Timing.ScrollDebounce,
		}, logger)
		loop.AddHandler(a.leaderManager.ApplySnapshot)

		a.tracker = presence.NewTracker(sessionStore, presence.Config{
			Interval:          cfg.Timing.PresenceInterval,
			InactiveThreshold: cfg.Timing.InactiveThreshold,
			NoticeTTL:         cfg.Timing.NoticeTTL,
		}, logger)

	case RoleFollower:
		a.followerClient = follower.NewClient(sessionStore, notifier, follower.Config{
			FollowerID:       opts.FollowerID,
			FollowerName:     opts.FollowerName,
			ActivityInterval: cfg.Timing.PresenceInterval,
		}, logger)
		loop.AddHandler(a.followerClient.Apply)
	}

	if opts.EnablePanel || opts.Role == RolePanel {
		a.panelServer = panel.NewServer(panel.Config{
			Host:         cfg.Panel.Host,
			Port:         cfg.Panel.Port,
			WriteTimeout: cfg.Panel.WriteTimeout,
			BufferSize:   cfg.Panel.BufferSize,
		}, logger)
		loop.AddHandler(a.panelServer.HandleSnapshot)
	}

	return a, nil
}

// Start launches the background loops. It is not restartable after Stop.
func (a *Application) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.started {
		return errors.New("application already started")
	}

	if a.panelServer != nil {
		if err := a.panelServer.Start(); err != nil {
			return fmt.Errorf("failed to start panel server: %w", err)
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop.Run(runCtx)
	}()

	if a.tracker != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.tracker.Run(runCtx)
		}()
	}

	if a.followerClient != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.followerClient.RunActivityReporter(runCtx)
		}()
	}

	a.started = true
	a.logger.Info().Str("store", a.config.Store.Path).Msg("application started")
	return nil
}

// Stop tears the application down in reverse dependency order: role
// components, background loops, panel, notification channel, store. A leader
// that is still sharing stops its session so followers unlock.
func (a *Application) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	a.started = false

	if a.leaderManager != nil {
		if err := a.leaderManager.Close(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("leader shutdown error")
		}
	}

	a.cancel()
	a.wg.Wait()

	if a.panelServer != nil {
		if err := a.panelServer.Stop(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("panel shutdown error")
		}
	}

	if err := a.notifier.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("notification channel shutdown error")
	}

	if err := a.store.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("store shutdown error")
	}

	a.logger.Info().Msg("application stopped")
	return nil
}

// Leader returns the leader session manager, nil unless Role is RoleLeader.
func (a *Application) Leader() *leader.Manager { return a.leaderManager }

// Tracker returns the presence tracker, nil unless Role is RoleLeader.
func (a *Application) Tracker() *presence.Tracker { return a.tracker }

// Follower returns the follower client, nil unless Role is RoleFollower.
func (a *Application) Follower() *follower.Client { return a.followerClient }

// Panel returns the panel server, nil unless one was enabled.
func (a *Application) Panel() *panel.Server { return a.panelServer }

// Store exposes the session store, mainly for health checks.
func (a *Application) Store() interfaces.SessionStore { return a.store }
