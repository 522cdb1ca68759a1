package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"livefollow/internal/app"
	"livefollow/internal/config"
)

const shutdownTimeout = 30 * time.Second

func loadConfig(cmd *cobra.Command) *config.Config {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("LIVEFOLLOW_CONFIG_FILE")
	}
	return config.LoadWithPrecedence(path)
}

// runUntilSignal starts the application, runs the role-specific body, and
// tears everything down on SIGINT/SIGTERM or when the body returns an error.
func runUntilSignal(application *app.Application, logger zerolog.Logger, body func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	bodyErrCh := make(chan error, 1)
	go func() {
		bodyErrCh <- body(ctx)
	}()

	select {
	case err := <-bodyErrCh:
		if err != nil {
			shutdown(application, logger)
			return err
		}
		// Body finished; keep serving until a signal arrives.
		sig := <-signalCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case sig := <-signalCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	cancel()
	return shutdown(application, logger)
}

func shutdown(application *app.Application, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := application.Stop(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

func newLeadCommand(logger zerolog.Logger) *cobra.Command {
	var (
		classID    string
		className  string
		leaderID   string
		leaderName string
		document   string
		title      string
		servePanel bool
	)

	cmd := &cobra.Command{
		Use:   "lead",
		Short: "Broadcast a document to followers of a class",
		RunE: func(cmd *cobra.Command, args []string) error {
			if className == "" {
				className = classID
			}
			if leaderName == "" {
				leaderName = leaderID
			}
			if title == "" {
				title = document
			}

			application, err := app.NewApplication(loadConfig(cmd), app.Options{
				Role:        app.RoleLeader,
				LeaderID:    leaderID,
				LeaderName:  leaderName,
				EnablePanel: servePanel,
			}, logger)
			if err != nil {
				return err
			}

			return runUntilSignal(application, logger, func(ctx context.Context) error {
				session, err := application.Leader().StartSession(ctx, classID, className, document, title)
				if err != nil {
					return fmt.Errorf("failed to start session: %w", err)
				}
				logger.Info().
					Str("session_id", session.ID).
					Str("class_id", classID).
					Str("document", document).
					Msg("broadcasting")

				application.Tracker().Watch(session.ID)

				go func() {
					for notice := range application.Tracker().Subscribe() {
						logger.Info().
							Str("follower", notice.FollowerName).
							Msg("follower went inactive")
					}
				}()

				go func() {
					for view := range application.Leader().Subscribe() {
						logger.Debug().
							Int("followers", len(view.ConnectedFollowers)).
							Msg("roster updated")
					}
				}()

				return nil
			})
		},
	}

	cmd.Flags().StringVar(&classID, "class-id", "", "class to broadcast to (required)")
	cmd.Flags().StringVar(&className, "class-name", "", "human-readable class name")
	cmd.Flags().StringVar(&leaderID, "leader-id", "", "leader identifier (required)")
	cmd.Flags().StringVar(&leaderName, "leader-name", "", "human-readable leader name")
	cmd.Flags().StringVar(&document, "doc", "", "document path to open the broadcast on (required)")
	cmd.Flags().StringVar(&title, "title", "", "document title shown to followers")
	cmd.Flags().BoolVar(&servePanel, "panel", false, "also serve the read-only panel endpoint")
	_ = cmd.MarkFlagRequired("class-id")
	_ = cmd.MarkFlagRequired("leader-id")
	_ = cmd.MarkFlagRequired("doc")

	return cmd
}

func newFollowCommand(logger zerolog.Logger) *cobra.Command {
	var (
		sessionID    string
		classID      string
		followerID   string
		followerName string
	)

	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Follow a live broadcast",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sessionID == "" && classID == "" {
				return fmt.Errorf("one of --session or --class is required")
			}
			if followerName == "" {
				followerName = followerID
			}

			cfg := loadConfig(cmd)
			application, err := app.NewApplication(cfg, app.Options{
				Role:         app.RoleFollower,
				FollowerID:   followerID,
				FollowerName: followerName,
			}, logger)
			if err != nil {
				return err
			}

			return runUntilSignal(application, logger, func(ctx context.Context) error {
				go func() {
					for view := range application.Follower().Subscribe() {
						if !view.IsLocked {
							logger.Info().Msg("no live broadcast, navigation unlocked")
							continue
						}
						logger.Info().
							Str("document", view.ActiveSession.DocumentPath).
							Str("title", view.ActiveSession.DocumentTitle).
							Float64("scroll", view.ActiveSession.ScrollPosition).
							Msg("mirroring leader")
					}
				}()

				// Keep retrying on the reconcile cadence until a broadcast
				// appears; a follower may launch before its leader.
				ticker := time.NewTicker(cfg.Timing.ReconcileInterval)
				defer ticker.Stop()

				for {
					joined := false
					if sessionID != "" {
						joined = application.Follower().JoinSession(ctx, sessionID)
					} else {
						joined = application.Follower().JoinClass(ctx, classID)
					}
					if joined {
						return nil
					}

					select {
					case <-ticker.C:
					case <-ctx.Done():
						return nil
					}
				}
			})
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session id to follow")
	cmd.Flags().StringVar(&classID, "class", "", "class id to follow the active session of")
	cmd.Flags().StringVar(&followerID, "follower-id", "", "follower identifier (required)")
	cmd.Flags().StringVar(&followerName, "name", "", "human-readable follower name")
	_ = cmd.MarkFlagRequired("follower-id")

	return cmd
}

func newPanelCommand(logger zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "panel",
		Short: "Serve the read-only view endpoint without joining or leading",
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := app.NewApplication(loadConfig(cmd), app.Options{
				Role: app.RolePanel,
			}, logger)
			if err != nil {
				return err
			}

			return runUntilSignal(application, logger, func(ctx context.Context) error {
				logger.Info().Str("addr", application.Panel().Addr()).Msg("panel available")
				return nil
			})
		},
	}
}
