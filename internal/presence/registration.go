package presence

import (
	"context"
	"fmt"
	"time"

	"livefollow/pkg/interfaces"
	"livefollow/pkg/types"
)

// RegisterFollower records a follower on a session, called from the follower
// process. First registration appends a presence entry (joined = last seen =
// now, active); re-registration refreshes the last-seen time and forces the
// entry active. Never duplicates an entry.
func RegisterFollower(ctx context.Context, store interfaces.SessionStore, notifier interfaces.NotificationChannel, sessionID, followerID, name string) error {
	if !types.IsValidID(followerID) {
		return types.ErrInvalidFollowerID
	}

	return mutateSession(ctx, store, notifier, sessionID, func(session *types.Session) error {
		session.UpsertFollower(followerID, name, time.Now())
		return nil
	})
}

// UpdateFollowerActivity is the explicit activity report from the follower
// side, e.g. on tab focus/blur. It updates the flag and last-seen time
// immediately, independent of the tracker's periodic recompute.
func UpdateFollowerActivity(ctx context.Context, store interfaces.SessionStore, notifier interfaces.NotificationChannel, sessionID, followerID string, isActive bool) error {
	return mutateSession(ctx, store, notifier, sessionID, func(session *types.Session) error {
		entry, ok := session.FindFollower(followerID)
		if !ok {
			return ErrFollowerNotRegistered
		}
		entry.IsActive = isActive
		entry.LastSeen = time.Now()
		return nil
	})
}

// mutateSession runs a read-modify-write of one session against the full
// store snapshot and fires the notification channel on success.
func mutateSession(ctx context.Context, store interfaces.SessionStore, notifier interfaces.NotificationChannel, sessionID string, mutate func(*types.Session) error) error {
	sessions, err := store.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store: %w", err)
	}

	session, ok := types.SessionByID(sessions, sessionID)
	if !ok {
		return interfaces.ErrSessionNotFound
	}
	if !session.IsActive {
		return interfaces.ErrSessionInactive
	}

	if err := mutate(session); err != nil {
		return err
	}

	if err := store.WriteAll(ctx, sessions); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}

	notifier.Notify()
	return nil
}
