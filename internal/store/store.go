package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	// SQLite driver, referenced only through the connection string.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"livefollow/pkg/interfaces"
	"livefollow/pkg/types"
)

// Config holds the store's connection settings.
type Config struct {
	// Path is the device-local database file shared by every process.
	Path string
	// Timeout bounds individual write operations queued on the writer.
	Timeout time.Duration
}

// Store is the SQLite-backed SessionStore. Reads run concurrently; all
// writes funnel through a single writer goroutine, which is how SQLite stays
// contention-free with several processes and goroutines on one file.
type Store struct {
	db           *sql.DB
	config       Config
	logger       zerolog.Logger
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
	retryDelay   time.Duration
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// New opens (creating if needed) the shared session store at cfg.Path.
func New(cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path cannot be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:           db,
		config:       cfg,
		logger:       logger.With().Str("component", "store").Logger(),
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop processes all write operations in a single goroutine, retrying
// a failed write exactly once.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if err != nil {
				s.logger.Warn().Err(err).Dur("retry_in", s.retryDelay).Msg("store write failed, retrying")
				time.Sleep(s.retryDelay)
				err = op.operation(s.db)
				if err != nil {
					s.logger.Error().Err(err).Msg("store write failed after retry")
				}
			}
			op.result <- err

		case <-s.shutdown:
			s.logger.Debug().Msg("store write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (s *Store) executeWrite(operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return interfaces.ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
		return <-result
	case <-time.After(s.config.Timeout):
		return fmt.Errorf("store write timeout after %s", s.config.Timeout)
	case <-s.shutdown:
		return interfaces.ErrStoreClosed
	}
}

// ReadAll returns a snapshot of every retained session, ordered by start
// time so join-order and recency logic downstream stay deterministic.
func (s *Store) ReadAll(ctx context.Context) ([]*types.Session, error) {
	query := `
		SELECT id, class_id, class_name, leader_id, leader_name, is_active,
		       started_at, document_path, document_title, scroll_position,
		       current_section, last_heartbeat, followers
		FROM sessions
		ORDER BY started_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*types.Session

	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

// WriteAll replaces the stored collection with the given snapshot in one
// transaction. Last-writer-wins at collection granularity: a racing writer's
// change can be dropped, which is acceptable for ephemeral presentation
// state (see the SessionStore contract).
func (s *Store) WriteAll(ctx context.Context, sessions []*types.Session) error {
	return s.executeWrite(func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
			return fmt.Errorf("failed to clear sessions: %w", err)
		}

		insert := `
			INSERT INTO sessions (id, class_id, class_name, leader_id, leader_name,
			                      is_active, started_at, document_path, document_title,
			                      scroll_position, current_section, last_heartbeat, followers)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`

		for _, session := range sessions {
			followersJSON, err := json.Marshal(session.ConnectedFollowers)
			if err != nil {
				return fmt.Errorf("failed to marshal followers for session %s: %w", session.ID, err)
			}

			var section sql.NullString
			if session.CurrentSection != nil {
				section = sql.NullString{String: *session.CurrentSection, Valid: true}
			}

			_, err = tx.ExecContext(ctx, insert,
				session.ID,
				session.ClassID,
				session.ClassName,
				session.LeaderID,
				session.LeaderName,
				session.IsActive,
				session.StartedAt,
				session.DocumentPath,
				session.DocumentTitle,
				session.ScrollPosition,
				section,
				session.LastHeartbeat,
				string(followersJSON),
			)
			if err != nil {
				return fmt.Errorf("failed to insert session %s: %w", session.ID, err)
			}
		}

		if err = tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit session write: %w", err)
		}

		return nil
	})
}

// Prune deletes inactive sessions whose retention window has lapsed.
// Active sessions are never pruned regardless of age.
func (s *Store) Prune(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	cutoff := now.Add(-retention)
	var removed int64

	err := s.executeWrite(func(db *sql.DB) error {
		// Strictly older than the cutoff, matching Session.IsExpired: a
		// session exactly at retention age is kept.
		result, err := db.ExecContext(ctx,
			`DELETE FROM sessions WHERE is_active = 0 AND started_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("failed to prune sessions: %w", err)
		}
		removed, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("pruned expired sessions")
	}
	return int(removed), nil
}

// HealthCheck validates store connectivity.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store ping failed: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count); err != nil {
		return fmt.Errorf("store read test failed: %w", err)
	}
	return nil
}

// Close shuts down the writer and releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close session store: %w", err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row scanner) (*types.Session, error) {
	var session types.Session
	var section sql.NullString
	var followersJSON string

	err := row.Scan(
		&session.ID,
		&session.ClassID,
		&session.ClassName,
		&session.LeaderID,
		&session.LeaderName,
		&session.IsActive,
		&session.StartedAt,
		&session.DocumentPath,
		&session.DocumentTitle,
		&session.ScrollPosition,
		&section,
		&session.LastHeartbeat,
		&followersJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan session row: %w", err)
	}

	if section.Valid {
		session.CurrentSection = &section.String
	}

	session.ConnectedFollowers = []types.FollowerPresence{}
	if err := json.Unmarshal([]byte(followersJSON), &session.ConnectedFollowers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal followers: %w", err)
	}

	return &session, nil
}

// applyPragmas tunes SQLite for many concurrent readers and one writer per
// process across several processes on the same file.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}
