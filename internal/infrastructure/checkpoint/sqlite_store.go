package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore provides SQLite persistence for checkpoints.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	config SQLiteConfig
	stats  StoreStats
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// DBPath is the SQLite database path.
	DBPath string `json:"dbPath"`

	// EnableVacuum enables vacuum after large prunes.
	EnableVacuum bool `json:"enableVacuum"`
}

// DefaultSQLiteConfig returns the default configuration.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{
		DBPath:       ":memory:",
		EnableVacuum: true,
	}
}

// NewSQLiteStore opens a SQLite-backed checkpoint store.
func NewSQLiteStore(config SQLiteConfig) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, config: config}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			checkpoint_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			observations INTEGER NOT NULL,
			modes INTEGER NOT NULL,
			snapshot BLOB NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_name ON checkpoints(name);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_created ON checkpoints(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save inserts or replaces a checkpoint.
func (s *SQLiteStore) Save(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO checkpoints
		(checkpoint_id, name, observations, modes, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.Name, cp.Observations, cp.Modes, cp.Snapshot, cp.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

// Get returns a checkpoint with its snapshot, or nil if absent.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT checkpoint_id, name, observations, modes, snapshot, created_at
		FROM checkpoints WHERE checkpoint_id = ?`, id)

	var cp Checkpoint
	var createdMs int64
	err := row.Scan(&cp.ID, &cp.Name, &cp.Observations, &cp.Modes, &cp.Snapshot, &createdMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint: %w", err)
	}
	cp.CreatedAt = time.UnixMilli(createdMs)
	return &cp, nil
}

// List returns checkpoint metadata, newest first, without snapshots.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT checkpoint_id, name, observations, modes, created_at
		FROM checkpoints ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		var cp Checkpoint
		var createdMs int64
		if err := rows.Scan(&cp.ID, &cp.Name, &cp.Observations, &cp.Modes, &createdMs); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		cp.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, &cp)
	}
	return out, rows.Err()
}

// Delete removes a checkpoint by id.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE checkpoint_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Prune keeps the newest keep checkpoints and deletes the rest.
func (s *SQLiteStore) Prune(ctx context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints WHERE checkpoint_id NOT IN (
			SELECT checkpoint_id FROM checkpoints ORDER BY created_at DESC LIMIT ?
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune checkpoints: %w", err)
	}

	pruned, _ := result.RowsAffected()
	s.stats.PrunedCount += pruned
	s.stats.LastPrune = time.Now()

	if s.config.EnableVacuum && pruned > 100 {
		s.db.Exec("VACUUM")
	}
	return pruned, nil
}

// Stats returns store statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := s.stats
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(LENGTH(snapshot)), 0) FROM checkpoints").
		Scan(&stats.TotalCheckpoints, &stats.TotalBytes); err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	return &stats, nil
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
