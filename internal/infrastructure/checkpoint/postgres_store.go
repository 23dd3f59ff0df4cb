package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresConfig configures the PostgreSQL store.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSL      bool   `json:"ssl"`
}

// DefaultPostgresConfig returns a configuration filled from the standard
// PG* environment variables.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:     getEnvOrDefault("PGHOST", "localhost"),
		Port:     5432,
		User:     getEnvOrDefault("PGUSER", "postgres"),
		Password: os.Getenv("PGPASSWORD"),
		Database: os.Getenv("PGDATABASE"),
	}
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func buildConnectionString(config PostgresConfig) string {
	sslMode := "disable"
	if config.SSL {
		sslMode = "require"
	}
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Database, sslMode,
	)
	if config.Password != "" {
		connStr += fmt.Sprintf(" password=%s", config.Password)
	}
	return connStr
}

// PostgresStore provides PostgreSQL persistence for checkpoints, for
// deployments where several processes share one learner history.
type PostgresStore struct {
	mu    sync.RWMutex
	db    *sql.DB
	stats StoreStats
}

// NewPostgresStore connects to PostgreSQL and prepares the schema.
func NewPostgresStore(ctx context.Context, config PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", buildConnectionString(config))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			checkpoint_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			observations INTEGER NOT NULL,
			modes INTEGER NOT NULL,
			snapshot BYTEA NOT NULL,
			created_at BIGINT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_name ON checkpoints(name);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_created ON checkpoints(created_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Save inserts or replaces a checkpoint.
func (s *PostgresStore) Save(ctx context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (checkpoint_id, name, observations, modes, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (checkpoint_id) DO UPDATE SET
			name = EXCLUDED.name,
			observations = EXCLUDED.observations,
			modes = EXCLUDED.modes,
			snapshot = EXCLUDED.snapshot,
			created_at = EXCLUDED.created_at`,
		cp.ID, cp.Name, cp.Observations, cp.Modes, cp.Snapshot, cp.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

// Get returns a checkpoint with its snapshot, or nil if absent.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT checkpoint_id, name, observations, modes, snapshot, created_at
		FROM checkpoints WHERE checkpoint_id = $1`, id)

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
func (s *PostgresStore) List(ctx context.Context, limit int) ([]*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT checkpoint_id, name, observations, modes, created_at
		FROM checkpoints ORDER BY created_at DESC LIMIT $1`, limit)
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
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE checkpoint_id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// Prune keeps the newest keep checkpoints and deletes the rest.
func (s *PostgresStore) Prune(ctx context.Context, keep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM checkpoints WHERE checkpoint_id NOT IN (
			SELECT checkpoint_id FROM checkpoints ORDER BY created_at DESC LIMIT $1
		)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune checkpoints: %w", err)
	}

	pruned, _ := result.RowsAffected()
	s.stats.PrunedCount += pruned
	s.stats.LastPrune = time.Now()
	return pruned, nil
}

// Stats returns store statistics.
func (s *PostgresStore) Stats(ctx context.Context) (*StoreStats, error) {
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
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
