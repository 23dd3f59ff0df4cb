// Package checkpoint persists learner snapshots. Stores handle opaque
// snapshot blobs plus enough metadata to list and prune them without
// deserializing anything.
package checkpoint

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Checkpoint is one saved learner state.
type Checkpoint struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Observations int       `json:"observations"`
	Modes        int       `json:"modes"`
	Snapshot     []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewCheckpoint builds a checkpoint with a fresh id and timestamp.
func NewCheckpoint(name string, observations, modes int, snapshot []byte) *Checkpoint {
	return &Checkpoint{
		ID:           uuid.New().String(),
		Name:         name,
		Observations: observations,
		Modes:        modes,
		Snapshot:     snapshot,
		CreatedAt:    time.Now(),
	}
}

// StoreStats contains store statistics.
type StoreStats struct {
	TotalCheckpoints int       `json:"totalCheckpoints"`
	TotalBytes       int64     `json:"totalBytes"`
	PrunedCount      int64     `json:"prunedCount"`
	LastPrune        time.Time `json:"lastPrune"`
}

// Store is the persistence interface for checkpoints.
type Store interface {
	// Save inserts or replaces a checkpoint.
	Save(ctx context.Context, cp *Checkpoint) error

	// Get returns a checkpoint with its snapshot, or nil if absent.
	Get(ctx context.Context, id string) (*Checkpoint, error)

	// List returns checkpoint metadata, newest first, without snapshots.
	List(ctx context.Context, limit int) ([]*Checkpoint, error)

	// Delete removes a checkpoint by id.
	Delete(ctx context.Context, id string) error

	// Prune keeps the newest keep checkpoints and deletes the rest,
	// returning how many were removed.
	Prune(ctx context.Context, keep int) (int64, error)

	// Stats returns store statistics.
	Stats(ctx context.Context) (*StoreStats, error)

	Close() error
}
