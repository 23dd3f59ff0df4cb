// Package piecewise provides the public API for piecewise-go, an online
// learner for piecewise linear models over structured scenes.
//
// Observations are (target object, scene, feature vector, output) tuples.
// The learner groups them into linear modes with expectation maximization and
// learns symbolic classifiers that route novel scenes to the right mode.
//
// Example:
//
//	learner := piecewise.NewLearner(piecewise.DefaultConfig(), nil)
//	for _, obs := range stream {
//	    if err := learner.Learn(obs.Target, obs.Sig, obs.Rels, obs.X, obs.Y); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	learner.Run(50)
//	mode, y, ok := learner.Predict(target, sig, rels, x)
package piecewise

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/blackms/piecewise-go/internal/application/mixture"
	"github.com/blackms/piecewise-go/internal/domain/relation"
	"github.com/blackms/piecewise-go/internal/domain/scene"
	"github.com/blackms/piecewise-go/internal/infrastructure/checkpoint"
)

// Re-export types for public API
type (
	// Learner types
	Learner = mixture.Learner
	Config  = mixture.Config
	Stats   = mixture.Stats

	// Scene types
	Signature = scene.Signature
	Entry     = scene.Entry

	// Relation types
	Relation = relation.Relation
	Table    = relation.Table
	Tuple    = relation.Tuple

	// Checkpoint types
	Checkpoint      = checkpoint.Checkpoint
	CheckpointStore = checkpoint.Store
	StoreStats      = checkpoint.StoreStats
	SQLiteConfig    = checkpoint.SQLiteConfig
	PostgresConfig  = checkpoint.PostgresConfig
)

// Wildcard matches any value in a relation pattern.
const Wildcard = relation.Wildcard

// DefaultConfig returns the default learner configuration.
func DefaultConfig() Config { return mixture.DefaultConfig() }

// NewLearner creates an empty learner. A nil logger disables logging.
func NewLearner(cfg Config, logger *zap.Logger) *Learner {
	return mixture.New(cfg, logger)
}

// LoadLearner reconstructs a learner from a snapshot written by Save.
func LoadLearner(r io.Reader, logger *zap.Logger) (*Learner, error) {
	return mixture.Load(r, logger)
}

// NewRelation creates an empty relation of the given arity.
func NewRelation(arity int) *Relation { return relation.New(arity) }

// NewSQLiteStore opens a SQLite-backed checkpoint store.
func NewSQLiteStore(cfg SQLiteConfig) (CheckpointStore, error) {
	return checkpoint.NewSQLiteStore(cfg)
}

// NewPostgresStore opens a PostgreSQL-backed checkpoint store.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (CheckpointStore, error) {
	return checkpoint.NewPostgresStore(ctx, cfg)
}

// DefaultSQLiteConfig returns the default SQLite store configuration.
func DefaultSQLiteConfig() SQLiteConfig { return checkpoint.DefaultSQLiteConfig() }

// DefaultPostgresConfig returns a PostgreSQL configuration from PG* env vars.
func DefaultPostgresConfig() PostgresConfig { return checkpoint.DefaultPostgresConfig() }

// SaveCheckpoint snapshots the learner into the store under the given name
// and returns the stored checkpoint's id.
func SaveCheckpoint(ctx context.Context, store CheckpointStore, name string, l *Learner) (string, error) {
	var buf bytes.Buffer
	if err := l.Save(&buf); err != nil {
		return "", fmt.Errorf("snapshot learner: %w", err)
	}
	cp := checkpoint.NewCheckpoint(name, l.NumObservations(), l.NumModes(), buf.Bytes())
	if err := store.Save(ctx, cp); err != nil {
		return "", err
	}
	return cp.ID, nil
}

// LoadCheckpoint restores a learner from a stored checkpoint.
func LoadCheckpoint(ctx context.Context, store CheckpointStore, id string, logger *zap.Logger) (*Learner, error) {
	cp, err := store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, fmt.Errorf("checkpoint %s not found", id)
	}
	return mixture.Load(bytes.NewReader(cp.Snapshot), logger)
}
