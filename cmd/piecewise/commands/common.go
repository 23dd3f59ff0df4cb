// Package commands provides CLI command implementations.
package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/blackms/piecewise-go/internal/domain/relation"
	"github.com/blackms/piecewise-go/internal/domain/scene"
	piecewise "github.com/blackms/piecewise-go/pkg/piecewise"
)

// Verbose enables debug logging for all commands.
var Verbose bool

// NewLogger builds the CLI logger honoring the verbose flag.
func NewLogger() (*zap.Logger, error) {
	if Verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// sceneObservation is one JSONL training or query record.
type sceneObservation struct {
	Target    int              `json:"target"`
	Signature []scene.Entry    `json:"signature"`
	Relations map[string][][]int `json:"relations"`
	X         []float64        `json:"x"`
	Y         float64          `json:"y"`
}

func (o *sceneObservation) decode() (*scene.Signature, relation.Table, error) {
	sig := &scene.Signature{}
	for _, e := range o.Signature {
		sig.Add(e)
	}
	rels := relation.Table{}
	for name, tuples := range o.Relations {
		if len(tuples) == 0 {
			continue
		}
		r := relation.New(len(tuples[0]))
		for _, t := range tuples {
			if len(t) != r.Arity() {
				return nil, nil, fmt.Errorf("relation %s: tuple arity %d, want %d", name, len(t), r.Arity())
			}
			r.AddTuple(append(relation.Tuple(nil), t...))
		}
		rels[name] = r
	}
	return sig, rels, nil
}

// readObservations streams JSONL records from path ("-" for stdin).
func readObservations(path string, fn func(*sceneObservation) error) error {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var obs sceneObservation
		if err := json.Unmarshal(sc.Bytes(), &obs); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(&obs); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
	return sc.Err()
}

// loadLearnerFile reads a snapshot written by the train command.
func loadLearnerFile(path string, logger *zap.Logger) (*piecewise.Learner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return piecewise.LoadLearner(f, logger)
}
