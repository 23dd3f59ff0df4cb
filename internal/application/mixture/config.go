// Package mixture provides the online mixture-of-experts learner. It owns
// the observation and mode tables, runs the E-step/M-step iteration that
// discovers how many linear modes govern the data stream, and combines
// per-mode linear models with FOIL clauses and LDA discriminants to pick the
// right mode at prediction time.
package mixture

import (
	"github.com/blackms/piecewise-go/internal/infrastructure/foil"
	"github.com/blackms/piecewise-go/internal/infrastructure/regression"
)

// Config carries every numeric constant of the learner. Values are fixed
// when the learner is constructed.
type Config struct {
	// MeasureVar is the measurement variance assumed for all continuous
	// quantities; it scales the Gaussian mode likelihood.
	MeasureVar float64 `json:"measureVar"`

	// ModelErrorThresh is the maximum acceptable absolute error for a
	// linear model to claim an observation.
	ModelErrorThresh float64 `json:"modelErrorThresh"`

	// PNoise is the fixed probability that an observation is noise.
	PNoise float64 `json:"pNoise"`

	// Epsilon discounts the mode likelihood: p = (1-Epsilon) * density.
	Epsilon float64 `json:"epsilon"`

	// NewModeThresh is the number of mutually linear noise observations
	// required before a new mode is created.
	NewModeThresh int `json:"newModeThresh"`

	// MinModeSize is the membership count at or below which a fitted mode
	// is removed.
	MinModeSize int `json:"minModeSize"`

	// UnifyRetention is the fraction of the combined member set a unified
	// fit must retain for unification to be preferred over a new mode.
	UnifyRetention float64 `json:"unifyRetention"`

	// SubsetMaxIters bounds the outer linear-subset search.
	SubsetMaxIters int `json:"subsetMaxIters"`

	// MiniEMMaxIters bounds the inner reweighted refinement loop.
	MiniEMMaxIters int `json:"miniEMMaxIters"`

	// SubsetTestRatio is the held-out fraction used to validate a candidate
	// subset.
	SubsetTestRatio float64 `json:"subsetTestRatio"`

	// LDATrainRatio is the train fraction when fitting a numeric
	// classifier over clause residuals.
	LDATrainRatio float64 `json:"ldaTrainRatio"`

	// LWRNeighbors is k for the fallback locally-weighted model.
	LWRNeighbors int `json:"lwrNeighbors"`

	// Seed fixes the random source; zero seeds from the clock.
	Seed int64 `json:"seed"`

	Regression regression.Config `json:"regression"`
	FOIL       foil.Config       `json:"foil"`
}

// DefaultConfig returns the configuration matching the reference constants.
func DefaultConfig() Config {
	return Config{
		MeasureVar:       1e-8,
		ModelErrorThresh: 1e-5,
		PNoise:           1e-4,
		Epsilon:          1e-3,
		NewModeThresh:    200,
		MinModeSize:      2,
		UnifyRetention:   0.9,
		SubsetMaxIters:   20,
		MiniEMMaxIters:   10,
		SubsetTestRatio:  0.5,
		LDATrainRatio:    0.8,
		LWRNeighbors:     20,
		Regression:       regression.DefaultConfig(),
		FOIL:             foil.DefaultConfig(),
	}
}

// Stats exposes counters and timing for the introspection surface.
type Stats struct {
	Observations      int     `json:"observations"`
	Modes             int     `json:"modes"`
	EStepCount        int64   `json:"estepCount"`
	MStepCount        int64   `json:"mstepCount"`
	RunCount          int64   `json:"runCount"`
	LastRunIterations int     `json:"lastRunIterations"`
	LastRunConverged  bool    `json:"lastRunConverged"`
	AvgEStepMs        float64 `json:"avgEstepMs"`
	AvgMStepMs        float64 `json:"avgMstepMs"`
}
