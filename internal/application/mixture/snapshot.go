package mixture

import (
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/blackms/piecewise-go/internal/domain/relation"
	"github.com/blackms/piecewise-go/internal/domain/scene"
	"github.com/blackms/piecewise-go/internal/infrastructure/foil"
	"github.com/blackms/piecewise-go/internal/infrastructure/lwr"
)

// Derived state (nearest-neighbor models, noise index, member relations,
// cached object assignments) is rebuilt on load rather than stored.

type sigSnapshot struct {
	Sig     *scene.Signature `json:"sig"`
	Members []int            `json:"members"`
}

type modeSnapshot struct {
	Noise           bool              `json:"noise"`
	Stale           bool              `json:"stale"`
	NewFit          bool              `json:"newFit"`
	ClassifierStale bool              `json:"classifierStale"`
	Members         []int             `json:"members"`
	Sig             *scene.Signature  `json:"sig"`
	Coefs           []float64         `json:"coefs"`
	Inter           float64           `json:"inter"`
	ObjClauses      []foil.ClauseVec  `json:"objClauses"`
	Classifiers     []*pairClassifier `json:"classifiers"`
}

type snapshot struct {
	Config     Config         `json:"config"`
	Data       []*observation `json:"data"`
	Sigs       []sigSnapshot  `json:"sigs"`
	Modes      []modeSnapshot `json:"modes"`
	Relations  relation.Table `json:"relations"`
	CheckAfter int            `json:"checkAfter"`
	Stats      Stats          `json:"stats"`
}

// Save writes the learner's full state as JSON.
func (l *Learner) Save(w io.Writer) error {
	s := snapshot{
		Config:     l.cfg,
		Data:       l.data,
		Relations:  l.relTbl,
		CheckAfter: l.checkAfter,
		Stats:      l.stats,
	}
	for _, si := range l.sigs {
		s.Sigs = append(s.Sigs, sigSnapshot{Sig: si.sig, Members: si.members})
	}
	for _, m := range l.modes {
		s.Modes = append(s.Modes, modeSnapshot{
			Noise:           m.noise,
			Stale:           m.stale,
			NewFit:          m.newFit,
			ClassifierStale: m.classifierStale,
			Members:         m.members,
			Sig:             m.sig,
			Coefs:           m.coefs,
			Inter:           m.inter,
			ObjClauses:      m.objClauses,
			Classifiers:     m.classifiers,
		})
	}
	enc := json.NewEncoder(w)
	return enc.Encode(&s)
}

// Load reconstructs a learner from a Save snapshot. A nil logger disables
// logging.
func Load(r io.Reader, logger *zap.Logger) (*Learner, error) {
	var s snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if len(s.Modes) == 0 || !s.Modes[0].Noise {
		return nil, fmt.Errorf("malformed snapshot: missing noise mode")
	}

	l := New(s.Config, logger)
	l.data = s.Data
	l.relTbl = s.Relations
	l.checkAfter = s.CheckAfter
	l.stats = s.Stats

	for _, ss := range s.Sigs {
		si := &sigInfo{sig: ss.Sig, members: ss.Members}
		si.lwr = lwr.New(l.cfg.LWRNeighbors, l.cfg.Regression)
		for _, i := range ss.Members {
			if i < 0 || i >= len(l.data) {
				return nil, fmt.Errorf("malformed snapshot: member %d out of range", i)
			}
			si.lwr.Learn(l.data[i].X, l.data[i].Y)
		}
		l.sigs = append(l.sigs, si)
	}

	l.modes = l.modes[:0]
	for mi, ms := range s.Modes {
		m := newMode(ms.Noise)
		m.stale = ms.Stale
		m.newFit = ms.NewFit
		m.classifierStale = ms.ClassifierStale
		m.sig = ms.Sig
		m.coefs = ms.Coefs
		m.inter = ms.Inter
		m.objClauses = ms.ObjClauses
		m.classifiers = ms.Classifiers
		for _, i := range ms.Members {
			if i < 0 || i >= len(l.data) {
				return nil, fmt.Errorf("malformed snapshot: mode %d member %d out of range", mi, i)
			}
			d := l.data[i]
			m.insertMember(i)
			m.memberRel.Add(i, l.sigs[d.SigIndex].sig.Entries[d.Target].ID)
			if m.noise {
				insertSortedY(&m.sortedYs, yEntry{d.Y, i})
			}
		}
		l.modes = append(l.modes, m)
	}

	for _, m := range l.modes {
		for len(m.classifiers) < len(l.modes) {
			m.classifiers = append(m.classifiers, nil)
		}
	}
	for i, d := range l.data {
		if d.MapMode < 0 || d.MapMode >= len(l.modes) {
			return nil, fmt.Errorf("malformed snapshot: observation %d maps to mode %d", i, d.MapMode)
		}
		if d.MapMode == 0 {
			if l.noiseBySig[d.SigIndex] == nil {
				l.noiseBySig[d.SigIndex] = map[int]bool{}
			}
			l.noiseBySig[d.SigIndex][i] = true
		}
	}
	return l, nil
}
