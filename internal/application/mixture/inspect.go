package mixture

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
)

// Inspect writes a human-readable view of the learner's state. With no
// arguments it prints a summary and the available subqueries: modes, mode N,
// ptable, train, relations, classifiers, stats.
func (l *Learner) Inspect(w io.Writer, args ...string) error {
	l.updateClassifier()

	if len(args) == 0 {
		fmt.Fprintf(w, "observations: %d\n", len(l.data))
		fmt.Fprintf(w, "modes: %d\n", len(l.modes))
		fmt.Fprintln(w, "\nsubqueries: modes mode ptable train relations classifiers stats")
		return nil
	}

	switch args[0] {
	case "modes":
		return l.inspectModes(w)
	case "mode":
		if len(args) < 2 {
			return fmt.Errorf("specify a mode number (0 - %d)", len(l.modes)-1)
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 || n >= len(l.modes) {
			return fmt.Errorf("invalid mode number %q", args[1])
		}
		return l.inspectMode(w, n)
	case "ptable":
		return l.inspectPTable(w)
	case "train":
		return l.inspectTrain(w, args[1:])
	case "relations":
		return l.inspectRelations(w, args[1:])
	case "classifiers":
		return l.inspectClassifiers(w)
	case "stats":
		return l.inspectStats(w)
	}
	return fmt.Errorf("unknown subquery %q", args[0])
}

func (l *Learner) inspectModes(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "mode\tkind\tmembers\tobjects\tintercept")
	for i, m := range l.modes {
		kind := "linear"
		if m.noise {
			kind = "noise"
		} else if m.sig.Empty() {
			kind = "const"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%g\n", i, kind, m.size(), m.sig.Len(), m.inter)
	}
	return tw.Flush()
}

func (l *Learner) inspectMode(w io.Writer, n int) error {
	m := l.modes[n]
	if m.noise {
		fmt.Fprintf(w, "noise mode, %d members\n", m.size())
		return nil
	}
	fmt.Fprintf(w, "members: %d\n", m.size())
	fmt.Fprintf(w, "intercept: %g\n", m.inter)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "slot\ttype\tname\tcoefs")
	for i, e := range m.sig.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%v\n", i, e.Type, e.Name, m.coefs[e.Start:e.Start+e.Width()])
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for i, cv := range m.objClauses {
		if len(cv) > 0 {
			fmt.Fprintf(w, "object %d clauses:\n%s\n", i, cv)
		}
	}
	return nil
}

func (l *Learner) inspectPTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, d := range l.data {
		fmt.Fprintf(tw, "%d\t", i)
		for _, p := range d.ModeProb {
			fmt.Fprintf(tw, "%.4g\t", p)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

// inspectTrain dumps training data; an optional "start [end]" argument pair
// restricts the index range.
func (l *Learner) inspectTrain(w io.Writer, args []string) error {
	start, end := 0, len(l.data)
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 || n >= len(l.data) {
			return fmt.Errorf("invalid start index %q", args[0])
		}
		start = n
	}
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= start || n > len(l.data) {
			return fmt.Errorf("invalid end index %q", args[1])
		}
		end = n
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "idx\tsig\ttarget\tmode\ty")
	for i := start; i < end; i++ {
		d := l.data[i]
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%g\n", i, d.SigIndex, d.Target, d.MapMode, d.Y)
	}
	return tw.Flush()
}

// inspectRelations summarizes the relation table; naming a predicate dumps
// its tuples.
func (l *Learner) inspectRelations(w io.Writer, args []string) error {
	if len(args) > 0 {
		r, ok := l.relTbl[args[0]]
		if !ok {
			return fmt.Errorf("unknown predicate %q", args[0])
		}
		for _, t := range r.Tuples() {
			fmt.Fprintln(w, t)
		}
		return nil
	}
	fmt.Fprintf(w, "%d predicates\n", len(l.relTbl))
	for _, name := range l.relTbl.Names() {
		r := l.relTbl[name]
		fmt.Fprintf(w, "%s/%d: %d tuples\n", name, r.Arity(), r.Size())
	}
	return nil
}

func (l *Learner) inspectClassifiers(w io.Writer) error {
	for i, m := range l.modes {
		for j, c := range m.classifiers {
			if c == nil {
				continue
			}
			fmt.Fprintf(w, "=== modes %d/%d ===\n", i, j)
			if len(c.Clauses) > 0 {
				fmt.Fprintf(w, "clauses:\n%s\n", c.Clauses)
			}
			nlda := 0
			for _, d := range c.LDAs {
				if d != nil {
					nlda++
				}
			}
			fmt.Fprintf(w, "numeric classifiers: %d, default vote: %d\n", nlda, c.ConstVote)
		}
	}
	return nil
}

func (l *Learner) inspectStats(w io.Writer) error {
	s := l.Stats()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "observations\t%d\n", s.Observations)
	fmt.Fprintf(tw, "modes\t%d\n", s.Modes)
	fmt.Fprintf(tw, "e-steps\t%d\n", s.EStepCount)
	fmt.Fprintf(tw, "m-steps\t%d\n", s.MStepCount)
	fmt.Fprintf(tw, "runs\t%d\n", s.RunCount)
	fmt.Fprintf(tw, "last run iterations\t%d\n", s.LastRunIterations)
	fmt.Fprintf(tw, "last run converged\t%t\n", s.LastRunConverged)
	fmt.Fprintf(tw, "avg e-step ms\t%.3f\n", s.AvgEStepMs)
	fmt.Fprintf(tw, "avg m-step ms\t%.3f\n", s.AvgMStepMs)
	return tw.Flush()
}
