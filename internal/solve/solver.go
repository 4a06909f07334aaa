// Package solve defines the call contract between problem formulations
// and the external solvers that search them. Backends are opaque: the
// package hands them a model, receives progress reports and a solution,
// and never looks inside the search itself.
package solve

import (
	"context"
	"time"

	"github.com/mbellec/optlab/internal/model"
)

// Status describes how a solve ended.
type Status int

const (
	StatusUnknown Status = iota
	// StatusOptimal means the solver proved optimality.
	StatusOptimal
	// StatusInterrupted means the search was stopped cooperatively,
	// either by context cancellation or a termination request.
	StatusInterrupted
	StatusInfeasible
	StatusUnbounded
	// StatusTimeLimit means the backend's own time limit fired.
	StatusTimeLimit
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInterrupted:
		return "interrupted"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusTimeLimit:
		return "time_limit"
	default:
		return "unknown"
	}
}

// Options configures a single backend invocation.
type Options struct {
	// TimeLimit bounds the solver's own runtime. Zero means no limit.
	TimeLimit time.Duration
	// RelativeGapTarget lets MIP backends stop at a proven gap.
	RelativeGapTarget float64
	// Threads limits solver parallelism. Zero leaves the default.
	Threads int
	// Verbose enables the backend's native log output.
	Verbose bool
}

// Progress is one solver-reported state of an in-progress search.
// Backends deliver progress serially, never concurrently with itself.
type Progress struct {
	SolutionCount int
	BestObjective float64
	BestBound     float64
	Timestamp     time.Time
}

// ProgressFunc receives progress reports during a solve. It must return
// quickly: it runs on the solver's reporting path.
type ProgressFunc func(Progress)

// Solution is the outcome of one backend invocation.
type Solution struct {
	Status        Status
	Values        []float64
	Objective     float64
	BestBound     float64
	SolutionCount int
	Runtime       time.Duration
}

// HasSolution reports whether Values holds a feasible point.
func (s *Solution) HasSolution() bool {
	return s != nil && s.SolutionCount > 0 && len(s.Values) > 0
}

// Backend is an external solver behind a fixed call contract. Solve
// must honor ctx cancellation at its next safe checkpoint; cancellation
// is a cooperative request, not preemption. progress may be nil.
type Backend interface {
	Name() string
	Solve(ctx context.Context, m *model.Model, opts Options, progress ProgressFunc) (*Solution, error)
}
