// Package stall implements the early-termination policy for in-progress
// solver searches: it watches the stream of progress snapshots a solver
// reports and decides when the search should be halted because the
// optimality gap has stopped improving.
package stall

import (
	"fmt"
	"math"
	"time"
)

// epsilonFloor guards the relative-gap division against blow-up for
// near-zero incumbents.
const epsilonFloor = 1e-10

// Decision is the monitor's verdict for a single progress snapshot.
type Decision int

const (
	// Continue lets the search keep running.
	Continue Decision = iota
	// Terminate requests a cooperative stop. The caller is responsible
	// for translating it into a solver abort; the monitor only reports.
	Terminate
)

// String returns a human-readable representation of the decision.
func (d Decision) String() string {
	switch d {
	case Continue:
		return "continue"
	case Terminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// Snapshot is one reported state of an in-progress search. Snapshots are
// produced by the solve session at solver-controlled intervals and are
// read-only to the monitor. Timestamp must come from a monotonic source;
// the monitor never consults a wall clock of its own.
type Snapshot struct {
	// SolutionCount is the number of feasible solutions found so far.
	SolutionCount int
	// BestObjective is the incumbent objective value. Meaningless while
	// SolutionCount is zero.
	BestObjective float64
	// BestBound is the best proven bound on the objective.
	BestBound float64
	// Timestamp is when the solver reported this state.
	Timestamp time.Time
}

// Policy holds the immutable termination parameters.
type Policy struct {
	// GapThreshold is the minimum gap decrease that counts as progress.
	GapThreshold float64
	// MaxStallDuration is how long the gap may go without such a
	// decrease before the search is considered stalled.
	MaxStallDuration time.Duration
}

// InvalidSnapshotError reports a snapshot the monitor refused to act on.
// State is left unchanged; the caller decides whether to treat it as
// fatal or skip the snapshot.
type InvalidSnapshotError struct {
	Reason string
}

func (e *InvalidSnapshotError) Error() string {
	return fmt.Sprintf("invalid progress snapshot: %s", e.Reason)
}

// Monitor tracks the best-known gap across successive snapshots of one
// optimization run and decides when improvement has stalled. It is owned
// by a single running session; Evaluate is never called concurrently
// with itself. A Monitor must not be reused across runs.
type Monitor struct {
	policy Policy

	// lastGap only ever decreases once initialized.
	lastGap         float64
	lastImprovement time.Time
	tracking        bool
}

// NewMonitor constructs a monitor for one run.
func NewMonitor(policy Policy) (*Monitor, error) {
	if policy.GapThreshold <= 0 {
		return nil, fmt.Errorf("stall: gap threshold must be positive, got %g", policy.GapThreshold)
	}
	if policy.MaxStallDuration <= 0 {
		return nil, fmt.Errorf("stall: max stall duration must be positive, got %s", policy.MaxStallDuration)
	}
	return &Monitor{
		policy:  policy,
		lastGap: math.Inf(1),
	}, nil
}

// Gap returns the relative optimality gap for an incumbent objective and
// proven bound. A zero objective yields +Inf: the gap is treated as
// undefined/maximal rather than risking a division by zero. The
// difference is taken as an absolute value regardless of the signs of
// the two values.
func Gap(bestObjective, bestBound float64) float64 {
	if bestObjective == 0 {
		return math.Inf(1)
	}
	return math.Abs(bestObjective-bestBound) / math.Max(epsilonFloor, math.Abs(bestObjective))
}

// Evaluate consumes one snapshot and decides whether the search may
// continue. It is pure over the monitor state and its input, returns
// quickly, and never blocks; it runs on the solver's reporting path.
func (m *Monitor) Evaluate(snap Snapshot) (Decision, error) {
	if snap.SolutionCount < 0 {
		return Continue, &InvalidSnapshotError{Reason: fmt.Sprintf("negative solution count %d", snap.SolutionCount)}
	}
	if snap.SolutionCount == 0 {
		// No feasible solution to measure a gap against yet.
		return Continue, nil
	}
	if math.IsNaN(snap.BestObjective) || math.IsNaN(snap.BestBound) ||
		math.IsInf(snap.BestObjective, 0) || math.IsInf(snap.BestBound, 0) {
		return Continue, &InvalidSnapshotError{Reason: "non-finite objective or bound with a solution present"}
	}

	gap := Gap(snap.BestObjective, snap.BestBound)

	if !m.tracking {
		// First snapshot carrying a solution: arm the stall timer.
		m.tracking = true
		m.lastGap = gap
		m.lastImprovement = snap.Timestamp
		return Continue, nil
	}

	if m.lastGap-gap > m.policy.GapThreshold {
		m.lastGap = gap
		m.lastImprovement = snap.Timestamp
		return Continue, nil
	}

	if snap.Timestamp.Sub(m.lastImprovement) >= m.policy.MaxStallDuration {
		return Terminate, nil
	}

	return Continue, nil
}

// Tracking reports whether at least one snapshot with a feasible
// solution has been observed.
func (m *Monitor) Tracking() bool {
	return m.tracking
}

// LastGap returns the best gap observed so far, +Inf before the first
// solution.
func (m *Monitor) LastGap() float64 {
	return m.lastGap
}
