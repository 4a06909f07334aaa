// Package highsbe adapts the HiGHS solver to the solve.Backend
// contract. HiGHS handles the LP, MIP and QP exercises; it is invoked
// as a black box through the gohighs binding.
package highsbe

import (
	"context"
	"time"

	"github.com/bartolsthoorn/gohighs/highs"

	"github.com/mbellec/optlab/internal/model"
	"github.com/mbellec/optlab/internal/solve"
	"github.com/mbellec/optlab/internal/solve/relax"
)

// Backend solves models with HiGHS.
type Backend struct{}

// New returns a HiGHS-backed solve.Backend.
func New() *Backend { return &Backend{} }

// Name implements solve.Backend.
func (b *Backend) Name() string { return "highs" }

// Solve implements solve.Backend. The binding offers no mid-search
// callback, so progress is reported at the call boundaries and
// cancellation takes effect there; the solver's own time limit bounds
// the blocking call.
func (b *Backend) Solve(ctx context.Context, m *model.Model, opts solve.Options, progress solve.ProgressFunc) (*solve.Solution, error) {
	hm, err := Convert(m)
	if err != nil {
		return nil, err
	}

	if progress != nil {
		progress(solve.Progress{SolutionCount: 0, Timestamp: time.Now()})
	}

	solveOpts := []highs.SolveOption{highs.WithOutput(opts.Verbose)}
	if opts.TimeLimit > 0 {
		solveOpts = append(solveOpts, highs.WithTimeLimit(opts.TimeLimit.Seconds()))
	}
	if opts.RelativeGapTarget > 0 {
		solveOpts = append(solveOpts, highs.WithMIPRelGap(opts.RelativeGapTarget))
	}
	if opts.Threads > 0 {
		solveOpts = append(solveOpts, highs.WithThreads(opts.Threads))
	}

	type outcome struct {
		sol *highs.Solution
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		sol, err := hm.Solve(solveOpts...)
		done <- outcome{sol, err}
	}()

	select {
	case <-ctx.Done():
		return nil, solve.WrapError(ctx.Err(), "solve cancelled").WithComponent("highs").WithOperation("Solve")
	case out := <-done:
		if out.err != nil {
			return nil, solve.WrapError(out.err, "highs solve failed").WithComponent("highs").WithOperation("Solve")
		}
		sol := convertSolution(out.sol, time.Since(start))
		seedBound(m, sol)
		if progress != nil {
			progress(solve.Progress{
				SolutionCount: sol.SolutionCount,
				BestObjective: sol.Objective,
				BestBound:     sol.BestBound,
				Timestamp:     time.Now(),
			})
		}
		return sol, nil
	}
}

// Convert translates a model.Model into the gohighs column/row form.
func Convert(m *model.Model) (*highs.Model, error) {
	if err := m.Validate(); err != nil {
		return nil, solve.WrapError(err, "invalid model").WithComponent("highs").WithOperation("Convert")
	}

	cols := m.Columns()
	hm := &highs.Model{
		Maximize: m.Sense() == model.Maximize,
		Offset:   m.Offset(),
		ColCosts: make([]float64, len(cols)),
		ColLower: make([]float64, len(cols)),
		ColUpper: make([]float64, len(cols)),
	}

	mip := m.IsMIP()
	if mip {
		hm.VarTypes = make([]highs.VariableType, len(cols))
	}
	for i, c := range cols {
		hm.ColCosts[i] = c.Cost
		hm.ColLower[i] = c.Lower
		hm.ColUpper[i] = c.Upper
		if mip && c.Type != model.Continuous {
			hm.VarTypes[i] = highs.Integer
		}
	}

	rows := m.Rows()
	hm.RowLower = make([]float64, len(rows))
	hm.RowUpper = make([]float64, len(rows))
	for i, r := range rows {
		hm.RowLower[i] = r.Lower
		hm.RowUpper[i] = r.Upper
	}
	for _, e := range m.Entries() {
		hm.ConstMatrix = append(hm.ConstMatrix, highs.Nonzero{Row: e.Row, Col: e.Col, Val: e.Val})
	}

	// The model stores c_ij * x_i * x_j terms; HiGHS wants the upper
	// triangle of Q with objective 0.5 x'Qx, so diagonal terms double.
	for _, q := range m.QuadTerms() {
		val := q.Val
		if q.I == q.J {
			val *= 2
		}
		hm.Hessian = append(hm.Hessian, highs.Nonzero{Row: q.I, Col: q.J, Val: val})
	}

	return hm, nil
}

// seedBound fills BestBound with the LP relaxation bound when the
// binding did not prove optimality. gohighs reports no dual bound of
// its own, so without this a truncated run would claim a zero gap.
// Models the relaxation cannot handle keep the incumbent as bound.
func seedBound(m *model.Model, sol *solve.Solution) {
	if sol.Status == solve.StatusOptimal || !sol.HasSolution() {
		return
	}
	r, err := relax.Bound(m)
	if err != nil {
		return
	}
	sol.BestBound = r.Bound
}

func convertSolution(hs *highs.Solution, runtime time.Duration) *solve.Solution {
	sol := &solve.Solution{
		Status:    convertStatus(hs.Status),
		Objective: hs.Objective,
		BestBound: hs.Objective,
		Runtime:   runtime,
	}
	if hs.Status.HasSolution() {
		sol.Values = hs.ColValues
		sol.SolutionCount = 1
	}
	return sol
}

func convertStatus(status highs.ModelStatus) solve.Status {
	switch status {
	case highs.ModelStatusOptimal:
		return solve.StatusOptimal
	case highs.ModelStatusInfeasible:
		return solve.StatusInfeasible
	case highs.ModelStatusUnbounded, highs.ModelStatusUnboundedOrInfeasible:
		return solve.StatusUnbounded
	case highs.ModelStatusTimeLimit:
		return solve.StatusTimeLimit
	default:
		return solve.StatusUnknown
	}
}
