// Package smooth minimizes bounded smooth objectives with penalized
// nonlinear constraints. It covers the nonconvex exercises that do not
// fit the linear/quadratic model form; the search itself is delegated
// to gonum's derivative-free Nelder-Mead with multiple starts.
package smooth

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/optimize"

	"github.com/mbellec/optlab/internal/solve"
)

// Constraint is a penalized inequality g(x) <= 0. Violation returns
// g(x); positive values are infeasible.
type Constraint struct {
	Name      string
	Violation func(x []float64) float64
}

// Program is a bounded smooth minimization problem.
type Program struct {
	Name string
	// Objective is minimized. Callers maximizing negate it.
	Objective func(x []float64) float64
	// Bounds give the box [min, max] per dimension.
	Bounds [][2]float64
	// Constraints are enforced through a quadratic penalty.
	Constraints []Constraint
	// Start is an optional warm start, projected into the box.
	Start []float64
}

// Options tunes the search.
type Options struct {
	// Restarts is the number of random starts beyond the warm start.
	Restarts int
	// PenaltyWeight scales the quadratic constraint penalty.
	PenaltyWeight float64
	// Tolerance is the feasibility tolerance for MaxViolation.
	Tolerance float64
	// Seed makes the random starts reproducible.
	Seed int64
}

// DefaultOptions returns the options used by the exercises.
func DefaultOptions() Options {
	return Options{Restarts: 24, PenaltyWeight: 1e4, Tolerance: 1e-5}
}

// Result is the best point found across all starts.
type Result struct {
	X            []float64
	Objective    float64
	MaxViolation float64
	Feasible     bool
	Starts       int
}

// Minimize runs the multi-start search. Cancellation is cooperative:
// the context is checked between starts.
func Minimize(ctx context.Context, p Program, opts Options) (*Result, error) {
	n := len(p.Bounds)
	if n == 0 {
		return nil, solve.NewError("program has no variables").WithComponent("smooth").WithOperation("Minimize")
	}
	for i, b := range p.Bounds {
		if b[0] > b[1] || math.IsInf(b[0], 0) || math.IsInf(b[1], 0) {
			return nil, solve.NewErrorf("dimension %d has unusable bounds [%g, %g]", i, b[0], b[1]).
				WithComponent("smooth").WithOperation("Minimize")
		}
	}
	if opts.Restarts <= 0 {
		opts.Restarts = DefaultOptions().Restarts
	}
	if opts.PenaltyWeight <= 0 {
		opts.PenaltyWeight = DefaultOptions().PenaltyWeight
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultOptions().Tolerance
	}

	penalized := func(x []float64) float64 {
		val := p.Objective(x)
		for i, b := range p.Bounds {
			if x[i] < b[0] {
				d := b[0] - x[i]
				val += opts.PenaltyWeight * d * d
			} else if x[i] > b[1] {
				d := x[i] - b[1]
				val += opts.PenaltyWeight * d * d
			}
		}
		for _, c := range p.Constraints {
			if v := c.Violation(x); v > 0 {
				val += opts.PenaltyWeight * v * v
			}
		}
		return val
	}

	starts := make([][]float64, 0, opts.Restarts+1)
	if p.Start != nil {
		starts = append(starts, project(p.Start, p.Bounds))
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	for len(starts) < opts.Restarts+1 {
		x := make([]float64, n)
		for i, b := range p.Bounds {
			x[i] = b[0] + rng.Float64()*(b[1]-b[0])
		}
		starts = append(starts, x)
	}

	problem := optimize.Problem{Func: penalized}
	best := &Result{Objective: math.Inf(1), MaxViolation: math.Inf(1)}

	for _, x0 := range starts {
		if ctx.Err() != nil {
			if best.X == nil {
				return nil, solve.WrapError(ctx.Err(), "search cancelled").WithComponent("smooth").WithOperation("Minimize")
			}
			break
		}
		res, err := optimize.Minimize(problem, x0, nil, &optimize.NelderMead{})
		if err != nil {
			// A failed start is skipped; another start may succeed.
			continue
		}
		best.Starts++

		x := project(res.X, p.Bounds)
		obj := p.Objective(x)
		viol := maxViolation(p, x)
		if better(obj, viol, best, opts.Tolerance) {
			best.X = x
			best.Objective = obj
			best.MaxViolation = viol
		}
	}

	if best.X == nil {
		return nil, solve.NewError("no start converged").WithComponent("smooth").WithOperation("Minimize")
	}
	best.Feasible = best.MaxViolation <= opts.Tolerance
	return best, nil
}

// better prefers feasible points, then lower objectives.
func better(obj, viol float64, best *Result, tol float64) bool {
	if best.X == nil {
		return true
	}
	bestFeasible := best.MaxViolation <= tol
	feasible := viol <= tol
	if feasible != bestFeasible {
		return feasible
	}
	if !feasible {
		return viol < best.MaxViolation
	}
	return obj < best.Objective
}

func maxViolation(p Program, x []float64) float64 {
	worst := 0.0
	for _, c := range p.Constraints {
		if v := c.Violation(x); v > worst {
			worst = v
		}
	}
	return worst
}

func project(x []float64, bounds [][2]float64) []float64 {
	out := make([]float64, len(bounds))
	for i, b := range bounds {
		v := x[i]
		if v < b[0] {
			v = b[0]
		} else if v > b[1] {
			v = b[1]
		}
		out[i] = v
	}
	return out
}
