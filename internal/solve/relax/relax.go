// Package relax computes LP relaxation bounds for linear models. The
// integrality requirements are dropped, the model is brought into
// standard form and handed to gonum's simplex implementation. The bound
// is used to seed progress snapshots and to report proof gaps for
// incumbent solutions.
package relax

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/mbellec/optlab/internal/model"
	"github.com/mbellec/optlab/internal/solve"
)

const simplexTol = 1e-10

// Result holds the relaxation outcome.
type Result struct {
	// Bound is the relaxation's optimal objective: an upper bound for
	// maximization models, a lower bound for minimization models.
	Bound float64
	// Values is the relaxed (generally fractional) solution in the
	// model's variable order.
	Values []float64
}

// Bound solves the LP relaxation of m.
func Bound(m *model.Model) (*Result, error) {
	if err := m.Validate(); err != nil {
		return nil, solve.WrapError(err, "invalid model").WithComponent("relax").WithOperation("Bound")
	}
	if m.IsQuadratic() {
		return nil, solve.NewError("quadratic objectives have no LP relaxation").WithComponent("relax").WithOperation("Bound")
	}

	cols := m.Columns()
	n := len(cols)
	for _, c := range cols {
		if math.IsInf(c.Lower, -1) {
			return nil, solve.NewErrorf("variable %q has no lower bound; free variables are not supported", c.Name).
				WithComponent("relax").WithOperation("Bound")
		}
	}

	// Shift every variable to x' = x - lower >= 0 and rewrite all rows
	// as equalities with slack columns, the form gonum's simplex wants.
	type stdRow struct {
		coefs map[int]float64
		rhs   float64
	}
	var stdRows []stdRow
	slacks := 0

	addRow := func(coefs map[int]float64, rhs float64, slackSign float64) {
		if slackSign != 0 {
			coefs[n+slacks] = slackSign
			slacks++
		}
		stdRows = append(stdRows, stdRow{coefs: coefs, rhs: rhs})
	}

	// Finite upper bounds become rows in the shifted space.
	for j, c := range cols {
		if !math.IsInf(c.Upper, 1) {
			addRow(map[int]float64{j: 1}, c.Upper-c.Lower, 1)
		}
	}

	// Constraint rows, with activity shifted by a·lower.
	rowCoefs := make([]map[int]float64, m.NumConstraints())
	rowShift := make([]float64, m.NumConstraints())
	for i := range rowCoefs {
		rowCoefs[i] = make(map[int]float64)
	}
	for _, e := range m.Entries() {
		rowCoefs[e.Row][e.Col] += e.Val
		rowShift[e.Row] += e.Val * cols[e.Col].Lower
	}
	for i, r := range m.Rows() {
		lower, upper := r.Lower-rowShift[i], r.Upper-rowShift[i]
		switch {
		case r.Lower == r.Upper:
			addRow(copyCoefs(rowCoefs[i]), upper, 0)
		default:
			if !math.IsInf(r.Upper, 1) {
				addRow(copyCoefs(rowCoefs[i]), upper, 1)
			}
			if !math.IsInf(r.Lower, -1) {
				addRow(copyCoefs(rowCoefs[i]), lower, -1)
			}
		}
	}

	total := n + slacks
	a := mat.NewDense(len(stdRows), total, nil)
	b := make([]float64, len(stdRows))
	for i, r := range stdRows {
		for j, v := range r.coefs {
			a.Set(i, j, v)
		}
		b[i] = r.rhs
	}

	c := make([]float64, total)
	offset := m.Offset()
	negate := m.Sense() == model.Maximize
	for j, col := range cols {
		cost := col.Cost
		offset += cost * col.Lower
		if negate {
			cost = -cost
		}
		c[j] = cost
	}

	opt, x, err := lp.Simplex(c, a, b, simplexTol, nil)
	if err != nil {
		return nil, solve.WrapError(err, "relaxation failed").WithComponent("relax").WithOperation("Bound")
	}

	if negate {
		opt = -opt
	}
	values := make([]float64, n)
	for j := range values {
		values[j] = x[j] + cols[j].Lower
	}
	return &Result{Bound: opt + offset, Values: values}, nil
}

func copyCoefs(src map[int]float64) map[int]float64 {
	dst := make(map[int]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
