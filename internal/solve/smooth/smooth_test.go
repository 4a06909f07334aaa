package smooth

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinimizeQuadraticBowl(t *testing.T) {
	p := Program{
		Name: "bowl",
		Objective: func(x []float64) float64 {
			return (x[0]-1)*(x[0]-1) + (x[1]+2)*(x[1]+2)
		},
		Bounds: [][2]float64{{-5, 5}, {-5, 5}},
	}

	res, err := Minimize(context.Background(), p, Options{Seed: 1})
	require.NoError(t, err)

	assert.True(t, res.Feasible)
	assert.InDelta(t, 1.0, res.X[0], 1e-3)
	assert.InDelta(t, -2.0, res.X[1], 1e-3)
	assert.InDelta(t, 0.0, res.Objective, 1e-5)
}

func TestMinimizeRespectsBounds(t *testing.T) {
	// Unconstrained minimum at x = -3, outside the box.
	p := Program{
		Objective: func(x []float64) float64 { return (x[0] + 3) * (x[0] + 3) },
		Bounds:    [][2]float64{{0, 10}},
	}

	res, err := Minimize(context.Background(), p, Options{Seed: 7})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.X[0], 1e-3)
}

func TestMinimizeWithPenalizedConstraint(t *testing.T) {
	// Minimize x^2 + y^2 subject to x + y >= 2; optimum at (1, 1).
	p := Program{
		Objective: func(x []float64) float64 { return x[0]*x[0] + x[1]*x[1] },
		Bounds:    [][2]float64{{-5, 5}, {-5, 5}},
		Constraints: []Constraint{
			{Name: "line", Violation: func(x []float64) float64 { return 2 - x[0] - x[1] }},
		},
	}

	res, err := Minimize(context.Background(), p, Options{Seed: 3, Restarts: 16, PenaltyWeight: 1e6})
	require.NoError(t, err)
	assert.True(t, res.Feasible)
	assert.InDelta(t, 2.0, res.Objective, 5e-2)
	assert.InDelta(t, 1.0, res.X[0], 5e-2)
	assert.InDelta(t, 1.0, res.X[1], 5e-2)
}

func TestMinimizeUsesWarmStart(t *testing.T) {
	p := Program{
		Objective: func(x []float64) float64 { return math.Cos(x[0]) },
		Bounds:    [][2]float64{{0, 2 * math.Pi}},
		Start:     []float64{3.0},
	}

	res, err := Minimize(context.Background(), p, Options{Seed: 2})
	require.NoError(t, err)
	assert.InDelta(t, math.Pi, res.X[0], 1e-2)
	assert.InDelta(t, -1.0, res.Objective, 1e-5)
}

func TestMinimizeValidation(t *testing.T) {
	_, err := Minimize(context.Background(), Program{}, Options{})
	assert.Error(t, err)

	_, err = Minimize(context.Background(), Program{
		Objective: func(x []float64) float64 { return x[0] },
		Bounds:    [][2]float64{{1, 0}},
	}, Options{})
	assert.Error(t, err)

	_, err = Minimize(context.Background(), Program{
		Objective: func(x []float64) float64 { return x[0] },
		Bounds:    [][2]float64{{0, math.Inf(1)}},
	}, Options{})
	assert.Error(t, err)
}

func TestMinimizeCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Minimize(ctx, Program{
		Objective: func(x []float64) float64 { return x[0] * x[0] },
		Bounds:    [][2]float64{{-1, 1}},
	}, Options{})
	assert.Error(t, err)
}
