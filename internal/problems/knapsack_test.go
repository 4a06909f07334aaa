package problems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbellec/optlab/internal/model"
	"github.com/mbellec/optlab/internal/solve"
)

func TestGenerateKnapsackReproducible(t *testing.T) {
	a := GenerateKnapsack(50, 42)
	b := GenerateKnapsack(50, 42)
	assert.Equal(t, a, b)

	c := GenerateKnapsack(50, 43)
	assert.NotEqual(t, a.Values, c.Values)
}

func TestGenerateKnapsackRanges(t *testing.T) {
	d := GenerateKnapsack(200, 7)
	require.NoError(t, d.Validate())

	total := 0.0
	for i := range d.Values {
		assert.GreaterOrEqual(t, d.Values[i], 1.0)
		assert.Less(t, d.Values[i], 25.0)
		assert.GreaterOrEqual(t, d.Weights[i], 5.0)
		assert.Less(t, d.Weights[i], 100.0)
		total += d.Weights[i]
	}
	assert.InDelta(t, 0.7*total, d.Capacity, 1e-9)
}

func TestKnapsackValidate(t *testing.T) {
	tests := []struct {
		name    string
		data    KnapsackData
		wantErr string
	}{
		{
			name:    "no items",
			data:    KnapsackData{},
			wantErr: "no items",
		},
		{
			name:    "length mismatch",
			data:    KnapsackData{Values: []float64{1, 2}, Weights: []float64{1}, Capacity: 5},
			wantErr: "2 values but 1 weights",
		},
		{
			name:    "negative capacity",
			data:    KnapsackData{Values: []float64{1}, Weights: []float64{1}, Capacity: -1},
			wantErr: "negative capacity",
		},
		{
			name: "valid",
			data: KnapsackData{Values: []float64{1}, Weights: []float64{1}, Capacity: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildKnapsack(t *testing.T) {
	d := KnapsackData{
		Values:   []float64{10, 13, 18, 31, 7, 15},
		Weights:  []float64{2, 3, 4, 5, 1, 4},
		Capacity: 10,
	}
	m, err := BuildKnapsack(d)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	assert.Equal(t, model.Maximize, m.Sense())
	assert.Equal(t, 6, m.NumVariables())
	assert.Equal(t, 1, m.NumConstraints())
	assert.True(t, m.IsMIP())
	assert.False(t, m.IsQuadratic())

	for i, c := range m.Columns() {
		assert.Equal(t, model.Binary, c.Type)
		assert.Equal(t, d.Values[i], c.Cost)
	}

	// The capacity row carries the item weights.
	entries := m.Entries()
	require.Len(t, entries, 6)
	for i, e := range entries {
		assert.Equal(t, 0, e.Row)
		assert.Equal(t, d.Weights[i], e.Val)
	}
	row := m.Rows()[0]
	assert.Equal(t, 10.0, row.Upper)

	// Objective and capacity check out at a known feasible selection.
	x := []float64{0, 1, 0, 1, 1, 0}
	obj, err := m.ObjectiveValue(x)
	require.NoError(t, err)
	assert.InDelta(t, 51.0, obj, 1e-9)
	act, err := m.RowActivity(x)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, act[0], 1e-9)
}

func TestBuildKnapsackRejectsInvalid(t *testing.T) {
	_, err := BuildKnapsack(KnapsackData{})
	assert.Error(t, err)
}

func TestReportKnapsack(t *testing.T) {
	d := KnapsackData{
		Values:   []float64{10, 13, 18, 31},
		Weights:  []float64{2, 3, 4, 5},
		Capacity: 10,
	}
	sol := &solve.Solution{
		Status:        solve.StatusOptimal,
		Values:        []float64{1, 0, 0.99, 1},
		Objective:     59,
		SolutionCount: 1,
	}
	r, err := ReportKnapsack(d, sol)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 3}, r.Selected)
	assert.InDelta(t, 59.0, r.TotalValue, 1e-9)
	assert.InDelta(t, 11.0, r.TotalWeight, 1e-9)
	assert.Contains(t, r.String(), "Optimal value: 59.00")
}

func TestReportKnapsackErrors(t *testing.T) {
	d := KnapsackData{Values: []float64{1}, Weights: []float64{1}, Capacity: 1}

	_, err := ReportKnapsack(d, &solve.Solution{Status: solve.StatusInfeasible})
	assert.ErrorContains(t, err, "no feasible solution")

	_, err = ReportKnapsack(d, &solve.Solution{
		Status: solve.StatusOptimal, Values: []float64{1, 1}, SolutionCount: 1,
	})
	assert.ErrorContains(t, err, "2 values, want 1")
}
