// Package problems contains the optimization exercises: data types,
// generators and loaders, model builders, and solution reports. Each
// exercise is independent; the shared vocabulary is the model builder
// and the solve call contract.
package problems

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/mbellec/optlab/internal/model"
	"github.com/mbellec/optlab/internal/solve"
)

// KnapsackData is a 0/1 knapsack instance.
type KnapsackData struct {
	Values   []float64 `json:"values"`
	Weights  []float64 `json:"weights"`
	Capacity float64   `json:"capacity"`
}

// GenerateKnapsack builds a reproducible random instance: item values
// uniform in [1, 25), weights uniform in [5, 100), capacity 70% of the
// total weight.
func GenerateKnapsack(numItems int, seed int64) KnapsackData {
	rng := rand.New(rand.NewSource(seed))
	d := KnapsackData{
		Values:  make([]float64, numItems),
		Weights: make([]float64, numItems),
	}
	total := 0.0
	for i := 0; i < numItems; i++ {
		d.Values[i] = 1 + rng.Float64()*24
		d.Weights[i] = 5 + rng.Float64()*95
		total += d.Weights[i]
	}
	d.Capacity = 0.7 * total
	return d
}

// Validate checks instance consistency.
func (d KnapsackData) Validate() error {
	if len(d.Values) == 0 {
		return fmt.Errorf("knapsack: no items")
	}
	if len(d.Values) != len(d.Weights) {
		return fmt.Errorf("knapsack: %d values but %d weights", len(d.Values), len(d.Weights))
	}
	if d.Capacity < 0 {
		return fmt.Errorf("knapsack: negative capacity %g", d.Capacity)
	}
	return nil
}

// BuildKnapsack formulates the instance: binary selection variables,
// maximize total value under the capacity constraint.
func BuildKnapsack(d KnapsackData) (*model.Model, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	m := model.New("knapsack", model.Maximize)
	vars := make([]*model.Variable, len(d.Values))
	for i, v := range d.Values {
		vars[i] = m.AddBinary(fmt.Sprintf("x%d", i))
		vars[i].SetCost(v)
	}
	if err := m.AddLe("capacity", vars, d.Weights, d.Capacity); err != nil {
		return nil, err
	}
	return m, nil
}

// KnapsackReport summarizes a solved instance.
type KnapsackReport struct {
	Selected    []int
	TotalValue  float64
	TotalWeight float64
	Capacity    float64
}

// ReportKnapsack extracts the chosen items from a solution.
func ReportKnapsack(d KnapsackData, sol *solve.Solution) (*KnapsackReport, error) {
	if !sol.HasSolution() {
		return nil, fmt.Errorf("knapsack: no feasible solution to report")
	}
	if len(sol.Values) != len(d.Values) {
		return nil, fmt.Errorf("knapsack: solution has %d values, want %d", len(sol.Values), len(d.Values))
	}
	r := &KnapsackReport{Capacity: d.Capacity}
	for i, x := range sol.Values {
		if x > 0.5 {
			r.Selected = append(r.Selected, i)
			r.TotalValue += d.Values[i]
			r.TotalWeight += d.Weights[i]
		}
	}
	return r, nil
}

// String formats the report the way the exercise prints it.
func (r *KnapsackReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Optimal value: %.2f\n", r.TotalValue)
	fmt.Fprintf(&b, "Total weight: %.2f / %.2f\n", r.TotalWeight, r.Capacity)
	preview := r.Selected
	if len(preview) > 10 {
		preview = preview[:10]
	}
	fmt.Fprintf(&b, "Items selected: %v ... (%d items)\n", preview, len(r.Selected))
	return b.String()
}
