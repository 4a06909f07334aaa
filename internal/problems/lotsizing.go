package problems

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/mbellec/optlab/internal/model"
	"github.com/mbellec/optlab/internal/solve"
)

// LotSizingData is a single-item lot-sizing instance with setup costs
// and batch size limits.
type LotSizingData struct {
	Name         string    `json:"name"`
	Horizon      int       `json:"H"`
	Demand       []float64 `json:"demand"`
	VarCost      []float64 `json:"var_cost"`
	SetupCost    []float64 `json:"setup_cost"`
	HoldCost     []float64 `json:"hold_cost"`
	QMin         float64   `json:"Qmin"`
	QMax         float64   `json:"Qmax"`
	InitialStock float64   `json:"I0"`
}

// LoadLotSizing reads an instance from a JSON file.
func LoadLotSizing(path string) (LotSizingData, error) {
	var d LotSizingData
	raw, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("lotsizing: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("lotsizing: parsing %s: %w", path, err)
	}
	return d, d.Validate()
}

// Validate checks vector lengths against the horizon and the batch
// bounds ordering.
func (d LotSizingData) Validate() error {
	if d.Horizon <= 0 {
		return fmt.Errorf("lotsizing: horizon must be positive, got %d", d.Horizon)
	}
	for _, v := range []struct {
		name string
		vec  []float64
	}{
		{"demand", d.Demand},
		{"var_cost", d.VarCost},
		{"setup_cost", d.SetupCost},
		{"hold_cost", d.HoldCost},
	} {
		if len(v.vec) != d.Horizon {
			return fmt.Errorf("lotsizing: %s has %d entries for horizon %d", v.name, len(v.vec), d.Horizon)
		}
	}
	if d.QMin < 0 || d.QMin > d.QMax {
		return fmt.Errorf("lotsizing: batch bounds must satisfy 0 <= Qmin <= Qmax, got [%g, %g]", d.QMin, d.QMax)
	}
	if d.InitialStock < 0 {
		return fmt.Errorf("lotsizing: negative initial stock %g", d.InitialStock)
	}
	return nil
}

// BuildLotSizing formulates the instance: per-period production x,
// setup indicator y and end-of-period stock I; minimize variable,
// setup and holding cost under inventory balance and batch limits.
func BuildLotSizing(d LotSizingData) (*model.Model, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	name := d.Name
	if name == "" {
		name = "lot_sizing"
	}
	m := model.New(name, model.Minimize)
	H := d.Horizon

	x := make([]*model.Variable, H)
	y := make([]*model.Variable, H)
	inv := make([]*model.Variable, H)
	for t := 0; t < H; t++ {
		x[t] = m.AddVariable(fmt.Sprintf("x%d", t))
		x[t].SetBounds(0, d.QMax)
		x[t].SetCost(d.VarCost[t])
		y[t] = m.AddBinary(fmt.Sprintf("y%d", t))
		y[t].SetCost(d.SetupCost[t])
		inv[t] = m.AddVariable(fmt.Sprintf("I%d", t))
		inv[t].SetBounds(0, math.Inf(1))
		inv[t].SetCost(d.HoldCost[t])
	}

	for t := 0; t < H; t++ {
		// Inventory balance: I[t-1] + x[t] - d[t] = I[t].
		if t == 0 {
			if err := m.AddEq(fmt.Sprintf("balance_%d", t),
				[]*model.Variable{x[t], inv[t]}, []float64{1, -1},
				d.Demand[t]-d.InitialStock); err != nil {
				return nil, err
			}
		} else {
			if err := m.AddEq(fmt.Sprintf("balance_%d", t),
				[]*model.Variable{inv[t-1], x[t], inv[t]}, []float64{1, 1, -1},
				d.Demand[t]); err != nil {
				return nil, err
			}
		}
		// Batch limits tied to the setup indicator.
		if err := m.AddLe(fmt.Sprintf("maxcap_%d", t),
			[]*model.Variable{x[t], y[t]}, []float64{1, -d.QMax}, 0); err != nil {
			return nil, err
		}
		if err := m.AddGe(fmt.Sprintf("minbatch_%d", t),
			[]*model.Variable{x[t], y[t]}, []float64{1, -d.QMin}, 0); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// LotSizingPeriod is one row of the production plan.
type LotSizingPeriod struct {
	Demand     float64
	Production float64
	Setup      bool
	Stock      float64
}

// LotSizingReport summarizes a solved instance.
type LotSizingReport struct {
	Name      string
	TotalCost float64
	Periods   []LotSizingPeriod
}

// ReportLotSizing extracts the production plan.
func ReportLotSizing(d LotSizingData, sol *solve.Solution) (*LotSizingReport, error) {
	if !sol.HasSolution() {
		return nil, fmt.Errorf("lotsizing: no feasible solution to report")
	}
	if len(sol.Values) < 3*d.Horizon {
		return nil, fmt.Errorf("lotsizing: solution has %d values, want %d", len(sol.Values), 3*d.Horizon)
	}
	r := &LotSizingReport{Name: d.Name, TotalCost: sol.Objective}
	for t := 0; t < d.Horizon; t++ {
		// Variables repeat x, y, I in build order.
		r.Periods = append(r.Periods, LotSizingPeriod{
			Demand:     d.Demand[t],
			Production: sol.Values[3*t],
			Setup:      sol.Values[3*t+1] > 0.5,
			Stock:      sol.Values[3*t+2],
		})
	}
	return r, nil
}

// String formats the plan as the period table the exercise prints.
func (r *LotSizingReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Optimal production plan: %s ===\n", r.Name)
	fmt.Fprintf(&b, "Total cost = %.2f\n\n", r.TotalCost)
	b.WriteString("Period | Demand | Prod | Setup | Stock\n")
	for t, p := range r.Periods {
		setup := 0
		if p.Setup {
			setup = 1
		}
		fmt.Fprintf(&b, "%6d | %6.1f | %4.1f | %5d | %5.1f\n", t, p.Demand, p.Production, setup, p.Stock)
	}
	return b.String()
}
