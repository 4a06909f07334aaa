package problems

import (
	"fmt"
	"strings"

	"github.com/mbellec/optlab/internal/model"
	"github.com/mbellec/optlab/internal/solve"
)

// ThermalUnit describes one dispatchable generator. Production cost is
// quadratic: CostConst·u + CostLinear·p + CostQuad·p².
type ThermalUnit struct {
	Name         string  `json:"name"`
	CostConst    float64 `json:"cost_const"`
	CostLinear   float64 `json:"cost_linear"`
	CostQuad     float64 `json:"cost_quad"`
	StartupCost  float64 `json:"startup_cost"`
	ShutdownCost float64 `json:"shutdown_cost"`
	PMin         float64 `json:"p_min"`
	PMax         float64 `json:"p_max"`
	InitialOn    bool    `json:"initial_on"`
}

// UnitCommitmentData is a day-ahead commitment instance: hourly load
// and solar forecasts plus the thermal fleet.
type UnitCommitmentData struct {
	Load  []float64     `json:"load"`
	Solar []float64     `json:"solar"`
	Units []ThermalUnit `json:"units"`
}

// DefaultUnitCommitment returns the 24-hour three-unit instance of the
// exercise.
func DefaultUnitCommitment() UnitCommitmentData {
	return UnitCommitmentData{
		Load: []float64{
			4, 4, 4, 4, 4, 4, 6, 6,
			12, 12, 12, 12, 12, 4, 4, 4,
			4, 16, 16, 16, 16, 6.5, 6.5, 6.5,
		},
		Solar: []float64{
			0, 0, 0, 0, 0, 0, 0.5, 1.0,
			1.5, 2.0, 2.5, 3.5, 3.5, 2.5, 2.0, 1.5,
			1.0, 0.5, 0, 0, 0, 0, 0, 0,
		},
		Units: []ThermalUnit{
			{Name: "gen1", CostConst: 5.0, CostLinear: 0.5, CostQuad: 1.0, StartupCost: 2, ShutdownCost: 1, PMin: 1.5, PMax: 5.0},
			{Name: "gen2", CostConst: 5.0, CostLinear: 0.5, CostQuad: 0.5, StartupCost: 2, ShutdownCost: 1, PMin: 2.5, PMax: 10.0},
			{Name: "gen3", CostConst: 5.0, CostLinear: 3.0, CostQuad: 2.0, StartupCost: 2, ShutdownCost: 1, PMin: 1.0, PMax: 3.0},
		},
	}
}

// Validate checks forecast lengths and unit limits.
func (d UnitCommitmentData) Validate() error {
	if len(d.Load) == 0 {
		return fmt.Errorf("unitcommit: empty load forecast")
	}
	if len(d.Solar) != len(d.Load) {
		return fmt.Errorf("unitcommit: %d solar entries for %d load entries", len(d.Solar), len(d.Load))
	}
	if len(d.Units) == 0 {
		return fmt.Errorf("unitcommit: no thermal units")
	}
	for _, u := range d.Units {
		if u.PMin < 0 || u.PMin > u.PMax {
			return fmt.Errorf("unitcommit: unit %q has bad limits [%g, %g]", u.Name, u.PMin, u.PMax)
		}
	}
	return nil
}

// BuildUnitCommitment formulates the instance. Per unit and hour:
// output p, commitment u, startup v, shutdown w. Quadratic production
// cost, power balance against load net of solar, start/stop logic and
// unit-status output limits. The output limits use the linear form
// pmin·u <= p <= pmax·u, which is equivalent to the on/off switching
// behavior for finite pmax.
func BuildUnitCommitment(d UnitCommitmentData) (*model.Model, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	T := len(d.Load)
	G := len(d.Units)
	m := model.New("unit_commitment", model.Minimize)

	p := make([][]*model.Variable, G)
	u := make([][]*model.Variable, G)
	v := make([][]*model.Variable, G)
	w := make([][]*model.Variable, G)
	for g, unit := range d.Units {
		p[g] = make([]*model.Variable, T)
		u[g] = make([]*model.Variable, T)
		v[g] = make([]*model.Variable, T)
		w[g] = make([]*model.Variable, T)
		for t := 0; t < T; t++ {
			p[g][t] = m.AddVariable(fmt.Sprintf("p_%s_%d", unit.Name, t))
			p[g][t].SetBounds(0, unit.PMax)
			p[g][t].SetCost(unit.CostLinear)
			u[g][t] = m.AddBinary(fmt.Sprintf("u_%s_%d", unit.Name, t))
			u[g][t].SetCost(unit.CostConst)
			v[g][t] = m.AddBinary(fmt.Sprintf("v_%s_%d", unit.Name, t))
			v[g][t].SetCost(unit.StartupCost)
			w[g][t] = m.AddBinary(fmt.Sprintf("w_%s_%d", unit.Name, t))
			w[g][t].SetCost(unit.ShutdownCost)
			if err := m.AddQuadTerm(p[g][t], p[g][t], unit.CostQuad); err != nil {
				return nil, err
			}
		}
	}

	// Power balance: thermal output plus solar meets the load exactly.
	for t := 0; t < T; t++ {
		vars := make([]*model.Variable, G)
		coefs := make([]float64, G)
		for g := 0; g < G; g++ {
			vars[g] = p[g][t]
			coefs[g] = 1
		}
		if err := m.AddEq(fmt.Sprintf("power_balance_%d", t), vars, coefs, d.Load[t]-d.Solar[t]); err != nil {
			return nil, err
		}
	}

	for g, unit := range d.Units {
		for t := 0; t < T; t++ {
			// Commitment transitions: u[t] - u[t-1] = v[t] - w[t].
			if t == 0 {
				init := 0.0
				if unit.InitialOn {
					init = 1.0
				}
				if err := m.AddEq(fmt.Sprintf("logical1_%s_%d", unit.Name, t),
					[]*model.Variable{u[g][t], v[g][t], w[g][t]},
					[]float64{1, -1, 1}, init); err != nil {
					return nil, err
				}
			} else {
				if err := m.AddEq(fmt.Sprintf("logical1_%s_%d", unit.Name, t),
					[]*model.Variable{u[g][t], u[g][t-1], v[g][t], w[g][t]},
					[]float64{1, -1, -1, 1}, 0); err != nil {
					return nil, err
				}
			}
			// A unit cannot start and stop in the same hour.
			if err := m.AddLe(fmt.Sprintf("logical2_%s_%d", unit.Name, t),
				[]*model.Variable{v[g][t], w[g][t]}, []float64{1, 1}, 1); err != nil {
				return nil, err
			}
			// Output limits tied to commitment.
			if err := m.AddLe(fmt.Sprintf("pmax_%s_%d", unit.Name, t),
				[]*model.Variable{p[g][t], u[g][t]}, []float64{1, -unit.PMax}, 0); err != nil {
				return nil, err
			}
			if err := m.AddGe(fmt.Sprintf("pmin_%s_%d", unit.Name, t),
				[]*model.Variable{p[g][t], u[g][t]}, []float64{1, -unit.PMin}, 0); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// UnitCommitmentReport summarizes a solved instance.
type UnitCommitmentReport struct {
	TotalCost float64
	// Output[g][t] is unit g's production in hour t.
	Output [][]float64
	Load   []float64
	Solar  []float64
	Units  []string
}

// ReportUnitCommitment extracts the dispatch schedule.
func ReportUnitCommitment(d UnitCommitmentData, sol *solve.Solution) (*UnitCommitmentReport, error) {
	if !sol.HasSolution() {
		return nil, fmt.Errorf("unitcommit: no feasible solution to report")
	}
	T := len(d.Load)
	G := len(d.Units)
	if len(sol.Values) < 4*G*T {
		return nil, fmt.Errorf("unitcommit: solution has %d values, want %d", len(sol.Values), 4*G*T)
	}
	r := &UnitCommitmentReport{TotalCost: sol.Objective, Load: d.Load, Solar: d.Solar}
	for g, unit := range d.Units {
		r.Units = append(r.Units, unit.Name)
		row := make([]float64, T)
		for t := 0; t < T; t++ {
			// Variables repeat p, u, v, w per (unit, hour) in build order.
			row[t] = sol.Values[4*(g*T+t)]
		}
		r.Output = append(r.Output, row)
	}
	return r, nil
}

// String formats the schedule grid the exercise prints.
func (r *UnitCommitmentReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Total Cost = %.2f\n\n", r.TotalCost)
	b.WriteString("time  |")
	for t := range r.Load {
		fmt.Fprintf(&b, " %4d", t)
	}
	b.WriteString("\n")
	for g, name := range r.Units {
		fmt.Fprintf(&b, "%-5s |", name)
		for t := range r.Load {
			fmt.Fprintf(&b, " %4.1f", r.Output[g][t])
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%-5s |", "solar")
	for _, s := range r.Solar {
		fmt.Fprintf(&b, " %4.1f", s)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%-5s |", "load")
	for _, l := range r.Load {
		fmt.Fprintf(&b, " %4.1f", l)
	}
	b.WriteString("\n")
	return b.String()
}
