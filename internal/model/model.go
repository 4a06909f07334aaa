// Package model provides a column-oriented builder for linear,
// mixed-integer and quadratic programs. A Model only describes a
// problem; solving it is delegated to a solve.Backend.
package model

import (
	"fmt"
	"math"
)

// Sense is the optimization direction.
type Sense int

const (
	Minimize Sense = iota
	Maximize
)

// String returns a human-readable representation of the sense.
func (s Sense) String() string {
	if s == Maximize {
		return "maximize"
	}
	return "minimize"
}

// VarType specifies the domain of a variable.
type VarType int

const (
	// Continuous variables may take any value within their bounds.
	Continuous VarType = iota
	// Integer variables are restricted to integral values.
	Integer
	// Binary variables are integer variables bounded to {0, 1}.
	Binary
)

// String returns a human-readable representation of the variable type.
func (t VarType) String() string {
	switch t {
	case Integer:
		return "integer"
	case Binary:
		return "binary"
	default:
		return "continuous"
	}
}

// Column holds the per-variable data a backend needs.
type Column struct {
	Name  string
	Type  VarType
	Lower float64
	Upper float64
	Cost  float64
}

// Row holds the per-constraint bounds: Lower <= a·x <= Upper.
type Row struct {
	Name  string
	Lower float64
	Upper float64
}

// Nonzero is one entry of the sparse constraint matrix.
type Nonzero struct {
	Row int
	Col int
	Val float64
}

// QuadTerm contributes Val * x_I * x_J to the objective, with I <= J.
type QuadTerm struct {
	I   int
	J   int
	Val float64
}

// Variable is a handle into a model. Handles are bound to the model
// that created them; using one against another model is an error.
type Variable struct {
	model *Model
	index int
}

// Index returns the variable's column index.
func (v *Variable) Index() int { return v.index }

// Name returns the variable's name.
func (v *Variable) Name() string { return v.model.cols[v.index].Name }

// Type returns the variable's domain type.
func (v *Variable) Type() VarType { return v.model.cols[v.index].Type }

// SetBounds replaces the variable's lower and upper bounds.
func (v *Variable) SetBounds(lower, upper float64) {
	v.model.cols[v.index].Lower = lower
	v.model.cols[v.index].Upper = upper
}

// SetCost sets the variable's linear objective coefficient.
func (v *Variable) SetCost(cost float64) {
	v.model.cols[v.index].Cost = cost
}

// SetType changes the variable's domain type. Bounds are untouched
// except for Binary, which clamps them to [0, 1].
func (v *Variable) SetType(typ VarType) {
	v.model.cols[v.index].Type = typ
	if typ == Binary {
		v.model.cols[v.index].Lower = 0
		v.model.cols[v.index].Upper = 1
	}
}

// Model is an in-memory problem description.
type Model struct {
	name   string
	sense  Sense
	offset float64

	cols    []Column
	rows    []Row
	entries []Nonzero
	quad    []QuadTerm
	vars    []*Variable
}

// New creates an empty model with a name (informational) and an
// optimization direction.
func New(name string, sense Sense) *Model {
	return &Model{name: name, sense: sense}
}

// Name returns the model's name.
func (m *Model) Name() string { return m.name }

// Sense returns the optimization direction.
func (m *Model) Sense() Sense { return m.sense }

// Offset returns the constant objective offset.
func (m *Model) Offset() float64 { return m.offset }

// SetOffset sets a constant added to the objective value.
func (m *Model) SetOffset(offset float64) { m.offset = offset }

// NumVariables returns the number of columns.
func (m *Model) NumVariables() int { return len(m.cols) }

// NumConstraints returns the number of rows.
func (m *Model) NumConstraints() int { return len(m.rows) }

// Columns returns the column data. The slice is shared with the model
// and must not be mutated by callers.
func (m *Model) Columns() []Column { return m.cols }

// Rows returns the row data. The slice is shared with the model.
func (m *Model) Rows() []Row { return m.rows }

// Entries returns the sparse constraint matrix entries.
func (m *Model) Entries() []Nonzero { return m.entries }

// QuadTerms returns the quadratic objective terms.
func (m *Model) QuadTerms() []QuadTerm { return m.quad }

// Variables returns handles for all columns in index order.
func (m *Model) Variables() []*Variable { return m.vars }

// IsMIP reports whether any variable is integral.
func (m *Model) IsMIP() bool {
	for _, c := range m.cols {
		if c.Type != Continuous {
			return true
		}
	}
	return false
}

// IsQuadratic reports whether the objective has quadratic terms.
func (m *Model) IsQuadratic() bool { return len(m.quad) > 0 }

// AddVariable adds an unbounded continuous variable with zero cost.
// Empty names are replaced by a unique default.
func (m *Model) AddVariable(name string) *Variable {
	v, _ := m.AddDefinedVariable(name, Continuous, 0, math.Inf(-1), math.Inf(1))
	return v
}

// AddBinary adds a binary variable with zero cost.
func (m *Model) AddBinary(name string) *Variable {
	v, _ := m.AddDefinedVariable(name, Binary, 0, 0, 1)
	return v
}

// AddInteger adds a bounded integer variable with zero cost.
func (m *Model) AddInteger(name string, lower, upper float64) *Variable {
	v, _ := m.AddDefinedVariable(name, Integer, 0, lower, upper)
	return v
}

// AddDefinedVariable adds a variable with all attributes given at once.
// Binary variables ignore the bound arguments and are clamped to [0, 1].
func (m *Model) AddDefinedVariable(name string, typ VarType, cost, lower, upper float64) (*Variable, error) {
	if typ != Binary && lower > upper {
		return nil, fmt.Errorf("model %q: variable %q has crossed bounds [%g, %g]", m.name, name, lower, upper)
	}
	if name == "" {
		name = fmt.Sprintf("x%d", len(m.cols))
	}
	if typ == Binary {
		lower, upper = 0, 1
	}
	m.cols = append(m.cols, Column{Name: name, Type: typ, Lower: lower, Upper: upper, Cost: cost})
	v := &Variable{model: m, index: len(m.cols) - 1}
	m.vars = append(m.vars, v)
	return v, nil
}

// AddConstraint adds a range constraint lower <= Σ coefs·vars <= upper.
// Zero coefficients are dropped from the sparse matrix.
func (m *Model) AddConstraint(name string, lower, upper float64, vars []*Variable, coefs []float64) error {
	if len(vars) != len(coefs) {
		return fmt.Errorf("model %q: constraint %q: %d variables but %d coefficients", m.name, name, len(vars), len(coefs))
	}
	if lower > upper {
		return fmt.Errorf("model %q: constraint %q has crossed bounds [%g, %g]", m.name, name, lower, upper)
	}
	if name == "" {
		name = fmt.Sprintf("c%d", len(m.rows))
	}
	row := len(m.rows)
	m.rows = append(m.rows, Row{Name: name, Lower: lower, Upper: upper})
	for i, v := range vars {
		if v == nil || v.model != m {
			return fmt.Errorf("model %q: constraint %q references a variable from another model", m.name, name)
		}
		if coefs[i] != 0 {
			m.entries = append(m.entries, Nonzero{Row: row, Col: v.index, Val: coefs[i]})
		}
	}
	return nil
}

// AddEq adds Σ coefs·vars = rhs.
func (m *Model) AddEq(name string, vars []*Variable, coefs []float64, rhs float64) error {
	return m.AddConstraint(name, rhs, rhs, vars, coefs)
}

// AddLe adds Σ coefs·vars <= rhs.
func (m *Model) AddLe(name string, vars []*Variable, coefs []float64, rhs float64) error {
	return m.AddConstraint(name, math.Inf(-1), rhs, vars, coefs)
}

// AddGe adds Σ coefs·vars >= rhs.
func (m *Model) AddGe(name string, vars []*Variable, coefs []float64, rhs float64) error {
	return m.AddConstraint(name, rhs, math.Inf(1), vars, coefs)
}

// AddQuadTerm adds coef * a * b to the objective. Terms are normalized
// to the upper triangle; repeated pairs accumulate.
func (m *Model) AddQuadTerm(a, b *Variable, coef float64) error {
	if a == nil || b == nil || a.model != m || b.model != m {
		return fmt.Errorf("model %q: quadratic term references a variable from another model", m.name)
	}
	if coef == 0 {
		return nil
	}
	i, j := a.index, b.index
	if i > j {
		i, j = j, i
	}
	for k := range m.quad {
		if m.quad[k].I == i && m.quad[k].J == j {
			m.quad[k].Val += coef
			return nil
		}
	}
	m.quad = append(m.quad, QuadTerm{I: i, J: j, Val: coef})
	return nil
}

// ObjectiveValue evaluates the objective (linear + quadratic + offset)
// at the given point.
func (m *Model) ObjectiveValue(x []float64) (float64, error) {
	if len(x) != len(m.cols) {
		return 0, fmt.Errorf("model %q: point has %d values, want %d", m.name, len(x), len(m.cols))
	}
	val := m.offset
	for i, c := range m.cols {
		val += c.Cost * x[i]
	}
	for _, q := range m.quad {
		val += q.Val * x[q.I] * x[q.J]
	}
	return val, nil
}

// RowActivity evaluates Σ a·x for every constraint row.
func (m *Model) RowActivity(x []float64) ([]float64, error) {
	if len(x) != len(m.cols) {
		return nil, fmt.Errorf("model %q: point has %d values, want %d", m.name, len(x), len(m.cols))
	}
	act := make([]float64, len(m.rows))
	for _, e := range m.entries {
		act[e.Row] += e.Val * x[e.Col]
	}
	return act, nil
}

// Validate checks internal consistency before a model is handed to a
// backend.
func (m *Model) Validate() error {
	for _, c := range m.cols {
		if c.Lower > c.Upper {
			return fmt.Errorf("model %q: variable %q has crossed bounds [%g, %g]", m.name, c.Name, c.Lower, c.Upper)
		}
		if math.IsNaN(c.Cost) {
			return fmt.Errorf("model %q: variable %q has NaN cost", m.name, c.Name)
		}
	}
	for _, r := range m.rows {
		if r.Lower > r.Upper {
			return fmt.Errorf("model %q: constraint %q has crossed bounds [%g, %g]", m.name, r.Name, r.Lower, r.Upper)
		}
	}
	for _, e := range m.entries {
		if e.Col < 0 || e.Col >= len(m.cols) || e.Row < 0 || e.Row >= len(m.rows) {
			return fmt.Errorf("model %q: matrix entry out of range (row %d, col %d)", m.name, e.Row, e.Col)
		}
		if math.IsNaN(e.Val) {
			return fmt.Errorf("model %q: matrix entry (row %d, col %d) is NaN", m.name, e.Row, e.Col)
		}
	}
	for _, q := range m.quad {
		if q.I < 0 || q.J >= len(m.cols) || q.I > q.J {
			return fmt.Errorf("model %q: quadratic term out of range (%d, %d)", m.name, q.I, q.J)
		}
	}
	return nil
}
