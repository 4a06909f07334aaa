package problems

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/mbellec/optlab/internal/model"
	"github.com/mbellec/optlab/internal/solve"
)

// PortfolioData is a mean-variance portfolio selection instance with a
// cardinality limit.
type PortfolioData struct {
	NumAssets      int         `json:"num_assets"`
	Covariance     [][]float64 `json:"covariance"`
	ExpectedReturn []float64   `json:"expected_return"`
	TargetReturn   float64     `json:"target_return"`
	MaxAssets      int         `json:"portfolio_max_size"`
}

// LoadPortfolio reads an instance from a JSON file.
func LoadPortfolio(path string) (PortfolioData, error) {
	var d PortfolioData
	raw, err := os.ReadFile(path)
	if err != nil {
		return d, fmt.Errorf("portfolio: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("portfolio: parsing %s: %w", path, err)
	}
	return d, d.Validate()
}

// Validate checks dimensions and symmetry of the covariance matrix.
func (d PortfolioData) Validate() error {
	n := d.NumAssets
	if n <= 0 {
		return fmt.Errorf("portfolio: num_assets must be positive, got %d", n)
	}
	if len(d.ExpectedReturn) != n {
		return fmt.Errorf("portfolio: %d expected returns for %d assets", len(d.ExpectedReturn), n)
	}
	if len(d.Covariance) != n {
		return fmt.Errorf("portfolio: covariance has %d rows for %d assets", len(d.Covariance), n)
	}
	for i, row := range d.Covariance {
		if len(row) != n {
			return fmt.Errorf("portfolio: covariance row %d has %d entries, want %d", i, len(row), n)
		}
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if math.Abs(d.Covariance[i][j]-d.Covariance[j][i]) > 1e-9 {
				return fmt.Errorf("portfolio: covariance is not symmetric at (%d, %d)", i, j)
			}
		}
	}
	if d.MaxAssets <= 0 || d.MaxAssets > n {
		return fmt.Errorf("portfolio: portfolio_max_size %d out of range [1, %d]", d.MaxAssets, n)
	}
	return nil
}

// CovarianceMatrix returns the covariance as a gonum symmetric matrix.
func (d PortfolioData) CovarianceMatrix() *mat.SymDense {
	n := d.NumAssets
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, d.Covariance[i][j])
		}
	}
	return s
}

// Risk evaluates x' Sigma x for a weight vector.
func (d PortfolioData) Risk(weights []float64) float64 {
	x := mat.NewVecDense(len(weights), weights)
	var tmp mat.VecDense
	tmp.MulVec(d.CovarianceMatrix(), x)
	return mat.Dot(x, &tmp)
}

// BuildPortfolio formulates the instance: fractional weights x, binary
// selection indicators y, minimize x' Sigma x subject to the return
// target, full investment, linking and cardinality constraints.
func BuildPortfolio(d PortfolioData) (*model.Model, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	n := d.NumAssets
	m := model.New("portfolio", model.Minimize)

	x := make([]*model.Variable, n)
	y := make([]*model.Variable, n)
	for i := 0; i < n; i++ {
		x[i] = m.AddVariable(fmt.Sprintf("x%d", i))
		x[i].SetBounds(0, 1)
		y[i] = m.AddBinary(fmt.Sprintf("y%d", i))
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			coef := d.Covariance[i][j]
			if i != j {
				// Sigma is symmetric: the (i,j) and (j,i) products
				// collapse into one term.
				coef *= 2
			}
			if err := m.AddQuadTerm(x[i], x[j], coef); err != nil {
				return nil, err
			}
		}
	}

	if err := m.AddGe("return", x, d.ExpectedReturn, d.TargetReturn); err != nil {
		return nil, err
	}
	budget := make([]float64, n)
	for i := range budget {
		budget[i] = 1
	}
	if err := m.AddEq("budget", x, budget, 1); err != nil {
		return nil, err
	}
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	if err := m.AddLe("limit_assets", y, ones, float64(d.MaxAssets)); err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if err := m.AddLe(fmt.Sprintf("link%d", i), []*model.Variable{x[i], y[i]}, []float64{1, -1}, 0); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// PortfolioReport summarizes a solved instance.
type PortfolioReport struct {
	Weights        []float64
	Risk           float64
	ExpectedReturn float64
	AssetsHeld     int
}

// ReportPortfolio extracts weights, realized risk and return.
func ReportPortfolio(d PortfolioData, sol *solve.Solution) (*PortfolioReport, error) {
	if !sol.HasSolution() {
		return nil, fmt.Errorf("portfolio: no feasible solution to report")
	}
	n := d.NumAssets
	if len(sol.Values) < 2*n {
		return nil, fmt.Errorf("portfolio: solution has %d values, want %d", len(sol.Values), 2*n)
	}
	r := &PortfolioReport{Weights: make([]float64, n)}
	for i := 0; i < n; i++ {
		// Variables alternate x, y in build order.
		r.Weights[i] = sol.Values[2*i]
		if sol.Values[2*i+1] > 0.5 {
			r.AssetsHeld++
		}
		r.ExpectedReturn += d.ExpectedReturn[i] * r.Weights[i]
	}
	r.Risk = d.Risk(r.Weights)
	return r, nil
}

// String formats the report as the asset table the exercise prints.
func (r *PortfolioReport) String() string {
	var b strings.Builder
	b.WriteString("           Portfolio\n")
	for i, w := range r.Weights {
		fmt.Fprintf(&b, "asset_%-4d %9.6f\n", i, w)
	}
	fmt.Fprintf(&b, "risk       %9.6f\n", r.Risk)
	fmt.Fprintf(&b, "return     %9.6f\n", r.ExpectedReturn)
	return b.String()
}
