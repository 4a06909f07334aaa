package problems

import (
	"fmt"
	"math"
	"strings"

	"github.com/mbellec/optlab/internal/solve/smooth"
)

// BucketData describes the bucket design problem: choose the bottom
// radius r, top radius R and height h of a conical frustum maximizing
// volume for a fixed total surface (bottom disc plus lateral surface).
type BucketData struct {
	Surface float64 // total surface area (m^2)
	RMax    float64 // upper bound on both radii (m)
	HMax    float64 // upper bound on the height (m)
	Start   [3]float64
}

// DefaultBucket returns the exercise instance: one square meter of
// material and the warm start the exercise uses.
func DefaultBucket() BucketData {
	return BucketData{
		Surface: 1.0,
		RMax:    2.0,
		HMax:    2.0,
		Start:   [3]float64{0.25, 0.45, 0.50},
	}
}

// Validate checks the instance.
func (d BucketData) Validate() error {
	if d.Surface <= 0 {
		return fmt.Errorf("bucket: surface must be positive, got %g", d.Surface)
	}
	if d.RMax <= 0 || d.HMax <= 0 {
		return fmt.Errorf("bucket: bounds must be positive")
	}
	return nil
}

// BucketVolume is the frustum volume (pi/3)·h·(R² + R·r + r²).
func BucketVolume(r, bigR, h float64) float64 {
	return math.Pi / 3.0 * h * (bigR*bigR + bigR*r + r*r)
}

// BucketSurface is the used material: bottom disc plus lateral surface
// pi·(R+r)·sqrt((R−r)² + h²).
func BucketSurface(r, bigR, h float64) float64 {
	slant := math.Sqrt((bigR-r)*(bigR-r) + h*h)
	return math.Pi*r*r + math.Pi*(bigR+r)*slant
}

// BuildBucket expresses the design as a smooth program over (r, R, h).
// The surface budget is an equality handled through the penalty: any
// leftover material could always be turned into extra volume, so the
// optimum uses it all.
func BuildBucket(d BucketData) (smooth.Program, error) {
	if err := d.Validate(); err != nil {
		return smooth.Program{}, err
	}
	return smooth.Program{
		Name: "bucket_frustum",
		// Maximize volume.
		Objective: func(x []float64) float64 {
			return -BucketVolume(x[0], x[1], x[2])
		},
		Bounds: [][2]float64{{0, d.RMax}, {0, d.RMax}, {0, d.HMax}},
		Constraints: []smooth.Constraint{
			{
				Name: "surface",
				Violation: func(x []float64) float64 {
					return math.Abs(BucketSurface(x[0], x[1], x[2]) - d.Surface)
				},
			},
		},
		Start: d.Start[:],
	}, nil
}

// BucketReport summarizes a solved design.
type BucketReport struct {
	R, TopR, H float64
	Volume     float64
	Surface    float64
}

// ReportBucket extracts the design from a smooth result.
func ReportBucket(d BucketData, res *smooth.Result) (*BucketReport, error) {
	if len(res.X) != 3 {
		return nil, fmt.Errorf("bucket: result has %d values, want 3", len(res.X))
	}
	r, bigR, h := res.X[0], res.X[1], res.X[2]
	return &BucketReport{
		R: r, TopR: bigR, H: h,
		Volume:  BucketVolume(r, bigR, h),
		Surface: BucketSurface(r, bigR, h),
	}, nil
}

// String formats the design summary the exercise prints.
func (r *BucketReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "r = %.6f m\n", r.R)
	fmt.Fprintf(&b, "R = %.6f m\n", r.TopR)
	fmt.Fprintf(&b, "h = %.6f m\n", r.H)
	fmt.Fprintf(&b, "Volume = %.9f m^3\n", r.Volume)
	fmt.Fprintf(&b, "Surface = %.9f m^2\n", r.Surface)
	return b.String()
}
