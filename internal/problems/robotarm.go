package problems

import (
	"fmt"
	"math"
	"strings"

	"github.com/mbellec/optlab/internal/solve/smooth"
)

// RobotArmData describes a two-link planar arm trajectory problem: get
// the end effector close to a target over a fixed number of steps while
// the first link's midpoint clears a circular obstacle.
type RobotArmData struct {
	L1, L2           float64 // link lengths
	TargetX, TargetY float64
	ObstacleX        float64
	ObstacleY        float64
	ObstacleR        float64
	Steps            int
	Theta1Init       float64
	Theta2Init       float64
	Theta1Min        float64
	Theta1Max        float64
	Theta2Min        float64
	Theta2Max        float64
	DTheta1Max       float64 // per-step joint speed limits (rad)
	DTheta2Max       float64
	MotionWeight     float64 // penalty weight on total joint motion
}

// DefaultRobotArm returns the exercise instance.
func DefaultRobotArm() RobotArmData {
	return RobotArmData{
		L1: 1.0, L2: 0.8,
		TargetX: 1.20, TargetY: 0.60,
		ObstacleX: 0.50, ObstacleY: 0.00, ObstacleR: 0.20,
		Steps:      10,
		Theta1Min:  -math.Pi, Theta1Max: math.Pi,
		Theta2Min: -0.75 * math.Pi, Theta2Max: 0.75 * math.Pi,
		DTheta1Max:   0.25 * math.Pi,
		DTheta2Max:   0.25 * math.Pi,
		MotionWeight: 0.01,
	}
}

// Validate checks the instance.
func (d RobotArmData) Validate() error {
	if d.Steps < 2 {
		return fmt.Errorf("robotarm: need at least 2 steps, got %d", d.Steps)
	}
	if d.L1 <= 0 || d.L2 <= 0 {
		return fmt.Errorf("robotarm: link lengths must be positive")
	}
	if d.Theta1Min > d.Theta1Max || d.Theta2Min > d.Theta2Max {
		return fmt.Errorf("robotarm: crossed joint limits")
	}
	if d.DTheta1Max <= 0 || d.DTheta2Max <= 0 {
		return fmt.Errorf("robotarm: speed limits must be positive")
	}
	return nil
}

// Forward computes the end-effector position for one joint pair.
func (d RobotArmData) Forward(theta1, theta2 float64) (x, y float64) {
	x = d.L1*math.Cos(theta1) + d.L2*math.Cos(theta1+theta2)
	y = d.L1*math.Sin(theta1) + d.L2*math.Sin(theta1+theta2)
	return x, y
}

// midpoint is the center of link 1, the point kept clear of the
// obstacle.
func (d RobotArmData) midpoint(theta1 float64) (x, y float64) {
	return 0.5 * d.L1 * math.Cos(theta1), 0.5 * d.L1 * math.Sin(theta1)
}

// BuildRobotArm expresses the trajectory as a smooth program over the
// joint angles. The decision vector packs theta1 then theta2 for steps
// 1..T-1; step 0 is pinned to the initial configuration. Joint limits
// are box bounds; speed limits and obstacle clearance are penalized
// constraints.
func BuildRobotArm(d RobotArmData) (smooth.Program, error) {
	if err := d.Validate(); err != nil {
		return smooth.Program{}, err
	}
	free := d.Steps - 1

	angles := func(x []float64) ([]float64, []float64) {
		t1 := make([]float64, d.Steps)
		t2 := make([]float64, d.Steps)
		t1[0], t2[0] = d.Theta1Init, d.Theta2Init
		for t := 1; t < d.Steps; t++ {
			t1[t] = x[t-1]
			t2[t] = x[free+t-1]
		}
		return t1, t2
	}

	bounds := make([][2]float64, 2*free)
	start := make([]float64, 2*free)
	for i := 0; i < free; i++ {
		bounds[i] = [2]float64{d.Theta1Min, d.Theta1Max}
		bounds[free+i] = [2]float64{d.Theta2Min, d.Theta2Max}
		start[i] = d.Theta1Init
		start[free+i] = d.Theta2Init
	}

	var constraints []smooth.Constraint
	for t := 1; t < d.Steps; t++ {
		t := t
		constraints = append(constraints,
			smooth.Constraint{
				Name: fmt.Sprintf("vel1_%d", t),
				Violation: func(x []float64) float64 {
					t1, _ := angles(x)
					return math.Abs(t1[t]-t1[t-1]) - d.DTheta1Max
				},
			},
			smooth.Constraint{
				Name: fmt.Sprintf("vel2_%d", t),
				Violation: func(x []float64) float64 {
					_, t2 := angles(x)
					return math.Abs(t2[t]-t2[t-1]) - d.DTheta2Max
				},
			},
			smooth.Constraint{
				Name: fmt.Sprintf("obstacle_%d", t),
				Violation: func(x []float64) float64 {
					t1, _ := angles(x)
					mx, my := d.midpoint(t1[t])
					dx, dy := mx-d.ObstacleX, my-d.ObstacleY
					return d.ObstacleR*d.ObstacleR - (dx*dx + dy*dy)
				},
			},
		)
	}

	objective := func(x []float64) float64 {
		t1, t2 := angles(x)
		ex, ey := d.Forward(t1[d.Steps-1], t2[d.Steps-1])
		val := (ex-d.TargetX)*(ex-d.TargetX) + (ey-d.TargetY)*(ey-d.TargetY)
		for t := 1; t < d.Steps; t++ {
			d1 := t1[t] - t1[t-1]
			d2 := t2[t] - t2[t-1]
			val += d.MotionWeight * (d1*d1 + d2*d2)
		}
		return val
	}

	return smooth.Program{
		Name:        "robot_arm_trajectory",
		Objective:   objective,
		Bounds:      bounds,
		Constraints: constraints,
		Start:       start,
	}, nil
}

// RobotArmStep is one trajectory row.
type RobotArmStep struct {
	Theta1, Theta2 float64
	X, Y           float64
}

// RobotArmReport summarizes a solved trajectory.
type RobotArmReport struct {
	Objective     float64
	FinalDistance float64
	Steps         []RobotArmStep
}

// ReportRobotArm reconstructs the trajectory from a smooth result.
func ReportRobotArm(d RobotArmData, res *smooth.Result) (*RobotArmReport, error) {
	free := d.Steps - 1
	if len(res.X) != 2*free {
		return nil, fmt.Errorf("robotarm: result has %d values, want %d", len(res.X), 2*free)
	}
	r := &RobotArmReport{Objective: res.Objective}
	t1, t2 := d.Theta1Init, d.Theta2Init
	for t := 0; t < d.Steps; t++ {
		if t > 0 {
			t1 = res.X[t-1]
			t2 = res.X[free+t-1]
		}
		x, y := d.Forward(t1, t2)
		r.Steps = append(r.Steps, RobotArmStep{Theta1: t1, Theta2: t2, X: x, Y: y})
	}
	last := r.Steps[len(r.Steps)-1]
	r.FinalDistance = math.Hypot(last.X-d.TargetX, last.Y-d.TargetY)
	return r, nil
}

// String formats the per-step trajectory table.
func (r *RobotArmReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Optimal trajectory, obj=%.4f\n", r.Objective)
	b.WriteString("Step | th1(rad) | th2(rad) |     x |     y\n")
	for t, s := range r.Steps {
		fmt.Fprintf(&b, "%4d | %8.3f | %8.3f | %5.2f | %5.2f\n", t, s.Theta1, s.Theta2, s.X, s.Y)
	}
	return b.String()
}
