package solve

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbellec/optlab/internal/model"
	"github.com/mbellec/optlab/internal/stall"
)

// scriptedBackend replays a fixed sequence of progress reports, checking
// for cancellation between each, then returns its canned solution.
type scriptedBackend struct {
	reports  []Progress
	solution *Solution
	err      error

	delivered int
	cancelled bool
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Solve(ctx context.Context, m *model.Model, opts Options, progress ProgressFunc) (*Solution, error) {
	for _, p := range b.reports {
		if ctx.Err() != nil {
			b.cancelled = true
			return nil, ctx.Err()
		}
		if progress != nil {
			progress(p)
		}
		b.delivered++
	}
	if ctx.Err() != nil {
		b.cancelled = true
		return nil, ctx.Err()
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.solution, nil
}

func smallModel(t *testing.T) *model.Model {
	t.Helper()
	m := model.New("test", model.Maximize)
	x := m.AddBinary("x")
	x.SetCost(1)
	require.NoError(t, m.AddLe("cap", []*model.Variable{x}, []float64{1}, 1))
	return m
}

func TestSessionRequiresBackend(t *testing.T) {
	_, err := NewSession(SessionConfig{})
	assert.Error(t, err)
}

func TestSessionRejectsBadPolicy(t *testing.T) {
	_, err := NewSession(SessionConfig{
		Backend: &scriptedBackend{},
		Policy:  &stall.Policy{GapThreshold: -1, MaxStallDuration: time.Second},
	})
	assert.Error(t, err)
}

func TestSessionRunWithoutPolicy(t *testing.T) {
	backend := &scriptedBackend{
		reports:  []Progress{{SolutionCount: 1, BestObjective: 1, BestBound: 1, Timestamp: time.Now()}},
		solution: &Solution{Status: StatusOptimal, Values: []float64{1}, Objective: 1, BestBound: 1, SolutionCount: 1},
	}
	sess, err := NewSession(SessionConfig{Backend: backend})
	require.NoError(t, err)

	res, err := sess.Run(context.Background(), smallModel(t), Options{})
	require.NoError(t, err)
	assert.Equal(t, StatusOptimal, res.Solution.Status)
	assert.False(t, res.Stalled)
	assert.Equal(t, 1, res.Snapshots)
}

func TestSessionCancelsStalledRun(t *testing.T) {
	t0 := time.Now()
	backend := &scriptedBackend{
		reports: []Progress{
			{SolutionCount: 0, Timestamp: t0},
			{SolutionCount: 1, BestObjective: 100, BestBound: 50, Timestamp: t0.Add(time.Second)},
			// No improvement for longer than the stall budget.
			{SolutionCount: 1, BestObjective: 100, BestBound: 50, Timestamp: t0.Add(20 * time.Second)},
			// Never delivered: the session cancels after the stall.
			{SolutionCount: 1, BestObjective: 100, BestBound: 50, Timestamp: t0.Add(30 * time.Second)},
		},
	}
	sess, err := NewSession(SessionConfig{
		Backend: backend,
		Policy:  &stall.Policy{GapThreshold: 1e-4, MaxStallDuration: 15 * time.Second},
	})
	require.NoError(t, err)

	res, err := sess.Run(context.Background(), smallModel(t), Options{})
	require.NoError(t, err)
	assert.True(t, res.Stalled)
	assert.True(t, backend.cancelled)
	assert.Equal(t, StatusInterrupted, res.Solution.Status)
	assert.Equal(t, 3, backend.delivered)
}

func TestSessionImprovingRunCompletes(t *testing.T) {
	t0 := time.Now()
	backend := &scriptedBackend{
		reports: []Progress{
			{SolutionCount: 1, BestObjective: 100, BestBound: 50, Timestamp: t0},
			{SolutionCount: 2, BestObjective: 100, BestBound: 80, Timestamp: t0.Add(10 * time.Second)},
			{SolutionCount: 3, BestObjective: 100, BestBound: 99, Timestamp: t0.Add(20 * time.Second)},
		},
		solution: &Solution{Status: StatusOptimal, Values: []float64{1}, Objective: 100, BestBound: 100, SolutionCount: 3},
	}
	sess, err := NewSession(SessionConfig{
		Backend: backend,
		Policy:  &stall.Policy{GapThreshold: 1e-4, MaxStallDuration: 15 * time.Second},
	})
	require.NoError(t, err)

	res, err := sess.Run(context.Background(), smallModel(t), Options{})
	require.NoError(t, err)
	assert.False(t, res.Stalled)
	assert.Equal(t, StatusOptimal, res.Solution.Status)
	assert.InDelta(t, 0.01, res.FinalGap, 1e-9)
}

func TestSessionSkipsInvalidSnapshots(t *testing.T) {
	t0 := time.Now()
	backend := &scriptedBackend{
		reports: []Progress{
			{SolutionCount: -1, Timestamp: t0},
			{SolutionCount: 1, BestObjective: math.NaN(), BestBound: 1, Timestamp: t0},
			{SolutionCount: 1, BestObjective: 100, BestBound: 100, Timestamp: t0.Add(time.Second)},
		},
		solution: &Solution{Status: StatusOptimal, Values: []float64{1}, Objective: 100, BestBound: 100, SolutionCount: 1},
	}
	sess, err := NewSession(SessionConfig{
		Backend: backend,
		Policy:  &stall.Policy{GapThreshold: 1e-4, MaxStallDuration: 15 * time.Second},
	})
	require.NoError(t, err)

	res, err := sess.Run(context.Background(), smallModel(t), Options{})
	require.NoError(t, err)
	assert.False(t, res.Stalled)
	assert.Equal(t, 3, res.Snapshots)
	assert.InDelta(t, 0.0, res.FinalGap, 1e-12)
}

func TestSessionPropagatesBackendError(t *testing.T) {
	backend := &scriptedBackend{err: errors.New("license expired")}
	sess, err := NewSession(SessionConfig{Backend: backend})
	require.NoError(t, err)

	_, err = sess.Run(context.Background(), smallModel(t), Options{})
	require.Error(t, err)
	var solveErr *Error
	assert.ErrorAs(t, err, &solveErr)
}

func TestSessionRejectsInvalidModel(t *testing.T) {
	m := model.New("broken", model.Minimize)
	v := m.AddVariable("x")
	require.NoError(t, m.AddLe("r", []*model.Variable{v}, []float64{1}, 1))
	m.Columns()[0].Lower = 5
	m.Columns()[0].Upper = 1

	sess, err := NewSession(SessionConfig{Backend: &scriptedBackend{solution: &Solution{}}})
	require.NoError(t, err)
	_, err = sess.Run(context.Background(), m, Options{})
	assert.Error(t, err)
}
