package solve

import (
	"context"
	"time"

	"github.com/mbellec/optlab/internal/model"
	"github.com/mbellec/optlab/internal/stall"
)

// Logger is the logging surface the session needs. It matches
// internal/logging.Logger so callers can pass one directly.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...map[string]interface{}) {}
func (nopLogger) Info(string, ...map[string]interface{})  {}
func (nopLogger) Warn(string, ...map[string]interface{})  {}

// SessionConfig configures a Session.
type SessionConfig struct {
	Backend Backend
	// Policy enables stall-based early termination. Nil disables it.
	Policy *stall.Policy
	Logger Logger
	// Clock stamps snapshots the backend delivered without a
	// timestamp. Defaults to time.Now.
	Clock func() time.Time
}

// Session runs one model through a backend while watching its progress
// stream. When the stall monitor decides the search has stalled, the
// session cancels the backend's context; the backend stops at its next
// safe checkpoint. A Session is good for any number of sequential runs;
// each run gets a fresh monitor.
type Session struct {
	backend Backend
	policy  *stall.Policy
	logger  Logger
	clock   func() time.Time
}

// NewSession creates a session for the given backend.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Backend == nil {
		return nil, NewError("backend is required").WithComponent("session")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	if cfg.Policy != nil {
		// Fail configuration errors up front, not mid-run.
		if _, err := stall.NewMonitor(*cfg.Policy); err != nil {
			return nil, WrapError(err, "invalid stall policy").WithComponent("session")
		}
	}
	return &Session{backend: cfg.Backend, policy: cfg.Policy, logger: logger, clock: clock}, nil
}

// RunResult is the outcome of one session run.
type RunResult struct {
	Solution *Solution
	// Stalled is true when the run was terminated by the stall policy.
	Stalled bool
	// Snapshots counts the progress reports observed.
	Snapshots int
	// FinalGap is the monitor's best gap at the end of the run, +Inf
	// when no feasible solution was seen or no policy was set.
	FinalGap float64
}

// Run solves m on the session's backend.
func (s *Session) Run(ctx context.Context, m *model.Model, opts Options) (*RunResult, error) {
	if err := m.Validate(); err != nil {
		return nil, WrapError(err, "model rejected").WithComponent("session").WithOperation("Run")
	}

	var monitor *stall.Monitor
	if s.policy != nil {
		monitor, _ = stall.NewMonitor(*s.policy) // validated in NewSession
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := &RunResult{FinalGap: infGap()}

	// The backend guarantees serialized delivery, so the handler state
	// needs no locking.
	progress := func(p Progress) {
		result.Snapshots++
		if monitor == nil {
			return
		}
		snap := stall.Snapshot{
			SolutionCount: p.SolutionCount,
			BestObjective: p.BestObjective,
			BestBound:     p.BestBound,
			Timestamp:     p.Timestamp,
		}
		if snap.Timestamp.IsZero() {
			snap.Timestamp = s.clock()
		}
		decision, err := monitor.Evaluate(snap)
		if err != nil {
			// Rejected snapshots are skipped, not fatal.
			s.logger.Warn("skipping progress snapshot", map[string]interface{}{
				"model": m.Name(),
				"error": err.Error(),
			})
			return
		}
		if decision == stall.Terminate && !result.Stalled {
			result.Stalled = true
			s.logger.Info("terminating solve: gap stalled", map[string]interface{}{
				"model":     m.Name(),
				"gap":       monitor.LastGap(),
				"threshold": s.policy.GapThreshold,
				"stalled":   s.policy.MaxStallDuration.String(),
			})
			cancel()
		}
	}

	s.logger.Debug("starting solve", map[string]interface{}{
		"model":   m.Name(),
		"backend": s.backend.Name(),
		"vars":    m.NumVariables(),
		"rows":    m.NumConstraints(),
	})

	sol, err := s.backend.Solve(runCtx, m, opts, progress)
	if err != nil {
		// A cancellation we asked for is not a failure.
		if result.Stalled && runCtx.Err() != nil {
			result.Solution = &Solution{Status: StatusInterrupted}
			return result, nil
		}
		return nil, WrapError(err, "backend solve failed").WithComponent(s.backend.Name()).WithOperation("Run")
	}

	result.Solution = sol
	if result.Stalled && sol.Status == StatusUnknown {
		sol.Status = StatusInterrupted
	}
	if monitor != nil {
		result.FinalGap = monitor.LastGap()
	}

	s.logger.Info("solve finished", map[string]interface{}{
		"model":     m.Name(),
		"status":    sol.Status.String(),
		"objective": sol.Objective,
		"stalled":   result.Stalled,
		"snapshots": result.Snapshots,
	})
	return result, nil
}

func infGap() float64 {
	return stall.Gap(0, 0)
}
