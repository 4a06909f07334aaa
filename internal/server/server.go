// Package server exposes the optimization exercises over HTTP: jobs are
// started asynchronously, polled for status, and cancelled on request.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbellec/optlab/internal/config"
	apperrors "github.com/mbellec/optlab/internal/errors"
	"github.com/mbellec/optlab/internal/model"
	"github.com/mbellec/optlab/internal/problems"
	"github.com/mbellec/optlab/internal/solve"
	"github.com/mbellec/optlab/internal/solve/smooth"
	"github.com/mbellec/optlab/internal/stall"
)

// Logger defines the logging interface used by the server.
// This allows us to be flexible with our logging implementation.
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
}

// Job states.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusStalled   = "stalled"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// JobState tracks one solve job. The state is guarded by the server's
// job mutex and must not be mutated outside it.
type JobState struct {
	ID          string
	Problem     string
	Status      string
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time

	Objective *float64
	FinalGap  *float64
	Report    string
	Error     string

	cancel context.CancelFunc
}

// Server manages solve jobs and provides endpoints to start, monitor,
// and cancel them.
type Server struct {
	cfg     *config.Config
	logger  Logger
	backend solve.Backend
	metrics *Metrics

	jobs   map[string]*JobState
	jobsMu sync.RWMutex

	// slots bounds the number of concurrently running jobs. Jobs beyond
	// the limit stay pending until a slot frees up.
	slots chan struct{}
}

// NewServer creates a new server instance. The backend runs every
// model-based job; metrics may be nil in tests. Solver.WorkerCount
// bounds concurrent jobs; zero or negative means unbounded.
func NewServer(cfg *config.Config, logger Logger, backend solve.Backend, metrics *Metrics) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		backend: backend,
		metrics: metrics,
		jobs:    make(map[string]*JobState),
	}
	if cfg.Solver.WorkerCount > 0 {
		s.slots = make(chan struct{}, cfg.Solver.WorkerCount)
	}
	return s
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/solve", s.handleSolve)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/solve/{id}", s.handleCancel)
	})
}

// solveRequest is the POST /api/v1/solve body. Data carries a problem
// instance in the problem's own JSON schema; when omitted, problems
// with built-in instances use those.
type solveRequest struct {
	Problem          string          `json:"problem"`
	Data             json.RawMessage `json:"data,omitempty"`
	TimeLimitSeconds float64         `json:"time_limit_seconds,omitempty"`
	GapTarget        float64         `json:"gap_target,omitempty"`
	GapThreshold     float64         `json:"gap_threshold,omitempty"`
	MaxStallSeconds  float64         `json:"max_stall_seconds,omitempty"`
	DisableStall     bool            `json:"disable_stall,omitempty"`
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req solveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	run, err := s.buildRunner(req)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := fmt.Sprintf("job_%d", time.Now().UnixNano())
	ctx, cancel := context.WithCancel(context.Background())
	state := &JobState{
		ID:          id,
		Problem:     req.Problem,
		Status:      StatusPending,
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
		cancel:      cancel,
	}

	s.jobsMu.Lock()
	s.jobs[id] = state
	s.jobsMu.Unlock()

	s.logger.Info("solve job accepted", map[string]interface{}{
		"job_id":  id,
		"problem": req.Problem,
	})
	go s.runJob(ctx, state, run)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"job_id": id,
		"status": StatusPending,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.jobsMu.RLock()
	state, ok := s.jobs[id]
	if !ok {
		s.jobsMu.RUnlock()
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	resp := map[string]interface{}{
		"job_id":      state.ID,
		"problem":     state.Problem,
		"status":      state.Status,
		"start_time":  state.StartTime.Format(time.RFC3339),
		"last_update": state.LastUpdated.Format(time.RFC3339),
	}
	if state.EndTime != nil {
		resp["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if state.Objective != nil {
		resp["objective"] = *state.Objective
	}
	if state.FinalGap != nil {
		resp["gap"] = *state.FinalGap
	}
	if state.Report != "" {
		resp["report"] = state.Report
	}
	if state.Error != "" {
		resp["error"] = state.Error
	}
	s.jobsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.jobsMu.Lock()
	state, ok := s.jobs[id]
	if !ok {
		s.jobsMu.Unlock()
		s.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	switch state.Status {
	case StatusCompleted, StatusStalled, StatusFailed, StatusCancelled:
		status := state.Status
		s.jobsMu.Unlock()
		s.respondError(w, http.StatusConflict, fmt.Sprintf("cannot cancel job with status %s", status))
		return
	}
	state.Status = StatusCancelled
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now
	state.cancel()
	s.jobsMu.Unlock()

	s.logger.Info("solve job cancelled", map[string]interface{}{"job_id": id})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": StatusCancelled})
}

func (s *Server) respondError(w http.ResponseWriter, code int, msg string) {
	s.logger.Error("request error", map[string]interface{}{
		"status":  code,
		"message": msg,
	})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// jobResult is what a runner hands back on success.
type jobResult struct {
	stalled   bool
	objective float64
	hasObj    bool
	gap       float64
	hasGap    bool
	report    string
}

type runner func(ctx context.Context) (*jobResult, error)

// buildRunner resolves the problem name and instance data into a
// closure executing the whole solve. Building happens before the job is
// accepted so schema errors surface synchronously.
func (s *Server) buildRunner(req solveRequest) (runner, error) {
	switch req.Problem {
	case "knapsack", "portfolio", "lotsizing", "unitcommit":
		m, report, err := buildModelProblem(req.Problem, req.Data)
		if err != nil {
			return nil, err
		}
		policy, err := s.stallPolicy(req)
		if err != nil {
			return nil, err
		}
		opts := solve.Options{
			TimeLimit:         time.Duration(req.TimeLimitSeconds * float64(time.Second)),
			RelativeGapTarget: req.GapTarget,
		}
		if opts.TimeLimit == 0 {
			opts.TimeLimit = s.cfg.Solver.TimeLimit
		}
		opts.Verbose = s.cfg.Solver.Verbose
		return func(ctx context.Context) (*jobResult, error) {
			sess, err := solve.NewSession(solve.SessionConfig{
				Backend: s.backend,
				Policy:  policy,
				Logger:  s.logger,
			})
			if err != nil {
				return nil, err
			}
			res, err := sess.Run(ctx, m, opts)
			if err != nil {
				return nil, err
			}
			out := &jobResult{stalled: res.Stalled}
			// An infinite gap means no incumbent was ever seen; leave it
			// out of the JSON status.
			if !math.IsInf(res.FinalGap, 0) && !math.IsNaN(res.FinalGap) {
				out.gap, out.hasGap = res.FinalGap, true
			}
			if res.Solution.HasSolution() {
				out.objective, out.hasObj = res.Solution.Objective, true
				if r, err := report(res.Solution); err == nil {
					out.report = r
				}
			}
			return out, nil
		}, nil

	case "robotarm", "bucket":
		prog, report, err := buildSmoothProblem(req.Problem, req.Data)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context) (*jobResult, error) {
			res, err := smooth.Minimize(ctx, prog, smooth.DefaultOptions())
			if err != nil {
				return nil, err
			}
			out := &jobResult{objective: res.Objective, hasObj: true}
			if r, err := report(res); err == nil {
				out.report = r
			}
			return out, nil
		}, nil

	case "":
		return nil, fmt.Errorf("problem is required")
	default:
		return nil, fmt.Errorf("unknown problem %q", req.Problem)
	}
}

func (s *Server) stallPolicy(req solveRequest) (*stall.Policy, error) {
	if req.DisableStall {
		return nil, nil
	}
	p := stall.Policy{
		GapThreshold:     s.cfg.Stall.GapThreshold,
		MaxStallDuration: s.cfg.Stall.MaxDuration,
	}
	if !s.cfg.Stall.Enabled && req.GapThreshold == 0 && req.MaxStallSeconds == 0 {
		return nil, nil
	}
	if req.GapThreshold != 0 {
		p.GapThreshold = req.GapThreshold
	}
	if req.MaxStallSeconds != 0 {
		p.MaxStallDuration = time.Duration(req.MaxStallSeconds * float64(time.Second))
	}
	if p.GapThreshold <= 0 || p.MaxStallDuration <= 0 {
		return nil, fmt.Errorf("stall policy needs a positive gap threshold and stall duration")
	}
	return &p, nil
}

func buildModelProblem(problem string, data json.RawMessage) (*model.Model, func(*solve.Solution) (string, error), error) {
	switch problem {
	case "knapsack":
		d := problems.GenerateKnapsack(100, 42)
		if data != nil {
			d = problems.KnapsackData{}
			if err := json.Unmarshal(data, &d); err != nil {
				return nil, nil, fmt.Errorf("knapsack data: %w", err)
			}
		}
		m, err := problems.BuildKnapsack(d)
		if err != nil {
			return nil, nil, err
		}
		return m, func(sol *solve.Solution) (string, error) {
			r, err := problems.ReportKnapsack(d, sol)
			if err != nil {
				return "", err
			}
			return r.String(), nil
		}, nil

	case "portfolio":
		if data == nil {
			return nil, nil, fmt.Errorf("portfolio needs instance data")
		}
		var d problems.PortfolioData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, nil, fmt.Errorf("portfolio data: %w", err)
		}
		m, err := problems.BuildPortfolio(d)
		if err != nil {
			return nil, nil, err
		}
		return m, func(sol *solve.Solution) (string, error) {
			r, err := problems.ReportPortfolio(d, sol)
			if err != nil {
				return "", err
			}
			return r.String(), nil
		}, nil

	case "lotsizing":
		if data == nil {
			return nil, nil, fmt.Errorf("lotsizing needs instance data")
		}
		var d problems.LotSizingData
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, nil, fmt.Errorf("lotsizing data: %w", err)
		}
		m, err := problems.BuildLotSizing(d)
		if err != nil {
			return nil, nil, err
		}
		return m, func(sol *solve.Solution) (string, error) {
			r, err := problems.ReportLotSizing(d, sol)
			if err != nil {
				return "", err
			}
			return r.String(), nil
		}, nil

	case "unitcommit":
		d := problems.DefaultUnitCommitment()
		if data != nil {
			d = problems.UnitCommitmentData{}
			if err := json.Unmarshal(data, &d); err != nil {
				return nil, nil, fmt.Errorf("unitcommit data: %w", err)
			}
		}
		m, err := problems.BuildUnitCommitment(d)
		if err != nil {
			return nil, nil, err
		}
		return m, func(sol *solve.Solution) (string, error) {
			r, err := problems.ReportUnitCommitment(d, sol)
			if err != nil {
				return "", err
			}
			return r.String(), nil
		}, nil
	}
	return nil, nil, fmt.Errorf("unknown model problem %q", problem)
}

func buildSmoothProblem(problem string, data json.RawMessage) (smooth.Program, func(*smooth.Result) (string, error), error) {
	switch problem {
	case "robotarm":
		d := problems.DefaultRobotArm()
		if data != nil {
			if err := json.Unmarshal(data, &d); err != nil {
				return smooth.Program{}, nil, fmt.Errorf("robotarm data: %w", err)
			}
		}
		prog, err := problems.BuildRobotArm(d)
		if err != nil {
			return smooth.Program{}, nil, err
		}
		return prog, func(res *smooth.Result) (string, error) {
			r, err := problems.ReportRobotArm(d, res)
			if err != nil {
				return "", err
			}
			return r.String(), nil
		}, nil

	case "bucket":
		d := problems.DefaultBucket()
		if data != nil {
			if err := json.Unmarshal(data, &d); err != nil {
				return smooth.Program{}, nil, fmt.Errorf("bucket data: %w", err)
			}
		}
		prog, err := problems.BuildBucket(d)
		if err != nil {
			return smooth.Program{}, nil, err
		}
		return prog, func(res *smooth.Result) (string, error) {
			r, err := problems.ReportBucket(d, res)
			if err != nil {
				return "", err
			}
			return r.String(), nil
		}, nil
	}
	return smooth.Program{}, nil, fmt.Errorf("unknown smooth problem %q", problem)
}

// runJob executes a solve in a goroutine and records the outcome.
func (s *Server) runJob(ctx context.Context, state *JobState, run runner) {
	if s.slots != nil {
		select {
		case s.slots <- struct{}{}:
			defer func() { <-s.slots }()
		case <-ctx.Done():
			// Cancelled while queued; the cancel handler already closed
			// the job out.
			s.jobsMu.Lock()
			s.observe(state, time.Since(state.StartTime))
			s.jobsMu.Unlock()
			return
		}
	}

	s.jobsMu.Lock()
	if state.Status == StatusCancelled {
		s.jobsMu.Unlock()
		return
	}
	state.Status = StatusRunning
	state.LastUpdated = time.Now()
	s.jobsMu.Unlock()

	if s.metrics != nil {
		s.metrics.RunningJobs.Inc()
		defer s.metrics.RunningJobs.Dec()
	}

	result, err := run(ctx)

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	if state.Status == StatusCancelled {
		// The cancel handler already closed the job out.
		s.observe(state, time.Since(state.StartTime))
		return
	}

	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	if err != nil {
		if ctx.Err() != nil {
			state.Status = StatusCancelled
		} else {
			state.Status = StatusFailed
			state.Error = err.Error()
			werr := apperrors.Wrap(err, "solve job failed").
				WithComponent("server").
				WithOperation(state.Problem)
			s.logger.Error("solve job failed", map[string]interface{}{
				"job_id":  state.ID,
				"problem": state.Problem,
				"error":   werr.Error(),
				"stack":   strings.Join(werr.StackTrace(), "\n"),
			})
		}
		s.observe(state, now.Sub(state.StartTime))
		return
	}

	if result.stalled {
		state.Status = StatusStalled
		if s.metrics != nil {
			s.metrics.StallsTotal.Inc()
		}
	} else {
		state.Status = StatusCompleted
	}
	if result.hasObj {
		obj := result.objective
		state.Objective = &obj
	}
	if result.hasGap {
		gap := result.gap
		state.FinalGap = &gap
	}
	state.Report = result.report
	s.observe(state, now.Sub(state.StartTime))

	s.logger.Info("solve job finished", map[string]interface{}{
		"job_id":  state.ID,
		"problem": state.Problem,
		"status":  state.Status,
	})
}

// observe records job metrics. Callers hold the job mutex.
func (s *Server) observe(state *JobState, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.SolvesTotal.With(prometheus.Labels{
		"problem": state.Problem,
		"status":  state.Status,
	}).Inc()
	s.metrics.SolveDuration.With(prometheus.Labels{
		"problem": state.Problem,
	}).Observe(elapsed.Seconds())
}

// Close cancels all running jobs.
func (s *Server) Close() error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	for _, job := range s.jobs {
		if job.cancel != nil {
			job.cancel()
		}
	}
	return nil
}
