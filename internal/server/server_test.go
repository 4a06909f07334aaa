package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbellec/optlab/internal/config"
	"github.com/mbellec/optlab/internal/logging"
	"github.com/mbellec/optlab/internal/model"
	"github.com/mbellec/optlab/internal/solve"
)

// testConfig creates a test configuration with default values
func testConfig(t *testing.T) *config.Config {
	cfg := &config.Config{
		Environment: "test",
	}

	cfg.HTTP.Port = 8080
	cfg.HTTP.ReadTimeout = 30 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.IdleTimeout = 120 * time.Second
	cfg.HTTP.ShutdownTimeout = 30 * time.Second

	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"
	cfg.Logging.Output = "stdout"

	cfg.Solver.WorkerCount = 2

	cfg.Stall.Enabled = true
	cfg.Stall.GapThreshold = 1e-4
	cfg.Stall.MaxDuration = 15 * time.Second

	return cfg
}

// testLogger creates a test logger
func testLogger(t *testing.T) *logging.Logger {
	logger, err := logging.NewLogger(&logging.Config{
		Level:  "error",
		Format: "json",
		Output: "stdout",
	})
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

// instantBackend returns a canned optimal solution for any model.
type instantBackend struct {
	objective float64
}

func (b *instantBackend) Name() string { return "instant" }

func (b *instantBackend) Solve(ctx context.Context, m *model.Model, opts solve.Options, progress solve.ProgressFunc) (*solve.Solution, error) {
	values := make([]float64, m.NumVariables())
	if progress != nil {
		progress(solve.Progress{SolutionCount: 1, BestObjective: b.objective, BestBound: b.objective})
	}
	return &solve.Solution{
		Status:        solve.StatusOptimal,
		Values:        values,
		Objective:     b.objective,
		BestBound:     b.objective,
		SolutionCount: 1,
	}, nil
}

// blockingBackend blocks until its context is cancelled.
type blockingBackend struct {
	started chan struct{}
}

func (b *blockingBackend) Name() string { return "blocking" }

func (b *blockingBackend) Solve(ctx context.Context, m *model.Model, opts solve.Options, progress solve.ProgressFunc) (*solve.Solution, error) {
	close(b.started)
	<-ctx.Done()
	return nil, ctx.Err()
}

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }

func (failingBackend) Solve(context.Context, *model.Model, solve.Options, solve.ProgressFunc) (*solve.Solution, error) {
	return nil, fmt.Errorf("license not found")
}

func newTestServer(t *testing.T, backend solve.Backend) (*Server, chi.Router) {
	t.Helper()
	srv := NewServer(testConfig(t), testLogger(t), backend, NewMetrics(prometheus.NewRegistry()))
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	t.Cleanup(func() { _ = srv.Close() })
	return srv, r
}

func postSolve(t *testing.T, r chi.Router, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/api/v1/solve", bytes.NewReader(raw))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func jobStatus(t *testing.T, r chi.Router, id string) map[string]interface{} {
	t.Helper()
	req := httptest.NewRequest("GET", "/api/v1/status/"+id, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]interface{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	return resp
}

// waitForTerminal polls until the job leaves pending/running.
func waitForTerminal(t *testing.T, r chi.Router, id string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp := jobStatus(t, r, id)
		switch resp["status"] {
		case StatusPending, StatusRunning:
			time.Sleep(5 * time.Millisecond)
		default:
			return resp
		}
	}
	t.Fatalf("job %s never reached a terminal state", id)
	return nil
}

func TestSolveKnapsackJob(t *testing.T) {
	_, r := newTestServer(t, &instantBackend{objective: 120})

	rr := postSolve(t, r, map[string]interface{}{
		"problem": "knapsack",
		"data": map[string]interface{}{
			"values":   []float64{10, 20},
			"weights":  []float64{1, 2},
			"capacity": 2,
		},
	})
	require.Equal(t, http.StatusAccepted, rr.Code)

	var accepted map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&accepted))
	require.NotEmpty(t, accepted["job_id"])
	assert.Equal(t, StatusPending, accepted["status"])

	resp := waitForTerminal(t, r, accepted["job_id"])
	assert.Equal(t, StatusCompleted, resp["status"])
	assert.Equal(t, "knapsack", resp["problem"])
	assert.Equal(t, 120.0, resp["objective"])
	assert.Contains(t, resp, "end_time")
}

func TestSolveRejectsUnknownProblem(t *testing.T) {
	_, r := newTestServer(t, &instantBackend{})

	rr := postSolve(t, r, map[string]interface{}{"problem": "sudoku"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = postSolve(t, r, map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSolveRejectsBadInstanceData(t *testing.T) {
	_, r := newTestServer(t, &instantBackend{})

	// Validation runs before the job is accepted.
	rr := postSolve(t, r, map[string]interface{}{
		"problem": "knapsack",
		"data": map[string]interface{}{
			"values":   []float64{1, 2},
			"weights":  []float64{1},
			"capacity": 5,
		},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Portfolio has no built-in instance.
	rr = postSolve(t, r, map[string]interface{}{"problem": "portfolio"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSolveRejectsBadStallPolicy(t *testing.T) {
	_, r := newTestServer(t, &instantBackend{})

	rr := postSolve(t, r, map[string]interface{}{
		"problem":           "knapsack",
		"gap_threshold":     -1.0,
		"max_stall_seconds": 10,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStatusUnknownJob(t *testing.T) {
	_, r := newTestServer(t, &instantBackend{})

	req := httptest.NewRequest("GET", "/api/v1/status/nope", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCancelRunningJob(t *testing.T) {
	backend := &blockingBackend{started: make(chan struct{})}
	_, r := newTestServer(t, backend)

	rr := postSolve(t, r, map[string]interface{}{"problem": "unitcommit"})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var accepted map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&accepted))
	id := accepted["job_id"]

	select {
	case <-backend.started:
	case <-time.After(5 * time.Second):
		t.Fatal("backend never started")
	}

	req := httptest.NewRequest("DELETE", "/api/v1/solve/"+id, nil)
	cancelRR := httptest.NewRecorder()
	r.ServeHTTP(cancelRR, req)
	require.Equal(t, http.StatusOK, cancelRR.Code)

	resp := waitForTerminal(t, r, id)
	assert.Equal(t, StatusCancelled, resp["status"])

	// A second cancel conflicts.
	again := httptest.NewRecorder()
	r.ServeHTTP(again, httptest.NewRequest("DELETE", "/api/v1/solve/"+id, nil))
	assert.Equal(t, http.StatusConflict, again.Code)
}

func TestWorkerLimitQueuesJobs(t *testing.T) {
	backend := &blockingBackend{started: make(chan struct{})}
	cfg := testConfig(t)
	cfg.Solver.WorkerCount = 1
	srv := NewServer(cfg, testLogger(t), backend, NewMetrics(prometheus.NewRegistry()))
	r := chi.NewRouter()
	srv.RegisterRoutes(r)
	t.Cleanup(func() { _ = srv.Close() })

	rr := postSolve(t, r, map[string]interface{}{"problem": "unitcommit"})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var first map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&first))

	select {
	case <-backend.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first job never started")
	}

	rr = postSolve(t, r, map[string]interface{}{"problem": "unitcommit"})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var second map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&second))

	// The only worker slot is taken, so the second job stays pending.
	for i := 0; i < 10; i++ {
		assert.Equal(t, StatusPending, jobStatus(t, r, second["job_id"])["status"])
		time.Sleep(5 * time.Millisecond)
	}

	// A queued job can still be cancelled.
	cancelRR := httptest.NewRecorder()
	r.ServeHTTP(cancelRR, httptest.NewRequest("DELETE", "/api/v1/solve/"+second["job_id"], nil))
	require.Equal(t, http.StatusOK, cancelRR.Code)
	assert.Equal(t, StatusCancelled, waitForTerminal(t, r, second["job_id"])["status"])

	cancelRR = httptest.NewRecorder()
	r.ServeHTTP(cancelRR, httptest.NewRequest("DELETE", "/api/v1/solve/"+first["job_id"], nil))
	require.Equal(t, http.StatusOK, cancelRR.Code)
	assert.Equal(t, StatusCancelled, waitForTerminal(t, r, first["job_id"])["status"])
}

func TestCancelUnknownJob(t *testing.T) {
	_, r := newTestServer(t, &instantBackend{})

	req := httptest.NewRequest("DELETE", "/api/v1/solve/nope", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFailedJobReportsError(t *testing.T) {
	_, r := newTestServer(t, failingBackend{})

	rr := postSolve(t, r, map[string]interface{}{"problem": "unitcommit"})
	require.Equal(t, http.StatusAccepted, rr.Code)
	var accepted map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&accepted))

	resp := waitForTerminal(t, r, accepted["job_id"])
	assert.Equal(t, StatusFailed, resp["status"])
	assert.Contains(t, resp["error"], "license not found")
}

func TestClose(t *testing.T) {
	srv := NewServer(testConfig(t), testLogger(t), &instantBackend{}, nil)
	assert.NoError(t, srv.Close())
}
