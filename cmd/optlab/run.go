package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbellec/optlab/internal/model"
	"github.com/mbellec/optlab/internal/problems"
	"github.com/mbellec/optlab/internal/solve"
	"github.com/mbellec/optlab/internal/solve/highsbe"
	"github.com/mbellec/optlab/internal/solve/smooth"
	"github.com/mbellec/optlab/internal/stall"
)

var (
	dataPath     string
	stallAfter   time.Duration
	gapThreshold float64
	timeLimit    time.Duration
	noStall      bool
	verbose      bool
	seed         int64
)

var runCmd = &cobra.Command{
	Use:   "run <problem>",
	Short: "Solve one of the built-in problems",
	Long: `Solves a named problem: knapsack, portfolio, lotsizing, unitcommit,
robotarm or bucket. Instance data is read from --data where the problem
needs it; knapsack and unitcommit fall back to built-in instances.`,
	Args: cobra.ExactArgs(1),
	RunE: runProblem,
}

func init() {
	runCmd.Flags().StringVar(&dataPath, "data", "", "JSON instance file")
	runCmd.Flags().DurationVar(&stallAfter, "stall-after", 15*time.Second, "Terminate after the gap has not improved for this long")
	runCmd.Flags().Float64Var(&gapThreshold, "gap-threshold", 1e-4, "Minimum relative gap change that counts as improvement")
	runCmd.Flags().DurationVar(&timeLimit, "time-limit", 0, "Hard solver time limit (0 = none)")
	runCmd.Flags().BoolVar(&noStall, "no-stall", false, "Disable stall-based early termination")
	runCmd.Flags().BoolVar(&verbose, "verbose", false, "Show the solver's native log output")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Seed for generated instances")
	rootCmd.AddCommand(runCmd)
}

func runProblem(cmd *cobra.Command, args []string) error {
	switch args[0] {
	case "knapsack":
		d := problems.GenerateKnapsack(100, seed)
		if dataPath != "" {
			if err := loadJSON(dataPath, &d); err != nil {
				return err
			}
		}
		m, err := problems.BuildKnapsack(d)
		if err != nil {
			return err
		}
		return solveModel(m, func(sol *solve.Solution) (fmt.Stringer, error) {
			return problems.ReportKnapsack(d, sol)
		})

	case "portfolio":
		if dataPath == "" {
			return fmt.Errorf("portfolio needs --data")
		}
		d, err := problems.LoadPortfolio(dataPath)
		if err != nil {
			return err
		}
		m, err := problems.BuildPortfolio(d)
		if err != nil {
			return err
		}
		return solveModel(m, func(sol *solve.Solution) (fmt.Stringer, error) {
			return problems.ReportPortfolio(d, sol)
		})

	case "lotsizing":
		if dataPath == "" {
			return fmt.Errorf("lotsizing needs --data")
		}
		d, err := problems.LoadLotSizing(dataPath)
		if err != nil {
			return err
		}
		m, err := problems.BuildLotSizing(d)
		if err != nil {
			return err
		}
		return solveModel(m, func(sol *solve.Solution) (fmt.Stringer, error) {
			return problems.ReportLotSizing(d, sol)
		})

	case "unitcommit":
		d := problems.DefaultUnitCommitment()
		if dataPath != "" {
			if err := loadJSON(dataPath, &d); err != nil {
				return err
			}
		}
		m, err := problems.BuildUnitCommitment(d)
		if err != nil {
			return err
		}
		return solveModel(m, func(sol *solve.Solution) (fmt.Stringer, error) {
			return problems.ReportUnitCommitment(d, sol)
		})

	case "robotarm":
		d := problems.DefaultRobotArm()
		if dataPath != "" {
			if err := loadJSON(dataPath, &d); err != nil {
				return err
			}
		}
		prog, err := problems.BuildRobotArm(d)
		if err != nil {
			return err
		}
		return solveSmooth(prog, func(res *smooth.Result) (fmt.Stringer, error) {
			return problems.ReportRobotArm(d, res)
		})

	case "bucket":
		d := problems.DefaultBucket()
		if dataPath != "" {
			if err := loadJSON(dataPath, &d); err != nil {
				return err
			}
		}
		prog, err := problems.BuildBucket(d)
		if err != nil {
			return err
		}
		return solveSmooth(prog, func(res *smooth.Result) (fmt.Stringer, error) {
			return problems.ReportBucket(d, res)
		})
	}
	return fmt.Errorf("unknown problem %q", args[0])
}

func loadJSON(path string, v interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// solveModel runs a model through the external solver with the
// configured stall policy and prints the report.
func solveModel(m *model.Model, report func(*solve.Solution) (fmt.Stringer, error)) error {
	sess, err := solve.NewSession(solve.SessionConfig{
		Backend: highsbe.New(),
		Policy:  stallPolicy(),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	res, err := sess.Run(context.Background(), m, solve.Options{
		TimeLimit: timeLimit,
		Verbose:   verbose,
	})
	if err != nil {
		return err
	}
	if res.Stalled {
		fmt.Println("Search stalled; keeping the best solution found so far.")
	}
	if !res.Solution.HasSolution() {
		fmt.Printf("No solution: %s\n", res.Solution.Status)
		return nil
	}
	r, err := report(res.Solution)
	if err != nil {
		return err
	}
	fmt.Print(r.String())
	return nil
}

// solveSmooth runs a bounded smooth program and prints the report.
func solveSmooth(prog smooth.Program, report func(*smooth.Result) (fmt.Stringer, error)) error {
	opts := smooth.DefaultOptions()
	opts.Seed = seed
	res, err := smooth.Minimize(context.Background(), prog, opts)
	if err != nil {
		return err
	}
	if !res.Feasible {
		fmt.Printf("Best point violates constraints by %g.\n", res.MaxViolation)
	}
	r, err := report(res)
	if err != nil {
		return err
	}
	fmt.Print(r.String())
	return nil
}

func stallPolicy() *stall.Policy {
	if noStall {
		return nil
	}
	return &stall.Policy{
		GapThreshold:     gapThreshold,
		MaxStallDuration: stallAfter,
	}
}
