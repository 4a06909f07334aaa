package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/mbellec/optlab/internal/mps"
	"github.com/mbellec/optlab/internal/solve"
	"github.com/mbellec/optlab/internal/solve/highsbe"
	"github.com/mbellec/optlab/internal/solve/relax"
)

var withRelaxation bool

var solveMPSCmd = &cobra.Command{
	Use:   "solve-mps <file>",
	Short: "Solve an MPS file",
	Long: `Reads an MPS file (plain or bzip2-compressed) and solves it with the
external solver under the configured stall policy.`,
	Args: cobra.ExactArgs(1),
	RunE: runSolveMPS,
}

func init() {
	solveMPSCmd.Flags().DurationVar(&stallAfter, "stall-after", 15*time.Second, "Terminate after the gap has not improved for this long")
	solveMPSCmd.Flags().Float64Var(&gapThreshold, "gap-threshold", 1e-4, "Minimum relative gap change that counts as improvement")
	solveMPSCmd.Flags().DurationVar(&timeLimit, "time-limit", 0, "Hard solver time limit (0 = none)")
	solveMPSCmd.Flags().BoolVar(&noStall, "no-stall", false, "Disable stall-based early termination")
	solveMPSCmd.Flags().BoolVar(&verbose, "verbose", false, "Show the solver's native log output")
	solveMPSCmd.Flags().BoolVar(&withRelaxation, "relax", false, "Print the LP relaxation bound before solving")
	rootCmd.AddCommand(solveMPSCmd)
}

func runSolveMPS(cmd *cobra.Command, args []string) error {
	m, err := mps.ReadFile(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d variables, %d constraints\n", m.Name(), m.NumVariables(), m.NumConstraints())

	if withRelaxation {
		if r, err := relax.Bound(m); err != nil {
			fmt.Printf("LP relaxation unavailable: %v\n", err)
		} else {
			fmt.Printf("LP relaxation bound: %.6f\n", r.Bound)
		}
	}

	sess, err := solve.NewSession(solve.SessionConfig{
		Backend: highsbe.New(),
		Policy:  stallPolicy(),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	start := time.Now()
	res, err := sess.Run(context.Background(), m, solve.Options{
		TimeLimit: timeLimit,
		Verbose:   verbose,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Status: %s (%.2fs)\n", res.Solution.Status, time.Since(start).Seconds())
	if res.Stalled {
		fmt.Println("Search stalled; keeping the best solution found so far.")
	}
	if res.Solution.HasSolution() {
		fmt.Printf("Objective: %.6f\n", res.Solution.Objective)
		fmt.Printf("Best bound: %.6f\n", res.Solution.BestBound)
		if !math.IsInf(res.FinalGap, 0) {
			fmt.Printf("Gap: %.6f\n", res.FinalGap)
		}
	}
	return nil
}
