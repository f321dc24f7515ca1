package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/evostrat/internal/fit"
	"github.com/cwbudde/evostrat/internal/opt"
	"github.com/cwbudde/evostrat/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	fnName         string
	dim            int
	startPoint     []float64
	initialRadius  float64
	growthFactor   float64
	shrinkFactor   float64
	epsilon        float64
	maxIters       int
	seed           int64
	maximize       bool
	stallPatience  int
	stallThreshold float64
	traceDir       string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run single-shot optimization",
	Long:  `Runs a (1+1) evolutionary optimization of a benchmark function and prints the result.`,
	RunE:  runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&fnName, "fn", "sphere", "Cost function: sphere, rosenbrock, rastrigin, eggholder")
	runCmd.Flags().IntVar(&dim, "dim", 2, "Number of parameters")
	runCmd.Flags().Float64SliceVar(&startPoint, "start", nil, "Start point (defaults to the function's canonical start)")
	runCmd.Flags().Float64Var(&initialRadius, "radius", 1.0, "Initial search radius")
	runCmd.Flags().Float64Var(&growthFactor, "growth", opt.UseDefault, "Growth factor on acceptance (>1)")
	runCmd.Flags().Float64Var(&shrinkFactor, "shrink", opt.UseDefault, "Shrink factor on rejection (0..1)")
	runCmd.Flags().Float64Var(&epsilon, "epsilon", 1e-6, "Covariance norm floor for convergence")
	runCmd.Flags().IntVar(&maxIters, "iters", 10000, "Max iterations")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	runCmd.Flags().BoolVar(&maximize, "maximize", false, "Maximize instead of minimize")
	runCmd.Flags().IntVar(&stallPatience, "stall", 0, "Stop after N acceptances without significant progress (0 = disabled)")
	runCmd.Flags().Float64Var(&stallThreshold, "stall-threshold", 0, "Relative improvement below which an acceptance counts as stale")
	runCmd.Flags().StringVar(&traceDir, "trace", "", "Directory to write a per-iteration JSONL trace into")

	rootCmd.AddCommand(runCmd)
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg := fit.RunConfig{
		Function:       fnName,
		Dim:            dim,
		Start:          startPoint,
		InitialRadius:  initialRadius,
		GrowthFactor:   growthFactor,
		ShrinkFactor:   shrinkFactor,
		Epsilon:        epsilon,
		MaxIterations:  maxIters,
		Seed:           seed,
		Maximize:       maximize,
		StallPatience:  stallPatience,
		StallThreshold: stallThreshold,
	}

	var trace *store.TraceWriter
	var observer opt.Observer
	runID := uuid.New().String()

	if traceDir != "" {
		var err error
		trace, err = store.NewTraceWriter(traceDir, runID, false)
		if err != nil {
			return fmt.Errorf("failed to open trace: %w", err)
		}
		defer trace.Close()

		observer = func(p opt.Progress) {
			trace.Write(store.TraceEntry{
				Iteration:      p.Iteration,
				Cost:           p.Cost,
				CovarianceNorm: p.CovarianceNorm,
				Accepted:       p.Accepted,
				Timestamp:      time.Now(),
			})
		}
	}

	start := time.Now()
	result, err := fit.Run(cfg, observer)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	ips := float64(result.Iterations) / elapsed.Seconds()
	slog.Info("Optimization complete",
		"function", fnName,
		"elapsed", elapsed,
		"initial_cost", result.InitialCost,
		"final_cost", result.BestCost,
		"iterations", result.Iterations,
		"converged", result.Converged,
		"iters_per_second", fmt.Sprintf("%.0f", ips),
	)

	fmt.Printf("%s (%dD): cost %.6g -> %.6g in %d iterations (converged: %v)\n",
		fnName, cfg.Dim, result.InitialCost, result.BestCost, result.Iterations, result.Converged)
	fmt.Printf("best: %v\n", result.BestParams)
	if trace != nil {
		fmt.Printf("trace: %s\n", trace.Path())
	}

	return nil
}
