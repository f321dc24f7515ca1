package fit

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/evostrat/internal/opt"
)

// RunConfig describes one optimization run.
type RunConfig struct {
	Function      string    `json:"function"`
	Dim           int       `json:"dim"`
	Start         []float64 `json:"start,omitempty"`
	InitialRadius float64   `json:"initialRadius"`
	GrowthFactor  float64   `json:"growthFactor"`
	ShrinkFactor  float64   `json:"shrinkFactor"`
	Epsilon       float64   `json:"epsilon"`
	MaxIterations int       `json:"maxIterations"`
	Seed          int64     `json:"seed"`
	Maximize      bool      `json:"maximize"`

	// Stall detection (cooperative stop); disabled when StallPatience is 0.
	StallPatience  int     `json:"stallPatience,omitempty"`
	StallThreshold float64 `json:"stallThreshold,omitempty"`
}

// Validate fills defaults and rejects values the optimizer would refuse.
func (c *RunConfig) Validate() error {
	if c.Function == "" {
		c.Function = "sphere"
	}
	if c.Dim <= 0 {
		c.Dim = 2
	}
	if c.InitialRadius == 0 {
		c.InitialRadius = 1.0
	}
	if c.InitialRadius < 0 {
		return fmt.Errorf("initialRadius must be positive, got %v", c.InitialRadius)
	}
	if c.GrowthFactor == 0 {
		c.GrowthFactor = opt.UseDefault
	}
	if c.ShrinkFactor == 0 {
		c.ShrinkFactor = opt.UseDefault
	}
	if c.Epsilon == 0 {
		c.Epsilon = 1e-6
	}
	if c.Epsilon < 0 {
		return fmt.Errorf("epsilon must be positive, got %v", c.Epsilon)
	}
	if c.MaxIterations == 0 {
		c.MaxIterations = 10000
	}
	if c.MaxIterations < 0 {
		return fmt.Errorf("maxIterations must not be negative, got %d", c.MaxIterations)
	}
	if c.StallPatience > 0 && c.StallThreshold <= 0 {
		c.StallThreshold = DefaultStallConfig().Threshold
	}
	return nil
}

// Result holds the output of an optimization run.
type Result struct {
	BestParams  []float64
	BestCost    float64
	InitialCost float64
	Iterations  int

	// Converged is true when the run terminated below the iteration cap,
	// i.e. the covariance norm hit the epsilon floor or a stop was
	// requested, rather than the budget running out.
	Converged bool
}

// Runner owns one configured optimization. It exists so callers that need a
// live handle on the run, like the job server's stop endpoint, can reach the
// optimizer while it loops.
type Runner struct {
	cfg       RunConfig
	costFn    *Func
	optimizer *opt.OnePlusOne
	stall     *StallDetector
}

// NewRunner validates cfg and assembles the cost function, random source and
// optimizer for a run.
func NewRunner(cfg RunConfig) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}

	costFn, err := New(cfg.Function, cfg.Dim, cfg.Start)
	if err != nil {
		return nil, err
	}

	optimizer := opt.NewOnePlusOne(costFn)
	if err := optimizer.Initialize(cfg.InitialRadius, cfg.GrowthFactor, cfg.ShrinkFactor); err != nil {
		return nil, err
	}
	if err := optimizer.SetEpsilon(cfg.Epsilon); err != nil {
		return nil, err
	}
	optimizer.SetMaximumIteration(cfg.MaxIterations)
	optimizer.SetNormalVariateGenerator(opt.NewNormalSource(cfg.Seed))
	if cfg.Maximize {
		optimizer.MaximizeOn()
	}

	r := &Runner{cfg: cfg, costFn: costFn, optimizer: optimizer}
	if cfg.StallPatience > 0 {
		r.stall = NewStallDetector(StallConfig{
			Enabled:   true,
			Patience:  cfg.StallPatience,
			Threshold: cfg.StallThreshold,
		}, optimizer)
	}
	return r, nil
}

// Config returns the validated configuration of this run.
func (r *Runner) Config() RunConfig { return r.cfg }

// Stop requests cooperative termination. Safe to call from any goroutine.
func (r *Runner) Stop() { r.optimizer.StopOptimization() }

// Run executes the optimization. The observer, if not nil, receives
// per-iteration progress on the calling goroutine. Run blocks until a
// termination condition fires.
func (r *Runner) Run(observer opt.Observer) (*Result, error) {
	r.optimizer.SetObserver(func(p opt.Progress) {
		if r.stall != nil {
			r.stall.Observe(p)
		}
		if observer != nil {
			observer(p)
		}
	})

	initialCost, err := r.costFn.Evaluate(r.costFn.InitialPosition())
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate start point: %w", err)
	}

	slog.Info("Starting run",
		"function", r.cfg.Function,
		"dim", r.cfg.Dim,
		"initial_cost", initialCost,
		"max_iterations", r.cfg.MaxIterations,
		"seed", r.cfg.Seed,
	)

	if err := r.optimizer.StartOptimization(); err != nil {
		return nil, err
	}

	result := &Result{
		BestParams:  r.optimizer.CurrentPosition(),
		BestCost:    r.optimizer.CurrentCost(),
		InitialCost: initialCost,
		Iterations:  r.optimizer.CurrentIteration(),
		Converged:   r.optimizer.CurrentIteration() < r.cfg.MaxIterations,
	}

	slog.Info("Run complete",
		"function", r.cfg.Function,
		"initial_cost", result.InitialCost,
		"best_cost", result.BestCost,
		"iterations", result.Iterations,
		"converged", result.Converged,
	)

	return result, nil
}

// Run executes a single run described by cfg. It is shorthand for NewRunner
// followed by Runner.Run.
func Run(cfg RunConfig, observer opt.Observer) (*Result, error) {
	runner, err := NewRunner(cfg)
	if err != nil {
		return nil, err
	}
	return runner.Run(observer)
}
