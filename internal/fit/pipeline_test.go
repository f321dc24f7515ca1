package fit

import (
	"testing"

	"github.com/cwbudde/evostrat/internal/opt"
)

func TestRunSphere(t *testing.T) {
	cfg := RunConfig{
		Function:      "sphere",
		Dim:           2,
		Start:         []float64{10, 10},
		InitialRadius: 1.0,
		Epsilon:       1e-6,
		MaxIterations: 10000,
		Seed:          42,
	}

	var lastProgress opt.Progress
	result, err := Run(cfg, func(p opt.Progress) { lastProgress = p })
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.InitialCost != 200 {
		t.Errorf("InitialCost = %v, want 200", result.InitialCost)
	}
	if result.BestCost > 1e-3 {
		t.Errorf("BestCost = %v, expected near 0", result.BestCost)
	}
	if !result.Converged {
		t.Error("expected convergence before the iteration cap")
	}
	if result.Iterations >= cfg.MaxIterations {
		t.Errorf("Iterations = %d, expected below the cap", result.Iterations)
	}
	if lastProgress.Iteration != result.Iterations {
		t.Errorf("observer saw iteration %d, result reports %d", lastProgress.Iteration, result.Iterations)
	}
	if len(result.BestParams) != 2 {
		t.Errorf("BestParams has %d entries, want 2", len(result.BestParams))
	}
}

func TestRunDeterministic(t *testing.T) {
	cfg := RunConfig{
		Function:      "rastrigin",
		Dim:           2,
		InitialRadius: 1.0,
		MaxIterations: 500,
		Seed:          7,
	}

	r1, err := Run(cfg, nil)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	r2, err := Run(cfg, nil)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if r1.BestCost != r2.BestCost || r1.Iterations != r2.Iterations {
		t.Errorf("runs with the same seed differ: (%v, %d) vs (%v, %d)",
			r1.BestCost, r1.Iterations, r2.BestCost, r2.Iterations)
	}
	for i := range r1.BestParams {
		if r1.BestParams[i] != r2.BestParams[i] {
			t.Errorf("BestParams[%d] differs: %v vs %v", i, r1.BestParams[i], r2.BestParams[i])
		}
	}
}

func TestRunConfigValidation(t *testing.T) {
	cfg := RunConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed on zero config: %v", err)
	}
	if cfg.Function != "sphere" || cfg.Dim != 2 || cfg.InitialRadius != 1.0 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Epsilon != 1e-6 || cfg.MaxIterations != 10000 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}

	bad := RunConfig{InitialRadius: -1}
	if err := bad.Validate(); err == nil {
		t.Error("expected an error for a negative radius")
	}

	if _, err := Run(RunConfig{Function: "nope"}, nil); err == nil {
		t.Error("expected an error for an unknown function")
	}
}

func TestRunEggholderAbsorbsDomainErrors(t *testing.T) {
	// Start near the domain edge so trials regularly step outside and get
	// folded into the rejection branch.
	cfg := RunConfig{
		Function:      "eggholder",
		Start:         []float64{500, 400},
		InitialRadius: 20.0,
		MaxIterations: 2000,
		Seed:          3,
	}

	result, err := Run(cfg, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.BestCost > result.InitialCost {
		t.Errorf("BestCost %v worse than InitialCost %v", result.BestCost, result.InitialCost)
	}
}
