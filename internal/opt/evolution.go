package opt

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
)

// Default configuration applied by Initialize when the caller passes the -1
// sentinel for a factor. The shrink default is tied to the growth factor so
// that one success roughly cancels four failures.
const (
	DefaultGrowthFactor     = 1.05
	defaultEpsilon          = 1e-6
	defaultMaximumIteration = 100
)

// UseDefault is the sentinel accepted by Initialize for the growth and
// shrink factors.
const UseDefault = -1

// ErrNotInitialized is returned by StartOptimization when Initialize has not
// been called successfully.
var ErrNotInitialized = errors.New("optimizer not initialized")

// ErrNoGenerator is returned by StartOptimization when no normal variate
// generator has been installed.
var ErrNoGenerator = errors.New("normal variate generator not set")

// ConfigError reports an invalid configuration value. The optimizer state is
// never mutated when a ConfigError is returned.
type ConfigError struct {
	Param  string
	Reason string
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Param + " " + e.Reason
}

func (e *ConfigError) Is(target error) bool {
	_, ok := target.(*ConfigError)
	return ok
}

// OnePlusOne is a (1+1) evolutionary-strategy optimizer. It keeps a single
// parent position and generates one offspring per iteration by perturbing
// the parent with a correlated Gaussian step shaped by an adaptive
// covariance matrix. The offspring replaces the parent only when it scores
// strictly better; the covariance grows along accepted directions and
// shrinks after rejections, so long streaks of failures contract the search
// radius geometrically toward the epsilon floor.
//
// The search loop is single-threaded. The only field touched from other
// goroutines is the stop flag, which StopOptimization sets atomically and
// the loop observes at iteration boundaries.
type OnePlusOne struct {
	costFn    CostFunction
	generator NormalVariateSource
	observer  Observer

	initialRadius    float64
	growthFactor     float64
	shrinkFactor     float64
	epsilon          float64
	maximumIteration int
	maximize         bool
	initialized      bool

	position         []float64
	covariance       *mat.Dense
	currentCost      float64
	currentIteration int
	stop             atomic.Bool
}

// NewOnePlusOne creates an optimizer for the given cost function. Initialize
// and SetNormalVariateGenerator must be called before StartOptimization.
func NewOnePlusOne(costFn CostFunction) *OnePlusOne {
	return &OnePlusOne{
		costFn:           costFn,
		growthFactor:     DefaultGrowthFactor,
		shrinkFactor:     math.Pow(DefaultGrowthFactor, -0.25),
		epsilon:          defaultEpsilon,
		maximumIteration: defaultMaximumIteration,
	}
}

// Initialize configures the search radius and adaptation factors and resets
// the run state, including any pending stop request. Pass UseDefault (-1)
// for growth or shrink to select the algorithm defaults (growth 1.05,
// shrink growth^-0.25).
//
// Configuration is atomic: on error nothing is changed and the optimizer
// stays unusable until Initialize succeeds.
func (o *OnePlusOne) Initialize(initialRadius, growth, shrink float64) error {
	if initialRadius <= 0 {
		return &ConfigError{Param: "initialRadius", Reason: "must be positive"}
	}
	if growth != UseDefault && growth <= 1 {
		return &ConfigError{Param: "growthFactor", Reason: "must be greater than 1"}
	}
	if shrink != UseDefault && (shrink <= 0 || shrink >= 1) {
		return &ConfigError{Param: "shrinkFactor", Reason: "must be in (0,1)"}
	}

	if growth == UseDefault {
		growth = DefaultGrowthFactor
	}
	if shrink == UseDefault {
		shrink = math.Pow(growth, -0.25)
	}

	o.initialRadius = initialRadius
	o.growthFactor = growth
	o.shrinkFactor = shrink
	o.initialized = true

	// Fresh run state per the configuration lifecycle.
	o.position = nil
	o.covariance = nil
	o.currentCost = 0
	o.currentIteration = 0
	o.stop.Store(false)

	return nil
}

// SetNormalVariateGenerator installs the random source. Absence is detected
// at StartOptimization, not here.
func (o *OnePlusOne) SetNormalVariateGenerator(g NormalVariateSource) {
	o.generator = g
}

// SetObserver installs a per-iteration progress callback. A nil observer
// disables progress reporting.
func (o *OnePlusOne) SetObserver(fn Observer) {
	o.observer = fn
}

// MaximizeOn makes higher costs preferred. The default is to minimize.
func (o *OnePlusOne) MaximizeOn() {
	o.maximize = true
}

// SetEpsilon sets the minimal acceptable Frobenius norm of the covariance
// matrix. The run terminates once the norm falls to or below this value.
func (o *OnePlusOne) SetEpsilon(v float64) error {
	if v <= 0 {
		return &ConfigError{Param: "epsilon", Reason: "must be positive"}
	}
	o.epsilon = v
	return nil
}

// SetMaximumIteration sets the hard iteration ceiling.
func (o *OnePlusOne) SetMaximumIteration(n int) {
	o.maximumIteration = n
}

// StopOptimization requests cooperative termination. It is safe to call from
// any goroutine and at any time, including before StartOptimization; the
// running loop honors it at the next iteration boundary. Idempotent.
func (o *OnePlusOne) StopOptimization() {
	o.stop.Store(true)
}

// StartOptimization runs the adaptive search loop until one of the three
// termination conditions holds: the iteration ceiling is reached, the
// covariance norm collapses to epsilon, or a stop was requested. It occupies
// the calling goroutine for the whole run.
//
// Setup mistakes (missing Initialize, missing generator, unusable seed
// position) are returned before any trial runs. Per-trial evaluation
// failures are folded into the rejection branch and never abort the run.
func (o *OnePlusOne) StartOptimization() error {
	if !o.initialized {
		return ErrNotInitialized
	}
	if o.generator == nil {
		return ErrNoGenerator
	}

	n := o.costFn.NumberOfParameters()
	if n <= 0 {
		return fmt.Errorf("cost function reports %d parameters", n)
	}

	parent := append([]float64(nil), o.costFn.InitialPosition()...)
	if len(parent) != n {
		return fmt.Errorf("initial position has %d parameters, want %d", len(parent), n)
	}

	seedCost, err := o.costFn.Evaluate(parent)
	if err != nil {
		return fmt.Errorf("failed to evaluate initial position: %w", err)
	}

	// A starts as an isotropic ball of the configured radius and is reshaped
	// by the rank-one updates below.
	a := identityScaled(n, o.initialRadius)

	o.position = parent
	o.currentCost = seedCost
	o.currentIteration = 0

	slog.Debug("Starting optimization",
		"dim", n,
		"initial_cost", seedCost,
		"initial_radius", o.initialRadius,
		"growth", o.growthFactor,
		"shrink", o.shrinkFactor,
		"epsilon", o.epsilon,
		"max_iterations", o.maximumIteration,
		"maximize", o.maximize,
	)

	f := mat.NewVecDense(n, nil)
	delta := mat.NewVecDense(n, nil)
	child := make([]float64, n)

	for {
		// Termination check before every trial, including the first. The
		// norm is recomputed fresh each pass.
		if o.stop.Load() {
			slog.Debug("Optimization stopped by request", "iteration", o.currentIteration)
			break
		}
		if o.currentIteration >= o.maximumIteration {
			slog.Debug("Optimization hit iteration ceiling", "iteration", o.currentIteration)
			break
		}
		norm := mat.Norm(a, 2)
		if norm <= o.epsilon {
			slog.Debug("Optimization converged",
				"iteration", o.currentIteration,
				"covariance_norm", norm,
				"epsilon", o.epsilon,
			)
			break
		}

		// Correlated Gaussian step: transform independent unit normals
		// through the covariance factor.
		for i := 0; i < n; i++ {
			f.SetVec(i, o.generator.NormalVariate())
		}
		delta.MulVec(a, f)
		for i := 0; i < n; i++ {
			child[i] = o.position[i] + delta.AtVec(i)
		}

		childCost, evalErr := o.costFn.Evaluate(child)
		accepted := evalErr == nil && o.better(childCost, o.currentCost)

		adjust := o.shrinkFactor
		if accepted {
			adjust = o.growthFactor
			copy(o.position, child)
			o.currentCost = childCost
		}

		// Rank-one update: rescale the sampled direction by adjust, so the
		// distribution grows along productive directions and contracts
		// otherwise. A f becomes adjust * delta.
		if fsq := mat.Dot(f, f); fsq > 0 {
			a.RankOne(a, (adjust-1)/fsq, delta, f)
		}

		o.currentIteration++

		if o.observer != nil {
			o.observer(Progress{
				Iteration:      o.currentIteration,
				Cost:           o.currentCost,
				Position:       append([]float64(nil), o.position...),
				CovarianceNorm: mat.Norm(a, 2),
				Accepted:       accepted,
			})
		}
	}

	o.covariance = a
	return nil
}

func (o *OnePlusOne) better(candidate, incumbent float64) bool {
	if o.maximize {
		return candidate > incumbent
	}
	return candidate < incumbent
}

// CurrentCost returns the cost of the last accepted position.
func (o *OnePlusOne) CurrentCost() float64 { return o.currentCost }

// CurrentIteration returns the number of trials performed by the last run.
func (o *OnePlusOne) CurrentIteration() int { return o.currentIteration }

// CurrentPosition returns a copy of the last accepted position, or nil
// before the first run.
func (o *OnePlusOne) CurrentPosition() []float64 {
	if o.position == nil {
		return nil
	}
	return append([]float64(nil), o.position...)
}

// CovarianceNorm returns the Frobenius norm of the covariance matrix at the
// end of the last run, or 0 before the first run.
func (o *OnePlusOne) CovarianceNorm() float64 {
	if o.covariance == nil {
		return 0
	}
	return mat.Norm(o.covariance, 2)
}

// GrowthFactor returns the configured search radius growth factor.
func (o *OnePlusOne) GrowthFactor() float64 { return o.growthFactor }

// ShrinkFactor returns the configured search radius shrink factor.
func (o *OnePlusOne) ShrinkFactor() float64 { return o.shrinkFactor }

// InitialRadius returns the configured initial search radius.
func (o *OnePlusOne) InitialRadius() float64 { return o.initialRadius }

// Epsilon returns the minimal acceptable covariance norm.
func (o *OnePlusOne) Epsilon() float64 { return o.epsilon }

// MaximumIteration returns the iteration ceiling.
func (o *OnePlusOne) MaximumIteration() int { return o.maximumIteration }

func identityScaled(n int, s float64) *mat.Dense {
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, s)
	}
	return a
}
