package opt

// CostFunction is the objective being optimized. The optimizer treats it as
// an opaque collaborator: it only needs the dimensionality of the parameter
// space, a starting point, and a way to score candidate positions.
//
// Evaluate returns an error when a candidate cannot be scored (e.g. out of
// the function's domain). The optimizer folds such trials into the rejection
// branch instead of aborting the run.
type CostFunction interface {
	// NumberOfParameters returns the dimensionality N of the search space.
	NumberOfParameters() int

	// InitialPosition returns the point the search starts from.
	// The returned slice is copied by the optimizer and never mutated.
	InitialPosition() []float64

	// Evaluate scores a candidate position.
	Evaluate(params []float64) (float64, error)
}

// NormalVariateSource produces one standard-normal sample per call.
// Implementations must be seedable externally for reproducible runs.
type NormalVariateSource interface {
	NormalVariate() float64
}

// Progress is a snapshot of the optimizer state after one trial, delivered
// to the observer at iteration boundaries.
type Progress struct {
	Iteration      int
	Cost           float64
	Position       []float64
	CovarianceNorm float64
	Accepted       bool
}

// Observer receives per-iteration progress from a running optimization.
// It is invoked synchronously on the thread executing StartOptimization.
type Observer func(Progress)
