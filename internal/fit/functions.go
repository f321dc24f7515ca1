package fit

import (
	"fmt"
	"math"
)

// OutOfDomainError is returned by Evaluate when a candidate lies outside a
// bounded function's domain. The optimizer folds such trials into its
// rejection branch.
type OutOfDomainError struct {
	Index int
	Value float64
}

func (e *OutOfDomainError) Error() string {
	return fmt.Sprintf("parameter %d out of domain: %v", e.Index, e.Value)
}

func (e *OutOfDomainError) Is(target error) bool {
	_, ok := target.(*OutOfDomainError)
	return ok
}

// Func is a named benchmark objective. It satisfies the optimizer's cost
// function contract: dimensionality, a start point, and candidate scoring.
type Func struct {
	name  string
	start []float64
	lower []float64 // nil means unbounded below
	upper []float64 // nil means unbounded above
	eval  func([]float64) float64
}

// Name returns the registry name of the function.
func (f *Func) Name() string { return f.name }

// NumberOfParameters returns the dimensionality of the search space.
func (f *Func) NumberOfParameters() int { return len(f.start) }

// InitialPosition returns a copy of the configured start point.
func (f *Func) InitialPosition() []float64 {
	return append([]float64(nil), f.start...)
}

// Evaluate scores a candidate position. Candidates outside the function's
// domain return an OutOfDomainError.
func (f *Func) Evaluate(params []float64) (float64, error) {
	for i, v := range params {
		if f.lower != nil && v < f.lower[i] {
			return 0, &OutOfDomainError{Index: i, Value: v}
		}
		if f.upper != nil && v > f.upper[i] {
			return 0, &OutOfDomainError{Index: i, Value: v}
		}
	}
	return f.eval(params), nil
}

// New builds a benchmark function by registry name. Supported names:
// sphere, rosenbrock, rastrigin, eggholder. A nil start selects the
// function's canonical (deliberately off-optimum) start point. Eggholder is
// fixed to two dimensions and bounded to [-512, 512] per coordinate.
func New(name string, dim int, start []float64) (*Func, error) {
	if name == "eggholder" {
		if dim != 0 && dim != 2 {
			return nil, fmt.Errorf("eggholder is defined on 2 dimensions, got %d", dim)
		}
		dim = 2
	}
	if dim <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dim)
	}
	if start != nil && len(start) != dim {
		return nil, fmt.Errorf("start point has %d parameters, want %d", len(start), dim)
	}

	switch name {
	case "sphere":
		return &Func{
			name:  name,
			start: defaultStart(start, dim, 10),
			eval:  sphere,
		}, nil

	case "rosenbrock":
		if dim < 2 {
			return nil, fmt.Errorf("rosenbrock needs at least 2 dimensions, got %d", dim)
		}
		return &Func{
			name:  name,
			start: defaultStart(start, dim, -1.5),
			eval:  rosenbrock,
		}, nil

	case "rastrigin":
		return &Func{
			name:  name,
			start: defaultStart(start, dim, 4.5),
			eval:  rastrigin,
		}, nil

	case "eggholder":
		f := &Func{
			name:  name,
			start: defaultStart(start, dim, 0),
			lower: []float64{-512, -512},
			upper: []float64{512, 512},
			eval:  eggholder,
		}
		for i, v := range f.start {
			if v < -512 || v > 512 {
				return nil, fmt.Errorf("eggholder start[%d] = %v outside [-512, 512]", i, v)
			}
		}
		return f, nil

	default:
		return nil, fmt.Errorf("unknown function: %s", name)
	}
}

// Names lists the available benchmark function names.
func Names() []string {
	return []string{"sphere", "rosenbrock", "rastrigin", "eggholder"}
}

func defaultStart(start []float64, dim int, fill float64) []float64 {
	if start != nil {
		return append([]float64(nil), start...)
	}
	s := make([]float64, dim)
	for i := range s {
		s[i] = fill
	}
	return s
}

// sphere is the quadratic bowl, minimum 0 at the origin.
func sphere(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum
}

// rosenbrock has its minimum 0 at (1, ..., 1) inside a narrow curved valley.
func rosenbrock(x []float64) float64 {
	var sum float64
	for i := 0; i < len(x)-1; i++ {
		a := x[i+1] - x[i]*x[i]
		b := 1 - x[i]
		sum += 100*a*a + b*b
	}
	return sum
}

// rastrigin is highly multimodal with minimum 0 at the origin.
func rastrigin(x []float64) float64 {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum
}

// eggholder is the classic 2D benchmark with global minimum about -959.64
// at (512, 404.23). Only defined on [-512, 512]^2.
func eggholder(x []float64) float64 {
	a := x[1] + 47
	return -a*math.Sin(math.Sqrt(math.Abs(x[0]/2+a))) -
		x[0]*math.Sin(math.Sqrt(math.Abs(x[0]-a)))
}
