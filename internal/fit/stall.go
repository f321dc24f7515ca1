package fit

import (
	"log/slog"
	"math"

	"github.com/cwbudde/evostrat/internal/opt"
)

// StallConfig defines parameters for detecting a stalled search.
type StallConfig struct {
	// Enabled controls whether stall detection is active.
	Enabled bool

	// Patience is the number of accepted improvements with no significant
	// progress before the run is stopped.
	Patience int

	// Threshold is the minimum relative improvement required to count as
	// progress. Example: 0.001 = 0.1% improvement required.
	Threshold float64
}

// DefaultStallConfig returns sensible defaults for stall detection.
func DefaultStallConfig() StallConfig {
	return StallConfig{
		Enabled:   true,
		Patience:  100,
		Threshold: 0.001,
	}
}

// DisabledStallConfig returns a config with stall detection switched off.
func DisabledStallConfig() StallConfig {
	return StallConfig{Enabled: false}
}

// StallDetector watches accepted costs and requests a cooperative stop once
// the search has gone Patience acceptances without significant relative
// improvement. It never terminates the loop itself: it only calls
// StopOptimization, which the optimizer honors at its next iteration
// boundary, so the core termination policy stays untouched.
//
// Feed it from the optimizer's observer on the run thread.
type StallDetector struct {
	config          StallConfig
	optimizer       *opt.OnePlusOne
	bestCost        float64
	lastSignificant float64
	staleCount      int
	fired           bool
	seen            bool
}

// NewStallDetector creates a stall detector bound to the given optimizer.
func NewStallDetector(config StallConfig, optimizer *opt.OnePlusOne) *StallDetector {
	return &StallDetector{
		config:          config,
		optimizer:       optimizer,
		bestCost:        math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Observe records one accepted-cost observation. Rejected trials are
// ignored: the covariance shrink already drives those toward the epsilon
// floor.
func (d *StallDetector) Observe(p opt.Progress) {
	if !d.config.Enabled || d.fired || !p.Accepted {
		return
	}

	if p.Cost < d.bestCost {
		d.bestCost = p.Cost
	}

	if !d.seen {
		d.seen = true
		d.lastSignificant = p.Cost
		return
	}

	// An accepted trial is strictly better by definition, so only the
	// magnitude of the change matters (works for both directions). A move
	// off an exact zero has no relative scale; any accepted change counts.
	denom := math.Abs(d.lastSignificant)
	if denom == 0 || math.Abs(d.lastSignificant-p.Cost)/denom >= d.config.Threshold {
		d.lastSignificant = p.Cost
		d.staleCount = 0
		return
	}

	d.staleCount++
	if d.staleCount >= d.config.Patience {
		d.fired = true
		slog.Info("Search stalled - requesting stop",
			"stale_count", d.staleCount,
			"patience", d.config.Patience,
			"best_cost", d.bestCost,
		)
		d.optimizer.StopOptimization()
	}
}

// Fired reports whether the detector has requested a stop.
func (d *StallDetector) Fired() bool { return d.fired }

// StaleCount returns the current number of acceptances without significant
// improvement.
func (d *StallDetector) StaleCount() int { return d.staleCount }
