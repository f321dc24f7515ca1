package fit

import (
	"testing"

	"github.com/cwbudde/evostrat/internal/opt"
)

func TestStallDetectorFires(t *testing.T) {
	costFn, err := New("sphere", 2, []float64{5, 5})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	optimizer := opt.NewOnePlusOne(costFn)
	if err := optimizer.Initialize(1.0, opt.UseDefault, opt.UseDefault); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// An absurd threshold makes every acceptance "insignificant" so the
	// detector fires after exactly Patience acceptances.
	d := NewStallDetector(StallConfig{Enabled: true, Patience: 3, Threshold: 2.0}, optimizer)

	costs := []float64{100, 90, 80, 70, 60}
	for i, c := range costs {
		d.Observe(opt.Progress{Iteration: i + 1, Cost: c, Accepted: true})
	}

	if !d.Fired() {
		t.Fatal("detector did not fire after patience was exhausted")
	}

	// The optimizer saw the stop request: the next run ends at iteration 0.
	optimizer.SetNormalVariateGenerator(opt.NewNormalSource(1))
	optimizer.SetMaximumIteration(100)
	if err := optimizer.StartOptimization(); err != nil {
		t.Fatalf("StartOptimization failed: %v", err)
	}
	if optimizer.CurrentIteration() != 0 {
		t.Errorf("CurrentIteration = %d, want 0 after stall stop", optimizer.CurrentIteration())
	}
}

func TestStallDetectorResetsOnProgress(t *testing.T) {
	costFn, err := New("sphere", 2, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	optimizer := opt.NewOnePlusOne(costFn)

	d := NewStallDetector(StallConfig{Enabled: true, Patience: 2, Threshold: 0.01}, optimizer)

	d.Observe(opt.Progress{Iteration: 1, Cost: 100, Accepted: true})
	d.Observe(opt.Progress{Iteration: 2, Cost: 99.999, Accepted: true}) // stale 1
	d.Observe(opt.Progress{Iteration: 3, Cost: 50, Accepted: true})    // significant, resets
	if d.StaleCount() != 0 {
		t.Errorf("StaleCount = %d after significant improvement, want 0", d.StaleCount())
	}
	if d.Fired() {
		t.Error("detector fired despite significant progress")
	}

	d.Observe(opt.Progress{Iteration: 4, Cost: 49.999, Accepted: true})
	d.Observe(opt.Progress{Iteration: 5, Cost: 49.998, Accepted: true})
	if !d.Fired() {
		t.Error("detector did not fire after two stale acceptances")
	}
}

func TestStallDetectorAcceptsMoveOffZero(t *testing.T) {
	costFn, err := New("sphere", 2, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	optimizer := opt.NewOnePlusOne(costFn)

	d := NewStallDetector(StallConfig{Enabled: true, Patience: 1, Threshold: 0.01}, optimizer)

	// A cost of exactly zero leaves no relative scale to measure against;
	// the next accepted improvement must still count as progress.
	d.Observe(opt.Progress{Iteration: 1, Cost: 0, Accepted: true})
	d.Observe(opt.Progress{Iteration: 2, Cost: -5, Accepted: true})

	if d.StaleCount() != 0 {
		t.Errorf("StaleCount = %d after accepted move off zero, want 0", d.StaleCount())
	}
	if d.Fired() {
		t.Error("detector fired on an accepted move off an exact zero")
	}
}

func TestStallDetectorIgnoresRejections(t *testing.T) {
	costFn, err := New("sphere", 2, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	optimizer := opt.NewOnePlusOne(costFn)

	d := NewStallDetector(StallConfig{Enabled: true, Patience: 1, Threshold: 2.0}, optimizer)

	d.Observe(opt.Progress{Iteration: 1, Cost: 100, Accepted: true})
	for i := 0; i < 50; i++ {
		d.Observe(opt.Progress{Iteration: 2 + i, Cost: 100, Accepted: false})
	}
	if d.Fired() {
		t.Error("rejections must not count toward the stall patience")
	}

	disabled := NewStallDetector(DisabledStallConfig(), optimizer)
	for i := 0; i < 50; i++ {
		disabled.Observe(opt.Progress{Iteration: i, Cost: 1, Accepted: true})
	}
	if disabled.Fired() {
		t.Error("disabled detector must never fire")
	}
}
