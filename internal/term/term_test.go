package term

import (
	"sync"
	"testing"
	"time"
)

func TestMaxIterations(t *testing.T) {
	c := MaxIterations(3)
	for k := 0; k < 3; k++ {
		if !c.Continue(k, 0, 0) {
			t.Errorf("Should continue at %d", k)
		}
	}
	if c.Continue(3, 0, 0) {
		t.Error("Should stop at 3")
	}
}

func TestMaxSize(t *testing.T) {
	if !MaxSize(5).Continue(0, 0, 4) || MaxSize(5).Continue(0, 0, 5) {
		t.Error("MaxSize should stop once the size is reached")
	}
}

func TestDeadline(t *testing.T) {
	now := time.Unix(1000, 0)
	d := &Deadline{At: now.Add(time.Second), now: func() time.Time { return now }}
	if !d.Continue(0, 0, 0) {
		t.Error("Should continue before the deadline")
	}
	now = now.Add(2 * time.Second)
	if d.Continue(0, 0, 0) {
		t.Error("Should stop after the deadline")
	}
	if NewDeadline(-time.Second).Continue(0, 0, 0) {
		t.Error("Past deadline should stop immediately")
	}
}

func TestFlagConcurrentSet(t *testing.T) {
	var f Flag
	if !f.Continue(0, 0, 0) {
		t.Fatal("Unset flag should continue")
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Set()
		}()
	}
	wg.Wait()
	if f.Continue(0, 0, 0) || !f.IsSet() {
		t.Error("Set flag should stop")
	}
}

func TestCombinatorsEvaluateEveryCondition(t *testing.T) {
	calls := 0
	counting := Func(func(int, float64, int) bool {
		calls++
		return true
	})

	if All(MaxIterations(0), counting).Continue(0, 0, 0) {
		t.Error("All should stop when any condition stops")
	}
	if calls != 1 {
		t.Errorf("All should evaluate every condition, counted %d", calls)
	}

	if !Any(MaxIterations(0), counting).Continue(0, 0, 0) {
		t.Error("Any should continue while one condition continues")
	}
	if Any(MaxIterations(0), MaxSize(0)).Continue(0, 0, 0) {
		t.Error("Any should stop when every condition stops")
	}
	if calls != 2 {
		t.Errorf("Any should evaluate every condition, counted %d", calls)
	}
}

func TestPlateau(t *testing.T) {
	p := NewPlateau(3, 0.01, 1)

	scores := []float64{100, 90, 80, 79.99, 79.98, 79.97}
	want := []bool{true, true, true, true, true, false}
	for i, s := range scores {
		if got := p.Continue(i, s, 0); got != want[i] {
			t.Errorf("Step %d (score %f): expected %v, got %v", i, s, want[i], got)
		}
	}
	if p.Best() != 79.97 {
		t.Errorf("Expected best 79.97, got %f", p.Best())
	}
}

func TestPlateauImprovementResetsStaleCount(t *testing.T) {
	p := NewPlateau(2, 0.01, 1)
	p.Continue(0, 10, 0)
	p.Continue(1, 10, 0)
	if p.StaleCount() != 1 {
		t.Fatalf("Expected stale count 1, got %d", p.StaleCount())
	}
	p.Continue(2, 5, 0)
	if p.StaleCount() != 0 {
		t.Errorf("Improvement should reset the stale count, got %d", p.StaleCount())
	}
}

func TestPlateauSmoothsNoise(t *testing.T) {
	p := NewPlateau(4, 0.001, 4)
	// Alternating noise around a falling trend keeps making progress.
	for k := 0; k < 40; k++ {
		score := 100 - float64(k) + float64(k%2)*1.5
		if !p.Continue(k, score, 0) {
			t.Fatalf("Stopped on a falling trend at %d", k)
		}
	}
}
