package kernel

import (
	"context"
	"math"
	"testing"

	"github.com/cwbudde/markedpoint/internal/cfg"
	"github.com/cwbudde/markedpoint/internal/geom"
	"github.com/cwbudde/markedpoint/internal/mark"
	"github.com/cwbudde/markedpoint/internal/rng"
	"gonum.org/v1/gonum/spatial/r3"
)

func testPrior() Prior {
	return Prior{
		Kind:      mark.KindEllipse,
		Domain:    geom.Box{Min: r3.Vec{Z: -0.5}, Max: r3.Vec{X: 100, Y: 50, Z: 0.5}},
		MinRadius: 2,
		MaxRadius: 5,
		Regions:   mark.DefaultRegionMap(),
	}
}

func populated(t *testing.T, n int) *cfg.Configuration {
	t.Helper()
	marks := make([]mark.Mark, n)
	for i := range marks {
		marks[i] = mark.NewEllipse(0, r3.Vec{X: float64(10 + 10*i), Y: 25}, 3, 3, 0, mark.DefaultRegionMap())
	}
	c, err := cfg.FromMarks(context.Background(), marks, cfg.Options{})
	if err != nil {
		t.Fatalf("FromMarks failed: %v", err)
	}
	return c
}

func TestPriorValidate(t *testing.T) {
	if err := testPrior().Validate(); err != nil {
		t.Errorf("Valid prior rejected: %v", err)
	}
	p := testPrior()
	p.MinRadius = 0
	if err := p.Validate(); err == nil {
		t.Error("Zero minimum radius should be rejected")
	}
	p = testPrior()
	p.Kind = mark.KindPointCloud
	if err := p.Validate(); err == nil {
		t.Error("Point cloud prior should be rejected")
	}
}

func TestPriorSampleInDomain(t *testing.T) {
	p := testPrior()
	r := rng.New(1)
	for i := 0; i < 200; i++ {
		m := p.Sample(r)
		if !p.InDomain(m) {
			t.Fatalf("Sample outside domain: %+v", m.Record())
		}
		a, b := m.(mark.Ellipse).Axes()
		if a < 2 || a > 5 || b < 2 || b > 5 {
			t.Fatalf("Axes out of range: %f %f", a, b)
		}
	}
}

func TestBirth(t *testing.T) {
	c := populated(t, 3)
	k := Birth{Prior: testPrior()}

	prop, ok := k.Propose(c, rng.New(2))
	if !ok {
		t.Fatal("Birth declined")
	}
	if len(prop.Delta.Added) != 1 || len(prop.Delta.Removed) != 0 {
		t.Fatalf("Unexpected delta %+v", prop.Delta)
	}
	if prop.Delta.Added[0].ID() != c.NextID() {
		t.Errorf("Birth should use the next id")
	}
	if math.Abs(prop.LogForward+math.Log(5000)) > 1e-9 {
		t.Errorf("Expected forward density -log 5000, got %f", prop.LogForward)
	}
	if math.Abs(prop.LogReverse+math.Log(4)) > 1e-9 {
		t.Errorf("Expected reverse density -log 4, got %f", prop.LogReverse)
	}
	if c.Len() != 3 || c.Generation() != 0 {
		t.Errorf("Proposing modified the configuration")
	}
}

func TestDeathDeclinesOnEmpty(t *testing.T) {
	c := cfg.New(cfg.Options{})
	if _, ok := (Death{Prior: testPrior()}).Propose(c, rng.New(1)); ok {
		t.Error("Death on empty configuration should decline")
	}

	c = populated(t, 4)
	prop, ok := (Death{Prior: testPrior()}).Propose(c, rng.New(1))
	if !ok {
		t.Fatal("Death declined")
	}
	if math.Abs(prop.LogForward+math.Log(4)) > 1e-9 {
		t.Errorf("Expected forward density -log 4, got %f", prop.LogForward)
	}
	if _, ok := c.Get(prop.Delta.Removed[0]); !ok {
		t.Errorf("Death removes a mark that does not exist")
	}
}

func TestMoveKeepsIDAndSlice(t *testing.T) {
	c := populated(t, 2)
	k := Move{MaxShift: 2, Domain: testPrior().Domain}
	r := rng.New(3)

	for i := 0; i < 50; i++ {
		prop, ok := k.Propose(c, r)
		if !ok {
			continue
		}
		old, _ := c.Get(prop.Delta.Removed[0])
		moved := prop.Delta.Added[0]
		if moved.ID() != old.ID() {
			t.Fatalf("Move changed the id")
		}
		d := r3.Sub(moved.Center(), old.Center())
		if math.Abs(d.X) > 2 || math.Abs(d.Y) > 2 || d.Z != 0 {
			t.Fatalf("Shift out of range: %v", d)
		}
		if prop.LogHastings() != 0 {
			t.Fatalf("Move should be symmetric")
		}
	}
}

func TestMoveDeclinesOutsideDomain(t *testing.T) {
	m := mark.NewEllipse(0, r3.Vec{X: 0.01, Y: 0.01}, 1, 1, 0, mark.RegionMap{})
	c, err := cfg.FromMarks(context.Background(), []mark.Mark{m}, cfg.Options{})
	if err != nil {
		t.Fatalf("FromMarks failed: %v", err)
	}
	k := Move{MaxShift: 50, Domain: testPrior().Domain}
	r := rng.New(4)
	declined := 0
	for i := 0; i < 100; i++ {
		if prop, ok := k.Propose(c, r); !ok {
			declined++
		} else if !k.Domain.Contains(prop.Delta.Added[0].Center()) {
			t.Fatalf("Accepted a move outside the domain")
		}
	}
	if declined == 0 {
		t.Error("Moves from the domain corner should sometimes decline")
	}
}

func TestDilate(t *testing.T) {
	c := populated(t, 1)
	prop, ok := (Dilate{MaxLogScale: 0.2}).Propose(c, rng.New(5))
	if !ok {
		t.Fatal("Dilate declined")
	}
	a, _ := prop.Delta.Added[0].(mark.Ellipse).Axes()
	if a < 3*math.Exp(-0.2) || a > 3*math.Exp(0.2) {
		t.Errorf("Scale out of range: %f", a)
	}
	if prop.Delta.Added[0].ID() != prop.Delta.Removed[0] {
		t.Errorf("Dilate changed the id")
	}
}

func TestDilateJacobian(t *testing.T) {
	c := populated(t, 1)
	r := rng.New(11)
	for i := 0; i < 200; i++ {
		prop, ok := (Dilate{MaxLogScale: 0.3}).Propose(c, r)
		if !ok {
			t.Fatal("Dilate declined")
		}
		a, _ := prop.Delta.Added[0].(mark.Ellipse).Axes()
		want := 2 * math.Log(a/3)
		if math.Abs(prop.LogHastings()-want) > 1e-9 {
			t.Fatalf("Expected log Hastings %f for axis %f, got %f", want, a, prop.LogHastings())
		}
	}
}

func TestDilateStaysInPriorRange(t *testing.T) {
	marks := []mark.Mark{mark.NewEllipse(0, r3.Vec{X: 50, Y: 25}, 4.9, 2.1, 0, mark.DefaultRegionMap())}
	c, err := cfg.FromMarks(context.Background(), marks, cfg.Options{})
	if err != nil {
		t.Fatalf("FromMarks failed: %v", err)
	}
	prior := testPrior()
	k := Dilate{MaxLogScale: 0.5, MinRadius: prior.MinRadius, MaxRadius: prior.MaxRadius}
	r := rng.New(12)
	for i := 0; i < 500; i++ {
		prop, ok := k.Propose(c, r)
		if !ok {
			continue
		}
		a, b := prop.Delta.Added[0].(mark.Ellipse).Axes()
		for _, v := range []float64{a, b} {
			if v < prior.MinRadius || v > prior.MaxRadius {
				t.Fatalf("Dilated radius %f outside [%f, %f]", v, prior.MinRadius, prior.MaxRadius)
			}
		}
	}
}

func TestExchange(t *testing.T) {
	c := populated(t, 2)
	prop, ok := (Exchange{Prior: testPrior(), Jitter: 1}).Propose(c, rng.New(6))
	if !ok {
		t.Fatal("Exchange declined")
	}
	old, _ := c.Get(prop.Delta.Removed[0])
	repl := prop.Delta.Added[0]
	if repl.ID() != c.NextID() {
		t.Errorf("Exchange should use a fresh id")
	}
	d := r3.Sub(repl.Center(), old.Center())
	if math.Abs(d.X) > 1 || math.Abs(d.Y) > 1 {
		t.Errorf("Jitter out of range: %v", d)
	}
	if err := c.Apply(prop.Delta); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Exchange should preserve the size")
	}
}
