package kernel

import (
	"math"
	"testing"

	"github.com/cwbudde/markedpoint/internal/cfg"
	"github.com/cwbudde/markedpoint/internal/rng"
)

// stub is a kernel with a fixed name that either always proposes or always declines.
type stub struct {
	name    string
	decline bool
	calls   int
}

func (s *stub) Name() string { return s.name }

func (s *stub) Propose(*cfg.Configuration, rng.Source) (Proposal, bool) {
	s.calls++
	if s.decline {
		return Proposal{}, false
	}
	return Proposal{Kernel: s.name}, true
}

func TestNewProposerRejectsBadWeights(t *testing.T) {
	tests := []struct {
		name string
		list []Weighted
	}{
		{"empty", nil},
		{"zero", []Weighted{{Kernel: &stub{name: "a"}, Weight: 0}}},
		{"negative", []Weighted{{Kernel: &stub{name: "a"}, Weight: 1}, {Kernel: &stub{name: "b"}, Weight: -1}}},
		{"nil kernel", []Weighted{{Weight: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProposer(tt.list, 0); err == nil {
				t.Error("Expected construction error")
			}
		})
	}
}

func TestSelectMatchesLinearScan(t *testing.T) {
	weights := []float64{1, 3, 0.5, 2.5}
	list := make([]Weighted, len(weights))
	for i, w := range weights {
		list[i] = Weighted{Kernel: &stub{name: string(rune('a' + i))}, Weight: w}
	}
	p, err := NewProposer(list, 0)
	if err != nil {
		t.Fatalf("NewProposer failed: %v", err)
	}

	linear := func(u float64) Kernel {
		x := u * 7
		acc := 0.0
		for _, w := range list {
			acc += w.Weight
			if x < acc {
				return w.Kernel
			}
		}
		return list[len(list)-1].Kernel
	}

	for i := 0; i < 1000; i++ {
		u := float64(i) / 1000
		if got, want := p.Select(u), linear(u); got != want {
			t.Fatalf("u=%f: binary search chose %s, linear scan %s", u, got.Name(), want.Name())
		}
	}
	if math.Abs(p.Probability(1)-3.0/7) > 1e-12 {
		t.Errorf("Unexpected probability %f", p.Probability(1))
	}
}

func TestSelectFrequencies(t *testing.T) {
	a, b := &stub{name: "a"}, &stub{name: "b"}
	p, err := NewProposer([]Weighted{{Kernel: a, Weight: 1}, {Kernel: b, Weight: 3}}, 0)
	if err != nil {
		t.Fatalf("NewProposer failed: %v", err)
	}
	r := rng.New(9)
	for i := 0; i < 20000; i++ {
		p.Next(nil, r)
	}
	frac := float64(b.calls) / 20000
	if math.Abs(frac-0.75) > 0.02 {
		t.Errorf("Expected b about 75%% of the time, got %f", frac)
	}
}

func TestNextRetriesThenGivesUp(t *testing.T) {
	no := &stub{name: "no", decline: true}
	p, err := NewProposer([]Weighted{{Kernel: no, Weight: 1}}, 5)
	if err != nil {
		t.Fatalf("NewProposer failed: %v", err)
	}
	if _, ok := p.Next(nil, rng.New(1)); ok {
		t.Error("Expected no proposal")
	}
	if no.calls != 5 {
		t.Errorf("Expected 5 attempts, got %d", no.calls)
	}
	if p.Declined()["no"] != 5 {
		t.Errorf("Expected 5 recorded declines, got %d", p.Declined()["no"])
	}

	yes := &stub{name: "yes"}
	p, err = NewProposer([]Weighted{{Kernel: no, Weight: 1}, {Kernel: yes, Weight: 1}}, 0)
	if err != nil {
		t.Fatalf("NewProposer failed: %v", err)
	}
	prop, ok := p.Next(nil, rng.New(1))
	if !ok || prop.Kernel != "yes" {
		t.Errorf("Expected a proposal from the accepting kernel, got %+v %v", prop, ok)
	}
}

func TestNextAddsSelectionProbabilities(t *testing.T) {
	birth, death, move := &stub{name: NameBirth}, &stub{name: NameDeath}, &stub{name: NameMove}
	p, err := NewProposer([]Weighted{
		{Kernel: birth, Weight: 6},
		{Kernel: death, Weight: 2},
		{Kernel: move, Weight: 2},
	}, 0)
	if err != nil {
		t.Fatalf("NewProposer failed: %v", err)
	}

	want := map[string]float64{
		NameBirth: math.Log(0.2 / 0.6),
		NameDeath: math.Log(0.6 / 0.2),
		NameMove:  0,
	}
	seen := make(map[string]bool)
	r := rng.New(4)
	for i := 0; i < 200; i++ {
		prop, ok := p.Next(nil, r)
		if !ok {
			t.Fatal("Expected a proposal")
		}
		seen[prop.Kernel] = true
		if got := prop.LogHastings(); math.Abs(got-want[prop.Kernel]) > 1e-12 {
			t.Errorf("%s: expected log Hastings %f, got %f", prop.Kernel, want[prop.Kernel], got)
		}
	}
	if len(seen) != 3 {
		t.Errorf("Expected all kernels to be drawn, saw %v", seen)
	}
}

func TestNextWithoutReverseKernel(t *testing.T) {
	p, err := NewProposer([]Weighted{{Kernel: &stub{name: NameBirth}, Weight: 1}}, 0)
	if err != nil {
		t.Fatalf("NewProposer failed: %v", err)
	}
	prop, ok := p.Next(nil, rng.New(1))
	if !ok {
		t.Fatal("Expected a proposal")
	}
	if !math.IsInf(prop.LogHastings(), -1) {
		t.Errorf("Expected -Inf log Hastings without a death kernel, got %f", prop.LogHastings())
	}
	if p.LogSelection(NameBirth) != 0 {
		t.Errorf("Expected log selection 0 for the only kernel, got %f", p.LogSelection(NameBirth))
	}
}
