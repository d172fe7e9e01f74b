package kernel

import (
	"fmt"
	"math"
	"sort"

	"github.com/cwbudde/markedpoint/internal/cfg"
	"github.com/cwbudde/markedpoint/internal/rng"
)

// DefaultMaxAttempts bounds the retries of Proposer.Next.
const DefaultMaxAttempts = 16

// Weighted pairs a kernel with its selection weight.
type Weighted struct {
	Kernel Kernel
	Weight float64
}

// Proposer selects kernels with probability proportional to their weights
// and retries when the selected kernel declines.
type Proposer struct {
	kernels     []Kernel
	cumulative  []float64
	total       float64
	maxAttempts int
	declined    map[string]int
	logSelect   map[string]float64
}

// reverseOf names the kernel that undoes a proposal of the named kernel.
// Kernels not listed are their own reverse.
var reverseOf = map[string]string{
	NameBirth: NameDeath,
	NameDeath: NameBirth,
}

func reverseName(name string) string {
	if r, ok := reverseOf[name]; ok {
		return r
	}
	return name
}

// NewProposer builds a proposer. Weights need not sum to one but must be
// positive. maxAttempts <= 0 selects DefaultMaxAttempts.
func NewProposer(list []Weighted, maxAttempts int) (*Proposer, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("proposer needs at least one kernel")
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	p := &Proposer{
		kernels:     make([]Kernel, len(list)),
		cumulative:  make([]float64, len(list)),
		maxAttempts: maxAttempts,
		declined:    make(map[string]int),
		logSelect:   make(map[string]float64),
	}
	for i, w := range list {
		if w.Kernel == nil {
			return nil, fmt.Errorf("kernel %d is nil", i)
		}
		if !(w.Weight > 0) {
			return nil, fmt.Errorf("kernel %s: weight must be positive, got %g", w.Kernel.Name(), w.Weight)
		}
		p.total += w.Weight
		p.kernels[i] = w.Kernel
		p.cumulative[i] = p.total
	}
	byName := make(map[string]float64)
	for _, w := range list {
		byName[w.Kernel.Name()] += w.Weight
	}
	for name, w := range byName {
		p.logSelect[name] = math.Log(w / p.total)
	}
	return p, nil
}

// Select returns the kernel for a uniform draw u in [0, 1).
func (p *Proposer) Select(u float64) Kernel {
	x := u * p.total
	i := sort.Search(len(p.cumulative), func(i int) bool { return p.cumulative[i] > x })
	if i == len(p.cumulative) {
		i--
	}
	return p.kernels[i]
}

// Probability returns the selection probability of kernel i.
func (p *Proposer) Probability(i int) float64 {
	prev := 0.0
	if i > 0 {
		prev = p.cumulative[i-1]
	}
	return (p.cumulative[i] - prev) / p.total
}

// LogSelection returns the log probability of selecting any kernel with
// the given name, or -Inf when none is configured.
func (p *Proposer) LogSelection(name string) float64 {
	if v, ok := p.logSelect[name]; ok {
		return v
	}
	return math.Inf(-1)
}

// Kernels returns the kernels in construction order.
func (p *Proposer) Kernels() []Kernel {
	return append([]Kernel(nil), p.kernels...)
}

// Next draws a kernel and asks it for a proposal, retrying up to the
// attempt limit. A false result means no proposal this iteration; it is
// not an error.
//
// The returned densities include the selection probabilities of the
// kernel and of its reverse, so unequal birth and death weights do not
// bias the chain. Without a reverse kernel the Hastings ratio is -Inf and
// only strictly downhill proposals can be accepted.
func (p *Proposer) Next(c *cfg.Configuration, r rng.Source) (Proposal, bool) {
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		k := p.Select(r.Float64())
		if prop, ok := k.Propose(c, r); ok {
			prop.LogForward += p.LogSelection(k.Name())
			prop.LogReverse += p.LogSelection(reverseName(k.Name()))
			return prop, true
		}
		p.declined[k.Name()]++
	}
	return Proposal{}, false
}

// Declined returns how often each kernel declined.
func (p *Proposer) Declined() map[string]int {
	out := make(map[string]int, len(p.declined))
	for k, v := range p.declined {
		out[k] = v
	}
	return out
}
