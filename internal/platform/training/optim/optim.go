// Package optim applies accumulated gradients to model parameters and owns
// the learning-rate schedule.
package optim

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

// Options configures an Optimizer.
type Options struct {
	Method       types.OptimizerKind
	LearningRate float64
	MaxGradNorm  float64
	LRDecay      float64
	StartDecayAt int
	Beta1        float64
	Beta2        float64
	Epsilon      float64
}

// State is the serializable optimizer state, keyed by parameter name.
type State struct {
	Method       types.OptimizerKind
	LearningRate float64
	Steps        int
	StartDecay   bool
	LastPPL      float64
	HasLastPPL   bool
	First        map[string]*mat.Dense
	Second       map[string]*mat.Dense
}

// Optimizer is SGD, Adagrad or Adam with global-norm gradient clipping.
type Optimizer struct {
	opts       Options
	lr         float64
	steps      int
	startDecay bool
	lastPPL    float64
	hasLastPPL bool

	// first holds Adam's first moment; second holds Adam's second moment or
	// Adagrad's squared-gradient sum
	first  map[string]*mat.Dense
	second map[string]*mat.Dense
}

// New validates opts and returns a fresh optimizer.
func New(opts Options) (*Optimizer, error) {
	if !opts.Method.Valid() {
		return nil, errors.ValidationErrorf("unknown optimizer %q", opts.Method)
	}
	if opts.LearningRate <= 0 {
		return nil, errors.ValidationErrorf("learning rate must be positive, got %g", opts.LearningRate)
	}
	if opts.LRDecay <= 0 {
		opts.LRDecay = 1
	}
	if opts.Beta1 == 0 {
		opts.Beta1 = 0.9
	}
	if opts.Beta2 == 0 {
		opts.Beta2 = 0.999
	}
	if opts.Epsilon == 0 {
		opts.Epsilon = 1e-8
	}
	return &Optimizer{
		opts:   opts,
		lr:     opts.LearningRate,
		first:  make(map[string]*mat.Dense),
		second: make(map[string]*mat.Dense),
	}, nil
}

// Step clips the gradients and updates every parameter that has one.
// It returns the gradient norm before clipping.
func (o *Optimizer) Step(params []*nmt.Parameter) float64 {
	norm := ClipGradNorm(params, o.opts.MaxGradNorm)
	o.steps++
	for _, p := range params {
		if p.Grad == nil {
			continue
		}
		switch o.opts.Method {
		case types.OptimizerAdagrad:
			o.adagrad(p)
		case types.OptimizerAdam:
			o.adam(p)
		default:
			p.Value.Add(p.Value, scaled(-o.lr, p.Grad))
		}
	}
	return norm
}

func (o *Optimizer) adagrad(p *nmt.Parameter) {
	sum := o.slot(o.second, p)
	g := p.Grad
	sum.Apply(func(i, j int, v float64) float64 {
		return v + g.At(i, j)*g.At(i, j)
	}, sum)
	eps := o.opts.Epsilon
	p.Value.Apply(func(i, j int, w float64) float64 {
		return w - o.lr*g.At(i, j)/(math.Sqrt(sum.At(i, j))+eps)
	}, p.Value)
}

func (o *Optimizer) adam(p *nmt.Parameter) {
	m := o.slot(o.first, p)
	v := o.slot(o.second, p)
	g := p.Grad
	b1, b2, eps := o.opts.Beta1, o.opts.Beta2, o.opts.Epsilon

	m.Apply(func(i, j int, x float64) float64 {
		return b1*x + (1-b1)*g.At(i, j)
	}, m)
	v.Apply(func(i, j int, x float64) float64 {
		return b2*x + (1-b2)*g.At(i, j)*g.At(i, j)
	}, v)

	c1 := 1 - math.Pow(b1, float64(o.steps))
	c2 := 1 - math.Pow(b2, float64(o.steps))
	p.Value.Apply(func(i, j int, w float64) float64 {
		mHat := m.At(i, j) / c1
		vHat := v.At(i, j) / c2
		return w - o.lr*mHat/(math.Sqrt(vHat)+eps)
	}, p.Value)
}

func (o *Optimizer) slot(store map[string]*mat.Dense, p *nmt.Parameter) *mat.Dense {
	s, ok := store[p.Name]
	if !ok {
		r, c := p.Value.Dims()
		s = mat.NewDense(r, c, nil)
		store[p.Name] = s
	}
	return s
}

// UpdateLearningRate decays the learning rate at the end of an epoch once
// epoch reaches StartDecayAt or validation perplexity got worse. Decay stays
// on for the rest of the run. It reports whether the rate changed.
func (o *Optimizer) UpdateLearningRate(ppl float64, epoch int) bool {
	if o.opts.StartDecayAt > 0 && epoch >= o.opts.StartDecayAt {
		o.startDecay = true
	}
	if o.hasLastPPL && ppl > o.lastPPL {
		o.startDecay = true
	}
	o.lastPPL, o.hasLastPPL = ppl, true

	if !o.startDecay || o.opts.LRDecay == 1 {
		return false
	}
	o.lr *= o.opts.LRDecay
	return true
}

// LearningRate returns the current learning rate.
func (o *Optimizer) LearningRate() float64 {
	return o.lr
}

// Method returns the update rule in use.
func (o *Optimizer) Method() types.OptimizerKind {
	return o.opts.Method
}

// State snapshots the optimizer. Tensors are copied.
func (o *Optimizer) State() State {
	return State{
		Method:       o.opts.Method,
		LearningRate: o.lr,
		Steps:        o.steps,
		StartDecay:   o.startDecay,
		LastPPL:      o.lastPPL,
		HasLastPPL:   o.hasLastPPL,
		First:        copySlots(o.first),
		Second:       copySlots(o.second),
	}
}

// LoadState restores a snapshot taken by State with the same method.
func (o *Optimizer) LoadState(s State) error {
	if s.Method != o.opts.Method {
		return errors.NewFromCodef(errors.ErrCkptIncompatible, "optimizer "+string(s.Method)+" cannot resume as "+string(o.opts.Method))
	}
	o.lr = s.LearningRate
	o.steps = s.Steps
	o.startDecay = s.StartDecay
	o.lastPPL, o.hasLastPPL = s.LastPPL, s.HasLastPPL
	o.first = copySlots(s.First)
	o.second = copySlots(s.Second)
	return nil
}

// ClipGradNorm rescales all gradients so their joint L2 norm is at most
// maxNorm, and returns the norm before clipping. maxNorm <= 0 disables it.
func ClipGradNorm(params []*nmt.Parameter, maxNorm float64) float64 {
	total := 0.0
	for _, p := range params {
		if p.Grad == nil {
			continue
		}
		n := mat.Norm(p.Grad, 2)
		total += n * n
	}
	norm := math.Sqrt(total)
	if maxNorm > 0 && norm > maxNorm {
		shrink := maxNorm / norm
		for _, p := range params {
			if p.Grad != nil {
				p.Grad.Scale(shrink, p.Grad)
			}
		}
	}
	return norm
}

func scaled(f float64, m *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Scale(f, m)
	return &out
}

func copySlots(in map[string]*mat.Dense) map[string]*mat.Dense {
	out := make(map[string]*mat.Dense, len(in))
	for k, v := range in {
		out[k] = mat.DenseCopyOf(v)
	}
	return out
}

//Personal.AI order the ending
