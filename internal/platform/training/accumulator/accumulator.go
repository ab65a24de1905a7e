// Package accumulator averages gradients over the Monte-Carlo samples of one
// accumulation window.
package accumulator

import (
	"gonum.org/v1/gonum/mat"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/pkg/errors"
)

// Accumulator owns one running-sum slot per parameter, keyed by name.
// It is owned by a single training loop and is not safe for concurrent use.
type Accumulator struct {
	slots   map[string]*mat.Dense
	touched map[string]bool
	samples int
}

// New allocates a zero slot shaped like each parameter.
func New(params []*nmt.Parameter) (*Accumulator, error) {
	a := &Accumulator{
		slots:   make(map[string]*mat.Dense, len(params)),
		touched: make(map[string]bool, len(params)),
	}
	for _, p := range params {
		if _, dup := a.slots[p.Name]; dup {
			return nil, errors.InternalErrorf("duplicate parameter name %q", p.Name)
		}
		r, c := p.Value.Dims()
		a.slots[p.Name] = mat.NewDense(r, c, nil)
	}
	return a, nil
}

// Zero resets every slot. It must open a window, never interrupt one.
func (a *Accumulator) Zero() error {
	if a.samples > 0 {
		return errors.NewFromCodef(errors.ErrTrainZeroMidWindow, a.samples)
	}
	for name, slot := range a.slots {
		slot.Zero()
		a.touched[name] = false
	}
	return nil
}

// Accumulate adds each parameter's current gradient into its slot. A nil
// gradient contributes nothing.
func (a *Accumulator) Accumulate(params []*nmt.Parameter) error {
	for _, p := range params {
		slot, ok := a.slots[p.Name]
		if !ok {
			return errors.NewFromCodef(errors.ErrTrainUnknownParameter, p.Name)
		}
		if p.Grad == nil {
			continue
		}
		sr, sc := slot.Dims()
		gr, gc := p.Grad.Dims()
		if sr != gr || sc != gc {
			return errors.NewFromCodef(errors.ErrTrainShapeMismatch, p.Name, gr, gc, sr, sc)
		}
		slot.Add(slot, p.Grad)
		a.touched[p.Name] = true
	}
	a.samples++
	return nil
}

// FlushAndDivide writes slot/n into each parameter's gradient and closes the
// window. n is the window size, independent of how many samples actually
// produced a gradient for a given parameter. Parameters that never received a
// gradient in the window are left with a nil gradient.
func (a *Accumulator) FlushAndDivide(params []*nmt.Parameter, n int) error {
	if n <= 0 {
		return errors.InternalErrorf("window size must be positive, got %d", n)
	}
	scale := 1 / float64(n)
	for _, p := range params {
		slot, ok := a.slots[p.Name]
		if !ok {
			return errors.NewFromCodef(errors.ErrTrainUnknownParameter, p.Name)
		}
		if !a.touched[p.Name] {
			p.Grad = nil
			continue
		}
		p.EnsureGrad().Scale(scale, slot)
	}
	a.samples = 0
	return nil
}

// Samples returns the number of samples accumulated in the open window.
func (a *Accumulator) Samples() int {
	return a.samples
}

// Len returns the number of slots.
func (a *Accumulator) Len() int {
	return len(a.slots)
}

//Personal.AI order the ending
