// Package sampler walks one epoch of batches across several corpora.
//
// Each draw picks a corpus from the set of corpora that still have unvisited
// batches, then takes that corpus's next batch in its epoch order. A corpus
// leaves the live set as soon as it is exhausted and the epoch ends when the
// live set is empty, so every batch is visited exactly once and the walk
// always terminates regardless of the weights.
package sampler

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/openeeap/nmtrl/pkg/errors"
)

// Options configures a Sampler.
type Options struct {
	// Weights overrides the per-corpus sampling weight. When nil each live
	// corpus is weighted by its number of remaining batches.
	Weights []float64

	// Adapt restricts the epoch to the corpus at index Pin
	Adapt bool
	Pin   int

	// Sequential keeps batches in corpus order instead of shuffling them
	Sequential bool

	// Rand drives both the batch permutation and the corpus draws
	Rand *rand.Rand

	// Order and Cursors resume an interrupted epoch
	Order   [][]int
	Cursors []int
}

// Draw is one step of the epoch.
type Draw struct {
	// Corpus is the index of the selected corpus
	Corpus int

	// Batch is the batch index inside that corpus
	Batch int

	// Position counts the draws made so far in this epoch
	Position int
}

// Sampler iterates over one epoch. It is not safe for concurrent use.
type Sampler struct {
	sizes    []int
	weights  []float64
	order    [][]int
	cursors  []int
	live     []int
	position int
	total    int
	rng      *rand.Rand
}

// New builds the epoch walk over corpora of the given sizes (in batches).
func New(sizes []int, opts Options) (*Sampler, error) {
	n := len(sizes)
	for i, size := range sizes {
		if size < 0 {
			return nil, errors.ValidationErrorf("corpus %d has negative size %d", i, size)
		}
	}
	if opts.Weights != nil && len(opts.Weights) != n {
		return nil, errors.ValidationErrorf("got %d corpus weights for %d corpora", len(opts.Weights), n)
	}
	if opts.Adapt && (opts.Pin < 0 || opts.Pin >= n) {
		return nil, errors.ValidationErrorf("adapt corpus %d out of range [0, %d)", opts.Pin, n)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	s := &Sampler{
		sizes:   append([]int(nil), sizes...),
		weights: opts.Weights,
		rng:     rng,
	}

	if opts.Order != nil {
		if err := s.restore(opts.Order, opts.Cursors); err != nil {
			return nil, err
		}
	} else {
		s.order = make([][]int, n)
		s.cursors = make([]int, n)
		for c, size := range sizes {
			if opts.Sequential {
				s.order[c] = identity(size)
			} else {
				s.order[c] = rng.Perm(size)
			}
		}
	}

	for c := range sizes {
		if opts.Adapt && c != opts.Pin {
			continue
		}
		s.total += s.sizes[c]
		s.position += s.cursors[c]
		if s.cursors[c] < s.sizes[c] {
			s.live = append(s.live, c)
		}
	}
	return s, nil
}

func (s *Sampler) restore(order [][]int, cursors []int) error {
	if len(order) != len(s.sizes) || len(cursors) != len(s.sizes) {
		return errors.NewFromCodef(errors.ErrCkptIncompatible, "batch order does not match the configured corpora")
	}
	s.order = make([][]int, len(order))
	for c := range order {
		if len(order[c]) != s.sizes[c] {
			return errors.NewFromCodef(errors.ErrCkptIncompatible, "batch order size differs from corpus size")
		}
		if cursors[c] < 0 || cursors[c] > s.sizes[c] {
			return errors.NewFromCodef(errors.ErrCkptIncompatible, "corpus cursor out of range")
		}
		s.order[c] = append([]int(nil), order[c]...)
	}
	s.cursors = append([]int(nil), cursors...)
	return nil
}

// Next returns the next draw, or false once every live corpus is exhausted.
func (s *Sampler) Next() (Draw, bool) {
	if len(s.live) == 0 {
		return Draw{}, false
	}

	slot := s.pick()
	c := s.live[slot]
	d := Draw{
		Corpus:   c,
		Batch:    s.order[c][s.cursors[c]],
		Position: s.position,
	}
	s.cursors[c]++
	s.position++

	if s.cursors[c] == s.sizes[c] {
		s.live = append(s.live[:slot], s.live[slot+1:]...)
	}
	return d, true
}

// pick draws an index into the live set. Non-finite or non-positive weights
// count as zero; when no live corpus has weight the draw is uniform.
func (s *Sampler) pick() int {
	if len(s.live) == 1 {
		return 0
	}
	w := make([]float64, len(s.live))
	for i, c := range s.live {
		var v float64
		if s.weights != nil {
			v = s.weights[c]
		} else {
			v = float64(s.sizes[c] - s.cursors[c])
		}
		if v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			w[i] = v
		}
	}

	total := floats.Sum(w)
	if total <= 0 || math.IsInf(total, 0) {
		return s.rng.Intn(len(s.live))
	}

	u := s.rng.Float64() * total
	for i, v := range w {
		if u < v {
			return i
		}
		u -= v
	}
	// rounding left u at the top edge; take the last weighted corpus
	for i := len(w) - 1; i >= 0; i-- {
		if w[i] > 0 {
			return i
		}
	}
	return len(w) - 1
}

// Order returns a copy of the per-corpus batch order of this epoch.
func (s *Sampler) Order() [][]int {
	out := make([][]int, len(s.order))
	for c := range s.order {
		out[c] = append([]int(nil), s.order[c]...)
	}
	return out
}

// Cursors returns a copy of the per-corpus progress.
func (s *Sampler) Cursors() []int {
	return append([]int(nil), s.cursors...)
}

// Total returns the number of draws in the epoch.
func (s *Sampler) Total() int {
	return s.total
}

// Position returns the number of draws made so far.
func (s *Sampler) Position() int {
	return s.position
}

// Live returns the number of corpora with batches left.
func (s *Sampler) Live() int {
	return len(s.live)
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

//Personal.AI order the ending
