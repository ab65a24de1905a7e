// Package reward turns sentence scores into per-example advantages.
package reward

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

// Epsilon keeps the normalized advantage finite when every example in the
// batch has the same raw advantage. It equals float32 machine epsilon.
const Epsilon = 1.1920929e-07

// Options configures a Shaper.
type Options struct {
	// Normalize re-centers the advantage to zero mean and unit deviation
	Normalize bool

	// Baseline selects what is subtracted from the sampled reward
	Baseline types.BaselineKind
}

// Shaper computes advantages. The advantage is never divided by the batch
// size; the policy loss applies that normalization once.
type Shaper struct {
	opts Options
}

// NewShaper returns a Shaper; an empty baseline means greedy.
func NewShaper(opts Options) *Shaper {
	if opts.Baseline == "" {
		opts.Baseline = types.BaselineGreedy
	}
	return &Shaper{opts: opts}
}

// UsesBaseline reports whether a greedy rollout is needed.
func (s *Shaper) UsesBaseline() bool {
	return s.opts.Baseline == types.BaselineGreedy
}

// Advantage returns sampled - greedy, optionally normalized. greedy is
// ignored when the shaper has no baseline.
func (s *Shaper) Advantage(sampled, greedy []float64) ([]float64, error) {
	adv := make([]float64, len(sampled))
	copy(adv, sampled)

	if s.UsesBaseline() {
		if len(greedy) != len(sampled) {
			return nil, errors.NewFromCodef(errors.ErrTrainBatchSize, len(sampled), len(greedy))
		}
		floats.Sub(adv, greedy)
	}

	if s.opts.Normalize {
		Normalize(adv)
	}
	return adv, nil
}

// Normalize rescales xs in place to (x - mean) / (std + Epsilon) using the
// unbiased sample deviation. A single element has zero deviation.
func Normalize(xs []float64) {
	if len(xs) == 0 {
		return
	}
	mean := stat.Mean(xs, nil)
	std := 0.0
	if len(xs) > 1 {
		std = stat.StdDev(xs, nil)
	}
	if math.IsNaN(std) {
		std = 0
	}
	for i := range xs {
		xs[i] = (xs[i] - mean) / (std + Epsilon)
	}
}

// Summary condenses a reward batch for logging and metrics.
type Summary struct {
	Sampled       float64
	Baseline      float64
	MeanAbsAdv    float64
	PositiveShare float64
}

// Summarize averages the sampled and baseline rewards and the advantage
// magnitude over a batch.
func Summarize(sampled, greedy, adv []float64) Summary {
	var sum Summary
	if len(sampled) > 0 {
		sum.Sampled = stat.Mean(sampled, nil)
	}
	if len(greedy) > 0 {
		sum.Baseline = stat.Mean(greedy, nil)
	}
	if len(adv) > 0 {
		pos := 0
		for _, a := range adv {
			sum.MeanAbsAdv += math.Abs(a)
			if a > 0 {
				pos++
			}
		}
		sum.MeanAbsAdv /= float64(len(adv))
		sum.PositiveShare = float64(pos) / float64(len(adv))
	}
	return sum
}

//Personal.AI order the ending
