// Package credit spreads a terminal advantage over the decoding steps of a
// sampled sequence.
//
// Matrices are laid out time-major: row t, column b holds step t of example b.
// Step t of example b is valid when t+1 <= len[b]; invalid steps get zero
// credit and contribute nothing to the policy loss.
package credit

import (
	"gonum.org/v1/gonum/mat"

	"github.com/openeeap/nmtrl/pkg/errors"
)

// Mask returns the steps x B validity mask for the given sampled lengths.
func Mask(lengths []int, steps int) *mat.Dense {
	m := mat.NewDense(max(steps, 1), max(len(lengths), 1), nil)
	for b, l := range lengths {
		for t := 0; t < steps && t < l; t++ {
			m.Set(t, b, 1)
		}
	}
	return m
}

// Assign builds the steps x B credit matrix: credit[t][b] = adv[b] for the
// valid steps of example b and 0 elsewhere.
func Assign(adv []float64, lengths []int, steps int) (*mat.Dense, error) {
	if len(adv) != len(lengths) {
		return nil, errors.NewFromCodef(errors.ErrTrainBatchSize, len(adv), len(lengths))
	}
	if steps <= 0 || len(adv) == 0 {
		return nil, errors.NewFromCodef(errors.ErrTrainShapeMismatch, "credit", steps, len(adv), max(steps, 1), max(len(adv), 1))
	}
	c := mat.NewDense(steps, len(adv), nil)
	for b, a := range adv {
		if lengths[b] < 0 || lengths[b] > steps {
			return nil, errors.NewFromCodef(errors.ErrTrainLengthMismatch, b, lengths[b], steps)
		}
		for t := 0; t < lengths[b]; t++ {
			c.Set(t, b, a)
		}
	}
	return c, nil
}

// PolicyLoss returns -sum(logp * credit * mask) / batchSize.
func PolicyLoss(logProbs, credit, mask *mat.Dense, batchSize int) (float64, error) {
	if err := sameShape("log_probs", logProbs, credit); err != nil {
		return 0, err
	}
	if err := sameShape("mask", mask, credit); err != nil {
		return 0, err
	}
	if batchSize <= 0 {
		return 0, errors.NewFromCodef(errors.ErrTrainBatchSize, batchSize, 1)
	}

	var weighted mat.Dense
	weighted.MulElem(logProbs, credit)
	weighted.MulElem(&weighted, mask)
	return -mat.Sum(&weighted) / float64(batchSize), nil
}

// Weights returns credit / batchSize. These are the coefficients of the
// chosen-token log-probabilities in the policy loss, so a model that
// backpropagates -sum(logp * weights) reproduces the gradient of PolicyLoss.
func Weights(credit *mat.Dense, batchSize int) (*mat.Dense, error) {
	if batchSize <= 0 {
		return nil, errors.NewFromCodef(errors.ErrTrainBatchSize, batchSize, 1)
	}
	var w mat.Dense
	w.Scale(1/float64(batchSize), credit)
	return &w, nil
}

func sameShape(name string, a, b *mat.Dense) error {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ar != br || ac != bc {
		return errors.NewFromCodef(errors.ErrTrainShapeMismatch, name, ar, ac, br, bc)
	}
	return nil
}

//Personal.AI order the ending
