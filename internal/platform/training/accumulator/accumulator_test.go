package accumulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/pkg/errors"
)

func newParams() []*nmt.Parameter {
	return []*nmt.Parameter{
		{Name: "decoder.position_logits", Value: mat.NewDense(2, 3, nil)},
		{Name: "generator.de.bias", Value: mat.NewDense(1, 3, nil)},
	}
}

func TestAccumulator_ConstantGradientAveragesToItself(t *testing.T) {
	params := newParams()
	acc, err := New(params)
	require.NoError(t, err)
	assert.Equal(t, 2, acc.Len())

	g0 := mat.NewDense(2, 3, []float64{0.5, -1, 2, 0, 3.25, -0.125})
	g1 := mat.NewDense(1, 3, []float64{7, 8, -9})

	for _, n := range []int{1, 3, 5} {
		require.NoError(t, acc.Zero())
		for i := 0; i < n; i++ {
			params[0].Grad = mat.DenseCopyOf(g0)
			params[1].Grad = mat.DenseCopyOf(g1)
			require.NoError(t, acc.Accumulate(params))
		}
		assert.Equal(t, n, acc.Samples())

		require.NoError(t, acc.FlushAndDivide(params, n))
		assert.True(t, mat.EqualApprox(g0, params[0].Grad, 1e-12), "n=%d", n)
		assert.True(t, mat.EqualApprox(g1, params[1].Grad, 1e-12), "n=%d", n)
		assert.Equal(t, 0, acc.Samples())
	}
}

func TestAccumulator_MissingGradientDividesByWindow(t *testing.T) {
	params := newParams()
	acc, err := New(params)
	require.NoError(t, err)
	require.NoError(t, acc.Zero())

	g := mat.NewDense(1, 3, []float64{3, 6, 9})
	for i := 0; i < 3; i++ {
		params[0].Grad = mat.NewDense(2, 3, []float64{1, 1, 1, 1, 1, 1})
		params[1].Grad = nil
		if i == 0 {
			params[1].Grad = mat.DenseCopyOf(g)
		}
		require.NoError(t, acc.Accumulate(params))
	}
	require.NoError(t, acc.FlushAndDivide(params, 3))

	assert.True(t, mat.EqualApprox(mat.NewDense(1, 3, []float64{1, 2, 3}), params[1].Grad, 1e-12))
	assert.True(t, mat.EqualApprox(mat.NewDense(2, 3, []float64{1, 1, 1, 1, 1, 1}), params[0].Grad, 1e-12))
}

func TestAccumulator_UntouchedParameterHasNoGradient(t *testing.T) {
	params := newParams()
	acc, err := New(params)
	require.NoError(t, err)
	require.NoError(t, acc.Zero())

	params[0].Grad = mat.NewDense(2, 3, nil)
	params[1].Grad = nil
	require.NoError(t, acc.Accumulate(params))

	params[1].Grad = mat.NewDense(1, 3, []float64{1, 1, 1})
	require.NoError(t, acc.FlushAndDivide(params, 1))
	assert.Nil(t, params[1].Grad)
	assert.NotNil(t, params[0].Grad)
}

func TestAccumulator_ZeroClearsPreviousWindow(t *testing.T) {
	params := newParams()
	acc, err := New(params)
	require.NoError(t, err)

	require.NoError(t, acc.Zero())
	params[0].Grad = mat.NewDense(2, 3, []float64{9, 9, 9, 9, 9, 9})
	require.NoError(t, acc.Accumulate(params))
	require.NoError(t, acc.FlushAndDivide(params, 1))

	require.NoError(t, acc.Zero())
	params[0].Grad = mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, acc.Accumulate(params))
	require.NoError(t, acc.FlushAndDivide(params, 1))
	assert.Equal(t, 6.0, params[0].Grad.At(1, 2))
}

func TestAccumulator_ZeroMidWindowIsInvariantViolation(t *testing.T) {
	params := newParams()
	acc, err := New(params)
	require.NoError(t, err)
	require.NoError(t, acc.Zero())
	require.NoError(t, acc.Accumulate(params))

	err = acc.Zero()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTrainZeroMidWindow.Code))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvariant))
}

func TestAccumulator_Errors(t *testing.T) {
	params := newParams()
	acc, err := New(params)
	require.NoError(t, err)

	stranger := []*nmt.Parameter{{Name: "encoder.embeddings", Value: mat.NewDense(1, 1, nil), Grad: mat.NewDense(1, 1, nil)}}
	assert.True(t, errors.Is(acc.Accumulate(stranger), errors.ErrTrainUnknownParameter.Code))
	assert.True(t, errors.Is(acc.FlushAndDivide(stranger, 1), errors.ErrTrainUnknownParameter.Code))

	params[0].Grad = mat.NewDense(3, 2, nil)
	assert.True(t, errors.Is(acc.Accumulate(params), errors.ErrTrainShapeMismatch.Code))

	assert.Error(t, acc.FlushAndDivide(params, 0))

	_, err = New(append(newParams(), newParams()...))
	assert.Error(t, err)
}
