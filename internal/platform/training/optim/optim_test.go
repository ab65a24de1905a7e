package optim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

func param(name string, values, grad []float64) *nmt.Parameter {
	p := &nmt.Parameter{Name: name, Value: mat.NewDense(1, len(values), values)}
	if grad != nil {
		p.Grad = mat.NewDense(1, len(grad), grad)
	}
	return p
}

func TestSGD_Step(t *testing.T) {
	o, err := New(Options{Method: types.OptimizerSGD, LearningRate: 0.5})
	require.NoError(t, err)

	p := param("w", []float64{1, 2}, []float64{0.2, -0.4})
	idle := param("generator.xx.bias", []float64{3}, nil)
	o.Step([]*nmt.Parameter{p, idle})

	assert.InDeltaSlice(t, []float64{0.9, 2.2}, p.Value.RawRowView(0), 1e-12)
	assert.Equal(t, 3.0, idle.Value.At(0, 0))
}

func TestClipGradNorm(t *testing.T) {
	a := param("a", []float64{0, 0}, []float64{3, 0})
	b := param("b", []float64{0}, []float64{4})

	norm := ClipGradNorm([]*nmt.Parameter{a, b}, 1)
	assert.InDelta(t, 5.0, norm, 1e-12)
	assert.InDelta(t, 0.6, a.Grad.At(0, 0), 1e-12)
	assert.InDelta(t, 0.8, b.Grad.At(0, 0), 1e-12)

	norm = ClipGradNorm([]*nmt.Parameter{a, b}, 0)
	assert.InDelta(t, 1.0, norm, 1e-12)
	assert.InDelta(t, 0.6, a.Grad.At(0, 0), 1e-12)
}

func TestAdagrad_Step(t *testing.T) {
	o, err := New(Options{Method: types.OptimizerAdagrad, LearningRate: 0.1, Epsilon: 1e-10})
	require.NoError(t, err)

	p := param("w", []float64{1}, []float64{2})
	o.Step([]*nmt.Parameter{p})
	assert.InDelta(t, 0.9, p.Value.At(0, 0), 1e-9)

	p.Grad = mat.NewDense(1, 1, []float64{2})
	o.Step([]*nmt.Parameter{p})
	assert.InDelta(t, 0.9-0.1*2/math.Sqrt(8), p.Value.At(0, 0), 1e-9)
}

func TestAdam_FirstStepMovesByLearningRate(t *testing.T) {
	o, err := New(Options{Method: types.OptimizerAdam, LearningRate: 0.01})
	require.NoError(t, err)

	p := param("w", []float64{1, 1}, []float64{5, -0.3})
	o.Step([]*nmt.Parameter{p})
	assert.InDelta(t, 0.99, p.Value.At(0, 0), 1e-6)
	assert.InDelta(t, 1.01, p.Value.At(0, 1), 1e-6)
}

func TestUpdateLearningRate(t *testing.T) {
	o, err := New(Options{Method: types.OptimizerSGD, LearningRate: 1, LRDecay: 0.5, StartDecayAt: 3})
	require.NoError(t, err)

	assert.False(t, o.UpdateLearningRate(20, 1))
	assert.False(t, o.UpdateLearningRate(15, 2))
	assert.Equal(t, 1.0, o.LearningRate())

	assert.True(t, o.UpdateLearningRate(14, 3))
	assert.Equal(t, 0.5, o.LearningRate())
	assert.True(t, o.UpdateLearningRate(13, 4))
	assert.Equal(t, 0.25, o.LearningRate())
}

func TestUpdateLearningRate_WorsePerplexityStartsDecay(t *testing.T) {
	o, err := New(Options{Method: types.OptimizerSGD, LearningRate: 1, LRDecay: 0.5, StartDecayAt: 1000})
	require.NoError(t, err)

	assert.False(t, o.UpdateLearningRate(10, 1))
	assert.True(t, o.UpdateLearningRate(12, 2))
	assert.True(t, o.UpdateLearningRate(8, 3))
	assert.Equal(t, 0.25, o.LearningRate())
}

func TestState_RoundTrip(t *testing.T) {
	o, err := New(Options{Method: types.OptimizerAdam, LearningRate: 0.01})
	require.NoError(t, err)
	p := param("w", []float64{1, 2}, []float64{0.5, 0.5})
	o.Step([]*nmt.Parameter{p})
	o.UpdateLearningRate(9, 1)

	state := o.State()
	restored, err := New(Options{Method: types.OptimizerAdam, LearningRate: 0.5})
	require.NoError(t, err)
	require.NoError(t, restored.LoadState(state))

	assert.Equal(t, state, restored.State())

	// the snapshot is detached from the live optimizer
	p.Grad = mat.NewDense(1, 2, []float64{1, 1})
	o.Step([]*nmt.Parameter{p})
	assert.NotEqual(t, o.State().First["w"], state.First["w"])

	sgd, err := New(Options{Method: types.OptimizerSGD, LearningRate: 1})
	require.NoError(t, err)
	err = sgd.LoadState(state)
	assert.True(t, errors.Is(err, errors.ErrCkptIncompatible.Code))
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Options{Method: "rmsprop", LearningRate: 1})
	assert.Error(t, err)
	_, err = New(Options{Method: types.OptimizerSGD})
	assert.Error(t, err)
}
