package positional

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/internal/platform/corpus"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

func testCorpora() []*nmt.Corpus {
	en := corpus.BuildDictionary("en", [][]string{{"a", "b", "c"}}, 1, 0)
	de := corpus.BuildDictionary("de", [][]string{{"x", "y"}}, 1, 0)
	fr := corpus.BuildDictionary("fr", [][]string{{"u"}}, 1, 0)
	return []*nmt.Corpus{
		{ID: 0, Pair: types.LanguagePair{Src: "de", Tgt: "en"}, SrcDict: de, TgtDict: en},
		{ID: 1, Pair: types.LanguagePair{Src: "en", Tgt: "de"}, SrcDict: en, TgtDict: de},
		{ID: 2, Pair: types.LanguagePair{Src: "fr", Tgt: "en"}, SrcDict: fr, TgtDict: en},
	}
}

func newModel(t *testing.T, steps int) *Model {
	t.Helper()
	m, err := New(testCorpora(), Options{MaxLength: steps, ParamInit: 0.5, Rand: rand.New(rand.NewSource(3))})
	require.NoError(t, err)
	return m
}

func testBatch() *nmt.Batch {
	return &nmt.Batch{
		Src:        [][]int{{4, 5}, {4, 0}},
		Tgt:        [][]int{{nmt.BOS, 4, 5, nmt.EOS}, {nmt.BOS, 6, nmt.EOS, nmt.PAD}},
		SrcLengths: []int{2, 1},
		TgtLengths: []int{4, 3},
		Indices:    []int{0, 1},
		Pad:        nmt.PAD,
	}
}

func TestNew(t *testing.T) {
	m := newModel(t, 4)

	names := make([]string, 0)
	for _, p := range m.Parameters() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{
		"decoder.de.position_logits", "generator.de.bias",
		"decoder.en.position_logits", "generator.en.bias",
	}, names)

	r, c := m.byName["decoder.en.position_logits"].Value.Dims()
	assert.Equal(t, 4, r)
	assert.Equal(t, 7, c)
	assert.True(t, m.byName["generator.en.bias"].IsGenerator())
	assert.Equal(t, "en", m.Pair().Tgt)

	_, err := New(nil, Options{MaxLength: 4})
	require.Error(t, err)
	_, err = New(testCorpora(), Options{MaxLength: 0})
	require.Error(t, err)
	_, err = New(testCorpora(), Options{MaxLength: 2, ParamInit: -1})
	require.Error(t, err)
}

func TestSwitch(t *testing.T) {
	m := newModel(t, 4)

	require.NoError(t, m.SwitchPairID(1))
	assert.Equal(t, types.LanguagePair{Src: "en", Tgt: "de"}, m.Pair())

	require.NoError(t, m.SwitchLanguagePair("fr", "en"))
	assert.Equal(t, "en", m.Pair().Tgt)

	assert.Error(t, m.SwitchPairID(9))
	assert.Error(t, m.SwitchLanguagePair("en", "fr"))
}

func TestForwardXE_LossAndGradientOnlyTouchActivePair(t *testing.T) {
	m := newModel(t, 4)
	require.NoError(t, m.SwitchPairID(0))
	batch := testBatch()

	pos, bias := m.active()
	lp := m.logSoftmax(pos, bias)
	want := -(lp.At(0, 4) + lp.At(1, 5) + lp.At(2, nmt.EOS) + lp.At(0, 6) + lp.At(1, nmt.EOS))

	loss, err := m.ForwardXE(batch, 2, true)
	require.NoError(t, err)
	assert.InDelta(t, want, loss, 1e-12)

	assert.NotNil(t, m.byName["decoder.en.position_logits"].Grad)
	assert.NotNil(t, m.byName["generator.en.bias"].Grad)
	assert.Nil(t, m.byName["decoder.de.position_logits"].Grad)

	// step 3 is never used by the batch
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 0}, m.byName["decoder.en.position_logits"].Grad.RawRowView(3))

	m.ZeroGrad()
	for _, p := range m.Parameters() {
		assert.Nil(t, p.Grad)
	}
}

func TestForwardXE_GradientMatchesFiniteDifference(t *testing.T) {
	m := newModel(t, 4)
	batch := testBatch()
	const normalizer = 3.0

	_, err := m.ForwardXE(batch, normalizer, true)
	require.NoError(t, err)

	objective := func() float64 {
		loss, err := m.ForwardXE(batch, normalizer, false)
		require.NoError(t, err)
		return loss / normalizer
	}
	checkGradients(t, m, objective)
}

func TestReinforce_GradientMatchesFiniteDifference(t *testing.T) {
	m := newModel(t, 5)
	rollout, err := m.Sample(testBatch(), false)
	require.NoError(t, err)

	weights := mat.NewDense(rollout.Steps, rollout.Size(), nil)
	for b := 0; b < rollout.Size(); b++ {
		for step := 0; step < rollout.Lengths[b]; step++ {
			weights.Set(step, b, 0.3*float64(b+1)-0.1*float64(step))
		}
	}
	require.NoError(t, m.Reinforce(rollout, weights))

	objective := func() float64 {
		pos, bias := m.active()
		lp := m.logSoftmax(pos, bias)
		f := 0.0
		for b := 0; b < rollout.Size(); b++ {
			for step := 0; step < rollout.Lengths[b]; step++ {
				f -= lp.At(step, rollout.Tokens[b][step]) * weights.At(step, b)
			}
		}
		return f
	}
	checkGradients(t, m, objective)
}

func checkGradients(t *testing.T, m *Model, objective func() float64) {
	t.Helper()
	const h = 1e-6
	pos, bias := m.active()
	for _, p := range []*nmt.Parameter{pos, bias} {
		require.NotNil(t, p.Grad, p.Name)
		rows, cols := p.Value.Dims()
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				orig := p.Value.At(i, j)
				p.Value.Set(i, j, orig+h)
				up := objective()
				p.Value.Set(i, j, orig-h)
				down := objective()
				p.Value.Set(i, j, orig)
				assert.InDelta(t, (up-down)/(2*h), p.Grad.At(i, j), 1e-5, "%s[%d][%d]", p.Name, i, j)
			}
		}
	}
}

func TestSample(t *testing.T) {
	m := newModel(t, 6)
	batch := testBatch()

	for _, argmax := range []bool{false, true} {
		r, err := m.Sample(batch, argmax)
		require.NoError(t, err)
		assert.Equal(t, argmax, r.Greedy)
		assert.Equal(t, 6, r.Steps)
		require.Equal(t, 2, r.Size())

		rows, cols := r.LogProbs.Dims()
		assert.Equal(t, 6, rows)
		assert.Equal(t, 2, cols)

		for b := 0; b < r.Size(); b++ {
			n := r.Lengths[b]
			require.GreaterOrEqual(t, n, 1)
			require.LessOrEqual(t, n, 6)
			assert.Len(t, r.Tokens[b], 6)
			for step := 0; step < n; step++ {
				tok := r.Tokens[b][step]
				assert.NotEqual(t, nmt.PAD, tok)
				assert.NotEqual(t, nmt.BOS, tok)
				assert.LessOrEqual(t, r.LogProbs.At(step, b), 0.0)
				if step < n-1 {
					assert.NotEqual(t, nmt.EOS, tok)
				}
			}
			if n < 6 {
				assert.Equal(t, nmt.EOS, r.Tokens[b][n-1])
			}
			for step := n; step < 6; step++ {
				assert.Equal(t, nmt.PAD, r.Tokens[b][step])
				assert.Zero(t, r.LogProbs.At(step, b))
			}
		}
	}
}

func TestSample_GreedyIsDeterministic(t *testing.T) {
	m := newModel(t, 5)
	a, err := m.Sample(testBatch(), true)
	require.NoError(t, err)
	b, err := m.Sample(testBatch(), true)
	require.NoError(t, err)
	assert.Equal(t, a.Tokens, b.Tokens)
	assert.True(t, mat.Equal(a.LogProbs, b.LogProbs))
	// both rows share the same decoding distribution
	assert.Equal(t, a.Tokens[0], a.Tokens[1])
}

func TestEvalModeRejectsBackward(t *testing.T) {
	m := newModel(t, 4)
	m.Eval()

	loss, err := m.ForwardXE(testBatch(), 1, false)
	require.NoError(t, err)
	assert.Greater(t, loss, 0.0)

	_, err = m.ForwardXE(testBatch(), 1, true)
	require.Error(t, err)

	r, err := m.Sample(testBatch(), true)
	require.NoError(t, err)
	assert.Error(t, m.Reinforce(r, mat.NewDense(r.Steps, r.Size(), nil)))

	m.Train()
	_, err = m.ForwardXE(testBatch(), 1, true)
	require.NoError(t, err)
}

func TestReinforce_ShapeMismatch(t *testing.T) {
	m := newModel(t, 4)
	r, err := m.Sample(testBatch(), false)
	require.NoError(t, err)
	err = m.Reinforce(r, mat.NewDense(3, 2, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTrainShapeMismatch.Code))
}

func TestLoadWeights(t *testing.T) {
	src := newModel(t, 4)
	dst, err := New(testCorpora(), Options{MaxLength: 4, ParamInit: 0.1, Rand: rand.New(rand.NewSource(99))})
	require.NoError(t, err)

	weights := make(map[string]*mat.Dense)
	for _, p := range src.Parameters() {
		weights[p.Name] = mat.DenseCopyOf(p.Value)
	}
	require.NoError(t, dst.LoadWeights(weights))
	for i, p := range dst.Parameters() {
		assert.True(t, mat.Equal(src.Parameters()[i].Value, p.Value), p.Name)
	}

	// loaded values are copies
	weights["generator.en.bias"].Set(0, 4, math.Pi)
	assert.NotEqual(t, math.Pi, dst.byName["generator.en.bias"].Value.At(0, 4))

	t.Run("unknown", func(t *testing.T) {
		bad := map[string]*mat.Dense{"decoder.xx.position_logits": mat.NewDense(1, 1, nil)}
		for k, v := range weights {
			bad[k] = v
		}
		err := dst.LoadWeights(bad)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCkptIncompatible.Code))
	})

	t.Run("missing", func(t *testing.T) {
		err := dst.LoadWeights(map[string]*mat.Dense{"generator.en.bias": weights["generator.en.bias"]})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCkptIncompatible.Code))
	})

	t.Run("shape", func(t *testing.T) {
		bad := make(map[string]*mat.Dense)
		for k, v := range weights {
			bad[k] = v
		}
		bad["generator.de.bias"] = mat.NewDense(1, 2, nil)
		err := dst.LoadWeights(bad)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrCkptIncompatible.Code))
	})
}
