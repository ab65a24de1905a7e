package evaluator

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/internal/platform/corpus"
	"github.com/openeeap/nmtrl/internal/platform/model/positional"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

func fixture(t *testing.T, validPairs int) ([]*nmt.Corpus, *positional.Model) {
	t.Helper()
	src := [][]string{{"das", "haus"}, {"ein", "auto"}, {"das", "auto"}}
	tgt := [][]string{{"the", "house"}, {"a", "car"}, {"the", "car"}}
	de := corpus.BuildDictionary("de", src, 1, 0)
	en := corpus.BuildDictionary("en", tgt, 1, 0)

	encode := func(d *corpus.Dictionary, xs [][]string) [][]int {
		out := make([][]int, len(xs))
		for i, x := range xs {
			out[i] = d.Encode(x)
		}
		return out
	}

	var corpora []*nmt.Corpus
	for id := 0; id < 2; id++ {
		train, err := corpus.NewDataset(encode(de, src), encode(en, tgt), 2, 0)
		require.NoError(t, err)
		var valid *corpus.Dataset
		if id < validPairs {
			valid, err = corpus.NewDataset(encode(de, src[:2]), encode(en, tgt[:2]), 2, 0)
		} else {
			valid, err = corpus.NewDataset(nil, nil, 2, 0)
		}
		require.NoError(t, err)
		corpora = append(corpora, &nmt.Corpus{
			ID:      id,
			Pair:    types.LanguagePair{Src: "de", Tgt: "en"},
			Train:   train,
			Valid:   valid,
			SrcDict: de,
			TgtDict: en,
		})
	}

	m, err := positional.New(corpora, positional.Options{MaxLength: 4, ParamInit: 0.1, Rand: rand.New(rand.NewSource(5))})
	require.NoError(t, err)
	return corpora, m
}

func TestEvaluate_EmptyValidationScoresZero(t *testing.T) {
	corpora, m := fixture(t, 0)

	report, err := New(m, Options{}).Evaluate(context.Background(), corpora)
	require.NoError(t, err)
	assert.True(t, report.Empty)
	assert.Zero(t, report.BLEU)
	assert.Zero(t, report.PPL)
	require.Len(t, report.Pairs, 2)
	assert.True(t, report.Pairs[0].Empty)
}

func TestEvaluate_Scores(t *testing.T) {
	corpora, m := fixture(t, 1)

	// expected perplexity from the gold loss
	batch, err := corpora[0].Valid.Batch(0)
	require.NoError(t, err)
	loss, err := m.ForwardXE(batch, 1, false)
	require.NoError(t, err)
	want := math.Exp(loss / float64(batch.TgtTokens()))

	report, err := New(m, Options{RemoveBPE: true}).Evaluate(context.Background(), corpora)
	require.NoError(t, err)
	assert.False(t, report.Empty)
	assert.InDelta(t, want, report.PPL, 1e-9)
	assert.GreaterOrEqual(t, report.BLEU, 0.0)
	assert.LessOrEqual(t, report.BLEU, 100.0)

	// only the non-empty set is averaged
	require.Len(t, report.Pairs, 2)
	assert.Equal(t, 2, report.Pairs[0].Sentences)
	assert.Equal(t, 6, report.Pairs[0].Words)
	assert.True(t, report.Pairs[1].Empty)
	assert.Equal(t, report.Pairs[0].PPL, report.PPL)

	// the model is back in training mode
	_, err = m.ForwardXE(batch, 1, true)
	assert.NoError(t, err)
}

// failingModel fails every call for one corpus id.
type failingModel struct {
	*positional.Model
	failID int
}

func (f *failingModel) SwitchPairID(id int) error {
	if id == f.failID {
		return errors.InternalErrorf("pair %d unavailable", id)
	}
	return f.Model.SwitchPairID(id)
}

func TestEvaluate_PairFailureScoresZero(t *testing.T) {
	corpora, m := fixture(t, 2)

	report, err := New(&failingModel{Model: m, failID: 1}, Options{}).Evaluate(context.Background(), corpora)
	require.NoError(t, err)
	require.Len(t, report.Pairs, 2)
	assert.False(t, report.Pairs[0].Failed)
	assert.True(t, report.Pairs[1].Failed)
	assert.Zero(t, report.Pairs[1].BLEU)
	assert.Zero(t, report.Pairs[1].PPL)
	assert.InDelta(t, report.Pairs[0].PPL/2, report.PPL, 1e-9)
}

// shortModel reports sample lengths that disagree with its tokens.
type shortModel struct {
	*positional.Model
}

func (s *shortModel) Sample(batch *nmt.Batch, argmax bool) (*nmt.Rollout, error) {
	steps := 3
	r := &nmt.Rollout{LogProbs: mat.NewDense(steps, batch.Size(), nil), Steps: steps, Greedy: argmax}
	for range batch.Src {
		r.Tokens = append(r.Tokens, []int{4, 5, nmt.EOS})
		r.Lengths = append(r.Lengths, 2)
	}
	return r, nil
}

func TestEvaluate_LengthMismatchIsFatal(t *testing.T) {
	corpora, m := fixture(t, 1)

	_, err := New(&shortModel{Model: m}, Options{}).Evaluate(context.Background(), corpora)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTrainLengthMismatch.Code))
}

func TestEvaluate_Cancelled(t *testing.T) {
	corpora, m := fixture(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(m, Options{}).Evaluate(ctx, corpora)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPerplexity(t *testing.T) {
	assert.InDelta(t, math.E, Perplexity(10, 10), 1e-12)
	assert.Equal(t, math.Exp(100), Perplexity(1e9, 1))
	assert.Zero(t, Perplexity(5, 0))
}
