package nmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/openeeap/nmtrl/pkg/errors"
)

type listDict []string

func (d listDict) ConvertIDsToTokens(ids []int, stop int) []string {
	var out []string
	for _, id := range ids {
		out = append(out, d[id])
		if id == stop {
			break
		}
	}
	return out
}
func (d listDict) Lookup(string) int { return UNK }
func (d listDict) Size() int         { return len(d) }
func (d listDict) Lang() string      { return "xx" }
func (d listDict) Words() []string   { return d }

var dict = listDict{PadWord, UnkWord, BosWord, EosWord, "ein", "haus", "gro@@", "ßes"}

func TestParameter(t *testing.T) {
	p := &Parameter{Name: "generator.de.bias", Value: mat.NewDense(1, 4, nil)}
	assert.True(t, p.IsGenerator())
	assert.Nil(t, p.Grad)

	g := p.EnsureGrad()
	r, c := g.Dims()
	assert.Equal(t, 1, r)
	assert.Equal(t, 4, c)
	assert.Same(t, g, p.EnsureGrad())

	assert.False(t, (&Parameter{Name: "decoder.position_logits"}).IsGenerator())
}

func TestBatch(t *testing.T) {
	b := &Batch{
		Src:        [][]int{{4, 5, 0}, {4, 0, 0}},
		Tgt:        [][]int{{BOS, 4, 5, EOS}, {BOS, 4, EOS, PAD}},
		SrcLengths: []int{2, 1},
		TgtLengths: []int{4, 3},
		Indices:    []int{7, 2},
	}
	assert.Equal(t, 2, b.Size())
	assert.Equal(t, 3, b.SrcTokens())
	assert.Equal(t, 5, b.TgtTokens())
	assert.Equal(t, []int{4, 5}, b.Reference(0))
	assert.Equal(t, []int{4}, b.Reference(1))
}

func TestMaterialize(t *testing.T) {
	tokens, err := Materialize(dict, 0, []int{4, 5, EOS, PAD, PAD}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"ein", "haus"}, tokens)

	tokens, err = Materialize(dict, 1, []int{4, 5, 4}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"ein", "haus", "ein"}, tokens)

	tokens, err = Materialize(dict, 2, []int{EOS, PAD}, 1)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestMaterialize_LengthMismatchIsFatal(t *testing.T) {
	_, err := Materialize(dict, 3, []int{4, 5, EOS, PAD}, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTrainLengthMismatch.Code))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvariant))
}

func TestRemoveBPE(t *testing.T) {
	assert.Equal(t, []string{"ein", "großes", "haus"}, RemoveBPE([]string{"ein", "gro@@", "ßes", "haus"}))
	assert.Equal(t, []string{"haus"}, RemoveBPE([]string{"haus"}))
	assert.Empty(t, RemoveBPE(nil))
	assert.Equal(t, []string{"ein", "haus"}, Words(dict, []int{4, 5}))
}
