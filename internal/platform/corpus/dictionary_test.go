package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/pkg/errors"
)

func TestNewDictionary_Reserved(t *testing.T) {
	d := NewDictionary("de")
	assert.Equal(t, "de", d.Lang())
	assert.Equal(t, 4, d.Size())
	assert.Equal(t, nmt.PAD, d.Lookup(nmt.PadWord))
	assert.Equal(t, nmt.UNK, d.Lookup(nmt.UnkWord))
	assert.Equal(t, nmt.BOS, d.Lookup(nmt.BosWord))
	assert.Equal(t, nmt.EOS, d.Lookup(nmt.EosWord))
	assert.Equal(t, nmt.UNK, d.Lookup("haus"))
}

func TestBuildDictionary(t *testing.T) {
	sentences := [][]string{
		{"das", "haus", "ist", "gross"},
		{"das", "haus"},
		{"das", "auto"},
	}

	d := BuildDictionary("de", sentences, 1, 0)
	// das(3) haus(2) then auto gross ist alphabetically
	assert.Equal(t, []string{nmt.PadWord, nmt.UnkWord, nmt.BosWord, nmt.EosWord, "das", "haus", "auto", "gross", "ist"}, d.Words())

	d = BuildDictionary("de", sentences, 2, 0)
	assert.Equal(t, 6, d.Size())
	assert.Equal(t, nmt.UNK, d.Lookup("auto"))

	d = BuildDictionary("de", sentences, 1, 5)
	assert.Equal(t, 5, d.Size())
	assert.Equal(t, 4, d.Lookup("das"))
	assert.Equal(t, nmt.UNK, d.Lookup("haus"))
}

func TestDictionary_EncodeAndConvert(t *testing.T) {
	d := BuildDictionary("en", [][]string{{"a", "b", "c"}}, 1, 0)

	ids := d.Encode([]string{"a", "zzz", "c"})
	assert.Equal(t, []int{4, nmt.UNK, 6}, ids)

	tokens := d.ConvertIDsToTokens([]int{4, 5, nmt.EOS, 6, nmt.PAD}, nmt.EOS)
	assert.Equal(t, []string{"a", "b", nmt.EosWord}, tokens)

	tokens = d.ConvertIDsToTokens([]int{4, 99, -1}, -1)
	assert.Equal(t, []string{"a", nmt.UnkWord, nmt.UnkWord}, tokens)
}

func TestDictionaryFromWords(t *testing.T) {
	src := BuildDictionary("en", [][]string{{"x", "y"}}, 1, 0)

	d, err := DictionaryFromWords("en", src.Words())
	require.NoError(t, err)
	assert.Equal(t, src.Words(), d.Words())
	assert.Equal(t, src.Lookup("y"), d.Lookup("y"))

	_, err = DictionaryFromWords("en", []string{"x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCkptIncompatible.Code))

	_, err = DictionaryFromWords("en", []string{nmt.UnkWord, nmt.PadWord, nmt.BosWord, nmt.EosWord})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCkptIncompatible.Code))
}

func TestDictionary_WordsIsCopy(t *testing.T) {
	d := NewDictionary("en")
	w := d.Words()
	w[0] = "mutated"
	assert.Equal(t, nmt.PadWord, d.Words()[0])
}
