// Package corpus loads whitespace-tokenized parallel text into the
// dictionaries and batched datasets the trainer consumes.
package corpus

import (
	"sort"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/pkg/errors"
)

// Dictionary is a vocabulary for one language. Ids 0..3 are the reserved
// PAD, UNK, BOS and EOS words.
type Dictionary struct {
	lang  string
	words []string
	index map[string]int
}

// NewDictionary returns a dictionary holding only the reserved words.
func NewDictionary(lang string) *Dictionary {
	d := &Dictionary{lang: lang, index: make(map[string]int)}
	for _, w := range []string{nmt.PadWord, nmt.UnkWord, nmt.BosWord, nmt.EosWord} {
		d.add(w)
	}
	return d
}

// DictionaryFromWords rebuilds a dictionary saved in a checkpoint.
func DictionaryFromWords(lang string, words []string) (*Dictionary, error) {
	reserved := []string{nmt.PadWord, nmt.UnkWord, nmt.BosWord, nmt.EosWord}
	if len(words) < len(reserved) {
		return nil, errors.NewFromCodef(errors.ErrCkptIncompatible, "dictionary "+lang+" is missing reserved words")
	}
	for i, w := range reserved {
		if words[i] != w {
			return nil, errors.NewFromCodef(errors.ErrCkptIncompatible, "dictionary "+lang+" has unexpected reserved words")
		}
	}
	d := &Dictionary{lang: lang, index: make(map[string]int, len(words))}
	for _, w := range words {
		d.add(w)
	}
	return d, nil
}

// BuildDictionary counts words over sentences and keeps those seen at least
// minFreq times, most frequent first, up to maxSize entries in total
// (0 means unbounded). Ties are broken alphabetically.
func BuildDictionary(lang string, sentences [][]string, minFreq, maxSize int) *Dictionary {
	counts := make(map[string]int)
	for _, s := range sentences {
		for _, w := range s {
			counts[w]++
		}
	}
	words := make([]string, 0, len(counts))
	for w, c := range counts {
		if c >= minFreq {
			words = append(words, w)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	d := NewDictionary(lang)
	for _, w := range words {
		if maxSize > 0 && d.Size() >= maxSize {
			break
		}
		d.add(w)
	}
	return d
}

func (d *Dictionary) add(w string) int {
	if id, ok := d.index[w]; ok {
		return id
	}
	id := len(d.words)
	d.words = append(d.words, w)
	d.index[w] = id
	return id
}

// Encode maps words to ids; unknown words become UNK.
func (d *Dictionary) Encode(words []string) []int {
	ids := make([]int, len(words))
	for i, w := range words {
		ids[i] = d.Lookup(w)
	}
	return ids
}

// ConvertIDsToTokens implements nmt.Dictionary. Conversion stops after the
// first occurrence of stop, which is included.
func (d *Dictionary) ConvertIDsToTokens(ids []int, stop int) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id >= 0 && id < len(d.words) {
			out = append(out, d.words[id])
		} else {
			out = append(out, nmt.UnkWord)
		}
		if id == stop {
			break
		}
	}
	return out
}

// Lookup implements nmt.Dictionary.
func (d *Dictionary) Lookup(word string) int {
	if id, ok := d.index[word]; ok {
		return id
	}
	return nmt.UNK
}

// Size implements nmt.Dictionary.
func (d *Dictionary) Size() int { return len(d.words) }

// Lang implements nmt.Dictionary.
func (d *Dictionary) Lang() string { return d.lang }

// Words implements nmt.Dictionary.
func (d *Dictionary) Words() []string {
	return append([]string(nil), d.words...)
}

//Personal.AI order the ending
