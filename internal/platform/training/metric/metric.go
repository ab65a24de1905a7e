// Package metric scores a hypothesis token sequence against a fixed reference.
// Every scorer is deterministic and returns 0 for an empty hypothesis.
package metric

import (
	"math"

	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

// MaxOrder is the highest n-gram order used by the n-gram metrics.
const MaxOrder = 4

// Scorer computes a sentence-level reward.
type Scorer interface {
	// Score compares hyp with ref; the reference is never modified
	Score(ref, hyp []string) float64

	// Name identifies the metric in logs and metrics labels
	Name() string
}

// New returns the scorer for kind. alpha is only used by the hit metric.
func New(kind types.MetricKind, alpha float64) (Scorer, error) {
	switch kind {
	case types.MetricGLEU:
		return GLEU{}, nil
	case types.MetricSBLEU:
		return SentenceBLEU{}, nil
	case types.MetricHit:
		if alpha < 0 || alpha > 1 {
			return nil, errors.ValidationErrorf("hit alpha must be in [0, 1], got %g", alpha)
		}
		return Hit{Alpha: alpha}, nil
	default:
		return nil, errors.ValidationErrorf("unknown reinforce metric %q", kind)
	}
}

// ============================================================================
// GLEU
// ============================================================================

// GLEU is the sentence-level Google BLEU: the minimum of n-gram precision and
// recall, pooled over orders 1 to 4.
type GLEU struct{}

// Name implements Scorer.
func (GLEU) Name() string { return string(types.MetricGLEU) }

// Score implements Scorer.
func (GLEU) Score(ref, hyp []string) float64 {
	if len(hyp) == 0 {
		return 0
	}
	var matches, hypTotal, refTotal int
	for n := 1; n <= MaxOrder; n++ {
		refCounts := ngrams(ref, n)
		hypCounts := ngrams(hyp, n)
		matches += overlap(refCounts, hypCounts)
		hypTotal += max(0, len(hyp)-n+1)
		refTotal += max(0, len(ref)-n+1)
	}
	denom := max(hypTotal, refTotal)
	if denom == 0 {
		return 0
	}
	return float64(matches) / float64(denom)
}

// ============================================================================
// Smoothed sentence BLEU
// ============================================================================

// SentenceBLEU is BLEU-4 with add-one smoothing on orders above one.
type SentenceBLEU struct{}

// Name implements Scorer.
func (SentenceBLEU) Name() string { return string(types.MetricSBLEU) }

// Score implements Scorer.
func (SentenceBLEU) Score(ref, hyp []string) float64 {
	if len(hyp) == 0 {
		return 0
	}
	logSum := 0.0
	for n := 1; n <= MaxOrder; n++ {
		m := float64(overlap(ngrams(ref, n), ngrams(hyp, n)))
		c := float64(max(0, len(hyp)-n+1))
		if n == 1 {
			if m == 0 {
				return 0
			}
			logSum += math.Log(m / c)
			continue
		}
		logSum += math.Log((m + 1) / (c + 1))
	}
	return brevityPenalty(len(ref), len(hyp)) * math.Exp(logSum/MaxOrder)
}

// ============================================================================
// Hit
// ============================================================================

// Hit is a lexical F-measure over clipped unigram hits. Alpha weighs the
// hypothesis length against the reference length in the denominator.
type Hit struct {
	Alpha float64
}

// Name implements Scorer.
func (Hit) Name() string { return string(types.MetricHit) }

// Score implements Scorer.
func (h Hit) Score(ref, hyp []string) float64 {
	if len(hyp) == 0 {
		return 0
	}
	hits := overlap(ngrams(ref, 1), ngrams(hyp, 1))
	denom := h.Alpha*float64(len(hyp)) + (1-h.Alpha)*float64(len(ref))
	if denom <= 0 {
		return 0
	}
	return float64(hits) / denom
}

// ============================================================================
// Corpus BLEU
// ============================================================================

// CorpusBLEU computes unsmoothed BLEU-4 over aligned reference/hypothesis
// lists, on a 0 to 100 scale. Mismatched or empty inputs score 0.
func CorpusBLEU(refs, hyps [][]string) float64 {
	if len(refs) == 0 || len(refs) != len(hyps) {
		return 0
	}
	var matches, totals [MaxOrder]int
	var refLen, hypLen int
	for i := range hyps {
		refLen += len(refs[i])
		hypLen += len(hyps[i])
		for n := 1; n <= MaxOrder; n++ {
			matches[n-1] += overlap(ngrams(refs[i], n), ngrams(hyps[i], n))
			totals[n-1] += max(0, len(hyps[i])-n+1)
		}
	}
	if hypLen == 0 {
		return 0
	}
	logSum := 0.0
	for n := 0; n < MaxOrder; n++ {
		if matches[n] == 0 || totals[n] == 0 {
			return 0
		}
		logSum += math.Log(float64(matches[n]) / float64(totals[n]))
	}
	return 100 * brevityPenalty(refLen, hypLen) * math.Exp(logSum/MaxOrder)
}

// ============================================================================
// Helper functions
// ============================================================================

func brevityPenalty(refLen, hypLen int) float64 {
	if hypLen == 0 {
		return 0
	}
	if hypLen >= refLen {
		return 1
	}
	return math.Exp(1 - float64(refLen)/float64(hypLen))
}

// ngrams counts the n-grams of tokens, keyed by the joined n-gram.
func ngrams(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	for i := 0; i+n <= len(tokens); i++ {
		key := tokens[i]
		for _, tok := range tokens[i+1 : i+n] {
			key += "\x00" + tok
		}
		counts[key]++
	}
	return counts
}

// overlap returns the clipped match count of hyp n-grams against ref.
func overlap(ref, hyp map[string]int) int {
	total := 0
	for gram, c := range hyp {
		total += min(c, ref[gram])
	}
	return total
}

//Personal.AI order the ending
