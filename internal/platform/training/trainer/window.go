package trainer

import (
	"context"
	"math"
	"time"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/internal/platform/training/credit"
	"github.com/openeeap/nmtrl/internal/platform/training/evaluator"
	"github.com/openeeap/nmtrl/internal/platform/training/reward"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

// ============================================================================
// Window
// ============================================================================

// window is one outer training example: a single cross-entropy update, or
// size REINFORCE iterations on the same batch followed by one update.
type window struct {
	mode types.TrainMode
	size int
	done int

	// greedy holds the baseline rewards, computed on the first iteration
	// and reused by the rest of the window
	greedy []float64
}

func newWindow(mode types.TrainMode, nSamples int) *window {
	w := &window{mode: mode, size: 1}
	if mode == types.TrainModeReinforce {
		w.size = nSamples
	}
	return w
}

// needsBaseline reports whether the current iteration must decode greedily.
func (w *window) needsBaseline(shaper *reward.Shaper) bool {
	return shaper.UsesBaseline() && w.done == 0
}

// windowResult carries the statistics of a finished window.
type windowResult struct {
	mode types.TrainMode

	// cross-entropy: summed NLL and predicted words
	loss  float64
	words int

	// reinforce: per-iteration batch means
	sampled  []float64
	baseline []float64
	policy   []float64

	gradNorm float64
}

// drawMode picks the objective of the next window.
func (t *Trainer) drawMode() types.TrainMode {
	if t.rng.Float64() < t.opts.ReinforceRate {
		return types.TrainModeReinforce
	}
	return types.TrainModeCrossEntropy
}

// ============================================================================
// Cross-entropy
// ============================================================================

func (t *Trainer) crossEntropy(batch *nmt.Batch, iteration int) (*windowResult, error) {
	t.model.ZeroGrad()
	loss, err := t.model.ForwardXE(batch, float64(batch.Size()), true)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return nil, errors.NewFromCodef(errors.ErrTrainNonFinite, "cross-entropy loss", iteration)
	}
	norm := t.optim.Step(t.params)
	return &windowResult{
		mode:     types.TrainModeCrossEntropy,
		loss:     loss,
		words:    batch.TgtTokens(),
		gradNorm: norm,
	}, nil
}

// ============================================================================
// REINFORCE
// ============================================================================

func (t *Trainer) reinforce(ctx context.Context, c *nmt.Corpus, batch *nmt.Batch, w *window, iteration int) (*windowResult, error) {
	if err := t.acc.Zero(); err != nil {
		return nil, err
	}
	res := &windowResult{mode: types.TrainModeReinforce}
	size := batch.Size()

	for ; w.done < w.size; w.done++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t.model.ZeroGrad()

		if w.needsBaseline(t.shaper) {
			greedy, err := t.model.Sample(batch, true)
			if err != nil {
				return nil, err
			}
			if w.greedy, err = t.score(c, batch, greedy); err != nil {
				return nil, err
			}
		}

		rollout, err := t.model.Sample(batch, false)
		if err != nil {
			return nil, err
		}
		if rollout.Size() != size {
			return nil, errors.NewFromCodef(errors.ErrTrainBatchSize, rollout.Size(), size)
		}
		sampled, err := t.score(c, batch, rollout)
		if err != nil {
			return nil, err
		}
		adv, err := t.shaper.Advantage(sampled, w.greedy)
		if err != nil {
			return nil, err
		}

		cr, err := credit.Assign(adv, rollout.Lengths, rollout.Steps)
		if err != nil {
			return nil, err
		}
		loss, err := credit.PolicyLoss(rollout.LogProbs, cr, credit.Mask(rollout.Lengths, rollout.Steps), size)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return nil, errors.NewFromCodef(errors.ErrTrainNonFinite, "policy loss", iteration)
		}
		weights, err := credit.Weights(cr, size)
		if err != nil {
			return nil, err
		}
		if err := t.model.Reinforce(rollout, weights); err != nil {
			return nil, err
		}
		if err := t.acc.Accumulate(t.params); err != nil {
			return nil, err
		}

		summary := reward.Summarize(sampled, w.greedy, adv)
		res.sampled = append(res.sampled, summary.Sampled)
		res.baseline = append(res.baseline, summary.Baseline)
		res.policy = append(res.policy, loss)
		if t.metrics != nil {
			t.metrics.RecordReinforceSample(c.Pair.String(), summary.Sampled, summary.Baseline, summary.MeanAbsAdv)
		}
	}

	if err := t.acc.FlushAndDivide(t.params, w.size); err != nil {
		return nil, err
	}
	res.gradNorm = t.optim.Step(t.params)
	return res, nil
}

// score materializes every row of rollout and scores it against the
// reference. A dictionary that disagrees with the reported length aborts.
func (t *Trainer) score(c *nmt.Corpus, batch *nmt.Batch, rollout *nmt.Rollout) ([]float64, error) {
	scores := make([]float64, rollout.Size())
	for b := range scores {
		hyp, err := nmt.Materialize(c.TgtDict, b, rollout.Tokens[b], rollout.Lengths[b])
		if err != nil {
			return nil, err
		}
		ref := nmt.Words(c.TgtDict, batch.Reference(b))
		if t.opts.RemoveBPE {
			hyp, ref = nmt.RemoveBPE(hyp), nmt.RemoveBPE(ref)
		}
		scores[b] = t.opts.Scorer.Score(ref, hyp)
	}
	return scores, nil
}

// ============================================================================
// Running statistics
// ============================================================================

// stats accumulates the windows between two progress reports.
type stats struct {
	start     time.Time
	srcTokens int
	tgtTokens int

	xeLoss    float64
	xeWords   int
	xeWindows int

	rewardSum   float64
	baselineSum float64
	samples     int
	rlWindows   int
}

func newStats(now time.Time) *stats {
	return &stats{start: now}
}

func (s *stats) add(batch *nmt.Batch, res *windowResult) {
	s.srcTokens += batch.SrcTokens()
	s.tgtTokens += batch.TgtTokens()
	switch res.mode {
	case types.TrainModeReinforce:
		s.rlWindows++
		for i := range res.sampled {
			s.rewardSum += res.sampled[i]
			s.baselineSum += res.baseline[i]
			s.samples++
		}
	default:
		s.xeWindows++
		s.xeLoss += res.loss
		s.xeWords += res.words
	}
}

func (s *stats) perplexity() float64 {
	return evaluator.Perplexity(s.xeLoss, s.xeWords)
}

func (s *stats) meanReward() (float64, float64) {
	if s.samples == 0 {
		return 0, 0
	}
	n := float64(s.samples)
	return s.rewardSum / n, s.baselineSum / n
}

func (s *stats) throughput(now time.Time) (float64, float64) {
	secs := now.Sub(s.start).Seconds()
	if secs <= 0 {
		return 0, 0
	}
	return float64(s.srcTokens) / secs, float64(s.tgtTokens) / secs
}

// logSamples prints a few sampled translations of batch with their scores.
func (t *Trainer) logSamples(ctx context.Context, c *nmt.Corpus, batch *nmt.Batch) {
	rollout, err := t.model.Sample(batch, false)
	if err != nil {
		t.logger.WithContext(ctx).Warn("Sampling for inspection failed", logging.Error(err))
		return
	}
	for b := 0; b < min(sampleRows, rollout.Size()); b++ {
		hyp, err := nmt.Materialize(c.TgtDict, b, rollout.Tokens[b], rollout.Lengths[b])
		if err != nil {
			t.logger.WithContext(ctx).Warn("Sampling for inspection failed", logging.Error(err))
			return
		}
		ref := nmt.Words(c.TgtDict, batch.Reference(b))
		if t.opts.RemoveBPE {
			hyp, ref = nmt.RemoveBPE(hyp), nmt.RemoveBPE(ref)
		}
		t.logger.WithContext(ctx).Info("Sample",
			logging.String("pair", c.Pair.String()),
			logging.Int("sentence", batch.Indices[b]),
			logging.Strings("reference", ref),
			logging.Strings("hypothesis", hyp),
			logging.Float64("score", t.opts.Scorer.Score(ref, hyp)))
	}
}

// sampleRows bounds the sentences printed by logSamples.
const sampleRows = 3

//Personal.AI order the ending
