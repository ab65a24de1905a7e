// Package evaluator scores a model on the validation split of every corpus:
// perplexity from the gold cross-entropy and corpus BLEU of greedy decodes.
package evaluator

import (
	"context"
	"math"
	"time"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/internal/observability/trace"
	"github.com/openeeap/nmtrl/internal/platform/training/metric"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

// maxLogPerplexity caps the exponent so that a diverged model reports a
// finite perplexity.
const maxLogPerplexity = 100

// Options configures an Evaluator.
type Options struct {
	// RemoveBPE merges "@@ " subwords before scoring
	RemoveBPE bool

	Logger logging.Logger
	Tracer trace.Tracer
}

// PairReport holds the scores of one validation set.
type PairReport struct {
	Pair      types.LanguagePair `json:"pair"`
	BLEU      float64            `json:"bleu"`
	PPL       float64            `json:"ppl"`
	Sentences int                `json:"sentences"`
	Words     int                `json:"words"`
	Empty     bool               `json:"empty"`
	Failed    bool               `json:"failed"`
}

// Report aggregates the pair reports. BLEU and PPL are averaged over the
// non-empty validation sets; with none of them both are 0.
type Report struct {
	BLEU     float64       `json:"bleu"`
	PPL      float64       `json:"ppl"`
	Pairs    []PairReport  `json:"pairs"`
	Empty    bool          `json:"empty"`
	Duration time.Duration `json:"duration"`
}

// Evaluator runs validation passes.
type Evaluator struct {
	model  nmt.Model
	opts   Options
	logger logging.Logger
	tracer trace.Tracer
}

// New creates an Evaluator for model.
func New(model nmt.Model, opts Options) *Evaluator {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoopLogger()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = trace.NewNoopTracer()
	}
	return &Evaluator{model: model, opts: opts, logger: logger, tracer: tracer}
}

// Evaluate scores every corpus. A model error on one pair is logged and
// scores that pair 0; invariant violations and cancellation abort the pass.
// The model is left in training mode.
func (e *Evaluator) Evaluate(ctx context.Context, corpora []*nmt.Corpus) (*Report, error) {
	ctx, span := e.tracer.Start(ctx, "evaluator.Evaluate")
	defer span.End()

	start := time.Now()
	e.model.Eval()
	defer e.model.Train()

	report := &Report{Pairs: make([]PairReport, 0, len(corpora))}
	scored := 0
	for _, c := range corpora {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pr, err := e.evaluatePair(ctx, c)
		if err != nil {
			if errors.IsType(err, errors.ErrorTypeInvariant) {
				trace.RecordSpanError(ctx, err)
				return nil, err
			}
			e.logger.WithContext(ctx).Warn("Validation failed for pair, scoring 0",
				logging.String("pair", c.Pair.String()),
				logging.Error(err))
			pr = PairReport{Pair: c.Pair, Failed: true}
		}
		report.Pairs = append(report.Pairs, pr)
		if pr.Empty {
			continue
		}
		report.BLEU += pr.BLEU
		report.PPL += pr.PPL
		scored++
	}

	if scored == 0 {
		report.BLEU, report.PPL, report.Empty = 0, 0, true
	} else {
		report.BLEU /= float64(scored)
		report.PPL /= float64(scored)
	}
	report.Duration = time.Since(start)

	span.SetAttributes(
		trace.Float64Attr("valid.bleu", report.BLEU),
		trace.Float64Attr("valid.ppl", report.PPL),
		trace.IntAttr("valid.sets", scored))
	return report, nil
}

func (e *Evaluator) evaluatePair(ctx context.Context, c *nmt.Corpus) (PairReport, error) {
	pr := PairReport{Pair: c.Pair}
	if c.Valid == nil || c.Valid.Len() == 0 {
		pr.Empty = true
		return pr, nil
	}
	if err := e.model.SwitchPairID(c.ID); err != nil {
		return pr, err
	}

	var refs, hyps [][]string
	loss := 0.0
	for i := 0; i < c.Valid.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return pr, err
		}
		batch, err := c.Valid.Batch(i)
		if err != nil {
			return pr, err
		}
		l, err := e.model.ForwardXE(batch, 1, false)
		if err != nil {
			return pr, err
		}
		loss += l
		pr.Words += batch.TgtTokens()

		rollout, err := e.model.Sample(batch, true)
		if err != nil {
			return pr, err
		}
		for b := 0; b < batch.Size(); b++ {
			hyp, err := nmt.Materialize(c.TgtDict, b, rollout.Tokens[b], rollout.Lengths[b])
			if err != nil {
				return pr, err
			}
			ref := nmt.Words(c.TgtDict, batch.Reference(b))
			if e.opts.RemoveBPE {
				hyp, ref = nmt.RemoveBPE(hyp), nmt.RemoveBPE(ref)
			}
			refs = append(refs, ref)
			hyps = append(hyps, hyp)
		}
	}

	pr.Sentences = len(refs)
	if pr.Sentences == 0 || pr.Words == 0 {
		pr.Empty = true
		return pr, nil
	}
	pr.PPL = Perplexity(loss, pr.Words)
	pr.BLEU = metric.CorpusBLEU(refs, hyps)

	e.logger.WithContext(ctx).Info("Validation set scored",
		logging.String("pair", c.Pair.String()),
		logging.Int("sentences", pr.Sentences),
		logging.Float64("bleu", pr.BLEU),
		logging.Float64("ppl", pr.PPL))
	return pr, nil
}

// Perplexity converts a summed negative log-likelihood over words tokens.
func Perplexity(loss float64, words int) float64 {
	if words <= 0 {
		return 0
	}
	return math.Exp(math.Min(loss/float64(words), maxLogPerplexity))
}

//Personal.AI order the ending
