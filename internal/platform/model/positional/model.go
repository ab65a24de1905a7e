// Package positional provides a small baseline translation model: the
// distribution over target words at decoding step t is a learned table row
// plus a per-language output bias. It is cheap enough to train on a laptop
// and exposes exact gradients for both the cross-entropy and the policy
// gradient objectives.
package positional

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

// Options configures a Model.
type Options struct {
	// MaxLength is the decoding length L, EOS included
	MaxLength int

	// ParamInit is the half-width of the uniform initialization range
	ParamInit float64

	// Rand drives initialization and sampling
	Rand *rand.Rand
}

// Model implements nmt.Model.
type Model struct {
	opts Options
	rng  *rand.Rand

	params    []*nmt.Parameter
	byName    map[string]*nmt.Parameter
	positions map[string]*nmt.Parameter
	biases    map[string]*nmt.Parameter
	pairs     map[int]types.LanguagePair

	pair     types.LanguagePair
	training bool
}

var _ nmt.Model = (*Model)(nil)

// PositionName is the parameter name of the step table of a target language.
func PositionName(lang string) string {
	return "decoder." + lang + ".position_logits"
}

// BiasName is the parameter name of the output bias of a target language.
func BiasName(lang string) string {
	return nmt.GeneratorPrefix + lang + ".bias"
}

// New builds one parameter set per target language found in corpora and
// selects the first corpus' pair.
func New(corpora []*nmt.Corpus, opts Options) (*Model, error) {
	if len(corpora) == 0 {
		return nil, errors.ValidationErrorf("positional model needs at least one corpus")
	}
	if opts.MaxLength <= 0 {
		return nil, errors.ValidationErrorf("max decode length must be positive, got %d", opts.MaxLength)
	}
	if opts.ParamInit < 0 {
		return nil, errors.ValidationErrorf("param init must be non-negative, got %g", opts.ParamInit)
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	m := &Model{
		opts:      opts,
		rng:       rng,
		byName:    make(map[string]*nmt.Parameter),
		positions: make(map[string]*nmt.Parameter),
		biases:    make(map[string]*nmt.Parameter),
		pairs:     make(map[int]types.LanguagePair),
		training:  true,
	}

	vocab := make(map[string]int)
	for _, c := range corpora {
		if c.TgtDict == nil {
			return nil, errors.ValidationErrorf("corpus %s has no target dictionary", c.Pair)
		}
		if _, dup := m.pairs[c.ID]; dup {
			return nil, errors.ValidationErrorf("duplicate corpus id %d", c.ID)
		}
		m.pairs[c.ID] = c.Pair
		lang := c.TgtDict.Lang()
		if size, ok := vocab[lang]; ok && size != c.TgtDict.Size() {
			return nil, errors.ValidationErrorf("target language %s has two vocabularies (%d and %d words)", lang, size, c.TgtDict.Size())
		}
		vocab[lang] = c.TgtDict.Size()
	}

	langs := make([]string, 0, len(vocab))
	for lang := range vocab {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		v := vocab[lang]
		pos := &nmt.Parameter{Name: PositionName(lang), Value: m.uniform(opts.MaxLength, v)}
		bias := &nmt.Parameter{Name: BiasName(lang), Value: m.uniform(1, v)}
		m.positions[lang] = pos
		m.biases[lang] = bias
		m.params = append(m.params, pos, bias)
		m.byName[pos.Name] = pos
		m.byName[bias.Name] = bias
	}

	m.pair = corpora[0].Pair
	return m, nil
}

func (m *Model) uniform(r, c int) *mat.Dense {
	data := make([]float64, r*c)
	if m.opts.ParamInit > 0 {
		for i := range data {
			data[i] = (2*m.rng.Float64() - 1) * m.opts.ParamInit
		}
	}
	return mat.NewDense(r, c, data)
}

// Parameters implements nmt.Model.
func (m *Model) Parameters() []*nmt.Parameter {
	return m.params
}

// ZeroGrad implements nmt.Model. Gradients are released so that parameters
// of other language pairs stay untouched in the next backward pass.
func (m *Model) ZeroGrad() {
	for _, p := range m.params {
		p.Grad = nil
	}
}

// Train implements nmt.Model.
func (m *Model) Train() { m.training = true }

// Eval implements nmt.Model.
func (m *Model) Eval() { m.training = false }

// SwitchLanguagePair implements nmt.Model.
func (m *Model) SwitchLanguagePair(src, tgt string) error {
	if _, ok := m.positions[tgt]; !ok {
		return errors.ValidationErrorf("unknown target language %q", tgt)
	}
	m.pair = types.LanguagePair{Src: src, Tgt: tgt}
	return nil
}

// SwitchPairID implements nmt.Model.
func (m *Model) SwitchPairID(id int) error {
	pair, ok := m.pairs[id]
	if !ok {
		return errors.ValidationErrorf("unknown corpus id %d", id)
	}
	return m.SwitchLanguagePair(pair.Src, pair.Tgt)
}

// Pair returns the active language pair.
func (m *Model) Pair() types.LanguagePair {
	return m.pair
}

func (m *Model) active() (*nmt.Parameter, *nmt.Parameter) {
	return m.positions[m.pair.Tgt], m.biases[m.pair.Tgt]
}

// row maps a decoding step onto the step table; steps past the table reuse
// its last row.
func (m *Model) row(step int) int {
	return min(step, m.opts.MaxLength-1)
}

// logSoftmax returns the L x V table of log-probabilities. PAD and BOS are
// never produced.
func (m *Model) logSoftmax(pos, bias *nmt.Parameter) *mat.Dense {
	rows, cols := pos.Value.Dims()
	out := mat.NewDense(rows, cols, nil)
	b := bias.Value.RawRowView(0)
	for t := 0; t < rows; t++ {
		dst := out.RawRowView(t)
		floats.AddTo(dst, pos.Value.RawRowView(t), b)
		dst[nmt.PAD] = math.Inf(-1)
		dst[nmt.BOS] = math.Inf(-1)
		floats.AddConst(-floats.LogSumExp(dst), dst)
	}
	return out
}

// addGrad adds w * d(-log p[t][y]) / d logits to the gradients.
func addGrad(gPos, gBias *mat.Dense, lp *mat.Dense, t, y int, w float64) {
	gp := gPos.RawRowView(t)
	gb := gBias.RawRowView(0)
	for v, l := range lp.RawRowView(t) {
		g := math.Exp(l)
		if v == y {
			g -= 1
		}
		g *= w
		gp[v] += g
		gb[v] += g
	}
}

// ForwardXE implements nmt.Model.
func (m *Model) ForwardXE(batch *nmt.Batch, normalizer float64, backward bool) (float64, error) {
	if normalizer <= 0 {
		return 0, errors.ValidationErrorf("normalizer must be positive, got %g", normalizer)
	}
	if backward && !m.training {
		return 0, errors.InternalErrorf("backward pass requested in eval mode")
	}
	pos, bias := m.active()
	lp := m.logSoftmax(pos, bias)
	_, vocab := lp.Dims()

	var gPos, gBias *mat.Dense
	if backward {
		gPos, gBias = pos.EnsureGrad(), bias.EnsureGrad()
	}

	loss := 0.0
	for b, tgt := range batch.Tgt {
		for k := 1; k < batch.TgtLengths[b]; k++ {
			y := tgt[k]
			if y < 0 || y >= vocab {
				return 0, errors.ValidationErrorf("target id %d outside vocabulary of %d words", y, vocab)
			}
			t := m.row(k - 1)
			loss -= lp.At(t, y)
			if backward {
				addGrad(gPos, gBias, lp, t, y, 1/normalizer)
			}
		}
	}
	return loss, nil
}

// Sample implements nmt.Model. Every row decodes until EOS or MaxLength.
func (m *Model) Sample(batch *nmt.Batch, argmax bool) (*nmt.Rollout, error) {
	pos, bias := m.active()
	lp := m.logSoftmax(pos, bias)
	steps := m.opts.MaxLength
	size := batch.Size()

	r := &nmt.Rollout{
		Tokens:   make([][]int, size),
		LogProbs: mat.NewDense(steps, size, nil),
		Lengths:  make([]int, size),
		Steps:    steps,
		Greedy:   argmax,
	}
	for b := 0; b < size; b++ {
		row := make([]int, steps)
		r.Lengths[b] = steps
		for t := 0; t < steps; t++ {
			dist := lp.RawRowView(t)
			var y int
			if argmax {
				y = floats.MaxIdx(dist)
			} else {
				y = m.draw(dist)
			}
			row[t] = y
			r.LogProbs.Set(t, b, dist[y])
			if y == nmt.EOS {
				r.Lengths[b] = t + 1
				break
			}
		}
		r.Tokens[b] = row
	}
	return r, nil
}

// draw picks an index from a log-probability row.
func (m *Model) draw(logp []float64) int {
	u := m.rng.Float64()
	last := nmt.EOS
	for v, l := range logp {
		if math.IsInf(l, -1) {
			continue
		}
		last = v
		u -= math.Exp(l)
		if u < 0 {
			return v
		}
	}
	return last
}

// Reinforce implements nmt.Model.
func (m *Model) Reinforce(rollout *nmt.Rollout, weights *mat.Dense) error {
	if !m.training {
		return errors.InternalErrorf("backward pass requested in eval mode")
	}
	size := rollout.Size()
	if r, c := weights.Dims(); r != rollout.Steps || c != size {
		return errors.NewFromCodef(errors.ErrTrainShapeMismatch, "reinforce weights", r, c, rollout.Steps, size)
	}
	pos, bias := m.active()
	lp := m.logSoftmax(pos, bias)
	gPos, gBias := pos.EnsureGrad(), bias.EnsureGrad()

	for b := 0; b < size; b++ {
		for t := 0; t < rollout.Lengths[b]; t++ {
			w := weights.At(t, b)
			if w == 0 {
				continue
			}
			addGrad(gPos, gBias, lp, m.row(t), rollout.Tokens[b][t], w)
		}
	}
	return nil
}

// LoadWeights implements nmt.Model. Every parameter must be present with
// its exact shape.
func (m *Model) LoadWeights(weights map[string]*mat.Dense) error {
	for name := range weights {
		if _, ok := m.byName[name]; !ok {
			return errors.NewFromCodef(errors.ErrCkptIncompatible, fmt.Sprintf("unknown parameter %q", name))
		}
	}
	for _, p := range m.params {
		w, ok := weights[p.Name]
		if !ok {
			return errors.NewFromCodef(errors.ErrCkptIncompatible, fmt.Sprintf("missing parameter %q", p.Name))
		}
		wr, wc := w.Dims()
		pr, pc := p.Value.Dims()
		if wr != pr || wc != pc {
			return errors.NewFromCodef(errors.ErrCkptIncompatible,
				fmt.Sprintf("parameter %q is %dx%d, want %dx%d", p.Name, wr, wc, pr, pc))
		}
	}
	for _, p := range m.params {
		p.Value.Copy(weights[p.Name])
	}
	return nil
}

//Personal.AI order the ending
