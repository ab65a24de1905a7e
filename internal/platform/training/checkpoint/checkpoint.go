// Package checkpoint defines the persisted training snapshot, its codec and
// the save policy that decides which snapshots reach storage.
package checkpoint

import (
	"time"

	json "github.com/goccy/go-json"
	"gonum.org/v1/gonum/mat"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/internal/platform/training/optim"
	"github.com/openeeap/nmtrl/pkg/errors"
	"github.com/openeeap/nmtrl/pkg/types"
)

// EpochEnd is the iteration recorded for end-of-epoch checkpoints.
const EpochEnd = -1

// Checkpoint is one immutable training snapshot.
type Checkpoint struct {
	// ModelWeights holds every parameter except the output projection
	ModelWeights map[string]Tensor `json:"model_weights"`

	// GeneratorWeights holds the output projection parameters
	GeneratorWeights map[string]Tensor `json:"generator_weights"`

	// Dictionaries maps a language code to its vocabulary in id order
	Dictionaries map[string][]string `json:"dictionaries"`

	// RunOptions is the configuration of the run that wrote the snapshot
	RunOptions json.RawMessage `json:"run_options"`

	// Epoch is fractional when the snapshot was taken mid-epoch
	Epoch float64 `json:"epoch"`

	// Iteration is the last completed draw of the epoch, EpochEnd otherwise
	Iteration int `json:"iteration"`

	// Examples counts the outer examples trained by the run, across resumes
	Examples int `json:"examples"`

	// BatchOrder and CorpusCursors resume the epoch where it stopped
	BatchOrder    [][]int `json:"batch_order"`
	CorpusCursors []int   `json:"corpus_cursors,omitempty"`

	OptimizerState *OptimizerState `json:"optimizer_state"`

	RunID     string    `json:"run_id"`
	ValidBLEU float64   `json:"valid_bleu"`
	ValidPPL  float64   `json:"valid_ppl"`
	CreatedAt time.Time `json:"created_at"`
}

// MidEpoch reports whether the snapshot can resume inside an epoch.
func (c *Checkpoint) MidEpoch() bool {
	return c.Iteration != EpochEnd && c.BatchOrder != nil
}

// Weights merges model and generator weights into dense tensors by name.
func (c *Checkpoint) Weights() (map[string]*mat.Dense, error) {
	out := make(map[string]*mat.Dense, len(c.ModelWeights)+len(c.GeneratorWeights))
	for _, group := range []map[string]Tensor{c.ModelWeights, c.GeneratorWeights} {
		for name, t := range group {
			d, err := t.Dense()
			if err != nil {
				return nil, errors.WrapFromCode(err, errors.ErrCkptIncompatible, name)
			}
			out[name] = d
		}
	}
	return out, nil
}

// SetWeights copies parameter values, splitting off the generator.
func (c *Checkpoint) SetWeights(params []*nmt.Parameter) {
	c.ModelWeights = make(map[string]Tensor)
	c.GeneratorWeights = make(map[string]Tensor)
	for _, p := range params {
		if p.IsGenerator() {
			c.GeneratorWeights[p.Name] = FromDense(p.Value)
		} else {
			c.ModelWeights[p.Name] = FromDense(p.Value)
		}
	}
}

// SetDictionaries records the vocabularies of the given dictionaries.
func (c *Checkpoint) SetDictionaries(dicts ...nmt.Dictionary) {
	if c.Dictionaries == nil {
		c.Dictionaries = make(map[string][]string)
	}
	for _, d := range dicts {
		if d == nil {
			continue
		}
		c.Dictionaries[d.Lang()] = d.Words()
	}
}

// ============================================================================
// Tensor
// ============================================================================

// Tensor is the wire form of a dense matrix, row-major.
type Tensor struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// FromDense copies m into a Tensor.
func FromDense(m *mat.Dense) Tensor {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	return Tensor{Rows: r, Cols: c, Data: data}
}

// Dense rebuilds the matrix. The data length must match the shape.
func (t Tensor) Dense() (*mat.Dense, error) {
	if t.Rows <= 0 || t.Cols <= 0 || len(t.Data) != t.Rows*t.Cols {
		return nil, errors.NewFromCodef(errors.ErrCkptIncompatible, "tensor shape does not match its data")
	}
	return mat.NewDense(t.Rows, t.Cols, append([]float64(nil), t.Data...)), nil
}

// ============================================================================
// Optimizer state
// ============================================================================

// OptimizerState is the wire form of optim.State.
type OptimizerState struct {
	Method       types.OptimizerKind `json:"method"`
	LearningRate float64             `json:"learning_rate"`
	Steps        int                 `json:"steps"`
	StartDecay   bool                `json:"start_decay"`
	LastPPL      float64             `json:"last_ppl"`
	HasLastPPL   bool                `json:"has_last_ppl"`
	First        map[string]Tensor   `json:"first,omitempty"`
	Second       map[string]Tensor   `json:"second,omitempty"`
}

// FromOptimizer converts an optimizer snapshot.
func FromOptimizer(s optim.State) *OptimizerState {
	return &OptimizerState{
		Method:       s.Method,
		LearningRate: s.LearningRate,
		Steps:        s.Steps,
		StartDecay:   s.StartDecay,
		LastPPL:      s.LastPPL,
		HasLastPPL:   s.HasLastPPL,
		First:        tensors(s.First),
		Second:       tensors(s.Second),
	}
}

// Optimizer converts back to an optimizer snapshot.
func (o *OptimizerState) Optimizer() (optim.State, error) {
	first, err := denses(o.First)
	if err != nil {
		return optim.State{}, err
	}
	second, err := denses(o.Second)
	if err != nil {
		return optim.State{}, err
	}
	return optim.State{
		Method:       o.Method,
		LearningRate: o.LearningRate,
		Steps:        o.Steps,
		StartDecay:   o.StartDecay,
		LastPPL:      o.LastPPL,
		HasLastPPL:   o.HasLastPPL,
		First:        first,
		Second:       second,
	}, nil
}

func tensors(in map[string]*mat.Dense) map[string]Tensor {
	out := make(map[string]Tensor, len(in))
	for k, v := range in {
		out[k] = FromDense(v)
	}
	return out
}

func denses(in map[string]Tensor) (map[string]*mat.Dense, error) {
	out := make(map[string]*mat.Dense, len(in))
	for k, v := range in {
		d, err := v.Dense()
		if err != nil {
			return nil, err
		}
		out[k] = d
	}
	return out, nil
}

//Personal.AI order the ending
