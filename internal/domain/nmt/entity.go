// Package nmt provides the domain entities shared by the trainer and its
// collaborators: batches of padded token ids, sampled rollouts and the named
// parameters a model exposes for gradient accumulation and checkpointing.
package nmt

import (
	"strings"

	"gonum.org/v1/gonum/mat"
)

// ============================================================================
// Special tokens
// ============================================================================

// Reserved vocabulary ids. Every dictionary starts with these four entries.
const (
	PAD = 0
	UNK = 1
	BOS = 2
	EOS = 3
)

// Reserved vocabulary words, in id order.
const (
	PadWord = "<blank>"
	UnkWord = "<unk>"
	BosWord = "<s>"
	EosWord = "</s>"
)

// GeneratorPrefix marks parameters that belong to the output projection.
// They are stored under generator_weights in a checkpoint.
const GeneratorPrefix = "generator."

// ============================================================================
// Parameter
// ============================================================================

// Parameter is a named trainable tensor and its gradient.
type Parameter struct {
	// Name is the stable identifier used for accumulation slots and checkpoints
	Name string

	// Value holds the current weights
	Value *mat.Dense

	// Grad holds the gradient of the last backward pass, nil when the
	// parameter did not take part in it
	Grad *mat.Dense
}

// IsGenerator reports whether the parameter belongs to the output projection.
func (p *Parameter) IsGenerator() bool {
	return strings.HasPrefix(p.Name, GeneratorPrefix)
}

// EnsureGrad returns the gradient tensor, allocating a zero one on first use.
func (p *Parameter) EnsureGrad() *mat.Dense {
	if p.Grad == nil {
		r, c := p.Value.Dims()
		p.Grad = mat.NewDense(r, c, nil)
	}
	return p.Grad
}

// ============================================================================
// Batch
// ============================================================================

// Batch is a group of source/target sentences padded to a common length.
// Row b of Src and Tgt holds example b; positions past the length carry Pad.
type Batch struct {
	// Src holds source ids, one row per example
	Src [][]int

	// Tgt holds target ids including BOS and EOS, one row per example
	Tgt [][]int

	// SrcLengths and TgtLengths count the non-pad tokens of each row
	SrcLengths []int
	TgtLengths []int

	// Indices maps each row back to its sentence index in the corpus
	Indices []int

	// Pad is the padding id
	Pad int
}

// Size returns the number of examples in the batch.
func (b *Batch) Size() int {
	return len(b.Src)
}

// SrcTokens counts the non-pad source tokens.
func (b *Batch) SrcTokens() int {
	return sum(b.SrcLengths)
}

// TgtTokens counts the predicted target tokens (the BOS input is excluded).
func (b *Batch) TgtTokens() int {
	n := 0
	for _, l := range b.TgtLengths {
		if l > 1 {
			n += l - 1
		}
	}
	return n
}

// Reference returns the gold target of row i without BOS and EOS.
func (b *Batch) Reference(i int) []int {
	row := b.Tgt[i][:b.TgtLengths[i]]
	if len(row) > 0 && row[0] == BOS {
		row = row[1:]
	}
	if n := len(row); n > 0 && row[n-1] == EOS {
		row = row[:n-1]
	}
	return row
}

// ============================================================================
// Rollout
// ============================================================================

// Rollout is the output of one decoding pass over a batch.
// A stochastic rollout is consumed once for scoring and backward, then dropped.
type Rollout struct {
	// Tokens holds the chosen ids, one row per example, padded to Steps
	Tokens [][]int

	// LogProbs is Steps x B: log-probability of the chosen token at step t
	LogProbs *mat.Dense

	// Lengths is the number of steps taken by each example, up to and
	// including the first EOS, or Steps when no EOS was produced
	Lengths []int

	// Steps is the padded decoding length L
	Steps int

	// Greedy is true when the rollout was decoded with argmax
	Greedy bool
}

// Size returns the number of examples in the rollout.
func (r *Rollout) Size() int {
	return len(r.Tokens)
}

func sum(xs []int) int {
	n := 0
	for _, x := range xs {
		n += x
	}
	return n
}

//Personal.AI order the ending
