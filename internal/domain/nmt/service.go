package nmt

import (
	"gonum.org/v1/gonum/mat"

	"github.com/openeeap/nmtrl/pkg/types"
)

// Model is the sequence-to-sequence network the trainer drives.
type Model interface {
	// Parameters lists every trainable tensor in a stable order
	Parameters() []*Parameter

	// ZeroGrad clears the gradient of every parameter
	ZeroGrad()

	// Train and Eval toggle between training and inference behaviour
	Train()
	Eval()

	// SwitchLanguagePair routes subsequent calls to the given language pair
	SwitchLanguagePair(src, tgt string) error

	// SwitchPairID selects the pair-specific sub-modules by corpus id
	SwitchPairID(id int) error

	// ForwardXE computes the summed token negative log-likelihood of the
	// gold targets. When backward is set the gradient of loss/normalizer is
	// added to the parameters' gradients.
	ForwardXE(batch *Batch, normalizer float64, backward bool) (float64, error)

	// Sample decodes the batch, stochastically or with argmax
	Sample(batch *Batch, argmax bool) (*Rollout, error)

	// Reinforce adds the gradient of -sum(logp[t][b] * weights[t][b]) for the
	// actions recorded in rollout to the parameters' gradients
	Reinforce(rollout *Rollout, weights *mat.Dense) error

	// LoadWeights overwrites parameter values by name
	LoadWeights(weights map[string]*mat.Dense) error
}

// Dictionary maps between token ids and words for one language.
type Dictionary interface {
	// ConvertIDsToTokens materializes ids up to and including stop
	ConvertIDsToTokens(ids []int, stop int) []string

	// Lookup returns the id of word, UNK when absent
	Lookup(word string) int

	// Size returns the vocabulary size
	Size() int

	// Lang returns the language code
	Lang() string

	// Words lists the vocabulary in id order
	Words() []string
}

// Dataset is a corpus split into fixed batches.
type Dataset interface {
	// Len returns the number of batches
	Len() int

	// Batch returns batch i
	Batch(i int) (*Batch, error)
}

// Corpus bundles everything the trainer needs for one language pair.
type Corpus struct {
	// ID is the pair id passed to Model.SwitchPairID
	ID int

	// Pair is the source/target language pair
	Pair types.LanguagePair

	// Train and Valid are the training and validation splits; Valid may be empty
	Train Dataset
	Valid Dataset

	// SrcDict and TgtDict are the vocabularies of each side
	SrcDict Dictionary
	TgtDict Dictionary

	// Weight overrides the sampling weight when positive
	Weight float64
}

//Personal.AI order the ending
