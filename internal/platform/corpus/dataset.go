package corpus

import (
	"sort"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/pkg/errors"
)

// Dataset splits encoded sentence pairs into fixed batches. Pairs are sorted
// by source length first so that batches carry little padding.
type Dataset struct {
	src       [][]int
	tgt       [][]int
	indices   []int
	batchSize int
}

// NewDataset builds a dataset from encoded source and target sentences
// (targets without BOS/EOS). Pairs with either side longer than maxLen are
// dropped when maxLen > 0, as are pairs with an empty side.
func NewDataset(src, tgt [][]int, batchSize, maxLen int) (*Dataset, error) {
	if len(src) != len(tgt) {
		return nil, errors.NewFromCodef(errors.ErrDataParallelMismatch, len(src), len(tgt))
	}
	if batchSize <= 0 {
		return nil, errors.ValidationErrorf("batch size must be positive, got %d", batchSize)
	}

	keep := make([]int, 0, len(src))
	for i := range src {
		if len(src[i]) == 0 || len(tgt[i]) == 0 {
			continue
		}
		if maxLen > 0 && (len(src[i]) > maxLen || len(tgt[i]) > maxLen) {
			continue
		}
		keep = append(keep, i)
	}
	sort.SliceStable(keep, func(a, b int) bool {
		return len(src[keep[a]]) < len(src[keep[b]])
	})

	d := &Dataset{batchSize: batchSize, indices: keep}
	for _, i := range keep {
		d.src = append(d.src, src[i])
		d.tgt = append(d.tgt, tgt[i])
	}
	return d, nil
}

// Len implements nmt.Dataset.
func (d *Dataset) Len() int {
	return (len(d.src) + d.batchSize - 1) / d.batchSize
}

// Sentences returns the number of sentence pairs kept.
func (d *Dataset) Sentences() int {
	return len(d.src)
}

// Batch implements nmt.Dataset. Targets are wrapped in BOS and EOS and every
// row is padded with PAD to the longest row of the batch.
func (d *Dataset) Batch(i int) (*nmt.Batch, error) {
	if i < 0 || i >= d.Len() {
		return nil, errors.NewFromCodef(errors.ErrDataBatchOutOfRange, i, d.Len())
	}
	lo := i * d.batchSize
	hi := min(lo+d.batchSize, len(d.src))

	b := &nmt.Batch{Pad: nmt.PAD}
	srcMax, tgtMax := 0, 0
	for j := lo; j < hi; j++ {
		srcMax = max(srcMax, len(d.src[j]))
		tgtMax = max(tgtMax, len(d.tgt[j])+2)
	}
	for j := lo; j < hi; j++ {
		srcRow := pad(d.src[j], srcMax)
		tgtRow := make([]int, 0, tgtMax)
		tgtRow = append(tgtRow, nmt.BOS)
		tgtRow = append(tgtRow, d.tgt[j]...)
		tgtRow = append(tgtRow, nmt.EOS)
		tgtLen := len(tgtRow)

		b.Src = append(b.Src, srcRow)
		b.Tgt = append(b.Tgt, pad(tgtRow, tgtMax))
		b.SrcLengths = append(b.SrcLengths, len(d.src[j]))
		b.TgtLengths = append(b.TgtLengths, tgtLen)
		b.Indices = append(b.Indices, d.indices[j])
	}
	return b, nil
}

func pad(ids []int, n int) []int {
	out := make([]int, n)
	copy(out, ids)
	for k := len(ids); k < n; k++ {
		out[k] = nmt.PAD
	}
	return out
}

//Personal.AI order the ending
