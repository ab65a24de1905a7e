package nmt

import (
	"strings"

	"github.com/openeeap/nmtrl/pkg/errors"
)

// bpeMarker joins a subword to the following one.
const bpeMarker = "@@ "

// Materialize converts the decoded ids of example index into words for
// scoring. The dictionary must yield exactly length tokens, counting the
// terminating EOS; any other count is an invariant violation. The EOS word
// itself is dropped from the result.
func Materialize(dict Dictionary, index int, ids []int, length int) ([]string, error) {
	tokens := dict.ConvertIDsToTokens(ids, EOS)
	if len(tokens) != length {
		return nil, errors.NewFromCodef(errors.ErrTrainLengthMismatch, index, len(tokens), length)
	}
	if n := len(tokens); n > 0 && tokens[n-1] == EosWord {
		tokens = tokens[:n-1]
	}
	return tokens, nil
}

// Words converts reference ids into words without any stop handling.
func Words(dict Dictionary, ids []int) []string {
	return dict.ConvertIDsToTokens(ids, -1)
}

// RemoveBPE merges subword units split with the "@@ " convention.
func RemoveBPE(tokens []string) []string {
	if len(tokens) == 0 {
		return tokens
	}
	joined := strings.Join(tokens, " ") + " "
	joined = strings.ReplaceAll(joined, bpeMarker, "")
	return strings.Fields(joined)
}

//Personal.AI order the ending
