package corpus

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/openeeap/nmtrl/internal/domain/nmt"
	"github.com/openeeap/nmtrl/internal/observability/logging"
	"github.com/openeeap/nmtrl/pkg/config"
	"github.com/openeeap/nmtrl/pkg/errors"
)

// maxLineBytes bounds a single corpus line.
const maxLineBytes = 1 << 20

// Bundle is the loaded training data: one corpus per configured pair and one
// dictionary per language, shared by every pair that uses the language.
type Bundle struct {
	Corpora      []*nmt.Corpus
	Dictionaries map[string]*Dictionary
}

// Languages returns the dictionaries as the domain interface.
func (b *Bundle) Languages() []nmt.Dictionary {
	out := make([]nmt.Dictionary, 0, len(b.Dictionaries))
	for _, d := range b.Dictionaries {
		out = append(out, d)
	}
	return out
}

// LoadOptions tunes Load.
type LoadOptions struct {
	// BatchSize is the number of sentence pairs per batch
	BatchSize int

	// Dictionaries reuses existing vocabularies, e.g. from a checkpoint.
	// Languages missing here are built from the training data.
	Dictionaries map[string]*Dictionary
}

type rawPair struct {
	cfg                config.CorpusConfig
	trainSrc, trainTgt [][]string
	validSrc, validTgt [][]string
}

// Load reads every configured pair, builds the dictionaries and batches the
// training and validation splits.
func Load(ctx context.Context, cfg config.DataConfig, opts LoadOptions, logger logging.Logger) (*Bundle, error) {
	if logger == nil {
		logger = logging.NewNoopLogger()
	}

	raws := make([]rawPair, 0, len(cfg.Pairs))
	for _, pc := range cfg.Pairs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := readPair(pc)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}

	// collect training sentences per language for dictionary building
	byLang := make(map[string][][]string)
	for _, raw := range raws {
		byLang[raw.cfg.Src] = append(byLang[raw.cfg.Src], raw.trainSrc...)
		byLang[raw.cfg.Tgt] = append(byLang[raw.cfg.Tgt], raw.trainTgt...)
	}
	dicts := make(map[string]*Dictionary, len(byLang))
	for lang, sentences := range byLang {
		if d, ok := opts.Dictionaries[lang]; ok {
			dicts[lang] = d
			continue
		}
		dicts[lang] = BuildDictionary(lang, sentences, max(cfg.MinFrequency, 1), cfg.VocabSize)
	}

	bundle := &Bundle{Dictionaries: dicts}
	for id, raw := range raws {
		srcDict, tgtDict := dicts[raw.cfg.Src], dicts[raw.cfg.Tgt]

		train, err := NewDataset(encodeAll(srcDict, raw.trainSrc), encodeAll(tgtDict, raw.trainTgt), opts.BatchSize, cfg.MaxSentenceLength)
		if err != nil {
			return nil, err
		}
		if train.Len() == 0 {
			return nil, errors.NewFromCodef(errors.ErrDataEmptyCorpus, raw.cfg.Pair().String())
		}
		valid, err := NewDataset(encodeAll(srcDict, raw.validSrc), encodeAll(tgtDict, raw.validTgt), opts.BatchSize, 0)
		if err != nil {
			return nil, err
		}

		bundle.Corpora = append(bundle.Corpora, &nmt.Corpus{
			ID:      id,
			Pair:    raw.cfg.Pair(),
			Train:   train,
			Valid:   valid,
			SrcDict: srcDict,
			TgtDict: tgtDict,
			Weight:  raw.cfg.Weight,
		})

		logger.WithContext(ctx).Info("Corpus loaded",
			logging.String("pair", raw.cfg.Pair().String()),
			logging.Int("train_sentences", train.Sentences()),
			logging.Int("train_batches", train.Len()),
			logging.Int("valid_sentences", valid.Sentences()),
			logging.Int("src_vocab", srcDict.Size()),
			logging.Int("tgt_vocab", tgtDict.Size()))
	}
	return bundle, nil
}

func readPair(pc config.CorpusConfig) (rawPair, error) {
	raw := rawPair{cfg: pc}
	var err error
	if raw.trainSrc, err = ReadTokenized(pc.TrainSrc); err != nil {
		return raw, err
	}
	if raw.trainTgt, err = ReadTokenized(pc.TrainTgt); err != nil {
		return raw, err
	}
	if len(raw.trainSrc) != len(raw.trainTgt) {
		return raw, errors.NewFromCodef(errors.ErrDataParallelMismatch, len(raw.trainSrc), len(raw.trainTgt)).
			WithDetails("pair", pc.Pair().String())
	}
	if pc.ValidSrc == "" {
		return raw, nil
	}
	if raw.validSrc, err = ReadTokenized(pc.ValidSrc); err != nil {
		return raw, err
	}
	if raw.validTgt, err = ReadTokenized(pc.ValidTgt); err != nil {
		return raw, err
	}
	if len(raw.validSrc) != len(raw.validTgt) {
		return raw, errors.NewFromCodef(errors.ErrDataParallelMismatch, len(raw.validSrc), len(raw.validTgt)).
			WithDetails("pair", pc.Pair().String())
	}
	return raw, nil
}

// ReadTokenized reads one whitespace-tokenized sentence per line.
func ReadTokenized(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrDataOpen, path)
	}
	defer f.Close()

	var out [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		out = append(out, strings.Fields(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WrapFromCode(err, errors.ErrDataOpen, path)
	}
	return out, nil
}

func encodeAll(d *Dictionary, sentences [][]string) [][]int {
	out := make([][]int, len(sentences))
	for i, s := range sentences {
		out[i] = d.Encode(s)
	}
	return out
}

//Personal.AI order the ending
