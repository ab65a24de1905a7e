// Package types holds the small value types shared by the trainer, the
// storage adapters and the CLI.
package types

// LanguagePair names a source/target language combination, e.g. "de-en"
type LanguagePair struct {
	Src string `json:"src" yaml:"src" mapstructure:"src"`
	Tgt string `json:"tgt" yaml:"tgt" mapstructure:"tgt"`
}

// String returns the "src-tgt" form
func (lp LanguagePair) String() string {
	return lp.Src + "-" + lp.Tgt
}

//Personal.AI order the ending
