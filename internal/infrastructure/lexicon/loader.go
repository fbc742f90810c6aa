// Package lexicon loads keyword and OCR correction overrides from YAML.
package lexicon

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
)

type file struct {
	Keywords    map[string][]string     `yaml:"keywords"`
	Corrections []domain.CorrectionRule `yaml:"corrections"`
}

// Tables holds the keyword lexicon and correction table in effect.
type Tables struct {
	Lexicon     domain.Lexicon
	Corrections []domain.CorrectionRule
}

func Defaults() Tables {
	return Tables{
		Lexicon:     domain.DefaultLexicon(),
		Corrections: domain.DefaultCorrectionRules(),
	}
}

// Load returns the defaults when path is empty. A document type listed in
// the file replaces that type's default keywords or registers a new type; a
// corrections list replaces the default table.
func Load(path string) (Tables, error) {
	tables := Defaults()
	if path == "" {
		return tables, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read lexicon file: %w", err)
	}
	var parsed file
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&parsed); err != nil {
		return Tables{}, domain.WrapError(domain.ErrInvalidInput, "parse lexicon file", err)
	}

	for rawType, keywords := range parsed.Keywords {
		docType, ok := domain.ParseDocumentType(rawType)
		if !ok {
			return Tables{}, domain.WrapError(domain.ErrInvalidInput, "parse lexicon file", fmt.Errorf("malformed document type %q", rawType))
		}
		if len(keywords) == 0 {
			return Tables{}, domain.WrapError(domain.ErrInvalidInput, "parse lexicon file", fmt.Errorf("empty keyword list for %s", docType))
		}
		tables.Lexicon[docType] = keywords
	}
	if parsed.Corrections != nil {
		tables.Corrections = parsed.Corrections
	}
	return tables, nil
}
