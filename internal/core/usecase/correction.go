package usecase

import (
	"fmt"
	"regexp"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
)

type compiledCorrection struct {
	pattern     *regexp.Regexp
	replacement string
}

// Corrector repairs recurring OCR misreads of domain terms. Rules apply once,
// in table order, over the whole extracted text.
type Corrector struct {
	rules []compiledCorrection
}

func NewCorrector(rules []domain.CorrectionRule) (*Corrector, error) {
	compiled := make([]compiledCorrection, 0, len(rules))
	for i, rule := range rules {
		if rule.Pattern == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "compile correction", fmt.Errorf("rule %d has empty pattern", i))
		}
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "compile correction", fmt.Errorf("rule %d: %w", i, err))
		}
		compiled = append(compiled, compiledCorrection{pattern: re, replacement: rule.Replacement})
	}
	return &Corrector{rules: compiled}, nil
}

func (c *Corrector) Apply(text string) string {
	if c == nil {
		return text
	}
	for _, rule := range c.rules {
		text = rule.pattern.ReplaceAllLiteralString(text, rule.replacement)
	}
	return text
}

func (c *Corrector) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}
