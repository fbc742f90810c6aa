package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
	"github.com/kirillkom/credential-verifier/internal/core/ports"
)

// Strategy is one way of turning document text into a classification.
// The set is closed: ModelStrategy and RuleStrategy are the only variants.
type Strategy interface {
	Method() domain.Method
	Classify(ctx context.Context, text string, docType domain.DocumentType) (domain.Classification, error)
	isStrategy()
}

// Curve maps a keyword match ratio to a confidence and status.
type Curve string

const (
	CurveCoarse    Curve = "coarse"
	CurveGraduated Curve = "graduated"
)

const (
	coarseVerifiedRatio = 0.3

	graduatedBase    = 0.3
	graduatedSlope   = 0.7
	graduatedCeiling = 0.95

	graduatedVerified      = 0.90
	graduatedLikelyValid   = 0.70
	graduatedPendingReview = 0.40

	scoreTolerance = 1e-9
)

func ParseCurve(raw string) (Curve, error) {
	switch Curve(strings.ToLower(strings.TrimSpace(raw))) {
	case CurveCoarse:
		return CurveCoarse, nil
	case CurveGraduated, "":
		return CurveGraduated, nil
	default:
		return "", domain.WrapError(domain.ErrInvalidInput, "parse curve", fmt.Errorf("unknown curve %q", raw))
	}
}

// Floor is the confidence the curve reports for a zero match ratio.
func (c Curve) Floor() float64 {
	conf, _ := c.Score(0)
	return conf
}

// Score returns the confidence rounded to two decimals and the status. The
// status is decided on the unrounded value, so a ratio just under a threshold
// never rounds its way into the higher band.
func (c Curve) Score(ratio float64) (float64, domain.VerificationStatus) {
	ratio = clamp01(ratio)
	if c == CurveCoarse {
		status := domain.StatusPendingReview
		if atLeast(ratio, coarseVerifiedRatio) {
			status = domain.StatusVerified
		}
		return roundTo(ratio, 2), status
	}

	raw := math.Min(graduatedBase+ratio*graduatedSlope, graduatedCeiling)
	status := domain.StatusSuspicious
	switch {
	case atLeast(raw, graduatedVerified):
		status = domain.StatusVerified
	case atLeast(raw, graduatedLikelyValid):
		status = domain.StatusLikelyValid
	case atLeast(raw, graduatedPendingReview):
		status = domain.StatusPendingReview
	}
	return roundTo(raw, 2), status
}

type ModelStrategy struct {
	backend    ports.SequenceClassifier
	threshold  float64
	validIndex int
}

func NewModelStrategy(backend ports.SequenceClassifier, threshold float64, validIndex int) *ModelStrategy {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.7
	}
	if validIndex < 0 || validIndex > 1 {
		validIndex = 1
	}
	return &ModelStrategy{
		backend:    backend,
		threshold:  threshold,
		validIndex: validIndex,
	}
}

func (s *ModelStrategy) Method() domain.Method { return domain.MethodModel }

func (s *ModelStrategy) isStrategy() {}

func (s *ModelStrategy) Classify(ctx context.Context, text string, _ domain.DocumentType) (domain.Classification, error) {
	if s.backend == nil {
		return domain.Classification{}, errors.New("model backend is not loaded")
	}
	logits, err := s.backend.Logits(ctx, text)
	if err != nil {
		return domain.Classification{}, fmt.Errorf("model inference: %w", err)
	}
	if len(logits) != 2 {
		return domain.Classification{}, fmt.Errorf("model inference: expected 2 logits, got %d", len(logits))
	}

	probs := softmax(logits)
	p := probs[s.validIndex]
	if math.IsNaN(p) {
		return domain.Classification{}, errors.New("model inference: probability is NaN")
	}

	status := domain.StatusPendingReview
	if atLeast(p, s.threshold) {
		status = domain.StatusVerified
	}
	return domain.Classification{
		Status:     status,
		Confidence: roundTo(p, 2),
		Method:     domain.MethodModel,
	}, nil
}

type RuleStrategy struct {
	lexicon domain.Lexicon
	curve   Curve
}

func NewRuleStrategy(lexicon domain.Lexicon, curve Curve) *RuleStrategy {
	normalized := make(domain.Lexicon, len(lexicon))
	for docType, keywords := range lexicon {
		out := make([]string, 0, len(keywords))
		for _, kw := range keywords {
			if kw = domain.NormalizeText(kw); kw != "" {
				out = append(out, kw)
			}
		}
		normalized[docType] = out
	}
	if curve == "" {
		curve = CurveGraduated
	}
	return &RuleStrategy{lexicon: normalized, curve: curve}
}

func (s *RuleStrategy) Method() domain.Method { return domain.MethodRules }

func (s *RuleStrategy) isStrategy() {}

func (s *RuleStrategy) Curve() Curve { return s.curve }

// Match reports the lexicon phrases present in text, in lexicon order, and the
// raw match ratio. An unknown document type has an empty lexicon and ratio 0.
func (s *RuleStrategy) Match(text string, docType domain.DocumentType) ([]string, float64) {
	keywords := s.lexicon.Keywords(docType)
	matched := []string{}
	if len(keywords) == 0 {
		return matched, 0
	}
	normalized := domain.NormalizeText(text)
	for _, kw := range keywords {
		if strings.Contains(normalized, kw) {
			matched = append(matched, kw)
		}
	}
	return matched, float64(len(matched)) / float64(len(keywords))
}

func (s *RuleStrategy) Classify(_ context.Context, text string, docType domain.DocumentType) (domain.Classification, error) {
	matched, ratio := s.Match(text, docType)
	conf, status := s.curve.Score(ratio)
	return domain.Classification{
		Status:          status,
		Confidence:      conf,
		Method:          domain.MethodRules,
		MatchedKeywords: matched,
		MatchRatio:      ratio,
	}, nil
}

func softmax(logits []float32) []float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = math.Max(maxLogit, float64(l))
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// atLeast absorbs float noise from ratio arithmetic such as 0.3+4/7*0.7.
func atLeast(v, threshold float64) bool {
	return v >= threshold-scoreTolerance
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
