package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
	"github.com/kirillkom/credential-verifier/internal/core/ports"
)

const (
	defaultTextSampleChars = 500
	registryConfidence     = 0.95
)

type VerifierOptions struct {
	Extractor ports.TextExtractor
	Corrector *Corrector
	Lexicon   domain.Lexicon
	Curve     Curve

	// Model is nil when no classifier could be loaded; the verifier then runs
	// in rule-only mode for its whole lifetime.
	Model           ports.SequenceClassifier
	ModelThreshold  float64
	ModelValidIndex int

	Registry ports.RegistryVerifier
	Observer ports.VerificationObserver
	Logger   *slog.Logger

	TextSampleChars int
}

// Verifier runs the extract, correct, classify pipeline for one document at
// a time. It is built once per process and is safe for concurrent use.
type Verifier struct {
	extractor   ports.TextExtractor
	corrector   *Corrector
	lexicon     domain.Lexicon
	model       *ModelStrategy
	rules       *RuleStrategy
	registry    ports.RegistryVerifier
	observer    ports.VerificationObserver
	logger      *slog.Logger
	sampleChars int
}

func NewVerifier(opts VerifierOptions) *Verifier {
	lexicon := opts.Lexicon
	if lexicon == nil {
		lexicon = domain.DefaultLexicon()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	sampleChars := opts.TextSampleChars
	if sampleChars <= 0 {
		sampleChars = defaultTextSampleChars
	}

	v := &Verifier{
		extractor:   opts.Extractor,
		corrector:   opts.Corrector,
		lexicon:     lexicon,
		rules:       NewRuleStrategy(lexicon, opts.Curve),
		registry:    opts.Registry,
		observer:    observer,
		logger:      logger,
		sampleChars: sampleChars,
	}
	if opts.Model != nil {
		v.model = NewModelStrategy(opts.Model, opts.ModelThreshold, opts.ModelValidIndex)
	}
	return v
}

// Mode reports which strategy is preferred: "model" or "rules".
func (v *Verifier) Mode() string {
	if v.model != nil {
		return "model"
	}
	return "rules"
}

func (v *Verifier) Supports(docType domain.DocumentType) bool {
	return v.lexicon.Supports(docType)
}

func (v *Verifier) DocumentTypes() []domain.DocumentType {
	return v.lexicon.Types()
}

func (v *Verifier) Verify(
	ctx context.Context,
	path string,
	docType domain.DocumentType,
	doctor *domain.DoctorMetadata,
) (result domain.VerificationResult) {
	result = domain.VerificationResult{
		DocumentType:   docType,
		KeywordMatches: []string{},
	}
	if doctor != nil {
		result.DoctorName = doctor.Name
	}

	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("verification_panic", "path", path, "document_type", docType, "panic", fmt.Sprint(r))
			result = domain.VerificationResult{
				DocumentType:   docType,
				Status:         domain.StatusError,
				Method:         domain.MethodBasic,
				Message:        "verification failed",
				KeywordMatches: []string{},
				DoctorName:     result.DoctorName,
				Error:          fmt.Sprint(r),
			}
		}
		v.observer.ObserveVerification(result)
		v.logger.Info("verification_completed",
			"document_type", docType,
			"status", result.Status,
			"method", result.Method,
			"confidence", result.Confidence,
			"extraction_source", result.ExtractionSource,
			"extraction_ms", result.ExtractionMS,
			"classification_ms", result.ClassificationMS,
		)
	}()

	start := time.Now()
	extraction := v.extractor.Extract(ctx, path)
	result.ExtractionMS = elapsedMS(start)
	result.ExtractionSource = extraction.Source
	result.Pages = extraction.Pages
	result.OCRImages = extraction.OCRImages

	if extraction.Outcome == domain.OutcomeMissing {
		result.Status = domain.StatusError
		result.Method = domain.MethodBasic
		result.Message = "not found"
		return result
	}

	text := strings.TrimSpace(extraction.Text)
	if text == "" {
		if extraction.Err != nil {
			v.logger.Warn("extraction_failed", "path", path, "outcome", extraction.Outcome, "error", extraction.Err)
			result.Error = extraction.Err.Error()
		}
		result.Status = domain.StatusPendingReview
		result.Method = domain.MethodBasic
		result.Confidence = v.rules.Curve().Floor()
		result.Message = "could not extract text"
		return result
	}

	text = v.corrector.Apply(text)

	start = time.Now()
	cls, fallbackReason := v.classify(ctx, text, docType)
	result.ClassificationMS = elapsedMS(start)

	result.Status = cls.Status
	result.Confidence = cls.Confidence
	result.Method = cls.Method
	result.FallbackReason = fallbackReason
	if cls.Method == domain.MethodRules {
		result.KeywordMatches = cls.MatchedKeywords
		result.MatchRatio = roundTo(cls.MatchRatio, 4)
	} else {
		matched, ratio := v.rules.Match(text, docType)
		result.KeywordMatches = matched
		result.MatchRatio = roundTo(ratio, 4)
	}
	result.TextSample = domain.Truncate(text, v.sampleChars)

	if docType == domain.DocumentLicense && v.registry != nil {
		v.checkRegistry(ctx, text, doctor, &result)
	}
	return result
}

// classify prefers the model and falls back to rules for this call only.
func (v *Verifier) classify(ctx context.Context, text string, docType domain.DocumentType) (domain.Classification, string) {
	var strategy Strategy = v.rules
	if v.model != nil {
		strategy = v.model
	}

	cls, err := strategy.Classify(ctx, text, docType)
	if err == nil {
		return cls, ""
	}

	v.logger.Warn("model_fallback", "document_type", docType, "error", err)
	v.observer.ObserveModelFallback(docType)
	cls, _ = v.rules.Classify(ctx, text, docType)
	return cls, err.Error()
}

func (v *Verifier) checkRegistry(ctx context.Context, text string, doctor *domain.DoctorMetadata, result *domain.VerificationResult) {
	number := ""
	if doctor != nil {
		number = strings.TrimSpace(doctor.RegistrationNumber)
	}
	if number == "" {
		number = ExtractRegistrationNumber(text)
	}
	if number == "" {
		return
	}

	record := v.registry.Verify(ctx, number)
	result.Registry = &record
	if record.Verified {
		result.Status = domain.StatusVerified
		result.Confidence = registryConfidence
		result.Method = domain.MethodRegistry
	}
}

func elapsedMS(start time.Time) float64 {
	return roundTo(float64(time.Since(start).Microseconds())/1000.0, 2)
}

type noopObserver struct{}

func (noopObserver) ObserveVerification(domain.VerificationResult) {}

func (noopObserver) ObserveModelFallback(domain.DocumentType) {}
