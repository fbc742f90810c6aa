package usecase

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
)

type extractorFake struct {
	extraction domain.Extraction
	panicWith  any
	paths      []string
}

func (f *extractorFake) Extract(_ context.Context, path string) domain.Extraction {
	f.paths = append(f.paths, path)
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.extraction
}

type observerFake struct {
	results   []domain.VerificationResult
	fallbacks []domain.DocumentType
}

func (f *observerFake) ObserveVerification(result domain.VerificationResult) {
	f.results = append(f.results, result)
}

func (f *observerFake) ObserveModelFallback(docType domain.DocumentType) {
	f.fallbacks = append(f.fallbacks, docType)
}

type registryFake struct {
	record domain.RegistryRecord
	calls  []string
}

func (f *registryFake) Verify(_ context.Context, number string) domain.RegistryRecord {
	f.calls = append(f.calls, number)
	rec := f.record
	rec.RegistrationNumber = number
	return rec
}

func okExtraction(text string) domain.Extraction {
	return domain.Extraction{Text: text, Source: domain.SourceOCR, Pages: 1, Outcome: domain.OutcomeOK}
}

func newTestVerifier(t *testing.T, opts VerifierOptions) *Verifier {
	t.Helper()
	if opts.Corrector == nil {
		c, err := NewCorrector(domain.DefaultCorrectionRules())
		if err != nil {
			t.Fatalf("NewCorrector() error = %v", err)
		}
		opts.Corrector = c
	}
	return NewVerifier(opts)
}

func TestVerifyMissingFileReturnsError(t *testing.T) {
	obs := &observerFake{}
	v := newTestVerifier(t, VerifierOptions{
		Extractor: &extractorFake{extraction: domain.Extraction{Outcome: domain.OutcomeMissing, Source: domain.SourceNone}},
		Observer:  obs,
	})

	res := v.Verify(context.Background(), "/nope.png", domain.DocumentLicense, nil)
	if res.Status != domain.StatusError || res.Method != domain.MethodBasic || res.Message != "not found" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(obs.results) != 1 {
		t.Fatalf("expected result to be observed once, got %d", len(obs.results))
	}
}

func TestVerifyEmptyTextIsPendingReviewAtCurveFloor(t *testing.T) {
	v := newTestVerifier(t, VerifierOptions{
		Extractor: &extractorFake{extraction: domain.Extraction{
			Outcome: domain.OutcomeFailed,
			Source:  domain.SourceNone,
			Err:     errors.New("decode image: unknown format"),
		}},
	})

	res := v.Verify(context.Background(), "blank.png", domain.DocumentLicense, nil)
	if res.Status != domain.StatusPendingReview {
		t.Fatalf("expected pending_review, got %s", res.Status)
	}
	if res.Confidence != 0.3 {
		t.Fatalf("expected floor confidence 0.3, got %v", res.Confidence)
	}
	if res.Message != "could not extract text" || res.Error == "" {
		t.Fatalf("unexpected result: %+v", res)
	}

	coarse := newTestVerifier(t, VerifierOptions{
		Extractor: &extractorFake{extraction: domain.Extraction{Outcome: domain.OutcomeEmpty}},
		Curve:     CurveCoarse,
	})
	res = coarse.Verify(context.Background(), "blank.png", domain.DocumentLicense, nil)
	if res.Status != domain.StatusPendingReview || res.Confidence != 0 {
		t.Fatalf("unexpected coarse result: %+v", res)
	}
}

func TestVerifyRuleOnlyAppliesCorrectionsBeforeMatching(t *testing.T) {
	v := newTestVerifier(t, VerifierOptions{
		Extractor: &extractorFake{extraction: okExtraction("rnedical l1cense board certified phvsician")},
	})

	res := v.Verify(context.Background(), "card.png", domain.DocumentLicense, &domain.DoctorMetadata{Name: "Dr. Ayesha Khan"})
	want := []string{"license", "medical", "physician", "board"}
	if !reflect.DeepEqual(res.KeywordMatches, want) {
		t.Fatalf("unexpected matches: %v", res.KeywordMatches)
	}
	if res.Method != domain.MethodRules || res.Status != domain.StatusPendingReview {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.DoctorName != "Dr. Ayesha Khan" {
		t.Fatalf("expected doctor name pass-through, got %q", res.DoctorName)
	}
	if res.TextSample != "medical license board certified physician" {
		t.Fatalf("unexpected text sample: %q", res.TextSample)
	}
	if v.Mode() != "rules" {
		t.Fatalf("expected rules mode, got %s", v.Mode())
	}
}

func TestVerifyIsIdempotentInRuleMode(t *testing.T) {
	v := newTestVerifier(t, VerifierOptions{
		Extractor: &extractorFake{extraction: okExtraction("university faculty of medicine mbbs degree awarded")},
	})
	a := v.Verify(context.Background(), "degree.pdf", domain.DocumentDegree, nil)
	b := v.Verify(context.Background(), "degree.pdf", domain.DocumentDegree, nil)
	if a.Status != b.Status || a.Confidence != b.Confidence || !reflect.DeepEqual(a.KeywordMatches, b.KeywordMatches) {
		t.Fatalf("expected identical results, got %+v and %+v", a, b)
	}
}

func TestVerifyPrefersModelAndKeepsKeywordEvidence(t *testing.T) {
	backend := &logitsFake{logits: []float32{-1, 3}}
	v := newTestVerifier(t, VerifierOptions{
		Extractor: &extractorFake{extraction: okExtraction("medical license")},
		Model:     backend,
	})

	res := v.Verify(context.Background(), "card.png", domain.DocumentLicense, nil)
	if res.Method != domain.MethodModel || res.Status != domain.StatusVerified {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Confidence != 0.98 {
		t.Fatalf("expected confidence 0.98, got %v", res.Confidence)
	}
	if !reflect.DeepEqual(res.KeywordMatches, []string{"license", "medical"}) {
		t.Fatalf("expected keyword evidence, got %v", res.KeywordMatches)
	}
	if v.Mode() != "model" {
		t.Fatalf("expected model mode, got %s", v.Mode())
	}
}

func TestVerifyFallsBackToRulesForFailedCallOnly(t *testing.T) {
	backend := &logitsFake{err: errors.New("ort run failed")}
	obs := &observerFake{}
	v := newTestVerifier(t, VerifierOptions{
		Extractor: &extractorFake{extraction: okExtraction("medical license board physician")},
		Model:     backend,
		Observer:  obs,
	})

	res := v.Verify(context.Background(), "card.png", domain.DocumentLicense, nil)
	if res.Method != domain.MethodRules {
		t.Fatalf("expected rule fallback, got %s", res.Method)
	}
	if res.FallbackReason == "" {
		t.Fatalf("expected fallback reason")
	}
	if len(obs.fallbacks) != 1 || obs.fallbacks[0] != domain.DocumentLicense {
		t.Fatalf("unexpected fallbacks: %v", obs.fallbacks)
	}

	backend.err = nil
	backend.logits = []float32{2, 0}
	res = v.Verify(context.Background(), "card.png", domain.DocumentLicense, nil)
	if res.Method != domain.MethodModel || res.Status != domain.StatusPendingReview {
		t.Fatalf("expected model to be used again, got %+v", res)
	}
	if backend.calls != 2 {
		t.Fatalf("expected 2 model calls, got %d", backend.calls)
	}
}

func TestVerifyRecoversFromPanic(t *testing.T) {
	v := newTestVerifier(t, VerifierOptions{
		Extractor: &extractorFake{panicWith: "boom"},
	})
	res := v.Verify(context.Background(), "card.png", domain.DocumentDegree, &domain.DoctorMetadata{Name: "Dr. B"})
	if res.Status != domain.StatusError || res.Error != "boom" || res.Method != domain.MethodBasic {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.DoctorName != "Dr. B" {
		t.Fatalf("expected doctor name to survive panic, got %q", res.DoctorName)
	}
}

func TestVerifyRegistryConfirmationOverridesStatus(t *testing.T) {
	reg := &registryFake{record: domain.RegistryRecord{Verified: true, Status: domain.StatusVerified, Source: "registry"}}
	v := newTestVerifier(t, VerifierOptions{
		Extractor: &extractorFake{extraction: okExtraction("medical license registration 12345 p")},
		Registry:  reg,
	})

	res := v.Verify(context.Background(), "card.png", domain.DocumentLicense, nil)
	if len(reg.calls) != 1 || reg.calls[0] != "12345" {
		t.Fatalf("unexpected registry calls: %v", reg.calls)
	}
	if res.Method != domain.MethodRegistry || res.Status != domain.StatusVerified || res.Confidence != 0.95 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Registry == nil || res.Registry.RegistrationNumber != "12345" {
		t.Fatalf("expected registry record, got %+v", res.Registry)
	}
}

func TestVerifyRegistryPrefersSuppliedNumberAndSkipsDegrees(t *testing.T) {
	reg := &registryFake{record: domain.RegistryRecord{Verified: false, Status: domain.StatusRejected}}
	v := newTestVerifier(t, VerifierOptions{
		Extractor: &extractorFake{extraction: okExtraction("medical license 99999")},
		Registry:  reg,
	})

	res := v.Verify(context.Background(), "card.png", domain.DocumentLicense, &domain.DoctorMetadata{RegistrationNumber: "55555-P"})
	if len(reg.calls) != 1 || reg.calls[0] != "55555-P" {
		t.Fatalf("unexpected registry calls: %v", reg.calls)
	}
	if res.Method != domain.MethodRules || res.Registry == nil || res.Registry.Status != domain.StatusRejected {
		t.Fatalf("unexpected result: %+v", res)
	}

	_ = v.Verify(context.Background(), "degree.png", domain.DocumentDegree, nil)
	if len(reg.calls) != 1 {
		t.Fatalf("registry must not be consulted for degrees, calls=%v", reg.calls)
	}
}
