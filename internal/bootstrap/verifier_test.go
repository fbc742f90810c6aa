package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/kirillkom/credential-verifier/internal/config"
	"github.com/kirillkom/credential-verifier/internal/core/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		OCREngine:     "cli",
		TesseractPath: filepath.Join(t.TempDir(), "missing-tesseract"),
		ScratchPath:   t.TempDir(),
		RuleCurve:     "graduated",
		ModelBackend:  ModelBackendNone,
	}
}

func TestNewVerifierDegradesWithoutOCRAndModel(t *testing.T) {
	cfg := baseConfig(t)
	cfg.ModelBackend = ModelBackendONNX
	cfg.ModelPath = filepath.Join(t.TempDir(), "model.onnx")
	cfg.TokenizerPath = filepath.Join(t.TempDir(), "tokenizer.json")

	bundle, err := NewVerifier(cfg, quietLogger(), nil)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	defer bundle.Close()

	if bundle.Verifier.Mode() != "rules" {
		t.Fatalf("expected rule-only mode, got %s", bundle.Verifier.Mode())
	}
	if bundle.OCREngine != OCREngineNone {
		t.Fatalf("expected no OCR engine, got %s", bundle.OCREngine)
	}
}

func TestNewVerifierRejectsBadConfig(t *testing.T) {
	cases := map[string]func(*config.Config){
		"curve":   func(c *config.Config) { c.RuleCurve = "steep" },
		"backend": func(c *config.Config) { c.ModelBackend = "tensorflow" },
		"lexicon": func(c *config.Config) { c.LexiconPath = filepath.Join(os.TempDir(), "does-not-exist.yaml") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig(t)
			mutate(&cfg)
			if _, err := NewVerifier(cfg, quietLogger(), nil); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNewVerifierUnreachableRemoteFallsBackToRules(t *testing.T) {
	cfg := baseConfig(t)
	cfg.ModelBackend = ModelBackendRemote
	cfg.InferenceURL = "http://127.0.0.1:1"

	bundle, err := NewVerifier(cfg, quietLogger(), nil)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	if bundle.Verifier.Mode() != "rules" {
		t.Fatalf("expected rule-only mode, got %s", bundle.Verifier.Mode())
	}
}

func TestNewVerifierReachableRemoteSelectsModelMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"logits":[0.2,1.4]}`))
	}))
	defer server.Close()

	cfg := baseConfig(t)
	cfg.ModelBackend = ModelBackendRemote
	cfg.InferenceURL = server.URL

	bundle, err := NewVerifier(cfg, quietLogger(), nil)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	if bundle.Verifier.Mode() != "model" {
		t.Fatalf("expected model mode, got %s", bundle.Verifier.Mode())
	}
}

func TestVerifierReportsMissingDocument(t *testing.T) {
	bundle, err := NewVerifier(baseConfig(t), quietLogger(), nil)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}

	result := bundle.Verifier.Verify(context.Background(), filepath.Join(t.TempDir(), "gone.pdf"), domain.DocumentLicense, nil)
	if result.Status != domain.StatusError || result.Message != "not found" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestVerifyDegreeFromPDFTextLayer(t *testing.T) {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	doc.SetFont("Helvetica", "", 14)
	doc.Cell(180, 10, "Doctor of Medicine, MBBS, University Faculty of Medicine")
	path := filepath.Join(t.TempDir(), "degree.pdf")
	if err := doc.OutputFileAndClose(path); err != nil {
		t.Fatalf("write pdf: %v", err)
	}

	bundle, err := NewVerifier(baseConfig(t), quietLogger(), nil)
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	defer bundle.Close()

	result := bundle.Verifier.Verify(context.Background(), path, domain.DocumentDegree, nil)
	if result.ExtractionSource != domain.SourceTextLayer || result.OCRImages != 0 {
		t.Fatalf("expected text layer without OCR, got %+v", result)
	}
	if result.Method != domain.MethodRules || result.DocumentType != domain.DocumentDegree {
		t.Fatalf("unexpected classification: %+v", result)
	}
	matched := map[string]bool{}
	for _, kw := range result.KeywordMatches {
		matched[kw] = true
	}
	for _, kw := range []string{"doctor", "medicine", "mbbs", "university", "faculty"} {
		if !matched[kw] {
			t.Fatalf("expected %q in matches %v", kw, result.KeywordMatches)
		}
	}
}

func TestNewQueueRejectsUnknownMode(t *testing.T) {
	if _, _, err := newQueue(config.Config{QueueMode: "kafka"}, quietLogger()); err == nil {
		t.Fatalf("expected error for unknown queue mode")
	}
	q, closeFn, err := newQueue(config.Config{QueueMode: QueueModeInline}, quietLogger())
	if err != nil || q == nil {
		t.Fatalf("inline queue: q=%v err=%v", q, err)
	}
	closeFn()
}
