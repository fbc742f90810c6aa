package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/kirillkom/credential-verifier/internal/config"
	"github.com/kirillkom/credential-verifier/internal/core/domain"
	"github.com/kirillkom/credential-verifier/internal/core/ports"
	"github.com/kirillkom/credential-verifier/internal/core/usecase"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/extractor/document"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/imaging"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/inference/onnx"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/inference/remote"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/lexicon"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/ocr"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/pdf"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/registry/pmdc"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/resilience"
)

const (
	ModelBackendNone   = "none"
	ModelBackendONNX   = "onnx"
	ModelBackendRemote = "remote"

	// OCREngineNone is reported when no Tesseract backend could be started.
	OCREngineNone = "none"

	remotePingTimeout = 5 * time.Second
)

// VerifierBundle is the process-wide verification pipeline plus the
// resources it holds open.
type VerifierBundle struct {
	Verifier  *usecase.Verifier
	OCREngine string
	Lexicon   domain.Lexicon

	closers []io.Closer
}

func (b *VerifierBundle) Close() {
	for _, c := range b.closers {
		_ = c.Close()
	}
}

// NewVerifier builds the verification pipeline once per process. A missing
// OCR backend or model degrades the pipeline instead of failing startup;
// malformed configuration is an error.
func NewVerifier(cfg config.Config, logger *slog.Logger, observer ports.VerificationObserver) (*VerifierBundle, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bundle := &VerifierBundle{OCREngine: OCREngineNone}

	curve, err := usecase.ParseCurve(cfg.RuleCurve)
	if err != nil {
		return nil, err
	}
	tables, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		return nil, fmt.Errorf("load lexicon: %w", err)
	}
	bundle.Lexicon = tables.Lexicon
	corrector, err := usecase.NewCorrector(tables.Corrections)
	if err != nil {
		return nil, fmt.Errorf("compile corrections: %w", err)
	}

	var ocrEngine ports.OCREngine
	engine, err := ocr.New(ocr.Config{
		Engine:        cfg.OCREngine,
		Language:      cfg.OCRLanguage,
		TesseractPath: cfg.TesseractPath,
		ScratchDir:    cfg.ScratchPath,
		Preprocess: imaging.Options{
			DenoiseStrength: cfg.DenoiseH,
			TemplateWindow:  cfg.DenoiseTemplateSize,
			SearchWindow:    cfg.DenoiseSearchSize,
			UpscaleMinWidth: cfg.OCRUpscaleMinWidth,
			MaxPixels:       cfg.OCRMaxPixels,
		},
	}, logger)
	if err != nil {
		logger.Warn("ocr_unavailable", "engine", cfg.OCREngine, "error", err)
	} else {
		ocrEngine = engine
		bundle.OCREngine = engine.Name()
	}

	// Metrics observers also count upstream retries and breaker trips.
	upstream, _ := observer.(resilience.Observer)

	model, err := newModelBackend(cfg, logger, upstream)
	if err != nil {
		return nil, err
	}
	if closer, ok := model.(io.Closer); ok {
		bundle.closers = append(bundle.closers, closer)
	}

	var registry ports.RegistryVerifier
	if cfg.RegistryEnabled {
		execCfg := resilience.RegistryConfig(logger)
		execCfg.Observer = upstream
		registry = pmdc.New(pmdc.Options{
			Endpoint: cfg.RegistryURL,
			CacheTTL: cfg.RegistryCacheTTL,
			Executor: resilience.NewExecutor(execCfg),
			Logger:   logger,
		})
	}

	bundle.Verifier = usecase.NewVerifier(usecase.VerifierOptions{
		Extractor:       document.NewExtractor(ocrEngine, pdf.NewReader(), logger),
		Corrector:       corrector,
		Lexicon:         tables.Lexicon,
		Curve:           curve,
		Model:           model,
		ModelThreshold:  cfg.ModelThreshold,
		ModelValidIndex: cfg.ModelValidIndex,
		Registry:        registry,
		Observer:        observer,
		Logger:          logger,
		TextSampleChars: cfg.TextSampleChars,
	})
	logger.Info("verifier_ready",
		"classifier_mode", bundle.Verifier.Mode(),
		"ocr_engine", bundle.OCREngine,
		"curve", string(curve),
		"registry_enabled", cfg.RegistryEnabled,
		"document_types", bundle.Verifier.DocumentTypes(),
	)
	return bundle, nil
}

// newModelBackend returns nil when the verifier should run on rules only.
// A model that fails to load is logged once here and never retried.
func newModelBackend(cfg config.Config, logger *slog.Logger, upstream resilience.Observer) (ports.SequenceClassifier, error) {
	switch cfg.ModelBackend {
	case "", ModelBackendNone:
		return nil, nil
	case ModelBackendONNX:
		classifier, err := onnx.New(onnx.Config{
			LibraryPath:   cfg.ORTLibraryPath,
			ModelPath:     cfg.ModelPath,
			TokenizerPath: cfg.TokenizerPath,
			MaxSeqLen:     cfg.ModelMaxSeqLen,
		})
		if err != nil {
			logger.Warn("model_unavailable", "backend", ModelBackendONNX, "model_path", cfg.ModelPath, "error", err)
			return nil, nil
		}
		return classifier, nil
	case ModelBackendRemote:
		execCfg := resilience.InferenceConfig(logger)
		execCfg.Observer = upstream
		client := remote.New(cfg.InferenceURL, resilience.NewExecutor(execCfg))

		ctx, cancel := context.WithTimeout(context.Background(), remotePingTimeout)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			logger.Warn("model_unavailable", "backend", ModelBackendRemote, "inference_url", cfg.InferenceURL, "error", err)
			return nil, nil
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported MODEL_BACKEND %q", cfg.ModelBackend)
	}
}
