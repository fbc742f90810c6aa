// Package ocr recognizes text in credential scans. Images are cleaned by the
// imaging preprocessor before they reach a Tesseract backend.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/kirillkom/credential-verifier/internal/core/ports"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/imaging"
)

const (
	EngineGosseract = "gosseract"
	EngineCLI       = "cli"
)

// ErrEngineUnavailable is returned when the requested backend is not compiled
// in or not installed.
var ErrEngineUnavailable = errors.New("ocr engine unavailable")

type Config struct {
	Engine        string
	Language      string
	TesseractPath string
	ScratchDir    string
	Preprocess    imaging.Options
}

// backend turns a preprocessed PNG into raw text.
type backend interface {
	name() string
	recognize(ctx context.Context, png []byte, source string) (string, error)
}

// Engine preprocesses images and hands them to a Tesseract backend.
type Engine struct {
	pre     *imaging.Preprocessor
	backend backend
}

var _ ports.OCREngine = (*Engine)(nil)

// New selects the configured backend. When the gosseract binding is not
// available it falls back to the tesseract command.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}

	var (
		b   backend
		err error
	)
	switch cfg.Engine {
	case "", EngineGosseract:
		b, err = newGosseractBackend(cfg.Language)
		if errors.Is(err, ErrEngineUnavailable) {
			logger.Warn("ocr_engine_fallback", "requested", EngineGosseract, "using", EngineCLI, "error", err)
			b, err = newCLIBackend(cfg)
		}
	case EngineCLI:
		b, err = newCLIBackend(cfg)
	default:
		return nil, fmt.Errorf("unsupported OCR_ENGINE %q", cfg.Engine)
	}
	if err != nil {
		return nil, err
	}
	return &Engine{pre: imaging.NewPreprocessor(cfg.Preprocess), backend: b}, nil
}

func (e *Engine) Name() string { return e.backend.name() }

// Recognize returns "" without invoking Tesseract when the cleaned image has
// no ink at all.
func (e *Engine) Recognize(ctx context.Context, raw []byte, source string) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	cleaned, err := e.pre.Clean(ctx, img)
	if err != nil {
		return "", fmt.Errorf("preprocess image: %w", err)
	}
	if imaging.IsBlank(cleaned) {
		return "", nil
	}

	var buf bytes.Buffer
	if err := encodePNG(&buf, cleaned); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := e.backend.recognize(ctx, buf.Bytes(), source)
	if err != nil {
		return "", fmt.Errorf("%s recognize: %w", e.backend.name(), err)
	}
	return text, nil
}
