package document

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
	"github.com/kirillkom/credential-verifier/internal/core/ports"
)

// PDFReader exposes the two PDF operations the extractor needs.
type PDFReader interface {
	PageTexts(ctx context.Context, path string) ([]string, error)
	PageImages(ctx context.Context, path string, page int) ([][]byte, error)
}

// ErrOCRUnavailable is reported when an image must be OCR'd but no engine
// is configured.
var ErrOCRUnavailable = errors.New("no OCR engine configured")

// Extractor turns a credential file on disk into normalized text. It never
// fails: problems are reported through the Extraction outcome.
type Extractor struct {
	ocr    ports.OCREngine
	pdf    PDFReader
	logger *slog.Logger
}

var _ ports.TextExtractor = (*Extractor)(nil)

// NewExtractor accepts a nil OCR engine; PDF text layers still work then.
func NewExtractor(ocr ports.OCREngine, pdf PDFReader, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{ocr: ocr, pdf: pdf, logger: logger}
}

func (e *Extractor) Extract(ctx context.Context, path string) domain.Extraction {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Extraction{Source: domain.SourceNone, Outcome: domain.OutcomeMissing, Err: err}
		}
		return failed(fmt.Errorf("stat document: %w", err))
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return e.extractPDF(ctx, path)
	case ".png", ".jpg", ".jpeg":
		return e.extractImageFile(ctx, path)
	default:
		e.logger.Warn("unsupported_document_type", "path", path)
		return domain.Extraction{Source: domain.SourceNone, Outcome: domain.OutcomeUnsupported}
	}
}

func (e *Extractor) extractImageFile(ctx context.Context, path string) domain.Extraction {
	raw, err := os.ReadFile(path)
	if err != nil {
		return failed(fmt.Errorf("read image: %w", err))
	}
	text, err := e.recognize(ctx, raw, path)
	if err != nil {
		out := failed(err)
		out.Pages = 1
		return out
	}
	return finish(text, domain.SourceOCR, 1, 1)
}

func (e *Extractor) extractPDF(ctx context.Context, path string) domain.Extraction {
	if e.pdf == nil {
		return failed(errors.New("no PDF reader configured"))
	}
	pages, err := e.pdf.PageTexts(ctx, path)
	if err != nil {
		return failed(err)
	}

	var (
		parts     = make([]string, 0, len(pages))
		usedLayer bool
		usedOCR   bool
		ocrImages int
		ocrErr    error
	)
	for i, pageText := range pages {
		if strings.TrimSpace(pageText) != "" {
			parts = append(parts, pageText)
			usedLayer = true
			continue
		}

		images, err := e.pdf.PageImages(ctx, path, i+1)
		if err != nil {
			e.logger.Warn("pdf_page_images_failed", "path", path, "page", i+1, "error", err)
			ocrErr = err
			continue
		}
		for j, img := range images {
			ocrImages++
			source := fmt.Sprintf("%s-p%d-%d", strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), i+1, j+1)
			text, err := e.recognize(ctx, img, source)
			if err != nil {
				e.logger.Warn("pdf_image_ocr_failed", "path", path, "page", i+1, "error", err)
				ocrErr = err
				continue
			}
			if strings.TrimSpace(text) != "" {
				parts = append(parts, text)
				usedOCR = true
			}
		}
	}

	source := domain.SourceNone
	switch {
	case usedLayer && usedOCR:
		source = domain.SourceMixed
	case usedLayer:
		source = domain.SourceTextLayer
	case usedOCR:
		source = domain.SourceOCR
	}

	out := finish(strings.Join(parts, "\n"), source, len(pages), ocrImages)
	if out.Outcome == domain.OutcomeEmpty && ocrErr != nil {
		out.Outcome = domain.OutcomeFailed
		out.Err = ocrErr
	}
	return out
}

func (e *Extractor) recognize(ctx context.Context, image []byte, source string) (string, error) {
	if e.ocr == nil {
		return "", ErrOCRUnavailable
	}
	return e.ocr.Recognize(ctx, image, source)
}

func finish(raw string, source domain.ExtractionSource, pages, ocrImages int) domain.Extraction {
	text := domain.NormalizeText(raw)
	out := domain.Extraction{
		Text:      text,
		Source:    source,
		Pages:     pages,
		OCRImages: ocrImages,
		Outcome:   domain.OutcomeOK,
	}
	if text == "" {
		out.Outcome = domain.OutcomeEmpty
		out.Source = domain.SourceNone
	}
	return out
}

func failed(err error) domain.Extraction {
	return domain.Extraction{Source: domain.SourceNone, Outcome: domain.OutcomeFailed, Err: err}
}
