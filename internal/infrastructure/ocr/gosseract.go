//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// gosseractBackend uses the libtesseract binding. A client is created per
// call since gosseract clients are not safe for concurrent use.
type gosseractBackend struct {
	language string
	factory  func() *gosseract.Client
}

func newGosseractBackend(language string) (backend, error) {
	return &gosseractBackend{language: language, factory: gosseract.NewClient}, nil
}

func (b *gosseractBackend) name() string { return EngineGosseract }

func (b *gosseractBackend) recognize(ctx context.Context, png []byte, _ string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	c := b.factory()
	defer c.Close()

	if err := c.SetLanguage(b.language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := c.SetImageFromBytes(png); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
