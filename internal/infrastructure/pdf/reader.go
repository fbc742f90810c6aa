// Package pdf reads the text layer of PDF pages and pulls embedded raster
// images out of pages that have no text.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

type Reader struct {
	conf *model.Configuration
}

func NewReader() *Reader {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Reader{conf: model.NewDefaultConfiguration()}
}

// PageTexts returns the text layer of every page in page order. Pages with
// no text layer yield "".
func (r *Reader) PageTexts(ctx context.Context, path string) (pages []string, err error) {
	// The text layer parser panics on some malformed documents.
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("parse pdf text layer: %v", rec)
		}
	}()

	f, doc, err := ledongthuc.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	total := doc.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := doc.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read page %d text: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}
	return pages, nil
}

// PageImages returns the encoded bytes of every raster image embedded on the
// 1-based page.
func (r *Reader) PageImages(ctx context.Context, path string, page int) ([][]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var images [][]byte
	collect := func(img model.Image, _ bool, _ int) error {
		data, err := io.ReadAll(img)
		if err != nil {
			return fmt.Errorf("read image %s: %w", img.Name, err)
		}
		images = append(images, data)
		return nil
	}
	if err := api.ExtractImages(bytes.NewReader(raw), []string{strconv.Itoa(page)}, collect, r.conf); err != nil {
		return nil, fmt.Errorf("extract page %d images: %w", page, err)
	}
	return images, nil
}
