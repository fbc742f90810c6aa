// Package report renders batch verification results as JSON, xlsx or pdf.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
)

// Row is one verified file.
type Row struct {
	File   string                    `json:"file"`
	Result domain.VerificationResult `json:"result"`
}

var header = []string{
	"File", "Type", "Status", "Confidence", "Method", "Keywords", "Match Ratio",
	"Source", "Pages", "Registry", "Message", "Error",
}

func columns(r Row) []any {
	registry := ""
	if r.Result.Registry != nil {
		registry = string(r.Result.Registry.Status)
	}
	return []any{
		filepath.Base(r.File),
		string(r.Result.DocumentType),
		string(r.Result.Status),
		r.Result.Confidence,
		string(r.Result.Method),
		strings.Join(r.Result.KeywordMatches, ", "),
		r.Result.MatchRatio,
		string(r.Result.ExtractionSource),
		r.Result.Pages,
		registry,
		r.Result.Message,
		r.Result.Error,
	}
}

func WriteJSON(w io.Writer, rows []Row) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rows); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	return nil
}

// WriteFile picks the format from the file extension.
func WriteFile(path string, rows []Row) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure report directory: %w", err)
		}
	}

	var write func(io.Writer, []Row) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		write = WriteXLSX
	case ".pdf":
		write = WritePDF
	case ".json":
		write = WriteJSON
	default:
		return fmt.Errorf("unsupported report format %q", filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := write(f, rows); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	return nil
}
