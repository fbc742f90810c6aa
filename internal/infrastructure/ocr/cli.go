package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const maxScratchHint = 40

// cliBackend shells out to the tesseract binary. The image goes through a
// scratch file that is removed on every path.
type cliBackend struct {
	path       string
	language   string
	scratchDir string
}

func newCLIBackend(cfg Config) (*cliBackend, error) {
	path := cfg.TesseractPath
	if path == "" {
		path = "tesseract"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found: %v", ErrEngineUnavailable, path, err)
	}
	if cfg.ScratchDir != "" {
		if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
	}
	return &cliBackend{path: resolved, language: cfg.Language, scratchDir: cfg.ScratchDir}, nil
}

func (b *cliBackend) name() string { return EngineCLI }

func (b *cliBackend) recognize(ctx context.Context, png []byte, source string) (string, error) {
	f, err := os.CreateTemp(b.scratchDir, scratchPattern(source))
	if err != nil {
		return "", fmt.Errorf("create scratch file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(png); err != nil {
		f.Close()
		return "", fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close scratch file: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.path, f.Name(), "stdout", "-l", b.language)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// scratchPattern derives a CreateTemp pattern from the source name so scratch
// files can be traced back to their document.
func scratchPattern(source string) string {
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	hint := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if len(hint) > maxScratchHint {
		hint = hint[:maxScratchHint]
	}
	if hint == "" || hint == "_" {
		return "ocr-*.png"
	}
	return "ocr-" + hint + "-*.png"
}
