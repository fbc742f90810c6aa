package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/kirillkom/credential-verifier/internal/infrastructure/imaging"
)

type backendFake struct {
	calls int
	text  string
	err   error
}

func (f *backendFake) name() string { return "fake" }

func (f *backendFake) recognize(context.Context, []byte, string) (string, error) {
	f.calls++
	return f.text, f.err
}

func encodeTestImage(t *testing.T, inked bool) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 24, 12))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	if inked {
		for y := 3; y < 9; y++ {
			for x := 4; x < 20; x++ {
				img.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func testEngine(b backend) *Engine {
	return &Engine{pre: imaging.NewPreprocessor(imaging.Options{TemplateWindow: 3, SearchWindow: 5}), backend: b}
}

func TestRecognizeSkipsBlankImage(t *testing.T) {
	fake := &backendFake{text: "should not be used"}
	text, err := testEngine(fake).Recognize(context.Background(), encodeTestImage(t, false), "blank.png")
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "" || fake.calls != 0 {
		t.Fatalf("expected blank short-circuit, got text=%q calls=%d", text, fake.calls)
	}
}

func TestRecognizeDelegatesToBackend(t *testing.T) {
	fake := &backendFake{text: "MEDICAL LICENSE"}
	text, err := testEngine(fake).Recognize(context.Background(), encodeTestImage(t, true), "license.png")
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "MEDICAL LICENSE" || fake.calls != 1 {
		t.Fatalf("unexpected result text=%q calls=%d", text, fake.calls)
	}
}

func TestRecognizeWrapsBackendError(t *testing.T) {
	fake := &backendFake{err: errors.New("boom")}
	_, err := testEngine(fake).Recognize(context.Background(), encodeTestImage(t, true), "license.png")
	if err == nil || !strings.Contains(err.Error(), "fake recognize") {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
}

func TestRecognizeRejectsUndecodableInput(t *testing.T) {
	_, err := testEngine(&backendFake{}).Recognize(context.Background(), []byte("%PDF-1.4"), "scan.pdf")
	if err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestCLIBackendRunsTesseractAndCleansScratch(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	dir := t.TempDir()
	scratch := filepath.Join(dir, "scratch")
	script := filepath.Join(dir, "tesseract")
	body := "#!/bin/sh\n[ \"$2\" = \"stdout\" ] || exit 2\n[ -f \"$1\" ] || exit 3\n" +
		"case \"$1\" in */ocr-license-*.png) ;; *) exit 4 ;; esac\necho \"Medical License $4\"\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	engine, err := New(Config{Engine: EngineCLI, TesseractPath: script, ScratchDir: scratch, Language: "eng"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if engine.Name() != EngineCLI {
		t.Fatalf("expected cli engine, got %s", engine.Name())
	}

	text, err := engine.Recognize(context.Background(), encodeTestImage(t, true), "license.png")
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if text != "Medical License eng" {
		t.Fatalf("unexpected text %q", text)
	}

	entries, err := os.ReadDir(scratch)
	if err != nil {
		t.Fatalf("read scratch: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected scratch dir to be empty, found %d entries", len(entries))
	}
}

func TestScratchPatternUsesSourceName(t *testing.T) {
	cases := map[string]string{
		"/uploads/license.png": "ocr-license-*.png",
		"degree scan (2)-p1-1": "ocr-degree_scan__2_-p1-1-*.png",
		"":                     "ocr-*.png",
	}
	for source, want := range cases {
		if got := scratchPattern(source); got != want {
			t.Fatalf("scratchPattern(%q) = %q, want %q", source, got, want)
		}
	}

	long := scratchPattern(strings.Repeat("a", 60) + ".pdf")
	if long != "ocr-"+strings.Repeat("a", 40)+"-*.png" {
		t.Fatalf("expected hint truncated to 40 chars, got %q", long)
	}
}

func TestNewRejectsUnknownEngine(t *testing.T) {
	if _, err := New(Config{Engine: "abbyy"}, nil); err == nil {
		t.Fatalf("expected error for unknown engine")
	}
}

func TestNewCLIMissingBinary(t *testing.T) {
	_, err := New(Config{Engine: EngineCLI, TesseractPath: filepath.Join(t.TempDir(), "missing")}, nil)
	if !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
}
