// Package onnx runs a two-class sequence classification model exported to
// ONNX, tokenized with a HuggingFace tokenizer.json.
package onnx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/kirillkom/credential-verifier/internal/core/ports"
)

const defaultMaxSeqLen = 512

// ErrClosed is returned by Logits after Close.
var ErrClosed = errors.New("onnx classifier is closed")

type Config struct {
	LibraryPath   string
	ModelPath     string
	TokenizerPath string
	MaxSeqLen     int
	NumLabels     int
}

var (
	envOnce sync.Once
	envErr  error
)

func initEnvironment(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

type Classifier struct {
	mu        sync.Mutex
	session   *ort.DynamicAdvancedSession
	tk        *tokenizer.Tokenizer
	maxSeqLen int
	numLabels int
}

var _ ports.SequenceClassifier = (*Classifier)(nil)

func New(cfg Config) (*Classifier, error) {
	if cfg.ModelPath == "" || cfg.TokenizerPath == "" {
		return nil, errors.New("onnx classifier requires MODEL_PATH and TOKENIZER_PATH")
	}
	if cfg.MaxSeqLen <= 0 {
		cfg.MaxSeqLen = defaultMaxSeqLen
	}
	if cfg.NumLabels <= 0 {
		cfg.NumLabels = 2
	}

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}
	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &Classifier{
		session:   session,
		tk:        tk,
		maxSeqLen: cfg.MaxSeqLen,
		numLabels: cfg.NumLabels,
	}, nil
}

func (c *Classifier) Logits(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.closed() {
		return nil, ErrClosed
	}

	enc, err := c.tk.EncodeSingle(text, true)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	ids, mask := fitSequence(enc.Ids, enc.AttentionMask, c.maxSeqLen)
	shape := ort.NewShape(1, int64(len(ids)))

	idsTensor, err := ort.NewTensor(shape, ids)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idsTensor.Destroy()

	maskTensor, err := ort.NewTensor(shape, mask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskTensor.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(c.numLabels)))
	if err != nil {
		return nil, fmt.Errorf("logits tensor: %w", err)
	}
	defer out.Destroy()

	c.mu.Lock()
	if c.session == nil {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	err = c.session.Run([]ort.Value{idsTensor, maskTensor}, []ort.Value{out})
	c.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("run onnx session: %w", err)
	}

	logits := make([]float32, c.numLabels)
	copy(logits, out.GetData())
	return logits, nil
}

func (c *Classifier) closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session == nil
}

func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Destroy()
	c.session = nil
	return err
}

// fitSequence truncates to maxLen and converts to int64. The final token is
// kept on truncation so the sequence still ends with the separator. An empty
// mask is treated as all ones.
func fitSequence(ids, mask []int, maxLen int) ([]int64, []int64) {
	n := len(ids)
	if n > maxLen {
		n = maxLen
	}
	outIDs := make([]int64, n)
	outMask := make([]int64, n)
	for i := 0; i < n; i++ {
		outIDs[i] = int64(ids[i])
		outMask[i] = 1
		if i < len(mask) {
			outMask[i] = int64(mask[i])
		}
	}
	if len(ids) > maxLen && n > 0 {
		outIDs[n-1] = int64(ids[len(ids)-1])
	}
	return outIDs, outMask
}
