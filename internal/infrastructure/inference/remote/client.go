// Package remote calls an HTTP inference server hosting the credential
// classification model.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/credential-verifier/internal/core/ports"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/resilience"
)

const service = "inference"

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

var _ ports.SequenceClassifier = (*Client)(nil)

func New(baseURL string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Logits []float32 `json:"logits"`
}

func (c *Client) Logits(ctx context.Context, text string) ([]float32, error) {
	var response classifyResponse
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/v1/classify", classifyRequest{Text: text}, &response, "classify")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, resilience.OpInferenceClassify, call, resilience.ClassifyHTTPError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, resilience.WrapTemporary("inference classify", err, resilience.ClassifyHTTPError)
	}
	return response.Logits, nil
}

// Ping sends a single unretried classification and checks the response shape.
// It is used once at startup to decide whether the model is reachable.
func (c *Client) Ping(ctx context.Context) error {
	var response classifyResponse
	if err := c.postJSON(ctx, "/v1/classify", classifyRequest{Text: "ping"}, &response, "ping"); err != nil {
		return err
	}
	if len(response.Logits) != 2 {
		return fmt.Errorf("%s ping: expected 2 logits, got %d", service, len(response.Logits))
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s request: %w", service, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewHTTPStatusError(service, operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
