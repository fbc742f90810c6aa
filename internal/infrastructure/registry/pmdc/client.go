// Package pmdc looks up registration numbers in the medical council's
// public registry.
package pmdc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
	"github.com/kirillkom/credential-verifier/internal/core/ports"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/resilience"
)

const (
	DefaultEndpoint = "https://hospitals-inspections.pmdc.pk/api/DRC/GetData"
	DefaultCacheTTL = 30 * 24 * time.Hour

	sourceAPI        = "PMDC API"
	sourceValidation = "validation"
	sourceFallback   = "fallback"
)

type Options struct {
	Endpoint   string
	CacheTTL   time.Duration
	Executor   *resilience.Executor
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	executor   *resilience.Executor
	cache      *cache.Cache
	logger     *slog.Logger
	now        func() time.Time
}

var _ ports.RegistryVerifier = (*Client)(nil)

func New(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Executor == nil {
		opts.Executor = resilience.NewExecutor(resilience.RegistryConfig(opts.Logger))
	}
	return &Client{
		endpoint:   opts.Endpoint,
		httpClient: opts.HTTPClient,
		executor:   opts.Executor,
		cache:      cache.New(opts.CacheTTL, time.Hour),
		logger:     opts.Logger,
		now:        time.Now,
	}
}

type lookupResponse struct {
	Status bool          `json:"status"`
	Data   []doctorEntry `json:"data"`
}

type doctorEntry struct {
	Name             string `json:"Name"`
	FatherName       string `json:"FatherName"`
	Status           string `json:"Status"`
	RegistrationType string `json:"RegistrationType"`
	RegistrationDate string `json:"RegistrationDate"`
	ValidUpto        string `json:"ValidUpto"`
}

// Verify never fails. Confirmed and unknown numbers are cached; transport
// failures produce an uncached pending_review record.
func (c *Client) Verify(ctx context.Context, registrationNumber string) domain.RegistryRecord {
	number := strings.ToUpper(strings.TrimSpace(registrationNumber))
	if number == "" {
		return domain.RegistryRecord{
			Status:    domain.StatusRejected,
			Source:    sourceValidation,
			Message:   "registration number is required",
			CheckedAt: c.now().UTC(),
		}
	}

	if cached, ok := c.cache.Get(number); ok {
		return cached.(domain.RegistryRecord)
	}

	var response lookupResponse
	err := c.executor.Execute(ctx, resilience.OpRegistryLookup, func(ctx context.Context) error {
		response = lookupResponse{}
		return c.lookup(ctx, number, &response)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		err = resilience.WrapTemporary("registry lookup", err, resilience.ClassifyHTTPError)
		c.logger.Warn("registry_lookup_failed", "registration_number", number, "error", err)
		return domain.RegistryRecord{
			RegistrationNumber: number,
			Status:             domain.StatusPendingReview,
			Source:             sourceFallback,
			Message:            "registry verification could not be completed automatically; manual review required",
			Error:              err.Error(),
			CheckedAt:          c.now().UTC(),
		}
	}

	record := toRecord(number, response, c.now().UTC())
	c.cache.SetDefault(number, record)
	return record
}

func toRecord(number string, response lookupResponse, checkedAt time.Time) domain.RegistryRecord {
	if !response.Status || len(response.Data) == 0 {
		return domain.RegistryRecord{
			RegistrationNumber: number,
			Status:             domain.StatusRejected,
			Source:             sourceAPI,
			Message:            "registration number not found or invalid",
			CheckedAt:          checkedAt,
		}
	}

	entry := response.Data[0]
	licenseStatus := "unknown"
	if strings.EqualFold(entry.Status, "ACTIVE") {
		licenseStatus = "active"
	}
	name := entry.Name
	if name == "" {
		name = "Name not provided"
	}
	return domain.RegistryRecord{
		RegistrationNumber: number,
		Verified:           true,
		Status:             domain.StatusVerified,
		DoctorName:         name,
		FatherName:         entry.FatherName,
		LicenseStatus:      licenseStatus,
		RegistrationType:   entry.RegistrationType,
		RegistrationDate:   entry.RegistrationDate,
		ValidUntil:         entry.ValidUpto,
		Source:             sourceAPI,
		CheckedAt:          checkedAt,
	}
}

func (c *Client) lookup(ctx context.Context, number string, out *lookupResponse) error {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	for _, field := range []struct{ key, value string }{
		{"RegistrationNo", number},
		{"Name", ""},
		{"FatherName", ""},
	} {
		if err := form.WriteField(field.key, field.value); err != nil {
			return fmt.Errorf("write form field %s: %w", field.key, err)
		}
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return fmt.Errorf("create lookup request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("registry lookup request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resilience.NewHTTPStatusError("registry", "lookup", resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode lookup response: %w", err)
	}
	return nil
}
