package pmdc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
	"github.com/kirillkom/credential-verifier/internal/infrastructure/resilience"
)

func fastExecutor() *resilience.Executor {
	cfg := resilience.RegistryConfig(nil)
	cfg.Retry.InitialBackoff = time.Millisecond
	cfg.Retry.MaxBackoff = time.Millisecond
	cfg.Breaker.Enabled = false
	return resilience.NewExecutor(cfg)
}

func TestVerifyFoundAndCached(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if got := r.FormValue("RegistrationNo"); got != "12345-P" {
			t.Errorf("unexpected RegistrationNo %q", got)
		}
		_, _ = w.Write([]byte(`{"status":true,"data":[{"Name":"SANA MALIK","FatherName":"TARIQ","Status":"ACTIVE","RegistrationType":"Full","RegistrationDate":"2015-01-01","ValidUpto":"2027-12-31"}]}`))
	}))
	defer server.Close()

	client := New(Options{Endpoint: server.URL, Executor: fastExecutor()})
	rec := client.Verify(context.Background(), " 12345-p ")
	if !rec.Verified || rec.Status != domain.StatusVerified {
		t.Fatalf("expected verified record, got %+v", rec)
	}
	if rec.DoctorName != "SANA MALIK" || rec.LicenseStatus != "active" || rec.ValidUntil != "2027-12-31" {
		t.Fatalf("unexpected record fields: %+v", rec)
	}

	again := client.Verify(context.Background(), "12345-P")
	if !again.Verified || calls.Load() != 1 {
		t.Fatalf("expected cached result, calls=%d", calls.Load())
	}
}

func TestVerifyNotFoundIsCachedAsRejected(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"status":false,"data":[]}`))
	}))
	defer server.Close()

	client := New(Options{Endpoint: server.URL, Executor: fastExecutor()})
	rec := client.Verify(context.Background(), "99999")
	if rec.Verified || rec.Status != domain.StatusRejected {
		t.Fatalf("expected rejected record, got %+v", rec)
	}
	_ = client.Verify(context.Background(), "99999")
	if calls.Load() != 1 {
		t.Fatalf("negative result must be cached, calls=%d", calls.Load())
	}
}

func TestVerifyRetriesThenDegradesToPendingReview(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(Options{Endpoint: server.URL, Executor: fastExecutor()})
	rec := client.Verify(context.Background(), "12345")
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
	if rec.Verified || rec.Status != domain.StatusPendingReview || !strings.Contains(rec.Error, "upstream down") {
		t.Fatalf("expected pending_review with error, got %+v", rec)
	}

	_ = client.Verify(context.Background(), "12345")
	if calls.Load() != 6 {
		t.Fatalf("failures must not be cached, calls=%d", calls.Load())
	}
}

func TestVerifyDegradesWithoutCallingOnceBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := resilience.RegistryConfig(nil)
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker.MinRequests = 2
	exec := resilience.NewExecutor(cfg)
	client := New(Options{Endpoint: server.URL, Executor: exec})

	for _, number := range []string{"111", "222"} {
		if rec := client.Verify(context.Background(), number); rec.Status != domain.StatusPendingReview {
			t.Fatalf("expected pending_review for %s, got %+v", number, rec)
		}
	}
	if !exec.BreakerOpen(resilience.OpRegistryLookup) {
		t.Fatalf("expected registry breaker to be open")
	}

	rec := client.Verify(context.Background(), "333")
	if rec.Status != domain.StatusPendingReview || rec.Source != sourceFallback {
		t.Fatalf("expected fallback record, got %+v", rec)
	}
	if calls.Load() != 2 {
		t.Fatalf("open breaker must short-circuit the registry, calls=%d", calls.Load())
	}
}

func TestVerifyBlankNumberSkipsNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("registry must not be called")
	}))
	defer server.Close()

	rec := New(Options{Endpoint: server.URL}).Verify(context.Background(), "  ")
	if rec.Status != domain.StatusRejected || rec.Source != sourceValidation {
		t.Fatalf("unexpected record %+v", rec)
	}
}
