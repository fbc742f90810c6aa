package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/credential-verifier/internal/config"
	"github.com/kirillkom/credential-verifier/internal/core/domain"
	"github.com/kirillkom/credential-verifier/internal/core/ports"
	"github.com/kirillkom/credential-verifier/internal/core/usecase"
	"github.com/kirillkom/credential-verifier/internal/observability/metrics"
)

const (
	serviceName        = "api"
	defaultUploadLimit = 16 << 20
	backpressureWait   = 250 * time.Millisecond
	multipartMemory    = 4 << 20
)

type Dependencies struct {
	Verifier    ports.DocumentVerifier
	Intake      ports.SubmissionIntake
	Submissions ports.SubmissionReader
	Metrics     *metrics.HTTPServerMetrics
	OCREngine   string
}

type Router struct {
	cfg  config.Config
	deps Dependencies
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultUploadLimit
	}
	if cfg.ScratchPath == "" {
		cfg.ScratchPath = os.TempDir()
	}
	return &Router{cfg: cfg, deps: deps}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/verify", rt.verifyDocument)
	api.HandleFunc("POST /v1/verifications", rt.submitVerification)
	api.HandleFunc("GET /v1/verifications", rt.listVerifications)
	api.HandleFunc("GET /v1/verifications/{id}", rt.getVerification)

	var gated http.Handler = api
	if rt.cfg.APIMaxInFlight > 0 {
		gated = backpressureMiddleware(gated, rt.cfg.APIMaxInFlight, backpressureWait, rt.recordRejected)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		burst := rt.cfg.APIRateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter := rate.NewLimiter(rate.Limit(rt.cfg.APIRateLimitRPS), burst)
		gated = rateLimitMiddleware(gated, limiter, rt.recordRejected)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("/v1/", gated)
	if rt.deps.Metrics != nil {
		mux.Handle("GET /metrics", rt.deps.Metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(serviceName, handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) recordRejected(reason string) {
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordRejected(serviceName, reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	mode := "unavailable"
	if rt.deps.Verifier != nil {
		mode = rt.deps.Verifier.Mode()
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":          "ok",
		"classifier_mode": mode,
		"ocr_engine":      rt.deps.OCREngine,
	})
}

// verifyDocument runs a single synchronous verification. Nothing is persisted:
// the upload is staged in the scratch directory and removed afterwards.
func (rt *Router) verifyDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.parseMultipart(w, r); err != nil {
		writeError(w, err)
		return
	}

	docType, ok := domain.ParseDocumentType(r.FormValue("document_type"))
	if !ok || !rt.deps.Verifier.Supports(docType) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document_type must be one of: " + joinTypes(rt.deps.Verifier.DocumentTypes())})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	if !usecase.AllowedExtension(fileHeader.Filename) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unsupported file type %q", filepath.Ext(fileHeader.Filename))})
		return
	}

	path, cleanup, err := rt.stageUpload(file, fileHeader.Filename)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cleanup()

	doctor := &domain.DoctorMetadata{Name: strings.TrimSpace(r.FormValue("name"))}
	result := rt.deps.Verifier.Verify(r.Context(), path, docType, doctor)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) stageUpload(src io.Reader, filename string) (string, func(), error) {
	if err := os.MkdirAll(rt.cfg.ScratchPath, 0o755); err != nil {
		return "", nil, fmt.Errorf("create scratch dir: %w", err)
	}
	tmp, err := os.CreateTemp(rt.cfg.ScratchPath, "upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", nil, fmt.Errorf("create staging file: %w", err)
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		cleanup()
		return "", nil, fmt.Errorf("stage upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close staging file: %w", err)
	}
	return tmp.Name(), cleanup, nil
}

func (rt *Router) submitVerification(w http.ResponseWriter, r *http.Request) {
	if err := rt.parseMultipart(w, r); err != nil {
		writeError(w, err)
		return
	}

	doctor := domain.DoctorMetadata{
		Name:               r.FormValue("name"),
		Email:              r.FormValue("email"),
		Specialization:     r.FormValue("specialization"),
		Phone:              r.FormValue("phone"),
		RegistrationNumber: r.FormValue("registration_number"),
	}

	// One optional file field per supported document type.
	var uploads []domain.Upload
	for _, docType := range rt.deps.Verifier.DocumentTypes() {
		file, fileHeader, err := r.FormFile(string(docType))
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		if err != nil {
			writeError(w, domain.WrapError(domain.ErrInvalidInput, "read "+string(docType), err))
			return
		}
		defer file.Close()
		uploads = append(uploads, domain.Upload{Type: docType, Filename: fileHeader.Filename, Body: file})
	}

	sub, err := rt.deps.Intake.Submit(r.Context(), doctor, uploads)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordSubmission(serviceName, len(sub.Documents))
	}
	writeJSON(w, http.StatusAccepted, sub)
}

func (rt *Router) getVerification(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "submission id is required"})
		return
	}

	sub, err := rt.deps.Submissions.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (rt *Router) listVerifications(w http.ResponseWriter, r *http.Request) {
	email := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("email")))
	if email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter 'email' is required"})
		return
	}

	subs, err := rt.deps.Submissions.ListByEmail(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	if subs == nil {
		subs = []domain.Submission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": subs})
}

// parseMultipart enforces the upload size limit. Oversized or malformed
// bodies are invalid input.
func (rt *Router) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.WrapError(domain.ErrInvalidInput, "parse upload", fmt.Errorf("body exceeds %d bytes", tooLarge.Limit))
		}
		return domain.WrapError(domain.ErrInvalidInput, "parse upload", err)
	}
	return nil
}

func joinTypes(types []domain.DocumentType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
