package domain

import (
	"regexp"
	"strings"
)

// DocumentType names a credential kind. License and degree are built in;
// any other type becomes usable once a lexicon registers keywords for it.
type DocumentType string

const (
	DocumentLicense DocumentType = "license"
	DocumentDegree  DocumentType = "degree"
)

var documentTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// ParseDocumentType checks that raw is a well-formed type name. Whether the
// type is supported depends on the lexicon in effect, see Lexicon.Supports.
func ParseDocumentType(raw string) (DocumentType, bool) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if !documentTypePattern.MatchString(name) {
		return "", false
	}
	return DocumentType(name), true
}

type VerificationStatus string

const (
	StatusVerified      VerificationStatus = "verified"
	StatusLikelyValid   VerificationStatus = "likely_valid"
	StatusPendingReview VerificationStatus = "pending_review"
	StatusSuspicious    VerificationStatus = "suspicious"
	StatusError         VerificationStatus = "error"
)

type Method string

const (
	MethodModel    Method = "ai_model"
	MethodRules    Method = "rule_based"
	MethodBasic    Method = "basic"
	MethodRegistry Method = "registry_api"
)

type ExtractionSource string

const (
	SourceTextLayer ExtractionSource = "text_layer"
	SourceOCR       ExtractionSource = "ocr"
	SourceMixed     ExtractionSource = "mixed"
	SourceNone      ExtractionSource = "none"
)

type ExtractionOutcome string

const (
	OutcomeOK          ExtractionOutcome = "ok"
	OutcomeEmpty       ExtractionOutcome = "empty"
	OutcomeMissing     ExtractionOutcome = "missing"
	OutcomeUnsupported ExtractionOutcome = "unsupported"
	OutcomeFailed      ExtractionOutcome = "failed"
)

// Extraction is the explicit result of reading text out of a document.
// Err is diagnostic only; Text is empty whenever Outcome is not OutcomeOK.
type Extraction struct {
	Text      string
	Source    ExtractionSource
	Pages     int
	OCRImages int
	Outcome   ExtractionOutcome
	Err       error
}

type Classification struct {
	Status          VerificationStatus
	Confidence      float64
	Method          Method
	MatchedKeywords []string
	MatchRatio      float64
}

type DoctorMetadata struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	Specialization     string `json:"specialization,omitempty"`
	Phone              string `json:"phone,omitempty"`
	RegistrationNumber string `json:"registration_number,omitempty"`
}

type VerificationResult struct {
	DocumentType     DocumentType       `json:"document_type"`
	Status           VerificationStatus `json:"status"`
	Confidence       float64            `json:"confidence"`
	Method           Method             `json:"method"`
	Message          string             `json:"message,omitempty"`
	KeywordMatches   []string           `json:"keyword_matches"`
	MatchRatio       float64            `json:"match_ratio"`
	ExtractionSource ExtractionSource   `json:"extraction_source,omitempty"`
	Pages            int                `json:"pages,omitempty"`
	OCRImages        int                `json:"ocr_images,omitempty"`
	TextSample       string             `json:"text_sample,omitempty"`
	ExtractionMS     float64            `json:"extraction_ms"`
	ClassificationMS float64            `json:"classification_ms"`
	DoctorName       string             `json:"doctor_name,omitempty"`
	FallbackReason   string             `json:"fallback_reason,omitempty"`
	Registry         *RegistryRecord    `json:"registry,omitempty"`
	Error            string             `json:"error,omitempty"`
}
