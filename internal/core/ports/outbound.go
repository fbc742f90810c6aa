package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
)

// SubmissionRepository persists and reads submission state.
type SubmissionRepository interface {
	Create(ctx context.Context, sub *domain.Submission) error
	GetByID(ctx context.Context, id string) (*domain.Submission, error)
	ListByEmail(ctx context.Context, email string) ([]domain.Submission, error)
	UpdateState(ctx context.Context, id string, state domain.SubmissionState, errMessage string) error
	SaveResults(ctx context.Context, id string, overall domain.VerificationStatus, results map[domain.DocumentType]domain.VerificationResult) error
}

// ObjectStorage stores uploaded credential documents and resolves them to
// readable filesystem paths for extraction.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Path(key string) string
}

// MessageQueue publishes/consumes verification requests.
type MessageQueue interface {
	PublishVerificationRequested(ctx context.Context, submissionID string) error
	SubscribeVerificationRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor reads text out of a document on disk.
type TextExtractor interface {
	Extract(ctx context.Context, path string) domain.Extraction
}

// OCREngine recognizes text in an encoded raster image. Source names where
// the image came from and only labels scratch files and logs.
type OCREngine interface {
	Name() string
	Recognize(ctx context.Context, image []byte, source string) (string, error)
}

// SequenceClassifier runs a two-class sequence classification model and
// returns the raw logits.
type SequenceClassifier interface {
	Logits(ctx context.Context, text string) ([]float32, error)
}

// RegistryVerifier checks a registration number against the medical council
// registry. Lookup failures are reported inside the record.
type RegistryVerifier interface {
	Verify(ctx context.Context, registrationNumber string) domain.RegistryRecord
}

// VerificationObserver receives per-call verification telemetry.
type VerificationObserver interface {
	ObserveVerification(result domain.VerificationResult)
	ObserveModelFallback(docType domain.DocumentType)
}

// ProcessObserver receives per-submission processing telemetry.
type ProcessObserver interface {
	StartSubmission()
	FinishSubmission(duration time.Duration, err error)
	ObserveQueueLag(lag time.Duration)
}
