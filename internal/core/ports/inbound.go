package ports

import (
	"context"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
)

// DocumentVerifier is the inbound contract for verifying a single credential
// document. It never returns an error: failures are reported in the result.
type DocumentVerifier interface {
	Verify(ctx context.Context, path string, docType domain.DocumentType, doctor *domain.DoctorMetadata) domain.VerificationResult
	Mode() string
	// Supports reports whether docType has a registered lexicon.
	Supports(docType domain.DocumentType) bool
	DocumentTypes() []domain.DocumentType
}

// SubmissionIntake is the inbound contract for doctor registration uploads.
type SubmissionIntake interface {
	Submit(ctx context.Context, doctor domain.DoctorMetadata, uploads []domain.Upload) (*domain.Submission, error)
}

// SubmissionReader is the inbound read model for submission state.
type SubmissionReader interface {
	GetByID(ctx context.Context, id string) (*domain.Submission, error)
	ListByEmail(ctx context.Context, email string) ([]domain.Submission, error)
}

// SubmissionProcessor is the inbound contract for asynchronous verification.
type SubmissionProcessor interface {
	ProcessByID(ctx context.Context, submissionID string) error
}
