package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
	"github.com/kirillkom/credential-verifier/internal/core/ports"
)

var allowedExtensions = map[string]struct{}{
	".pdf":  {},
	".png":  {},
	".jpg":  {},
	".jpeg": {},
}

// AllowedExtension reports whether filename has an extension the extractor
// can read.
func AllowedExtension(filename string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

type SubmitVerificationUseCase struct {
	repo    ports.SubmissionRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	lexicon domain.Lexicon
}

// NewSubmitVerificationUseCase accepts uploads for any document type the
// lexicon has keywords for. A nil lexicon means the built-in one.
func NewSubmitVerificationUseCase(
	repo ports.SubmissionRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	lexicon domain.Lexicon,
) *SubmitVerificationUseCase {
	if lexicon == nil {
		lexicon = domain.DefaultLexicon()
	}
	return &SubmitVerificationUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		lexicon: lexicon,
	}
}

func (uc *SubmitVerificationUseCase) Submit(
	ctx context.Context,
	doctor domain.DoctorMetadata,
	uploads []domain.Upload,
) (*domain.Submission, error) {
	doctor = trimDoctor(doctor)
	if err := validateSubmission(doctor, uploads, uc.lexicon); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate submission", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	docs := make([]domain.StoredDocument, 0, len(uploads))
	for _, up := range uploads {
		storageKey := fmt.Sprintf("%s_%s_%s", id, up.Type, sanitizeFilename(up.Filename))
		if err := uc.storage.Save(ctx, storageKey, up.Body); err != nil {
			return nil, fmt.Errorf("save %s to object storage: %w", up.Type, err)
		}
		docs = append(docs, domain.StoredDocument{
			Type:        up.Type,
			Filename:    up.Filename,
			StoragePath: storageKey,
		})
	}

	sub := &domain.Submission{
		ID:        id,
		Doctor:    doctor,
		Documents: docs,
		Results:   map[domain.DocumentType]domain.VerificationResult{},
		Status:    domain.StatusPendingReview,
		State:     domain.StateQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := uc.repo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create submission record: %w", err)
	}

	if err := uc.queue.PublishVerificationRequested(ctx, sub.ID); err != nil {
		if markErr := uc.repo.UpdateState(ctx, sub.ID, domain.StateFailed, err.Error()); markErr != nil {
			return nil, fmt.Errorf("publish verification request: %w; mark failed state: %v", err, markErr)
		}
		return nil, fmt.Errorf("publish verification request: %w", err)
	}

	return sub, nil
}

func validateSubmission(doctor domain.DoctorMetadata, uploads []domain.Upload, lexicon domain.Lexicon) error {
	if doctor.Name == "" {
		return errors.New("doctor name is required")
	}
	if doctor.Email == "" {
		return errors.New("doctor email is required")
	}
	if _, err := mail.ParseAddress(doctor.Email); err != nil {
		return fmt.Errorf("invalid email %q", doctor.Email)
	}
	if len(uploads) == 0 {
		return errors.New("at least one credential document is required")
	}

	seen := make(map[domain.DocumentType]struct{}, len(uploads))
	for _, up := range uploads {
		if !lexicon.Supports(up.Type) {
			return fmt.Errorf("unsupported document type %q", up.Type)
		}
		if _, dup := seen[up.Type]; dup {
			return fmt.Errorf("duplicate %s document", up.Type)
		}
		seen[up.Type] = struct{}{}
		if up.Body == nil {
			return fmt.Errorf("%s document body is empty", up.Type)
		}
		if !AllowedExtension(up.Filename) {
			return fmt.Errorf("%s document %q has an unsupported file type", up.Type, up.Filename)
		}
	}
	return nil
}

func trimDoctor(d domain.DoctorMetadata) domain.DoctorMetadata {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Specialization = strings.TrimSpace(d.Specialization)
	d.Phone = strings.TrimSpace(d.Phone)
	d.RegistrationNumber = strings.TrimSpace(d.RegistrationNumber)
	return d
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}
