package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
	"github.com/kirillkom/credential-verifier/internal/core/ports"
)

type ProcessSubmissionUseCase struct {
	repo     ports.SubmissionRepository
	storage  ports.ObjectStorage
	verifier ports.DocumentVerifier
	observer ports.ProcessObserver
}

func NewProcessSubmissionUseCase(
	repo ports.SubmissionRepository,
	storage ports.ObjectStorage,
	verifier ports.DocumentVerifier,
	observer ports.ProcessObserver,
) *ProcessSubmissionUseCase {
	if observer == nil {
		observer = noopProcessObserver{}
	}
	return &ProcessSubmissionUseCase{
		repo:     repo,
		storage:  storage,
		verifier: verifier,
		observer: observer,
	}
}

func (uc *ProcessSubmissionUseCase) ProcessByID(ctx context.Context, submissionID string) (err error) {
	start := time.Now()
	uc.observer.StartSubmission()
	defer func() {
		uc.observer.FinishSubmission(time.Since(start), err)
	}()

	sub, err := uc.loadSubmission(ctx, submissionID)
	if err != nil {
		return err
	}
	uc.observer.ObserveQueueLag(start.Sub(sub.CreatedAt))

	if err := uc.markState(ctx, submissionID, domain.StateProcessing, ""); err != nil {
		return fmt.Errorf("set state=processing: %w", err)
	}

	results := uc.verifyDocuments(ctx, sub)
	overall := AggregateStatus(results)

	if err := uc.persistResults(ctx, submissionID, overall, results); err != nil {
		if failErr := uc.markFailed(ctx, submissionID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed state: %v", err, failErr)
		}
		return err
	}

	if err := uc.markState(ctx, submissionID, domain.StateCompleted, ""); err != nil {
		return fmt.Errorf("set state=completed: %w", err)
	}
	return nil
}

func (uc *ProcessSubmissionUseCase) loadSubmission(ctx context.Context, submissionID string) (*domain.Submission, error) {
	sub, err := uc.repo.GetByID(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("fetch submission by id: %w", err)
	}
	return sub, nil
}

// verifyDocuments never fails: verification problems are part of each result.
func (uc *ProcessSubmissionUseCase) verifyDocuments(ctx context.Context, sub *domain.Submission) map[domain.DocumentType]domain.VerificationResult {
	results := make(map[domain.DocumentType]domain.VerificationResult, len(sub.Documents))
	doctor := sub.Doctor
	for _, doc := range sub.Documents {
		results[doc.Type] = uc.verifier.Verify(ctx, uc.storage.Path(doc.StoragePath), doc.Type, &doctor)
	}
	return results
}

func (uc *ProcessSubmissionUseCase) persistResults(
	ctx context.Context,
	submissionID string,
	overall domain.VerificationStatus,
	results map[domain.DocumentType]domain.VerificationResult,
) error {
	if err := uc.repo.SaveResults(ctx, submissionID, overall, results); err != nil {
		return fmt.Errorf("save verification results: %w", err)
	}
	return nil
}

func (uc *ProcessSubmissionUseCase) markState(ctx context.Context, submissionID string, state domain.SubmissionState, errMessage string) error {
	return uc.repo.UpdateState(ctx, submissionID, state, errMessage)
}

func (uc *ProcessSubmissionUseCase) markFailed(ctx context.Context, submissionID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markState(ctx, submissionID, domain.StateFailed, processErr.Error())
}

type noopProcessObserver struct{}

func (noopProcessObserver) StartSubmission() {}

func (noopProcessObserver) FinishSubmission(time.Duration, error) {}

func (noopProcessObserver) ObserveQueueLag(time.Duration) {}
