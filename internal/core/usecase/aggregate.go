package usecase

import "github.com/kirillkom/credential-verifier/internal/core/domain"

// AggregateStatus folds per-document results into the submission status:
// verified only when every document verified, suspicious when any document is
// suspicious, pending_review otherwise.
func AggregateStatus(results map[domain.DocumentType]domain.VerificationResult) domain.VerificationStatus {
	if len(results) == 0 {
		return domain.StatusPendingReview
	}

	allVerified := true
	for _, res := range results {
		if res.Status == domain.StatusSuspicious {
			return domain.StatusSuspicious
		}
		if res.Status != domain.StatusVerified {
			allVerified = false
		}
	}
	if allVerified {
		return domain.StatusVerified
	}
	return domain.StatusPendingReview
}
