package domain

import (
	"io"
	"time"
)

type SubmissionState string

const (
	StateQueued     SubmissionState = "queued"
	StateProcessing SubmissionState = "processing"
	StateCompleted  SubmissionState = "completed"
	StateFailed     SubmissionState = "failed"
)

type StoredDocument struct {
	Type        DocumentType `json:"type"`
	Filename    string       `json:"filename"`
	StoragePath string       `json:"storage_path"`
}

type Submission struct {
	ID        string                              `json:"id"`
	Doctor    DoctorMetadata                      `json:"doctor"`
	Documents []StoredDocument                    `json:"documents"`
	Results   map[DocumentType]VerificationResult `json:"results,omitempty"`
	Status    VerificationStatus                  `json:"status"`
	State     SubmissionState                     `json:"state"`
	Error     string                              `json:"error,omitempty"`
	CreatedAt time.Time                           `json:"created_at"`
	UpdatedAt time.Time                           `json:"updated_at"`
}

// Upload is one credential file received with a submission.
type Upload struct {
	Type     DocumentType
	Filename string
	Body     io.Reader
}
