package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
)

type submitRepoFake struct {
	created     *domain.Submission
	err         error
	stateCalls  []stateCall
	updateError error
}

func (f *submitRepoFake) Create(_ context.Context, sub *domain.Submission) error {
	if f.err != nil {
		return f.err
	}
	copySub := *sub
	f.created = &copySub
	return nil
}

func (f *submitRepoFake) GetByID(context.Context, string) (*domain.Submission, error) {
	return nil, errors.New("not implemented")
}

func (f *submitRepoFake) ListByEmail(context.Context, string) ([]domain.Submission, error) {
	return nil, errors.New("not implemented")
}

func (f *submitRepoFake) UpdateState(_ context.Context, _ string, state domain.SubmissionState, errMessage string) error {
	f.stateCalls = append(f.stateCalls, stateCall{state: state, errMsg: errMessage})
	return f.updateError
}

func (f *submitRepoFake) SaveResults(context.Context, string, domain.VerificationStatus, map[domain.DocumentType]domain.VerificationResult) error {
	return errors.New("not implemented")
}

type submitStorageFake struct {
	saved map[string]string
	err   error
}

func (f *submitStorageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[key] = string(raw)
	return nil
}

func (f *submitStorageFake) Path(key string) string { return "/data/" + key }

type submitQueueFake struct {
	submissionID string
	err          error
}

func (f *submitQueueFake) PublishVerificationRequested(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.submissionID = id
	return nil
}

func (f *submitQueueFake) SubscribeVerificationRequested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

func validDoctor() domain.DoctorMetadata {
	return domain.DoctorMetadata{Name: " Dr. Sana Malik ", Email: "Sana@Example.com", RegistrationNumber: "12345-P"}
}

func TestSubmitSuccess(t *testing.T) {
	repo := &submitRepoFake{}
	storage := &submitStorageFake{}
	queue := &submitQueueFake{}
	uc := NewSubmitVerificationUseCase(repo, storage, queue, nil)

	sub, err := uc.Submit(context.Background(), validDoctor(), []domain.Upload{
		{Type: domain.DocumentLicense, Filename: "my license.png", Body: bytes.NewBufferString("png")},
		{Type: domain.DocumentDegree, Filename: "degree.pdf", Body: bytes.NewBufferString("pdf")},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if sub.ID == "" || sub.State != domain.StateQueued {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if sub.Doctor.Name != "Dr. Sana Malik" || sub.Doctor.Email != "sana@example.com" {
		t.Fatalf("expected trimmed doctor metadata, got %+v", sub.Doctor)
	}
	if repo.created == nil {
		t.Fatalf("expected repo.Create call")
	}
	if queue.submissionID != sub.ID {
		t.Fatalf("expected queued id %s, got %s", sub.ID, queue.submissionID)
	}
	if len(sub.Documents) != 2 {
		t.Fatalf("expected 2 stored documents, got %d", len(sub.Documents))
	}
	if !strings.HasSuffix(sub.Documents[0].StoragePath, "_license_my_license.png") {
		t.Fatalf("expected sanitized key suffix, got %s", sub.Documents[0].StoragePath)
	}
	if storage.saved[sub.Documents[1].StoragePath] != "pdf" {
		t.Fatalf("expected degree body to be stored")
	}
}

func TestSubmitValidation(t *testing.T) {
	body := func() io.Reader { return bytes.NewBufferString("x") }
	cases := []struct {
		name    string
		doctor  domain.DoctorMetadata
		uploads []domain.Upload
	}{
		{name: "missing name", doctor: domain.DoctorMetadata{Email: "a@b.c"}, uploads: []domain.Upload{{Type: domain.DocumentLicense, Filename: "a.png", Body: body()}}},
		{name: "bad email", doctor: domain.DoctorMetadata{Name: "A", Email: "nope"}, uploads: []domain.Upload{{Type: domain.DocumentLicense, Filename: "a.png", Body: body()}}},
		{name: "no documents", doctor: validDoctor()},
		{name: "bad extension", doctor: validDoctor(), uploads: []domain.Upload{{Type: domain.DocumentLicense, Filename: "a.gif", Body: body()}}},
		{name: "bad type", doctor: validDoctor(), uploads: []domain.Upload{{Type: "passport", Filename: "a.png", Body: body()}}},
		{
			name:   "duplicate type",
			doctor: validDoctor(),
			uploads: []domain.Upload{
				{Type: domain.DocumentDegree, Filename: "a.png", Body: body()},
				{Type: domain.DocumentDegree, Filename: "b.png", Body: body()},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &submitRepoFake{}
			uc := NewSubmitVerificationUseCase(repo, &submitStorageFake{}, &submitQueueFake{}, nil)
			_, err := uc.Submit(context.Background(), tc.doctor, tc.uploads)
			if !domain.IsKind(err, domain.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if repo.created != nil {
				t.Fatalf("repository must not be touched on invalid input")
			}
		})
	}
}

func TestSubmitQueueErrorMarksFailed(t *testing.T) {
	repo := &submitRepoFake{}
	uc := NewSubmitVerificationUseCase(repo, &submitStorageFake{}, &submitQueueFake{err: errors.New("queue down")}, nil)

	_, err := uc.Submit(context.Background(), validDoctor(), []domain.Upload{
		{Type: domain.DocumentLicense, Filename: "license.jpg", Body: bytes.NewBufferString("jpg")},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "publish verification request") {
		t.Fatalf("expected publish error, got %v", err)
	}
	if len(repo.stateCalls) != 1 || repo.stateCalls[0].state != domain.StateFailed {
		t.Fatalf("expected failed state update, got %+v", repo.stateCalls)
	}
}

func TestSubmitAcceptsTypeRegisteredInLexicon(t *testing.T) {
	lexicon := domain.DefaultLexicon()
	lexicon["fellowship"] = []string{"fellowship", "college", "physicians"}
	queue := &submitQueueFake{}
	uc := NewSubmitVerificationUseCase(&submitRepoFake{}, &submitStorageFake{}, queue, lexicon)

	sub, err := uc.Submit(context.Background(), validDoctor(), []domain.Upload{
		{Type: "fellowship", Filename: "fcps.pdf", Body: bytes.NewBufferString("pdf")},
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if len(sub.Documents) != 1 || sub.Documents[0].Type != "fellowship" {
		t.Fatalf("unexpected documents: %+v", sub.Documents)
	}
	if queue.submissionID != sub.ID {
		t.Fatalf("expected submission to be queued")
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "passwd",
		"my scan (1).JPG":  "my_scan__1_.JPG",
		"":                 "document.bin",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Fatalf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
