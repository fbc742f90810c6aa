package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/credential-verifier/internal/core/domain"
	"github.com/kirillkom/credential-verifier/internal/core/ports"
)

type SubmissionRepository struct {
	db *sql.DB
}

var _ ports.SubmissionRepository = (*SubmissionRepository)(nil)

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SubmissionRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS submissions (
	id TEXT PRIMARY KEY,
	doctor_name TEXT NOT NULL,
	doctor_email TEXT NOT NULL,
	specialization TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	registration_number TEXT NOT NULL DEFAULT '',
	documents JSONB NOT NULL DEFAULT '[]'::jsonb,
	results JSONB NOT NULL DEFAULT '{}'::jsonb,
	status TEXT NOT NULL,
	state TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_email ON submissions(doctor_email);
CREATE INDEX IF NOT EXISTS idx_submissions_created_at ON submissions(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *SubmissionRepository) Create(ctx context.Context, sub *domain.Submission) error {
	docsJSON, err := json.Marshal(sub.Documents)
	if err != nil {
		return fmt.Errorf("marshal documents: %w", err)
	}
	resultsJSON, err := marshalResults(sub.Results)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO submissions (
	id, doctor_name, doctor_email, specialization, phone, registration_number, documents, results, status, state, error_message, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`,
		sub.ID, sub.Doctor.Name, sub.Doctor.Email, sub.Doctor.Specialization, sub.Doctor.Phone, sub.Doctor.RegistrationNumber,
		docsJSON, resultsJSON, string(sub.Status), string(sub.State), sub.Error, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, doctor_name, doctor_email, specialization, phone, registration_number, documents, results, status, state, error_message, created_at, updated_at
FROM submissions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row rowScanner) (*domain.Submission, error) {
	var (
		sub        domain.Submission
		docsRaw    []byte
		resultsRaw []byte
		status     string
		state      string
	)
	err := row.Scan(
		&sub.ID, &sub.Doctor.Name, &sub.Doctor.Email, &sub.Doctor.Specialization, &sub.Doctor.Phone, &sub.Doctor.RegistrationNumber,
		&docsRaw, &resultsRaw, &status, &state, &sub.Error, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(docsRaw, &sub.Documents); err != nil {
		return nil, fmt.Errorf("unmarshal documents: %w", err)
	}
	sub.Results = map[domain.DocumentType]domain.VerificationResult{}
	if len(resultsRaw) > 0 {
		if err := json.Unmarshal(resultsRaw, &sub.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	sub.Status = domain.VerificationStatus(status)
	sub.State = domain.SubmissionState(state)
	return &sub, nil
}

func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*domain.Submission, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+`
WHERE id = $1
`, id)

	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrSubmissionNotFound, "get submission", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan submission: %w", err)
	}
	return sub, nil
}

func (r *SubmissionRepository) ListByEmail(ctx context.Context, email string) ([]domain.Submission, error) {
	rows, err := r.db.QueryContext(ctx, selectColumns+`
WHERE doctor_email = $1
ORDER BY created_at DESC
`, email)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Submission, 0)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

func (r *SubmissionRepository) UpdateState(ctx context.Context, id string, state domain.SubmissionState, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE submissions
SET state = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(state), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update submission state: %w", err)
	}
	return requireAffected(res, "update submission state", id)
}

func (r *SubmissionRepository) SaveResults(
	ctx context.Context,
	id string,
	overall domain.VerificationStatus,
	results map[domain.DocumentType]domain.VerificationResult,
) error {
	resultsJSON, err := marshalResults(results)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE submissions
SET status = $2, results = $3, updated_at = $4
WHERE id = $1
`, id, string(overall), resultsJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save verification results: %w", err)
	}
	return requireAffected(res, "save verification results", id)
}

func marshalResults(results map[domain.DocumentType]domain.VerificationResult) ([]byte, error) {
	if results == nil {
		results = map[domain.DocumentType]domain.VerificationResult{}
	}
	raw, err := json.Marshal(results)
	if err != nil {
		return nil, fmt.Errorf("marshal results: %w", err)
	}
	return raw, nil
}

func requireAffected(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrSubmissionNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}
