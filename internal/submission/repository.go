package submission

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/errors"
)

const maxListLimit = 50

// Repository stores judged submissions.
type Repository interface {
	// Insert stores a submission. Inserting the same id twice stores it once.
	Insert(ctx context.Context, sub *domain.Submission) error
	Get(ctx context.Context, submissionID string) (*domain.Submission, error)
	// List returns submissions newest first.
	List(ctx context.Context, req ListRequest) ([]domain.Submission, error)
}

type ListRequest struct {
	UserID string
	// ProblemID optionally narrows the list to one problem.
	ProblemID string
	Limit     int
}

type PostgresRepository struct {
	db *pgxpool.Pool
}

func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const submissionColumns = `submission_id, user_id, problem_id, COALESCE(contest_id, ''), language, code, verdict,
	details, passed_cases, total_cases, error_message, score, submit_time`

func (r *PostgresRepository) Insert(ctx context.Context, sub *domain.Submission) error {
	const stmt = `
INSERT INTO submissions (submission_id, user_id, problem_id, contest_id, language, code, verdict,
	details, passed_cases, total_cases, error_message, score, submit_time)
VALUES ($1, $2, $3, NULLIF($4::text, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (submission_id) DO NOTHING;`

	_, err := r.db.Exec(ctx, stmt,
		sub.ID, sub.UserID, sub.ProblemID, sub.ContestID, sub.Language, sub.Code, sub.Verdict,
		sub.Details, sub.PassedCases, sub.TotalCases, sub.ErrorMessage, sub.Score, sub.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission %s: %w", sub.ID, err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, submissionID string) (*domain.Submission, error) {
	stmt := `SELECT ` + submissionColumns + ` FROM submissions WHERE submission_id = $1;`

	rows, err := r.db.Query(ctx, stmt, submissionID)
	if err != nil {
		return nil, fmt.Errorf("query submission %s: %w", submissionID, err)
	}

	sub, err := pgx.CollectExactlyOneRow(rows, scanSubmission)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("submission not found: %s", submissionID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan submission %s: %w", submissionID, err)
	}

	return &sub, nil
}

func (r *PostgresRepository) List(ctx context.Context, req ListRequest) ([]domain.Submission, error) {
	stmt := `SELECT ` + submissionColumns + `
FROM submissions
WHERE user_id = $1 AND ($2 = '' OR problem_id = $2)
ORDER BY submit_time DESC, submission_id DESC
LIMIT $3;`

	rows, err := r.db.Query(ctx, stmt, req.UserID, req.ProblemID, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}

	subs, err := pgx.CollectRows(rows, scanSubmission)
	if err != nil {
		return nil, fmt.Errorf("scan submissions: %w", err)
	}

	return subs, nil
}

func scanSubmission(row pgx.CollectableRow) (domain.Submission, error) {
	var s domain.Submission
	err := row.Scan(&s.ID, &s.UserID, &s.ProblemID, &s.ContestID, &s.Language, &s.Code, &s.Verdict,
		&s.Details, &s.PassedCases, &s.TotalCases, &s.ErrorMessage, &s.Score, &s.SubmittedAt)
	return s, err
}
