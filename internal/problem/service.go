// Package problem reads problems and their test cases.
package problem

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/errors"
)

type Config struct {
	DB *pgxpool.Pool
}

type Service struct {
	db *pgxpool.Pool
}

func NewService(c Config) *Service {
	return &Service{db: c.DB}
}

// Get returns a problem with its test cases in declared order.
func (s *Service) Get(ctx context.Context, problemID string) (*domain.Problem, error) {
	const problemStmt = `SELECT problem_id, title FROM problems WHERE problem_id = $1;`

	var p domain.Problem
	err := s.db.QueryRow(ctx, problemStmt, problemID).Scan(&p.ProblemID, &p.Title)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("problem not found: %s", problemID)
	}
	if err != nil {
		return nil, fmt.Errorf("get problem %s: %w", problemID, err)
	}

	const casesStmt = `
SELECT input, expected_output, hidden
FROM test_cases
WHERE problem_id = $1
ORDER BY position;`

	rows, err := s.db.Query(ctx, casesStmt, problemID)
	if err != nil {
		return nil, fmt.Errorf("query test cases: %w", err)
	}

	p.TestCases, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.TestCase, error) {
		var tc domain.TestCase
		err := r.Scan(&tc.Input, &tc.ExpectedOutput, &tc.Hidden)
		return tc, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan test cases: %w", err)
	}

	return &p, nil
}
