// Package contest reads contests and registers their participants.
package contest

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/errors"
)

// DefaultPoints is the base score of a contest problem without explicit points.
const DefaultPoints = 500

type Config struct {
	DB  *pgxpool.Pool
	Now func() time.Time
}

type Service struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		db:  c.DB,
		now: c.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Get returns a contest with its problems in contest order and its participants.
func (s *Service) Get(ctx context.Context, contestID string) (*domain.Contest, error) {
	const contestStmt = `SELECT contest_id, title, start_time, end_time FROM contests WHERE contest_id = $1;`

	var c domain.Contest
	err := s.db.QueryRow(ctx, contestStmt, contestID).Scan(&c.ContestID, &c.Title, &c.StartTime, &c.EndTime)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("contest not found: %s", contestID)
	}
	if err != nil {
		return nil, fmt.Errorf("get contest %s: %w", contestID, err)
	}

	const problemsStmt = `
SELECT problem_id, points
FROM contest_problems
WHERE contest_id = $1
ORDER BY position;`

	rows, err := s.db.Query(ctx, problemsStmt, contestID)
	if err != nil {
		return nil, fmt.Errorf("query contest problems: %w", err)
	}
	c.Problems, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.ContestProblem, error) {
		var p domain.ContestProblem
		err := r.Scan(&p.ProblemID, &p.Points)
		if p.Points <= 0 {
			p.Points = DefaultPoints
		}
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan contest problems: %w", err)
	}

	const participantsStmt = `SELECT user_id FROM contest_participants WHERE contest_id = $1 ORDER BY join_time;`

	rows, err = s.db.Query(ctx, participantsStmt, contestID)
	if err != nil {
		return nil, fmt.Errorf("query contest participants: %w", err)
	}
	c.Participants, err = pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan contest participants: %w", err)
	}

	return &c, nil
}

type JoinRequest struct {
	ContestID string
	UserID    string
}

// Join registers the user in a contest that has not ended. Joining twice is not an error.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*domain.Contest, error) {
	c, err := s.Get(ctx, req.ContestID)
	if err != nil {
		return nil, err
	}

	if err := CanJoin(*c, req.UserID, s.now()); err != nil {
		return nil, err
	}

	if c.HasParticipant(req.UserID) {
		return c, nil
	}

	const stmt = `
INSERT INTO contest_participants (contest_id, user_id, join_time)
VALUES ($1, $2, $3)
ON CONFLICT (contest_id, user_id) DO NOTHING;`

	if _, err := s.db.Exec(ctx, stmt, req.ContestID, req.UserID, s.now()); err != nil {
		return nil, fmt.Errorf("insert participant: %w", err)
	}

	c.Participants = append(c.Participants, req.UserID)
	return c, nil
}

// CanJoin reports why a user may not join a contest at the given time.
func CanJoin(c domain.Contest, userID string, now time.Time) error {
	if userID == "" {
		return errors.New(errors.CodeUnauthenticated, errors.WithMessagef("user is required"))
	}

	if c.Status(now) == domain.ContestCompleted {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("contest has ended: %s", c.ContestID))
	}

	return nil
}

// CanSubmit reports why a user may not submit to a contest problem at the given time.
// It returns the base points of the problem otherwise.
func CanSubmit(c domain.Contest, userID, problemID string, now time.Time) (int, error) {
	points, ok := c.Points(problemID)
	if !ok {
		return 0, errors.NotFound("problem %s is not part of contest %s", problemID, c.ContestID)
	}

	if !c.HasParticipant(userID) {
		return 0, errors.New(errors.CodePermissionDenied,
			errors.WithMessagef("user is not a participant of contest %s", c.ContestID))
	}

	switch c.Status(now) {
	case domain.ContestUpcoming:
		return 0, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("contest has not started: %s", c.ContestID))
	case domain.ContestCompleted:
		return 0, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("contest has ended: %s", c.ContestID))
	}

	return points, nil
}
