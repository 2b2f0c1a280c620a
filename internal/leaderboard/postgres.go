package leaderboard

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/errors"
)

// PostgresStore keeps leaderboards in the leaderboard_entries table.
// Writers of one contest are serialized by a row lock on the contest.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectEntriesStmt = `
SELECT user_id, username, total_score, problem_scores, submission_ids, rank
FROM leaderboard_entries
WHERE contest_id = $1
ORDER BY rank, user_id;`

func (p *PostgresStore) Entries(ctx context.Context, contestID string) ([]domain.LeaderboardEntry, error) {
	return queryEntries(ctx, p.db, contestID)
}

func (p *PostgresStore) Update(ctx context.Context, contestID string, fn func([]domain.LeaderboardEntry) ([]domain.LeaderboardEntry, error)) (err error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	const lockStmt = `SELECT contest_id FROM contests WHERE contest_id = $1 FOR UPDATE;`

	var id string
	err = tx.QueryRow(ctx, lockStmt, contestID).Scan(&id)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("contest not found: %s", contestID)
	}
	if err != nil {
		return fmt.Errorf("lock contest %s: %w", contestID, err)
	}

	entries, err := queryEntries(ctx, tx, contestID)
	if err != nil {
		return err
	}

	next, err := fn(entries)
	if err != nil {
		return err
	}

	const upsertStmt = `
INSERT INTO leaderboard_entries (contest_id, user_id, username, total_score, problem_scores, submission_ids, rank, update_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (contest_id, user_id) DO UPDATE SET
	username = EXCLUDED.username,
	total_score = EXCLUDED.total_score,
	problem_scores = EXCLUDED.problem_scores,
	submission_ids = EXCLUDED.submission_ids,
	rank = EXCLUDED.rank,
	update_time = EXCLUDED.update_time;`

	b := &pgx.Batch{}
	for _, e := range next {
		b.Queue(upsertStmt, contestID, e.UserID, e.Username, e.TotalScore, e.ProblemScores, e.SubmissionIDs, e.Rank)
	}

	if err = tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("upsert leaderboard entries: %w", err)
	}

	return tx.Commit(ctx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryEntries(ctx context.Context, q querier, contestID string) ([]domain.LeaderboardEntry, error) {
	rows, err := q.Query(ctx, selectEntriesStmt, contestID)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var e domain.LeaderboardEntry
		err := r.Scan(&e.UserID, &e.Username, &e.TotalScore, &e.ProblemScores, &e.SubmissionIDs, &e.Rank)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan leaderboard entries: %w", err)
	}

	return entries, nil
}
