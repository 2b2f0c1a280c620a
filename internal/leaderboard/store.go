package leaderboard

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/victornm/codejudge/internal/domain"
)

// Store is the authoritative leaderboard of every contest.
type Store interface {
	// Entries returns the entries of a contest ordered by rank.
	Entries(ctx context.Context, contestID string) ([]domain.LeaderboardEntry, error)
	// Update replaces the entries of a contest with the result of fn, atomically
	// with respect to other writers of the same contest.
	Update(ctx context.Context, contestID string, fn func([]domain.LeaderboardEntry) ([]domain.LeaderboardEntry, error)) error
}

// Score is a positive contest score to fold into a leaderboard.
type Score struct {
	UserID       string
	Username     string
	ProblemID    string
	SubmissionID string
	Score        int
}

// Apply folds sc into entries. The user's best score on the problem is kept,
// the submission is appended, the total is re-summed and every entry is re-ranked.
func Apply(entries []domain.LeaderboardEntry, sc Score) []domain.LeaderboardEntry {
	i := slices.IndexFunc(entries, func(e domain.LeaderboardEntry) bool {
		return e.UserID == sc.UserID
	})
	if i < 0 {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:   sc.UserID,
			Username: sc.Username,
		})
		i = len(entries) - 1
	}

	e := &entries[i]
	if sc.Username != "" {
		e.Username = sc.Username
	}

	j := slices.IndexFunc(e.ProblemScores, func(ps domain.ProblemScore) bool {
		return ps.ProblemID == sc.ProblemID
	})
	switch {
	case j < 0:
		e.ProblemScores = append(e.ProblemScores, domain.ProblemScore{ProblemID: sc.ProblemID, Score: sc.Score})
	case sc.Score > e.ProblemScores[j].Score:
		e.ProblemScores[j].Score = sc.Score
	}

	if sc.SubmissionID != "" {
		e.SubmissionIDs = append(e.SubmissionIDs, sc.SubmissionID)
	}

	e.TotalScore = 0
	for _, ps := range e.ProblemScores {
		e.TotalScore += ps.Score
	}

	Rank(entries)
	return entries
}

// Rank sorts entries by total score in descending order and numbers them from 1.
// Entries with the same total keep their relative order.
func Rank(entries []domain.LeaderboardEntry) {
	slices.SortStableFunc(entries, func(a, b domain.LeaderboardEntry) int {
		return cmp.Compare(b.TotalScore, a.TotalScore)
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// MemoryStore keeps leaderboards in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	contests map[string][]domain.LeaderboardEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contests: make(map[string][]domain.LeaderboardEntry)}
}

func (m *MemoryStore) Entries(_ context.Context, contestID string) ([]domain.LeaderboardEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return cloneEntries(m.contests[contestID]), nil
}

func (m *MemoryStore) Update(_ context.Context, contestID string, fn func([]domain.LeaderboardEntry) ([]domain.LeaderboardEntry, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := fn(cloneEntries(m.contests[contestID]))
	if err != nil {
		return err
	}

	m.contests[contestID] = cloneEntries(next)
	return nil
}

func cloneEntries(entries []domain.LeaderboardEntry) []domain.LeaderboardEntry {
	out := make([]domain.LeaderboardEntry, len(entries))
	for i, e := range entries {
		e.ProblemScores = slices.Clone(e.ProblemScores)
		e.SubmissionIDs = slices.Clone(e.SubmissionIDs)
		out[i] = e
	}
	return out
}
