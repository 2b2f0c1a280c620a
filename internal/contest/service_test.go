package contest_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/codejudge/internal/contest"
	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/errors"
)

var (
	start = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	c     = domain.Contest{
		ContestID:    "c1",
		StartTime:    start,
		EndTime:      start.Add(2 * time.Hour),
		Problems:     []domain.ContestProblem{{ProblemID: "p1", Points: 500}},
		Participants: []string{"u1"},
	}
)

func TestCanSubmit(t *testing.T) {
	tests := map[string]struct {
		user, problem string
		at            time.Time
		wantPoints    int
		wantCode      errors.Code
	}{
		"participant during the contest": {
			user: "u1", problem: "p1", at: start.Add(12 * time.Minute),
			wantPoints: 500,
		},
		"at the very start": {
			user: "u1", problem: "p1", at: start,
			wantPoints: 500,
		},
		"before the start": {
			user: "u1", problem: "p1", at: start.Add(-time.Second),
			wantCode: errors.CodeFailedPrecondition,
		},
		"after the end": {
			user: "u1", problem: "p1", at: start.Add(3 * time.Hour),
			wantCode: errors.CodeFailedPrecondition,
		},
		"not a participant": {
			user: "u2", problem: "p1", at: start.Add(time.Minute),
			wantCode: errors.CodePermissionDenied,
		},
		"problem outside the contest": {
			user: "u1", problem: "p9", at: start.Add(time.Minute),
			wantCode: errors.CodeNotFound,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			points, err := contest.CanSubmit(c, tt.user, tt.problem, tt.at)
			if tt.wantCode != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.Convert(err).Code)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPoints, points)
		})
	}
}

func TestCanJoin(t *testing.T) {
	assert.NoError(t, contest.CanJoin(c, "u2", start.Add(-time.Hour)), "upcoming contests can be joined")
	assert.NoError(t, contest.CanJoin(c, "u2", start.Add(time.Hour)))

	err := contest.CanJoin(c, "u2", start.Add(3*time.Hour))
	assert.True(t, errors.Is(err, errors.CodeFailedPrecondition))

	err = contest.CanJoin(c, "", start)
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))
}

func TestContestStatus(t *testing.T) {
	assert.Equal(t, domain.ContestUpcoming, c.Status(start.Add(-time.Minute)))
	assert.Equal(t, domain.ContestOngoing, c.Status(start))
	assert.Equal(t, domain.ContestOngoing, c.Status(c.EndTime))
	assert.Equal(t, domain.ContestCompleted, c.Status(c.EndTime.Add(time.Nanosecond)))
}
