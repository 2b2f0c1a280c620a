package leaderboard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContestLocks(t *testing.T) {
	l := newContestLocks()
	ctx := context.Background()

	unlock, err := l.lock(ctx, "c1")
	require.NoError(t, err)

	other, err := l.lock(ctx, "c2")
	require.NoError(t, err, "other contests are not blocked")
	other()

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = l.lock(waitCtx, "c1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()

	again, err := l.lock(ctx, "c1")
	require.NoError(t, err)
	again()

	assert.Empty(t, l.locks, "released locks are forgotten")
}
