package leaderboard

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// contestLocks serializes leaderboard writers of the same contest inside this process.
// Contests never wait on each other.
type contestLocks struct {
	mu    sync.Mutex
	locks map[string]*contestLock
}

type contestLock struct {
	sem  *semaphore.Weighted
	refs int
}

func newContestLocks() *contestLocks {
	return &contestLocks{locks: make(map[string]*contestLock)}
}

// lock blocks until the contest is free or ctx is done. The returned func releases it.
func (l *contestLocks) lock(ctx context.Context, contestID string) (func(), error) {
	l.mu.Lock()
	cl, ok := l.locks[contestID]
	if !ok {
		cl = &contestLock{sem: semaphore.NewWeighted(1)}
		l.locks[contestID] = cl
	}
	cl.refs++
	l.mu.Unlock()

	if err := cl.sem.Acquire(ctx, 1); err != nil {
		l.put(contestID, cl)
		return nil, err
	}

	return sync.OnceFunc(func() {
		cl.sem.Release(1)
		l.put(contestID, cl)
	}), nil
}

func (l *contestLocks) put(contestID string, cl *contestLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl.refs--
	if cl.refs == 0 {
		delete(l.locks, contestID)
	}
}
