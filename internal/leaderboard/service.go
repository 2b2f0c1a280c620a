// Package leaderboard ranks contest participants. Postgres holds the authoritative
// standings and Redis a projection of them that can be dropped and rebuilt at any time.
package leaderboard

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/errors"
	"github.com/victornm/codejudge/internal/event"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100

	defaultTTL             = time.Hour
	defaultPublishInterval = 200 * time.Millisecond
)

// Contests looks contests up by id.
type Contests interface {
	Get(ctx context.Context, contestID string) (*domain.Contest, error)
}

type Config struct {
	EventBus *event.Bus
	Store    Store
	Contests Contests
	Redis    redis.UniversalClient
	Prefix   string

	// OngoingTTL is the cache expiry while a contest runs, CompletedTTL once it ended.
	OngoingTTL   time.Duration
	CompletedTTL time.Duration
	// PublishInterval is the minimum time between two leaderboard.updated events of a contest.
	PublishInterval time.Duration

	Metrics *Metrics
	Now     func() time.Time
}

type Service struct {
	eb       *event.Bus
	store    Store
	contests Contests
	cache    cache
	locks    *contestLocks
	rebuilds singleflight.Group

	ongoingTTL      time.Duration
	completedTTL    time.Duration
	publishInterval time.Duration

	metrics *Metrics
	now     func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:              c.EventBus,
		store:           c.Store,
		contests:        c.Contests,
		cache:           cache{redis: c.Redis, prefix: c.Prefix},
		locks:           newContestLocks(),
		ongoingTTL:      c.OngoingTTL,
		completedTTL:    c.CompletedTTL,
		publishInterval: c.PublishInterval,
		metrics:         c.Metrics,
		now:             c.Now,
	}

	if s.ongoingTTL <= 0 {
		s.ongoingTTL = defaultTTL
	}
	if s.completedTTL <= 0 {
		s.completedTTL = defaultTTL
	}
	if s.publishInterval <= 0 {
		s.publishInterval = defaultPublishInterval
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.eb.Subscribe(domain.EventNameScoreRecorded, func(ctx context.Context, e event.Event) error {
		return s.schedulePublishLeaderboard(ctx, e.(domain.EventScoreRecorded).Contest)
	})

	return s
}

type RecordRequest struct {
	Contest      domain.Contest
	UserID       string
	Username     string
	ProblemID    string
	SubmissionID string
	Score        int
}

// Record folds a contest score into the leaderboard and returns the user's updated entry.
// Scores that are not positive change nothing and return a nil entry.
// The authoritative write decides the outcome, a cache failure is only logged.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*domain.LeaderboardEntry, error) {
	if req.Score <= 0 {
		return nil, nil
	}

	contestID := req.Contest.ContestID

	unlock, err := s.locks.lock(ctx, contestID)
	if err != nil {
		return nil, fmt.Errorf("lock contest %s: %w", contestID, err)
	}
	defer unlock()

	var entry domain.LeaderboardEntry
	err = s.store.Update(ctx, contestID, func(entries []domain.LeaderboardEntry) ([]domain.LeaderboardEntry, error) {
		entries = Apply(entries, Score{
			UserID:       req.UserID,
			Username:     req.Username,
			ProblemID:    req.ProblemID,
			SubmissionID: req.SubmissionID,
			Score:        req.Score,
		})

		i := slices.IndexFunc(entries, func(e domain.LeaderboardEntry) bool { return e.UserID == req.UserID })
		entry = entries[i]
		return entries, nil
	})
	if err != nil {
		if errors.Is(err, errors.CodeNotFound) {
			return nil, err
		}
		return nil, errors.Persistence(fmt.Errorf("update leaderboard of contest %s: %w", contestID, err))
	}

	total, err := s.cache.record(ctx, contestID, req.Username, req.ProblemID, req.Score, s.ttl(req.Contest))
	switch {
	case err != nil:
		s.metrics.cacheFailed("record")
		slog.WarnContext(ctx, "leaderboard: cache write failed",
			"contest", contestID,
			"user", req.Username,
			"error", err,
		)
	case total == recordDropped:
		slog.InfoContext(ctx, "leaderboard: cache dropped, problems of user expired",
			"contest", contestID,
			"user", req.Username,
		)
	}

	s.eb.Publish(ctx, domain.EventScoreRecorded{
		Contest: req.Contest,
		Entry:   entry,
	})

	return &entry, nil
}

type GetLeaderboardRequest struct {
	ContestID string
	// Page is 1-based.
	Page  int
	Limit int
}

// GetLeaderboard returns one page of a contest leaderboard, highest score first.
// It reads the cache, rebuilding it when empty, and falls back to the store when the cache fails.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.Page < 1 || req.Limit < 1 || req.Limit > MaxLimit {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("invalid page %d or limit %d, limit must be within [1, %d]", req.Page, req.Limit, MaxLimit))
	}

	contest, err := s.contests.Get(ctx, req.ContestID)
	if err != nil {
		return nil, err
	}

	offset := (req.Page - 1) * req.Limit

	rows, err := s.cachedPage(ctx, *contest, offset, req.Limit)
	if err != nil {
		s.metrics.cacheFailed("read")
		s.metrics.fellBack()
		slog.WarnContext(ctx, "leaderboard: cache read failed, reading store",
			"contest", contest.ContestID,
			"error", err,
		)

		rows, err = s.storedPage(ctx, *contest, offset, req.Limit)
		if err != nil {
			return nil, errors.Persistence(err)
		}
	}

	return &domain.Leaderboard{
		ContestID: contest.ContestID,
		Page:      req.Page,
		Limit:     req.Limit,
		Entries:   rows,
	}, nil
}

func (s *Service) cachedPage(ctx context.Context, c domain.Contest, offset, limit int) ([]domain.LeaderboardRow, error) {
	n, err := s.cache.size(ctx, c.ContestID)
	if err != nil {
		return nil, err
	}

	warm := n > 0
	if !warm {
		if err := s.sharedRebuild(ctx, c); err != nil {
			return nil, err
		}
	}

	cached, err := s.cache.page(ctx, c.ContestID, int64(offset), int64(limit), warm, s.ttl(c))
	if stderrors.Is(err, errInconsistent) {
		slog.InfoContext(ctx, "leaderboard: cache inconsistent, rebuilding",
			"contest", c.ContestID,
			"error", err,
		)

		if err := s.sharedRebuild(ctx, c); err != nil {
			return nil, err
		}
		cached, err = s.cache.page(ctx, c.ContestID, int64(offset), int64(limit), false, s.ttl(c))
	}
	if err != nil {
		return nil, err
	}

	rows := make([]domain.LeaderboardRow, len(cached))
	for i, r := range cached {
		rows[i] = domain.LeaderboardRow{
			Rank:          offset + i + 1,
			Username:      r.username,
			TotalScore:    r.total,
			ProblemScores: orderScores(c, r.problems),
		}
	}

	return rows, nil
}

func (s *Service) storedPage(ctx context.Context, c domain.Contest, offset, limit int) ([]domain.LeaderboardRow, error) {
	entries, err := s.store.Entries(ctx, c.ContestID)
	if err != nil {
		return nil, fmt.Errorf("load leaderboard of contest %s: %w", c.ContestID, err)
	}

	if offset >= len(entries) {
		return []domain.LeaderboardRow{}, nil
	}
	entries = entries[offset:min(offset+limit, len(entries))]

	rows := make([]domain.LeaderboardRow, len(entries))
	for i, e := range entries {
		problems := make(map[string]int, len(e.ProblemScores))
		for _, ps := range e.ProblemScores {
			problems[ps.ProblemID] = ps.Score
		}

		rows[i] = domain.LeaderboardRow{
			Rank:          offset + i + 1,
			Username:      e.Username,
			TotalScore:    e.TotalScore,
			ProblemScores: orderScores(c, problems),
		}
	}

	return rows, nil
}

// sharedRebuild lets concurrent readers of one contest share a single rebuild.
func (s *Service) sharedRebuild(ctx context.Context, c domain.Contest) error {
	_, err, _ := s.rebuilds.Do(c.ContestID, func() (any, error) {
		return nil, s.rebuild(context.WithoutCancel(ctx), c)
	})
	return err
}

// Rebuild replaces the cached leaderboard of a contest with the authoritative one.
func (s *Service) Rebuild(ctx context.Context, contestID string) error {
	contest, err := s.contests.Get(ctx, contestID)
	if err != nil {
		return err
	}

	if err := s.rebuild(ctx, *contest); err != nil {
		s.metrics.cacheFailed("rebuild")
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("rebuild leaderboard of contest %s failed", contestID),
			errors.WithCause(err),
		)
	}

	return nil
}

// rebuild holds the contest lock so no score is recorded between the store read and the cache load.
func (s *Service) rebuild(ctx context.Context, c domain.Contest) error {
	unlock, err := s.locks.lock(ctx, c.ContestID)
	if err != nil {
		return fmt.Errorf("lock contest %s: %w", c.ContestID, err)
	}
	defer unlock()

	entries, err := s.store.Entries(ctx, c.ContestID)
	if err != nil {
		return fmt.Errorf("load leaderboard of contest %s: %w", c.ContestID, err)
	}

	if err := s.cache.load(ctx, c.ContestID, entries, s.ttl(c)); err != nil {
		return err
	}

	s.metrics.rebuilt()
	slog.InfoContext(ctx, "leaderboard: cache rebuilt",
		"contest", c.ContestID,
		"entries", len(entries),
	)

	return nil
}

// Standings returns every entry of a contest as stored, ordered by rank.
func (s *Service) Standings(ctx context.Context, contestID string) ([]domain.LeaderboardEntry, error) {
	entries, err := s.store.Entries(ctx, contestID)
	if err != nil {
		return nil, errors.Persistence(err)
	}
	return entries, nil
}

func (s *Service) ttl(c domain.Contest) time.Duration {
	if s.now().After(c.EndTime) {
		return s.completedTTL
	}
	return s.ongoingTTL
}

// schedulePublishLeaderboard publishes the first page of a contest leaderboard at most once per interval.
// Scores of many users change in bursts, so most of them do not trigger an event.
func (s *Service) schedulePublishLeaderboard(ctx context.Context, c domain.Contest) error {
	// SETNX keeps several instances from publishing the same burst.
	ok, err := s.cache.markPublished(ctx, c.ContestID, s.now(), s.publishInterval)
	if err != nil {
		return err
	}

	if !ok {
		return nil
	}

	l, err := s.GetLeaderboard(ctx, GetLeaderboardRequest{ContestID: c.ContestID})
	if err != nil {
		return fmt.Errorf("get leaderboard failed: contest=%s: %w", c.ContestID, err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: *l,
	})

	return nil
}

// orderScores lists the scores in the order the contest declares its problems.
func orderScores(c domain.Contest, scores map[string]int) []domain.ProblemScore {
	out := make([]domain.ProblemScore, 0, len(scores))
	for _, p := range c.Problems {
		if v, ok := scores[p.ProblemID]; ok {
			out = append(out, domain.ProblemScore{ProblemID: p.ProblemID, Score: v})
		}
	}
	return out
}
