// Package submission judges user code against problems and contests and keeps the verdicts.
package submission

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/victornm/codejudge/internal/contest"
	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/errors"
	"github.com/victornm/codejudge/internal/event"
	"github.com/victornm/codejudge/internal/judge"
	"github.com/victornm/codejudge/internal/leaderboard"
	"github.com/victornm/codejudge/internal/score"
)

const (
	defaultRetryInterval = 100 * time.Millisecond
	defaultRetryTimeout  = 10 * time.Second
)

type (
	Judge interface {
		Judge(ctx context.Context, req judge.Request) (*domain.JudgeResult, error)
		DryRun(ctx context.Context, req judge.Request) (*domain.JudgeResult, error)
		Execute(ctx context.Context, req judge.ExecuteRequest) (*judge.ExecuteResult, error)
	}

	Problems interface {
		Get(ctx context.Context, problemID string) (*domain.Problem, error)
	}

	Contests interface {
		Get(ctx context.Context, contestID string) (*domain.Contest, error)
	}

	Leaderboard interface {
		Record(ctx context.Context, req leaderboard.RecordRequest) (*domain.LeaderboardEntry, error)
	}
)

type Config struct {
	EventBus    *event.Bus
	Judge       Judge
	Problems    Problems
	Contests    Contests
	Leaderboard Leaderboard
	Repository  Repository

	// RetryInterval is the first wait after a failed insert, RetryTimeout bounds the time spent retrying.
	RetryInterval time.Duration
	RetryTimeout  time.Duration
	Now           func() time.Time
}

type Service struct {
	eb          *event.Bus
	judge       Judge
	problems    Problems
	contests    Contests
	leaderboard Leaderboard
	repo        Repository

	retryInterval time.Duration
	retryTimeout  time.Duration
	now           func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:            c.EventBus,
		judge:         c.Judge,
		problems:      c.Problems,
		contests:      c.Contests,
		leaderboard:   c.Leaderboard,
		repo:          c.Repository,
		retryInterval: c.RetryInterval,
		retryTimeout:  c.RetryTimeout,
		now:           c.Now,
	}

	if s.retryInterval <= 0 {
		s.retryInterval = defaultRetryInterval
	}
	if s.retryTimeout <= 0 {
		s.retryTimeout = defaultRetryTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type SubmitRequest struct {
	UserID    string
	Username  string
	ProblemID string
	Language  domain.Language
	Code      string
}

// Submit judges code against every test case of a problem and stores the verdict.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*domain.Submission, error) {
	if !req.Language.Valid() {
		return nil, errors.UnsupportedLanguage(string(req.Language))
	}

	p, err := s.problems.Get(ctx, req.ProblemID)
	if err != nil {
		return nil, err
	}

	submittedAt := s.now()

	res, err := s.judge.Judge(ctx, judge.Request{
		Language:  req.Language,
		Code:      req.Code,
		TestCases: p.TestCases,
	})
	if err != nil {
		return nil, err
	}
	maskHidden(res, p.TestCases)

	sub, err := newSubmission(req.UserID, req.ProblemID, "", req.Language, req.Code, res, submittedAt)
	if err != nil {
		return nil, err
	}

	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventSubmissionJudged{Submission: *sub, Username: req.Username})

	return sub, nil
}

type RunRequest struct {
	ProblemID string
	Language  domain.Language
	Code      string
}

// Run judges code against the first test cases of a problem without storing anything.
func (s *Service) Run(ctx context.Context, req RunRequest) (*domain.JudgeResult, error) {
	if !req.Language.Valid() {
		return nil, errors.UnsupportedLanguage(string(req.Language))
	}

	p, err := s.problems.Get(ctx, req.ProblemID)
	if err != nil {
		return nil, err
	}

	res, err := s.judge.DryRun(ctx, judge.Request{
		Language:  req.Language,
		Code:      req.Code,
		TestCases: p.TestCases,
	})
	if err != nil {
		return nil, err
	}
	maskHidden(res, p.TestCases)

	return res, nil
}

type RunCustomRequest struct {
	Language domain.Language
	Code     string
	Input    string
}

// RunCustom runs code once on the user's own input.
func (s *Service) RunCustom(ctx context.Context, req RunCustomRequest) (*judge.ExecuteResult, error) {
	if !req.Language.Valid() {
		return nil, errors.UnsupportedLanguage(string(req.Language))
	}

	return s.judge.Execute(ctx, judge.ExecuteRequest{
		Language: req.Language,
		Code:     req.Code,
		Input:    req.Input,
	})
}

type SubmitContestRequest struct {
	ContestID string
	ProblemID string
	UserID    string
	Username  string
	Language  domain.Language
	Code      string
}

type SubmitContestResponse struct {
	Submission domain.Submission
	// Entry is the user's leaderboard entry after an accepted, positively scored submission.
	Entry *domain.LeaderboardEntry
	// LeaderboardFailed is set when the verdict was stored but the leaderboard could not be updated.
	LeaderboardFailed bool
}

// SubmitContest judges a contest submission, scores it by the time elapsed since
// the contest started and records a positive score on the leaderboard.
// The verdict is returned even when the leaderboard update fails.
func (s *Service) SubmitContest(ctx context.Context, req SubmitContestRequest) (*SubmitContestResponse, error) {
	if !req.Language.Valid() {
		return nil, errors.UnsupportedLanguage(string(req.Language))
	}

	c, err := s.contests.Get(ctx, req.ContestID)
	if err != nil {
		return nil, err
	}

	submittedAt := s.now()

	points, err := contest.CanSubmit(*c, req.UserID, req.ProblemID, submittedAt)
	if err != nil {
		return nil, err
	}

	p, err := s.problems.Get(ctx, req.ProblemID)
	if err != nil {
		return nil, err
	}

	res, err := s.judge.Judge(ctx, judge.Request{
		Language:  req.Language,
		Code:      req.Code,
		TestCases: p.TestCases,
	})
	if err != nil {
		return nil, err
	}
	maskHidden(res, p.TestCases)

	sub, err := newSubmission(req.UserID, req.ProblemID, req.ContestID, req.Language, req.Code, res, submittedAt)
	if err != nil {
		return nil, err
	}

	if sub.Verdict == domain.VerdictAccepted {
		sub.Score = score.Calculate(points, c.StartTime, submittedAt)
	}

	if err := s.save(ctx, sub); err != nil {
		return nil, err
	}

	resp := &SubmitContestResponse{Submission: *sub}

	if sub.Score > 0 {
		resp.Entry, err = s.leaderboard.Record(ctx, leaderboard.RecordRequest{
			Contest:      *c,
			UserID:       req.UserID,
			Username:     req.Username,
			ProblemID:    req.ProblemID,
			SubmissionID: sub.ID,
			Score:        sub.Score,
		})
		if err != nil {
			resp.LeaderboardFailed = true
			slog.ErrorContext(ctx, "submission: record leaderboard failed",
				"contest", req.ContestID,
				"submission", sub.ID,
				"score", sub.Score,
				"error", err,
			)
		}
	}

	s.eb.Publish(ctx, domain.EventSubmissionJudged{Submission: *sub, Username: req.Username})

	return resp, nil
}

// Get returns a submission of the user.
func (s *Service) Get(ctx context.Context, userID, submissionID string) (*domain.Submission, error) {
	sub, err := s.repo.Get(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	if sub.UserID != userID {
		return nil, errors.NotFound("submission not found: %s", submissionID)
	}

	return sub, nil
}

// ListByUser returns the user's submissions, newest first.
func (s *Service) ListByUser(ctx context.Context, req ListRequest) ([]domain.Submission, error) {
	if req.Limit <= 0 || req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}

	subs, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, errors.Persistence(err)
	}

	return subs, nil
}

// save stores a verdict, retrying transient failures with exponential backoff.
// Inserts are idempotent on the submission id so a retried insert that already landed is harmless.
func (s *Service) save(ctx context.Context, sub *domain.Submission) error {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.retryInterval),
		backoff.WithMaxElapsedTime(s.retryTimeout),
	)

	err := backoff.RetryNotify(func() error {
		err := s.repo.Insert(ctx, sub)
		if errors.Is(err, errors.CodeInvalidArgument) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, d time.Duration) {
		slog.WarnContext(ctx, "submission: insert failed, retrying",
			"submission", sub.ID,
			"retry_in", d,
			"error", err,
		)
	})
	if err != nil {
		slog.ErrorContext(ctx, "submission: insert failed",
			"submission", sub.ID,
			"verdict", sub.Verdict,
			"error", err,
		)
		return errors.Persistence(err)
	}

	return nil
}

func newSubmission(userID, problemID, contestID string, l domain.Language, code string, res *domain.JudgeResult, at time.Time) (*domain.Submission, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate submission ID: %w", err)
	}

	return &domain.Submission{
		ID:           id.String(),
		UserID:       userID,
		ProblemID:    problemID,
		ContestID:    contestID,
		Language:     l,
		Code:         code,
		Verdict:      res.Verdict,
		Details:      res.Details,
		PassedCases:  res.PassedCases,
		TotalCases:   res.TotalCases,
		ErrorMessage: res.ErrorMessage,
		SubmittedAt:  at,
	}, nil
}

// maskHidden blanks the input and expected output of hidden test cases in the result details.
func maskHidden(res *domain.JudgeResult, cases []domain.TestCase) {
	for i := range res.Details {
		d := &res.Details[i]
		if d.Index < 1 || d.Index > len(cases) || !cases[d.Index-1].Hidden {
			continue
		}
		d.Input = ""
		d.ExpectedOutput = ""
	}
}
