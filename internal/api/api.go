package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/victornm/codejudge/internal/contest"
	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/event"
	"github.com/victornm/codejudge/internal/judge"
	"github.com/victornm/codejudge/internal/leaderboard"
	"github.com/victornm/codejudge/internal/submission"
)

type (
	Judge interface {
		Judge(ctx context.Context, req judge.Request) (*domain.JudgeResult, error)
	}

	Submissions interface {
		Submit(ctx context.Context, req submission.SubmitRequest) (*domain.Submission, error)
		Run(ctx context.Context, req submission.RunRequest) (*domain.JudgeResult, error)
		RunCustom(ctx context.Context, req submission.RunCustomRequest) (*judge.ExecuteResult, error)
		SubmitContest(ctx context.Context, req submission.SubmitContestRequest) (*submission.SubmitContestResponse, error)
		Get(ctx context.Context, userID, submissionID string) (*domain.Submission, error)
		ListByUser(ctx context.Context, req submission.ListRequest) ([]domain.Submission, error)
	}

	Contests interface {
		Join(ctx context.Context, req contest.JoinRequest) (*domain.Contest, error)
	}

	Leaderboards interface {
		GetLeaderboard(ctx context.Context, req leaderboard.GetLeaderboardRequest) (*domain.Leaderboard, error)
		Rebuild(ctx context.Context, contestID string) error
	}

	Redis interface {
		Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	}
)

type Config struct {
	HTTP     gin.IRouter
	GRPC     *grpc.Server
	EventBus *event.Bus

	Judge       Judge
	Submissions Submissions
	Contests    Contests
	Leaderboard Leaderboards

	Redis        Redis
	PubsubPrefix string
}

type API struct {
	judge       Judge
	submissions Submissions
	contests    Contests
	leaderboard Leaderboards

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		judge:       c.Judge,
		submissions: c.Submissions,
		contests:    c.Contests,
		leaderboard: c.Leaderboard,
		redis:       c.Redis,
		prefix:      c.PubsubPrefix,
	}

	// HTTP APIs
	if c.HTTP != nil {
		a.registerRoutes(c.HTTP)
	}

	// gRPC APIs
	if c.GRPC != nil {
		c.GRPC.RegisterService(&judgeServiceDesc, &judgeServer{api: a})
	}

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})
	c.EventBus.Subscribe(domain.EventNameSubmissionJudged, func(ctx context.Context, e event.Event) error {
		return a.PublishSubmissionJudged(ctx, e.(domain.EventSubmissionJudged))
	})

	return a
}
