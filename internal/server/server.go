package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/victornm/codejudge/internal/api"
	"github.com/victornm/codejudge/internal/contest"
	"github.com/victornm/codejudge/internal/event"
	"github.com/victornm/codejudge/internal/judge"
	"github.com/victornm/codejudge/internal/leaderboard"
	"github.com/victornm/codejudge/internal/problem"
	"github.com/victornm/codejudge/internal/submission"
	"github.com/victornm/codejudge/internal/telemetry"
	"github.com/victornm/codejudge/internal/toolchain"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Log telemetry.LogConfig

	Event struct {
		PoolSize int
		Timeout  time.Duration
	}

	Judge struct {
		Workers        int
		WarmUp         int
		DryRunCases    int
		CompileTimeout time.Duration
		RunTimeout     time.Duration
		MaxOutputBytes int

		// WorkspaceRoot holds one directory per build. Directories older than
		// SweepAge are removed at startup.
		WorkspaceRoot string
		SweepAge      time.Duration

		Toolchains toolchain.Config
	}

	Submission struct {
		RetryInterval time.Duration
		RetryTimeout  time.Duration
	}

	Redis struct {
		Leaderboard struct {
			Addrs           []string
			Pass            string
			Prefix          string
			OngoingTTL      time.Duration
			CompletedTTL    time.Duration
			PublishInterval time.Duration
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}
}

// DefaultConfig returns the values used for every key the config file leaves out.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Log.Format = "auto"
	c.Log.Level = "info"
	c.Judge.CompileTimeout = 10 * time.Second
	c.Judge.RunTimeout = 5 * time.Second
	c.Judge.MaxOutputBytes = 1 << 20
	c.Judge.WarmUp = judge.DefaultWarmUp
	c.Judge.DryRunCases = judge.DefaultDryRunCases
	c.Judge.WorkspaceRoot = toolchain.DefaultRoot
	c.Judge.SweepAge = time.Hour
	c.Judge.Toolchains = toolchain.DefaultConfig()
	c.Submission.RetryTimeout = 10 * time.Second
	c.Redis.Leaderboard.Prefix = "codejudge"
	c.Redis.Leaderboard.OngoingTTL = time.Hour
	c.Redis.Leaderboard.CompletedTTL = 24 * time.Hour
	c.Redis.Pubsub.Prefix = "codejudge"
	return c
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres *pgxpool.Pool
		arena    *toolchain.Arena
	}

	service struct {
		judge       *judge.Service
		problem     *problem.Service
		contest     *contest.Service
		leaderboard *leaderboard.Service
		submission  *submission.Service
	}

	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus(
		event.WithPoolSize(c.Event.PoolSize),
		event.WithTimeout(c.Event.Timeout),
	)

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := s.initArena(); err != nil {
		return fmt.Errorf("arena: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := s.c.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return err
	}

	s.infra.postgres = db
	return nil
}

// initArena prepares the workspace root and removes directories left behind by a previous crash.
func (s *Server) initArena() error {
	a, err := toolchain.NewArena(afero.NewOsFs(), s.c.Judge.WorkspaceRoot)
	if err != nil {
		return err
	}

	n, err := a.Sweep(s.c.Judge.SweepAge)
	if err != nil {
		slog.Warn("server: sweep workspaces failed", "root", a.Root(), "error", err)
	} else if n > 0 {
		slog.Info("server: swept stale workspaces", "root", a.Root(), "count", n)
	}

	s.infra.arena = a
	return nil
}

func (s *Server) initService() error {
	set, err := toolchain.NewSet(s.c.Judge.Toolchains)
	if err != nil {
		return fmt.Errorf("toolchains: %w", err)
	}

	runner := toolchain.NewRunner(toolchain.RunnerConfig{
		Toolchains:     set,
		Arena:          s.infra.arena,
		CompileTimeout: s.c.Judge.CompileTimeout,
		RunTimeout:     s.c.Judge.RunTimeout,
		MaxOutputBytes: s.c.Judge.MaxOutputBytes,
	})

	s.service.judge = judge.NewService(judge.Config{
		Runner:      runner,
		Workers:     s.c.Judge.Workers,
		WarmUp:      s.c.Judge.WarmUp,
		DryRunCases: s.c.Judge.DryRunCases,
		Metrics:     judge.NewMetrics(prometheus.DefaultRegisterer),
	})

	s.service.problem = problem.NewService(problem.Config{
		DB: s.infra.postgres,
	})

	s.service.contest = contest.NewService(contest.Config{
		DB: s.infra.postgres,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus:        s.eb,
		Store:           leaderboard.NewPostgresStore(s.infra.postgres),
		Contests:        s.service.contest,
		Redis:           s.infra.redis.leaderboard,
		Prefix:          s.c.Redis.Leaderboard.Prefix,
		OngoingTTL:      s.c.Redis.Leaderboard.OngoingTTL,
		CompletedTTL:    s.c.Redis.Leaderboard.CompletedTTL,
		PublishInterval: s.c.Redis.Leaderboard.PublishInterval,
		Metrics:         leaderboard.NewMetrics(prometheus.DefaultRegisterer),
	})

	s.service.submission = submission.NewService(submission.Config{
		EventBus:      s.eb,
		Judge:         s.service.judge,
		Problems:      s.service.problem,
		Contests:      s.service.contest,
		Leaderboard:   s.service.leaderboard,
		Repository:    submission.NewPostgresRepository(s.infra.postgres),
		RetryInterval: s.c.Submission.RetryInterval,
		RetryTimeout:  s.c.Submission.RetryTimeout,
	})

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())
	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)

	api.New(api.Config{
		HTTP:         e,
		GRPC:         s.grpc,
		EventBus:     s.eb,
		Judge:        s.service.judge,
		Submissions:  s.service.submission,
		Contests:     s.service.contest,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	s.health.SetServingStatus(api.JudgeServiceName, healthpb.HealthCheckResponse_SERVING)

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, "server: gRPC listening", "port", s.c.GRPC.Port)
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, "server: HTTP listening", "port", s.c.HTTP.Port)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.health.Shutdown()
	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	s.infra.postgres.Close()
	for _, r := range []redis.UniversalClient{s.infra.redis.leaderboard, s.infra.redis.pubsub} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
