// Package judge turns code and test cases into a verdict on a bounded pool of workers.
package judge

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/errors"
	"github.com/victornm/codejudge/internal/toolchain"
)

// DefaultDryRunCases is the number of cases evaluated by a dry run.
const DefaultDryRunCases = 3

type Config struct {
	Runner *toolchain.Runner

	// Workers bounds the submissions judged at the same time. Defaults to the number of CPUs.
	Workers     int
	WarmUp      int
	DryRunCases int
	Metrics     *Metrics
}

type Service struct {
	runner  *toolchain.Runner
	pool    *semaphore.Weighted
	harness Harness
	dryRun  int
	metrics *Metrics
}

func NewService(c Config) *Service {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.DryRunCases <= 0 {
		c.DryRunCases = DefaultDryRunCases
	}

	return &Service{
		runner:  c.Runner,
		pool:    semaphore.NewWeighted(int64(c.Workers)),
		harness: Harness{WarmUp: c.WarmUp},
		dryRun:  c.DryRunCases,
		metrics: c.Metrics,
	}
}

type Request struct {
	Language  domain.Language
	Code      string
	TestCases []domain.TestCase
}

// Judge evaluates the code against every test case.
func (s *Service) Judge(ctx context.Context, req Request) (*domain.JudgeResult, error) {
	return s.judge(ctx, req.Language, req.Code, req.TestCases)
}

// DryRun evaluates the code against the first few test cases only.
func (s *Service) DryRun(ctx context.Context, req Request) (*domain.JudgeResult, error) {
	cases := req.TestCases
	if len(cases) > s.dryRun {
		cases = cases[:s.dryRun]
	}

	return s.judge(ctx, req.Language, req.Code, cases)
}

func (s *Service) judge(ctx context.Context, l domain.Language, code string, cases []domain.TestCase) (*domain.JudgeResult, error) {
	if !s.runner.Supports(l) {
		return nil, errors.UnsupportedLanguage(string(l))
	}

	var start time.Time
	res, err := submit(ctx, s, func(ctx context.Context) (*domain.JudgeResult, error) {
		start = time.Now()

		b, err := s.runner.Build(ctx, l, code)
		if err != nil {
			var ce *toolchain.CompileError
			if stderrors.As(err, &ce) {
				return &domain.JudgeResult{
					Verdict:      domain.VerdictCompilationError,
					TotalCases:   len(cases),
					Details:      []domain.TestResult{},
					ErrorMessage: ce.Diagnostic,
				}, nil
			}
			return nil, err
		}
		defer b.Close()

		return s.harness.Evaluate(ctx, b, cases)
	})
	if err != nil {
		slog.ErrorContext(ctx, "judge: judge failed", "language", l, "error", err)
		return nil, err
	}

	d := time.Since(start)
	s.metrics.observe(l, res.Verdict, d)
	slog.InfoContext(ctx, "judge: judged",
		"language", l,
		"verdict", res.Verdict,
		"passed", res.PassedCases,
		"total", res.TotalCases,
		"duration", d,
	)

	return res, nil
}

type ExecuteRequest struct {
	Language domain.Language
	Code     string
	Input    string
}

// ExecuteResult is the outcome of a single run on custom input.
// Verdict is Accepted when the program ran to completion.
type ExecuteResult struct {
	Verdict      domain.Verdict
	Output       string
	ErrorMessage string
}

// Execute builds the code and runs it once on the given input.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	if !s.runner.Supports(req.Language) {
		return nil, errors.UnsupportedLanguage(string(req.Language))
	}

	return submit(ctx, s, func(ctx context.Context) (*ExecuteResult, error) {
		out, err := s.runner.Execute(ctx, req.Language, req.Code, req.Input)

		var (
			ce *toolchain.CompileError
			re *toolchain.RuntimeError
		)
		switch {
		case err == nil:
			return &ExecuteResult{Verdict: domain.VerdictAccepted, Output: out}, nil
		case stderrors.As(err, &ce):
			return &ExecuteResult{Verdict: domain.VerdictCompilationError, ErrorMessage: ce.Diagnostic}, nil
		case stderrors.As(err, &re):
			return &ExecuteResult{Verdict: domain.VerdictRuntimeError, Output: out, ErrorMessage: re.Message()}, nil
		default:
			return nil, err
		}
	})
}

type outcome[T any] struct {
	v   T
	err error
}

// submit runs task on its own goroutine once a worker is free.
// If ctx ends first the task sees the cancellation and cleans up in the background.
func submit[T any](ctx context.Context, s *Service, task func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := s.pool.Acquire(ctx, 1); err != nil {
		return zero, errors.New(errors.CodeResourceExhausted,
			errors.WithMessagef("judge queue: %v", err),
			errors.WithCause(err),
		)
	}
	s.metrics.acquire()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: errors.Internal(fmt.Errorf("judge: task panic: %v, stack: %s", r, debug.Stack()))}
			}
			s.metrics.release()
			s.pool.Release(1)
		}()

		v, err := task(ctx)
		done <- outcome[T]{v: v, err: err}
	}()

	select {
	case o := <-done:
		return o.v, o.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
