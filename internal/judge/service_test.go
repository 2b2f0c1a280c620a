//go:build unix

package judge_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/codejudge/internal/domain"
	"github.com/victornm/codejudge/internal/errors"
	"github.com/victornm/codejudge/internal/judge"
	"github.com/victornm/codejudge/internal/toolchain"
)

const (
	squareScript = "read n\necho $((n * n))\n"
	wrongOnFour  = "read n\nif [ \"$n\" -eq 4 ]; then echo 0; else echo $((n * n)); fi\n"
)

func TestService_Judge(t *testing.T) {
	tests := map[string]struct {
		req    judge.Request
		assert func(t *testing.T, res *domain.JudgeResult, err error)
	}{
		"correct program is accepted": {
			req: judge.Request{Language: domain.LanguagePython, Code: squareScript, TestCases: squares(2)},
			assert: func(t *testing.T, res *domain.JudgeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, domain.VerdictAccepted, res.Verdict)
				assert.Equal(t, 2, res.PassedCases)
				assert.Equal(t, 2, res.TotalCases)
			},
		},
		"wrong answer on case 4 of 6": {
			req: judge.Request{Language: domain.LanguagePython, Code: wrongOnFour, TestCases: squares(6)},
			assert: func(t *testing.T, res *domain.JudgeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, domain.VerdictWrongAnswer, res.Verdict)
				assert.LessOrEqual(t, res.PassedCases, 3)
				assert.Len(t, res.Details, 4)
			},
		},
		"compile error runs no case": {
			req: judge.Request{Language: domain.LanguageCpp, Code: "#error\n", TestCases: squares(3)},
			assert: func(t *testing.T, res *domain.JudgeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, domain.VerdictCompilationError, res.Verdict)
				assert.Equal(t, "Line 1, Char 2: invalid preprocessing directive", res.ErrorMessage)
				assert.Empty(t, res.Details)
				assert.Equal(t, 3, res.TotalCases)
			},
		},
		"runtime error": {
			req: judge.Request{Language: domain.LanguagePython, Code: "echo boom >&2\nexit 1\n", TestCases: squares(3)},
			assert: func(t *testing.T, res *domain.JudgeResult, err error) {
				require.NoError(t, err)
				assert.Equal(t, domain.VerdictRuntimeError, res.Verdict)
				assert.Equal(t, "boom\n", res.ErrorMessage)
				assert.Len(t, res.Details, 1)
			},
		},
		"unsupported language is rejected": {
			req: judge.Request{Language: "ruby", Code: "puts 1", TestCases: squares(1)},
			assert: func(t *testing.T, res *domain.JudgeResult, err error) {
				require.ErrorIs(t, err, errors.ErrUnsupportedLanguage)
				assert.True(t, errors.Is(err, errors.CodeInvalidArgument))
				assert.Nil(t, res)
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s, root := makeService(t)

			res, err := s.Judge(context.Background(), tt.req)
			tt.assert(t, res, err)

			entries, rerr := afero.ReadDir(afero.NewOsFs(), root)
			require.NoError(t, rerr)
			assert.Empty(t, entries, "no workspace should be left behind")
		})
	}
}

func TestService_DryRun(t *testing.T) {
	s, _ := makeService(t)

	res, err := s.DryRun(context.Background(), judge.Request{
		Language:  domain.LanguagePython,
		Code:      squareScript,
		TestCases: squares(10),
	})
	require.NoError(t, err)

	assert.Equal(t, domain.VerdictAccepted, res.Verdict)
	assert.Equal(t, 3, res.TotalCases)
	assert.Len(t, res.Details, 3)
}

func TestService_Execute(t *testing.T) {
	s, _ := makeService(t)
	ctx := context.Background()

	res, err := s.Execute(ctx, judge.ExecuteRequest{Language: domain.LanguagePython, Code: squareScript, Input: "12"})
	require.NoError(t, err)
	assert.Equal(t, &judge.ExecuteResult{Verdict: domain.VerdictAccepted, Output: "144\n"}, res)

	res, err = s.Execute(ctx, judge.ExecuteRequest{Language: domain.LanguageCpp, Code: "#error\n"})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictCompilationError, res.Verdict)

	res, err = s.Execute(ctx, judge.ExecuteRequest{Language: domain.LanguagePython, Code: "sleep 5\n"})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictRuntimeError, res.Verdict)
	assert.Contains(t, res.ErrorMessage, "time limit exceeded")

	_, err = s.Execute(ctx, judge.ExecuteRequest{Language: "go"})
	require.ErrorIs(t, err, errors.ErrUnsupportedLanguage)
}

func TestService_Concurrent(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, root := makeService(t, withWorkers(2), withMetrics(judge.NewMetrics(reg)))

	var wg sync.WaitGroup
	results := make([]*domain.JudgeResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Judge(context.Background(), judge.Request{
				Language:  domain.LanguagePython,
				Code:      squareScript,
				TestCases: squares(3),
			})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	for _, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, domain.VerdictAccepted, res.Verdict)
	}

	n, err := testutil.GatherAndCount(reg, "codejudge_judge_submissions_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n, "one language/verdict series")

	entries, err := afero.ReadDir(afero.NewOsFs(), root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestService_QueueCanceled(t *testing.T) {
	s, _ := makeService(t, withWorkers(1))

	started, finished := make(chan struct{}), make(chan struct{})
	go func() {
		defer close(finished)
		close(started)
		_, _ = s.Judge(context.Background(), judge.Request{
			Language:  domain.LanguagePython,
			Code:      "sleep 1\n",
			TestCases: squares(1),
		})
	}()
	<-started
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := s.Judge(ctx, judge.Request{Language: domain.LanguagePython, Code: squareScript, TestCases: squares(1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeResourceExhausted))

	<-finished
}

func TestService_DurationExcludesQueue(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, _ := makeService(t, withWorkers(1), withMetrics(judge.NewMetrics(reg)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.Judge(context.Background(), judge.Request{
			Language:  domain.LanguagePython,
			Code:      "sleep 1\necho 1\n",
			TestCases: squares(1),
		})
		assert.NoError(t, err)
	}()
	time.Sleep(100 * time.Millisecond)

	// Waits for the slow submission to free the only worker.
	res, err := s.Judge(context.Background(), judge.Request{
		Language:  domain.LanguagePython,
		Code:      squareScript,
		TestCases: squares(1),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.VerdictAccepted, res.Verdict)
	wg.Wait()

	mfs, err := reg.Gather()
	require.NoError(t, err)

	var fast uint64
	for _, mf := range mfs {
		if mf.GetName() != "codejudge_judge_duration_seconds" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		h := mf.GetMetric()[0].GetHistogram()
		assert.EqualValues(t, 2, h.GetSampleCount())
		for _, b := range h.GetBucket() {
			if b.GetUpperBound() == 0.5 {
				fast = b.GetCumulativeCount()
			}
		}
	}
	assert.EqualValues(t, 1, fast, "the queued submission is measured from when it got a worker")
}

type options func(c *judge.Config)

func withWorkers(n int) options {
	return func(c *judge.Config) {
		c.Workers = n
	}
}

func withMetrics(m *judge.Metrics) options {
	return func(c *judge.Config) {
		c.Metrics = m
	}
}

func makeService(t *testing.T, opts ...options) (*judge.Service, string) {
	t.Helper()

	set, err := toolchain.NewSet(toolchain.Config{
		Cpp: toolchain.Command{
			Compile: `sh -c 'if head -n1 "$1" | grep -q "^#error"; then echo "$1:1:2: error: invalid preprocessing directive" >&2; exit 1; fi; cp "$1" "$2"' sh {src} {bin}`,
			Run:     "sh {bin}",
		},
		Python: toolchain.Command{Run: "sh {src}"},
	})
	require.NoError(t, err)

	root := t.TempDir()
	arena, err := toolchain.NewArena(afero.NewOsFs(), root)
	require.NoError(t, err)

	c := judge.Config{
		Runner: toolchain.NewRunner(toolchain.RunnerConfig{
			Toolchains: set,
			Arena:      arena,
			RunTimeout: 2 * time.Second,
		}),
		Workers: 4,
	}

	for _, opt := range opts {
		opt(&c)
	}

	return judge.NewService(c), root
}
